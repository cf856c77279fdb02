package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-allocator/internal/models"
	appErrors "github.com/noah-isme/timetable-allocator/pkg/errors"
)

func issueToken(t *testing.T, method jwt.SigningMethod, key interface{}, claims *models.JWTClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func TestTokenServiceValidateToken(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "identity"})
	token := issueToken(t, jwt.SigningMethodHS256, []byte("secret"), &models.JWTClaims{
		UserID: "user-1",
		Role:   models.RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "identity",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestTokenServiceRejectsInvalidTokens(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: "secret", Issuer: "identity"})
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := map[string]string{
		"expired": issueToken(t, jwt.SigningMethodHS256, []byte("secret"), &models.JWTClaims{
			Role:             models.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "identity", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
		}),
		"wrong issuer": issueToken(t, jwt.SigningMethodHS256, []byte("secret"), &models.JWTClaims{
			Role:             models.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "elsewhere", ExpiresAt: future},
		}),
		"wrong algorithm": issueToken(t, jwt.SigningMethodHS512, []byte("secret"), &models.JWTClaims{
			Role:             models.RoleAdmin,
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "identity", ExpiresAt: future},
		}),
		"missing role": issueToken(t, jwt.SigningMethodHS256, []byte("secret"), &models.JWTClaims{
			RegisteredClaims: jwt.RegisteredClaims{Issuer: "identity", ExpiresAt: future},
		}),
		"garbage": "not.a.token",
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
		})
	}
}
