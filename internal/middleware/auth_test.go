package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/timetable-allocator/internal/models"
	"github.com/noah-isme/timetable-allocator/internal/service"
)

func signedToken(t *testing.T, secret string, role models.UserRole) string {
	t.Helper()
	claims := &models.JWTClaims{
		UserID: "user-1",
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newAuthRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenService(service.TokenConfig{Secret: "secret"})
	router := gin.New()
	router.POST("/mutate", JWT(tokens), RequireRoles(models.RoleAdmin, models.RoleSuperAdmin), func(c *gin.Context) {
		claims, ok := CurrentClaims(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, claims.UserID)
	})
	return router
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	newAuthRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mutate", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTRejectsForeignSignature(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/mutate", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "other", models.RoleAdmin))
	rec := httptest.NewRecorder()
	newAuthRouter().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRolesForbidsTeacher(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/mutate", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", models.RoleTeacher))
	rec := httptest.NewRecorder()
	newAuthRouter().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRolesAllowsAdmin(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/mutate", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "secret", models.RoleAdmin))
	rec := httptest.NewRecorder()
	newAuthRouter().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-1", rec.Body.String())
}
