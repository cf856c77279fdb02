package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerRoundTrip(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, grant, err := signer.Sign("exp-1", "allocations/v3.csv")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsed, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "exp-1", parsed.ExportID)
	assert.Equal(t, "allocations/v3.csv", parsed.Path)
	assert.True(t, grant.ExpiresAt.Equal(parsed.ExpiresAt))
}

func TestSignedURLSignerRejectsTampering(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, _, err := signer.Sign("exp-1", "allocations/v3.csv")
	require.NoError(t, err)

	_, err = NewSignedURLSigner("other", time.Hour).Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = signer.Verify("exp-2" + token[len("exp-1"):])
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = signer.Verify("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Minute)
	issued := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	signer.now = func() time.Time { return issued }
	token, _, err := signer.Sign("exp-1", "allocations/v3.pdf")
	require.NoError(t, err)

	signer.now = func() time.Time { return issued.Add(2 * time.Minute) }
	grant, err := signer.Verify(token)
	assert.True(t, errors.Is(err, ErrTokenExpired))
	assert.Equal(t, "exp-1", grant.ExportID)
}

func TestSignedURLSignerRequiresSecret(t *testing.T) {
	_, _, err := NewSignedURLSigner("", time.Hour).Sign("exp-1", "a.csv")
	assert.Error(t, err)
	_, _, err = NewSignedURLSigner("s", time.Hour).Sign("exp.1", "a.csv")
	assert.Error(t, err)
}
