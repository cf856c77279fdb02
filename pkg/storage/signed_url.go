package storage

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidToken = errors.New("invalid download token")
	ErrTokenExpired = errors.New("download token expired")
)

// Grant is the content of a signed download token.
type Grant struct {
	ExportID  string
	Path      string
	ExpiresAt time.Time
}

// SignedURLSigner issues and verifies HMAC signed download tokens.
type SignedURLSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSignedURLSigner constructs a signer with the provided secret and TTL.
func NewSignedURLSigner(secret string, ttl time.Duration) *SignedURLSigner {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SignedURLSigner{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Sign returns a token of the form exportID.expiry.path.signature.
func (s *SignedURLSigner) Sign(exportID, relPath string) (string, Grant, error) {
	if exportID == "" || relPath == "" {
		return "", Grant{}, fmt.Errorf("export id and path required")
	}
	if strings.Contains(exportID, ".") {
		return "", Grant{}, fmt.Errorf("export id must not contain '.'")
	}
	if len(s.secret) == 0 {
		return "", Grant{}, fmt.Errorf("signing secret missing")
	}
	grant := Grant{ExportID: exportID, Path: relPath, ExpiresAt: s.now().Add(s.ttl).Truncate(time.Second)}
	expiry := strconv.FormatInt(grant.ExpiresAt.Unix(), 10)
	encodedPath := base64.RawURLEncoding.EncodeToString([]byte(relPath))
	token := strings.Join([]string{exportID, expiry, encodedPath, s.signature(exportID, expiry, encodedPath)}, ".")
	return token, grant, nil
}

// Verify checks the signature and expiry of a token.
func (s *SignedURLSigner) Verify(token string) (Grant, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return Grant{}, ErrInvalidToken
	}
	exportID, expiry, encodedPath, signature := parts[0], parts[1], parts[2], parts[3]

	if !hmac.Equal([]byte(s.signature(exportID, expiry, encodedPath)), []byte(signature)) {
		return Grant{}, ErrInvalidToken
	}
	rawPath, err := base64.RawURLEncoding.DecodeString(encodedPath)
	if err != nil {
		return Grant{}, ErrInvalidToken
	}
	unix, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil {
		return Grant{}, ErrInvalidToken
	}

	grant := Grant{ExportID: exportID, Path: string(rawPath), ExpiresAt: time.Unix(unix, 0)}
	if !s.now().Before(grant.ExpiresAt) {
		return grant, ErrTokenExpired
	}
	return grant, nil
}

func (s *SignedURLSigner) signature(exportID, expiry, encodedPath string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(exportID + "|" + expiry + "|" + encodedPath))
	return hex.EncodeToString(mac.Sum(nil))
}
