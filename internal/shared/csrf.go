package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"
)

const (
	// CSRFSessionKey is the key used to persist tokens in the browser session.
	CSRFSessionKey = "csrf_token"
	// CSRFFormField is the form field name carrying the CSRF token.
	CSRFFormField = "csrf_token"
)

// CSRFManager issues and verifies CSRF tokens bound to a browser session.
type CSRFManager struct {
	secret []byte
}

// NewCSRFManager returns a CSRFManager using the provided secret key.
func NewCSRFManager(secret string) *CSRFManager {
	return &CSRFManager{secret: []byte(secret)}
}

// EnsureToken retrieves or generates a CSRF token for the browser session.
func (m *CSRFManager) EnsureToken(ctx context.Context, br *Browser) (string, error) {
	if br == nil {
		return "", errors.New("browser session missing")
	}
	if token := br.Get(CSRFSessionKey); token != "" {
		return token, nil
	}
	token := m.generateToken(br.ID)
	br.Set(CSRFSessionKey, token)
	return token, nil
}

// VerifyToken compares the supplied token with the browser session token.
func (m *CSRFManager) VerifyToken(ctx context.Context, br *Browser, token string) error {
	if br == nil {
		return ErrCSRFTokenMissing
	}
	expected := br.Get(CSRFSessionKey)
	if expected == "" {
		return ErrCSRFTokenMissing
	}
	if token == "" {
		return ErrCSRFTokenMissing
	}
	if !hmac.Equal([]byte(expected), []byte(token)) {
		return ErrCSRFTokenMismatch
	}
	return nil
}

func (m *CSRFManager) generateToken(browserID string) string {
	mac := hmac.New(sha256.New, m.secret)
	_, _ = mac.Write([]byte(browserID))
	_, _ = mac.Write([]byte{'|'})
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(time.Now().UnixNano()))
	_, _ = mac.Write(buf)
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
