package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/barkeep-app/barkeep/internal/roles"
)

// Identity is the minimal claim set a bearer token asserts about its
// holder. It is advisory only: routing may consult it, but authorization
// always rests on the authoritative profile fetched from the identity API,
// which re-verifies the signature on every call.
type Identity struct {
	UserID   string
	Email    string
	TenantID string
	Role     roles.Role
}

type bearerClaims struct {
	Email    string `json:"email"`
	Role     string `json:"role"`
	TenantID string `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// IsValid reports whether the token is structurally well-formed and
// unexpired at the given instant. A token that fails to parse, or that
// carries no expiry, is invalid rather than an error.
func IsValid(raw string, now time.Time) bool {
	claims, ok := parse(raw)
	if !ok {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return now.Before(claims.ExpiresAt.Time)
}

// ExtractIdentity decodes the embedded claims without verifying the
// signature. Returns false on any decode failure or when no subject is
// present. The role is passed through as-is; unknown roles are resolved
// by the landing table's fallback.
func ExtractIdentity(raw string) (Identity, bool) {
	claims, ok := parse(raw)
	if !ok {
		return Identity{}, false
	}
	if claims.Subject == "" {
		return Identity{}, false
	}
	return Identity{
		UserID:   claims.Subject,
		Email:    claims.Email,
		TenantID: claims.TenantID,
		Role:     roles.Role(claims.Role),
	}, true
}

// Expiry returns the token's expiry claim, if one can be decoded.
func Expiry(raw string) (time.Time, bool) {
	claims, ok := parse(raw)
	if !ok || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}

func parse(raw string) (*bearerClaims, bool) {
	if raw == "" {
		return nil, false
	}
	parsed, _, err := jwt.NewParser().ParseUnverified(raw, &bearerClaims{})
	if err != nil {
		return nil, false
	}
	claims, ok := parsed.Claims.(*bearerClaims)
	if !ok {
		return nil, false
	}
	return claims, true
}
