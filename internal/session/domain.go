package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/barkeep-app/barkeep/internal/roles"
	"github.com/barkeep-app/barkeep/internal/token"
)

// Status is the lifecycle state of an authenticated session.
type Status string

const (
	// StatusInitializing means a silent restore has not resolved yet.
	StatusInitializing Status = "initializing"
	// StatusUnauthenticated means no usable credentials are held.
	StatusUnauthenticated Status = "unauthenticated"
	// StatusAuthenticating means a login call is in flight.
	StatusAuthenticating Status = "authenticating"
	// StatusAuthenticated means the session holds a verified profile.
	StatusAuthenticated Status = "authenticated"
)

// Shop is a retail location assigned to a user.
type Shop struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Profile is the authoritative identity of an authenticated user, as
// returned by the upstream identity API.
type Profile struct {
	ID            string     `json:"id"`
	Email         string     `json:"email"`
	FullName      string     `json:"full_name"`
	Role          roles.Role `json:"role"`
	TenantID      string     `json:"tenant_id,omitempty"`
	AssignedShops []Shop     `json:"assigned_shops,omitempty"`
	Permissions   []string   `json:"permissions,omitempty"`
}

// ProfilePatch carries a partial profile update. Nil fields are left
// unchanged. There is intentionally no role field: the role is immutable
// for the session lifetime.
type ProfilePatch struct {
	FullName      *string
	Email         *string
	AssignedShops []Shop
	Permissions   []string
}

// Session is the state of one browser's authenticated session.
//
// Invariant: CurrentUser is non-nil if and only if Status is
// StatusAuthenticated. The reducer in reducer.go is the only place
// transitions happen, which is what keeps the invariant honest.
type Session struct {
	Status      Status
	CurrentUser *Profile
	Token       string
	LastError   string
}

// AuthenticatedAt re-checks token freshness on every read, so a token that
// expired since login is detected without waiting for the next restore.
func (s Session) AuthenticatedAt(now time.Time) bool {
	return s.Status == StatusAuthenticated && token.IsValid(s.Token, now)
}

// StoredCredentials is the token/profile pair held by the token store.
type StoredCredentials struct {
	Token string
	User  Profile
}

// TokenStore persists the bearer token and cached profile for a browser
// session. Implementations swallow storage failures: a failed read is
// "no stored credentials", never an error the caller must handle.
type TokenStore interface {
	Save(ctx context.Context, browserID, token string, user Profile)
	Read(ctx context.Context, browserID string) (StoredCredentials, bool)
	Clear(ctx context.Context, browserID string)
}

// IdentityAPI is the upstream authentication service.
type IdentityAPI interface {
	Login(ctx context.Context, email, password string) (string, Profile, error)
	Logout(ctx context.Context, token string) error
	Profile(ctx context.Context, token string) (Profile, error)
}

// AuditEntry records a successful login for the audit trail.
type AuditEntry struct {
	BrowserID string
	UserID    string
	TenantID  string
	Role      roles.Role
	IP        string
	UserAgent string
	LoginAt   time.Time
	ExpiresAt time.Time
}

// AuditRecorder persists the login/logout audit trail. Recording is
// best-effort: failures are logged by the controller, never surfaced.
type AuditRecorder interface {
	RecordLogin(ctx context.Context, entry AuditEntry) error
	RecordLogout(ctx context.Context, browserID string) error
}

// UpstreamError is a failure reported by the identity API with a
// user-facing message attached.
type UpstreamError struct {
	StatusCode int
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("identity api: status %d", e.StatusCode)
	}
	return fmt.Sprintf("identity api: status %d: %s", e.StatusCode, e.Message)
}

// ErrLoginInFlight is returned when a login is attempted while another
// login for the same browser session has not resolved. Concurrent logins
// are rejected rather than queued.
var ErrLoginInFlight = errors.New("session: login already in progress")
