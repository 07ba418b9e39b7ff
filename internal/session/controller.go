package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/barkeep-app/barkeep/internal/roles"
	"github.com/barkeep-app/barkeep/internal/token"
)

// Controller owns the session state machine for every browser session.
// It is the single boundary that translates token store, identity API and
// audit failures into state transitions; callers only ever observe Status
// and LastError.
type Controller struct {
	store       TokenStore
	client      IdentityAPI
	audit       AuditRecorder
	logger      *slog.Logger
	now         func() time.Time
	restoreWait time.Duration

	mu       sync.Mutex
	sessions map[string]Session
	restores singleflight.Group
}

// Config collects Controller dependencies. Audit is optional.
type Config struct {
	Store  TokenStore
	Client IdentityAPI
	Audit  AuditRecorder
	Logger *slog.Logger
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
	// RestoreWait bounds how long a request waits for a silent restore
	// before it is shown the loading page. Zero waits until the request
	// context is done.
	RestoreWait time.Duration
}

// NewController constructs a Controller.
func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Controller{
		store:       cfg.Store,
		client:      cfg.Client,
		audit:       cfg.Audit,
		logger:      logger,
		now:         now,
		restoreWait: cfg.RestoreWait,
		sessions:    make(map[string]Session),
	}
}

// Current returns a snapshot of the session without triggering any I/O.
// A browser session that has never been resolved reports Initializing,
// since its stored credentials have not been examined yet.
func (c *Controller) Current(browserID string) Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[browserID]
	if !ok {
		return Session{Status: StatusInitializing}
	}
	return s
}

// Resolve returns the session for a browser, running the silent restore
// if it has not happened yet. Concurrent resolves for the same browser
// collapse into a single restore; requests that outwait RestoreWait get
// the Initializing snapshot back and are expected to retry.
func (c *Controller) Resolve(ctx context.Context, browserID string) Session {
	c.mu.Lock()
	s, known := c.sessions[browserID]
	if known && s.Status != StatusInitializing {
		c.mu.Unlock()
		if s.Status == StatusAuthenticated && !token.IsValid(s.Token, c.now()) {
			// Token expired out from under an authenticated session.
			c.store.Clear(ctx, browserID)
			return c.apply(browserID, LoggedOut{})
		}
		return s
	}
	if !known {
		c.sessions[browserID] = Apply(Session{}, RestoreStarted{})
	}
	c.mu.Unlock()

	// Detach the restore from the request so an abandoned request (tab
	// closed mid-flight) cannot strand the session in Initializing.
	ch := c.restores.DoChan(browserID, func() (any, error) {
		return c.restore(context.WithoutCancel(ctx), browserID), nil
	})

	var wait <-chan time.Time
	if c.restoreWait > 0 {
		timer := time.NewTimer(c.restoreWait)
		defer timer.Stop()
		wait = timer.C
	}

	select {
	case res := <-ch:
		if s, ok := res.Val.(Session); ok {
			return s
		}
		return c.Current(browserID)
	case <-ctx.Done():
		return c.Current(browserID)
	case <-wait:
		return c.Current(browserID)
	}
}

// restore is the initialization sequence: read the store, check the token
// locally, then fetch the authoritative profile. Every failure path clears
// the store and resolves Unauthenticated without surfacing an error.
func (c *Controller) restore(ctx context.Context, browserID string) Session {
	creds, ok := c.store.Read(ctx, browserID)
	if !ok {
		return c.settleRestore(ctx, browserID, RestoreFailed{}, false)
	}
	if !token.IsValid(creds.Token, c.now()) {
		return c.settleRestore(ctx, browserID, RestoreFailed{}, true)
	}
	if _, ok := token.ExtractIdentity(creds.Token); !ok {
		return c.settleRestore(ctx, browserID, RestoreFailed{}, true)
	}
	user, err := c.client.Profile(ctx, creds.Token)
	if err != nil {
		c.logger.Debug("silent restore profile fetch failed", slog.Any("error", err))
		return c.settleRestore(ctx, browserID, RestoreFailed{}, true)
	}
	return c.settleRestore(ctx, browserID, RestoreSucceeded{Token: creds.Token, User: user}, false)
}

// settleRestore records a restore outcome. A login or logout that landed
// while the restore was still in flight has already settled the session:
// the stale outcome is discarded and the store is left alone, so
// credentials a fresh login just saved are never wiped. The store wipe
// happens under the same lock as the state check for that reason.
func (c *Controller) settleRestore(ctx context.Context, browserID string, ev Event, wipe bool) Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	cur := c.sessions[browserID]
	if cur.Status != StatusInitializing {
		return cur
	}
	if wipe {
		c.store.Clear(ctx, browserID)
	}
	next := Apply(cur, ev)
	c.sessions[browserID] = next
	return next
}

// Login exchanges credentials with the identity API. On success it returns
// the session and the role-specific landing route. A login attempted while
// another is in flight returns ErrLoginInFlight. A rejected login returns
// a session whose LastError carries the user-facing message and an empty
// route; that is not an error from the caller's perspective.
func (c *Controller) Login(ctx context.Context, browserID, email, password string) (Session, string, error) {
	c.mu.Lock()
	cur := c.sessions[browserID]
	if cur.Status == StatusAuthenticating {
		c.mu.Unlock()
		return cur, "", ErrLoginInFlight
	}
	cur = Apply(cur, LoginStarted{})
	c.sessions[browserID] = cur
	c.mu.Unlock()

	bearer, user, err := c.client.Login(ctx, email, password)
	if err != nil {
		var upstream *UpstreamError
		msg := ""
		if errors.As(err, &upstream) {
			msg = upstream.Message
		}
		return c.apply(browserID, LoginFailed{Message: msg}), "", nil
	}

	c.store.Save(ctx, browserID, bearer, user)
	c.recordLogin(ctx, browserID, bearer, user)
	s := c.apply(browserID, LoginSucceeded{Token: bearer, User: user})
	return s, roles.LandingRoute(user.Role), nil
}

// Logout tears the session down. The upstream call is best-effort; local
// state and stored credentials are always cleared. Safe to call when
// already unauthenticated. Returns the login route for navigation.
func (c *Controller) Logout(ctx context.Context, browserID string) (Session, string) {
	cur := c.Current(browserID)
	if cur.Token != "" {
		if err := c.client.Logout(ctx, cur.Token); err != nil {
			c.logger.Warn("upstream logout", slog.Any("error", err))
		}
	}
	c.store.Clear(ctx, browserID)
	if c.audit != nil {
		if err := c.audit.RecordLogout(ctx, browserID); err != nil {
			c.logger.Warn("record logout", slog.Any("error", err))
		}
	}
	return c.apply(browserID, LoggedOut{}), roles.LoginRoute
}

// UpdateUser merges a partial profile into the current user. It is a
// no-op unless the session is authenticated.
func (c *Controller) UpdateUser(browserID string, patch ProfilePatch) Session {
	return c.apply(browserID, UserUpdated{Patch: patch})
}

func (c *Controller) apply(browserID string, ev Event) Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := Apply(c.sessions[browserID], ev)
	c.sessions[browserID] = next
	return next
}

func (c *Controller) recordLogin(ctx context.Context, browserID, bearer string, user Profile) {
	if c.audit == nil {
		return
	}
	entry := AuditEntry{
		BrowserID: browserID,
		UserID:    user.ID,
		TenantID:  user.TenantID,
		Role:      user.Role,
		LoginAt:   c.now().UTC(),
	}
	if identity, ok := token.ExtractIdentity(bearer); ok && identity.UserID != "" && entry.UserID == "" {
		entry.UserID = identity.UserID
	}
	entry.ExpiresAt = tokenExpiry(bearer, c.now())
	if md, ok := RequestMetadataFromContext(ctx); ok {
		entry.IP = md.IP
		entry.UserAgent = md.UserAgent
	}
	if err := c.audit.RecordLogin(ctx, entry); err != nil {
		c.logger.Warn("record login", slog.Any("error", err))
	}
}
