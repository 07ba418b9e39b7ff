package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/barkeep-app/barkeep/internal/roles"
	"github.com/barkeep-app/barkeep/internal/session"
	"github.com/barkeep-app/barkeep/internal/tokenstore"
	_ "github.com/barkeep-app/barkeep/testing"
)

func mintToken(t *testing.T, userID string, role roles.Role, exp time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role.String(),
		"exp":  exp.Unix(),
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("controller-test-key"))
	require.NoError(t, err)
	return raw
}

type fakeIdentityAPI struct {
	mu sync.Mutex

	loginToken string
	loginUser  session.Profile
	loginErr   error
	loginDelay time.Duration
	loginCalls int

	profileUser  session.Profile
	profileErr   error
	profileDelay time.Duration
	profileCalls int

	logoutErr    error
	logoutTokens []string
}

func (f *fakeIdentityAPI) Login(ctx context.Context, email, password string) (string, session.Profile, error) {
	f.mu.Lock()
	f.loginCalls++
	delay := f.loginDelay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", session.Profile{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loginErr != nil {
		return "", session.Profile{}, f.loginErr
	}
	return f.loginToken, f.loginUser, nil
}

func (f *fakeIdentityAPI) Logout(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutTokens = append(f.logoutTokens, token)
	return f.logoutErr
}

func (f *fakeIdentityAPI) Profile(ctx context.Context, token string) (session.Profile, error) {
	f.mu.Lock()
	f.profileCalls++
	delay := f.profileDelay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.profileErr != nil {
		return session.Profile{}, f.profileErr
	}
	return f.profileUser, nil
}

func (f *fakeIdentityAPI) calls() (login, profile int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loginCalls, f.profileCalls
}

type fakeAudit struct {
	mu      sync.Mutex
	logins  []session.AuditEntry
	logouts []string
}

func (f *fakeAudit) RecordLogin(ctx context.Context, entry session.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins = append(f.logins, entry)
	return nil
}

func (f *fakeAudit) RecordLogout(ctx context.Context, browserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logouts = append(f.logouts, browserID)
	return nil
}

type controllerFixture struct {
	controller *session.Controller
	store      *tokenstore.Store
	client     *fakeIdentityAPI
	audit      *fakeAudit
	redis      *miniredis.Miniredis
}

func newControllerFixture(t *testing.T, client *fakeIdentityAPI, clock func() time.Time) controllerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := tokenstore.New(redisClient, time.Hour, nil)
	audit := &fakeAudit{}
	controller := session.NewController(session.Config{
		Store:       store,
		Client:      client,
		Audit:       audit,
		Clock:       clock,
		RestoreWait: 500 * time.Millisecond,
	})
	return controllerFixture{controller: controller, store: store, client: client, audit: audit, redis: mr}
}

func managerProfile() session.Profile {
	return session.Profile{
		ID:       "user-42",
		Email:    "morgan@riverside.example",
		FullName: "Morgan Manager",
		Role:     roles.Manager,
		TenantID: "tenant-7",
	}
}

func TestResolveRestoresStoredCredentials(t *testing.T) {
	user := managerProfile()
	bearer := mintToken(t, user.ID, user.Role, time.Now().Add(time.Hour))
	client := &fakeIdentityAPI{profileUser: user}
	fx := newControllerFixture(t, client, nil)

	ctx := context.Background()
	fx.store.Save(ctx, "browser-1", bearer, user)

	sess := fx.controller.Resolve(ctx, "browser-1")
	require.Equal(t, session.StatusAuthenticated, sess.Status)
	require.NotNil(t, sess.CurrentUser)
	require.Equal(t, user.ID, sess.CurrentUser.ID)
	require.Equal(t, bearer, sess.Token)

	// The profile is authoritative, fetched once from the API.
	_, profileCalls := client.calls()
	require.Equal(t, 1, profileCalls)
}

func TestResolveWithoutStoredCredentials(t *testing.T) {
	client := &fakeIdentityAPI{}
	fx := newControllerFixture(t, client, nil)

	sess := fx.controller.Resolve(context.Background(), "browser-1")
	require.Equal(t, session.StatusUnauthenticated, sess.Status)
	require.Nil(t, sess.CurrentUser)
	require.Empty(t, sess.LastError)

	// No credentials means no API traffic.
	_, profileCalls := client.calls()
	require.Zero(t, profileCalls)
}

func TestResolveExpiredTokenFailsSilently(t *testing.T) {
	user := managerProfile()
	bearer := mintToken(t, user.ID, user.Role, time.Now().Add(-time.Minute))
	client := &fakeIdentityAPI{profileUser: user}
	fx := newControllerFixture(t, client, nil)

	ctx := context.Background()
	fx.store.Save(ctx, "browser-1", bearer, user)

	sess := fx.controller.Resolve(ctx, "browser-1")
	require.Equal(t, session.StatusUnauthenticated, sess.Status)
	require.Empty(t, sess.LastError)

	// The dead credentials are gone; the API was never consulted.
	_, ok := fx.store.Read(ctx, "browser-1")
	require.False(t, ok)
	_, profileCalls := client.calls()
	require.Zero(t, profileCalls)
}

func TestResolveProfileFetchFailureClearsStore(t *testing.T) {
	user := managerProfile()
	bearer := mintToken(t, user.ID, user.Role, time.Now().Add(time.Hour))
	client := &fakeIdentityAPI{profileErr: &session.UpstreamError{StatusCode: 401, Message: "token revoked"}}
	fx := newControllerFixture(t, client, nil)

	ctx := context.Background()
	fx.store.Save(ctx, "browser-1", bearer, user)

	sess := fx.controller.Resolve(ctx, "browser-1")
	require.Equal(t, session.StatusUnauthenticated, sess.Status)
	require.Empty(t, sess.LastError)

	_, ok := fx.store.Read(ctx, "browser-1")
	require.False(t, ok)
}

func TestResolveCollapsesConcurrentRestores(t *testing.T) {
	user := managerProfile()
	bearer := mintToken(t, user.ID, user.Role, time.Now().Add(time.Hour))
	client := &fakeIdentityAPI{profileUser: user, profileDelay: 50 * time.Millisecond}
	fx := newControllerFixture(t, client, nil)

	ctx := context.Background()
	fx.store.Save(ctx, "browser-1", bearer, user)

	const workers = 8
	var wg sync.WaitGroup
	results := make([]session.Session, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = fx.controller.Resolve(ctx, "browser-1")
		}(i)
	}
	wg.Wait()

	for _, sess := range results {
		require.Equal(t, session.StatusAuthenticated, sess.Status)
	}
	_, profileCalls := client.calls()
	require.Equal(t, 1, profileCalls)
}

func TestResolveOutwaitingRestoreReturnsInitializing(t *testing.T) {
	user := managerProfile()
	bearer := mintToken(t, user.ID, user.Role, time.Now().Add(time.Hour))
	client := &fakeIdentityAPI{profileUser: user, profileDelay: 300 * time.Millisecond}
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := tokenstore.New(redisClient, time.Hour, nil)
	controller := session.NewController(session.Config{
		Store:       store,
		Client:      client,
		RestoreWait: 20 * time.Millisecond,
	})

	ctx := context.Background()
	store.Save(ctx, "browser-1", bearer, user)

	sess := controller.Resolve(ctx, "browser-1")
	require.Equal(t, session.StatusInitializing, sess.Status)

	// The detached restore still completes; a retry sees the result.
	require.Eventually(t, func() bool {
		return controller.Current("browser-1").Status == session.StatusAuthenticated
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStaleRestoreDoesNotUnseatFreshLogin(t *testing.T) {
	user := managerProfile()
	staleBearer := mintToken(t, user.ID, user.Role, time.Now().Add(time.Hour))
	freshBearer := mintToken(t, user.ID, user.Role, time.Now().Add(2*time.Hour))

	// The restore's profile fetch is slow and ultimately rejected, so it
	// resolves long after the interactive login below has succeeded.
	client := &fakeIdentityAPI{
		loginToken:   freshBearer,
		loginUser:    user,
		profileErr:   &session.UpstreamError{StatusCode: 401, Message: "token revoked"},
		profileDelay: 200 * time.Millisecond,
	}
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := tokenstore.New(redisClient, time.Hour, nil)
	controller := session.NewController(session.Config{
		Store:       store,
		Client:      client,
		RestoreWait: 20 * time.Millisecond,
	})

	ctx := context.Background()
	store.Save(ctx, "browser-1", staleBearer, user)

	sess := controller.Resolve(ctx, "browser-1")
	require.Equal(t, session.StatusInitializing, sess.Status)

	sess, route, err := controller.Login(ctx, "browser-1", user.Email, "secret")
	require.NoError(t, err)
	require.Equal(t, "/manager/dashboard", route)
	require.Equal(t, session.StatusAuthenticated, sess.Status)

	// Give the detached restore ample time to resolve its failure.
	time.Sleep(500 * time.Millisecond)

	// The login settled the session; the stale restore outcome is
	// discarded and the credentials it would have wiped are intact.
	require.Equal(t, session.StatusAuthenticated, controller.Current("browser-1").Status)
	creds, ok := store.Read(ctx, "browser-1")
	require.True(t, ok)
	require.Equal(t, freshBearer, creds.Token)
}

func TestResolveDemotesSessionWhoseTokenExpired(t *testing.T) {
	user := managerProfile()
	bearer := mintToken(t, user.ID, user.Role, time.Now().Add(30*time.Minute))
	client := &fakeIdentityAPI{loginToken: bearer, loginUser: user}

	current := time.Now()
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return current
	}
	fx := newControllerFixture(t, client, clock)

	ctx := context.Background()
	_, route, err := fx.controller.Login(ctx, "browser-1", user.Email, "secret")
	require.NoError(t, err)
	require.Equal(t, "/manager/dashboard", route)

	mu.Lock()
	current = current.Add(time.Hour)
	mu.Unlock()

	sess := fx.controller.Resolve(ctx, "browser-1")
	require.Equal(t, session.StatusUnauthenticated, sess.Status)
	_, ok := fx.store.Read(ctx, "browser-1")
	require.False(t, ok)
}

func TestLoginSuccess(t *testing.T) {
	user := managerProfile()
	bearer := mintToken(t, user.ID, user.Role, time.Now().Add(time.Hour))
	client := &fakeIdentityAPI{loginToken: bearer, loginUser: user}
	fx := newControllerFixture(t, client, nil)

	ctx := session.ContextWithRequestMetadata(context.Background(), session.RequestMetadata{
		IP:        "203.0.113.9",
		UserAgent: "test-agent",
	})
	sess, route, err := fx.controller.Login(ctx, "browser-1", user.Email, "secret")
	require.NoError(t, err)
	require.Equal(t, "/manager/dashboard", route)
	require.Equal(t, session.StatusAuthenticated, sess.Status)
	require.Equal(t, user.ID, sess.CurrentUser.ID)

	// Credentials persisted for the next silent restore.
	creds, ok := fx.store.Read(ctx, "browser-1")
	require.True(t, ok)
	require.Equal(t, bearer, creds.Token)

	// Audit trail captured the request metadata.
	require.Len(t, fx.audit.logins, 1)
	entry := fx.audit.logins[0]
	require.Equal(t, "browser-1", entry.BrowserID)
	require.Equal(t, user.ID, entry.UserID)
	require.Equal(t, "203.0.113.9", entry.IP)
	require.Equal(t, "test-agent", entry.UserAgent)
	require.False(t, entry.ExpiresAt.IsZero())
}

func TestLoginLandingRouteFollowsRole(t *testing.T) {
	cases := []struct {
		role roles.Role
		want string
	}{
		{roles.SaasAdmin, "/saas-admin/dashboard"},
		{roles.TenantAdmin, "/tenant-admin/dashboard"},
		{roles.Manager, "/manager/dashboard"},
		{roles.AssistantManager, "/assistant-manager/dashboard"},
		{roles.Executive, "/executive/dashboard"},
		{roles.Role("unexpected"), "/dashboard"},
	}
	for _, tc := range cases {
		user := managerProfile()
		user.Role = tc.role
		bearer := mintToken(t, user.ID, tc.role, time.Now().Add(time.Hour))
		client := &fakeIdentityAPI{loginToken: bearer, loginUser: user}
		fx := newControllerFixture(t, client, nil)

		_, route, err := fx.controller.Login(context.Background(), "browser-1", user.Email, "secret")
		require.NoError(t, err)
		require.Equal(t, tc.want, route, "role %s", tc.role)
	}
}

func TestLoginUpstreamRejection(t *testing.T) {
	client := &fakeIdentityAPI{loginErr: &session.UpstreamError{StatusCode: 401, Message: "Invalid email or password"}}
	fx := newControllerFixture(t, client, nil)

	sess, route, err := fx.controller.Login(context.Background(), "browser-1", "x@y.z", "bad")
	require.NoError(t, err)
	require.Empty(t, route)
	require.Equal(t, session.StatusUnauthenticated, sess.Status)
	require.Equal(t, "Invalid email or password", sess.LastError)
	require.Empty(t, fx.audit.logins)

	_, ok := fx.store.Read(context.Background(), "browser-1")
	require.False(t, ok)
}

func TestLoginTransportFailureUsesGenericMessage(t *testing.T) {
	client := &fakeIdentityAPI{loginErr: errors.New("dial tcp: connection refused")}
	fx := newControllerFixture(t, client, nil)

	sess, route, err := fx.controller.Login(context.Background(), "browser-1", "x@y.z", "pw")
	require.NoError(t, err)
	require.Empty(t, route)
	require.Equal(t, session.GenericLoginError, sess.LastError)
}

func TestLoginWhileInFlightIsRejected(t *testing.T) {
	user := managerProfile()
	bearer := mintToken(t, user.ID, user.Role, time.Now().Add(time.Hour))
	client := &fakeIdentityAPI{loginToken: bearer, loginUser: user, loginDelay: 100 * time.Millisecond}
	fx := newControllerFixture(t, client, nil)

	ctx := context.Background()
	done := make(chan struct{})
	go func() {
		_, _, _ = fx.controller.Login(ctx, "browser-1", user.Email, "secret")
		close(done)
	}()

	// Wait for the first login to reach the in-flight state, then try a
	// second one.
	require.Eventually(t, func() bool {
		return fx.controller.Current("browser-1").Status == session.StatusAuthenticating
	}, time.Second, time.Millisecond)

	_, _, err := fx.controller.Login(ctx, "browser-1", user.Email, "secret")
	require.ErrorIs(t, err, session.ErrLoginInFlight)
	<-done

	// Exactly one credential exchange reached the upstream; the rejected
	// attempt never did.
	loginCalls, _ := client.calls()
	require.Equal(t, 1, loginCalls)
}

func TestLogout(t *testing.T) {
	user := managerProfile()
	bearer := mintToken(t, user.ID, user.Role, time.Now().Add(time.Hour))
	client := &fakeIdentityAPI{loginToken: bearer, loginUser: user}
	fx := newControllerFixture(t, client, nil)

	ctx := context.Background()
	_, _, err := fx.controller.Login(ctx, "browser-1", user.Email, "secret")
	require.NoError(t, err)

	sess, route := fx.controller.Logout(ctx, "browser-1")
	require.Equal(t, session.StatusUnauthenticated, sess.Status)
	require.Equal(t, "/auth/login", route)
	require.Equal(t, []string{bearer}, client.logoutTokens)
	require.Equal(t, []string{"browser-1"}, fx.audit.logouts)

	_, ok := fx.store.Read(ctx, "browser-1")
	require.False(t, ok)
}

func TestLogoutSurvivesUpstreamFailure(t *testing.T) {
	user := managerProfile()
	bearer := mintToken(t, user.ID, user.Role, time.Now().Add(time.Hour))
	client := &fakeIdentityAPI{loginToken: bearer, loginUser: user, logoutErr: errors.New("upstream down")}
	fx := newControllerFixture(t, client, nil)

	ctx := context.Background()
	_, _, err := fx.controller.Login(ctx, "browser-1", user.Email, "secret")
	require.NoError(t, err)

	sess, _ := fx.controller.Logout(ctx, "browser-1")
	require.Equal(t, session.StatusUnauthenticated, sess.Status)
	_, ok := fx.store.Read(ctx, "browser-1")
	require.False(t, ok)
}

func TestLogoutWhenUnauthenticatedIsSafe(t *testing.T) {
	client := &fakeIdentityAPI{}
	fx := newControllerFixture(t, client, nil)

	sess, route := fx.controller.Logout(context.Background(), "browser-1")
	require.Equal(t, session.StatusUnauthenticated, sess.Status)
	require.Equal(t, "/auth/login", route)
	require.Empty(t, client.logoutTokens)
}

func TestUpdateUserOnlyWhenAuthenticated(t *testing.T) {
	user := managerProfile()
	bearer := mintToken(t, user.ID, user.Role, time.Now().Add(time.Hour))
	client := &fakeIdentityAPI{loginToken: bearer, loginUser: user}
	fx := newControllerFixture(t, client, nil)

	newName := "Morgan M. Manager"

	// Before authenticating the patch is dropped.
	sess := fx.controller.UpdateUser("browser-1", session.ProfilePatch{FullName: &newName})
	require.Nil(t, sess.CurrentUser)

	_, _, err := fx.controller.Login(context.Background(), "browser-1", user.Email, "secret")
	require.NoError(t, err)

	sess = fx.controller.UpdateUser("browser-1", session.ProfilePatch{FullName: &newName})
	require.Equal(t, "Morgan M. Manager", sess.CurrentUser.FullName)
	require.Equal(t, roles.Manager, sess.CurrentUser.Role)
}
