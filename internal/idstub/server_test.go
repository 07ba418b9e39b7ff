package idstub_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/barkeep-app/barkeep/internal/idclient"
	"github.com/barkeep-app/barkeep/internal/idstub"
	"github.com/barkeep-app/barkeep/internal/roles"
	"github.com/barkeep-app/barkeep/internal/session"
	"github.com/barkeep-app/barkeep/internal/token"
	_ "github.com/barkeep-app/barkeep/testing"
)

func newStub(t *testing.T) (*idstub.Server, *idclient.Client) {
	t.Helper()
	stub := idstub.NewServer(idstub.Config{Secret: "test-secret", TokenTTL: time.Hour})
	require.NoError(t, stub.Seed(session.Profile{
		ID:       "user-42",
		Email:    "morgan@riverside.example",
		FullName: "Morgan Manager",
		Role:     roles.Manager,
		TenantID: "tenant-7",
	}, "secret"))

	srv := httptest.NewServer(stub.Routes())
	t.Cleanup(srv.Close)
	return stub, idclient.New(srv.URL)
}

func TestLoginIssuesParsableToken(t *testing.T) {
	_, client := newStub(t)

	bearer, user, err := client.Login(context.Background(), "morgan@riverside.example", "secret")
	require.NoError(t, err)
	require.Equal(t, "user-42", user.ID)
	require.Equal(t, roles.Manager, user.Role)

	// The issued token carries the claims the gateway reads locally.
	require.True(t, token.IsValid(bearer, time.Now()))
	id, ok := token.ExtractIdentity(bearer)
	require.True(t, ok)
	require.Equal(t, "user-42", id.UserID)
	require.Equal(t, "morgan@riverside.example", id.Email)
	require.Equal(t, roles.Manager, id.Role)
	require.Equal(t, "tenant-7", id.TenantID)

	exp, ok := token.Expiry(bearer)
	require.True(t, ok)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, time.Minute)
}

func TestLoginWrongPassword(t *testing.T) {
	_, client := newStub(t)

	_, _, err := client.Login(context.Background(), "morgan@riverside.example", "wrong")
	var upstream *session.UpstreamError
	require.True(t, errors.As(err, &upstream))
	require.Equal(t, 401, upstream.StatusCode)
	require.Equal(t, "Invalid email or password", upstream.Message)
}

func TestLoginUnknownAccountLooksTheSame(t *testing.T) {
	_, client := newStub(t)

	_, _, err := client.Login(context.Background(), "nobody@riverside.example", "secret")
	var upstream *session.UpstreamError
	require.True(t, errors.As(err, &upstream))
	require.Equal(t, 401, upstream.StatusCode)
	// Unknown accounts and wrong passwords share one message.
	require.Equal(t, "Invalid email or password", upstream.Message)
}

func TestLoginEmailIsCaseInsensitive(t *testing.T) {
	_, client := newStub(t)

	_, user, err := client.Login(context.Background(), "Morgan@Riverside.Example", "secret")
	require.NoError(t, err)
	require.Equal(t, "user-42", user.ID)
}

func TestProfileRoundTrip(t *testing.T) {
	_, client := newStub(t)

	bearer, _, err := client.Login(context.Background(), "morgan@riverside.example", "secret")
	require.NoError(t, err)

	user, err := client.Profile(context.Background(), bearer)
	require.NoError(t, err)
	require.Equal(t, "user-42", user.ID)
	require.Equal(t, "Morgan Manager", user.FullName)
}

func TestProfileRejectsForgedToken(t *testing.T) {
	_, client := newStub(t)

	forged := idstub.NewServer(idstub.Config{Secret: "other-secret", TokenTTL: time.Hour})
	require.NoError(t, forged.Seed(session.Profile{
		ID:    "user-42",
		Email: "morgan@riverside.example",
		Role:  roles.Manager,
	}, "secret"))
	srv := httptest.NewServer(forged.Routes())
	t.Cleanup(srv.Close)
	forgedClient := idclient.New(srv.URL)
	bearer, _, err := forgedClient.Login(context.Background(), "morgan@riverside.example", "secret")
	require.NoError(t, err)

	_, err = client.Profile(context.Background(), bearer)
	var upstream *session.UpstreamError
	require.True(t, errors.As(err, &upstream))
	require.Equal(t, 401, upstream.StatusCode)
}

func TestLogoutRevokesToken(t *testing.T) {
	_, client := newStub(t)

	bearer, _, err := client.Login(context.Background(), "morgan@riverside.example", "secret")
	require.NoError(t, err)

	require.NoError(t, client.Logout(context.Background(), bearer))

	_, err = client.Profile(context.Background(), bearer)
	var upstream *session.UpstreamError
	require.True(t, errors.As(err, &upstream))
	require.Equal(t, 401, upstream.StatusCode)
}

func TestSeedDefaultsCoversEveryRole(t *testing.T) {
	stub := idstub.NewServer(idstub.Config{Secret: "test-secret"})
	require.NoError(t, stub.SeedDefaults("barkeep"))

	srv := httptest.NewServer(stub.Routes())
	t.Cleanup(srv.Close)
	client := idclient.New(srv.URL)

	emails := map[roles.Role]string{
		roles.SaasAdmin:        "saas@barkeep.dev",
		roles.TenantAdmin:      "tenant@barkeep.dev",
		roles.Manager:          "manager@barkeep.dev",
		roles.AssistantManager: "assistant@barkeep.dev",
		roles.Executive:        "exec@barkeep.dev",
	}
	for role, email := range emails {
		_, user, err := client.Login(context.Background(), email, "barkeep")
		require.NoError(t, err, "login for %s", role)
		require.Equal(t, role, user.Role)
	}
}

func TestPing(t *testing.T) {
	_, client := newStub(t)
	require.NoError(t, client.Ping(context.Background()))
}
