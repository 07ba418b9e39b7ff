package roles_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/barkeep-app/barkeep/internal/roles"
	_ "github.com/barkeep-app/barkeep/testing"
)

func TestParse(t *testing.T) {
	for _, role := range roles.All() {
		parsed, ok := roles.Parse(string(role))
		require.True(t, ok, "role %s should parse", role)
		require.Equal(t, role, parsed)
	}

	_, ok := roles.Parse("regional_overlord")
	require.False(t, ok)
	_, ok = roles.Parse("")
	require.False(t, ok)
}

func TestLandingRoute(t *testing.T) {
	cases := []struct {
		role roles.Role
		want string
	}{
		{roles.SaasAdmin, "/saas-admin/dashboard"},
		{roles.TenantAdmin, "/tenant-admin/dashboard"},
		{roles.Manager, "/manager/dashboard"},
		{roles.AssistantManager, "/assistant-manager/dashboard"},
		{roles.Executive, "/executive/dashboard"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, roles.LandingRoute(tc.role))
	}
}

func TestLandingRouteUnknownRoleFallsBack(t *testing.T) {
	require.Equal(t, roles.DefaultLanding, roles.LandingRoute(roles.Role("intern")))
	require.Equal(t, roles.DefaultLanding, roles.LandingRoute(roles.Role("")))
}

func TestMember(t *testing.T) {
	set := []roles.Role{roles.Manager, roles.TenantAdmin}
	require.True(t, roles.Member(roles.Manager, set))
	require.True(t, roles.Member(roles.TenantAdmin, set))
	require.False(t, roles.Member(roles.Executive, set))
	require.False(t, roles.Member(roles.Manager, nil))
}
