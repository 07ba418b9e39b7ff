package roles

// LoginRoute is where unauthenticated navigation lands.
const LoginRoute = "/auth/login"

// DefaultLanding is served when the role is missing or unrecognized.
const DefaultLanding = "/dashboard"

// landingRoutes is the single source of truth for role-keyed redirects.
// Both the login-success redirect and the route guard consult it, so the
// two can never drift apart.
var landingRoutes = map[Role]string{
	SaasAdmin:        "/saas-admin/dashboard",
	TenantAdmin:      "/tenant-admin/dashboard",
	Manager:          "/manager/dashboard",
	AssistantManager: "/assistant-manager/dashboard",
	Executive:        "/executive/dashboard",
}

// LandingRoute returns the default landing page for a role.
func LandingRoute(r Role) string {
	if route, ok := landingRoutes[r]; ok {
		return route
	}
	return DefaultLanding
}
