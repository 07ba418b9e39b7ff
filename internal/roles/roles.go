package roles

import "strings"

// Role identifies one of the dashboard role tiers. Every authenticated user
// carries exactly one role for the lifetime of their session.
type Role string

const (
	SaasAdmin        Role = "saas_admin"
	TenantAdmin      Role = "tenant_admin"
	Manager          Role = "manager"
	AssistantManager Role = "assistant_manager"
	Executive        Role = "executive"
)

// All returns the known roles in privilege order.
func All() []Role {
	return []Role{SaasAdmin, TenantAdmin, Manager, AssistantManager, Executive}
}

// Parse normalizes a raw role claim. Unknown values report false.
func Parse(raw string) (Role, bool) {
	r := Role(strings.TrimSpace(strings.ToLower(raw)))
	if r.Known() {
		return r, true
	}
	return "", false
}

// Known reports whether the role is one of the defined tiers.
func (r Role) Known() bool {
	switch r {
	case SaasAdmin, TenantAdmin, Manager, AssistantManager, Executive:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}

// Member reports whether r appears in the given set.
func Member(r Role, set []Role) bool {
	for _, candidate := range set {
		if candidate == r {
			return true
		}
	}
	return false
}
