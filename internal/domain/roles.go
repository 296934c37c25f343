package domain

// Role is the closed set of caller roles. Capability checks live here so
// call sites never compare role strings directly.
type Role string

const (
	RoleSiteEngineer   Role = "site_engineer"
	RoleClient         Role = "client"
	RoleProjectManager Role = "project_manager"
	RoleAdmin          Role = "admin"
	RoleSuperAdmin     Role = "super_admin"
)

func (r Role) IsValid() bool {
	switch r {
	case RoleSiteEngineer, RoleClient, RoleProjectManager, RoleAdmin, RoleSuperAdmin:
		return true
	}
	return false
}

// IsAdminCapable reports whether the role may manage milestones, checklist
// items, projects and members.
func (r Role) IsAdminCapable() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// CanReview reports whether the role may move an inspection from submitted
// to reviewed.
func (r Role) CanReview() bool {
	return r == RoleAdmin || r == RoleSuperAdmin || r == RoleProjectManager
}

// SeesAllInspections reports whether the role reads inspections without a
// visibility restriction beyond project scope.
func (r Role) SeesAllInspections() bool {
	return r == RoleAdmin || r == RoleSuperAdmin || r == RoleProjectManager
}
