package types

// Canonical admin permission strings.
const (
	PermManageUsers         = "manage_users"
	PermManageRoles         = "manage_roles"
	PermManageCourses       = "manage_courses"
	PermManageSubjects      = "manage_subjects"
	PermManageGrades        = "manage_grades"
	PermManageSettings      = "manage_settings"
	PermViewAuditLogs       = "view_audit_logs"
	PermManageAnnouncements = "manage_announcements"
	PermManageResources     = "manage_resources"
)

// AllPermissions lists every canonical permission, in a stable order.
func AllPermissions() []string {
	return []string{
		PermManageUsers,
		PermManageRoles,
		PermManageCourses,
		PermManageSubjects,
		PermManageGrades,
		PermManageSettings,
		PermViewAuditLogs,
		PermManageAnnouncements,
		PermManageResources,
	}
}

// legacy shorthand values accepted on input and mapped to canonical form
var permissionAliases = map[string]string{
	"users":         PermManageUsers,
	"roles":         PermManageRoles,
	"courses":       PermManageCourses,
	"subjects":      PermManageSubjects,
	"grades":        PermManageGrades,
	"settings":      PermManageSettings,
	"audit":         PermViewAuditLogs,
	"audit_logs":    PermViewAuditLogs,
	"announcements": PermManageAnnouncements,
	"resources":     PermManageResources,
}

// NormalizePermissions maps legacy aliases to their canonical values.
// Unrecognized strings pass through unchanged rather than being dropped.
func NormalizePermissions(perms []string) []string {
	if len(perms) == 0 {
		return perms
	}
	out := make([]string, len(perms))
	for i, p := range perms {
		if canonical, ok := permissionAliases[p]; ok {
			out[i] = canonical
			continue
		}
		out[i] = p
	}
	return out
}

// DefaultPermissions returns the permission set granted to an admin of the
// given role type when none were assigned explicitly.
func DefaultPermissions(roleType AdminRoleType) []string {
	if roleType == AdminSuper {
		return AllPermissions()
	}
	return []string{
		PermManageUsers,
		PermManageCourses,
		PermManageGrades,
		PermManageSettings,
	}
}

// roleRank orders roles by privilege for minimum-role checks.
var roleRank = map[Role]int{
	RoleStudent: 1,
	RoleTeacher: 2,
	RoleAdmin:   3,
}

// RoleRank returns the privilege rank of r, or 0 for unknown roles.
func RoleRank(r Role) int {
	return roleRank[r]
}

// RoleAtLeast reports whether r is at least as privileged as required.
func RoleAtLeast(r, required Role) bool {
	return roleRank[r] >= roleRank[required] && roleRank[r] > 0
}

// HasPermission reports whether perm is present in the identity's granted
// set. Super admins pass unconditionally.
func (i Identity) HasPermission(perm string) bool {
	if i.Role != RoleAdmin {
		return false
	}
	if i.RoleType == AdminSuper {
		return true
	}
	for _, p := range i.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// HasAnyPermission reports whether at least one of perms is granted.
func (i Identity) HasAnyPermission(perms ...string) bool {
	if i.Role == RoleAdmin && i.RoleType == AdminSuper {
		return true
	}
	for _, p := range perms {
		if i.HasPermission(p) {
			return true
		}
	}
	return false
}
