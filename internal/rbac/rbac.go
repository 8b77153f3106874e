package rbac

// Role constants
const (
	RoleAdmin   = "admin"
	RoleService = "service"
	RoleUser    = "user"
)

// Permission constants
const (
	PermWriteAudit  = "audit:write"
	PermReadAudit   = "audit:read"
	PermStreamAudit = "audit:stream"
)

// RolePermissions defines what each role can do.
var RolePermissions = map[string][]string{
	RoleAdmin: {
		PermWriteAudit, PermReadAudit, PermStreamAudit,
	},
	RoleService: {
		PermWriteAudit,
	},
	// end users hold no audit permission; their actions are recorded by
	// services and admins
	RoleUser: {},
}

// Normalize maps an empty role to RoleUser.
func Normalize(role string) string {
	if role == "" {
		return RoleUser
	}
	return role
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role, permission string) bool {
	perms, ok := RolePermissions[Normalize(role)]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == permission {
			return true
		}
	}
	return false
}

// IsReadOperation reports whether permission exposes stored entries.
func IsReadOperation(permission string) bool {
	return permission == PermReadAudit || permission == PermStreamAudit
}
