package rbac

import "fmt"

const (
	PermissionFetchEmails  = "email:fetch"
	PermissionSuggestTeam  = "email:suggest"
	PermissionAssignTeam   = "email:assign"
	PermissionReplayOutbox = "outbox:replay"
)

const (
	RoleViewer  = "viewer"
	RoleAnalyst = "analyst"
	RoleAdmin   = "admin"
)

var rolePermissions = map[string][]string{
	RoleViewer: {},
	RoleAnalyst: {
		PermissionFetchEmails,
		PermissionSuggestTeam,
		PermissionAssignTeam,
	},
	RoleAdmin: {
		PermissionFetchEmails,
		PermissionSuggestTeam,
		PermissionAssignTeam,
		PermissionReplayOutbox,
	},
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	_, ok := rolePermissions[role]
	return ok
}

func HasPermission(role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == permission {
			return true
		}
	}
	return false
}

// CheckPermission is HasPermission returning a *PermissionDeniedError.
func CheckPermission(operator, role, permission string) error {
	if !HasPermission(role, permission) {
		return &PermissionDeniedError{
			Operator:   operator,
			Role:       role,
			Permission: permission,
		}
	}
	return nil
}

type PermissionDeniedError struct {
	Operator   string
	Role       string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("role %q lacks permission %s", e.Role, e.Permission)
}
