package rbac

const (
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// Default policy. Admins hold every permission.
var RolePermissions = map[string][]string{
	RoleStudent: {
		"quiz:view",
		"attempt:create",
		"attempt:answer",
		"attempt:submit",
		"attempt:view-own",
		"profile:update",
		"user:change_password",
	},
	RoleAdmin: {
		"*",
	},
}

// Roles lists the assignable roles.
func Roles() []string { return []string{RoleStudent, RoleAdmin} }

func ValidRole(role string) bool {
	_, ok := RolePermissions[role]
	return ok
}
