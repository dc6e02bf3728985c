package auth

import "slices"

// Permission is a named capability.
type Permission string

// Permission constants.
const (
	PermCameraRead      Permission = "camera:read"
	PermCameraOperate   Permission = "camera:operate"
	PermCameraConfigure Permission = "camera:configure"
	PermSettingsManage  Permission = "settings:manage"
)

// rolePermissions is the single source of truth for the authorisation model.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermCameraRead,
	},
	RoleOperator: {
		PermCameraRead,
		PermCameraOperate,
	},
	RoleAdmin: {
		PermCameraRead,
		PermCameraOperate,
		PermCameraConfigure,
		PermSettingsManage,
	},
}

// HasPermission reports whether role grants perm.
func HasPermission(role Role, perm Permission) bool {
	return slices.Contains(rolePermissions[role], perm)
}

// PermissionsForRole returns a copy of the permissions granted to role.
func PermissionsForRole(role Role) []Permission {
	return slices.Clone(rolePermissions[role])
}
