package auth

import (
	"errors"
	"slices"
)

// Role is an authorisation tier.
type Role string

const (
	// RoleViewer can read camera state and snapshots.
	RoleViewer Role = "viewer"

	// RoleOperator can additionally drive cameras: PTZ, presets, switches,
	// LED and IR.
	RoleOperator Role = "operator"

	// RoleAdmin can also add and remove cameras, change abilities, reboot
	// and edit provider settings.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every role.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	return slices.Contains(ValidRoles, r)
}

// Errors returned by token handling.
var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrInvalidRole  = errors.New("auth: invalid role")
	ErrForbidden    = errors.New("auth: insufficient permissions")
)
