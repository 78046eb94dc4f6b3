package board

// Role is a viewer's role on a board.
type Role string

const (
	RoleOwner    Role = "owner"
	RoleAdmin    Role = "admin"
	RoleMember   Role = "member"
	RoleObserver Role = "observer"
	RoleNone     Role = "none"
)

// CanEdit reports whether the role may mutate the board.
func (r Role) CanEdit() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember:
		return true
	}
	return false
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleMember, RoleObserver, RoleNone:
		return true
	}
	return false
}

// Authorize returns ErrPermissionDenied unless the role may edit.
func Authorize(r Role) error {
	if !r.CanEdit() {
		return ErrPermissionDenied
	}
	return nil
}
