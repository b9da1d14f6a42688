package domain

import dErrors "entrypass/pkg/domain-errors"

// Role is the capability class the identity provider assigns to an account.
type Role string

const (
	RoleVisitor Role = "visitor"
	RoleStaff   Role = "staff"
	RoleAdmin   Role = "admin"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleVisitor, RoleStaff, RoleAdmin:
		return r, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
}

// Actor is the already-authenticated caller every core operation receives.
type Actor struct {
	UserID UserID
	Role   Role
}

// IsStaff reports whether the actor may perform counter operations
// (check-in, mark as paid, walk-ins, payment polls). Admins are staff.
func (a Actor) IsStaff() bool {
	return a.Role == RoleStaff || a.Role == RoleAdmin
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// CanView reports whether the actor may read a resource owned by owner.
func (a Actor) CanView(owner UserID) bool {
	return a.IsStaff() || (!a.UserID.IsNil() && a.UserID == owner)
}

// RequireStaff returns a forbidden error unless the actor is staff.
func (a Actor) RequireStaff() error {
	if a.UserID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if !a.IsStaff() {
		return dErrors.New(dErrors.CodeForbidden, "staff role required")
	}
	return nil
}

// RequireAuthenticated returns an unauthorized error for anonymous actors.
func (a Actor) RequireAuthenticated() error {
	if a.UserID.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	return nil
}
