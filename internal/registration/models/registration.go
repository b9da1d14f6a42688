package models

import (
	"time"

	"entrypass/pkg/domain"
)

// Registration is a group's entry booking. After insert only PaymentStatus,
// PaidAt and the one-time CredentialRef change.
type Registration struct {
	ID            domain.RegistrationID
	Code          string
	OwnerID       domain.UserID
	GroupSize     int
	PerPersonFee  Amount
	TotalFee      Amount
	PaymentMethod PaymentMethod
	PaymentStatus PaymentStatus
	CredentialRef string
	CreatedAt     time.Time
	PaidAt        *time.Time
}

// IsOwnedBy reports whether userID created the registration.
func (r *Registration) IsOwnedBy(userID domain.UserID) bool {
	return !userID.IsNil() && r.OwnerID == userID
}

// FeeSetting is one row of the fee configuration history. The row with the
// latest EnabledAt decides; if it is disabled, no fee is collected.
type FeeSetting struct {
	ID              string
	AmountPerPerson Amount
	Enabled         bool
	EnabledAt       time.Time
	UpdatedBy       domain.UserID
	CreatedAt       time.Time
}
