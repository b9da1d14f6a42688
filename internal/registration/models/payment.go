package models

import dErrors "entrypass/pkg/domain-errors"

// PaymentMethod is how a registration settles its fee.
type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "CASH"
	PaymentOnline      PaymentMethod = "ONLINE"
	PaymentNotRequired PaymentMethod = "NOT_REQUIRED"
)

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	switch m := PaymentMethod(s); m {
	case PaymentCash, PaymentOnline, PaymentNotRequired:
		return m, nil
	default:
		return "", dErrors.New(dErrors.CodeValidation, "payment_method must be CASH or ONLINE")
	}
}

// PaymentStatus is the payment state of a registration.
type PaymentStatus string

const (
	StatusNotRequired PaymentStatus = "NOT_REQUIRED"
	StatusUnpaid      PaymentStatus = "UNPAID"
	StatusPending     PaymentStatus = "PENDING"
	StatusPaid        PaymentStatus = "PAID"
)

// InitialStatus is the status a new registration starts in for a method.
func (m PaymentMethod) InitialStatus() PaymentStatus {
	switch m {
	case PaymentCash:
		return StatusUnpaid
	case PaymentOnline:
		return StatusPending
	default:
		return StatusNotRequired
	}
}

// CanTransitionTo encodes the only forward moves: UNPAID→PAID and PENDING→PAID.
// NOT_REQUIRED and PAID are terminal.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	return next == StatusPaid && (s == StatusUnpaid || s == StatusPending)
}

// AdmitsEntry reports whether check-in is allowed in this status.
func (s PaymentStatus) AdmitsEntry() bool {
	return s == StatusPaid || s == StatusNotRequired
}
