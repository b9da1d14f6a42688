// Package domain holds identifier primitives shared across modules.
//
// IDs are distinct named UUID types so a RegistrationID can never be passed where a
// UserID is expected. Construct them from external input with the Parse* functions.
package domain

import (
	"github.com/google/uuid"

	dErrors "entrypass/pkg/domain-errors"
)

type (
	// UserID identifies an account in the external identity provider (visitor or staff).
	UserID uuid.UUID
	// RegistrationID identifies a registration row. The visit code is the public key.
	RegistrationID uuid.UUID
	// PaymentID identifies a payment record (one checkout attempt).
	PaymentID uuid.UUID
	// CheckInID identifies a check-in log entry.
	CheckInID uuid.UUID
)

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, label+" is required")
	}
	if len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid "+label)
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+label)
	}
	return parsed, nil
}

func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user id")
	return UserID(u), err
}

func ParseRegistrationID(s string) (RegistrationID, error) {
	u, err := parseUUID(s, "registration id")
	return RegistrationID(u), err
}

func ParsePaymentID(s string) (PaymentID, error) {
	u, err := parseUUID(s, "payment id")
	return PaymentID(u), err
}

func ParseCheckInID(s string) (CheckInID, error) {
	u, err := parseUUID(s, "check-in id")
	return CheckInID(u), err
}

func (id UserID) String() string         { return uuid.UUID(id).String() }
func (id RegistrationID) String() string { return uuid.UUID(id).String() }
func (id PaymentID) String() string      { return uuid.UUID(id).String() }
func (id CheckInID) String() string      { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id RegistrationID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

func NewRegistrationID() RegistrationID { return RegistrationID(uuid.New()) }
func NewPaymentID() PaymentID           { return PaymentID(uuid.New()) }
func NewCheckInID() CheckInID           { return CheckInID(uuid.New()) }
