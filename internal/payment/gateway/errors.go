package gateway

import (
	"errors"
	"fmt"

	dErrors "entrypass/pkg/domain-errors"
)

// Category classifies a gateway failure.
type Category string

const (
	CategoryTimeout     Category = "timeout"
	CategoryUnavailable Category = "unavailable"
	CategoryAuth        Category = "auth"
	CategoryRejected    Category = "rejected"
	CategoryMalformed   Category = "malformed"
	CategoryCircuitOpen Category = "circuit_open"
)

// Error is a gateway failure. Retryable failures get one more attempt.
type Error struct {
	Category   Category
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("paymongo %s (status %d): %v", e.Category, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("paymongo %s: %v", e.Category, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrUnsupportedEvent marks a well-formed webhook of a type we do not act on.
var ErrUnsupportedEvent = errors.New("unsupported webhook event")

// ErrInvalidSignature marks a webhook whose signature does not verify.
var ErrInvalidSignature = dErrors.New(dErrors.CodeUnauthorized, "invalid webhook signature")

func upstream(err *Error, msg string) error {
	return dErrors.Wrap(err, dErrors.CodeUpstream, msg)
}

// IsRetryable reports whether err is a gateway failure worth one more attempt.
func IsRetryable(err error) bool {
	var gwErr *Error
	return errors.As(err, &gwErr) && gwErr.Retryable
}
