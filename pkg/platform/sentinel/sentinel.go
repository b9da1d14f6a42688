// Package sentinel names the storage facts stores report. Services translate
// them into domain errors; handlers never see them.
package sentinel

import "errors"

var (
	// ErrNotFound: no row for the key.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyUsed: a unique key is taken (visit code, visit day, checkout ref).
	ErrAlreadyUsed = errors.New("already used")
	// ErrInvalidState: a conditional write found the row in another state.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnavailable: the backing service did not answer.
	ErrUnavailable = errors.New("unavailable")
)
