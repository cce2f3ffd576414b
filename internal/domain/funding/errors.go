package funding

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound            = errors.New("funding request not found")
	ErrConcurrencyConflict = errors.New("funding request was modified concurrently")
	// ErrUnavailable marks store or audit sink failures. Callers may retry.
	ErrUnavailable = errors.New("funding store unavailable")
)

// ValidationError is malformed or out-of-range input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, msg string) error { return &ValidationError{Field: field, Message: msg} }

// StateError is an operation attempted from a status that does not allow it.
type StateError struct {
	Status    Status
	Operation Operation
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s a funding request in status %q", e.Operation, e.Status)
}

// OverdrawError is a disbursement beyond the principal or a repayment beyond
// the outstanding balance. Amounts are never clamped.
type OverdrawError struct {
	Operation Operation
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *OverdrawError) Error() string {
	return fmt.Sprintf("%s of %s exceeds available %s", e.Operation, e.Requested, e.Available)
}
