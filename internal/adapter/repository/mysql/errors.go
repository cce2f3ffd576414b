package mysql

import (
	"context"
	"errors"
	"fmt"

	"funfund-ledger/internal/domain/funding"

	"gorm.io/gorm"
)

// mapError maps gorm errors onto the store's sentinel errors. Anything that
// is not a domain outcome is reported as ErrUnavailable.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var (
		ve *funding.ValidationError
		se *funding.StateError
		oe *funding.OverdrawError
	)
	switch {
	case errors.Is(err, funding.ErrNotFound),
		errors.Is(err, funding.ErrConcurrencyConflict),
		errors.Is(err, funding.ErrUnavailable),
		errors.As(err, &ve), errors.As(err, &se), errors.As(err, &oe):
		return err

	case errors.Is(err, gorm.ErrRecordNotFound):
		return funding.ErrNotFound

	case errors.Is(err, gorm.ErrDuplicatedKey):
		// Two writers raced past the version check on the same owned record.
		return fmt.Errorf("%w: %w", funding.ErrConcurrencyConflict, err)

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: query canceled: %w", funding.ErrUnavailable, err)

	default:
		return fmt.Errorf("%w: %w", funding.ErrUnavailable, err)
	}
}
