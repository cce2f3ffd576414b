package uow

import (
	"context"

	"funfund-ledger/internal/domain/audit"
	"funfund-ledger/internal/domain/funding"
)

// Repos are bound to one transaction.
type Repos struct {
	Requests funding.Repository
	Audit    audit.Sink
}

type UnitOfWork interface {
	// WithinTx commits everything fn wrote through r, or nothing when fn
	// (or the commit) fails.
	WithinTx(ctx context.Context, fn func(r Repos) error) error
}
