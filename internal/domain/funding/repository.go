package funding

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Repository is the versioned Request Store.
type Repository interface {
	// Create inserts a new aggregate at version 1.
	Create(ctx context.Context, r *FundingRequest) error
	// Load returns the aggregate with its owned records and stored version.
	Load(ctx context.Context, id string) (*FundingRequest, int64, error)
	// Commit replaces the stored aggregate if the stored version still equals
	// expected, returning the new version (expected+1).
	Commit(ctx context.Context, id string, expected int64, next *FundingRequest) (int64, error)

	List(ctx context.Context, orgID string, status Status) ([]FundingRequest, error)
	// ListAttention returns unpaid installments of disbursed requests due on
	// or before now+within, oldest first.
	ListAttention(ctx context.Context, orgID string, now time.Time, within time.Duration) ([]AttentionItem, error)
}

type AttentionKind string

const (
	AttentionOverdue AttentionKind = "overdue"
	AttentionDueSoon AttentionKind = "due_soon"
)

// AttentionItem is one unpaid installment surfaced to SLA tooling.
type AttentionItem struct {
	RequestID      string
	OrganizationID string
	Currency       string
	Seq            int
	DueDate        time.Time
	Remaining      decimal.Decimal
	Outstanding    decimal.Decimal
	Kind           AttentionKind
}

// Classify marks an installment overdue when its due date is before today.
func Classify(due, now time.Time) AttentionKind {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if due.Before(today) {
		return AttentionOverdue
	}
	return AttentionDueSoon
}
