package fundingmock

import (
	"context"
	"time"

	domain "funfund-ledger/internal/domain/funding"
)

var _ domain.Repository = (*Repo)(nil)

// Repo is a function-backed mock that satisfies domain.Repository.
// Unset reads return context.Canceled; unset writes succeed.
type Repo struct {
	CreateFn        func(ctx context.Context, r *domain.FundingRequest) error
	LoadFn          func(ctx context.Context, id string) (*domain.FundingRequest, int64, error)
	CommitFn        func(ctx context.Context, id string, expected int64, next *domain.FundingRequest) (int64, error)
	ListFn          func(ctx context.Context, orgID string, status domain.Status) ([]domain.FundingRequest, error)
	ListAttentionFn func(ctx context.Context, orgID string, now time.Time, within time.Duration) ([]domain.AttentionItem, error)
}

func (m *Repo) Create(ctx context.Context, r *domain.FundingRequest) error {
	if m.CreateFn != nil {
		return m.CreateFn(ctx, r)
	}
	return nil
}

func (m *Repo) Load(ctx context.Context, id string) (*domain.FundingRequest, int64, error) {
	if m.LoadFn != nil {
		return m.LoadFn(ctx, id)
	}
	return nil, 0, context.Canceled
}

func (m *Repo) Commit(ctx context.Context, id string, expected int64, next *domain.FundingRequest) (int64, error) {
	if m.CommitFn != nil {
		return m.CommitFn(ctx, id, expected, next)
	}
	return expected + 1, nil
}

func (m *Repo) List(ctx context.Context, orgID string, status domain.Status) ([]domain.FundingRequest, error) {
	if m.ListFn != nil {
		return m.ListFn(ctx, orgID, status)
	}
	return nil, context.Canceled
}

func (m *Repo) ListAttention(ctx context.Context, orgID string, now time.Time, within time.Duration) ([]domain.AttentionItem, error) {
	if m.ListAttentionFn != nil {
		return m.ListAttentionFn(ctx, orgID, now, within)
	}
	return nil, context.Canceled
}
