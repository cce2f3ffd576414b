// Package memory is a process-local Request Store, audit sink and unit of
// work. It backs DB_DRIVER=memory and the handler and usecase tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"funfund-ledger/internal/domain/audit"
	"funfund-ledger/internal/domain/funding"
	"funfund-ledger/internal/domain/uow"
)

var (
	_ funding.Repository = (*Store)(nil)
	_ audit.Sink         = (*Store)(nil)
	_ audit.Reader       = (*Store)(nil)
	_ uow.UnitOfWork     = (*Store)(nil)
)

type Store struct {
	mu       sync.RWMutex
	requests map[string]*funding.FundingRequest
	records  []audit.Record

	// txMu serializes units of work; mu guards the maps themselves.
	txMu sync.Mutex
}

func New() *Store {
	return &Store{requests: map[string]*funding.FundingRequest{}}
}

func (s *Store) Create(ctx context.Context, r *funding.FundingRequest) error {
	return s.apply(map[string]write{r.ID: {create: true, next: stored(r, 1)}}, nil)
}

func (s *Store) Load(ctx context.Context, id string) (*funding.FundingRequest, int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, 0, funding.ErrNotFound
	}
	return r.Clone(), r.Version, nil
}

func (s *Store) Commit(ctx context.Context, id string, expected int64, next *funding.FundingRequest) (int64, error) {
	if err := s.apply(map[string]write{id: {expected: expected, next: stored(next, expected+1)}}, nil); err != nil {
		return 0, err
	}
	return expected + 1, nil
}

func (s *Store) List(ctx context.Context, orgID string, status funding.Status) ([]funding.FundingRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []funding.FundingRequest{}
	for _, r := range s.requests {
		if r.OrganizationID != orgID || (status != "" && r.Status != status) {
			continue
		}
		out = append(out, *r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListAttention(ctx context.Context, orgID string, now time.Time, within time.Duration) ([]funding.AttentionItem, error) {
	cutoff := now.UTC().Add(within)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []funding.AttentionItem
	for _, r := range s.requests {
		if r.Status != funding.StatusDisbursed || (orgID != "" && r.OrganizationID != orgID) {
			continue
		}
		outstanding := r.Outstanding()
		for _, e := range r.Schedule {
			if !e.Remaining().IsPositive() || e.DueDate.After(cutoff) {
				continue
			}
			out = append(out, funding.AttentionItem{
				RequestID:      r.ID,
				OrganizationID: r.OrganizationID,
				Currency:       r.Currency,
				Seq:            e.Seq,
				DueDate:        e.DueDate,
				Remaining:      e.Remaining(),
				Outstanding:    outstanding,
				Kind:           funding.Classify(e.DueDate, now),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if !a.DueDate.Equal(b.DueDate) {
			return a.DueDate.Before(b.DueDate)
		}
		if a.RequestID != b.RequestID {
			return a.RequestID < b.RequestID
		}
		return a.Seq < b.Seq
	})
	return out, nil
}

func (s *Store) Emit(ctx context.Context, rec audit.Record) error {
	return s.apply(nil, []audit.Record{rec})
}

func (s *Store) ListByEntity(ctx context.Context, entity, entityID string) ([]audit.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Record
	for _, rec := range s.records {
		if rec.Entity == entity && rec.EntityID == entityID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// WithinTx stages every write fn makes and applies them together once fn
// returns nil. Versions are checked again when applying, so a direct Commit
// that raced the transaction still surfaces as a conflict.
func (s *Store) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	t := &tx{s: s, writes: map[string]write{}}
	if err := fn(uow.Repos{Requests: t, Audit: t}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", funding.ErrUnavailable, err)
	}
	return s.apply(t.writes, t.records)
}

type write struct {
	create   bool
	expected int64
	next     *funding.FundingRequest
}

// apply installs all writes and records, or none of them.
func (s *Store) apply(writes map[string]write, records []audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, w := range writes {
		cur, ok := s.requests[id]
		switch {
		case w.create && ok:
			return fmt.Errorf("%w: request %s already exists", funding.ErrConcurrencyConflict, id)
		case w.create:
		case !ok:
			return funding.ErrNotFound
		case cur.Version != w.expected:
			return funding.ErrConcurrencyConflict
		}
	}
	for id, w := range writes {
		s.requests[id] = w.next
	}
	s.records = append(s.records, records...)
	return nil
}

func stored(r *funding.FundingRequest, version int64) *funding.FundingRequest {
	c := r.Clone()
	c.Version = version
	return c
}

// tx is the view handed to a unit of work: reads see its own staged writes.
type tx struct {
	s       *Store
	writes  map[string]write
	records []audit.Record
}

func (t *tx) Create(ctx context.Context, r *funding.FundingRequest) error {
	if _, ok := t.writes[r.ID]; ok {
		return fmt.Errorf("%w: request %s already exists", funding.ErrConcurrencyConflict, r.ID)
	}
	if _, _, err := t.s.Load(ctx, r.ID); err == nil {
		return fmt.Errorf("%w: request %s already exists", funding.ErrConcurrencyConflict, r.ID)
	}
	t.writes[r.ID] = write{create: true, next: stored(r, 1)}
	return nil
}

func (t *tx) Load(ctx context.Context, id string) (*funding.FundingRequest, int64, error) {
	if w, ok := t.writes[id]; ok {
		return w.next.Clone(), w.next.Version, nil
	}
	return t.s.Load(ctx, id)
}

func (t *tx) Commit(ctx context.Context, id string, expected int64, next *funding.FundingRequest) (int64, error) {
	w, staged := t.writes[id]
	if !staged {
		_, v, err := t.s.Load(ctx, id)
		if err != nil {
			return 0, err
		}
		w = write{expected: v}
		w.next = &funding.FundingRequest{Version: v}
	}
	if w.next.Version != expected {
		return 0, funding.ErrConcurrencyConflict
	}
	w.next = stored(next, expected+1)
	t.writes[id] = w
	return expected + 1, nil
}

func (t *tx) List(ctx context.Context, orgID string, status funding.Status) ([]funding.FundingRequest, error) {
	return t.s.List(ctx, orgID, status)
}

func (t *tx) ListAttention(ctx context.Context, orgID string, now time.Time, within time.Duration) ([]funding.AttentionItem, error) {
	return t.s.ListAttention(ctx, orgID, now, within)
}

func (t *tx) Emit(ctx context.Context, rec audit.Record) error {
	t.records = append(t.records, rec)
	return nil
}
