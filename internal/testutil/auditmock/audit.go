package auditmock

import (
	"context"
	"sync"

	"funfund-ledger/internal/domain/audit"
)

var (
	_ audit.Sink   = (*Sink)(nil)
	_ audit.Reader = (*Sink)(nil)
)

// Sink records everything emitted unless EmitFn says otherwise.
type Sink struct {
	EmitFn         func(ctx context.Context, rec audit.Record) error
	ListByEntityFn func(ctx context.Context, entity, entityID string) ([]audit.Record, error)

	mu      sync.Mutex
	Records []audit.Record
}

func (m *Sink) Emit(ctx context.Context, rec audit.Record) error {
	if m.EmitFn != nil {
		if err := m.EmitFn(ctx, rec); err != nil {
			return err
		}
	}
	m.mu.Lock()
	m.Records = append(m.Records, rec)
	m.mu.Unlock()
	return nil
}

func (m *Sink) ListByEntity(ctx context.Context, entity, entityID string) ([]audit.Record, error) {
	if m.ListByEntityFn != nil {
		return m.ListByEntityFn(ctx, entity, entityID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Record
	for _, r := range m.Records {
		if r.Entity == entity && r.EntityID == entityID {
			out = append(out, r)
		}
	}
	return out, nil
}
