package audit

import (
	"context"
	"reflect"
	"sort"
	"time"
)

// EntityFundingRequest is the entity name audit viewers filter on.
const EntityFundingRequest = "funding_request"

// Diff partitions a before/after pair of snapshots.
type Diff struct {
	Changed map[string][2]any `json:"changed"`
	Added   map[string]any    `json:"added"`
	Removed []string          `json:"removed"`
}

// Empty reports whether nothing differs.
func (d Diff) Empty() bool {
	return len(d.Changed) == 0 && len(d.Added) == 0 && len(d.Removed) == 0
}

// Record is the shape read by the audit-trail viewer; do not change tags.
type Record struct {
	ID          string         `json:"id"`
	Entity      string         `json:"entity"`
	EntityID    string         `json:"entity_id"`
	ActorUserID string         `json:"actor_user_id"`
	Action      string         `json:"action"`
	Diff        Diff           `json:"diff"`
	Meta        map[string]any `json:"meta"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Sink accepts records. Implementations used inside a unit of work must
// persist atomically with the state change they describe.
type Sink interface {
	Emit(ctx context.Context, rec Record) error
}

// Reader lists records for an entity, oldest first.
type Reader interface {
	ListByEntity(ctx context.Context, entity, entityID string) ([]Record, error)
}

// ComputeDiff compares two flat snapshots. Maps and slices in the result are
// never nil so the JSON shape is stable.
func ComputeDiff(before, after map[string]any) Diff {
	d := Diff{
		Changed: map[string][2]any{},
		Added:   map[string]any{},
		Removed: []string{},
	}
	for k, a := range after {
		b, ok := before[k]
		switch {
		case !ok:
			d.Added[k] = a
		case !reflect.DeepEqual(b, a):
			d.Changed[k] = [2]any{b, a}
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			d.Removed = append(d.Removed, k)
		}
	}
	sort.Strings(d.Removed)
	return d
}
