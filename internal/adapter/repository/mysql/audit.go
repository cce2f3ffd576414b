package mysql

import (
	"context"
	"encoding/json"
	"time"

	"funfund-ledger/internal/domain/audit"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	_ audit.Sink   = (*AuditRepository)(nil)
	_ audit.Reader = (*AuditRepository)(nil)
)

// auditRecord keeps insertion order in an auto-increment key; RecordID is
// the public id.
type auditRecord struct {
	ID          uint64            `gorm:"primaryKey;column:id"`
	RecordID    string            `gorm:"size:32;not null;uniqueIndex;column:record_id"`
	Entity      string            `gorm:"size:64;not null;index:idx_audit_records_entity,priority:1;column:entity"`
	EntityID    string            `gorm:"size:64;not null;index:idx_audit_records_entity,priority:2;column:entity_id"`
	ActorUserID string            `gorm:"size:64;column:actor_user_id"`
	Action      string            `gorm:"size:32;not null;column:action"`
	Diff        datatypes.JSON    `gorm:"not null;column:diff"`
	Meta        datatypes.JSONMap `gorm:"column:meta"`
	CreatedAt   time.Time         `gorm:"column:created_at"`
}

func (auditRecord) TableName() string { return "audit_records" }

type AuditRepository struct{ db *gorm.DB }

func NewAuditRepository(db *gorm.DB) *AuditRepository { return &AuditRepository{db: db} }

func (r *AuditRepository) Emit(ctx context.Context, rec audit.Record) error {
	diff, err := json.Marshal(rec.Diff)
	if err != nil {
		return err
	}
	row := auditRecord{
		RecordID:    rec.ID,
		Entity:      rec.Entity,
		EntityID:    rec.EntityID,
		ActorUserID: rec.ActorUserID,
		Action:      rec.Action,
		Diff:        datatypes.JSON(diff),
		Meta:        datatypes.JSONMap(rec.Meta),
		CreatedAt:   rec.CreatedAt,
	}
	return mapError(r.db.WithContext(ctx).Create(&row).Error)
}

func (r *AuditRepository) ListByEntity(ctx context.Context, entity, entityID string) ([]audit.Record, error) {
	var rows []auditRecord
	err := r.db.WithContext(ctx).
		Where("entity = ? AND entity_id = ?", entity, entityID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, mapError(err)
	}

	out := make([]audit.Record, 0, len(rows))
	for _, row := range rows {
		rec := audit.Record{
			ID:          row.RecordID,
			Entity:      row.Entity,
			EntityID:    row.EntityID,
			ActorUserID: row.ActorUserID,
			Action:      row.Action,
			Meta:        map[string]any(row.Meta),
			CreatedAt:   row.CreatedAt.UTC(),
		}
		if err := json.Unmarshal(row.Diff, &rec.Diff); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
