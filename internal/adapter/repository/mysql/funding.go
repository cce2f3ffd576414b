package mysql

import (
	"context"
	"time"

	"funfund-ledger/internal/domain/funding"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var _ funding.Repository = (*RequestRepository)(nil)

type RequestRepository struct {
	db   *gorm.DB
	inTx bool
}

func NewRequestRepository(db *gorm.DB) *RequestRepository { return &RequestRepository{db: db} }

// tx runs fn in a transaction unless the repository is already bound to one.
func (r *RequestRepository) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if r.inTx {
		return fn(r.db.WithContext(ctx))
	}
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *RequestRepository) Create(ctx context.Context, req *funding.FundingRequest) error {
	row := req.Clone()
	row.Version = 1
	return mapError(r.db.WithContext(ctx).Omit(clause.Associations).Create(row).Error)
}

func (r *RequestRepository) Load(ctx context.Context, id string) (*funding.FundingRequest, int64, error) {
	var out funding.FundingRequest
	err := preloadOwned(r.db.WithContext(ctx)).
		Where("id = ?", id).
		First(&out).Error
	if err != nil {
		return nil, 0, mapError(err)
	}
	return &out, out.Version, nil
}

// Commit is a compare-and-set on the version column. Owned records are
// append-only, so only the ones beyond what is stored are inserted; the
// schedule is replaced in full.
func (r *RequestRepository) Commit(ctx context.Context, id string, expected int64, next *funding.FundingRequest) (int64, error) {
	err := r.tx(ctx, func(tx *gorm.DB) error {
		res := tx.Model(&funding.FundingRequest{}).
			Where("id = ? AND version = ?", id, expected).
			Updates(map[string]any{
				"status":     next.Status,
				"purpose":    next.Purpose,
				"metadata":   next.Metadata,
				"version":    expected + 1,
				"updated_at": next.UpdatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var n int64
			if err := tx.Model(&funding.FundingRequest{}).Where("id = ?", id).Count(&n).Error; err != nil {
				return err
			}
			if n == 0 {
				return funding.ErrNotFound
			}
			return funding.ErrConcurrencyConflict
		}

		var stored int64
		if err := tx.Model(&funding.Disbursement{}).Where("request_id = ?", id).Count(&stored).Error; err != nil {
			return err
		}
		if fresh := next.Disbursements[min(int(stored), len(next.Disbursements)):]; len(fresh) > 0 {
			if err := tx.Create(&fresh).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&funding.Repayment{}).Where("request_id = ?", id).Count(&stored).Error; err != nil {
			return err
		}
		if fresh := next.Repayments[min(int(stored), len(next.Repayments)):]; len(fresh) > 0 {
			if err := tx.Create(&fresh).Error; err != nil {
				return err
			}
		}

		if err := tx.Where("request_id = ?", id).Delete(&funding.ScheduleEntry{}).Error; err != nil {
			return err
		}
		if len(next.Schedule) > 0 {
			entries := append([]funding.ScheduleEntry(nil), next.Schedule...)
			for i := range entries {
				entries[i].RequestID = id
			}
			if err := tx.Create(&entries).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, mapError(err)
	}
	return expected + 1, nil
}

func (r *RequestRepository) List(ctx context.Context, orgID string, status funding.Status) ([]funding.FundingRequest, error) {
	q := preloadOwned(r.db.WithContext(ctx)).Where("organization_id = ?", orgID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	out := []funding.FundingRequest{}
	if err := q.Order("created_at DESC, id ASC").Find(&out).Error; err != nil {
		return nil, mapError(err)
	}
	return out, nil
}

type attentionRow struct {
	RequestID      string
	OrganizationID string
	Currency       string
	Seq            int
	DueDate        time.Time
	Amount         decimal.Decimal
	PaidToDate     decimal.Decimal
}

type sumRow struct {
	RequestID string
	Total     decimal.Decimal
}

func (r *RequestRepository) ListAttention(ctx context.Context, orgID string, now time.Time, within time.Duration) ([]funding.AttentionItem, error) {
	db := r.db.WithContext(ctx)
	cutoff := now.UTC().Add(within)

	q := db.Table("funding_schedule_entries AS s").
		Select("s.request_id, r.organization_id, r.currency, s.seq, s.due_date, s.amount, s.paid_to_date").
		Joins("JOIN funding_requests r ON r.id = s.request_id").
		Where("r.status = ? AND s.paid_to_date < s.amount AND s.due_date <= ?", funding.StatusDisbursed, cutoff)
	if orgID != "" {
		q = q.Where("r.organization_id = ?", orgID)
	}
	var rows []attentionRow
	if err := q.Order("s.due_date ASC, s.request_id ASC, s.seq ASC").Scan(&rows).Error; err != nil {
		return nil, mapError(err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(rows))
	seen := map[string]bool{}
	for _, row := range rows {
		if !seen[row.RequestID] {
			seen[row.RequestID] = true
			ids = append(ids, row.RequestID)
		}
	}
	disbursed, err := sums(db, &funding.Disbursement{}, ids)
	if err != nil {
		return nil, err
	}
	repaid, err := sums(db, &funding.Repayment{}, ids)
	if err != nil {
		return nil, err
	}

	out := make([]funding.AttentionItem, 0, len(rows))
	for _, row := range rows {
		exp := funding.MinorUnit(row.Currency)
		out = append(out, funding.AttentionItem{
			RequestID:      row.RequestID,
			OrganizationID: row.OrganizationID,
			Currency:       row.Currency,
			Seq:            row.Seq,
			DueDate:        row.DueDate.UTC(),
			Remaining:      row.Amount.Sub(row.PaidToDate).Round(exp),
			Outstanding:    disbursed[row.RequestID].Sub(repaid[row.RequestID]).Round(exp),
			Kind:           funding.Classify(row.DueDate, now),
		})
	}
	return out, nil
}

func sums(db *gorm.DB, model any, ids []string) (map[string]decimal.Decimal, error) {
	var rows []sumRow
	err := db.Model(model).
		Select("request_id, SUM(amount) AS total").
		Where("request_id IN ?", ids).
		Group("request_id").
		Scan(&rows).Error
	if err != nil {
		return nil, mapError(err)
	}
	out := make(map[string]decimal.Decimal, len(rows))
	for _, row := range rows {
		out[row.RequestID] = row.Total
	}
	return out, nil
}

func preloadOwned(db *gorm.DB) *gorm.DB {
	bySeq := func(db *gorm.DB) *gorm.DB { return db.Order("seq ASC") }
	return db.
		Preload("Disbursements", bySeq).
		Preload("Repayments", bySeq).
		Preload("Schedule", bySeq)
}
