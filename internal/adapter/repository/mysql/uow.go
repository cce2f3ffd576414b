package mysql

import (
	"context"

	"funfund-ledger/internal/domain/uow"

	"gorm.io/gorm"
)

var _ uow.UnitOfWork = (*GormUoW)(nil)

type GormUoW struct{ db *gorm.DB }

func NewGormUoW(db *gorm.DB) *GormUoW { return &GormUoW{db: db} }

func (u *GormUoW) WithinTx(ctx context.Context, fn func(r uow.Repos) error) error {
	err := u.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := uow.Repos{
			Requests: &RequestRepository{db: tx, inTx: true},
			Audit:    &AuditRepository{db: tx},
		}
		return fn(r)
	})
	return mapError(err)
}
