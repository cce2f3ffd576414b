package mysql

import (
	"funfund-ledger/internal/domain/funding"

	"gorm.io/gorm"
)

// Migrate creates or updates every table the store writes to.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&funding.FundingRequest{},
		&funding.Disbursement{},
		&funding.Repayment{},
		&funding.ScheduleEntry{},
		&auditRecord{},
	)
}
