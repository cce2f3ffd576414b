// Package app assembles the funding store for a given configuration. It is
// shared by the API server and the maintenance CLI.
package app

import (
	"context"
	"fmt"

	"funfund-ledger/internal/adapter/repository/memory"
	"funfund-ledger/internal/adapter/repository/mysql"
	"funfund-ledger/internal/config"
	"funfund-ledger/internal/domain/audit"
	"funfund-ledger/internal/domain/funding"
	"funfund-ledger/internal/domain/uow"
	"funfund-ledger/internal/infrastructure/db"
	ucFunding "funfund-ledger/internal/usecase/funding"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Backend is the storage side of the service: the request store, the audit
// trail reader and the unit of work that commits both together.
type Backend struct {
	Requests funding.Repository
	History  audit.Reader
	UoW      uow.UnitOfWork

	// DB is nil for the memory driver.
	DB *gorm.DB
}

// Open connects the configured driver. migrate controls schema migration for
// the SQL drivers.
func Open(ctx context.Context, cfg *config.Config, migrate bool) (*Backend, error) {
	log := zerolog.Ctx(ctx)

	var (
		gdb *gorm.DB
		err error
	)
	switch cfg.DBDriver {
	case config.DriverMemory:
		s := memory.New()
		log.Warn().Msg("using in-memory store, data is lost on exit")
		return &Backend{Requests: s, History: s, UoW: s}, nil
	case config.DriverSQLite:
		gdb, err = db.OpenSQLite(cfg.SQLitePath)
	case config.DriverMySQL:
		gdb, err = db.OpenGorm(ctx, cfg.MySQLDSN(), cfg.DBMaxTries)
	default:
		return nil, fmt.Errorf("unknown DB_DRIVER %q", cfg.DBDriver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDriver, err)
	}

	if migrate {
		if err := mysql.Migrate(gdb); err != nil {
			_ = closeDB(gdb)
			return nil, fmt.Errorf("migrate: %w", err)
		}
		log.Info().Str("driver", cfg.DBDriver).Msg("schema migrated")
	}

	return &Backend{
		Requests: mysql.NewRequestRepository(gdb),
		History:  mysql.NewAuditRepository(gdb),
		UoW:      mysql.NewGormUoW(gdb),
		DB:       gdb,
	}, nil
}

// Usecase builds the funding usecase on top of the backend.
func (b *Backend) Usecase() *ucFunding.Usecase {
	return ucFunding.NewUsecase(b.Requests, b.History, b.UoW)
}

// Ping checks the database connection. The memory driver is always up.
func (b *Backend) Ping(ctx context.Context) error {
	if b.DB == nil {
		return nil
	}
	sqlDB, err := b.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (b *Backend) Close() error {
	if b.DB == nil {
		return nil
	}
	return closeDB(b.DB)
}

func closeDB(gdb *gorm.DB) error {
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
