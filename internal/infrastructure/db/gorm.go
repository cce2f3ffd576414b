package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenGorm connects to MySQL, retrying the initial ping with exponential
// backoff so the service can start before the database is ready.
func OpenGorm(ctx context.Context, dsn string, maxTries uint) (*gorm.DB, error) {
	return OpenWithRetry(ctx, func() gorm.Dialector { return mysql.Open(dsn) }, maxTries)
}

// Pool holds the database/sql pool limits applied after open.
type Pool struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

var DefaultPool = Pool{MaxOpen: 30, MaxIdle: 10, MaxLifetime: 30 * time.Minute, MaxIdleTime: 10 * time.Minute}

// SQLitePool keeps the one connection forever: a ":memory:" database lives
// only as long as its connection.
var SQLitePool = Pool{MaxOpen: 1, MaxIdle: 1}

func (p Pool) apply(sqlDB *sql.DB) {
	sqlDB.SetMaxOpenConns(p.MaxOpen)
	sqlDB.SetMaxIdleConns(p.MaxIdle)
	sqlDB.SetConnMaxLifetime(p.MaxLifetime)
	sqlDB.SetConnMaxIdleTime(p.MaxIdleTime)
}

// OpenSQLite opens a file (or ":memory:") database. SQLite allows a single
// writer, so the pool is pinned to one connection.
func OpenSQLite(path string) (*gorm.DB, error) {
	return openWithPool(sqlite.Open(path), SQLitePool)
}

// OpenWithRetry calls dial for every attempt, since a failed attempt closes
// the pool the dialector opened.
func OpenWithRetry(ctx context.Context, dial func() gorm.Dialector, maxTries uint) (*gorm.DB, error) {
	if maxTries == 0 {
		maxTries = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, func() (*gorm.DB, error) {
		return OpenGormWithDialector(dial())
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			zerolog.Ctx(ctx).Warn().Err(err).Dur("retry_in", next).Msg("gorm: connect failed")
		}),
	)
}

// OpenGormWithDialector opens and pings once. The pool is closed when the
// ping fails.
func OpenGormWithDialector(dial gorm.Dialector) (*gorm.DB, error) {
	return openWithPool(dial, DefaultPool)
}

func openWithPool(dial gorm.Dialector, pool Pool) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Warn),
		TranslateError:       true,
		DisableAutomaticPing: true, // pinged below, once
	}
	db, err := gorm.Open(dial, cfg)
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	pool.apply(sqlDB)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}
