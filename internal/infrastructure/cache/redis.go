package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const pingTimeout = 2 * time.Second

type Options struct {
	Addr     string
	Password string
	DB       int
	// MaxTries bounds the startup PING attempts; 0 means one.
	MaxTries uint
}

// OpenRedis returns a client that answered a PING. Startup pings are retried
// with exponential backoff; auth errors are not.
func OpenRedis(ctx context.Context, o Options) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: o.Addr, Password: o.Password, DB: o.DB})

	tries := o.MaxTries
	if tries == 0 {
		tries = 1
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		pctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		err := rdb.Ping(pctx).Err()
		if isAuthError(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(tries),
		backoff.WithNotify(func(err error, next time.Duration) {
			zerolog.Ctx(ctx).Warn().Err(err).Str("addr", o.Addr).Dur("retry_in", next).Msg("redis: ping failed")
		}),
	)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis %s: %w", o.Addr, err)
	}
	return rdb, nil
}

// isAuthError matches the server replies for a missing or wrong password.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, m := range []string{"NOAUTH", "WRONGPASS", "invalid password", "invalid username-password"} {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}
