package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	httpadp "funfund-ledger/internal/adapter/http"
	mw "funfund-ledger/internal/adapter/middleware"
	"funfund-ledger/internal/app"
	"funfund-ledger/internal/config"
	"funfund-ledger/internal/infrastructure/cache"
	"funfund-ledger/internal/logger"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.Debug)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	// amounts go over the wire as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	backend, err := app.Open(ctx, cfg, cfg.DBAutoMigrate)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}
	defer backend.Close()

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = httpadp.NewValidator()
	e.Use(middleware.RequestID(), logger.WithContext(log), logger.Requests(log), middleware.Recover())

	checks := map[string]httpadp.PingFunc{"db": backend.Ping}
	funfundMW := []echo.MiddlewareFunc{mw.Actor()}
	if cfg.RedisAddr != "" {
		rdb, err := cache.OpenRedis(ctx, cache.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
			MaxTries: cfg.RedisMaxTries,
		})
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("open redis")
		}
		defer rdb.Close()
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		funfundMW = append(funfundMW, mw.Idempotency(rdb, time.Duration(cfg.IdempTTLSecs)*time.Second))
	} else {
		log.Warn().Msg("REDIS_ADDR not set, response replay disabled")
	}

	fh := httpadp.NewFundingHandler(backend.Usecase(), cfg.AttentionWithinDays)
	httpadp.RegisterRoutes(e, httpadp.NewHandler(checks), fh, funfundMW...)

	addr := ":" + cfg.AppPort
	go func() {
		log.Info().Str("addr", addr).Str("driver", cfg.DBDriver).Msg("listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server stopped")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Msg("shutdown")
	}
}
