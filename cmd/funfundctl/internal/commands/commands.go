package commands

import (
	"context"
	"io"

	"funfund-ledger/internal/app"
	"funfund-ledger/internal/config"
	"funfund-ledger/internal/logger"
)

type Globals struct {
	Debug   bool
	Version string
	Out     io.Writer
}

// open loads the environment config and connects the store with a logger in
// ctx.
func open(ctx context.Context, globals *Globals, migrate bool) (context.Context, *app.Backend, error) {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return ctx, nil, err
	}
	log := logger.Setup(globals.Debug || cfg.Debug)
	ctx = log.WithContext(ctx)

	b, err := app.Open(ctx, cfg, migrate)
	if err != nil {
		return ctx, nil, err
	}
	return ctx, b, nil
}
