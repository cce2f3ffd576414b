package main

import (
	"context"
	"os"

	"github.com/alecthomas/kong"

	"funfund-ledger/cmd/funfundctl/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Attention commands.AttentionCmd `cmd:"" help:"List installments that are overdue or due soon"`
		Migrate   commands.MigrateCmd   `cmd:"" help:"Create or update the database schema"`
		Debug     bool                  `help:"Enable debug mode."`
		Version   kong.VersionFlag
	}
)

func main() {
	ctx := context.Background()
	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version, Out: os.Stdout})
	cmd.FatalIfErrorf(err)
}
