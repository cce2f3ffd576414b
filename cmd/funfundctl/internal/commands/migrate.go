package commands

import (
	"context"
	"fmt"

	"funfund-ledger/internal/config"
)

type MigrateCmd struct{}

func (m *MigrateCmd) Run(ctx context.Context, globals *Globals) error {
	_, b, err := open(ctx, globals, true)
	if err != nil {
		return err
	}
	defer b.Close()

	if b.DB == nil {
		_, err = fmt.Fprintf(globals.Out, "driver %s has no schema\n", config.DriverMemory)
		return err
	}
	_, err = fmt.Fprintln(globals.Out, "schema up to date")
	return err
}
