package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"funfund-ledger/internal/domain/funding"
	ucFunding "funfund-ledger/internal/usecase/funding"

	"github.com/shopspring/decimal"
)

type AttentionCmd struct {
	Org        string `help:"Organization to scan; empty scans every organization" default:""`
	WithinDays int    `help:"Look-ahead window in days" default:"7"`
}

func (a *AttentionCmd) Run(ctx context.Context, globals *Globals) error {
	ctx, b, err := open(ctx, globals, false)
	if err != nil {
		return err
	}
	defer b.Close()

	return a.run(ctx, b.Usecase(), globals)
}

func (a *AttentionCmd) run(ctx context.Context, uc *ucFunding.Usecase, globals *Globals) error {
	items, err := uc.Attention(ctx, funding.Actor{UserID: "funfundctl", OrgID: a.Org}, a.WithinDays)
	if err != nil {
		return fmt.Errorf("attention: %w", err)
	}

	decimal.MarshalJSONWithoutQuotes = true
	enc := json.NewEncoder(globals.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}
