package system

import (
	"fmt"

	"github.com/julianstephens/studyplan/internal/cli"
)

// MigrateCmd applies pending ledger schema migrations.
type MigrateCmd struct{}

func (c *MigrateCmd) Run(ctx *cli.Context) error {
	if err := ctx.Store.Init(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	fmt.Fprintf(ctx.Out, "✓ Ledger schema is up to date: %s\n", ctx.Store.GetConfigPath())
	return nil
}
