package system

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/julianstephens/studyplan/internal/cli"
	"github.com/julianstephens/studyplan/internal/config"
	"github.com/julianstephens/studyplan/internal/storage/sqlite"
)

type InitCmd struct {
	Force bool `help:"Delete an existing SQLite ledger before initializing."`
}

func (c *InitCmd) Run(ctx *cli.Context) error {
	configPath, err := config.ExpandPath(ctx.ConfigPath)
	if err != nil {
		return err
	}
	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		if err := config.Write(configPath, ctx.Config); err != nil {
			return err
		}
		fmt.Fprintf(ctx.Out, "Wrote default config to: %s\n", configPath)
	}

	dir, err := config.ExpandPath(ctx.Config.Workspace.Dir)
	if err != nil {
		return err
	}
	for _, sub := range []string{"tasks", "pinned"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0700); err != nil {
			return fmt.Errorf("failed to create workspace directory: %w", err)
		}
	}

	if c.Force {
		if err := c.reset(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Store.Init(); err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "Initialized studyplan ledger at: %s\n", ctx.Store.GetConfigPath())
	fmt.Fprintf(ctx.Out, "Put task files in %s and pinned blocks in %s\n", filepath.Join(dir, "tasks"), filepath.Join(dir, "pinned"))
	return nil
}

func (c *InitCmd) reset(ctx *cli.Context) error {
	if _, ok := ctx.Store.(*sqlite.Store); !ok {
		return fmt.Errorf("--force is only supported for the sqlite storage driver")
	}
	dbPath := ctx.Store.GetConfigPath()
	if _, err := os.Stat(dbPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to access existing database: %w", err)
	}
	if err := ctx.Store.Close(); err != nil {
		return fmt.Errorf("failed to close existing database: %w", err)
	}
	if err := os.Remove(dbPath); err != nil {
		return fmt.Errorf("failed to delete existing database: %w", err)
	}
	fmt.Fprintf(ctx.Out, "Deleted existing database at: %s\n", dbPath)
	return nil
}
