package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/julianstephens/studyplan/internal/cli"
	"github.com/julianstephens/studyplan/internal/cli/backups"
	"github.com/julianstephens/studyplan/internal/cli/plans"
	"github.com/julianstephens/studyplan/internal/cli/system"
	"github.com/julianstephens/studyplan/internal/config"
	"github.com/julianstephens/studyplan/internal/constants"
	sperrors "github.com/julianstephens/studyplan/internal/errors"
	"github.com/julianstephens/studyplan/internal/logger"
	"github.com/julianstephens/studyplan/internal/planner"
)

var CLI struct {
	Version    kong.VersionFlag
	ConfigFile string `help:"Config file path." type:"string" default:"${config_file}"`
	Debug      bool   `help:"Log debug output to stderr."`

	Init     system.InitCmd     `cmd:"" help:"Write a default config and initialize the plan ledger."`
	Migrate  system.MigrateCmd  `cmd:"" help:"Apply pending ledger schema migrations."`
	Plan     plans.PlanCmd      `cmd:"" help:"Regenerate the study plan, preview the changes and confirm them."`
	Preview  plans.PreviewCmd   `cmd:"" help:"Show what a regeneration would change without committing it."`
	Versions plans.VersionsCmd  `cmd:"" help:"List confirmed plan versions."`
	Show     plans.ShowCmd      `cmd:"" help:"Show one plan version."`
	Rollback plans.RollbackCmd  `cmd:"" help:"Restore an earlier version's blocks as a new version."`
	Blocks   plans.BlocksCmd    `cmd:"" help:"List the current plan's blocks." default:"1"`
	Validate system.ValidateCmd `cmd:"" help:"Validate tasks and the current plan for conflicts."`
	Backup   struct {
		Create  backups.BackupCreateCmd  `cmd:"" help:"Create a manual backup." default:"1"`
		List    backups.BackupListCmd    `cmd:"" help:"List available backups."`
		Restore backups.BackupRestoreCmd `cmd:"" help:"Restore from a backup."`
	} `cmd:"" help:"Manage ledger backups."`
	Keyring struct {
		Set    system.KeyringSetCmd    `cmd:"" help:"Store the PostgreSQL connection string in the OS keyring."`
		Show   system.KeyringShowCmd   `cmd:"" help:"Show the stored connection string with its password masked."`
		Delete system.KeyringDeleteCmd `cmd:"" help:"Remove the stored connection string."`
	} `cmd:"" help:"Manage the PostgreSQL connection string in the OS keyring."`
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name(constants.AppName),
		kong.Description("Deadline-driven study planner with previewed, versioned replanning"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact:             true,
			NoExpandSubcommands: true,
		}),
		kong.Vars{
			"version":     constants.Version,
			"config_file": constants.DefaultConfigFile,
		},
	)

	cfg, err := config.Load(CLI.ConfigFile)
	if err != nil {
		sperrors.Fatal(err)
	}

	configPath, err := config.ExpandPath(CLI.ConfigFile)
	if err != nil {
		sperrors.Fatal(err)
	}
	if err := logger.Init(logger.Config{
		Debug:     CLI.Debug || cfg.Log.Debug,
		ConfigDir: filepath.Dir(configPath),
	}); err != nil {
		sperrors.Fatalf("failed to initialize logger: %v", err)
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	appCtx := &cli.Context{
		Ctx:        runCtx,
		ConfigPath: CLI.ConfigFile,
		Config:     cfg,
		Out:        os.Stdout,
	}

	command := ctx.Command()
	if !strings.HasPrefix(command, "keyring") {
		store, err := cli.NewStore(cfg)
		if err != nil {
			sperrors.Fatal(err)
		}
		// init and migrate prepare the ledger themselves.
		if command != "init" && command != "migrate" {
			if err := store.Load(); err != nil {
				sperrors.Fatal(err)
			}
		}
		defer store.Close()
		appCtx.Store = store
		appCtx.Planner = planner.New(store)
	}

	logger.Debug("Running command", "command", command, "config", configPath)
	if err := ctx.Run(appCtx); err != nil {
		stop()
		if appCtx.Store != nil {
			appCtx.Store.Close()
		}
		sperrors.Fatal(err)
	}
}
