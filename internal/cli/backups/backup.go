package backups

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/julianstephens/studyplan/internal/backup"
	"github.com/julianstephens/studyplan/internal/cli"
	"github.com/julianstephens/studyplan/internal/constants"
	"github.com/julianstephens/studyplan/internal/storage/sqlite"
)

var errNotSQLite = errors.New("backups are only supported for the sqlite storage driver")

func manager(ctx *cli.Context) (*backup.Manager, error) {
	if _, ok := ctx.Store.(*sqlite.Store); !ok {
		return nil, errNotSQLite
	}
	return backup.NewManager(ctx.Store.GetConfigPath()), nil
}

type BackupCreateCmd struct{}

func (c *BackupCreateCmd) Run(ctx *cli.Context) error {
	mgr, err := manager(ctx)
	if err != nil {
		return err
	}
	backupPath, err := mgr.Create()
	if err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	fmt.Fprintf(ctx.Out, "✓ Backup created: %s\n", filepath.Base(backupPath))
	return nil
}

type BackupListCmd struct{}

func (c *BackupListCmd) Run(ctx *cli.Context) error {
	mgr, err := manager(ctx)
	if err != nil {
		return err
	}
	backups, err := mgr.List()
	if err != nil {
		return fmt.Errorf("failed to list backups: %w", err)
	}
	if len(backups) == 0 {
		fmt.Fprintln(ctx.Out, "No backups found.")
		fmt.Fprintf(ctx.Out, "Backups are stored in: %s\n", mgr.Dir())
		return nil
	}

	fmt.Fprintf(ctx.Out, "Available backups (%d total, keeping most recent %d):\n\n", len(backups), constants.MaxBackups)
	now := time.Now()
	for _, b := range backups {
		fmt.Fprintf(ctx.Out, "  %s  %s  (%s, %s)\n",
			b.Timestamp.Format("2006-01-02 15:04:05"),
			filepath.Base(b.Path),
			humanize.IBytes(uint64(b.Size)),
			humanize.RelTime(b.Timestamp, now, "ago", "from now"))
	}
	fmt.Fprintf(ctx.Out, "\nBackup directory: %s\n", mgr.Dir())
	return nil
}

type BackupRestoreCmd struct {
	BackupFile string `arg:"" help:"Path or filename of the backup to restore."`
	Yes        bool   `help:"Restore without prompting." short:"y"`
}

func (c *BackupRestoreCmd) Run(ctx *cli.Context) error {
	mgr, err := manager(ctx)
	if err != nil {
		return err
	}
	backupPath, err := resolve(c.BackupFile, mgr.Dir())
	if err != nil {
		return err
	}

	fmt.Fprintln(ctx.Out, "⚠️  This replaces the plan ledger with the backup. Stop other studyplan processes first.")
	fmt.Fprintf(ctx.Out, "Restore from: %s\n", backupPath)
	ok, err := cli.Confirm("Continue?", c.Yes)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(ctx.Out, "Restore cancelled.")
		return nil
	}

	if err := ctx.Store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to close database connection: %v\n", err)
	}
	safety, err := mgr.Restore(backupPath)
	if err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	if safety != "" {
		fmt.Fprintf(ctx.Out, "Previous ledger saved as: %s\n", filepath.Base(safety))
	}
	fmt.Fprintln(ctx.Out, "✓ Ledger restored successfully!")
	return nil
}

// resolve finds a backup by absolute path, relative to the working
// directory, or by name inside the backup directory.
func resolve(name, backupDir string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("backup file not found: %s", name)
		}
		return name, nil
	}
	if _, err := os.Stat(name); err == nil {
		return filepath.Abs(name)
	}
	candidate := filepath.Join(backupDir, name)
	if _, err := os.Stat(candidate); err == nil {
		return candidate, nil
	}
	return "", fmt.Errorf("backup file not found: tried current directory and %s", backupDir)
}
