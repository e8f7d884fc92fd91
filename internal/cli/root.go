package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/julianstephens/studyplan/internal/backup"
	"github.com/julianstephens/studyplan/internal/config"
	"github.com/julianstephens/studyplan/internal/constants"
	"github.com/julianstephens/studyplan/internal/intake"
	"github.com/julianstephens/studyplan/internal/keyring"
	"github.com/julianstephens/studyplan/internal/logger"
	"github.com/julianstephens/studyplan/internal/models"
	"github.com/julianstephens/studyplan/internal/planner"
	"github.com/julianstephens/studyplan/internal/storage"
	"github.com/julianstephens/studyplan/internal/storage/memory"
	"github.com/julianstephens/studyplan/internal/storage/postgres"
	"github.com/julianstephens/studyplan/internal/storage/sqlite"
)

// ErrNotInteractive is returned when a confirmation is needed but stdin is not a terminal.
var ErrNotInteractive = errors.New("stdin is not a terminal; pass --yes to confirm non-interactively")

type Context struct {
	// Ctx is cancelled on interrupt.
	Ctx        context.Context
	ConfigPath string
	Config     *config.Config
	Store      storage.Provider
	Planner    *planner.Planner
	Out        io.Writer
}

// NewStore builds the ledger provider named by the config. A PostgreSQL DSN
// is resolved from the config, the keyring or the environment.
func NewStore(cfg *config.Config) (storage.Provider, error) {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverPostgres:
		// Only the DSN in the config file must be password-free; the keyring
		// and the environment are the places a password may live.
		if cfg.Storage.DSN != "" {
			if ok, err := postgres.ValidateConnString(cfg.Storage.DSN); !ok {
				if errors.Is(err, postgres.ErrEmbeddedCredentials) {
					return nil, fmt.Errorf("storage.dsn must not embed a password; use 'studyplan keyring set', .pgpass or PGPASSWORD: %w", err)
				}
				return nil, err
			}
		}
		connStr, err := keyring.ResolveConnectionString(cfg.Storage.DSN)
		if err != nil {
			return nil, err
		}
		return postgres.New(connStr), nil
	default:
		path, err := config.ExpandPath(cfg.Storage.Path)
		if err != nil {
			return nil, err
		}
		return sqlite.NewStore(path), nil
	}
}

// PerformAutomaticBackup snapshots a SQLite ledger and only logs failures.
func (c *Context) PerformAutomaticBackup() {
	if _, ok := c.Store.(*sqlite.Store); !ok {
		return
	}
	mgr := backup.NewManager(c.Store.GetConfigPath())
	if _, err := mgr.Create(); err != nil {
		logger.Warn("Automatic backup failed", "error", err)
	}
}

func (c *Context) Location() (*time.Location, error) {
	return c.Config.Location()
}

// LoadWorkspace reads the task and pinned-block files named by the config.
func (c *Context) LoadWorkspace() (*intake.Workspace, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	dir, err := config.ExpandPath(c.Config.Workspace.Dir)
	if err != nil {
		return nil, err
	}
	ws, err := intake.Load(dir, c.Config.Workspace.Tasks, c.Config.Workspace.Pinned, loc)
	if err != nil {
		return nil, err
	}
	logger.Debug("Workspace loaded", "dir", dir, "files", len(ws.Files), "tasks", len(ws.Tasks), "pinned", len(ws.Pinned))
	return ws, nil
}

// Request assembles a generate request from the config and the workspace.
func (c *Context) Request(trigger models.TriggerReason) (planner.Request, error) {
	rules, err := c.Config.SchedulingRules()
	if err != nil {
		return planner.Request{}, err
	}
	grid, err := c.Config.AvailabilityGrid()
	if err != nil {
		return planner.Request{}, err
	}
	ws, err := c.LoadWorkspace()
	if err != nil {
		return planner.Request{}, err
	}
	return planner.Request{
		UserID:  c.Config.User,
		Tasks:   ws.Tasks,
		Grid:    grid,
		Rules:   rules,
		Engine:  c.Config.Engine,
		Pinned:  ws.Pinned,
		Trigger: trigger,
	}, nil
}

// Confirm asks a yes/no question on the terminal. assumeYes skips the prompt.
func Confirm(title string, assumeYes bool) (bool, error) {
	if assumeYes {
		return true, nil
	}
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, ErrNotInteractive
	}
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).WithTheme(huh.ThemeDracula()).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}
	return ok, err
}

// ParseDay parses YYYY-MM-DD or "today" as local midnight.
func ParseDay(s string, loc *time.Location) (time.Time, error) {
	if strings.EqualFold(s, "today") {
		now := time.Now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), nil
	}
	t, err := time.ParseInLocation(constants.DateFormat, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, use YYYY-MM-DD or 'today'", s)
	}
	return t, nil
}
