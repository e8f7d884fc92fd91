// Package config loads the studyplan TOML configuration file and turns it
// into the validated rule, grid and engine records the planner consumes.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/julianstephens/studyplan/internal/constants"
	sperrors "github.com/julianstephens/studyplan/internal/errors"
	"github.com/julianstephens/studyplan/internal/models"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StorageConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	// DSN is a PostgreSQL connection string without a password.
	DSN string `toml:"dsn,omitempty"`
}

type WorkspaceConfig struct {
	// Dir is the base directory the globs are matched against.
	Dir    string   `toml:"dir"`
	Tasks  []string `toml:"tasks"`
	Pinned []string `toml:"pinned"`
}

type LogConfig struct {
	Debug bool `toml:"debug"`
}

type Config struct {
	User     string `toml:"user"`
	Timezone string `toml:"timezone"`
	// TermEnd (YYYY-MM-DD) extends the horizon through the end of that day.
	TermEnd string `toml:"term_end,omitempty"`

	Rules models.SchedulingRules `toml:"rules"`
	// Availability maps weekday names to "HH:MM-HH:MM" ranges.
	Availability map[string][]string `toml:"availability"`
	Engine       models.EngineConfig `toml:"engine"`
	Storage      StorageConfig       `toml:"storage"`
	Workspace    WorkspaceConfig     `toml:"workspace"`
	Log          LogConfig           `toml:"log"`
}

// DefaultAvailability opens every day inside the default preferred window.
func DefaultAvailability() map[string][]string {
	r := fmt.Sprintf("%02d:00-%02d:00", constants.DefaultPreferredStartHour, constants.DefaultPreferredEndHour)
	out := make(map[string][]string, constants.DaysPerWeek)
	for d := time.Sunday; d <= time.Saturday; d++ {
		out[strings.ToLower(d.String())] = []string{r}
	}
	return out
}

func Default() *Config {
	return &Config{
		User:         constants.DefaultUser,
		Timezone:     constants.DefaultTimezone,
		Rules:        models.DefaultRules(),
		Availability: DefaultAvailability(),
		Engine:       models.DefaultEngineConfig(),
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   constants.DefaultDBPath,
		},
		Workspace: WorkspaceConfig{
			Dir:    constants.DefaultConfigDir,
			Tasks:  []string{"tasks/**/*.yaml", "tasks/**/*.yml"},
			Pinned: []string{"pinned/**/*.yaml", "pinned/**/*.yml"},
		},
	}
}

// Load reads the file at path over the defaults. A missing file yields the
// defaults. Unknown keys are rejected.
func Load(path string) (*Config, error) {
	cfg := Default()

	expanded, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, sperrors.NewInvalidConfiguration(expanded, strict.String())
		}
		var decodeErr *toml.DecodeError
		if errors.As(err, &decodeErr) {
			row, col := decodeErr.Position()
			return nil, sperrors.NewInvalidConfiguration(expanded, fmt.Sprintf("line %d, column %d: %s", row, col, decodeErr.Error()))
		}
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// A present [availability] table or strict list replaces the default
	// instead of merging into it.
	var replace struct {
		Availability *map[string][]string `toml:"availability"`
		Engine       struct {
			Strict *[]models.SoftConstraint `toml:"strict"`
		} `toml:"engine"`
	}
	if err := toml.Unmarshal(data, &replace); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if replace.Availability != nil {
		cfg.Availability = *replace.Availability
	}
	if replace.Engine.Strict != nil {
		cfg.Engine.Strict = *replace.Engine.Strict
	}
	applyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills values whose zero is never meaningful.
func applyDefaults(c *Config) {
	d := Default()
	if c.User == "" {
		c.User = d.User
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.Rules.SlotDurationMin == 0 {
		c.Rules.SlotDurationMin = d.Rules.SlotDurationMin
	}
	if c.Rules.DailyMaxMin == 0 {
		c.Rules.DailyMaxMin = d.Rules.DailyMaxMin
	}
	if c.Rules.BreakAfterMin == 0 {
		c.Rules.BreakAfterMin = d.Rules.BreakAfterMin
	}
	if c.Rules.MaxContinuousSubjectMin == 0 {
		c.Rules.MaxContinuousSubjectMin = d.Rules.MaxContinuousSubjectMin
	}
	if c.Engine.DueProximityHours == 0 {
		c.Engine.DueProximityHours = d.Engine.DueProximityHours
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = d.Storage.Driver
	}
	if c.Storage.Path == "" {
		c.Storage.Path = d.Storage.Path
	}
	if c.Workspace.Dir == "" {
		c.Workspace.Dir = d.Workspace.Dir
	}
	if len(c.Workspace.Tasks) == 0 {
		c.Workspace.Tasks = d.Workspace.Tasks
	}
	if len(c.Workspace.Pinned) == 0 {
		c.Workspace.Pinned = d.Workspace.Pinned
	}
}

func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if _, err := c.SchedulingRules(); err != nil {
		return err
	}
	if _, err := c.AvailabilityGrid(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return sperrors.NewInvalidConfiguration("storage.driver", fmt.Sprintf("unknown driver %q", c.Storage.Driver))
	}
	return nil
}

func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" || c.Timezone == "Local" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, sperrors.NewInvalidConfiguration("timezone", fmt.Sprintf("invalid timezone %q", c.Timezone))
	}
	return loc, nil
}

// SchedulingRules returns the validated rules with location and term end resolved.
func (c *Config) SchedulingRules() (models.SchedulingRules, error) {
	loc, err := c.Location()
	if err != nil {
		return models.SchedulingRules{}, err
	}
	rules := c.Rules
	rules.Location = loc
	if c.TermEnd != "" {
		d, err := time.ParseInLocation(constants.DateFormat, c.TermEnd, loc)
		if err != nil {
			return models.SchedulingRules{}, sperrors.NewInvalidConfiguration("term_end",
				fmt.Sprintf("expected YYYY-MM-DD, got %q", c.TermEnd))
		}
		end := d.AddDate(0, 0, 1)
		rules.TermEnd = &end
	}
	if err := rules.Validate(); err != nil {
		return models.SchedulingRules{}, err
	}
	return rules, nil
}

// AvailabilityGrid expands the weekday ranges into a slot grid at the
// configured slot width.
func (c *Config) AvailabilityGrid() (models.AvailabilityGrid, error) {
	w := c.Rules.SlotDurationMin
	if w <= 0 || 60%w != 0 {
		return models.AvailabilityGrid{}, sperrors.NewInvalidConfiguration("rules.slot_duration_min",
			fmt.Sprintf("must be a positive divisor of 60, got %d", w))
	}
	g := models.NewAvailabilityGrid(w)
	for day, ranges := range c.Availability {
		wd, err := ParseWeekday(day)
		if err != nil {
			return models.AvailabilityGrid{}, sperrors.NewInvalidConfiguration("availability."+day, err.Error())
		}
		for _, r := range ranges {
			start, end, err := ParseRange(r)
			if err != nil {
				return models.AvailabilityGrid{}, sperrors.NewInvalidConfiguration("availability."+day, err.Error())
			}
			if start%w != 0 || end%w != 0 {
				return models.AvailabilityGrid{}, sperrors.NewInvalidConfiguration("availability."+day,
					fmt.Sprintf("range %q is not aligned to %d-minute slots", r, w))
			}
			if err := g.SetRange(wd, start, end); err != nil {
				return models.AvailabilityGrid{}, err
			}
		}
	}
	return g, nil
}

// Write saves c to path, creating the parent directory.
func Write(path string, c *Config) error {
	expanded, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return os.WriteFile(expanded, data, 0600)
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
