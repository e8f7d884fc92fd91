// Package backup keeps rotating snapshots of the SQLite ledger file.
package backup

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/studyplan/internal/constants"
	"github.com/julianstephens/studyplan/internal/logger"
)

const stampFormat = "20060102-150405"

// ErrNotALedger is returned when a file is a SQLite database but holds no plan history.
var ErrNotALedger = errors.New("not a studyplan ledger")

// Info describes one snapshot on disk.
type Info struct {
	Path      string
	Timestamp time.Time
	Size      int64
}

// Manager handles snapshots of one ledger file.
type Manager struct {
	dbPath    string
	backupDir string
	keep      int
	now       func() time.Time
}

type Option func(*Manager)

// WithRetention overrides how many snapshots rotation keeps.
func WithRetention(n int) Option {
	return func(m *Manager) { m.keep = n }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager stores snapshots in a backups directory next to the ledger.
func NewManager(dbPath string, opts ...Option) *Manager {
	m := &Manager{
		dbPath:    dbPath,
		backupDir: filepath.Join(filepath.Dir(dbPath), constants.BackupDirName),
		keep:      constants.MaxBackups,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Dir() string {
	return m.backupDir
}

// Create snapshots the ledger and rotates old snapshots out.
func (m *Manager) Create() (string, error) {
	path, err := m.create()
	if err != nil {
		return "", err
	}
	if err := m.rotate(); err != nil {
		logger.Warn("Failed to rotate old backups", "dir", m.backupDir, "error", err)
	}
	return path, nil
}

func (m *Manager) create() (string, error) {
	if _, err := os.Stat(m.dbPath); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("database does not exist: %s", m.dbPath)
	}
	if err := os.MkdirAll(m.backupDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	dest, err := m.nextPath()
	if err != nil {
		return "", err
	}
	if err := snapshot(m.dbPath, dest); err != nil {
		return "", fmt.Errorf("failed to backup database: %w", err)
	}
	logger.Info("Backup created", "path", dest)
	return dest, nil
}

// nextPath names a snapshot after the clock, adding a counter when two
// snapshots land in the same second.
func (m *Manager) nextPath() (string, error) {
	stamp := m.now().Format(stampFormat)
	for n := 0; n <= 100; n++ {
		name := constants.BackupFilePrefix + stamp
		if n > 0 {
			name += "-" + strconv.Itoa(n)
		}
		path := filepath.Join(m.backupDir, name+constants.BackupFileSuffix)
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		}
	}
	return "", fmt.Errorf("failed to generate unique backup filename")
}

// snapshot writes a consistent copy of src with VACUUM INTO, falling back to
// a plain file copy.
func snapshot(src, dest string) error {
	db, err := sql.Open("sqlite", "file:"+src+"?mode=ro")
	if err != nil {
		return fmt.Errorf("failed to open source database: %w", err)
	}
	defer db.Close()

	if err := verifyLedger(db); err != nil {
		return err
	}
	if _, err := db.Exec("VACUUM INTO ?", dest); err != nil {
		logger.Debug("VACUUM INTO failed, copying file", "error", err)
		return copyFile(src, dest)
	}
	return nil
}

// List returns the snapshots, newest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.backupDir)
	if errors.Is(err, os.ErrNotExist) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := []Info{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ts, ok := parseName(entry.Name())
		if !ok {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Path:      filepath.Join(m.backupDir, entry.Name()),
			Timestamp: ts,
			Size:      fi.Size(),
		})
	}
	slices.SortFunc(backups, func(a, b Info) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(b.Path, a.Path)
	})
	return backups, nil
}

// parseName extracts the timestamp of prefix + stamp [+ "-" counter] + suffix.
func parseName(name string) (time.Time, bool) {
	rest, ok := strings.CutPrefix(name, constants.BackupFilePrefix)
	if !ok {
		return time.Time{}, false
	}
	rest, ok = strings.CutSuffix(rest, constants.BackupFileSuffix)
	if !ok || len(rest) < len(stampFormat) {
		return time.Time{}, false
	}
	if counter := rest[len(stampFormat):]; counter != "" {
		n, err := strconv.Atoi(strings.TrimPrefix(counter, "-"))
		if err != nil || !strings.HasPrefix(counter, "-") || n < 1 {
			return time.Time{}, false
		}
	}
	ts, err := time.ParseInLocation(stampFormat, rest[:len(stampFormat)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func (m *Manager) rotate() error {
	backups, err := m.List()
	if err != nil {
		return err
	}
	if len(backups) <= m.keep {
		return nil
	}
	for _, b := range backups[m.keep:] {
		if err := os.Remove(b.Path); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", b.Path, err)
		}
		logger.Debug("Rotated out backup", "path", b.Path)
	}
	return nil
}

// Restore replaces the ledger with a snapshot. The current ledger is
// snapshotted first, outside rotation, so a restore can be undone. It
// returns the path of that safety snapshot, or "" when there was no ledger.
func (m *Manager) Restore(backupPath string) (string, error) {
	if _, err := os.Stat(backupPath); errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("backup file does not exist: %s", backupPath)
	}
	if err := verifyFile(backupPath); err != nil {
		return "", fmt.Errorf("backup file is corrupted or invalid: %w", err)
	}

	var safety string
	if _, err := os.Stat(m.dbPath); err == nil {
		safety, err = m.create()
		if err != nil {
			return "", fmt.Errorf("failed to backup current database before restore: %w", err)
		}
	}

	tempPath := m.dbPath + ".restore.tmp"
	if err := copyFile(backupPath, tempPath); err != nil {
		return "", fmt.Errorf("failed to copy backup file: %w", err)
	}
	if err := os.Rename(tempPath, m.dbPath); err != nil {
		if removeErr := os.Remove(tempPath); removeErr != nil {
			logger.Warn("Failed to remove temporary file", "path", tempPath, "error", removeErr)
		}
		return "", fmt.Errorf("failed to restore database: %w", err)
	}
	logger.Info("Backup restored", "from", backupPath, "safety", safety)
	return safety, nil
}

func verifyFile(path string) error {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return err
	}
	defer db.Close()
	return verifyLedger(db)
}

func verifyLedger(db *sql.DB) error {
	var count int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'plan_versions'").Scan(&count)
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotALedger
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
