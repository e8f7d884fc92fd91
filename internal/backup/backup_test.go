package backup

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/julianstephens/studyplan/internal/constants"
	"github.com/julianstephens/studyplan/internal/storage/sqlite"
	"github.com/julianstephens/studyplan/internal/storage/storagetest"
)

// setupLedger creates a ledger holding one version for user "u".
func setupLedger(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "studyplan.db")
	store := sqlite.NewStore(dbPath)
	if err := store.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	defer store.Close()
	if _, err := store.AppendVersion(context.Background(), storagetest.SampleVersion("u"), 0); err != nil {
		t.Fatalf("AppendVersion failed: %v", err)
	}
	return dbPath
}

func latestVersion(t *testing.T, dbPath string) int {
	t.Helper()
	store := sqlite.NewStore(dbPath)
	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	defer store.Close()
	v, _, err := store.LatestVersion(context.Background(), "u")
	if err != nil {
		t.Fatalf("LatestVersion failed: %v", err)
	}
	return v.VersionNumber
}

// steppingClock advances one second per call.
func steppingClock(start time.Time) func() time.Time {
	next := start
	return func() time.Time {
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func TestCreate(t *testing.T) {
	dbPath := setupLedger(t)
	mgr := NewManager(dbPath)

	backupPath, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if filepath.Dir(backupPath) != mgr.Dir() {
		t.Errorf("backup written to %s, want dir %s", backupPath, mgr.Dir())
	}
	if !strings.HasPrefix(filepath.Base(backupPath), constants.BackupFilePrefix) {
		t.Errorf("unexpected backup name %s", filepath.Base(backupPath))
	}

	db, err := sql.Open("sqlite", backupPath)
	if err != nil {
		t.Fatalf("failed to open backup: %v", err)
	}
	defer db.Close()
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM plan_versions").Scan(&count); err != nil {
		t.Fatalf("failed to query backup: %v", err)
	}
	if count != 1 {
		t.Errorf("expected 1 version in backup, got %d", count)
	}
}

func TestCreate_NoDatabase(t *testing.T) {
	mgr := NewManager(filepath.Join(t.TempDir(), "missing.db"))
	if _, err := mgr.Create(); err == nil {
		t.Fatal("expected error for missing database")
	}
}

func TestCreate_RejectsForeignDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "other.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("CREATE TABLE notes (id INTEGER)"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	if _, err := NewManager(dbPath).Create(); !errors.Is(err, ErrNotALedger) {
		t.Errorf("expected ErrNotALedger, got %v", err)
	}
}

func TestRotation(t *testing.T) {
	dbPath := setupLedger(t)
	mgr := NewManager(dbPath, WithRetention(3), WithClock(steppingClock(time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local))))

	var created []string
	for range 5 {
		p, err := mgr.Create()
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		created = append(created, p)
	}

	backups, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 3 {
		t.Fatalf("expected 3 backups after rotation, got %d", len(backups))
	}
	// Newest first; the two oldest were rotated out.
	for i, b := range backups {
		if want := created[len(created)-1-i]; b.Path != want {
			t.Errorf("backup %d = %s, want %s", i, b.Path, want)
		}
	}
	for _, old := range created[:2] {
		if _, err := os.Stat(old); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected %s to be rotated out", old)
		}
	}
}

func TestUniqueNamesWithinOneSecond(t *testing.T) {
	dbPath := setupLedger(t)
	frozen := time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local)
	mgr := NewManager(dbPath, WithClock(func() time.Time { return frozen }))

	seen := map[string]bool{}
	for range 3 {
		p, err := mgr.Create()
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if seen[p] {
			t.Fatalf("duplicate backup path %s", p)
		}
		seen[p] = true
	}
	backups, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 3 {
		t.Errorf("expected 3 backups, got %d", len(backups))
	}
	for _, b := range backups {
		if !b.Timestamp.Equal(frozen) {
			t.Errorf("timestamp = %v, want %v", b.Timestamp, frozen)
		}
	}
}

func TestList_SkipsForeignFiles(t *testing.T) {
	dbPath := setupLedger(t)
	mgr := NewManager(dbPath)
	if _, err := mgr.Create(); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, name := range []string{"notes.txt", constants.BackupFilePrefix + "garbage.db", constants.BackupFilePrefix + "20260105-090000-x.db"} {
		if err := os.WriteFile(filepath.Join(mgr.Dir(), name), []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
	}

	backups, err := mgr.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 1 {
		t.Errorf("expected 1 backup, got %d", len(backups))
	}
}

func TestList_NoDirectory(t *testing.T) {
	backups, err := NewManager(filepath.Join(t.TempDir(), "studyplan.db")).List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(backups) != 0 {
		t.Errorf("expected no backups, got %d", len(backups))
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name string
		ok   bool
	}{
		{"studyplan-20260105-090000.db", true},
		{"studyplan-20260105-090000-2.db", true},
		{"studyplan-20260105-0900.db", false},
		{"studyplan-20260105-090000-0.db", false},
		{"studyplan-20260105-090000.sql", false},
		{"notes-20260105-090000.db", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := parseName(tt.name); ok != tt.ok {
				t.Errorf("parseName(%q) ok = %v, want %v", tt.name, ok, tt.ok)
			}
		})
	}
}

func TestRestore(t *testing.T) {
	dbPath := setupLedger(t)
	mgr := NewManager(dbPath, WithClock(steppingClock(time.Date(2026, 1, 5, 9, 0, 0, 0, time.Local))))

	backupPath, err := mgr.Create()
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	store := sqlite.NewStore(dbPath)
	if err := store.Load(); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if _, err := store.AppendVersion(context.Background(), storagetest.SampleVersion("u"), 1); err != nil {
		t.Fatalf("AppendVersion failed: %v", err)
	}
	store.Close()
	if got := latestVersion(t, dbPath); got != 2 {
		t.Fatalf("latest version = %d, want 2", got)
	}

	safety, err := mgr.Restore(backupPath)
	if err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if got := latestVersion(t, dbPath); got != 1 {
		t.Errorf("latest version after restore = %d, want 1", got)
	}

	// The safety snapshot still holds version 2.
	if safety == "" {
		t.Fatal("expected a safety snapshot of the replaced ledger")
	}
	if got := latestVersion(t, safety); got != 2 {
		t.Errorf("safety snapshot latest version = %d, want 2", got)
	}
}

func TestRestore_InvalidBackup(t *testing.T) {
	dbPath := setupLedger(t)
	mgr := NewManager(dbPath)

	bogus := filepath.Join(t.TempDir(), "bogus.db")
	if err := os.WriteFile(bogus, []byte("this is not a database"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := mgr.Restore(bogus); err == nil {
		t.Error("expected error restoring a corrupted backup")
	}
	if _, err := mgr.Restore(filepath.Join(t.TempDir(), "missing.db")); err == nil {
		t.Error("expected error restoring a missing backup")
	}
	if got := latestVersion(t, dbPath); got != 1 {
		t.Errorf("ledger changed after failed restore: latest = %d", got)
	}
}
