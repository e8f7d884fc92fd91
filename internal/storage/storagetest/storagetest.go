// Package storagetest holds the behavioural checks every ledger provider
// must pass. Provider packages call Run from their own tests.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	sperrors "github.com/julianstephens/studyplan/internal/errors"
	"github.com/julianstephens/studyplan/internal/models"
	"github.com/julianstephens/studyplan/internal/storage"
)

var day = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

func block(task string, idx, hour, minutes int) models.StudyBlock {
	start := day.Add(time.Duration(hour) * time.Hour)
	return models.StudyBlock{
		TaskID:     task,
		TaskTitle:  "Task " + task,
		Start:      start,
		End:        start.Add(time.Duration(minutes) * time.Minute),
		BlockIndex: idx,
	}
}

func version(user string, blocks ...models.StudyBlock) models.PlanVersion {
	return models.PlanVersion{
		UserID:  user,
		Trigger: models.TriggerManualReplan,
		Blocks:  blocks,
		Diff:    models.PlanDiff{Added: len(blocks), Items: []models.PlanDiffItem{}},
	}
}

// Run exercises p through the full ledger contract. newProvider must return
// an initialized, empty provider.
func Run(t *testing.T, newProvider func(t *testing.T) storage.Provider) {
	t.Run("Empty", func(t *testing.T) { testEmpty(t, newProvider(t)) })
	t.Run("AppendAndRead", func(t *testing.T) { testAppendAndRead(t, newProvider(t)) })
	t.Run("StaleBase", func(t *testing.T) { testStaleBase(t, newProvider(t)) })
	t.Run("HistoryIsImmutable", func(t *testing.T) { testHistoryIsImmutable(t, newProvider(t)) })
	t.Run("CurrentBlocksRange", func(t *testing.T) { testCurrentBlocksRange(t, newProvider(t)) })
	t.Run("UsersAreIsolated", func(t *testing.T) { testUsersAreIsolated(t, newProvider(t)) })
	t.Run("ConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, newProvider(t)) })
}

func testEmpty(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	if _, ok, err := p.LatestVersion(ctx, "u1"); err != nil || ok {
		t.Fatalf("LatestVersion on empty ledger = %v, %v", ok, err)
	}
	if _, err := p.GetVersion(ctx, "u1", 1); !errors.Is(err, sperrors.ErrVersionNotFound) {
		t.Errorf("GetVersion error = %v, want ErrVersionNotFound", err)
	}
	sums, err := p.ListVersions(ctx, "u1")
	if err != nil || len(sums) != 0 {
		t.Errorf("ListVersions = %v, %v", sums, err)
	}
	blocks, err := p.CurrentBlocks(ctx, "u1", time.Time{}, time.Time{})
	if err != nil || len(blocks) != 0 {
		t.Errorf("CurrentBlocks = %v, %v", blocks, err)
	}
}

func testAppendAndRead(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	v := version("u1", block("b", 0, 10, 60), block("a", 0, 9, 30))
	v.Warnings = []models.Warning{{Kind: models.WarningRelaxedSoftConstraint, Detail: models.WarningInsufficientTime, TaskID: "a", RequiredMinutes: 60, AllocatedMinutes: 30}}
	v.Fingerprint = "fp-1"

	stored, err := p.AppendVersion(ctx, v, 0)
	if err != nil {
		t.Fatalf("AppendVersion failed: %v", err)
	}
	if stored.VersionNumber != 1 || stored.ID == "" || stored.CreatedAt.IsZero() {
		t.Errorf("stored version not stamped: %+v", stored)
	}
	if stored.DiffSummary != "Added 2, moved 0, deleted 0 blocks" {
		t.Errorf("DiffSummary = %q", stored.DiffSummary)
	}
	if stored.Blocks[0].TaskID != "a" {
		t.Errorf("blocks not sorted by start: %+v", stored.Blocks)
	}
	for _, b := range stored.Blocks {
		if b.ID == "" || b.VersionNumber != 1 {
			t.Errorf("block not stamped: %+v", b)
		}
	}

	got, err := p.GetVersion(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if got.ID != stored.ID || got.Trigger != models.TriggerManualReplan || got.Fingerprint != "fp-1" {
		t.Errorf("GetVersion = %+v", got)
	}
	if len(got.Blocks) != 2 || !got.Blocks[0].Start.Equal(stored.Blocks[0].Start) || got.Blocks[0].ID != stored.Blocks[0].ID {
		t.Errorf("blocks round trip: %+v", got.Blocks)
	}
	if len(got.Warnings) != 1 || got.Warnings[0].Detail != models.WarningInsufficientTime {
		t.Errorf("warnings round trip: %+v", got.Warnings)
	}
	if got.Diff.Added != 2 {
		t.Errorf("diff round trip: %+v", got.Diff)
	}

	latest, ok, err := p.LatestVersion(ctx, "u1")
	if err != nil || !ok || latest.VersionNumber != 1 {
		t.Errorf("LatestVersion = %d, %v, %v", latest.VersionNumber, ok, err)
	}

	sums, err := p.ListVersions(ctx, "u1")
	if err != nil {
		t.Fatalf("ListVersions failed: %v", err)
	}
	if len(sums) != 1 || sums[0].BlockCount != 2 || sums[0].WarningCount != 1 {
		t.Errorf("ListVersions = %+v", sums)
	}
}

func testStaleBase(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	if _, err := p.AppendVersion(ctx, version("u1", block("a", 0, 9, 30)), 0); err != nil {
		t.Fatalf("AppendVersion failed: %v", err)
	}
	for _, base := range []int{0, 2} {
		_, err := p.AppendVersion(ctx, version("u1", block("a", 0, 10, 30)), base)
		if !errors.Is(err, sperrors.ErrConcurrentModification) {
			t.Errorf("base %d: error = %v, want ErrConcurrentModification", base, err)
		}
	}
	sums, _ := p.ListVersions(ctx, "u1")
	if len(sums) != 1 {
		t.Errorf("rejected appends must not be stored, got %d versions", len(sums))
	}
}

func testHistoryIsImmutable(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	first, err := p.AppendVersion(ctx, version("u1", block("a", 0, 9, 30)), 0)
	if err != nil {
		t.Fatalf("AppendVersion failed: %v", err)
	}
	if _, err := p.AppendVersion(ctx, version("u1", block("a", 0, 11, 60), block("b", 0, 13, 30)), 1); err != nil {
		t.Fatalf("AppendVersion failed: %v", err)
	}

	got, err := p.GetVersion(ctx, "u1", 1)
	if err != nil {
		t.Fatalf("GetVersion failed: %v", err)
	}
	if len(got.Blocks) != 1 || !got.Blocks[0].Start.Equal(first.Blocks[0].Start) {
		t.Errorf("version 1 changed after append: %+v", got.Blocks)
	}

	current, err := p.CurrentBlocks(ctx, "u1", time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("CurrentBlocks failed: %v", err)
	}
	if len(current) != 2 || current[0].VersionNumber != 2 {
		t.Errorf("CurrentBlocks should return version 2's set: %+v", current)
	}
}

func testCurrentBlocksRange(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	_, err := p.AppendVersion(ctx, version("u1",
		block("a", 0, 8, 60),
		block("a", 1, 10, 60),
		block("b", 0, 12, 60),
	), 0)
	if err != nil {
		t.Fatalf("AppendVersion failed: %v", err)
	}

	tests := []struct {
		name     string
		from, to time.Time
		want     []string
	}{
		{"open", time.Time{}, time.Time{}, []string{"a#0", "a#1", "b#0"}},
		{"touching ends excluded", day.Add(9 * time.Hour), day.Add(12 * time.Hour), []string{"a#1"}},
		{"partial overlap", day.Add(10*time.Hour + 30*time.Minute), day.Add(12*time.Hour + 1*time.Minute), []string{"a#1", "b#0"}},
		{"open start", time.Time{}, day.Add(9 * time.Hour), []string{"a#0"}},
		{"open end", day.Add(11 * time.Hour), time.Time{}, []string{"b#0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blocks, err := p.CurrentBlocks(ctx, "u1", tt.from, tt.to)
			if err != nil {
				t.Fatalf("CurrentBlocks failed: %v", err)
			}
			var got []string
			for _, b := range blocks {
				got = append(got, fmt.Sprintf("%s#%d", b.TaskID, b.BlockIndex))
			}
			if fmt.Sprint(got) != fmt.Sprint(tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func testUsersAreIsolated(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	if _, err := p.AppendVersion(ctx, version("u1", block("a", 0, 9, 30)), 0); err != nil {
		t.Fatalf("AppendVersion(u1) failed: %v", err)
	}
	if _, err := p.AppendVersion(ctx, version("u2", block("a", 0, 9, 30)), 0); err != nil {
		t.Fatalf("AppendVersion(u2) failed: %v", err)
	}
	sums, _ := p.ListVersions(ctx, "u2")
	if len(sums) != 1 || sums[0].VersionNumber != 1 {
		t.Errorf("u2 history = %+v", sums)
	}
}

func testConcurrentAppend(t *testing.T, p storage.Provider) {
	ctx := context.Background()
	const writers = 8

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = p.AppendVersion(ctx, version("u1", block("a", 0, i, 30)), 0)
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case !errors.Is(err, sperrors.ErrConcurrentModification):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("%d appends against base 0 succeeded, want exactly 1", succeeded)
	}
	sums, _ := p.ListVersions(ctx, "u1")
	if len(sums) != 1 {
		t.Errorf("ledger has %d versions, want 1", len(sums))
	}
}

// SampleVersion returns an uncommitted single-block version for user.
func SampleVersion(user string) models.PlanVersion {
	return version(user, block("a", 0, 9, 30))
}
