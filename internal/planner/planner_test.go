package planner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sperrors "github.com/julianstephens/studyplan/internal/errors"
	"github.com/julianstephens/studyplan/internal/models"
	"github.com/julianstephens/studyplan/internal/storage/memory"
)

// 2026-01-05 is a Monday.
var monday8 = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

func fullGrid(t *testing.T) models.AvailabilityGrid {
	t.Helper()
	g := models.NewAvailabilityGrid(15)
	for d := time.Sunday; d <= time.Saturday; d++ {
		require.NoError(t, g.SetRange(d, 0, 24*60))
	}
	return g
}

func hours(h float64) *float64 { return &h }

func task(id string, due time.Time, est float64) models.Task {
	return models.Task{
		ID:             id,
		Title:          "Task " + id,
		DueAt:          due,
		EstimatedHours: hours(est),
		Splittable:     true,
	}
}

func pinned(task string, idx int, start time.Time, minutes int) models.StudyBlock {
	return models.StudyBlock{
		TaskID:     task,
		BlockIndex: idx,
		Start:      start,
		End:        start.Add(time.Duration(minutes) * time.Minute),
	}
}

func request(t *testing.T, user string) Request {
	t.Helper()
	rules := models.DefaultRules()
	rules.Location = time.UTC
	return Request{
		UserID: user,
		Grid:   fullGrid(t),
		Rules:  rules,
		Engine: models.DefaultEngineConfig(),
		Now:    monday8,
	}
}

func newPlanner() *Planner {
	return New(memory.New(), WithClock(func() time.Time { return monday8 }))
}

func TestGenerate_StagesPreview(t *testing.T) {
	p := newPlanner()
	ctx := context.Background()

	req := request(t, "u1")
	req.Tasks = []models.Task{task("essay", monday8.Add(72*time.Hour), 3)}

	assert.Equal(t, StateIdle, p.State("u1"))
	preview, err := p.Generate(ctx, req)
	require.NoError(t, err)

	assert.NotEmpty(t, preview.ID)
	assert.Equal(t, 0, preview.BaseVersion)
	assert.Equal(t, models.TriggerManualReplan, preview.Trigger)
	assert.NotEmpty(t, preview.Fingerprint)
	assert.Empty(t, preview.Warnings)
	assert.Equal(t, len(preview.Blocks), preview.Diff.Added)
	assert.Equal(t, StatePreviewPending, p.State("u1"))

	versions, err := p.ListVersions(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, versions, "generate must not persist anything")
}

func TestGenerate_RejectsInvalidInput(t *testing.T) {
	p := newPlanner()
	ctx := context.Background()

	req := request(t, "u1")
	req.Rules.SleepEndHour = req.Rules.SleepStartHour
	_, err := p.Generate(ctx, req)
	assert.ErrorIs(t, err, sperrors.ErrInvalidConfiguration)

	req = request(t, "u1")
	req.Trigger = "because"
	_, err = p.Generate(ctx, req)
	assert.ErrorIs(t, err, sperrors.ErrInvalidConfiguration)

	req = request(t, "")
	_, err = p.Generate(ctx, req)
	assert.ErrorIs(t, err, sperrors.ErrInvalidConfiguration)

	assert.Equal(t, StateIdle, p.State("u1"), "a rejected generate must not stage a preview")
}

func TestFingerprint_Deterministic(t *testing.T) {
	p := newPlanner()
	ctx := context.Background()

	req := request(t, "u1")
	req.Tasks = []models.Task{
		task("a", monday8.Add(48*time.Hour), 1),
		task("b", monday8.Add(96*time.Hour), 2),
	}
	first, err := p.Generate(ctx, req)
	require.NoError(t, err)

	req.Tasks = []models.Task{req.Tasks[1], req.Tasks[0]}
	second, err := p.Generate(ctx, req)
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.Equal(t, first.Blocks, second.Blocks)

	req.Now = monday8.Add(time.Hour)
	third, err := p.Generate(ctx, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.Fingerprint, third.Fingerprint)
}

// Confirm plan A, then plan B with one added and one moved block.
func TestConfirm_VersionHistory(t *testing.T) {
	p := newPlanner()
	ctx := context.Background()
	day := monday8.Add(24 * time.Hour)

	reqA := request(t, "u1")
	reqA.Pinned = []models.StudyBlock{
		pinned("lab", 0, day.Add(2*time.Hour), 60),
		pinned("lab", 1, day.Add(6*time.Hour), 60),
	}
	_, err := p.Generate(ctx, reqA)
	require.NoError(t, err)
	v1, err := p.Confirm(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, v1.VersionNumber)
	assert.Equal(t, StateIdle, p.State("u1"))

	reqB := request(t, "u1")
	reqB.Trigger = models.TriggerCalendarConflict
	reqB.Pinned = []models.StudyBlock{
		pinned("lab", 0, day.Add(2*time.Hour), 60),
		pinned("lab", 1, day.Add(7*time.Hour), 60),
		pinned("lab", 2, day.Add(9*time.Hour), 30),
	}
	preview, err := p.Generate(ctx, reqB)
	require.NoError(t, err)
	assert.Equal(t, 1, preview.BaseVersion)
	assert.Equal(t, 1, preview.Diff.Added)
	assert.Equal(t, 1, preview.Diff.Moved)
	assert.Equal(t, 0, preview.Diff.Deleted)

	v2, err := p.Confirm(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, v2.VersionNumber)
	assert.Equal(t, models.TriggerCalendarConflict, v2.Trigger)
	assert.Equal(t, "Added 1, moved 1, deleted 0 blocks", v2.DiffSummary)

	versions, err := p.ListVersions(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 1, versions[0].VersionNumber)
	assert.Equal(t, 2, versions[1].VersionNumber)

	current, err := p.CurrentBlocks(ctx, "u1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, current, 3)
	assert.True(t, current[1].Start.Equal(day.Add(7*time.Hour)), "version 1's block should no longer be current")

	old, err := p.GetVersion(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, old.Blocks, 2)
	assert.True(t, old.Blocks[1].Start.Equal(day.Add(6*time.Hour)))
}

// Confirm B, then roll back to version 1 twice.
func TestRollback(t *testing.T) {
	p := newPlanner()
	ctx := context.Background()

	req := request(t, "u1")
	req.Tasks = []models.Task{task("essay", monday8.Add(72*time.Hour), 3)}
	_, err := p.Generate(ctx, req)
	require.NoError(t, err)
	v1, err := p.Confirm(ctx, "u1")
	require.NoError(t, err)

	req.Tasks = append(req.Tasks, task("reading", monday8.Add(48*time.Hour), 2))
	_, err = p.Generate(ctx, req)
	require.NoError(t, err)
	_, err = p.Confirm(ctx, "u1")
	require.NoError(t, err)

	v3, err := p.Rollback(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, v3.VersionNumber)
	assert.Equal(t, models.TriggerRollback, v3.Trigger)
	assertSameContent(t, v1.Blocks, v3.Blocks)

	current, err := p.CurrentBlocks(ctx, "u1", time.Time{}, time.Time{})
	require.NoError(t, err)
	assertSameContent(t, v1.Blocks, current)

	v4, err := p.Rollback(ctx, "u1", 1)
	require.NoError(t, err)
	assert.Equal(t, 4, v4.VersionNumber)
	assertSameContent(t, v1.Blocks, v4.Blocks)
	assert.True(t, v4.Diff.IsEmpty(), "rolling back onto identical content changes nothing")

	versions, err := p.ListVersions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, versions, 4, "history is never rewritten")

	_, err = p.Rollback(ctx, "u1", 42)
	assert.ErrorIs(t, err, sperrors.ErrVersionNotFound)
}

func TestRollback_DiscardsPendingPreview(t *testing.T) {
	p := newPlanner()
	ctx := context.Background()

	req := request(t, "u1")
	req.Tasks = []models.Task{task("essay", monday8.Add(72*time.Hour), 1)}
	_, err := p.Generate(ctx, req)
	require.NoError(t, err)
	_, err = p.Confirm(ctx, "u1")
	require.NoError(t, err)

	_, err = p.Generate(ctx, req)
	require.NoError(t, err)
	_, err = p.Rollback(ctx, "u1", 1)
	require.NoError(t, err)

	assert.Equal(t, StateIdle, p.State("u1"))
	_, err = p.Confirm(ctx, "u1")
	assert.ErrorIs(t, err, sperrors.ErrNoPendingPreview)
}

// Two generates in a row: only the second one is pending.
func TestConfirm_StalePreview(t *testing.T) {
	p := newPlanner()
	ctx := context.Background()

	req := request(t, "u1")
	req.Tasks = []models.Task{task("essay", monday8.Add(72*time.Hour), 2)}
	first, err := p.Generate(ctx, req)
	require.NoError(t, err)
	req.Now = monday8.Add(2 * time.Hour)
	second, err := p.Generate(ctx, req)
	require.NoError(t, err)

	_, err = p.ConfirmPreview(ctx, "u1", first.ID)
	require.ErrorIs(t, err, sperrors.ErrConcurrentModification)
	var cme *sperrors.ConcurrentModificationError
	require.True(t, errors.As(err, &cme))
	assert.Equal(t, first.ID, cme.PreviewID)

	v, err := p.Confirm(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, second.Fingerprint, v.Fingerprint)
	assertSameContent(t, second.Blocks, v.Blocks)

	_, err = p.ConfirmPreview(ctx, "u1", first.ID)
	assert.ErrorIs(t, err, sperrors.ErrConcurrentModification)
	_, err = p.ConfirmPreview(ctx, "u1", second.ID)
	assert.ErrorIs(t, err, sperrors.ErrConcurrentModification, "a preview commits at most once")
}

func TestConfirm_StaleBase(t *testing.T) {
	store := memory.New()
	p := New(store)
	ctx := context.Background()

	req := request(t, "u1")
	req.Tasks = []models.Task{task("essay", monday8.Add(72*time.Hour), 1)}
	_, err := p.Generate(ctx, req)
	require.NoError(t, err)

	// Another writer commits underneath the pending preview.
	_, err = store.AppendVersion(ctx, models.PlanVersion{UserID: "u1", Trigger: models.TriggerNewTask}, 0)
	require.NoError(t, err)

	_, err = p.Confirm(ctx, "u1")
	assert.ErrorIs(t, err, sperrors.ErrConcurrentModification)
	assert.Equal(t, StateIdle, p.State("u1"))
}

func TestConfirm_NothingPending(t *testing.T) {
	p := newPlanner()
	ctx := context.Background()

	_, err := p.Confirm(ctx, "u1")
	assert.ErrorIs(t, err, sperrors.ErrNoPendingPreview)
	_, err = p.ConfirmPreview(ctx, "u1", "01ARZ3NDEKTSV4RRFFQ69G5FAV")
	assert.ErrorIs(t, err, sperrors.ErrNoPendingPreview)
}

func TestDiscard(t *testing.T) {
	p := newPlanner()
	ctx := context.Background()

	assert.False(t, p.Discard("u1"))

	req := request(t, "u1")
	req.Tasks = []models.Task{task("essay", monday8.Add(72*time.Hour), 1)}
	_, err := p.Generate(ctx, req)
	require.NoError(t, err)

	assert.True(t, p.Discard("u1"))
	assert.Equal(t, StateIdle, p.State("u1"))
	_, ok := p.Pending("u1")
	assert.False(t, ok)

	_, err = p.Confirm(ctx, "u1")
	assert.ErrorIs(t, err, sperrors.ErrNoPendingPreview)
}

func TestConfirm_ConcurrentCallersOneWins(t *testing.T) {
	p := newPlanner()
	ctx := context.Background()

	req := request(t, "u1")
	req.Tasks = []models.Task{task("essay", monday8.Add(72*time.Hour), 1)}
	_, err := p.Generate(ctx, req)
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, errs[i] = p.Confirm(ctx, "u1")
		}()
	}
	close(start)
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.True(t,
			errors.Is(err, sperrors.ErrConcurrentModification) || errors.Is(err, sperrors.ErrNoPendingPreview),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, wins)

	versions, err := p.ListVersions(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, versions, 1)
}

func TestUsersAreIndependent(t *testing.T) {
	p := newPlanner()
	ctx := context.Background()

	for _, user := range []string{"u1", "u2"} {
		req := request(t, user)
		req.Tasks = []models.Task{task("essay", monday8.Add(72*time.Hour), 1)}
		_, err := p.Generate(ctx, req)
		require.NoError(t, err)
	}

	_, err := p.Confirm(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, p.State("u1"))
	assert.Equal(t, StatePreviewPending, p.State("u2"))
}

func assertSameContent(t *testing.T, want, got []models.StudyBlock) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].Key(), got[i].Key())
		assert.True(t, want[i].Start.Equal(got[i].Start), "block %d start", i)
		assert.True(t, want[i].End.Equal(got[i].End), "block %d end", i)
		assert.Equal(t, want[i].Pinned, got[i].Pinned)
	}
}
