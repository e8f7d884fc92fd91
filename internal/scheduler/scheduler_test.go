package scheduler

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"reflect"
	"slices"
	"testing"
	"time"

	sperrors "github.com/julianstephens/studyplan/internal/errors"
	"github.com/julianstephens/studyplan/internal/models"
)

// 2026-01-05 is a Monday.
var monday8 = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

func hours(h float64) *float64 {
	return &h
}

func fullGrid(t *testing.T) models.AvailabilityGrid {
	t.Helper()
	g := models.NewAvailabilityGrid(15)
	for d := time.Sunday; d <= time.Saturday; d++ {
		if err := g.SetRange(d, 0, 24*60); err != nil {
			t.Fatalf("SetRange: %v", err)
		}
	}
	return g
}

func eveningGrid(t *testing.T) models.AvailabilityGrid {
	t.Helper()
	g := models.NewAvailabilityGrid(15)
	for d := time.Monday; d <= time.Friday; d++ {
		if err := g.SetRange(d, 18*60, 19*60); err != nil {
			t.Fatalf("SetRange: %v", err)
		}
	}
	return g
}

func baseInput(t *testing.T, grid models.AvailabilityGrid, tasks ...models.Task) Input {
	t.Helper()
	rules := models.DefaultRules()
	rules.Location = time.UTC
	return Input{
		Tasks:  tasks,
		Grid:   grid,
		Rules:  rules,
		Engine: models.DefaultEngineConfig(),
		Now:    monday8,
	}
}

func essay(id string, due time.Time, est float64) models.Task {
	return models.Task{
		ID:             id,
		Title:          "Essay " + id,
		DueAt:          due,
		EstimatedHours: hours(est),
		Difficulty:     3,
		Priority:       models.PriorityMedium,
		FocusLoad:      models.FocusMedium,
		Splittable:     true,
		MinBlockMin:    30,
		MaxBlockMin:    120,
		Status:         models.TaskActive,
	}
}

func minutesFor(blocks []models.StudyBlock, taskID string) int {
	total := 0
	for _, b := range blocks {
		if b.TaskID == taskID {
			total += b.Minutes()
		}
	}
	return total
}

func warningsFor(ws []models.Warning, taskID string) []models.Warning {
	var out []models.Warning
	for _, w := range ws {
		if w.TaskID == taskID {
			out = append(out, w)
		}
	}
	return out
}

// assertPlanInvariants checks no overlap and that every generated block sits
// on available, non-sleep slots.
func assertPlanInvariants(t *testing.T, in Input, res Result) {
	t.Helper()
	for i := 1; i < len(res.Blocks); i++ {
		if models.CompareBlocks(res.Blocks[i-1], res.Blocks[i]) > 0 {
			t.Errorf("blocks not sorted at %d", i)
		}
	}
	for i := range res.Blocks {
		for j := i + 1; j < len(res.Blocks); j++ {
			if res.Blocks[i].Overlaps(res.Blocks[j]) {
				t.Errorf("blocks overlap: %+v and %+v", res.Blocks[i], res.Blocks[j])
			}
		}
	}
	step := time.Duration(in.Rules.SlotDurationMin) * time.Minute
	for _, b := range res.Blocks {
		if b.Pinned {
			continue
		}
		if b.Start.Before(res.HorizonStart) || b.End.After(res.HorizonEnd) {
			t.Errorf("block %+v outside horizon", b)
		}
		for ts := b.Start; ts.Before(b.End); ts = ts.Add(step) {
			local := ts.In(in.Rules.Loc())
			if !in.Grid.Available(local.Weekday(), local.Hour()*60+local.Minute()) {
				t.Errorf("block %+v uses unavailable slot %s", b, ts)
			}
			if in.Rules.InSleepWindow(local.Hour()) {
				t.Errorf("block %+v uses sleep slot %s", b, ts)
			}
		}
	}
}

func TestGeneratePlan_SingleTaskFitsExactly(t *testing.T) {
	due := monday8.AddDate(0, 0, 3)
	in := baseInput(t, fullGrid(t), essay("essay", due, 3))

	res, err := New().GeneratePlan(in)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	if got := minutesFor(res.Blocks, "essay"); got != 180 {
		t.Errorf("allocated %d minutes, want 180", got)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", res.Warnings)
	}
	for i, b := range res.Blocks {
		if b.End.After(due) {
			t.Errorf("block %d ends %s after due %s", i, b.End, due)
		}
		if b.Minutes() < 30 || b.Minutes() > 120 {
			t.Errorf("block %d is %d minutes, outside [30,120]", i, b.Minutes())
		}
		if b.BlockIndex != i {
			t.Errorf("block %d has index %d", i, b.BlockIndex)
		}
		if b.ID != "" || b.VersionNumber != 0 {
			t.Errorf("candidate block should carry no identity: %+v", b)
		}
	}
	assertPlanInvariants(t, in, res)
}

func TestGeneratePlan_NoAvailability(t *testing.T) {
	in := baseInput(t, models.NewAvailabilityGrid(15), essay("essay", monday8.AddDate(0, 0, 3), 3))

	res, err := New().GeneratePlan(in)
	if err != nil {
		t.Fatalf("GeneratePlan should not fail on infeasibility: %v", err)
	}
	if len(res.Blocks) != 0 {
		t.Errorf("expected no blocks, got %d", len(res.Blocks))
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("expected exactly one warning, got %v", res.Warnings)
	}
	if w := res.Warnings[0]; w.Kind != models.WarningUnschedulable || w.TaskID != "essay" {
		t.Errorf("unexpected warning %+v", w)
	}
}

func TestGeneratePlan_OverloadGivesMinimumProgress(t *testing.T) {
	var tasks []models.Task
	for i := range 10 {
		due := monday8.AddDate(0, 0, 2).Add(time.Duration(i) * time.Hour)
		tasks = append(tasks, essay(fmt.Sprintf("t%02d", i), due, 10))
	}
	in := baseInput(t, eveningGrid(t), tasks...)

	res, err := New().GeneratePlan(in)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	assertPlanInvariants(t, in, res)

	for _, task := range tasks {
		if got := minutesFor(res.Blocks, task.ID); got < task.MinBlockMin {
			t.Errorf("%s received %d minutes, want at least %d", task.ID, got, task.MinBlockMin)
		}
		ws := warningsFor(res.Warnings, task.ID)
		if len(ws) != 1 {
			t.Errorf("%s: expected one warning, got %v", task.ID, ws)
			continue
		}
		switch ws[0].Kind {
		case models.WarningRelaxedSoftConstraint, models.WarningUnschedulable:
		default:
			t.Errorf("%s: unexpected warning kind %q", task.ID, ws[0].Kind)
		}
		if ws[0].AllocatedMinutes < ws[0].RequiredMinutes && ws[0].Kind != models.WarningUnschedulable &&
			ws[0].Detail != models.WarningInsufficientTime {
			t.Errorf("%s: short allocation without insufficient-time detail: %+v", task.ID, ws[0])
		}
	}

	// The first task keeps the evenings it won in the main pass.
	first := warningsFor(res.Warnings, "t00")
	if len(first) == 1 && (len(first[0].Relaxed) != 0 || first[0].AllocatedMinutes <= tasks[0].MinBlockMin) {
		t.Errorf("t00: expected a plain shortfall beyond one minimum block, got %+v", first[0])
	}

	// Everything after the first task is due before any evening slot it could
	// still use, so its progress block is forced past the due date.
	relaxed := warningsFor(res.Warnings, "t05")
	if len(relaxed) != 1 || relaxed[0].Kind != models.WarningRelaxedSoftConstraint {
		t.Fatalf("t05: expected relaxed warning, got %v", relaxed)
	}
	if !slices.Contains(relaxed[0].Relaxed, models.SoftPastDue) {
		t.Errorf("t05: relaxed %v, want past-due", relaxed[0].Relaxed)
	}
}

func TestGeneratePlan_NeverExceedsExactRequirement(t *testing.T) {
	tests := []struct {
		name       string
		est        float64
		difficulty int
		required   int
		allocated  int
	}{
		{"whole slots", 1, 3, 60, 60},
		{"difficulty buffer below a slot", 1, 4, 66, 60},
		{"requirement under one slot", 1.0 / 6, 3, 10, 0},
		{"float rounding", 2.3, 3, 138, 135},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task := essay("essay", monday8.AddDate(0, 0, 3), tt.est)
			task.Difficulty = tt.difficulty
			res, err := New().GeneratePlan(baseInput(t, fullGrid(t), task))
			if err != nil {
				t.Fatalf("GeneratePlan failed: %v", err)
			}

			if got := minutesFor(res.Blocks, "essay"); got != tt.allocated {
				t.Errorf("allocated %d minutes, want %d", got, tt.allocated)
			}
			if len(res.Allocations) != 1 || res.Allocations[0].RequiredMinutes != tt.required {
				t.Errorf("allocations = %+v, want required %d", res.Allocations, tt.required)
			}

			ws := warningsFor(res.Warnings, "essay")
			if tt.allocated == tt.required {
				if len(ws) != 0 {
					t.Errorf("unexpected warnings %v", ws)
				}
				return
			}
			if len(ws) != 1 || ws[0].Kind != models.WarningRelaxedSoftConstraint || ws[0].Detail != models.WarningInsufficientTime {
				t.Fatalf("expected one shortfall warning, got %v", ws)
			}
			if ws[0].RequiredMinutes != tt.required || ws[0].AllocatedMinutes != tt.allocated {
				t.Errorf("warning minutes %d/%d, want %d/%d", ws[0].AllocatedMinutes, ws[0].RequiredMinutes, tt.allocated, tt.required)
			}
		})
	}
}

func TestGeneratePlan_BlocksStayWithinBounds(t *testing.T) {
	task := essay("essay", monday8.AddDate(0, 0, 3), 2)
	task.MinBlockMin, task.MaxBlockMin = 20, 50

	in := baseInput(t, fullGrid(t), task)
	res, err := New().GeneratePlan(in)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	assertPlanInvariants(t, in, res)

	if got := minutesFor(res.Blocks, "essay"); got != 120 {
		t.Errorf("allocated %d minutes, want 120", got)
	}
	for _, b := range res.Blocks {
		if b.Minutes() > task.MaxBlockMin {
			t.Errorf("block %+v is longer than max_block %d", b, task.MaxBlockMin)
		}
	}

	task.MinBlockMin, task.MaxBlockMin = 20, 25
	_, err = New().GeneratePlan(baseInput(t, fullGrid(t), task))
	if !errors.Is(err, sperrors.ErrInvalidConfiguration) {
		t.Errorf("no slot multiple between 20 and 25 minutes: expected invalid configuration, got %v", err)
	}
}

func TestGeneratePlan_Deterministic(t *testing.T) {
	tasks := []models.Task{
		essay("a", monday8.AddDate(0, 0, 4), 4),
		essay("b", monday8.AddDate(0, 0, 4), 2.5),
		essay("c", monday8.AddDate(0, 0, 2), 1),
	}
	tasks[1].Priority = models.PriorityCritical
	tasks[2].FocusLoad = models.FocusDeep

	first, err := New().GeneratePlan(baseInput(t, fullGrid(t), tasks...))
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	second, err := New().GeneratePlan(baseInput(t, fullGrid(t), tasks...))
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Error("identical inputs produced different results")
	}

	reversed := slices.Clone(tasks)
	slices.Reverse(reversed)
	third, err := New().GeneratePlan(baseInput(t, fullGrid(t), reversed...))
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	if !reflect.DeepEqual(first.Blocks, third.Blocks) {
		t.Error("task input order changed the plan")
	}
}

func TestGeneratePlan_PriorityBreaksDueTies(t *testing.T) {
	due := monday8.AddDate(0, 0, 3)
	low := essay("a-low", due, 1)
	low.Priority = models.PriorityLow
	high := essay("z-high", due, 1)
	high.Priority = models.PriorityHigh

	res, err := New().GeneratePlan(baseInput(t, fullGrid(t), low, high))
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	if len(res.Blocks) == 0 || res.Blocks[0].TaskID != "z-high" {
		t.Errorf("higher priority task should be placed first, got %+v", res.Blocks)
	}
}

func TestGeneratePlan_PinnedBlocks(t *testing.T) {
	task := essay("essay", monday8.AddDate(0, 0, 3), 3)
	pinned := models.StudyBlock{
		TaskID:     "essay",
		Start:      monday8.Add(time.Hour),
		End:        monday8.Add(2 * time.Hour),
		BlockIndex: 0,
	}
	other := models.StudyBlock{
		TaskID:     "external",
		Start:      monday8,
		End:        monday8.Add(time.Hour),
		BlockIndex: 0,
		Pinned:     true,
	}
	in := baseInput(t, fullGrid(t), task)
	in.Pinned = []models.StudyBlock{pinned, other}

	res, err := New().GeneratePlan(in)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	assertPlanInvariants(t, in, res)

	if got := minutesFor(res.Blocks, "essay"); got != 180 {
		t.Errorf("essay has %d minutes including pinned, want 180", got)
	}
	seen := map[int]bool{}
	for _, b := range res.Blocks {
		if b.TaskID != "essay" {
			continue
		}
		if seen[b.BlockIndex] {
			t.Errorf("duplicate block index %d", b.BlockIndex)
		}
		seen[b.BlockIndex] = true
		if b.BlockIndex == 0 && (!b.Pinned || !b.Start.Equal(pinned.Start)) {
			t.Errorf("index 0 should stay with the pinned block, got %+v", b)
		}
	}
	if in.Pinned[0].Pinned {
		t.Error("GeneratePlan modified the caller's pinned blocks")
	}
}

func TestGeneratePlan_NonSplittable(t *testing.T) {
	short := essay("short", monday8.AddDate(0, 0, 3), 1)
	short.Splittable = false
	long := essay("long", monday8.AddDate(0, 0, 4), 2)
	long.Splittable = false

	res, err := New().GeneratePlan(baseInput(t, fullGrid(t), short, long))
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	for _, tt := range []struct {
		id      string
		minutes int
	}{{"short", 60}, {"long", 120}} {
		var found []models.StudyBlock
		for _, b := range res.Blocks {
			if b.TaskID == tt.id {
				found = append(found, b)
			}
		}
		if len(found) != 1 || found[0].Minutes() != tt.minutes {
			t.Errorf("%s: expected one %d minute block, got %+v", tt.id, tt.minutes, found)
		}
	}

	// A two hour sitting cannot respect the 90 minute break cadence.
	ws := warningsFor(res.Warnings, "long")
	if len(ws) != 1 || ws[0].Kind != models.WarningRelaxedSoftConstraint ||
		!slices.Contains(ws[0].Relaxed, models.SoftBreakCadence) {
		t.Errorf("long: unexpected warnings %v", ws)
	}
	if ws := warningsFor(res.Warnings, "short"); len(ws) != 0 {
		t.Errorf("short: unexpected warnings %v", ws)
	}
}

func TestGeneratePlan_SkippedTasksAreReported(t *testing.T) {
	unknown := essay("unknown", monday8.AddDate(0, 0, 3), 0)
	unknown.EstimatedHours = nil
	done := essay("done", monday8.AddDate(0, 0, 3), 2)
	done.Status = models.TaskCompleted
	far := essay("far", monday8.AddDate(0, 2, 0), 2)
	near := essay("near", monday8.AddDate(0, 0, 3), 1)

	res, err := New().GeneratePlan(baseInput(t, fullGrid(t), unknown, done, far, near))
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	want := map[string]models.WarningKind{
		"unknown": models.WarningNeedsEstimate,
		"far":     models.WarningBeyondHorizon,
	}
	if len(res.Warnings) != len(want) {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	for _, w := range res.Warnings {
		if want[w.TaskID] != w.Kind {
			t.Errorf("%s: got %q, want %q", w.TaskID, w.Kind, want[w.TaskID])
		}
	}
	for _, b := range res.Blocks {
		if b.TaskID != "near" {
			t.Errorf("only active estimated tasks inside the horizon get blocks, found %s", b.TaskID)
		}
	}
}

func TestGeneratePlan_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"min block above max", func(in *Input) { in.Tasks[0].MinBlockMin = 150 }},
		{"sleep spans the day", func(in *Input) { in.Rules.SleepStartHour = in.Rules.SleepEndHour }},
		{"zero daily max", func(in *Input) { in.Rules.DailyMaxMin = 0 }},
		{"grid width mismatch", func(in *Input) { in.Grid = models.NewAvailabilityGrid(30) }},
		{"unknown strict constraint", func(in *Input) { in.Engine.Strict = []models.SoftConstraint{"nap-time"} }},
		{"duplicate task", func(in *Input) { in.Tasks = append(in.Tasks, in.Tasks[0]) }},
		{"overlapping pinned", func(in *Input) {
			in.Pinned = []models.StudyBlock{
				{TaskID: "x", Start: monday8, End: monday8.Add(3 * time.Hour)},
				{TaskID: "y", Start: monday8.Add(30 * time.Minute), End: monday8.Add(time.Hour)},
				{TaskID: "z", Start: monday8.Add(2 * time.Hour), End: monday8.Add(4 * time.Hour)},
			}
		}},
		{"missing now", func(in *Input) { in.Now = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput(t, fullGrid(t), essay("essay", monday8.AddDate(0, 0, 3), 3))
			tt.mutate(&in)
			_, err := New().GeneratePlan(in)
			if !errors.Is(err, sperrors.ErrInvalidConfiguration) {
				t.Errorf("expected invalid configuration, got %v", err)
			}
		})
	}
}

func TestGeneratePlan_RandomizedInvariants(t *testing.T) {
	rng := rand.New(rand.NewPCG(42, 7))
	priorities := []models.Priority{models.PriorityLow, models.PriorityMedium, models.PriorityHigh, models.PriorityCritical}
	loads := []models.FocusLoad{models.FocusLight, models.FocusMedium, models.FocusDeep}

	for run := range 10 {
		var tasks []models.Task
		for i := range 5 + rng.IntN(20) {
			task := essay(fmt.Sprintf("r%d-%02d", run, i), monday8.Add(time.Duration(12+rng.IntN(24*14))*time.Hour), float64(rng.IntN(16))/2)
			task.Difficulty = 1 + rng.IntN(5)
			task.Priority = priorities[rng.IntN(len(priorities))]
			task.FocusLoad = loads[rng.IntN(len(loads))]
			task.Splittable = rng.IntN(4) != 0
			task.Subject = fmt.Sprintf("course-%d", rng.IntN(3))
			tasks = append(tasks, task)
		}
		grid := eveningGrid(t)
		if run%2 == 0 {
			grid = fullGrid(t)
		}
		in := baseInput(t, grid, tasks...)

		res, err := New().GeneratePlan(in)
		if err != nil {
			t.Fatalf("run %d: GeneratePlan failed: %v", run, err)
		}
		assertPlanInvariants(t, in, res)

		for _, a := range res.Allocations {
			got := minutesFor(res.Blocks, a.TaskID)
			if got != a.AllocatedMinutes {
				t.Errorf("run %d %s: blocks hold %d minutes, allocation reports %d", run, a.TaskID, got, a.AllocatedMinutes)
			}
			if got > a.RequiredMinutes {
				t.Errorf("run %d %s: over-allocated %d > %d", run, a.TaskID, got, a.RequiredMinutes)
			}
			if got < a.RequiredMinutes && len(warningsFor(res.Warnings, a.TaskID)) == 0 {
				t.Errorf("run %d %s: short by %d minutes without a warning", run, a.TaskID, a.RequiredMinutes-got)
			}
		}
	}
}
