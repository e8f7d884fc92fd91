package validation

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/julianstephens/studyplan/internal/constants"
	"github.com/julianstephens/studyplan/internal/models"
)

// ConflictType represents the type of validation conflict
type ConflictType string

const (
	ConflictInvalidTask        ConflictType = "invalid_task"
	ConflictDuplicateTaskID    ConflictType = "duplicate_task_id"
	ConflictInvalidInterval    ConflictType = "invalid_interval"
	ConflictDuplicateBlockKey  ConflictType = "duplicate_block_key"
	ConflictOverlappingBlocks  ConflictType = "overlapping_blocks"
	ConflictOutsideAvailable   ConflictType = "outside_availability"
	ConflictSleepWindow        ConflictType = "sleep_window"
	ConflictDailyCapExceeded   ConflictType = "daily_cap_exceeded"
	ConflictOverAllocated      ConflictType = "over_allocated"
	ConflictUnreportedShortage ConflictType = "unreported_shortage"
	ConflictUnknownTask        ConflictType = "unknown_task"
)

// Conflict represents a detected conflict in tasks or a block set
type Conflict struct {
	Type        ConflictType
	Description string
	Date        string   // YYYY-MM-DD (if applicable)
	TimeRange   string   // Human-readable time range (if applicable)
	TaskIDs     []string // IDs of tasks involved
}

// ValidationResult contains all detected conflicts
type ValidationResult struct {
	Conflicts []Conflict
}

func (vr *ValidationResult) HasConflicts() bool {
	return len(vr.Conflicts) > 0
}

// Of returns the conflicts of one type.
func (vr *ValidationResult) Of(t ConflictType) []Conflict {
	var out []Conflict
	for _, c := range vr.Conflicts {
		if c.Type == t {
			out = append(out, c)
		}
	}
	return out
}

// FormatReport returns a human-readable report of all conflicts
func (vr *ValidationResult) FormatReport() string {
	if !vr.HasConflicts() {
		return "No conflicts detected."
	}
	var sb strings.Builder
	sb.WriteString("Conflicts detected:\n")
	for _, c := range vr.Conflicts {
		fmt.Fprintf(&sb, "- %s\n", c.Description)
	}
	return sb.String()
}

func (vr *ValidationResult) add(c Conflict) {
	vr.Conflicts = append(vr.Conflicts, c)
}

// Validator checks tasks and block sets against the plan invariants.
type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// ValidateTasks reports every invalid or duplicated task instead of
// stopping at the first one.
func (v *Validator) ValidateTasks(tasks []models.Task) ValidationResult {
	result := ValidationResult{Conflicts: []Conflict{}}
	seen := make(map[string]bool, len(tasks))
	for _, t := range tasks {
		models.ApplyTaskDefaults(&t)
		if err := t.Validate(); err != nil {
			result.add(Conflict{
				Type:        ConflictInvalidTask,
				Description: err.Error(),
				TaskIDs:     []string{t.ID},
			})
		}
		if t.ID != "" && seen[t.ID] {
			result.add(Conflict{
				Type:        ConflictDuplicateTaskID,
				Description: fmt.Sprintf("Task %s is defined more than once", t.ID),
				TaskIDs:     []string{t.ID},
			})
		}
		seen[t.ID] = true
	}
	return result
}

// PlanInput is a block set together with the inputs it was generated from.
type PlanInput struct {
	Blocks   []models.StudyBlock
	Tasks    []models.Task
	Warnings []models.Warning
	Grid     models.AvailabilityGrid
	Rules    models.SchedulingRules
}

// ValidatePlan checks a block set: no overlaps, generated blocks only in open
// slots outside the sleep window, day caps honoured, no task over-allocated
// and every shortfall reported by a warning. Pinned blocks are trusted
// occupants and only take part in the overlap and cap checks.
func (v *Validator) ValidatePlan(in PlanInput) ValidationResult {
	result := ValidationResult{Conflicts: []Conflict{}}
	loc := in.Rules.Loc()
	w := in.Rules.SlotDurationMin

	blocks := slices.Clone(in.Blocks)
	slices.SortFunc(blocks, models.CompareBlocks)

	tasks := make(map[string]models.Task, len(in.Tasks))
	for _, t := range in.Tasks {
		models.ApplyTaskDefaults(&t)
		tasks[t.ID] = t
	}

	keys := make(map[models.BlockKey]bool, len(blocks))
	latest := -1
	for i, b := range blocks {
		label := fmt.Sprintf("%s#%d", b.TaskID, b.BlockIndex)
		if !b.End.After(b.Start) {
			result.add(Conflict{
				Type:        ConflictInvalidInterval,
				Description: fmt.Sprintf("Block %s ends before it starts", label),
				TimeRange:   formatRange(b, loc),
				TaskIDs:     []string{b.TaskID},
			})
			continue
		}
		if keys[b.Key()] {
			result.add(Conflict{
				Type:        ConflictDuplicateBlockKey,
				Description: fmt.Sprintf("Block %s appears more than once", label),
				TaskIDs:     []string{b.TaskID},
			})
		}
		keys[b.Key()] = true

		if _, ok := tasks[b.TaskID]; !ok && !b.Pinned {
			result.add(Conflict{
				Type:        ConflictUnknownTask,
				Description: fmt.Sprintf("Block %s references unknown task %s", label, b.TaskID),
				TaskIDs:     []string{b.TaskID},
			})
		}

		if latest >= 0 && blocks[latest].Overlaps(b) {
			prev := blocks[latest]
			result.add(Conflict{
				Type: ConflictOverlappingBlocks,
				Description: fmt.Sprintf("%s: blocks %s#%d and %s overlap",
					formatDate(b.Start, loc), prev.TaskID, prev.BlockIndex, label),
				Date:      formatDate(b.Start, loc),
				TimeRange: formatRange(b, loc),
				TaskIDs:   []string{prev.TaskID, b.TaskID},
			})
		}
		if latest < 0 || b.End.After(blocks[latest].End) {
			latest = i
		}

		if !b.Pinned && w > 0 {
			v.checkSlots(&result, b, label, in.Grid, &in.Rules)
		}
	}

	v.checkDailyCaps(&result, blocks, &in.Rules)
	v.checkAllocation(&result, blocks, tasks, in.Warnings)
	return result
}

func (v *Validator) checkSlots(result *ValidationResult, b models.StudyBlock, label string, grid models.AvailabilityGrid, rules *models.SchedulingRules) {
	loc := rules.Loc()
	step := time.Duration(rules.SlotDurationMin) * time.Minute
	for t := b.Start; t.Before(b.End); t = t.Add(step) {
		local := t.In(loc)
		if rules.InSleepWindow(local.Hour()) {
			result.add(Conflict{
				Type:        ConflictSleepWindow,
				Description: fmt.Sprintf("%s: block %s is scheduled in the sleep window", formatDate(b.Start, loc), label),
				Date:        formatDate(b.Start, loc),
				TimeRange:   formatRange(b, loc),
				TaskIDs:     []string{b.TaskID},
			})
			return
		}
		if !grid.Available(local.Weekday(), local.Hour()*60+local.Minute()) {
			result.add(Conflict{
				Type:        ConflictOutsideAvailable,
				Description: fmt.Sprintf("%s: block %s is outside available time at %s", formatDate(b.Start, loc), label, local.Format(constants.TimeFormat)),
				Date:        formatDate(b.Start, loc),
				TimeRange:   formatRange(b, loc),
				TaskIDs:     []string{b.TaskID},
			})
			return
		}
	}
}

// checkDailyCaps flags days over daily_max_min that carry generated blocks;
// a day over the cap through pinned blocks alone is the user's choice.
func (v *Validator) checkDailyCaps(result *ValidationResult, blocks []models.StudyBlock, rules *models.SchedulingRules) {
	loc := rules.Loc()
	type day struct {
		minutes   int
		generated bool
	}
	days := make(map[string]*day)
	var order []string
	for _, b := range blocks {
		if !b.End.After(b.Start) {
			continue
		}
		key := formatDate(b.Start, loc)
		d, ok := days[key]
		if !ok {
			d = &day{}
			days[key] = d
			order = append(order, key)
		}
		d.minutes += b.Minutes()
		d.generated = d.generated || !b.Pinned
	}
	for _, key := range order {
		d := days[key]
		if d.generated && d.minutes > rules.DailyMaxMin {
			result.add(Conflict{
				Type:        ConflictDailyCapExceeded,
				Description: fmt.Sprintf("%s: %d minutes scheduled, cap is %d", key, d.minutes, rules.DailyMaxMin),
				Date:        key,
			})
		}
	}
}

func (v *Validator) checkAllocation(result *ValidationResult, blocks []models.StudyBlock, tasks map[string]models.Task, warnings []models.Warning) {
	allocated := make(map[string]int)
	generated := make(map[string]bool)
	for _, b := range blocks {
		if b.End.After(b.Start) {
			allocated[b.TaskID] += b.Minutes()
		}
		if !b.Pinned {
			generated[b.TaskID] = true
		}
	}
	warned := make(map[string]bool, len(warnings))
	for _, warn := range warnings {
		warned[warn.TaskID] = true
	}

	ids := make([]string, 0, len(tasks))
	for id := range tasks {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	for _, id := range ids {
		t := tasks[id]
		if !t.IsActive() {
			continue
		}
		required, ok := t.RequiredMinutes()
		if !ok {
			if !warned[id] {
				result.add(Conflict{
					Type:        ConflictUnreportedShortage,
					Description: fmt.Sprintf("Task %s has no estimate and no warning", id),
					TaskIDs:     []string{id},
				})
			}
			continue
		}
		got := allocated[id]
		if got > required && generated[id] {
			result.add(Conflict{
				Type:        ConflictOverAllocated,
				Description: fmt.Sprintf("Task %s received %d minutes, requires %d", id, got, required),
				TaskIDs:     []string{id},
			})
		}
		if got < required && !warned[id] {
			result.add(Conflict{
				Type:        ConflictUnreportedShortage,
				Description: fmt.Sprintf("Task %s received %d of %d minutes without a warning", id, got, required),
				TaskIDs:     []string{id},
			})
		}
	}
}

func formatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(constants.DateFormat)
}

func formatRange(b models.StudyBlock, loc *time.Location) string {
	return fmt.Sprintf("%s-%s", b.Start.In(loc).Format(constants.TimeFormat), b.End.In(loc).Format(constants.TimeFormat))
}
