package models

import (
	"fmt"
	"math"
	"time"

	"github.com/julianstephens/studyplan/internal/constants"
	sperrors "github.com/julianstephens/studyplan/internal/errors"
)

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Rank orders priorities for sorting; lower ranks are scheduled first.
// Unknown values rank like medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

type FocusLoad string

const (
	FocusLight  FocusLoad = "light"
	FocusMedium FocusLoad = "medium"
	FocusDeep   FocusLoad = "deep"
)

type TaskStatus string

const (
	TaskActive    TaskStatus = "active"
	TaskCompleted TaskStatus = "completed"
	TaskArchived  TaskStatus = "archived"
)

// Task is a unit of required study work. The engine never mutates tasks.
type Task struct {
	ID             string     `json:"id" yaml:"id"`
	Title          string     `json:"title" yaml:"title"`
	Subject        string     `json:"subject,omitempty" yaml:"subject,omitempty"`
	DueAt          time.Time  `json:"due_at" yaml:"due_at"`
	EstimatedHours *float64   `json:"estimated_hours,omitempty" yaml:"estimated_hours,omitempty"`
	Difficulty     int        `json:"difficulty" yaml:"difficulty"`
	Priority       Priority   `json:"priority" yaml:"priority"`
	FocusLoad      FocusLoad  `json:"focus_load" yaml:"focus_load"`
	Splittable     bool       `json:"splittable" yaml:"splittable"`
	MinBlockMin    int        `json:"min_block_min" yaml:"min_block_min"`
	MaxBlockMin    int        `json:"max_block_min" yaml:"max_block_min"`
	Status         TaskStatus `json:"status" yaml:"status"`
}

// ApplyTaskDefaults fills zero values with the documented defaults.
func ApplyTaskDefaults(t *Task) {
	if t.Difficulty == 0 {
		t.Difficulty = constants.DefaultDifficulty
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.FocusLoad == "" {
		t.FocusLoad = FocusMedium
	}
	if t.Status == "" {
		t.Status = TaskActive
	}
	if t.MinBlockMin == 0 {
		t.MinBlockMin = constants.DefaultMinBlockMin
	}
	if t.MaxBlockMin == 0 {
		t.MaxBlockMin = constants.DefaultMaxBlockMin
	}
}

func (t *Task) Validate() error {
	field := func(name string) string { return fmt.Sprintf("task[%s].%s", t.ID, name) }

	if t.ID == "" {
		return sperrors.NewInvalidConfiguration("task.id", "task identity cannot be empty")
	}
	if t.DueAt.IsZero() {
		return sperrors.NewInvalidConfiguration(field("due_at"), "due date is required")
	}
	if t.Difficulty < constants.MinDifficulty || t.Difficulty > constants.MaxDifficulty {
		return sperrors.NewInvalidConfiguration(field("difficulty"),
			fmt.Sprintf("must be between %d and %d, got %d", constants.MinDifficulty, constants.MaxDifficulty, t.Difficulty))
	}
	if t.EstimatedHours != nil && (*t.EstimatedHours < 0 || math.IsNaN(*t.EstimatedHours) || math.IsInf(*t.EstimatedHours, 0)) {
		return sperrors.NewInvalidConfiguration(field("estimated_hours"), "must be a non-negative number")
	}
	if t.MinBlockMin <= 0 || t.MaxBlockMin <= 0 {
		return sperrors.NewInvalidConfiguration(field("min_block_min"), "block durations must be positive")
	}
	if t.MinBlockMin > t.MaxBlockMin {
		return sperrors.NewInvalidConfiguration(field("min_block_min"),
			fmt.Sprintf("min_block (%d) exceeds max_block (%d)", t.MinBlockMin, t.MaxBlockMin))
	}
	switch t.Priority {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
	default:
		return sperrors.NewInvalidConfiguration(field("priority"), fmt.Sprintf("unknown priority %q", t.Priority))
	}
	switch t.FocusLoad {
	case FocusLight, FocusMedium, FocusDeep:
	default:
		return sperrors.NewInvalidConfiguration(field("focus_load"), fmt.Sprintf("unknown focus load %q", t.FocusLoad))
	}
	switch t.Status {
	case TaskActive, TaskCompleted, TaskArchived:
	default:
		return sperrors.NewInvalidConfiguration(field("status"), fmt.Sprintf("unknown status %q", t.Status))
	}
	return nil
}

// IsActive reports whether the task takes part in allocation.
func (t *Task) IsActive() bool {
	return t.Status == TaskActive
}

// SubjectKey is the key used for same-subject continuity. Tasks without a
// subject are their own subject.
func (t *Task) SubjectKey() string {
	if t.Subject != "" {
		return t.Subject
	}
	return "task:" + t.ID
}

// DifficultyBuffer returns 1 + (d-3)*0.1.
func DifficultyBuffer(difficulty int) float64 {
	return 1 + float64(difficulty-constants.DefaultDifficulty)*constants.DifficultyBufferStep
}

// RequiredMinutes returns estimated_hours x 60 x DifficultyBuffer in whole
// minutes. The second return value is false when the task has no estimate.
func (t *Task) RequiredMinutes() (int, bool) {
	if t.EstimatedHours == nil {
		return 0, false
	}
	raw := *t.EstimatedHours * 60 * DifficultyBuffer(t.Difficulty)
	if raw <= 0 {
		return 0, true
	}
	// 1e-9 absorbs float error such as 2.3*60 = 137.99999999999997.
	return int(math.Floor(raw + 1e-9)), true
}

// CompareTasks is the single total order used wherever tasks are sorted:
// due date ascending, priority descending, then identity ascending.
func CompareTasks(a, b *Task) int {
	if c := a.DueAt.Compare(b.DueAt); c != 0 {
		return c
	}
	if ra, rb := a.Priority.Rank(), b.Priority.Rank(); ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}
