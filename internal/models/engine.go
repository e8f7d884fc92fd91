package models

import (
	"fmt"
	"slices"

	"github.com/julianstephens/studyplan/internal/constants"
	sperrors "github.com/julianstephens/studyplan/internal/errors"
)

// SoftConstraint names a scored preference of the constraint evaluator.
type SoftConstraint string

const (
	// SoftSubjectContinuity penalizes continuing one subject past max_continuous_subject_min
	SoftSubjectContinuity SoftConstraint = "subject-continuity"
	// SoftBreakCadence penalizes study runs longer than break_after_min without a break
	SoftBreakCadence SoftConstraint = "break-cadence"
	// SoftFocusWindow penalizes deep-focus work outside the preferred window
	SoftFocusWindow SoftConstraint = "focus-window"
	// SoftWeekendBudget penalizes weekend minutes above weekend_max_min
	SoftWeekendBudget SoftConstraint = "weekend-budget"
	// SoftDueProximity penalizes effort clustered right before the due date
	SoftDueProximity SoftConstraint = "due-proximity"
	// SoftPastDue penalizes placing work after the due date
	SoftPastDue SoftConstraint = "past-due"
)

// AllSoftConstraints lists the soft constraints in evaluation order.
var AllSoftConstraints = []SoftConstraint{
	SoftSubjectContinuity,
	SoftBreakCadence,
	SoftFocusWindow,
	SoftWeekendBudget,
	SoftDueProximity,
	SoftPastDue,
}

// Weights are the per-constraint multipliers of the penalty sum. Each soft
// constraint reports a raw amount (slots of excess, or a 0-1 closeness for
// due proximity) that is multiplied by its weight.
type Weights struct {
	SubjectContinuity float64 `json:"subject_continuity" toml:"subject_continuity"`
	BreakCadence      float64 `json:"break_cadence" toml:"break_cadence"`
	FocusWindow       float64 `json:"focus_window" toml:"focus_window"`
	WeekendBudget     float64 `json:"weekend_budget" toml:"weekend_budget"`
	DueProximity      float64 `json:"due_proximity" toml:"due_proximity"`
	PastDue           float64 `json:"past_due" toml:"past_due"`
}

func (w Weights) Of(c SoftConstraint) float64 {
	switch c {
	case SoftSubjectContinuity:
		return w.SubjectContinuity
	case SoftBreakCadence:
		return w.BreakCadence
	case SoftFocusWindow:
		return w.FocusWindow
	case SoftWeekendBudget:
		return w.WeekendBudget
	case SoftDueProximity:
		return w.DueProximity
	case SoftPastDue:
		return w.PastDue
	}
	return 0
}

// EngineConfig tunes the allocator. Strict lists the soft constraints the
// main pass refuses to violate; the minimum-viable-progress pass ignores it.
type EngineConfig struct {
	Weights           Weights          `json:"weights" toml:"weights"`
	Strict            []SoftConstraint `json:"strict" toml:"strict"`
	LookAheadSlots    int              `json:"look_ahead_slots" toml:"look_ahead_slots"`
	DueProximityHours int              `json:"due_proximity_hours" toml:"due_proximity_hours"`
	// WriteQuota caps newly generated blocks (external calendar writes); 0 disables it.
	WriteQuota int `json:"write_quota" toml:"write_quota"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		Weights: Weights{
			SubjectContinuity: constants.DefaultWeightSubject,
			BreakCadence:      constants.DefaultWeightBreak,
			FocusWindow:       constants.DefaultWeightFocusWindow,
			WeekendBudget:     constants.DefaultWeightWeekend,
			DueProximity:      constants.DefaultWeightDueProximity,
			PastDue:           constants.DefaultWeightPastDue,
		},
		Strict:            []SoftConstraint{SoftSubjectContinuity, SoftBreakCadence, SoftPastDue},
		LookAheadSlots:    constants.DefaultLookAheadSlots,
		DueProximityHours: constants.DefaultDueProximityHours,
		WriteQuota:        constants.DefaultWriteQuota,
	}
}

func (c *EngineConfig) IsStrict(s SoftConstraint) bool {
	return slices.Contains(c.Strict, s)
}

func (c *EngineConfig) Validate() error {
	for _, s := range c.Strict {
		if !slices.Contains(AllSoftConstraints, s) {
			return sperrors.NewInvalidConfiguration("engine.strict", fmt.Sprintf("unknown soft constraint %q", s))
		}
	}
	for _, s := range AllSoftConstraints {
		if c.Weights.Of(s) < 0 {
			return sperrors.NewInvalidConfiguration("engine.weights."+string(s), "weights cannot be negative")
		}
	}
	if c.LookAheadSlots < 0 {
		return sperrors.NewInvalidConfiguration("engine.look_ahead_slots", "cannot be negative")
	}
	if c.DueProximityHours < 0 {
		return sperrors.NewInvalidConfiguration("engine.due_proximity_hours", "cannot be negative")
	}
	if c.WriteQuota < 0 {
		return sperrors.NewInvalidConfiguration("engine.write_quota", "cannot be negative")
	}
	return nil
}
