package models

import (
	"fmt"
	"strings"
)

type WarningKind string

const (
	// WarningNeedsEstimate marks an active task skipped for lack of an effort estimate
	WarningNeedsEstimate WarningKind = "needs-estimate"
	// WarningRelaxedSoftConstraint marks a task that did not get its full
	// requirement, or whose minimum-viable-progress block relaxed strict soft
	// constraints. Detail says which.
	WarningRelaxedSoftConstraint WarningKind = "relaxed-soft-constraint"
	// WarningUnschedulable marks a task that received no time at all
	WarningUnschedulable WarningKind = "unschedulable"
	// WarningInsufficientTime is the Detail of a warning whose task received
	// less than its required minutes
	WarningInsufficientTime WarningKind = "insufficient-time"
	// WarningBeyondHorizon marks an active task due after the planning horizon
	WarningBeyondHorizon WarningKind = "beyond-horizon"
)

// Warning is an infeasibility report attached to an otherwise successful result.
type Warning struct {
	Kind             WarningKind      `json:"kind"`
	TaskID           string           `json:"task_id"`
	TaskTitle        string           `json:"task_title,omitempty"`
	RequiredMinutes  int              `json:"required_minutes,omitempty"`
	AllocatedMinutes int              `json:"allocated_minutes,omitempty"`
	Relaxed          []SoftConstraint `json:"relaxed,omitempty"`
	Detail           WarningKind      `json:"detail,omitempty"`
}

func (w Warning) String() string {
	name := w.TaskTitle
	if name == "" {
		name = w.TaskID
	}
	switch w.Kind {
	case WarningNeedsEstimate:
		return fmt.Sprintf("%s: needs an effort estimate before it can be scheduled", name)
	case WarningRelaxedSoftConstraint:
		if len(w.Relaxed) == 0 {
			return fmt.Sprintf("%s: only %d of %d min could be scheduled", name, w.AllocatedMinutes, w.RequiredMinutes)
		}
		relaxed := make([]string, len(w.Relaxed))
		for i, r := range w.Relaxed {
			relaxed[i] = string(r)
		}
		return fmt.Sprintf("%s: minimum progress block placed by relaxing %s (%d of %d min)",
			name, strings.Join(relaxed, ", "), w.AllocatedMinutes, w.RequiredMinutes)
	case WarningUnschedulable:
		return fmt.Sprintf("%s: no admissible time in the planning horizon", name)
	case WarningInsufficientTime:
		return fmt.Sprintf("%s: only %d of %d min could be scheduled", name, w.AllocatedMinutes, w.RequiredMinutes)
	case WarningBeyondHorizon:
		return fmt.Sprintf("%s: due after the planning horizon; not scheduled in this run", name)
	}
	return fmt.Sprintf("%s: %s", name, w.Kind)
}
