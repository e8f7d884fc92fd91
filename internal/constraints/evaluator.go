// Package constraints classifies candidate slot ranges against the hard and
// soft scheduling constraints and the current partial allocation.
package constraints

import (
	"time"

	"github.com/julianstephens/studyplan/internal/models"
	"github.com/julianstephens/studyplan/internal/timegrid"
)

// HardViolation names the first hard constraint a candidate failed.
type HardViolation string

const (
	HardNone        HardViolation = ""
	HardOutOfRange  HardViolation = "out-of-range"
	HardCrossesDay  HardViolation = "crosses-day"
	HardUnavailable HardViolation = "unavailable"
	HardSleep       HardViolation = "sleep-window"
	HardOverlap     HardViolation = "overlap"
	HardDailyCap    HardViolation = "daily-cap"
	HardWriteQuota  HardViolation = "write-quota"
)

// Subject is the part of a task the evaluator needs.
type Subject struct {
	TaskID    string
	Subject   string
	DueAt     time.Time
	FocusLoad models.FocusLoad
}

func SubjectOf(t *models.Task) Subject {
	return Subject{TaskID: t.ID, Subject: t.SubjectKey(), DueAt: t.DueAt, FocusLoad: t.FocusLoad}
}

// Candidate is a contiguous slot range [First, First+Slots) for one task.
type Candidate struct {
	Task  Subject
	First int
	Slots int
}

// Score is one soft constraint's contribution.
type Score struct {
	Constraint models.SoftConstraint
	Amount     float64
	Penalty    float64
}

// Result is the evaluator's verdict. Lower penalties are better.
type Result struct {
	Admissible bool
	Hard       HardViolation
	Penalty    float64
	Scores     []Score
}

// Violates reports whether the named soft constraint contributed a non-zero amount.
func (r Result) Violates(c models.SoftConstraint) bool {
	for _, s := range r.Scores {
		if s.Constraint == c {
			return s.Amount > 0
		}
	}
	return false
}

// ViolatedStrict returns the strict soft constraints this result violates, in
// evaluation order.
func (r Result) ViolatedStrict(cfg *models.EngineConfig) []models.SoftConstraint {
	var out []models.SoftConstraint
	for _, s := range r.Scores {
		if s.Amount > 0 && cfg.IsStrict(s.Constraint) {
			out = append(out, s.Constraint)
		}
	}
	return out
}

type Evaluator struct {
	grid  *models.AvailabilityGrid
	rules *models.SchedulingRules
	cfg   *models.EngineConfig
	h     *timegrid.Horizon
}

func NewEvaluator(h *timegrid.Horizon, grid *models.AvailabilityGrid, rules *models.SchedulingRules, cfg *models.EngineConfig) *Evaluator {
	return &Evaluator{grid: grid, rules: rules, cfg: cfg, h: h}
}

// SlotOpen checks the per-slot hard constraints: grid availability, the sleep
// window and occupancy.
func (e *Evaluator) SlotOpen(i int, a *Allocation) bool {
	return e.slotViolation(i, a) == HardNone
}

func (e *Evaluator) slotViolation(i int, a *Allocation) HardViolation {
	s := e.h.Slot(i)
	if !e.grid.Available(s.Weekday, s.MinuteOfDay) {
		return HardUnavailable
	}
	if e.rules.InSleepWindow(s.Hour()) {
		return HardSleep
	}
	if !a.IsFree(i) {
		return HardOverlap
	}
	return HardNone
}

// CheckHard evaluates only the hard constraints of c.
func (e *Evaluator) CheckHard(c Candidate, a *Allocation) HardViolation {
	if c.Slots <= 0 || c.First < 0 || c.First+c.Slots > e.h.Len() {
		return HardOutOfRange
	}
	day := e.h.Slot(c.First).Day
	for i := c.First; i < c.First+c.Slots; i++ {
		if e.h.Slot(i).Day != day {
			return HardCrossesDay
		}
		if v := e.slotViolation(i, a); v != HardNone {
			return v
		}
	}
	if a.DayMinutes(day)+c.Slots*e.h.SlotMin > e.rules.DailyMaxMin {
		return HardDailyCap
	}
	if e.cfg.WriteQuota > 0 && a.Writes() >= e.cfg.WriteQuota {
		return HardWriteQuota
	}
	return HardNone
}

// Evaluate classifies c: hard constraints first, then the weighted soft
// penalty. Inadmissible candidates carry no scores.
func (e *Evaluator) Evaluate(c Candidate, a *Allocation) Result {
	if v := e.CheckHard(c, a); v != HardNone {
		return Result{Hard: v}
	}

	res := Result{Admissible: true, Scores: make([]Score, 0, len(models.AllSoftConstraints))}
	for _, sc := range models.AllSoftConstraints {
		amount := e.amount(sc, c, a)
		p := amount * e.cfg.Weights.Of(sc)
		res.Scores = append(res.Scores, Score{Constraint: sc, Amount: amount, Penalty: p})
		res.Penalty += p
	}
	return res
}

func (e *Evaluator) amount(sc models.SoftConstraint, c Candidate, a *Allocation) float64 {
	switch sc {
	case models.SoftSubjectContinuity:
		return e.subjectExcess(c, a)
	case models.SoftBreakCadence:
		return e.breakExcess(c, a)
	case models.SoftFocusWindow:
		return e.focusOutside(c)
	case models.SoftWeekendBudget:
		return e.weekendExcess(c, a)
	case models.SoftDueProximity:
		return e.dueCloseness(c)
	case models.SoftPastDue:
		return e.pastDue(c)
	}
	return 0
}

// subjectExcess counts slots by which the same-subject run containing c
// exceeds max_continuous_subject_min.
func (e *Evaluator) subjectExcess(c Candidate, a *Allocation) float64 {
	same := func(i int) bool {
		occ, ok := a.OccupantAt(i)
		return ok && occ.Subject == c.Task.Subject
	}
	run := c.Slots
	for i := c.First - 1; i >= 0 && same(i); i-- {
		run++
	}
	for i := c.First + c.Slots; i < e.h.Len() && same(i); i++ {
		run++
	}
	limit := e.rules.MaxContinuousSubjectMin / e.h.SlotMin
	return float64(max(0, run-limit))
}

// breakExcess counts slots by which the study run containing c exceeds
// break_after_min. Gaps shorter than break_duration_min do not end a run.
func (e *Evaluator) breakExcess(c Candidate, a *Allocation) float64 {
	breakSlots := max(1, ceilDiv(e.rules.BreakDurationMin, e.h.SlotMin))
	run := c.Slots + e.studyRun(c.First-1, -1, breakSlots, a) + e.studyRun(c.First+c.Slots, 1, breakSlots, a)
	limit := e.rules.BreakAfterMin / e.h.SlotMin
	return float64(max(0, run-limit))
}

// studyRun walks from i in direction step and counts occupied slots until it
// meets a gap of at least breakSlots free slots or the horizon edge.
func (e *Evaluator) studyRun(i, step, breakSlots int, a *Allocation) int {
	count, gap := 0, 0
	for ; i >= 0 && i < e.h.Len(); i += step {
		if a.IsFree(i) {
			gap++
			if gap >= breakSlots {
				break
			}
			continue
		}
		count++
		gap = 0
	}
	return count
}

func (e *Evaluator) focusOutside(c Candidate) float64 {
	if c.Task.FocusLoad != models.FocusDeep {
		return 0
	}
	outside := 0
	for i := c.First; i < c.First+c.Slots; i++ {
		if !e.rules.InPreferredWindow(e.h.Slot(i).Hour()) {
			outside++
		}
	}
	return float64(outside)
}

// weekendExcess counts the slots this candidate adds above the weekend budget.
func (e *Evaluator) weekendExcess(c Candidate, a *Allocation) float64 {
	first := e.h.Slot(c.First)
	if !e.rules.LighterWeekends || !first.IsWeekend() {
		return 0
	}
	used := a.DayMinutes(first.Day)
	added := c.Slots * e.h.SlotMin
	over := max(0, used+added-e.rules.WeekendMaxMin) - max(0, used-e.rules.WeekendMaxMin)
	return float64(over / e.h.SlotMin)
}

// dueCloseness is 0 for blocks ending at least due_proximity_hours before the
// due date and rises linearly to 1 at the due date.
func (e *Evaluator) dueCloseness(c Candidate) float64 {
	window := time.Duration(e.cfg.DueProximityHours) * time.Hour
	if window <= 0 {
		return 0
	}
	left := c.Task.DueAt.Sub(e.h.SlotEnd(c.First + c.Slots - 1))
	if left >= window {
		return 0
	}
	if left <= 0 {
		return 1
	}
	return 1 - float64(left)/float64(window)
}

// pastDue counts slots of the candidate that end after the due date.
func (e *Evaluator) pastDue(c Candidate) float64 {
	late := 0
	for i := c.First; i < c.First+c.Slots; i++ {
		if e.h.SlotEnd(i).After(c.Task.DueAt) {
			late++
		}
	}
	return float64(late)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
