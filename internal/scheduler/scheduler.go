// Package scheduler is the allocator: it turns tasks, availability, rules and
// pinned commitments into a candidate block set plus feasibility warnings.
// GeneratePlan is a pure function of its input.
package scheduler

import (
	"fmt"
	"slices"
	"time"

	"github.com/julianstephens/studyplan/internal/constraints"
	sperrors "github.com/julianstephens/studyplan/internal/errors"
	"github.com/julianstephens/studyplan/internal/models"
	"github.com/julianstephens/studyplan/internal/timegrid"
)

type Scheduler struct{}

func New() *Scheduler {
	return &Scheduler{}
}

// Input is everything one generate call depends on.
type Input struct {
	Tasks  []models.Task
	Grid   models.AvailabilityGrid
	Rules  models.SchedulingRules
	Engine models.EngineConfig
	Pinned []models.StudyBlock
	Now    time.Time
}

// TaskAllocation reports how much time one scheduled task received.
type TaskAllocation struct {
	TaskID           string `json:"task_id"`
	RequiredMinutes  int    `json:"required_minutes"`
	AllocatedMinutes int    `json:"allocated_minutes"`
}

// Result is the candidate block set of one generate call. Blocks carry no
// identity or version until they are confirmed.
type Result struct {
	Blocks       []models.StudyBlock
	Warnings     []models.Warning
	Allocations  []TaskAllocation
	HorizonStart time.Time
	HorizonEnd   time.Time
}

// taskState tracks one task through both passes.
type taskState struct {
	task      *models.Task
	subject   constraints.Subject
	needMin   int // exact buffered requirement
	required  int // whole slots that fit in needMin
	allocated int // slots, pinned rounded up
	gotMin    int // minutes actually held, pinned included
	minSlots  int
	maxSlots  int
	usedIdx   map[int]bool
	placed    []span
	relaxed   []models.SoftConstraint
	mvp       bool
}

type span struct {
	first, n int
}

func (st *taskState) remaining() int {
	return max(0, st.required-st.allocated)
}

// GeneratePlan runs a full regeneration. Configuration problems are returned
// as errors before any allocation happens; feasibility problems are reported
// as warnings on an otherwise successful result.
func (s *Scheduler) GeneratePlan(in Input) (Result, error) {
	tasks, err := validate(&in)
	if err != nil {
		return Result{}, err
	}

	rules := in.Rules
	w := rules.SlotDurationMin
	loc := rules.Loc()

	start := timegrid.RoundUp(in.Now, w, loc)
	end := timegrid.HorizonEnd(start, tasks, rules.TermEnd)
	h := timegrid.New(start, end, w, loc)
	alloc := constraints.NewAllocation(h)
	eval := constraints.NewEvaluator(h, &in.Grid, &rules, &in.Engine)

	res := Result{HorizonStart: start, HorizonEnd: end}

	// Step 1: filter to active tasks, flagging the ones the run cannot use
	var states []*taskState
	byID := make(map[string]*taskState)
	warnings := make(map[string]models.Warning)
	for i := range tasks {
		t := &tasks[i]
		if !t.IsActive() {
			continue
		}
		if t.DueAt.After(end) {
			warnings[t.ID] = models.Warning{Kind: models.WarningBeyondHorizon, TaskID: t.ID, TaskTitle: t.Title}
			continue
		}
		need, ok := t.RequiredMinutes()
		if !ok {
			warnings[t.ID] = models.Warning{Kind: models.WarningNeedsEstimate, TaskID: t.ID, TaskTitle: t.Title}
			continue
		}
		minSlots := ceilDiv(t.MinBlockMin, w)
		st := &taskState{
			task:     t,
			subject:  constraints.SubjectOf(t),
			needMin:  need,
			required: need / w,
			minSlots: minSlots,
			maxSlots: t.MaxBlockMin / w,
			usedIdx:  make(map[int]bool),
		}
		states = append(states, st)
		byID[t.ID] = st
	}

	// Step 2: pinned blocks are immovable occupants
	pinned := make([]models.StudyBlock, len(in.Pinned))
	copy(pinned, in.Pinned)
	slices.SortFunc(pinned, models.CompareBlocks)
	titles := make(map[string]string, len(tasks))
	for i := range tasks {
		titles[tasks[i].ID] = tasks[i].Title
	}
	for i := range pinned {
		b := &pinned[i]
		b.Pinned = true
		b.ID = ""
		b.VersionNumber = 0
		if b.TaskTitle == "" {
			b.TaskTitle = titles[b.TaskID]
		}
		occ := constraints.Occupant{TaskID: b.TaskID, Subject: "task:" + b.TaskID, Pinned: true}
		if st, ok := byID[b.TaskID]; ok {
			occ.Subject = st.subject.Subject
			st.allocated += ceilDiv(b.Minutes(), w)
			st.gotMin += b.Minutes()
			st.usedIdx[b.BlockIndex] = true
		}
		first, last := h.Covering(b.Start, b.End)
		if last > first {
			alloc.Occupy(first, last-first, occ)
		}
	}

	// Step 3: main pass, in the order validate sorted the tasks
	// (earliest deadline first, then priority, then identity)
	for _, st := range states {
		s.allocate(st, h, eval, alloc, &in.Engine)
	}

	// Step 4: minimum-viable-progress pass for tasks left with nothing
	for _, st := range states {
		if st.allocated == 0 && st.required > 0 {
			s.forceMinimum(st, h, eval, alloc, &in.Engine)
		}
	}

	// Step 5: materialize blocks and warnings
	blocks := pinned
	for _, st := range states {
		blocks = append(blocks, st.blocks(h)...)
		res.Allocations = append(res.Allocations, TaskAllocation{
			TaskID:           st.task.ID,
			RequiredMinutes:  st.needMin,
			AllocatedMinutes: st.gotMin,
		})
		if warn, ok := st.warning(); ok {
			warnings[st.task.ID] = warn
		}
	}
	slices.SortFunc(blocks, models.CompareBlocks)
	res.Blocks = blocks

	for i := range tasks {
		if warn, ok := warnings[tasks[i].ID]; ok {
			res.Warnings = append(res.Warnings, warn)
		}
	}
	return res, nil
}

// allocate packs the task's requirement into the lowest-penalty admissible
// windows, preferring the largest block size that fits.
func (s *Scheduler) allocate(st *taskState, h *timegrid.Horizon, eval *constraints.Evaluator, alloc *constraints.Allocation, cfg *models.EngineConfig) {
	limit := h.Len()
	if cfg.IsStrict(models.SoftPastDue) {
		limit = h.IndexBefore(st.task.DueAt)
	}
	for st.remaining() > 0 {
		rem := st.remaining()
		hi, lo := min(st.maxSlots, rem), min(st.minSlots, rem)
		if !st.task.Splittable {
			// One contiguous block for the whole requirement.
			if len(st.placed) > 0 || st.allocated > 0 {
				return
			}
			hi, lo = rem, rem
		}
		placed := false
		for k := hi; k >= lo && !placed; k-- {
			first, ok := s.bestWindow(st, k, limit, h, eval, alloc, cfg)
			if !ok {
				continue
			}
			st.place(first, k, alloc)
			placed = true
		}
		if !placed {
			return
		}
	}
}

// bestWindow finds the earliest start whose candidate is admissible and
// violates no strict soft constraint, then looks ahead for a window of the
// same size with a lower penalty. Ties keep the earlier start.
func (s *Scheduler) bestWindow(st *taskState, k, limit int, h *timegrid.Horizon, eval *constraints.Evaluator, alloc *constraints.Allocation, cfg *models.EngineConfig) (int, bool) {
	best, bestPenalty := -1, 0.0
	stop := limit - k
	for first := 0; first <= stop; first++ {
		if !eval.SlotOpen(first, alloc) {
			continue
		}
		r := eval.Evaluate(constraints.Candidate{Task: st.subject, First: first, Slots: k}, alloc)
		if !r.Admissible || len(r.ViolatedStrict(cfg)) > 0 {
			continue
		}
		if best < 0 {
			best, bestPenalty = first, r.Penalty
			stop = min(stop, first+cfg.LookAheadSlots)
			continue
		}
		if r.Penalty < bestPenalty {
			best, bestPenalty = first, r.Penalty
		}
	}
	return best, best >= 0
}

// forceMinimum places one minimal block at the earliest hard-admissible start
// anywhere in the horizon, ignoring the strict soft constraints.
func (s *Scheduler) forceMinimum(st *taskState, h *timegrid.Horizon, eval *constraints.Evaluator, alloc *constraints.Allocation, cfg *models.EngineConfig) {
	k := min(st.minSlots, st.remaining())
	if !st.task.Splittable {
		k = st.remaining()
	}
	for first := 0; first+k <= h.Len(); first++ {
		r := eval.Evaluate(constraints.Candidate{Task: st.subject, First: first, Slots: k}, alloc)
		if !r.Admissible {
			continue
		}
		st.place(first, k, alloc)
		st.relaxed = r.ViolatedStrict(cfg)
		st.mvp = true
		return
	}
}

func (st *taskState) place(first, k int, alloc *constraints.Allocation) {
	alloc.Occupy(first, k, constraints.Occupant{TaskID: st.task.ID, Subject: st.subject.Subject})
	st.placed = append(st.placed, span{first: first, n: k})
	st.allocated += k
	st.gotMin += k * alloc.Horizon().SlotMin
}

// blocks converts placed spans into study blocks numbered in start order,
// skipping indices already held by the task's pinned blocks.
func (st *taskState) blocks(h *timegrid.Horizon) []models.StudyBlock {
	spans := slices.Clone(st.placed)
	slices.SortFunc(spans, func(a, b span) int { return a.first - b.first })
	out := make([]models.StudyBlock, 0, len(spans))
	idx := 0
	for _, sp := range spans {
		for st.usedIdx[idx] {
			idx++
		}
		out = append(out, models.StudyBlock{
			TaskID:     st.task.ID,
			TaskTitle:  st.task.Title,
			Start:      h.Slot(sp.first).Start,
			End:        h.SlotEnd(sp.first + sp.n - 1),
			BlockIndex: idx,
		})
		idx++
	}
	return out
}

// warning returns the single feasibility warning for the task, if any. Any
// shortfall against the exact requirement is reported, including the part of
// it that is smaller than one slot.
func (st *taskState) warning() (models.Warning, bool) {
	warn := models.Warning{
		TaskID:           st.task.ID,
		TaskTitle:        st.task.Title,
		RequiredMinutes:  st.needMin,
		AllocatedMinutes: st.gotMin,
	}
	short := st.gotMin < st.needMin
	if short {
		warn.Detail = models.WarningInsufficientTime
	}
	switch {
	case st.needMin == 0:
		return models.Warning{}, false
	case st.gotMin == 0 && st.required > 0:
		warn.Kind = models.WarningUnschedulable
		warn.Detail = ""
	case st.mvp && len(st.relaxed) > 0:
		warn.Kind = models.WarningRelaxedSoftConstraint
		warn.Relaxed = st.relaxed
	case short:
		warn.Kind = models.WarningRelaxedSoftConstraint
	default:
		return models.Warning{}, false
	}
	return warn, true
}

// validate rejects contradictory configuration and returns a defaulted,
// sorted copy of the task list. The caller's tasks are never modified.
func validate(in *Input) ([]models.Task, error) {
	if in.Now.IsZero() {
		return nil, sperrors.NewInvalidConfiguration("now", "reference time is required")
	}
	if err := in.Rules.Validate(); err != nil {
		return nil, err
	}
	if err := in.Grid.Validate(in.Rules.SlotDurationMin); err != nil {
		return nil, err
	}
	if err := in.Engine.Validate(); err != nil {
		return nil, err
	}

	tasks := make([]models.Task, len(in.Tasks))
	seen := make(map[string]bool, len(in.Tasks))
	for i := range in.Tasks {
		tasks[i] = in.Tasks[i]
		models.ApplyTaskDefaults(&tasks[i])
		if err := tasks[i].Validate(); err != nil {
			return nil, err
		}
		if err := fitsSlots(&tasks[i], in.Rules.SlotDurationMin); err != nil {
			return nil, err
		}
		if seen[tasks[i].ID] {
			return nil, sperrors.NewInvalidConfiguration(fmt.Sprintf("task[%s].id", tasks[i].ID), "duplicate task identity")
		}
		seen[tasks[i].ID] = true
	}

	slices.SortFunc(tasks, func(a, b models.Task) int { return models.CompareTasks(&a, &b) })

	pinned := slices.Clone(in.Pinned)
	slices.SortFunc(pinned, models.CompareBlocks)
	keys := make(map[models.BlockKey]bool, len(pinned))
	latest := -1
	for i, b := range pinned {
		field := fmt.Sprintf("pinned[%s#%d]", b.TaskID, b.BlockIndex)
		if b.TaskID == "" {
			return nil, sperrors.NewInvalidConfiguration("pinned.task_id", "pinned block must reference a task")
		}
		if !b.End.After(b.Start) {
			return nil, sperrors.NewInvalidConfiguration(field, "end must be after start")
		}
		if keys[b.Key()] {
			return nil, sperrors.NewInvalidConfiguration(field, "duplicate block index")
		}
		keys[b.Key()] = true
		if latest >= 0 && pinned[latest].Overlaps(b) {
			prev := pinned[latest]
			return nil, sperrors.NewInvalidConfiguration(field,
				fmt.Sprintf("overlaps pinned block %s#%d", prev.TaskID, prev.BlockIndex))
		}
		if latest < 0 || b.End.After(pinned[latest].End) {
			latest = i
		}
	}
	return tasks, nil
}

// fitsSlots rejects a task whose block bounds admit no whole number of slots.
func fitsSlots(t *models.Task, w int) error {
	if ceilDiv(t.MinBlockMin, w)*w > t.MaxBlockMin {
		return sperrors.NewInvalidConfiguration(fmt.Sprintf("task[%s].max_block_min", t.ID),
			fmt.Sprintf("no multiple of the %d-minute slot lies between min_block (%d) and max_block (%d)", w, t.MinBlockMin, t.MaxBlockMin))
	}
	return nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
