// Package planner is the facade over the allocator, the diff engine and the
// version ledger. It owns one staging record per user: generate replaces it,
// confirm consumes it, discard drops it.
package planner

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/julianstephens/studyplan/internal/diff"
	sperrors "github.com/julianstephens/studyplan/internal/errors"
	"github.com/julianstephens/studyplan/internal/logger"
	"github.com/julianstephens/studyplan/internal/models"
	"github.com/julianstephens/studyplan/internal/scheduler"
	"github.com/julianstephens/studyplan/internal/storage"
	"github.com/julianstephens/studyplan/internal/validation"
)

// State is a user's position in the preview cycle. Generate moves to
// StatePreviewPending, replacing any earlier preview. Confirm, Rollback and
// Discard move back to StateIdle; a discarded preview leaves nothing to
// confirm, so Discard never stays in StatePreviewPending.
type State string

const (
	StateIdle           State = "idle"
	StatePreviewPending State = "preview-pending"
)

// Request is the input of one generate call.
type Request struct {
	UserID  string
	Tasks   []models.Task
	Grid    models.AvailabilityGrid
	Rules   models.SchedulingRules
	Engine  models.EngineConfig
	Pinned  []models.StudyBlock
	Trigger models.TriggerReason
	// Now defaults to the planner clock when zero.
	Now time.Time
}

// Preview is an uncommitted candidate plan and its diff against the version
// it was computed from.
type Preview struct {
	ID           string                     `json:"id"`
	UserID       string                     `json:"user_id"`
	BaseVersion  int                        `json:"base_version"`
	Trigger      models.TriggerReason       `json:"trigger"`
	Blocks       []models.StudyBlock        `json:"blocks"`
	Diff         models.PlanDiff            `json:"diff"`
	Warnings     []models.Warning           `json:"warnings"`
	Allocations  []scheduler.TaskAllocation `json:"allocations"`
	Fingerprint  string                     `json:"fingerprint"`
	HorizonStart time.Time                  `json:"horizon_start"`
	HorizonEnd   time.Time                  `json:"horizon_end"`
	CreatedAt    time.Time                  `json:"created_at"`
}

type userState struct {
	// commit serializes confirm and rollback for the user.
	commit sync.Mutex

	mu        sync.Mutex
	pending   *Preview
	generated bool
}

type Planner struct {
	store     storage.Provider
	sched     *scheduler.Scheduler
	validator *validation.Validator
	now       func() time.Time

	mu    sync.Mutex
	users map[string]*userState
}

type Option func(*Planner)

// WithClock replaces time.Now as the source of "now" for requests without one.
func WithClock(now func() time.Time) Option {
	return func(p *Planner) { p.now = now }
}

func New(store storage.Provider, opts ...Option) *Planner {
	p := &Planner{
		store:     store,
		sched:     scheduler.New(),
		validator: validation.New(),
		now:       time.Now,
		users:     make(map[string]*userState),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Planner) user(userID string) *userState {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		u = &userState{}
		p.users[userID] = u
	}
	return u
}

// Generate computes a candidate plan and stages it as the user's pending
// preview, superseding any earlier one. Nothing is persisted.
func (p *Planner) Generate(ctx context.Context, req Request) (Preview, error) {
	if req.UserID == "" {
		return Preview{}, sperrors.NewInvalidConfiguration("user", "user identity cannot be empty")
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = models.TriggerManualReplan
	}
	if _, err := models.ParseTriggerReason(string(trigger)); err != nil {
		return Preview{}, sperrors.NewInvalidConfiguration("trigger", err.Error())
	}
	if req.Now.IsZero() {
		req.Now = p.now()
	}

	latest, _, err := p.store.LatestVersion(ctx, req.UserID)
	if err != nil {
		return Preview{}, fmt.Errorf("failed to load current plan: %w", err)
	}

	in := scheduler.Input{
		Tasks:  req.Tasks,
		Grid:   req.Grid,
		Rules:  req.Rules,
		Engine: req.Engine,
		Pinned: req.Pinned,
		Now:    req.Now,
	}
	res, err := p.sched.GeneratePlan(in)
	if err != nil {
		return Preview{}, err
	}
	check := p.validator.ValidatePlan(validation.PlanInput{
		Blocks:   res.Blocks,
		Tasks:    req.Tasks,
		Warnings: res.Warnings,
		Grid:     req.Grid,
		Rules:    req.Rules,
	})
	if check.HasConflicts() {
		logger.Error("Candidate plan violates plan invariants", "user", req.UserID, "conflicts", len(check.Conflicts))
		return Preview{}, fmt.Errorf("candidate plan failed validation:\n%s", check.FormatReport())
	}
	fingerprint, err := Fingerprint(in)
	if err != nil {
		return Preview{}, err
	}

	titles := make(map[string]string, len(req.Tasks))
	for _, t := range req.Tasks {
		titles[t.ID] = t.Title
	}

	preview := Preview{
		ID:           ulid.Make().String(),
		UserID:       req.UserID,
		BaseVersion:  latest.VersionNumber,
		Trigger:      trigger,
		Blocks:       res.Blocks,
		Diff:         diff.Compute(latest.Blocks, res.Blocks, titles),
		Warnings:     res.Warnings,
		Allocations:  res.Allocations,
		Fingerprint:  fingerprint,
		HorizonStart: res.HorizonStart,
		HorizonEnd:   res.HorizonEnd,
		CreatedAt:    p.now(),
	}

	u := p.user(req.UserID)
	u.mu.Lock()
	superseded := u.pending
	u.pending = &preview
	u.generated = true
	u.mu.Unlock()

	if superseded != nil {
		logger.Debug("Superseded pending preview", "user", req.UserID, "preview", superseded.ID)
	}
	logger.Info("Preview generated",
		"user", req.UserID,
		"preview", preview.ID,
		"base", preview.BaseVersion,
		"blocks", len(preview.Blocks),
		"warnings", len(preview.Warnings),
		"diff", preview.Diff.Summary())
	return clonePreview(preview), nil
}

// Confirm commits the user's pending preview.
func (p *Planner) Confirm(ctx context.Context, userID string) (models.PlanVersion, error) {
	return p.confirm(ctx, userID, "")
}

// ConfirmPreview commits the preview with the given id. It fails with a
// *ConcurrentModificationError unless that preview is still the pending one.
func (p *Planner) ConfirmPreview(ctx context.Context, userID, previewID string) (models.PlanVersion, error) {
	return p.confirm(ctx, userID, previewID)
}

func (p *Planner) confirm(ctx context.Context, userID, previewID string) (models.PlanVersion, error) {
	u := p.user(userID)

	// The target is fixed before waiting on the commit lock, so a caller
	// that loses a race sees its preview as superseded.
	u.mu.Lock()
	if previewID == "" && u.pending != nil {
		previewID = u.pending.ID
	}
	generated := u.generated
	u.mu.Unlock()
	if previewID == "" || !generated {
		return models.PlanVersion{}, sperrors.ErrNoPendingPreview
	}

	u.commit.Lock()
	defer u.commit.Unlock()

	u.mu.Lock()
	pending := u.pending
	u.mu.Unlock()
	if pending == nil || pending.ID != previewID {
		logger.Warn("Rejected confirm of stale preview", "user", userID, "preview", previewID)
		return models.PlanVersion{}, &sperrors.ConcurrentModificationError{
			UserID:    userID,
			PreviewID: previewID,
			Reason:    "preview has been superseded or already committed",
		}
	}

	v := models.PlanVersion{
		UserID:      userID,
		Trigger:     pending.Trigger,
		Blocks:      pending.Blocks,
		Diff:        pending.Diff,
		Warnings:    pending.Warnings,
		Fingerprint: pending.Fingerprint,
	}
	stored, err := p.store.AppendVersion(ctx, v, pending.BaseVersion)
	if err != nil {
		var cme *sperrors.ConcurrentModificationError
		if errors.As(err, &cme) {
			cme.PreviewID = pending.ID
			// A stale base never becomes current again.
			p.clearPending(u, pending.ID)
			logger.Warn("Rejected confirm against stale base", "user", userID, "preview", pending.ID, "base", pending.BaseVersion)
		}
		return models.PlanVersion{}, err
	}

	p.clearPending(u, pending.ID)
	logger.Info("Plan confirmed", "user", userID, "preview", pending.ID, "version", stored.VersionNumber, "trigger", stored.Trigger)
	return stored, nil
}

// clearPending drops the pending preview if it is still id; a generate that
// finished meanwhile keeps its newer preview.
func (p *Planner) clearPending(u *userState, id string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.pending != nil && u.pending.ID == id {
		u.pending = nil
	}
}

// Rollback appends a new version whose block set equals the target
// version's. History is never rewritten. Any pending preview is discarded.
func (p *Planner) Rollback(ctx context.Context, userID string, target int) (models.PlanVersion, error) {
	u := p.user(userID)
	u.commit.Lock()
	defer u.commit.Unlock()

	old, err := p.store.GetVersion(ctx, userID, target)
	if err != nil {
		return models.PlanVersion{}, err
	}
	latest, _, err := p.store.LatestVersion(ctx, userID)
	if err != nil {
		return models.PlanVersion{}, fmt.Errorf("failed to load current plan: %w", err)
	}

	blocks := make([]models.StudyBlock, len(old.Blocks))
	titles := make(map[string]string)
	for i, b := range old.Blocks {
		b.ID = ""
		b.VersionNumber = 0
		blocks[i] = b
		titles[b.TaskID] = b.TaskTitle
	}

	v := models.PlanVersion{
		UserID:      userID,
		Trigger:     models.TriggerRollback,
		Blocks:      blocks,
		Diff:        diff.Compute(latest.Blocks, blocks, titles),
		Warnings:    old.Warnings,
		Fingerprint: old.Fingerprint,
	}
	stored, err := p.store.AppendVersion(ctx, v, latest.VersionNumber)
	if err != nil {
		return models.PlanVersion{}, err
	}

	u.mu.Lock()
	u.pending = nil
	u.mu.Unlock()

	logger.Info("Plan rolled back", "user", userID, "target", target, "version", stored.VersionNumber)
	return stored, nil
}

// Discard drops the pending preview. It reports whether there was one.
func (p *Planner) Discard(userID string) bool {
	u := p.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	had := u.pending != nil
	u.pending = nil
	return had
}

func (p *Planner) State(userID string) State {
	if _, ok := p.Pending(userID); ok {
		return StatePreviewPending
	}
	return StateIdle
}

// Pending returns a copy of the user's pending preview.
func (p *Planner) Pending(userID string) (Preview, bool) {
	u := p.user(userID)
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.pending == nil {
		return Preview{}, false
	}
	return clonePreview(*u.pending), true
}

func (p *Planner) ListVersions(ctx context.Context, userID string) ([]models.VersionSummary, error) {
	return p.store.ListVersions(ctx, userID)
}

func (p *Planner) GetVersion(ctx context.Context, userID string, versionNumber int) (models.PlanVersion, error) {
	return p.store.GetVersion(ctx, userID, versionNumber)
}

func (p *Planner) CurrentBlocks(ctx context.Context, userID string, from, to time.Time) ([]models.StudyBlock, error) {
	return p.store.CurrentBlocks(ctx, userID, from, to)
}

func clonePreview(pv Preview) Preview {
	pv.Blocks = slices.Clone(pv.Blocks)
	pv.Warnings = slices.Clone(pv.Warnings)
	pv.Allocations = slices.Clone(pv.Allocations)
	pv.Diff.Items = slices.Clone(pv.Diff.Items)
	return pv
}
