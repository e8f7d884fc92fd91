package models

import (
	"fmt"
	"time"
)

type TriggerReason string

const (
	TriggerManualReplan     TriggerReason = "manual_replan"
	TriggerMissedSession    TriggerReason = "missed_session"
	TriggerNeedMoreTime     TriggerReason = "need_more_time"
	TriggerNewTask          TriggerReason = "new_task"
	TriggerSyllabusImport   TriggerReason = "syllabus_import"
	TriggerCalendarConflict TriggerReason = "calendar_conflict"
	TriggerRollback         TriggerReason = "rollback"
)

var triggerReasons = []TriggerReason{
	TriggerManualReplan,
	TriggerMissedSession,
	TriggerNeedMoreTime,
	TriggerNewTask,
	TriggerSyllabusImport,
	TriggerCalendarConflict,
	TriggerRollback,
}

func ParseTriggerReason(s string) (TriggerReason, error) {
	for _, r := range triggerReasons {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown trigger reason %q", s)
}

// StudyBlock is one scheduled range of study for a task. VersionNumber is 0
// until the block is committed as part of a plan version.
type StudyBlock struct {
	ID            string    `json:"id" yaml:"id,omitempty"`
	TaskID        string    `json:"task_id" yaml:"task_id"`
	TaskTitle     string    `json:"task_title,omitempty" yaml:"task_title,omitempty"`
	VersionNumber int       `json:"version_number,omitempty" yaml:"-"`
	Start         time.Time `json:"start" yaml:"start"`
	End           time.Time `json:"end" yaml:"end"`
	BlockIndex    int       `json:"block_index" yaml:"block_index"`
	Pinned        bool      `json:"pinned" yaml:"pinned"`
}

func (b StudyBlock) Minutes() int {
	return int(b.End.Sub(b.Start) / time.Minute)
}

func (b StudyBlock) Overlaps(o StudyBlock) bool {
	return b.Start.Before(o.End) && o.Start.Before(b.End)
}

// Key is the diff matching key.
func (b StudyBlock) Key() BlockKey {
	return BlockKey{TaskID: b.TaskID, BlockIndex: b.BlockIndex}
}

type BlockKey struct {
	TaskID     string
	BlockIndex int
}

// CompareBlocks orders blocks by start, then task identity, then block index.
func CompareBlocks(a, b StudyBlock) int {
	if c := a.Start.Compare(b.Start); c != 0 {
		return c
	}
	switch {
	case a.TaskID < b.TaskID:
		return -1
	case a.TaskID > b.TaskID:
		return 1
	}
	return a.BlockIndex - b.BlockIndex
}

type DiffAction string

const (
	DiffAdded   DiffAction = "added"
	DiffMoved   DiffAction = "moved"
	DiffDeleted DiffAction = "deleted"
)

type PlanDiffItem struct {
	Action     DiffAction `json:"action"`
	TaskID     string     `json:"task_id"`
	TaskTitle  string     `json:"task_title"`
	BlockIndex int        `json:"block_index"`
	BlockID    string     `json:"block_id,omitempty"`
	OldStart   *time.Time `json:"old_start,omitempty"`
	OldEnd     *time.Time `json:"old_end,omitempty"`
	NewStart   *time.Time `json:"new_start,omitempty"`
	NewEnd     *time.Time `json:"new_end,omitempty"`
}

// PlanDiff is the transient comparison between the confirmed and a candidate block set.
type PlanDiff struct {
	Added   int            `json:"added"`
	Moved   int            `json:"moved"`
	Deleted int            `json:"deleted"`
	Items   []PlanDiffItem `json:"items"`
}

func (d PlanDiff) IsEmpty() bool {
	return d.Added == 0 && d.Moved == 0 && d.Deleted == 0
}

func (d PlanDiff) Summary() string {
	return fmt.Sprintf("Added %d, moved %d, deleted %d blocks", d.Added, d.Moved, d.Deleted)
}

// PlanVersion is an immutable committed snapshot.
type PlanVersion struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	VersionNumber int           `json:"version_number"`
	Trigger       TriggerReason `json:"trigger"`
	Blocks        []StudyBlock  `json:"blocks"`
	Diff          PlanDiff      `json:"diff"`
	DiffSummary   string        `json:"diff_summary"`
	Warnings      []Warning     `json:"warnings,omitempty"`
	// Fingerprint identifies the generate inputs the blocks were computed from.
	Fingerprint string    `json:"fingerprint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// VersionSummary is the listing form of a PlanVersion, without its blocks.
type VersionSummary struct {
	ID            string        `json:"id"`
	VersionNumber int           `json:"version_number"`
	Trigger       TriggerReason `json:"trigger"`
	DiffSummary   string        `json:"diff_summary"`
	BlockCount    int           `json:"block_count"`
	WarningCount  int           `json:"warning_count"`
	CreatedAt     time.Time     `json:"created_at"`
}

func (v PlanVersion) Summary() VersionSummary {
	return VersionSummary{
		ID:            v.ID,
		VersionNumber: v.VersionNumber,
		Trigger:       v.Trigger,
		DiffSummary:   v.DiffSummary,
		BlockCount:    len(v.Blocks),
		WarningCount:  len(v.Warnings),
		CreatedAt:     v.CreatedAt,
	}
}
