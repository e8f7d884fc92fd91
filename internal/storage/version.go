package storage

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	sperrors "github.com/julianstephens/studyplan/internal/errors"
	"github.com/julianstephens/studyplan/internal/models"
)

// PrepareVersion stamps v for storage as version base+1: it assigns missing
// identities, numbers every block and sorts the block set. The caller's
// slices are not modified.
func PrepareVersion(v models.PlanVersion, base int, now time.Time) models.PlanVersion {
	v.VersionNumber = base + 1
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = now
	}
	if v.DiffSummary == "" {
		v.DiffSummary = v.Diff.Summary()
	}

	blocks := make([]models.StudyBlock, len(v.Blocks))
	for i, b := range v.Blocks {
		b.ID = uuid.New().String()
		b.VersionNumber = v.VersionNumber
		blocks[i] = b
	}
	slices.SortFunc(blocks, models.CompareBlocks)
	v.Blocks = blocks
	v.Warnings = slices.Clone(v.Warnings)
	return v
}

// FilterRange keeps the blocks intersecting [from, to). Zero bounds are open.
func FilterRange(blocks []models.StudyBlock, from, to time.Time) []models.StudyBlock {
	out := make([]models.StudyBlock, 0, len(blocks))
	for _, b := range blocks {
		if !from.IsZero() && !b.End.After(from) {
			continue
		}
		if !to.IsZero() && !b.Start.Before(to) {
			continue
		}
		out = append(out, b)
	}
	slices.SortFunc(out, models.CompareBlocks)
	return out
}

// StaleBase builds the error returned when an append races a newer commit.
func StaleBase(userID string, base, latest int) error {
	return &sperrors.ConcurrentModificationError{
		UserID: userID,
		Reason: fmt.Sprintf("plan was computed against version %d but version %d is current", base, latest),
	}
}
