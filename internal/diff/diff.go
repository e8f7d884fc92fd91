// Package diff classifies the differences between a confirmed block set and
// a candidate block set.
package diff

import (
	"cmp"
	"slices"
	"time"

	"github.com/julianstephens/studyplan/internal/models"
)

// Compute matches blocks by (task, block index). Unmatched candidate blocks
// are added, unmatched confirmed blocks are deleted and matched pairs whose
// interval changed are moved. Identical pairs are omitted. titles fills in
// task titles missing from both blocks and may be nil.
func Compute(confirmed, candidate []models.StudyBlock, titles map[string]string) models.PlanDiff {
	oldByKey := make(map[models.BlockKey]models.StudyBlock, len(confirmed))
	for _, b := range confirmed {
		oldByKey[b.Key()] = b
	}
	newByKey := make(map[models.BlockKey]models.StudyBlock, len(candidate))
	for _, b := range candidate {
		newByKey[b.Key()] = b
	}

	d := models.PlanDiff{Items: []models.PlanDiffItem{}}

	for key, nb := range newByKey {
		ob, ok := oldByKey[key]
		switch {
		case !ok:
			item := newItem(models.DiffAdded, key, titleOf(titles, nb))
			item.NewStart, item.NewEnd = ptr(nb.Start), ptr(nb.End)
			d.Items = append(d.Items, item)
			d.Added++
		case !ob.Start.Equal(nb.Start) || !ob.End.Equal(nb.End):
			item := newItem(models.DiffMoved, key, titleOf(titles, nb, ob))
			item.BlockID = ob.ID
			item.OldStart, item.OldEnd = ptr(ob.Start), ptr(ob.End)
			item.NewStart, item.NewEnd = ptr(nb.Start), ptr(nb.End)
			d.Items = append(d.Items, item)
			d.Moved++
		}
	}
	for key, ob := range oldByKey {
		if _, ok := newByKey[key]; ok {
			continue
		}
		item := newItem(models.DiffDeleted, key, titleOf(titles, ob))
		item.BlockID = ob.ID
		item.OldStart, item.OldEnd = ptr(ob.Start), ptr(ob.End)
		d.Items = append(d.Items, item)
		d.Deleted++
	}

	slices.SortFunc(d.Items, compareItems)
	return d
}

func newItem(action models.DiffAction, key models.BlockKey, title string) models.PlanDiffItem {
	return models.PlanDiffItem{
		Action:     action,
		TaskID:     key.TaskID,
		TaskTitle:  title,
		BlockIndex: key.BlockIndex,
	}
}

func titleOf(titles map[string]string, blocks ...models.StudyBlock) string {
	for _, b := range blocks {
		if b.TaskTitle != "" {
			return b.TaskTitle
		}
	}
	if len(blocks) > 0 {
		return titles[blocks[0].TaskID]
	}
	return ""
}

// compareItems orders items by the time they affect (new start for added and
// moved, old start for deleted), then task and block index.
func compareItems(a, b models.PlanDiffItem) int {
	if c := itemTime(a).Compare(itemTime(b)); c != 0 {
		return c
	}
	return cmp.Or(
		cmp.Compare(a.TaskID, b.TaskID),
		cmp.Compare(a.BlockIndex, b.BlockIndex),
	)
}

func itemTime(i models.PlanDiffItem) time.Time {
	if i.NewStart != nil {
		return *i.NewStart
	}
	if i.OldStart != nil {
		return *i.OldStart
	}
	return time.Time{}
}

func ptr(t time.Time) *time.Time {
	return &t
}
