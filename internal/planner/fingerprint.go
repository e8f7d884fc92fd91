package planner

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mitchellh/hashstructure/v2"

	"github.com/julianstephens/studyplan/internal/models"
	"github.com/julianstephens/studyplan/internal/scheduler"
)

type fingerprintTask struct {
	ID             string
	Title          string
	Subject        string
	DueAt          int64
	HasEstimate    bool
	EstimatedHours float64
	Difficulty     int
	Priority       string
	FocusLoad      string
	Splittable     bool
	MinBlockMin    int
	MaxBlockMin    int
	Status         string
}

type fingerprintBlock struct {
	TaskID     string
	BlockIndex int
	Start      int64
	End        int64
}

type fingerprintInput struct {
	Tasks    []fingerprintTask
	Grid     [][]bool
	SlotMin  int
	RuleVals []int
	Flags    []bool
	Location string
	TermEnd  int64
	Engine   models.EngineConfig
	Pinned   []fingerprintBlock
	Now      int64
}

// Fingerprint hashes the normalized inputs of a generate call. Two calls
// with equal fingerprints produce identical plans. Input order of tasks and
// pinned blocks does not matter.
func Fingerprint(in scheduler.Input) (string, error) {
	fi := fingerprintInput{
		SlotMin: in.Grid.SlotDurationMin,
		RuleVals: []int{
			in.Rules.DailyMaxMin,
			in.Rules.WeekendMaxMin,
			in.Rules.BreakAfterMin,
			in.Rules.BreakDurationMin,
			in.Rules.MaxContinuousSubjectMin,
			in.Rules.PreferredStartHour,
			in.Rules.PreferredEndHour,
			in.Rules.SleepStartHour,
			in.Rules.SleepEndHour,
			in.Rules.SlotDurationMin,
		},
		Flags:    []bool{in.Rules.LighterWeekends},
		Location: in.Rules.Loc().String(),
		Engine:   in.Engine,
		Now:      in.Now.UnixNano(),
	}
	if in.Rules.TermEnd != nil {
		fi.TermEnd = in.Rules.TermEnd.UnixNano()
	}
	for _, day := range in.Grid.Days {
		fi.Grid = append(fi.Grid, day)
	}
	fi.Engine.Strict = slices.Clone(in.Engine.Strict)
	slices.Sort(fi.Engine.Strict)

	for _, t := range in.Tasks {
		ft := fingerprintTask{
			ID:          t.ID,
			Title:       t.Title,
			Subject:     t.Subject,
			DueAt:       t.DueAt.UnixNano(),
			Difficulty:  t.Difficulty,
			Priority:    string(t.Priority),
			FocusLoad:   string(t.FocusLoad),
			Splittable:  t.Splittable,
			MinBlockMin: t.MinBlockMin,
			MaxBlockMin: t.MaxBlockMin,
			Status:      string(t.Status),
		}
		if t.EstimatedHours != nil {
			ft.HasEstimate = true
			ft.EstimatedHours = *t.EstimatedHours
		}
		fi.Tasks = append(fi.Tasks, ft)
	}
	slices.SortFunc(fi.Tasks, func(a, b fingerprintTask) int { return strings.Compare(a.ID, b.ID) })

	for _, b := range in.Pinned {
		fi.Pinned = append(fi.Pinned, fingerprintBlock{
			TaskID:     b.TaskID,
			BlockIndex: b.BlockIndex,
			Start:      b.Start.UnixNano(),
			End:        b.End.UnixNano(),
		})
	}
	slices.SortFunc(fi.Pinned, func(a, b fingerprintBlock) int {
		if c := strings.Compare(a.TaskID, b.TaskID); c != 0 {
			return c
		}
		return a.BlockIndex - b.BlockIndex
	})

	h, err := hashstructure.Hash(fi, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("failed to fingerprint plan inputs: %w", err)
	}
	return fmt.Sprintf("%016x", h), nil
}
