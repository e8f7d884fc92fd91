package plans

import (
	"fmt"

	"github.com/julianstephens/studyplan/internal/cli"
	"github.com/julianstephens/studyplan/internal/models"
	"github.com/julianstephens/studyplan/internal/planner"
)

type PlanCmd struct {
	Trigger string `help:"Why the plan is being regenerated." default:"manual_replan" enum:"manual_replan,missed_session,need_more_time,new_task,syllabus_import,calendar_conflict"`
	Yes     bool   `help:"Confirm without prompting." short:"y"`
}

func (c *PlanCmd) Run(ctx *cli.Context) error {
	preview, err := generate(ctx, c.Trigger)
	if err != nil {
		return err
	}
	if preview.Diff.IsEmpty() && preview.BaseVersion > 0 {
		ctx.Planner.Discard(preview.UserID)
		fmt.Fprintln(ctx.Out, "\nPlan is unchanged; nothing to confirm.")
		return nil
	}

	ok, err := cli.Confirm(fmt.Sprintf("Confirm this plan as version %d?", preview.BaseVersion+1), c.Yes)
	if err != nil {
		ctx.Planner.Discard(preview.UserID)
		return err
	}
	if !ok {
		ctx.Planner.Discard(preview.UserID)
		fmt.Fprintln(ctx.Out, "Plan discarded. Your confirmed plan is unchanged.")
		return nil
	}

	ctx.PerformAutomaticBackup()
	v, err := ctx.Planner.ConfirmPreview(ctx.Ctx, preview.UserID, preview.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ Plan confirmed as version %d (%s)\n", v.VersionNumber, v.DiffSummary)
	return nil
}

// PreviewCmd shows what a regeneration would change without committing it.
type PreviewCmd struct {
	Trigger string `help:"Why the plan is being regenerated." default:"manual_replan" enum:"manual_replan,missed_session,need_more_time,new_task,syllabus_import,calendar_conflict"`
	Blocks  bool   `help:"Also list every block of the candidate plan."`
}

func (c *PreviewCmd) Run(ctx *cli.Context) error {
	preview, err := generate(ctx, c.Trigger)
	if err != nil {
		return err
	}
	defer ctx.Planner.Discard(preview.UserID)

	if c.Blocks {
		loc, err := ctx.Location()
		if err != nil {
			return err
		}
		fmt.Fprintln(ctx.Out)
		cli.RenderBlocks(ctx.Out, preview.Blocks, loc)
	}
	fmt.Fprintf(ctx.Out, "\nFingerprint: %s\n", preview.Fingerprint)
	return nil
}

// generate stages a preview and prints its diff and warnings.
func generate(ctx *cli.Context, trigger string) (planner.Preview, error) {
	reason, err := models.ParseTriggerReason(trigger)
	if err != nil {
		return planner.Preview{}, err
	}
	req, err := ctx.Request(reason)
	if err != nil {
		return planner.Preview{}, err
	}
	loc := req.Rules.Loc()

	preview, err := ctx.Planner.Generate(ctx.Ctx, req)
	if err != nil {
		return planner.Preview{}, err
	}

	cli.Header(ctx.Out, fmt.Sprintf("Preview against version %d (%s to %s)",
		preview.BaseVersion,
		preview.HorizonStart.In(loc).Format("2006-01-02 15:04"),
		preview.HorizonEnd.In(loc).Format("2006-01-02 15:04")))
	cli.RenderDiff(ctx.Out, preview.Diff, loc)
	cli.RenderWarnings(ctx.Out, preview.Warnings)
	return preview, nil
}
