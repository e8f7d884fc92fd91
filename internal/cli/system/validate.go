package system

import (
	"fmt"

	"github.com/julianstephens/studyplan/internal/cli"
	"github.com/julianstephens/studyplan/internal/validation"
)

// ValidateCmd checks the workspace tasks and the current plan.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(ctx *cli.Context) error {
	ws, err := ctx.LoadWorkspace()
	if err != nil {
		return err
	}
	rules, err := ctx.Config.SchedulingRules()
	if err != nil {
		return err
	}
	grid, err := ctx.Config.AvailabilityGrid()
	if err != nil {
		return err
	}

	validator := validation.New()
	result := validator.ValidateTasks(ws.Tasks)

	versions, err := ctx.Planner.ListVersions(ctx.Ctx, ctx.Config.User)
	if err != nil {
		return err
	}
	if n := len(versions); n > 0 {
		latest, err := ctx.Planner.GetVersion(ctx.Ctx, ctx.Config.User, versions[n-1].VersionNumber)
		if err != nil {
			return err
		}
		planResult := validator.ValidatePlan(validation.PlanInput{
			Blocks:   latest.Blocks,
			Tasks:    ws.Tasks,
			Warnings: latest.Warnings,
			Grid:     grid,
			Rules:    rules,
		})
		result.Conflicts = append(result.Conflicts, planResult.Conflicts...)
		fmt.Fprintf(ctx.Out, "Checked %d task(s) and version %d (%d block(s)).\n", len(ws.Tasks), latest.VersionNumber, len(latest.Blocks))
	} else {
		fmt.Fprintf(ctx.Out, "Checked %d task(s); no confirmed plan yet.\n", len(ws.Tasks))
	}

	fmt.Fprintln(ctx.Out, result.FormatReport())
	if result.HasConflicts() {
		return fmt.Errorf("validation found %d conflict(s)", len(result.Conflicts))
	}
	return nil
}
