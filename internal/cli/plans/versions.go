package plans

import (
	"fmt"
	"time"

	"github.com/julianstephens/studyplan/internal/cli"
)

type VersionsCmd struct{}

func (c *VersionsCmd) Run(ctx *cli.Context) error {
	versions, err := ctx.Planner.ListVersions(ctx.Ctx, ctx.Config.User)
	if err != nil {
		return err
	}
	cli.RenderVersions(ctx.Out, versions, time.Now())
	return nil
}

type ShowCmd struct {
	Version int  `arg:"" help:"Version number to show."`
	Diff    bool `help:"Show the diff the version was confirmed with instead of its blocks."`
}

func (c *ShowCmd) Run(ctx *cli.Context) error {
	loc, err := ctx.Location()
	if err != nil {
		return err
	}
	v, err := ctx.Planner.GetVersion(ctx.Ctx, ctx.Config.User, c.Version)
	if err != nil {
		return err
	}

	cli.Header(ctx.Out, fmt.Sprintf("Version %d: %s, %s", v.VersionNumber, v.Trigger, v.CreatedAt.In(loc).Format("2006-01-02 15:04")))
	if c.Diff {
		cli.RenderDiff(ctx.Out, v.Diff, loc)
	} else {
		fmt.Fprintln(ctx.Out, v.DiffSummary)
		cli.RenderBlocks(ctx.Out, v.Blocks, loc)
	}
	cli.RenderWarnings(ctx.Out, v.Warnings)
	return nil
}

// RollbackCmd appends a new version restoring an earlier block set.
type RollbackCmd struct {
	Version int  `arg:"" help:"Version number whose blocks become current again."`
	Yes     bool `help:"Roll back without prompting." short:"y"`
}

func (c *RollbackCmd) Run(ctx *cli.Context) error {
	target, err := ctx.Planner.GetVersion(ctx.Ctx, ctx.Config.User, c.Version)
	if err != nil {
		return err
	}
	ok, err := cli.Confirm(fmt.Sprintf("Restore the %d block(s) of version %d as a new version?", len(target.Blocks), target.VersionNumber), c.Yes)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(ctx.Out, "Rollback cancelled.")
		return nil
	}

	ctx.PerformAutomaticBackup()
	v, err := ctx.Planner.Rollback(ctx.Ctx, ctx.Config.User, c.Version)
	if err != nil {
		return err
	}
	loc, err := ctx.Location()
	if err != nil {
		return err
	}
	fmt.Fprintf(ctx.Out, "✓ Rolled back to version %d as version %d\n", c.Version, v.VersionNumber)
	cli.RenderDiff(ctx.Out, v.Diff, loc)
	return nil
}
