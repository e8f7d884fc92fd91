package plans

import (
	"fmt"
	"os"
	"time"

	"github.com/julianstephens/studyplan/internal/cli"
	"github.com/julianstephens/studyplan/internal/intake"
)

// BlocksCmd lists the active blocks in a date range.
type BlocksCmd struct {
	From   string `help:"First day to list (YYYY-MM-DD or 'today'). Open when empty."`
	To     string `help:"Last day to list, inclusive. Open when empty."`
	Days   int    `help:"Number of days from --from (or today) to list. Ignored when --to is set." default:"7"`
	Export string `help:"Write the blocks as a pinned-block YAML file instead of printing them." type:"path"`
}

func (c *BlocksCmd) Run(ctx *cli.Context) error {
	loc, err := ctx.Location()
	if err != nil {
		return err
	}
	from, to, err := c.bounds(loc)
	if err != nil {
		return err
	}

	blocks, err := ctx.Planner.CurrentBlocks(ctx.Ctx, ctx.Config.User, from, to)
	if err != nil {
		return err
	}

	if c.Export != "" {
		data, err := intake.ExportBlocks(blocks, loc)
		if err != nil {
			return err
		}
		if err := os.WriteFile(c.Export, data, 0600); err != nil {
			return fmt.Errorf("failed to write %s: %w", c.Export, err)
		}
		fmt.Fprintf(ctx.Out, "✓ Exported %d block(s) to %s\n", len(blocks), c.Export)
		return nil
	}
	cli.RenderBlocks(ctx.Out, blocks, loc)
	return nil
}

func (c *BlocksCmd) bounds(loc *time.Location) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if c.From != "" {
		if from, err = cli.ParseDay(c.From, loc); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if c.To != "" {
		if to, err = cli.ParseDay(c.To, loc); err != nil {
			return time.Time{}, time.Time{}, err
		}
		to = to.AddDate(0, 0, 1)
	} else if c.Days > 0 {
		start := from
		if start.IsZero() {
			start, _ = cli.ParseDay("today", loc)
		}
		to = start.AddDate(0, 0, c.Days)
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("--to must not be before --from")
	}
	return from, to, nil
}
