package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/julianstephens/studyplan/internal/constants"
	"github.com/julianstephens/studyplan/internal/models"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	movedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	deletedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Italic(true)

	mutedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func Header(w io.Writer, s string) {
	fmt.Fprintln(w, headerStyle.Render(s))
}

// RenderDiff prints one line per changed block.
func RenderDiff(w io.Writer, d models.PlanDiff, loc *time.Location) {
	fmt.Fprintln(w, d.Summary())
	for _, it := range d.Items {
		name := it.TaskTitle
		if name == "" {
			name = it.TaskID
		}
		label := fmt.Sprintf("%s #%d", name, it.BlockIndex)
		switch it.Action {
		case models.DiffAdded:
			fmt.Fprintf(w, "  %s %s  %s\n", addedStyle.Render("+"), label, span(*it.NewStart, *it.NewEnd, loc))
		case models.DiffDeleted:
			fmt.Fprintf(w, "  %s %s  %s\n", deletedStyle.Render("-"), label, span(*it.OldStart, *it.OldEnd, loc))
		case models.DiffMoved:
			fmt.Fprintf(w, "  %s %s  %s -> %s\n", movedStyle.Render("~"), label,
				span(*it.OldStart, *it.OldEnd, loc), span(*it.NewStart, *it.NewEnd, loc))
		}
	}
}

func RenderWarnings(w io.Writer, warnings []models.Warning) {
	if len(warnings) == 0 {
		return
	}
	fmt.Fprintln(w, warningStyle.Render(fmt.Sprintf("%d warning(s):", len(warnings))))
	for _, warn := range warnings {
		fmt.Fprintf(w, "  - %s\n", warn.String())
	}
}

// RenderBlocks prints blocks grouped by local day.
func RenderBlocks(w io.Writer, blocks []models.StudyBlock, loc *time.Location) {
	if len(blocks) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No blocks scheduled."))
		return
	}
	day := ""
	for _, b := range blocks {
		if d := b.Start.In(loc).Format("Mon " + constants.DateFormat); d != day {
			day = d
			Header(w, day)
		}
		name := b.TaskTitle
		if name == "" {
			name = b.TaskID
		}
		line := fmt.Sprintf("  %s  %s #%d (%d min)", clock(b.Start, b.End, loc), name, b.BlockIndex, b.Minutes())
		if b.Pinned {
			line += mutedStyle.Render(" pinned")
		}
		fmt.Fprintln(w, line)
	}
}

// RenderVersions prints the ledger history, newest last.
func RenderVersions(w io.Writer, versions []models.VersionSummary, now time.Time) {
	if len(versions) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No plan versions yet."))
		return
	}
	for _, v := range versions {
		fmt.Fprintf(w, "%s  %-18s %3d blocks  %s  %s\n",
			headerStyle.Render(fmt.Sprintf("v%d", v.VersionNumber)),
			v.Trigger,
			v.BlockCount,
			mutedStyle.Render(humanize.RelTime(v.CreatedAt, now, "ago", "from now")),
			v.DiffSummary,
		)
		if v.WarningCount > 0 {
			fmt.Fprintf(w, "    %s\n", warningStyle.Render(fmt.Sprintf("%d warning(s)", v.WarningCount)))
		}
	}
}

func span(start, end time.Time, loc *time.Location) string {
	return start.In(loc).Format("Mon "+constants.DateFormat) + " " + clock(start, end, loc)
}

func clock(start, end time.Time, loc *time.Location) string {
	return strings.Join([]string{start.In(loc).Format(constants.TimeFormat), end.In(loc).Format(constants.TimeFormat)}, "-")
}
