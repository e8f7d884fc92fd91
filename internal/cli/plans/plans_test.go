package plans

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/julianstephens/studyplan/internal/cli"
	"github.com/julianstephens/studyplan/internal/config"
	"github.com/julianstephens/studyplan/internal/planner"
	"github.com/julianstephens/studyplan/internal/storage/memory"
)

func newTestContext(t *testing.T) (*cli.Context, *bytes.Buffer, string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "tasks"), 0700); err != nil {
		t.Fatal(err)
	}
	cfg := config.Default()
	cfg.Timezone = "UTC"
	cfg.Storage.Driver = config.DriverMemory
	cfg.Workspace.Dir = dir

	store := memory.New()
	out := &bytes.Buffer{}
	return &cli.Context{
		Ctx:     context.Background(),
		Config:  cfg,
		Store:   store,
		Planner: planner.New(store),
		Out:     out,
	}, out, filepath.Join(dir, "tasks")
}

func writeTasks(t *testing.T, dir string, hours float64) {
	t.Helper()
	due := time.Now().UTC().AddDate(0, 0, 4).Format("2006-01-02")
	content := fmt.Sprintf("tasks:\n  - id: essay\n    title: History essay\n    due: %s\n    estimated_hours: %g\n", due, hours)
	if err := os.WriteFile(filepath.Join(dir, "essay.yaml"), []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
}

func TestPlanConfirmAndRollback(t *testing.T) {
	ctx, out, tasks := newTestContext(t)
	writeTasks(t, tasks, 1)

	if err := (&PlanCmd{Trigger: "manual_replan", Yes: true}).Run(ctx); err != nil {
		t.Fatalf("plan failed: %v", err)
	}
	if !strings.Contains(out.String(), "confirmed as version 1") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}

	writeTasks(t, tasks, 2)
	out.Reset()
	if err := (&PlanCmd{Trigger: "need_more_time", Yes: true}).Run(ctx); err != nil {
		t.Fatalf("second plan failed: %v", err)
	}
	if !strings.Contains(out.String(), "confirmed as version 2") {
		t.Fatalf("unexpected output:\n%s", out.String())
	}

	out.Reset()
	if err := (&RollbackCmd{Version: 1, Yes: true}).Run(ctx); err != nil {
		t.Fatalf("rollback failed: %v", err)
	}
	if !strings.Contains(out.String(), "Rolled back to version 1 as version 3") {
		t.Errorf("unexpected output:\n%s", out.String())
	}

	out.Reset()
	if err := (&VersionsCmd{}).Run(ctx); err != nil {
		t.Fatalf("versions failed: %v", err)
	}
	for _, want := range []string{"v1", "v2", "v3", "need_more_time", "rollback"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("versions output missing %q:\n%s", want, out.String())
		}
	}

	if state := ctx.Planner.State(ctx.Config.User); state != planner.StateIdle {
		t.Errorf("planner state = %s, want idle", state)
	}
}

func TestPreviewCommitsNothing(t *testing.T) {
	ctx, out, tasks := newTestContext(t)
	writeTasks(t, tasks, 1)

	if err := (&PreviewCmd{Trigger: "manual_replan", Blocks: true}).Run(ctx); err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	for _, want := range []string{"Preview against version 0", "History essay", "Fingerprint:"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("preview output missing %q:\n%s", want, out.String())
		}
	}

	versions, err := ctx.Planner.ListVersions(ctx.Ctx, ctx.Config.User)
	if err != nil {
		t.Fatal(err)
	}
	if len(versions) != 0 {
		t.Errorf("preview committed %d version(s)", len(versions))
	}
	if _, ok := ctx.Planner.Pending(ctx.Config.User); ok {
		t.Error("preview left a pending preview behind")
	}
}

func TestShowUnknownVersion(t *testing.T) {
	ctx, _, _ := newTestContext(t)
	if err := (&ShowCmd{Version: 3}).Run(ctx); err == nil {
		t.Fatal("expected error for an unknown version")
	}
	if err := (&RollbackCmd{Version: 3, Yes: true}).Run(ctx); err == nil {
		t.Fatal("expected error rolling back to an unknown version")
	}
}

func TestBlocksExport(t *testing.T) {
	ctx, out, tasks := newTestContext(t)
	writeTasks(t, tasks, 1)
	if err := (&PlanCmd{Trigger: "manual_replan", Yes: true}).Run(ctx); err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	exportPath := filepath.Join(t.TempDir(), "blocks.yaml")
	out.Reset()
	if err := (&BlocksCmd{Export: exportPath}).Run(ctx); err != nil {
		t.Fatalf("blocks failed: %v", err)
	}
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("export not written: %v", err)
	}
	if !strings.Contains(string(data), "task: essay") {
		t.Errorf("unexpected export:\n%s", data)
	}
}

func TestBlocksBounds(t *testing.T) {
	loc := time.UTC
	day := func(s string) time.Time {
		d, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			t.Fatal(err)
		}
		return d
	}

	tests := []struct {
		name     string
		cmd      BlocksCmd
		from, to time.Time
		wantErr  bool
	}{
		{"from and to", BlocksCmd{From: "2026-01-05", To: "2026-01-06"}, day("2026-01-05"), day("2026-01-07"), false},
		{"from and days", BlocksCmd{From: "2026-01-05", Days: 3}, day("2026-01-05"), day("2026-01-08"), false},
		{"open range", BlocksCmd{}, time.Time{}, time.Time{}, false},
		{"to before from", BlocksCmd{From: "2026-01-05", To: "2026-01-03"}, time.Time{}, time.Time{}, true},
		{"bad date", BlocksCmd{From: "soon"}, time.Time{}, time.Time{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, err := tt.cmd.bounds(loc)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("bounds failed: %v", err)
			}
			if !from.Equal(tt.from) || !to.Equal(tt.to) {
				t.Errorf("bounds = [%v, %v), want [%v, %v)", from, to, tt.from, tt.to)
			}
		})
	}
}
