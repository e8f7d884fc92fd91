// Package intake reads the task and pinned-block workspace files that feed
// a generate call. Files are YAML and located with doublestar globs.
package intake

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/julianstephens/studyplan/internal/constants"
	sperrors "github.com/julianstephens/studyplan/internal/errors"
	"github.com/julianstephens/studyplan/internal/models"
)

const dateTimeFormat = constants.DateFormat + " " + constants.TimeFormat

type taskDoc struct {
	ID             string   `yaml:"id"`
	Title          string   `yaml:"title"`
	Subject        string   `yaml:"subject"`
	Due            string   `yaml:"due"`
	EstimatedHours *float64 `yaml:"estimated_hours"`
	Difficulty     int      `yaml:"difficulty"`
	Priority       string   `yaml:"priority"`
	FocusLoad      string   `yaml:"focus_load"`
	Splittable     *bool    `yaml:"splittable"`
	MinBlockMin    int      `yaml:"min_block_min"`
	MaxBlockMin    int      `yaml:"max_block_min"`
	Status         string   `yaml:"status"`
}

type tasksFile struct {
	Tasks []taskDoc `yaml:"tasks"`
}

type pinnedDoc struct {
	Task    string `yaml:"task"`
	Index   int    `yaml:"index"`
	Start   string `yaml:"start"`
	End     string `yaml:"end,omitempty"`
	Minutes int    `yaml:"minutes,omitempty"`
}

type pinnedFile struct {
	Pinned []pinnedDoc `yaml:"pinned"`
}

// Workspace is the generate input read from disk.
type Workspace struct {
	Tasks  []models.Task
	Pinned []models.StudyBlock
	Files  []string
}

// Load reads every file under dir matching the task and pinned patterns.
// Task identities must be unique across files.
func Load(dir string, taskPatterns, pinnedPatterns []string, loc *time.Location) (*Workspace, error) {
	ws := &Workspace{}

	taskFiles, err := Match(dir, taskPatterns)
	if err != nil {
		return nil, err
	}
	origin := make(map[string]string)
	for _, path := range taskFiles {
		tasks, err := LoadTasksFile(path, loc)
		if err != nil {
			return nil, err
		}
		for _, t := range tasks {
			if prev, ok := origin[t.ID]; ok {
				return nil, sperrors.NewInvalidConfiguration("task["+t.ID+"].id",
					fmt.Sprintf("defined in both %s and %s", prev, path))
			}
			origin[t.ID] = path
		}
		ws.Tasks = append(ws.Tasks, tasks...)
		ws.Files = append(ws.Files, path)
	}

	pinnedFiles, err := Match(dir, pinnedPatterns)
	if err != nil {
		return nil, err
	}
	for _, path := range pinnedFiles {
		blocks, err := LoadPinnedFile(path, loc)
		if err != nil {
			return nil, err
		}
		ws.Pinned = append(ws.Pinned, blocks...)
		ws.Files = append(ws.Files, path)
	}
	return ws, nil
}

// Match returns the sorted, de-duplicated files under dir matching any of
// the patterns. A missing dir matches nothing.
func Match(dir string, patterns []string) ([]string, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	fsys := os.DirFS(dir)
	seen := make(map[string]bool)
	var matches []string
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return nil, sperrors.NewInvalidConfiguration("workspace", fmt.Sprintf("invalid glob %q", pattern))
		}
		err := doublestar.GlobWalk(fsys, pattern, func(path string, d fs.DirEntry) error {
			if d.IsDir() || seen[path] {
				return nil
			}
			seen[path] = true
			matches = append(matches, filepath.Join(dir, path))
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("glob %q: %w", pattern, err)
		}
	}
	slices.Sort(matches)
	return matches, nil
}

func LoadTasksFile(path string, loc *time.Location) ([]models.Task, error) {
	var doc tasksFile
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}
	tasks := make([]models.Task, 0, len(doc.Tasks))
	for i, d := range doc.Tasks {
		t, err := d.toTask(loc)
		if err != nil {
			return nil, fmt.Errorf("%s: task %d: %w", path, i+1, err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

func LoadPinnedFile(path string, loc *time.Location) ([]models.StudyBlock, error) {
	var doc pinnedFile
	if err := decodeFile(path, &doc); err != nil {
		return nil, err
	}
	blocks := make([]models.StudyBlock, 0, len(doc.Pinned))
	for i, d := range doc.Pinned {
		b, err := d.toBlock(loc)
		if err != nil {
			return nil, fmt.Errorf("%s: pinned block %d: %w", path, i+1, err)
		}
		blocks = append(blocks, b)
	}
	return blocks, nil
}

func decodeFile(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

func (d taskDoc) toTask(loc *time.Location) (models.Task, error) {
	if strings.TrimSpace(d.ID) == "" {
		return models.Task{}, errors.New("id is required")
	}
	due, err := ParseDue(d.Due, loc)
	if err != nil {
		return models.Task{}, fmt.Errorf("task %s: %w", d.ID, err)
	}
	t := models.Task{
		ID:             d.ID,
		Title:          d.Title,
		Subject:        d.Subject,
		DueAt:          due,
		EstimatedHours: d.EstimatedHours,
		Difficulty:     d.Difficulty,
		Priority:       models.Priority(strings.ToLower(d.Priority)),
		FocusLoad:      models.FocusLoad(strings.ToLower(d.FocusLoad)),
		Splittable:     true,
		MinBlockMin:    d.MinBlockMin,
		MaxBlockMin:    d.MaxBlockMin,
		Status:         models.TaskStatus(strings.ToLower(d.Status)),
	}
	if d.Splittable != nil {
		t.Splittable = *d.Splittable
	}
	if t.Title == "" {
		t.Title = t.ID
	}
	return t, nil
}

func (d pinnedDoc) toBlock(loc *time.Location) (models.StudyBlock, error) {
	if d.Task == "" {
		return models.StudyBlock{}, errors.New("task is required")
	}
	start, err := ParseDateTime(d.Start, loc)
	if err != nil {
		return models.StudyBlock{}, fmt.Errorf("start: %w", err)
	}
	var end time.Time
	switch {
	case d.End != "" && d.Minutes != 0:
		return models.StudyBlock{}, errors.New("set either end or minutes, not both")
	case d.End != "":
		if end, err = ParseDateTime(d.End, loc); err != nil {
			return models.StudyBlock{}, fmt.Errorf("end: %w", err)
		}
	case d.Minutes > 0:
		end = start.Add(time.Duration(d.Minutes) * time.Minute)
	default:
		return models.StudyBlock{}, errors.New("end or a positive minutes is required")
	}
	return models.StudyBlock{
		TaskID:     d.Task,
		BlockIndex: d.Index,
		Start:      start,
		End:        end,
		Pinned:     true,
	}, nil
}

// ParseDateTime accepts RFC 3339 or "YYYY-MM-DD HH:MM" in loc.
func ParseDateTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(dateTimeFormat, s, loc); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid date-time %q (expected RFC 3339 or %q)", s, dateTimeFormat)
}

// ParseDue is ParseDateTime plus bare dates, which are due at the end of
// that day.
func ParseDue(s string, loc *time.Location) (time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return time.Time{}, errors.New("due is required")
	}
	if t, err := time.ParseInLocation(constants.DateFormat, strings.TrimSpace(s), loc); err == nil {
		return t.AddDate(0, 0, 1), nil
	}
	return ParseDateTime(s, loc)
}

// ExportBlocks renders blocks as a pinned-block file, the format calendar
// sync reads back.
func ExportBlocks(blocks []models.StudyBlock, loc *time.Location) ([]byte, error) {
	doc := pinnedFile{Pinned: make([]pinnedDoc, len(blocks))}
	for i, b := range blocks {
		doc.Pinned[i] = pinnedDoc{
			Task:  b.TaskID,
			Index: b.BlockIndex,
			Start: b.Start.In(loc).Format(dateTimeFormat),
			End:   b.End.In(loc).Format(dateTimeFormat),
		}
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode blocks: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
