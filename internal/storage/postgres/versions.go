package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	pq "github.com/lib/pq"

	sperrors "github.com/julianstephens/studyplan/internal/errors"
	"github.com/julianstephens/studyplan/internal/models"
	"github.com/julianstephens/studyplan/internal/storage"
)

const (
	versionColumns = `id, version_number, trigger_reason, diff_summary, diff_json, warnings_json, input_fingerprint, created_at`

	uniqueViolation = "23505"
)

func (s *Store) LatestVersion(ctx context.Context, userID string) (models.PlanVersion, bool, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+versionColumns+" FROM plan_versions WHERE user_id = $1 ORDER BY version_number DESC LIMIT 1",
		userID)
	v, err := s.scanVersion(ctx, userID, row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PlanVersion{}, false, nil
	}
	if err != nil {
		return models.PlanVersion{}, false, err
	}
	return v, true, nil
}

func (s *Store) GetVersion(ctx context.Context, userID string, versionNumber int) (models.PlanVersion, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+versionColumns+" FROM plan_versions WHERE user_id = $1 AND version_number = $2",
		userID, versionNumber)
	v, err := s.scanVersion(ctx, userID, row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.PlanVersion{}, &sperrors.VersionNotFoundError{UserID: userID, Version: versionNumber}
	}
	return v, err
}

func (s *Store) scanVersion(ctx context.Context, userID string, row *sql.Row) (models.PlanVersion, error) {
	v := models.PlanVersion{UserID: userID}
	var trigger string
	var diffJSON, warningsJSON []byte
	var createdAt int64
	err := row.Scan(&v.ID, &v.VersionNumber, &trigger, &v.DiffSummary, &diffJSON, &warningsJSON, &v.Fingerprint, &createdAt)
	if err != nil {
		return models.PlanVersion{}, err
	}
	v.Trigger = models.TriggerReason(trigger)
	v.CreatedAt = time.Unix(0, createdAt).UTC()
	if err := json.Unmarshal(diffJSON, &v.Diff); err != nil {
		return models.PlanVersion{}, fmt.Errorf("failed to decode diff of version %d: %w", v.VersionNumber, err)
	}
	if err := json.Unmarshal(warningsJSON, &v.Warnings); err != nil {
		return models.PlanVersion{}, fmt.Errorf("failed to decode warnings of version %d: %w", v.VersionNumber, err)
	}

	v.Blocks, err = s.queryBlocks(ctx, userID, v.VersionNumber, math.MinInt64, math.MaxInt64)
	if err != nil {
		return models.PlanVersion{}, err
	}
	return v, nil
}

func (s *Store) queryBlocks(ctx context.Context, userID string, versionNumber int, from, to int64) ([]models.StudyBlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, task_title, block_index, start_at, end_at, pinned
		FROM study_blocks
		WHERE user_id = $1 AND version_number = $2 AND end_at > $3 AND start_at < $4
		ORDER BY start_at, task_id, block_index`,
		userID, versionNumber, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blocks := []models.StudyBlock{}
	for rows.Next() {
		b := models.StudyBlock{VersionNumber: versionNumber}
		var start, end int64
		if err := rows.Scan(&b.ID, &b.TaskID, &b.TaskTitle, &b.BlockIndex, &start, &end, &b.Pinned); err != nil {
			return nil, err
		}
		b.Start = time.Unix(0, start).UTC()
		b.End = time.Unix(0, end).UTC()
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (s *Store) ListVersions(ctx context.Context, userID string) ([]models.VersionSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.id, v.version_number, v.trigger_reason, v.diff_summary, jsonb_array_length(v.warnings_json), v.created_at,
			(SELECT COUNT(*) FROM study_blocks b WHERE b.version_id = v.id)
		FROM plan_versions v
		WHERE v.user_id = $1
		ORDER BY v.version_number`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.VersionSummary{}
	for rows.Next() {
		var sum models.VersionSummary
		var trigger string
		var createdAt int64
		if err := rows.Scan(&sum.ID, &sum.VersionNumber, &trigger, &sum.DiffSummary, &sum.WarningCount, &createdAt, &sum.BlockCount); err != nil {
			return nil, err
		}
		sum.Trigger = models.TriggerReason(trigger)
		sum.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, sum)
	}
	return out, rows.Err()
}

func (s *Store) AppendVersion(ctx context.Context, v models.PlanVersion, base int) (models.PlanVersion, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.PlanVersion{}, err
	}
	defer tx.Rollback()

	var latest int
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version_number), 0) FROM plan_versions WHERE user_id = $1", v.UserID,
	).Scan(&latest); err != nil {
		return models.PlanVersion{}, fmt.Errorf("failed to read latest version: %w", err)
	}
	if latest != base {
		return models.PlanVersion{}, storage.StaleBase(v.UserID, base, latest)
	}

	stored := storage.PrepareVersion(v, base, s.now())
	diffJSON, err := json.Marshal(stored.Diff)
	if err != nil {
		return models.PlanVersion{}, err
	}
	warnings := stored.Warnings
	if warnings == nil {
		warnings = []models.Warning{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return models.PlanVersion{}, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plan_versions (id, user_id, version_number, trigger_reason, diff_summary, diff_json, warnings_json, input_fingerprint, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		stored.ID, stored.UserID, stored.VersionNumber, string(stored.Trigger), stored.DiffSummary,
		string(diffJSON), string(warningsJSON), stored.Fingerprint, stored.CreatedAt.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return models.PlanVersion{}, storage.StaleBase(v.UserID, base, base+1)
		}
		return models.PlanVersion{}, fmt.Errorf("failed to insert version: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO study_blocks (id, version_id, user_id, version_number, task_id, task_title, block_index, start_at, end_at, pinned)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`)
	if err != nil {
		return models.PlanVersion{}, err
	}
	defer stmt.Close()

	for _, b := range stored.Blocks {
		_, err := stmt.ExecContext(ctx, b.ID, stored.ID, stored.UserID, stored.VersionNumber,
			b.TaskID, b.TaskTitle, b.BlockIndex, b.Start.UnixNano(), b.End.UnixNano(), b.Pinned)
		if err != nil {
			return models.PlanVersion{}, fmt.Errorf("failed to insert block %s#%d: %w", b.TaskID, b.BlockIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return models.PlanVersion{}, storage.StaleBase(v.UserID, base, base+1)
		}
		return models.PlanVersion{}, err
	}
	return stored, nil
}

func (s *Store) CurrentBlocks(ctx context.Context, userID string, from, to time.Time) ([]models.StudyBlock, error) {
	var latest int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version_number), 0) FROM plan_versions WHERE user_id = $1", userID,
	).Scan(&latest); err != nil {
		return nil, err
	}
	if latest == 0 {
		return []models.StudyBlock{}, nil
	}

	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !from.IsZero() {
		lo = from.UnixNano()
	}
	if !to.IsZero() {
		hi = to.UnixNano()
	}
	return s.queryBlocks(ctx, userID, latest, lo, hi)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
