// Package memory is an in-process ledger provider used by tests and by
// one-shot CLI runs that do not persist history.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	sperrors "github.com/julianstephens/studyplan/internal/errors"
	"github.com/julianstephens/studyplan/internal/models"
	"github.com/julianstephens/studyplan/internal/storage"
)

type Store struct {
	mu       sync.RWMutex
	versions map[string][]models.PlanVersion
	now      func() time.Time
}

func New() *Store {
	return &Store{
		versions: make(map[string][]models.PlanVersion),
		now:      time.Now,
	}
}

func (s *Store) Init() error           { return nil }
func (s *Store) Load() error           { return nil }
func (s *Store) Close() error          { return nil }
func (s *Store) GetConfigPath() string { return "memory" }

func (s *Store) LatestVersion(_ context.Context, userID string) (models.PlanVersion, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.versions[userID]
	if len(history) == 0 {
		return models.PlanVersion{}, false, nil
	}
	return clone(history[len(history)-1]), true, nil
}

func (s *Store) GetVersion(_ context.Context, userID string, versionNumber int) (models.PlanVersion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, v := range s.versions[userID] {
		if v.VersionNumber == versionNumber {
			return clone(v), nil
		}
	}
	return models.PlanVersion{}, &sperrors.VersionNotFoundError{UserID: userID, Version: versionNumber}
}

func (s *Store) ListVersions(_ context.Context, userID string) ([]models.VersionSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.versions[userID]
	out := make([]models.VersionSummary, len(history))
	for i, v := range history {
		out[i] = v.Summary()
	}
	return out, nil
}

func (s *Store) AppendVersion(_ context.Context, v models.PlanVersion, base int) (models.PlanVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.versions[v.UserID]
	latest := 0
	if len(history) > 0 {
		latest = history[len(history)-1].VersionNumber
	}
	if latest != base {
		return models.PlanVersion{}, storage.StaleBase(v.UserID, base, latest)
	}

	stored := storage.PrepareVersion(v, base, s.now())
	s.versions[v.UserID] = append(history, clone(stored))
	return stored, nil
}

func (s *Store) CurrentBlocks(_ context.Context, userID string, from, to time.Time) ([]models.StudyBlock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.versions[userID]
	if len(history) == 0 {
		return []models.StudyBlock{}, nil
	}
	return storage.FilterRange(history[len(history)-1].Blocks, from, to), nil
}

func clone(v models.PlanVersion) models.PlanVersion {
	v.Blocks = slices.Clone(v.Blocks)
	v.Warnings = slices.Clone(v.Warnings)
	v.Diff.Items = slices.Clone(v.Diff.Items)
	return v
}
