// Package storage defines the append-only version ledger contract shared by
// the memory, SQLite and PostgreSQL providers.
package storage

import (
	"context"
	"time"

	"github.com/julianstephens/studyplan/internal/models"
)

type Provider interface {
	// Lifecycle
	Init() error
	Load() error
	Close() error

	// LatestVersion returns the newest version of the user's plan. The second
	// return value is false when the user has no versions yet.
	LatestVersion(ctx context.Context, userID string) (models.PlanVersion, bool, error)
	// GetVersion returns one historical version with its full block set, or a
	// *VersionNotFoundError.
	GetVersion(ctx context.Context, userID string, versionNumber int) (models.PlanVersion, error)
	// ListVersions returns the user's version summaries in ascending order.
	ListVersions(ctx context.Context, userID string) ([]models.VersionSummary, error)
	// AppendVersion atomically appends v as version base+1 and makes its
	// blocks the active set. It fails with a *ConcurrentModificationError
	// when the user's latest version is no longer base. The stored version,
	// with identities and version number assigned, is returned.
	AppendVersion(ctx context.Context, v models.PlanVersion, base int) (models.PlanVersion, error)
	// CurrentBlocks returns the active blocks intersecting [from, to), ordered
	// by start. A zero bound leaves that side open.
	CurrentBlocks(ctx context.Context, userID string, from, to time.Time) ([]models.StudyBlock, error)

	// Utils
	GetConfigPath() string
}
