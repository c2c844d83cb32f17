package ports

import (
	"context"
	"time"

	"github.com/joweeba/dTOOL/internal/domain"
)

// ChangeLogReader reads history from the version control collaborator.
// This is the only access the supervisor has to it besides hooks.
type ChangeLogReader interface {
	CommitsByAuthor(ctx context.Context, authorPattern string, n int) ([]domain.Commit, error)
	CommitsSince(ctx context.Context, since time.Time, n int) ([]domain.Commit, error)
	CountCommitsSince(ctx context.Context, since time.Time) (int, error)
	RecentCommits(ctx context.Context, n int) ([]domain.Commit, error)
}

// HookTarget resolves where the validation hook scripts belong
type HookTarget interface {
	HooksDir(ctx context.Context) (string, error)
}

// GitRepository combines both views for adapters that implement everything
type GitRepository interface {
	ChangeLogReader
	HookTarget
}
