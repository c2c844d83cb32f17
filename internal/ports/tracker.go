package ports

import (
	"context"

	"github.com/joweeba/dTOOL/internal/domain"
)

// IssueLister reads open items from the issue tracker collaborator.
// The supervisor never writes to the tracker.
type IssueLister interface {
	OpenIssues(ctx context.Context, limit int) ([]domain.Issue, error)
}
