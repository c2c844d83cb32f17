package ports

import (
	"context"
	"time"

	"github.com/joweeba/dTOOL/internal/domain"
)

// IterationStore persists one row per finished iteration
type IterationStore interface {
	Close() error
	CountSince(ctx context.Context, role domain.Role, since time.Time) (total, failed int, err error)
	Record(ctx context.Context, rec domain.IterationRecord) error
}
