package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joweeba/dTOOL/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteRepository {
	t.Helper()
	store, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "nested", "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func iterationAt(role domain.Role, iteration int, outcome domain.Outcome, committed bool, finished time.Time) domain.IterationRecord {
	return domain.IterationRecord{
		Assistant:  "claude",
		Committed:  committed,
		FinishedAt: finished,
		Iteration:  iteration,
		Outcome:    outcome,
		Role:       role,
		StartedAt:  finished.Add(-time.Minute),
	}
}

func TestRecordAndCountSince(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	records := []domain.IterationRecord{
		iterationAt(domain.RoleWorker, 1, domain.OutcomeCompleted, true, now),
		iterationAt(domain.RoleWorker, 2, domain.OutcomeCompleted, true, now),
		iterationAt(domain.RoleWorker, 3, domain.OutcomeCrashed, false, now),
		iterationAt(domain.RoleWorker, 4, domain.OutcomeCompleted, false, now),
		iterationAt(domain.RoleManager, 1, domain.OutcomeCompleted, true, now),
	}
	for _, rec := range records {
		require.NoError(t, store.Record(ctx, rec))
	}

	total, failed, err := store.CountSince(ctx, domain.RoleWorker, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	// Crashed plus the completed-but-uncommitted false success
	assert.Equal(t, 2, failed)

	total, failed, err = store.CountSince(ctx, domain.RoleManager, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, failed)
}

func TestCountSince_WindowExcludesOldRecords(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.Record(ctx, iterationAt(domain.RoleWorker, 1, domain.OutcomeCompleted, true, now.Add(-48*time.Hour))))
	require.NoError(t, store.Record(ctx, iterationAt(domain.RoleWorker, 2, domain.OutcomeCompleted, true, now)))

	total, failed, err := store.CountSince(ctx, domain.RoleWorker, now.Add(-24*time.Hour))

	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, 0, failed)
}

func TestCountSince_EmptyStore(t *testing.T) {
	store := newTestStore(t)

	total, failed, err := store.CountSince(context.Background(), domain.RoleWorker, time.Now().Add(-time.Hour))

	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, failed)
}

func TestRecord_AllOutcomesAccepted(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	outcomes := []domain.Outcome{
		domain.OutcomeCompleted,
		domain.OutcomeCrashed,
		domain.OutcomeInterrupted,
		domain.OutcomeTimedOut,
	}
	for i, outcome := range outcomes {
		require.NoError(t, store.Record(ctx, iterationAt(domain.RoleProver, i+1, outcome, false, now)))
	}

	total, _, err := store.CountSince(ctx, domain.RoleProver, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, len(outcomes), total)
}

func TestNewSQLiteRepository_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	ctx := context.Background()
	now := time.Now()

	first, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, first.Record(ctx, iterationAt(domain.RoleWorker, 1, domain.OutcomeCompleted, true, now)))
	require.NoError(t, first.Close())

	second, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	defer second.Close()

	total, _, err := second.CountSince(ctx, domain.RoleWorker, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}
