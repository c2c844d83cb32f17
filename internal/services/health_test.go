package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joweeba/dTOOL/internal/config"
	"github.com/joweeba/dTOOL/internal/domain"
)

func healthSettings(t *testing.T) *config.Settings {
	t.Helper()
	return &config.Settings{CrashLogMaxLines: 200, Home: t.TempDir()}
}

func appendCrashLines(t *testing.T, settings *config.Settings, role domain.Role, records ...domain.CrashRecord) {
	t.Helper()
	for _, rec := range records {
		require.NoError(t, appendLine(settings.CrashLogPath(role), rec.Line()))
	}
}

func TestCheck_HealthyWithoutHistory(t *testing.T) {
	settings := healthSettings(t)
	checker := NewHealthChecker(settings, &fakeChangeLog{}, &fakeStore{})

	report, err := checker.Check(context.Background(), domain.RoleWorker, 24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, domain.HealthOK, report.Status)
	assert.Zero(t, report.Crashes)
	assert.Zero(t, report.FailureRate)
	assert.Equal(t, 24.0, report.WindowHours)
	assert.Empty(t, report.Recent)
}

func TestCheck_ClassifiesFailureRateFromStoreCounts(t *testing.T) {
	settings := healthSettings(t)
	now := time.Now()
	appendCrashLines(t, settings, domain.RoleWorker, domain.CrashRecord{
		Iteration: 5, Message: "claude exited with code 1", Time: now.Add(-time.Hour),
	})
	// Store saw 4 iterations, 1 failed: 3 successes + 1 crash = 25% failure
	store := &fakeStore{total: 4, failed: 1}
	checker := NewHealthChecker(settings, &fakeChangeLog{}, store)

	report, err := checker.Check(context.Background(), domain.RoleWorker, 24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Crashes)
	assert.Equal(t, 3, report.Iterations)
	assert.InDelta(t, 0.25, report.FailureRate, 0.001)
	assert.Equal(t, domain.HealthWarning, report.Status)
	assert.Equal(t, 1, report.Patterns[domain.PatternExitError])
}

func TestCheck_CriticalAtHalfFailures(t *testing.T) {
	settings := healthSettings(t)
	now := time.Now()
	appendCrashLines(t, settings, domain.RoleWorker,
		domain.CrashRecord{Iteration: 3, Message: "timed out after 1h0m0s", Time: now.Add(-3 * time.Hour)},
		domain.CrashRecord{Iteration: 4, Message: "claude killed by signal 9", Time: now.Add(-2 * time.Hour)},
	)
	store := &fakeStore{total: 2, failed: 0}
	checker := NewHealthChecker(settings, &fakeChangeLog{}, store)

	report, err := checker.Check(context.Background(), domain.RoleWorker, 24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Crashes)
	assert.InDelta(t, 0.5, report.FailureRate, 0.001)
	assert.Equal(t, domain.HealthCritical, report.Status)
	assert.Equal(t, 1, report.Patterns[domain.PatternTimeout])
	assert.Equal(t, 1, report.Patterns[domain.PatternSignalKill])
}

func TestCheck_WindowExcludesOldCrashes(t *testing.T) {
	settings := healthSettings(t)
	now := time.Now()
	appendCrashLines(t, settings, domain.RoleWorker,
		domain.CrashRecord{Iteration: 1, Message: "ancient failure", Time: now.Add(-48 * time.Hour)},
		domain.CrashRecord{Iteration: 9, Message: "fresh failure", Time: now.Add(-time.Hour)},
	)
	checker := NewHealthChecker(settings, &fakeChangeLog{}, &fakeStore{})

	report, err := checker.Check(context.Background(), domain.RoleWorker, 24*time.Hour)

	require.NoError(t, err)
	require.Equal(t, 1, report.Crashes)
	assert.Equal(t, 9, report.Recent[0].Iteration)
}

func TestCheck_RecentSectionBounded(t *testing.T) {
	settings := healthSettings(t)
	now := time.Now()
	for i := 0; i < recentCrashesShown+3; i++ {
		appendCrashLines(t, settings, domain.RoleWorker, domain.CrashRecord{
			Iteration: i + 1,
			Message:   fmt.Sprintf("crash %d", i+1),
			Time:      now.Add(-time.Duration(i+1) * time.Minute),
		})
	}
	checker := NewHealthChecker(settings, &fakeChangeLog{}, &fakeStore{})

	report, err := checker.Check(context.Background(), domain.RoleWorker, 24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, recentCrashesShown+3, report.Crashes)
	assert.Len(t, report.Recent, recentCrashesShown)
	assert.Len(t, report.RecentLines, recentCrashesShown)
	// Newest first
	assert.Equal(t, 1, report.Recent[0].Iteration)
}

func TestCheck_FallsBackToChangeLogWithoutStore(t *testing.T) {
	settings := healthSettings(t)
	git := &fakeChangeLog{since: []domain.Commit{
		{Subject: "[W]11: finish retry"},
		{Subject: "[W]10: start retry"},
		{Subject: "[M]4: audit note"},
		{Subject: "untagged human change"},
	}}
	checker := NewHealthChecker(settings, git, nil)

	report, err := checker.Check(context.Background(), domain.RoleWorker, 24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 2, report.Iterations, "only this role's tagged records count")
}

func TestCheck_FallsBackWhenStoreErrors(t *testing.T) {
	settings := healthSettings(t)
	git := &fakeChangeLog{since: []domain.Commit{{Subject: "[W]1: bootstrap"}}}
	store := &fakeStore{countErr: errors.New("database is locked")}
	checker := NewHealthChecker(settings, git, store)

	report, err := checker.Check(context.Background(), domain.RoleWorker, 24*time.Hour)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Iterations)
}
