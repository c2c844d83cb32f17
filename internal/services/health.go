package services

import (
	"context"
	"time"

	"github.com/joweeba/dTOOL/internal/config"
	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/logging"
	"github.com/joweeba/dTOOL/internal/ports"
)

// recentCrashesShown bounds the crash detail section of a health report
const recentCrashesShown = 5

// HealthChecker analyzes a role's recent crash history against its
// iteration history and classifies the failure rate
type HealthChecker struct {
	git      ports.ChangeLogReader
	settings *config.Settings
	store    ports.IterationStore
}

// NewHealthChecker creates a HealthChecker. The store may be nil; success
// counting then falls back to tagged records in the change log.
func NewHealthChecker(settings *config.Settings, git ports.ChangeLogReader, store ports.IterationStore) *HealthChecker {
	return &HealthChecker{git: git, settings: settings, store: store}
}

// Check builds the health report for one role over the given window
func (h *HealthChecker) Check(ctx context.Context, role domain.Role, window time.Duration) (domain.HealthReport, error) {
	since := time.Now().Add(-window)

	crashes, err := ReadCrashes(h.settings, role, since)
	if err != nil {
		return domain.HealthReport{}, err
	}

	patterns := make(map[domain.CrashPattern]int)
	for _, rec := range crashes {
		patterns[rec.Pattern()]++
	}

	successes := h.countSuccesses(ctx, role, since)
	attempts := successes + len(crashes)
	rate := 0.0
	if attempts > 0 {
		rate = float64(len(crashes)) / float64(attempts)
	}

	report := domain.HealthReport{
		Crashes:     len(crashes),
		FailureRate: rate,
		Iterations:  successes,
		Patterns:    patterns,
		Role:        role,
		Status:      domain.ClassifyFailureRate(rate),
		WindowHours: window.Hours(),
	}
	for i, rec := range crashes {
		if i >= recentCrashesShown {
			break
		}
		report.Recent = append(report.Recent, rec)
		report.RecentLines = append(report.RecentLines, rec.Line())
	}
	return report, nil
}

// countSuccesses counts the role's cleanly finished iterations in the
// window. The history store is authoritative; without one the tagged
// subjects in the change log are counted instead.
func (h *HealthChecker) countSuccesses(ctx context.Context, role domain.Role, since time.Time) int {
	if h.store != nil {
		total, failed, err := h.store.CountSince(ctx, role, since)
		if err == nil {
			return total - failed
		}
		logging.Logger.Warn("History store unavailable, counting from change log", "error", err)
	}

	commits, err := h.git.CommitsSince(ctx, since, 1000)
	if err != nil {
		logging.Logger.Warn("Change log unavailable for success counting", "error", err)
		return 0
	}
	count := 0
	for _, c := range commits {
		if r, _, ok := domain.ParseIterationTag(c.Subject); ok && r == role {
			count++
		}
	}
	return count
}
