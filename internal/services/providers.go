package services

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/joweeba/dTOOL/internal/config"
	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/logging"
	"github.com/joweeba/dTOOL/internal/ports"
)

const (
	// directiveDepth is how many same-role records are scanned for a
	// "## Next" directive
	directiveDepth = 10
	// feedbackDepth is how many recent records are scanned for entries
	// from other roles
	feedbackDepth = 50
)

// ContextBuilder gathers the live values injected into prompt template
// markers. Every provider is best-effort: a failing collaborator degrades
// that marker to an empty value with a warning instead of stopping the
// loop.
type ContextBuilder struct {
	git      ports.ChangeLogReader
	issues   ports.IssueLister
	rng      *rand.Rand
	settings *config.Settings
}

// NewContextBuilder creates a ContextBuilder over the given collaborators
func NewContextBuilder(git ports.ChangeLogReader, issues ports.IssueLister, settings *config.Settings) *ContextBuilder {
	return &ContextBuilder{
		git:      git,
		issues:   issues,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		settings: settings,
	}
}

// Build produces the context map for one iteration. Every known marker
// is always present, possibly empty, so injection never fails because a
// provider had nothing to say.
func (b *ContextBuilder) Build(ctx context.Context, cfg domain.RoleConfig, iteration int) map[string]string {
	return map[string]string{
		"git_log":        b.gitLog(ctx),
		"gh_issues":      b.issueSample(ctx),
		"last_directive": b.lastDirective(ctx, cfg),
		"other_feedback": b.otherFeedback(ctx, cfg),
		"rotation_focus": rotationFocus(cfg, iteration),
	}
}

func (b *ContextBuilder) gitLog(ctx context.Context) string {
	commits, err := b.git.RecentCommits(ctx, b.settings.GitLogCount)
	if err != nil {
		logging.Logger.Warn("Context provider degraded", "marker", "git_log", "error", err)
		return ""
	}
	lines := make([]string, 0, len(commits))
	for _, c := range commits {
		lines = append(lines, fmt.Sprintf("%s %s", shortHash(c.Hash), c.Subject))
	}
	return strings.Join(lines, "\n")
}

func (b *ContextBuilder) issueSample(ctx context.Context) string {
	issues, err := b.issues.OpenIssues(ctx, b.settings.IssueLimit)
	if err != nil {
		logging.Logger.Warn("Context provider degraded", "marker", "gh_issues", "error", err)
		return ""
	}
	caps := domain.SampleCaps{
		InProgress:  b.settings.IssueCapInProgress,
		PerTier:     b.settings.IssueCapPerTier,
		RandomExtra: b.settings.IssueRandomExtra,
		TopTier:     b.settings.IssueCapTopTier,
	}
	sample := domain.SampleIssues(issues, caps, b.rng)
	now := time.Now()
	lines := make([]string, 0, len(sample))
	for _, issue := range sample {
		lines = append(lines, issue.PromptLine(now))
	}
	return strings.Join(lines, "\n")
}

// lastDirective returns the "## Next" section of the newest same-role
// record that carries one. Lets an iteration leave instructions for its
// successor.
func (b *ContextBuilder) lastDirective(ctx context.Context, cfg domain.RoleConfig) string {
	commits, err := b.git.CommitsByAuthor(ctx, cfg.AuthorIdentity(), directiveDepth)
	if err != nil {
		logging.Logger.Warn("Context provider degraded", "marker", "last_directive", "error", err)
		return ""
	}
	for _, c := range commits {
		if directive := domain.Section(c.Body, "Next"); directive != "" {
			return directive
		}
	}
	return ""
}

// otherFeedback returns the newest record subjects authored by other
// supervisor roles, so e.g. a worker sees what the manager flagged
func (b *ContextBuilder) otherFeedback(ctx context.Context, cfg domain.RoleConfig) string {
	commits, err := b.git.RecentCommits(ctx, feedbackDepth)
	if err != nil {
		logging.Logger.Warn("Context provider degraded", "marker", "other_feedback", "error", err)
		return ""
	}
	self := cfg.AuthorIdentity()
	var lines []string
	for _, c := range commits {
		if len(lines) >= b.settings.FeedbackCount {
			break
		}
		if !domain.IsSupervisorAuthor(c.Author) || c.Author == self {
			continue
		}
		lines = append(lines, c.Subject)
	}
	return strings.Join(lines, "\n")
}

// rotationFocus selects the phase for this iteration from the configured
// cycle. Roles without rotation always get an empty focus.
func rotationFocus(cfg domain.RoleConfig, iteration int) string {
	if cfg.RotationType == "" || len(cfg.RotationPhases) == 0 {
		return ""
	}
	return cfg.RotationPhases[iteration%len(cfg.RotationPhases)]
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}
