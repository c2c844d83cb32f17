package services

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/joweeba/dTOOL/internal/config"
	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/logging"
	"github.com/joweeba/dTOOL/internal/ports"
)

// HookService backs the hidden hook entry points. Invoked by the
// installed git hooks, not by operators.
type HookService struct {
	git      ports.ChangeLogReader
	settings *config.Settings
}

// NewHookService creates a HookService over the given collaborators
func NewHookService(git ports.ChangeLogReader, settings *config.Settings) *HookService {
	return &HookService{git: git, settings: settings}
}

// RewriteCommitMessage applies the role's message conventions to the
// message file in place and returns advisory warnings. Records written
// outside a supervised session (no role in the environment) pass through
// untouched.
func (s *HookService) RewriteCommitMessage(ctx context.Context, path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read commit message file: %w", err)
	}

	role, err := domain.ParseRole(os.Getenv("DTOOL_ROLE"))
	if err != nil {
		logging.Logger.Debug("No supervisor role in environment, leaving message untouched")
		return nil, nil
	}

	iteration := s.resolveIteration(ctx, role)
	annotated, warnings, changed := domain.AnnotateMessage(string(raw), role, iteration, time.Now())
	if !changed {
		return nil, nil
	}
	if err := os.WriteFile(path, []byte(annotated), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write commit message file: %w", err)
	}
	return warnings, nil
}

// resolveIteration prefers the counter the supervisor exported; without
// one it recovers from the newest tagged subjects in the change log.
// Either way a usable counter comes back, 1 at worst.
func (s *HookService) resolveIteration(ctx context.Context, role domain.Role) int {
	if v := os.Getenv("DTOOL_ITERATION"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	commits, err := s.git.RecentCommits(ctx, 50)
	if err != nil {
		logging.Logger.Debug("Could not recover iteration from change log", "error", err)
		return 1
	}
	subjects := make([]string, 0, len(commits))
	for _, c := range commits {
		subjects = append(subjects, c.Subject)
	}
	return domain.NextIteration(subjects, role)
}

// RunPreCommitChecks runs the configured validation commands and returns
// the first failure with its output. No checks configured means accept.
func (s *HookService) RunPreCommitChecks(ctx context.Context) error {
	for _, check := range s.settings.PreCommitChecks {
		cmd := exec.CommandContext(ctx, "sh", "-c", check)
		cmd.Dir = s.settings.RepoPath
		output, err := cmd.CombinedOutput()
		if err != nil {
			return fmt.Errorf("pre-commit check %q failed: %w\n%s", check, err, output)
		}
	}
	return nil
}
