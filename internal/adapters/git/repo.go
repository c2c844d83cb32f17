package git

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/logging"
	"github.com/joweeba/dTOOL/internal/ports"
)

// Record fields are separated by unit separators so subjects and bodies
// containing newlines survive parsing.
const (
	fieldSep  = "\x1f"
	recordSep = "\x1e"
	logFormat = "%H" + fieldSep + "%an" + fieldSep + "%s" + fieldSep + "%b" + recordSep
)

// CLIRepository reads change history via the git CLI
type CLIRepository struct {
	repoPath string
}

// Verify interface compliance at compile time
var _ ports.GitRepository = (*CLIRepository)(nil)

// NewCLIRepository creates a CLIRepository rooted at repoPath
func NewCLIRepository(repoPath string) *CLIRepository {
	return &CLIRepository{repoPath: repoPath}
}

// RecentCommits returns the last n commits, newest first
func (r *CLIRepository) RecentCommits(ctx context.Context, n int) ([]domain.Commit, error) {
	out, err := r.run(ctx, "log", "-n", strconv.Itoa(n), "--format="+logFormat)
	if err != nil {
		return nil, err
	}
	return parseCommits(out), nil
}

// CommitsByAuthor returns the last n commits whose author matches the
// pattern, newest first
func (r *CLIRepository) CommitsByAuthor(ctx context.Context, authorPattern string, n int) ([]domain.Commit, error) {
	out, err := r.run(ctx, "log", "-n", strconv.Itoa(n), "--author="+authorPattern, "--format="+logFormat)
	if err != nil {
		return nil, err
	}
	return parseCommits(out), nil
}

// CommitsSince returns up to n commits created after the given time,
// newest first
func (r *CLIRepository) CommitsSince(ctx context.Context, since time.Time, n int) ([]domain.Commit, error) {
	out, err := r.run(ctx, "log", "-n", strconv.Itoa(n), "--since="+since.Format(time.RFC3339), "--format="+logFormat)
	if err != nil {
		return nil, err
	}
	return parseCommits(out), nil
}

// CountCommitsSince counts commits created after the given time. Used for
// the independent produced-a-change check after every session.
func (r *CLIRepository) CountCommitsSince(ctx context.Context, since time.Time) (int, error) {
	out, err := r.run(ctx, "rev-list", "--count", "--since="+since.Format(time.RFC3339), "HEAD")
	if err != nil {
		return 0, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(out))
	if err != nil {
		return 0, fmt.Errorf("failed to parse commit count %q: %w", out, err)
	}
	return count, nil
}

// HooksDir resolves the repository's hook directory
func (r *CLIRepository) HooksDir(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "rev-parse", "--git-path", "hooks")
	if err != nil {
		return "", err
	}
	dir := strings.TrimSpace(out)
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(r.repoPath, dir)
	}
	return dir, nil
}

func (r *CLIRepository) run(ctx context.Context, args ...string) (string, error) {
	logging.Logger.Debug("Running git command", "args", args, "dir", r.repoPath)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = r.repoPath
	output, err := cmd.CombinedOutput()
	if err != nil {
		logging.Logger.Debug("Git command failed", "args", args, "error", err, "output", string(output))
		return "", fmt.Errorf("git %s failed: %w\nOutput: %s", args[0], err, string(output))
	}
	return string(output), nil
}

func parseCommits(out string) []domain.Commit {
	var commits []domain.Commit
	for _, record := range strings.Split(out, recordSep) {
		record = strings.TrimLeft(record, "\n")
		if strings.TrimSpace(record) == "" {
			continue
		}
		fields := strings.SplitN(record, fieldSep, 4)
		if len(fields) < 4 {
			continue
		}
		commits = append(commits, domain.Commit{
			Author:  fields[1],
			Body:    strings.TrimRight(fields[3], "\n"),
			Hash:    fields[0],
			Subject: fields[2],
		})
	}
	return commits
}
