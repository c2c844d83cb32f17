package harness

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// TestGitSetup is a disposable working repository for supervisor tests.
// dtool only ever reads and writes the local history, so a plain
// repository with one initial commit is a complete fixture.
type TestGitSetup struct {
	RepoPath string
	tb       testing.TB
}

// NewTestGitSetup creates a working repository with an initial commit on
// branch main.
func NewTestGitSetup(tb testing.TB) *TestGitSetup {
	tb.Helper()

	repoPath := tb.TempDir()
	runGitCommand(tb, repoPath, "init")
	runGitCommand(tb, repoPath, "config", "user.email", "test@example.com")
	runGitCommand(tb, repoPath, "config", "user.name", "Test User")

	readme := filepath.Join(repoPath, "README.md")
	if err := os.WriteFile(readme, []byte("# Test Repo\n"), 0644); err != nil {
		tb.Fatalf("Failed to create README: %v", err)
	}
	runGitCommand(tb, repoPath, "add", "README.md")
	runGitCommand(tb, repoPath, "commit", "-m", "Initial commit")
	runGitCommand(tb, repoPath, "branch", "-M", "main")

	return &TestGitSetup{RepoPath: repoPath, tb: tb}
}

// Commit writes a file and records it with the given message as the
// fixture's human test user.
func (g *TestGitSetup) Commit(filename, message string) {
	g.tb.Helper()
	g.commitWithEnv(filename, message, nil)
}

// CommitAs records a change under a specific author identity, the way a
// supervised session would.
func (g *TestGitSetup) CommitAs(authorName, authorEmail, filename, message string) {
	g.tb.Helper()
	g.commitWithEnv(filename, message, []string{
		"GIT_AUTHOR_NAME=" + authorName,
		"GIT_AUTHOR_EMAIL=" + authorEmail,
		"GIT_COMMITTER_NAME=" + authorName,
		"GIT_COMMITTER_EMAIL=" + authorEmail,
	})
}

func (g *TestGitSetup) commitWithEnv(filename, message string, env []string) {
	g.tb.Helper()

	path := filepath.Join(g.RepoPath, filename)
	if err := os.WriteFile(path, []byte(message+"\n"), 0644); err != nil {
		g.tb.Fatalf("Failed to write %s: %v", filename, err)
	}
	runGitCommand(g.tb, g.RepoPath, "add", filename)

	cmd := exec.Command("git", "commit", "-m", message)
	cmd.Dir = g.RepoPath
	cmd.Env = append(gitEnv(), env...)
	if output, err := cmd.CombinedOutput(); err != nil {
		g.tb.Fatalf("git commit failed in %s: %v\nOutput: %s", g.RepoPath, err, output)
	}
}

// Subjects returns the commit subjects, newest first.
func (g *TestGitSetup) Subjects() []string {
	g.tb.Helper()

	cmd := exec.Command("git", "log", "--format=%s")
	cmd.Dir = g.RepoPath
	output, err := cmd.Output()
	if err != nil {
		g.tb.Fatalf("git log failed in %s: %v", g.RepoPath, err)
	}
	trimmed := strings.TrimSpace(string(output))
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "\n")
}

// HeadSubject returns the subject of the newest commit.
func (g *TestGitSetup) HeadSubject() string {
	g.tb.Helper()

	cmd := exec.Command("git", "log", "-1", "--format=%s")
	cmd.Dir = g.RepoPath
	output, err := cmd.Output()
	if err != nil {
		g.tb.Fatalf("git log failed in %s: %v", g.RepoPath, err)
	}
	return strings.TrimSpace(string(output))
}

// HeadBody returns the body of the newest commit.
func (g *TestGitSetup) HeadBody() string {
	g.tb.Helper()

	cmd := exec.Command("git", "log", "-1", "--format=%b")
	cmd.Dir = g.RepoPath
	output, err := cmd.Output()
	if err != nil {
		g.tb.Fatalf("git log failed in %s: %v", g.RepoPath, err)
	}
	return strings.TrimSpace(string(output))
}

// CommitCount returns the number of commits in the repository.
func (g *TestGitSetup) CommitCount() int {
	g.tb.Helper()

	cmd := exec.Command("git", "rev-list", "--count", "HEAD")
	cmd.Dir = g.RepoPath
	output, err := cmd.Output()
	if err != nil {
		g.tb.Fatalf("git rev-list failed in %s: %v", g.RepoPath, err)
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(output)))
	if err != nil {
		g.tb.Fatalf("unexpected rev-list output %q: %v", output, err)
	}
	return count
}

// HooksDir returns the repository's git hooks directory.
func (g *TestGitSetup) HooksDir() string {
	return filepath.Join(g.RepoPath, ".git", "hooks")
}

// RunGitCommand runs git in dir, failing the test on error (exported for suites).
func RunGitCommand(tb testing.TB, dir string, args ...string) {
	tb.Helper()
	runGitCommand(tb, dir, args...)
}

// runGitCommand runs git in dir, failing the test on error.
func runGitCommand(tb testing.TB, dir string, args ...string) {
	tb.Helper()

	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	cmd.Env = gitEnv()

	output, err := cmd.CombinedOutput()
	if err != nil {
		tb.Fatalf("git %v failed in %s: %v\nOutput: %s", args, dir, err, output)
	}
}

func gitEnv() []string {
	return append(os.Environ(),
		"GIT_AUTHOR_NAME=Test User",
		"GIT_AUTHOR_EMAIL=test@example.com",
		"GIT_COMMITTER_NAME=Test User",
		"GIT_COMMITTER_EMAIL=test@example.com",
	)
}
