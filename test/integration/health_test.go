package integration_test

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/joweeba/dTOOL/test/integration/harness"
)

// seedCrashLog appends crash log lines for a role, aged by the given
// offsets from now, in the exact format the supervisor writes.
func seedCrashLog(t *testing.T, env *harness.TestEnvironment, role string, entries map[time.Duration]string) {
	t.Helper()
	path := env.CrashLogPath(role)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("Failed to create crash log directory: %v", err)
	}
	iteration := 1
	var content string
	for age, message := range entries {
		ts := time.Now().Add(-age).Format("2006-01-02 15:04:05")
		content += fmt.Sprintf("[%s] Iteration %d: %s\n", ts, iteration, message)
		iteration++
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write crash log: %v", err)
	}
}

func TestHealth_HealthyWithoutHistory(t *testing.T) {
	env := harness.NewTestEnvironment(t)

	result := harness.RunCommand(t, env, "health")

	harness.AssertSuccess(t, result)
	harness.AssertStdoutContains(t, result, "[OK] worker")
	harness.AssertStdoutContains(t, result, "System operating normally")
}

func TestHealth_CrashOnlyHistoryIsCritical(t *testing.T) {
	env := harness.NewTestEnvironment(t)
	seedCrashLog(t, env, "worker", map[time.Duration]string{
		2 * time.Hour: "claude exited with code 1",
		1 * time.Hour: "claude timed out after 1h0m0s",
	})

	result := harness.RunCommand(t, env, "health")

	harness.AssertExitCode(t, result, 2)
	harness.AssertStdoutContains(t, result, "[CRITICAL] worker")
	harness.AssertStdoutContains(t, result, "exit_error: 1")
	harness.AssertStdoutContains(t, result, "timeout: 1")
	harness.AssertStdoutContains(t, result, "ESCALATE")
}

func TestHealth_WindowExcludesOldCrashes(t *testing.T) {
	env := harness.NewTestEnvironment(t)
	seedCrashLog(t, env, "worker", map[time.Duration]string{
		48 * time.Hour: "claude exited with code 1",
	})

	result := harness.RunCommand(t, env, "health", "--hours", "24")

	harness.AssertSuccess(t, result)
	harness.AssertStdoutContains(t, result, "[OK] worker")
}

func TestHealth_JSONReport(t *testing.T) {
	env := harness.NewTestEnvironment(t)
	seedCrashLog(t, env, "worker", map[time.Duration]string{
		time.Hour: "claude killed by signal 9",
	})

	result := harness.RunCommand(t, env, "health", "--json")

	harness.AssertExitCode(t, result, 2)
	var report map[string]any
	harness.AssertValidJSON(t, result, &report)
	harness.AssertJSONContains(t, result, "status", "critical")
	harness.AssertJSONContains(t, result, "role", "worker")
	harness.AssertJSONContains(t, result, "crashes", float64(1))
}

func TestHealth_QuietPrintsNothingWhenHealthy(t *testing.T) {
	env := harness.NewTestEnvironment(t)

	result := harness.RunCommand(t, env, "health", "--quiet")

	harness.AssertSuccess(t, result)
	harness.AssertStdoutEmpty(t, result)
}

func TestHealth_QuietPrintsOneLineWhenUnhealthy(t *testing.T) {
	env := harness.NewTestEnvironment(t)
	seedCrashLog(t, env, "worker", map[time.Duration]string{
		time.Hour: "claude exited with code 2",
	})

	result := harness.RunCommand(t, env, "health", "--quiet")

	harness.AssertExitCode(t, result, 2)
	harness.AssertStdoutContains(t, result, "[CRITICAL] worker")
	harness.AssertStdoutNotContains(t, result, "Crash patterns")
}

func TestHealth_CountsTaggedCommitsWhenStoreUnavailable(t *testing.T) {
	env := harness.NewTestEnvironment(t)
	repo := harness.NewTestGitSetup(t)
	env.SetRepo(repo.RepoPath)
	repo.Commit("a.txt", "[W]1: wire the retry budget")
	repo.Commit("b.txt", "[W]2: tighten the sampler")
	repo.Commit("c.txt", "[W]3: fix the flaky gate")
	seedCrashLog(t, env, "worker", map[time.Duration]string{
		time.Hour: "claude exited with code 1",
	})
	// A directory squatting on the database path forces success counting
	// onto tagged change log subjects.
	if err := os.MkdirAll(env.DBPath(), 0o755); err != nil {
		t.Fatalf("Failed to block database path: %v", err)
	}

	result := harness.RunCommand(t, env, "health")

	harness.AssertExitCode(t, result, 1)
	harness.AssertStdoutContains(t, result, "[WARN] worker")
	harness.AssertStdoutContains(t, result, "3 successful, 1 crashes")
}

func TestHealth_UnknownRoleFails(t *testing.T) {
	env := harness.NewTestEnvironment(t)

	result := harness.RunCommand(t, env, "health", "--role", "contractor")

	harness.AssertFailure(t, result)
	harness.AssertStderrContains(t, result, "unknown role")
}
