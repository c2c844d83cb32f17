package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

const defaultTimeout = 30 * time.Second

var (
	binaryPath string
	buildOnce  sync.Once
	buildErr   error
)

// CommandResult captures everything a finished CLI invocation produced
type CommandResult struct {
	ExitCode int
	Stderr   string
	Stdout   string
}

// BuildBinary compiles the dtool binary once per test run; invoke it
// from TestMain before any suite executes.
func BuildBinary() (string, error) {
	buildOnce.Do(func() {
		binaryPath, buildErr = compile()
	})
	return binaryPath, buildErr
}

func compile() (string, error) {
	root, err := moduleRoot()
	if err != nil {
		return "", err
	}

	dir, err := os.MkdirTemp("", "dtool-itest-*")
	if err != nil {
		return "", err
	}
	target := filepath.Join(dir, "dtool")

	build := exec.Command("go", "build", "-o", target, ".")
	build.Dir = root
	if out, err := build.CombinedOutput(); err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("go build failed: %w\n%s", err, out)
	}
	return target, nil
}

// CleanupBinary deletes the compiled binary's temp directory; pair it
// with BuildBinary in TestMain.
func CleanupBinary() {
	if binaryPath == "" {
		return
	}
	if err := os.RemoveAll(filepath.Dir(binaryPath)); err != nil {
		log.Printf("Warning: failed to cleanup binary directory: %v", err)
	}
}

// GetBinaryPath reports where BuildBinary placed the binary.
func GetBinaryPath() string {
	return binaryPath
}

// RunCommand executes the dtool binary with given arguments using default timeout.
func RunCommand(tb testing.TB, env *TestEnvironment, args ...string) CommandResult {
	tb.Helper()
	return RunCommandWithTimeout(tb, env, defaultTimeout, args...)
}

// RunCommandWithTimeout executes the dtool binary with given arguments and timeout.
func RunCommandWithTimeout(tb testing.TB, env *TestEnvironment, timeout time.Duration, args ...string) CommandResult {
	tb.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binaryPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = env.Environ()

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		tb.Logf("Command timed out after %v: %v %v", timeout, binaryPath, args)
	}

	return CommandResult{
		ExitCode: exitCode(runErr, ctx),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
	}
}

// exitCode maps a Run error to the observed exit code; -1 stands for
// "did not exit on its own" (timeout or launch failure)
func exitCode(runErr error, ctx context.Context) int {
	if ctx.Err() == context.DeadlineExceeded {
		return -1
	}
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return exitErr.ExitCode()
	}
	if runErr != nil {
		return -1
	}
	return 0
}

// moduleRoot resolves the module directory via go list.
func moduleRoot() (string, error) {
	cmd := exec.Command("go", "list", "-m", "-f", "{{.Dir}}")
	out, err := cmd.Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}
