package assistant

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/logging"
	"github.com/joweeba/dTOOL/internal/ports"
)

// exitCodeTimeout is the conventional exit code of timeout(1) wrappers
const exitCodeTimeout = 124

// CLIRunner spawns assistant executables and relays their output streams
type CLIRunner struct {
	killGrace time.Duration
	repoPath  string
}

// Verify interface compliance at compile time
var _ ports.SessionRunner = (*CLIRunner)(nil)

// NewCLIRunner creates a CLIRunner working inside repoPath. killGrace is
// how long a terminated child gets to exit before it is killed outright.
func NewCLIRunner(repoPath string, killGrace time.Duration) *CLIRunner {
	return &CLIRunner{killGrace: killGrace, repoPath: repoPath}
}

// Available reports whether the assistant executable is on PATH
func (r *CLIRunner) Available(assistant string) bool {
	_, err := exec.LookPath(assistant)
	return err == nil
}

// assistantArgs returns the non-interactive streaming invocation for the
// named assistant executable
func assistantArgs(assistant string) []string {
	if assistant == "codex" {
		return []string{"exec", "--json", "--dangerously-bypass-approvals-and-sandbox", "-"}
	}
	return []string{"-p", "--verbose", "--output-format", "stream-json", "--dangerously-skip-permissions"}
}

// Run launches the assistant, feeds it the prompt on stdin, streams its
// output through the line formatter, and enforces the timeout. On
// termination the child's whole process group is signaled SIGTERM, then
// SIGKILL after the grace period, so background helpers the assistant
// spawned die with it instead of holding the output pipes open.
func (r *CLIRunner) Run(ctx context.Context, spec ports.SessionSpec) (domain.SessionResult, error) {
	result := domain.SessionResult{Assistant: spec.Assistant}
	start := time.Now()

	runCtx := ctx
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.Command(spec.Assistant, assistantArgs(spec.Assistant)...)
	cmd.Dir = r.repoPath
	cmd.Env = append(os.Environ(), spec.Env...)
	// A fresh process group, so termination reaches everything the
	// assistant spawned, not just the direct child
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return launchFailure(result, start, spec.Assistant, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return launchFailure(result, start, spec.Assistant, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return launchFailure(result, start, spec.Assistant, err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return launchFailure(result, start, spec.Assistant, err)
	}
	logging.Logger.Debug("Assistant session started",
		"assistant", spec.Assistant,
		"pid", cmd.Process.Pid,
		"timeout", spec.Timeout)

	go func() {
		defer stdin.Close()
		_, _ = io.WriteString(stdin, spec.Prompt)
	}()

	formatter := spec.Formatter
	if formatter == nil {
		formatter = NewStreamFormatter()
	}

	// Drain both pipes before Wait so output is never lost
	g := new(errgroup.Group)
	g.Go(func() error { return relayFormatted(stdout, formatter, spec.Output) })
	g.Go(func() error { return relayRaw(stderr, spec.Output) })

	type procResult struct {
		streamErr error
		waitErr   error
	}
	procDone := make(chan procResult, 1)
	go func() {
		streamErr := g.Wait()
		procDone <- procResult{streamErr: streamErr, waitErr: cmd.Wait()}
	}()

	var proc procResult
	var timedOut, interrupted bool
	select {
	case proc = <-procDone:
	case <-runCtx.Done():
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			timedOut = true
		} else {
			interrupted = true
		}
		logging.Logger.Debug("Terminating assistant process group",
			"assistant", spec.Assistant,
			"pid", cmd.Process.Pid,
			"timed_out", timedOut)
		signalGroup(cmd.Process.Pid, syscall.SIGTERM)
		select {
		case proc = <-procDone:
		case <-time.After(r.killGrace):
			signalGroup(cmd.Process.Pid, syscall.SIGKILL)
			select {
			case proc = <-procDone:
			case <-time.After(r.killGrace):
				// A straggler that escaped the group can still hold the
				// pipe write ends. Closing the read ends unblocks the
				// relays, so this last receive cannot hang.
				stdout.Close()
				stderr.Close()
				proc = <-procDone
			}
		}
	}

	result.Duration = time.Since(start)
	code, signaled := classifyExit(proc.waitErr)
	result.ExitCode = code

	switch {
	case timedOut:
		result.Outcome = domain.OutcomeTimedOut
		result.Detail = fmt.Sprintf("%s timed out after %s", spec.Assistant, spec.Timeout)
	case interrupted:
		result.Outcome = domain.OutcomeInterrupted
		result.Detail = fmt.Sprintf("%s interrupted", spec.Assistant)
	case signaled:
		result.Outcome = domain.OutcomeCrashed
		result.Detail = fmt.Sprintf("%s killed by signal %d", spec.Assistant, code-128)
	case code == exitCodeTimeout:
		result.Outcome = domain.OutcomeTimedOut
		result.Detail = fmt.Sprintf("%s timed out after %s", spec.Assistant, spec.Timeout)
	case code != 0:
		result.Outcome = domain.OutcomeCrashed
		result.Detail = fmt.Sprintf("%s exited with code %d", spec.Assistant, code)
	case proc.streamErr != nil:
		result.Outcome = domain.OutcomeCrashed
		result.Detail = fmt.Sprintf("%s output stream failed", spec.Assistant)
	default:
		result.Outcome = domain.OutcomeCompleted
	}

	logging.Logger.Debug("Assistant session finished",
		"assistant", spec.Assistant,
		"outcome", result.Outcome,
		"exit_code", result.ExitCode,
		"duration", result.Duration)
	return result, nil
}

// signalGroup delivers sig to the child's whole process group, falling
// back to the child alone when the group is already gone
func signalGroup(pid int, sig syscall.Signal) {
	if err := syscall.Kill(-pid, sig); err != nil {
		_ = syscall.Kill(pid, sig)
	}
}

func launchFailure(result domain.SessionResult, start time.Time, assistant string, err error) (domain.SessionResult, error) {
	result.Duration = time.Since(start)
	result.ExitCode = -1
	result.Outcome = domain.OutcomeCrashed
	result.Detail = fmt.Sprintf("%s failed to start", assistant)
	return result, fmt.Errorf("failed to start %s: %w", assistant, err)
}

// classifyExit extracts a shell-style exit code from cmd.Wait's error.
// Signal death maps to 128+signal and is reported separately, so a child
// that exits with a literal 137 is not mistaken for a killed one.
func classifyExit(waitErr error) (int, bool) {
	if waitErr == nil {
		return 0, false
	}
	var ee *exec.ExitError
	if !errors.As(waitErr, &ee) {
		return -1, false
	}
	if status, ok := ee.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), true
	}
	return ee.ExitCode(), false
}

// relayFormatted streams lines through the formatter into the sink
func relayFormatted(reader io.Reader, formatter ports.LineFormatter, sink io.Writer) error {
	scanner := bufio.NewScanner(reader)
	// Stream events can carry whole file contents in one line
	scanner.Buffer(make([]byte, 0, 1024*1024), 10*1024*1024)
	for scanner.Scan() {
		out, emit := formatter.FormatLine(scanner.Text())
		if !emit {
			continue
		}
		if _, err := fmt.Fprintln(sink, out); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// relayRaw copies stderr lines unchanged; assistants print diagnostics there
func relayRaw(reader io.Reader, sink io.Writer) error {
	scanner := bufio.NewScanner(reader)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if _, err := fmt.Fprintln(sink, line); err != nil {
			return err
		}
	}
	return scanner.Err()
}
