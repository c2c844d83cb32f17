package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/joweeba/dTOOL/internal/config"
	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/logging"
	"github.com/joweeba/dTOOL/internal/ports"
	"github.com/joweeba/dTOOL/internal/roledoc"
)

// supervisorState names the loop's control states. One step per state
// keeps every transition individually testable.
type supervisorState int

const (
	stateStarting supervisorState = iota
	stateIterating
	stateWaiting
	stateStopped
)

// iterationRecoveryDepth is how far back the change log is scanned when
// recovering the iteration counter at startup
const iterationRecoveryDepth = 100

// SupervisorDeps wires the collaborators a Supervisor drives
type SupervisorDeps struct {
	Builder   *ContextBuilder
	Git       ports.GitRepository
	Hooks     *HookInstaller
	Identity  *IdentityService
	Inspector ports.ProcessInspector
	Mailbox   *Mailbox
	Output    io.Writer
	Recorder  *Recorder
	Runner    ports.SessionRunner
	Settings  *config.Settings
	Store     ports.IterationStore
}

// Supervisor runs the iteration loop for one role: gather context,
// assemble the prompt, run the assistant, record the outcome, wait,
// repeat. One Supervisor per role per process.
type Supervisor struct {
	builder   *ContextBuilder
	git       ports.GitRepository
	hooks     *HookInstaller
	identity  *IdentityService
	inspector ports.ProcessInspector
	mailbox   *Mailbox
	maxIter   int
	output    io.Writer
	recorder  *Recorder
	role      domain.Role
	runner    ports.SessionRunner
	settings  *config.Settings
	store     ports.IterationStore

	cfg           domain.RoleConfig
	iteration     int
	lastResult    domain.SessionResult
	ran           int
	startedAt     time.Time
	statusWritten bool
	template      string
}

// NewSupervisor creates the supervisor for one role. maxIterations
// bounds the loop when positive; zero means run until stopped.
func NewSupervisor(role domain.Role, maxIterations int, deps SupervisorDeps) *Supervisor {
	return &Supervisor{
		builder:   deps.Builder,
		git:       deps.Git,
		hooks:     deps.Hooks,
		identity:  deps.Identity,
		inspector: deps.Inspector,
		mailbox:   deps.Mailbox,
		maxIter:   maxIterations,
		output:    deps.Output,
		recorder:  deps.Recorder,
		role:      role,
		runner:    deps.Runner,
		settings:  deps.Settings,
		store:     deps.Store,
	}
}

// Run drives the state machine until Stopped. Only configuration-time
// failures return an error; per-iteration failures are recorded and the
// loop continues.
func (s *Supervisor) Run(ctx context.Context) error {
	s.startedAt = time.Now()
	state := stateStarting
	var err error
	for state != stateStopped {
		state, err = s.step(ctx, state)
		if err != nil {
			s.shutdown()
			return err
		}
	}
	s.shutdown()
	return nil
}

func (s *Supervisor) step(ctx context.Context, state supervisorState) (supervisorState, error) {
	switch state {
	case stateStarting:
		return s.start(ctx)
	case stateIterating:
		return s.iterate(ctx)
	case stateWaiting:
		return s.wait(ctx)
	}
	return stateStopped, nil
}

func (s *Supervisor) start(ctx context.Context) (supervisorState, error) {
	if err := s.guardRole(); err != nil {
		return stateStopped, err
	}

	cfg, template, err := roledoc.Load(s.settings.RolesDir(), s.role)
	if err != nil {
		return stateStopped, err
	}
	s.cfg = cfg
	s.template = template

	if err := s.hooks.Install(ctx); err != nil {
		return stateStopped, fmt.Errorf("hook installation failed: %w", err)
	}

	s.iteration = s.recoverIteration(ctx)
	logging.Logger.Info("Supervisor started",
		"role", s.role,
		"iteration", s.iteration,
		"primary", s.settings.PrimaryAssistant,
		"repo", s.settings.RepoPath)
	return stateIterating, nil
}

func (s *Supervisor) iterate(ctx context.Context) (supervisorState, error) {
	if ctx.Err() != nil || s.stopRequested() {
		return stateStopped, nil
	}
	if s.maxIter > 0 && s.ran >= s.maxIter {
		logging.Logger.Info("Iteration bound reached", "iterations", s.ran)
		return stateStopped, nil
	}

	started := time.Now()
	s.writeStatus(domain.PhaseRunning)
	logging.Logger.Info("Iteration starting", "role", s.role, "iteration", s.iteration)

	hintText := ""
	hint, err := s.mailbox.Consume(s.iteration)
	switch {
	case err == nil:
		hintText = hint.Text
	case !errors.Is(err, domain.ErrNoHint):
		logging.Logger.Warn("Mailbox consumption failed", "error", err)
	}

	contextMap := s.builder.Build(ctx, s.cfg, s.iteration)
	contextMap["operator_hint"] = hintText

	prompt, err := roledoc.Inject(s.template, contextMap)
	if err != nil {
		return stateStopped, err
	}

	identity := s.identity.ForIteration(s.cfg, s.iteration)

	sink := s.output
	logFile, err := s.recorder.OpenIterationLog(s.iteration, started)
	if err != nil {
		logging.Logger.Warn("Iteration log unavailable", "error", err)
	} else {
		defer logFile.Close()
		sink = io.MultiWriter(s.output, logFile)
	}

	assistant := s.selectAssistant()
	result, err := s.runner.Run(ctx, ports.SessionSpec{
		Assistant: assistant,
		Env:       identity.Env(),
		Output:    sink,
		Prompt:    prompt,
		Timeout:   s.cfg.IterationTimeout,
	})
	if err != nil {
		logging.Logger.Warn("Assistant failed to launch", "assistant", assistant, "error", err)
	}
	finished := time.Now()
	result.Committed = s.producedChange(started)

	s.recorder.RecordOutcome(ctx, domain.IterationRecord{
		Assistant:  result.Assistant,
		Committed:  result.Committed,
		Detail:     result.Detail,
		FinishedAt: finished,
		Iteration:  s.iteration,
		Outcome:    result.Outcome,
		Role:       s.role,
		StartedAt:  started,
	})
	s.lastResult = result
	s.writeStatus(domain.PhaseWaiting)
	logging.Logger.Info("Iteration finished",
		"role", s.role,
		"iteration", s.iteration,
		"outcome", result.Outcome,
		"committed", result.Committed,
		"duration", result.Duration.Round(time.Second))

	s.ran++
	s.iteration++
	return stateWaiting, nil
}

func (s *Supervisor) wait(ctx context.Context) (supervisorState, error) {
	if ctx.Err() != nil {
		return stateStopped, nil
	}

	delay := s.cfg.ErrorDelay
	if s.lastResult.Outcome == domain.OutcomeCompleted && s.lastResult.Committed {
		delay = s.cfg.RestartDelay
	}
	if delay <= 0 {
		return stateIterating, nil
	}

	logging.Logger.Info("Waiting before next iteration", "delay", delay)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return stateStopped, nil
	case <-timer.C:
		return stateIterating, nil
	}
}

// guardRole refuses to start while another live process supervises this
// role. Two loops on one role would race on every state file.
func (s *Supervisor) guardRole() error {
	if s.inspector == nil {
		return nil
	}
	snap, _, err := ReadStatus(s.settings, s.role)
	if err != nil {
		return nil
	}
	if snap.PID != os.Getpid() && s.inspector.Alive(snap.PID) {
		return fmt.Errorf("pid %d holds role %s: %w", snap.PID, s.role, domain.ErrRoleRunning)
	}
	return nil
}

func (s *Supervisor) shutdown() {
	// Only clear a status file this process wrote; a startup refusal must
	// leave the live supervisor's snapshot alone.
	if s.statusWritten {
		s.recorder.ClearStatus()
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			logging.Logger.Warn("Failed to close history store", "error", err)
		}
	}
	logging.Logger.Info("Supervisor stopped", "role", s.role, "iterations_run", s.ran)
}

// stopRequested honors the stop sentinels. The role-scoped sentinel is
// one-shot and removed once seen; the all-roles sentinel stays until the
// operator clears it so every role stops.
func (s *Supervisor) stopRequested() bool {
	rolePath := s.settings.StopPath(s.role)
	if _, err := os.Stat(rolePath); err == nil {
		logging.Logger.Info("Stop sentinel found", "path", rolePath)
		if err := os.Remove(rolePath); err != nil {
			logging.Logger.Warn("Failed to remove stop sentinel", "path", rolePath, "error", err)
		}
		return true
	}
	if _, err := os.Stat(s.settings.StopAllPath()); err == nil {
		logging.Logger.Info("Stop sentinel found", "path", s.settings.StopAllPath())
		return true
	}
	return false
}

// recoverIteration resumes the counter from the newest tagged subject in
// the change log, so restarts never reuse an iteration number
func (s *Supervisor) recoverIteration(ctx context.Context) int {
	commits, err := s.git.RecentCommits(ctx, iterationRecoveryDepth)
	if err != nil {
		logging.Logger.Warn("Could not read change log for iteration recovery", "error", err)
		return 1
	}
	subjects := make([]string, 0, len(commits))
	for _, c := range commits {
		subjects = append(subjects, c.Subject)
	}
	return domain.NextIteration(subjects, s.role)
}

// selectAssistant picks the executable for this iteration. The secondary
// takes over every rotation-interval-th iteration when it is on PATH.
func (s *Supervisor) selectAssistant() string {
	primary := s.settings.PrimaryAssistant
	interval := s.cfg.RotationInterval
	if interval <= 0 || s.iteration%interval != 0 {
		return primary
	}
	secondary := s.settings.SecondaryAssistant
	if secondary == "" || !s.runner.Available(secondary) {
		logging.Logger.Debug("Secondary assistant unavailable, keeping primary", "secondary", secondary)
		return primary
	}
	logging.Logger.Info("Rotating to secondary assistant", "assistant", secondary, "iteration", s.iteration)
	return secondary
}

// producedChange is the independent success check: did the change log
// grow during the iteration. Uses a fresh context so a shutdown signal
// cannot skew the record.
func (s *Supervisor) producedChange(since time.Time) bool {
	countCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	count, err := s.git.CountCommitsSince(countCtx, since)
	if err != nil {
		logging.Logger.Warn("Could not count new change records", "error", err)
		return false
	}
	return count > 0
}

// writeStatus snapshots the loop for `dtool status`. The last result's
// committed flag rides along so a false success reads differently from
// a real completion.
func (s *Supervisor) writeStatus(phase domain.Phase) {
	s.statusWritten = true
	err := s.recorder.WriteStatus(domain.StatusSnapshot{
		Committed:   s.lastResult.Committed,
		Iteration:   s.iteration,
		LastOutcome: s.lastResult.Outcome,
		Phase:       phase,
		StartedAt:   s.startedAt,
	})
	if err != nil {
		logging.Logger.Warn("Failed to write status snapshot", "error", err)
	}
}
