package services

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joweeba/dTOOL/internal/config"
	"github.com/joweeba/dTOOL/internal/domain"
)

const supervisorSharedDoc = `---
error_delay: 0
---
Work the repository forward, one finished change per iteration.

## Recent changes
<!-- INJECT:git_log -->

## Operator hint
<!-- INJECT:operator_hint -->
`

const supervisorWorkerDoc = `Ship the smallest useful change and commit it.
`

func supervisorSettings(t *testing.T) *config.Settings {
	t.Helper()
	home := t.TempDir()
	return &config.Settings{
		CrashLogMaxLines:   50,
		FeedbackCount:      5,
		GitLogCount:        10,
		HintMinInterval:    time.Hour,
		Home:               home,
		IssueCapInProgress: 5,
		IssueCapPerTier:    3,
		IssueCapTopTier:    8,
		IssueLimit:         100,
		IssueRandomExtra:   3,
		IterationLogMax:    20,
		PrimaryAssistant:   "claude",
		RepoPath:           home,
		SecondaryAssistant: "codex",
	}
}

func writeRoleDocs(t *testing.T, settings *config.Settings, shared, worker string) {
	t.Helper()
	dir := settings.RolesDir()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shared.md"), []byte(shared), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "worker.md"), []byte(worker), 0o644))
}

type supervisorFixture struct {
	git       *fakeChangeLog
	inspector *fakeInspector
	mailbox   *Mailbox
	runner    *fakeRunner
	settings  *config.Settings
	store     *fakeStore
	sup       *Supervisor
}

func newSupervisorFixture(t *testing.T, maxIterations int) *supervisorFixture {
	t.Helper()
	settings := supervisorSettings(t)
	writeRoleDocs(t, settings, supervisorSharedDoc, supervisorWorkerDoc)

	git := &fakeChangeLog{commitCount: 1, hooksDir: filepath.Join(settings.Home, "githooks")}
	inspector := &fakeInspector{alive: map[int]bool{}}
	mailbox := NewMailbox(settings, domain.RoleWorker)
	runner := &fakeRunner{}
	store := &fakeStore{}

	sup := NewSupervisor(domain.RoleWorker, maxIterations, SupervisorDeps{
		Builder:   NewContextBuilder(git, &fakeIssueLister{}, settings),
		Git:       git,
		Hooks:     NewHookInstaller(git),
		Identity:  NewIdentityService(),
		Inspector: inspector,
		Mailbox:   mailbox,
		Output:    &bytes.Buffer{},
		Recorder:  NewRecorder(settings, domain.RoleWorker, store),
		Runner:    runner,
		Settings:  settings,
		Store:     store,
	})
	return &supervisorFixture{
		git:       git,
		inspector: inspector,
		mailbox:   mailbox,
		runner:    runner,
		settings:  settings,
		store:     store,
		sup:       sup,
	}
}

func writeForeignStatus(t *testing.T, settings *config.Settings, pid int) {
	t.Helper()
	snap := domain.StatusSnapshot{Iteration: 7, PID: pid, Phase: domain.PhaseRunning, Role: domain.RoleWorker}
	data, err := json.Marshal(snap)
	require.NoError(t, err)
	path := settings.StatusPath(domain.RoleWorker)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestSupervisor_RunsBoundedIterations(t *testing.T) {
	f := newSupervisorFixture(t, 2)

	require.NoError(t, f.sup.Run(context.Background()))

	require.Len(t, f.runner.specs, 2)
	spec := f.runner.specs[0]
	assert.Equal(t, "claude", spec.Assistant)
	assert.Equal(t, 60*time.Minute, spec.Timeout)
	assert.Contains(t, spec.Prompt, "Work the repository forward")
	assert.Contains(t, spec.Prompt, "Ship the smallest useful change")
	assert.NotContains(t, spec.Prompt, "INJECT")
	assert.Contains(t, spec.Env, "DTOOL_ROLE=worker")
	assert.Contains(t, spec.Env, "DTOOL_ITERATION=1")
	assert.Contains(t, f.runner.specs[1].Env, "DTOOL_ITERATION=2")

	require.Len(t, f.store.records, 2)
	assert.Equal(t, 1, f.store.records[0].Iteration)
	assert.Equal(t, 2, f.store.records[1].Iteration)
	assert.Equal(t, domain.RoleWorker, f.store.records[0].Role)
	assert.Equal(t, domain.OutcomeCompleted, f.store.records[0].Outcome)
	assert.True(t, f.store.records[0].Committed)
	assert.False(t, f.store.records[0].FinishedAt.Before(f.store.records[0].StartedAt))

	// Clean shutdown leaves no status behind and closes the store
	_, err := os.Stat(f.settings.StatusPath(domain.RoleWorker))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Equal(t, 1, f.store.closed)
	_, err = os.Stat(f.settings.CrashLogPath(domain.RoleWorker))
	assert.ErrorIs(t, err, os.ErrNotExist)

	entries, err := os.ReadDir(f.settings.IterationLogDir(domain.RoleWorker))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestSupervisor_InstallsHooksOnStartup(t *testing.T) {
	f := newSupervisorFixture(t, 1)

	require.NoError(t, f.sup.Run(context.Background()))

	for _, hook := range []string{"commit-msg", "pre-commit"} {
		data, err := os.ReadFile(filepath.Join(f.git.hooksDir, hook))
		require.NoError(t, err)
		assert.Contains(t, string(data), hookMarker)
	}
}

func TestSupervisor_RecoversIterationCounter(t *testing.T) {
	f := newSupervisorFixture(t, 1)
	f.git.recent = []domain.Commit{
		{Hash: "aaa1111", Subject: "[W]41: tighten loop"},
		{Hash: "bbb2222", Subject: "[W]40: first pass"},
	}

	require.NoError(t, f.sup.Run(context.Background()))

	require.Len(t, f.store.records, 1)
	assert.Equal(t, 42, f.store.records[0].Iteration)
	assert.Contains(t, f.runner.specs[0].Env, "DTOOL_ITERATION=42")
	assert.Contains(t, f.runner.specs[0].Prompt, "aaa1111 [W]41: tighten loop")
}

func TestSupervisor_FalseSuccessGetsCrashLine(t *testing.T) {
	f := newSupervisorFixture(t, 1)
	f.git.commitCount = 0

	require.NoError(t, f.sup.Run(context.Background()))

	require.Len(t, f.store.records, 1)
	assert.Equal(t, domain.OutcomeCompleted, f.store.records[0].Outcome)
	assert.False(t, f.store.records[0].Committed)

	data, err := os.ReadFile(f.settings.CrashLogPath(domain.RoleWorker))
	require.NoError(t, err)
	assert.Contains(t, string(data), "false success: no new commit")
}

func TestSupervisor_StatusDistinguishesFalseSuccess(t *testing.T) {
	settings := supervisorSettings(t)
	s := &Supervisor{
		lastResult: domain.SessionResult{Committed: true, Outcome: domain.OutcomeCompleted},
		recorder:   NewRecorder(settings, domain.RoleWorker, nil),
	}

	s.writeStatus(domain.PhaseWaiting)
	snap, _, err := ReadStatus(settings, domain.RoleWorker)
	require.NoError(t, err)
	assert.True(t, snap.Committed)

	// Same outcome without a commit must not read as a real completion
	s.lastResult = domain.SessionResult{Committed: false, Outcome: domain.OutcomeCompleted}
	s.writeStatus(domain.PhaseWaiting)
	snap, _, err = ReadStatus(settings, domain.RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeCompleted, snap.LastOutcome)
	assert.False(t, snap.Committed)
}

func TestSupervisor_CrashDetailReachesCrashLog(t *testing.T) {
	f := newSupervisorFixture(t, 1)
	f.git.commitCount = 0
	f.runner.results = []domain.SessionResult{
		{Detail: "claude exited with code 1", ExitCode: 1, Outcome: domain.OutcomeCrashed},
	}

	require.NoError(t, f.sup.Run(context.Background()))

	require.Len(t, f.store.records, 1)
	assert.Equal(t, domain.OutcomeCrashed, f.store.records[0].Outcome)

	data, err := os.ReadFile(f.settings.CrashLogPath(domain.RoleWorker))
	require.NoError(t, err)
	assert.Contains(t, string(data), "claude exited with code 1")
}

func TestSupervisor_RoleStopSentinelIsOneShot(t *testing.T) {
	f := newSupervisorFixture(t, 3)
	stopPath := f.settings.StopPath(domain.RoleWorker)
	require.NoError(t, os.MkdirAll(filepath.Dir(stopPath), 0o755))
	require.NoError(t, os.WriteFile(stopPath, nil, 0o644))

	require.NoError(t, f.sup.Run(context.Background()))

	assert.Empty(t, f.runner.specs)
	assert.Empty(t, f.store.records)
	_, err := os.Stat(stopPath)
	assert.ErrorIs(t, err, os.ErrNotExist, "role sentinel is consumed")
	assert.Equal(t, 1, f.store.closed)
}

func TestSupervisor_StopAllSentinelPersists(t *testing.T) {
	f := newSupervisorFixture(t, 3)
	stopPath := f.settings.StopAllPath()
	require.NoError(t, os.MkdirAll(filepath.Dir(stopPath), 0o755))
	require.NoError(t, os.WriteFile(stopPath, nil, 0o644))

	require.NoError(t, f.sup.Run(context.Background()))

	assert.Empty(t, f.runner.specs)
	_, err := os.Stat(stopPath)
	assert.NoError(t, err, "all-roles sentinel stays until cleared")
}

func TestSupervisor_HintInjectedExactlyOnce(t *testing.T) {
	f := newSupervisorFixture(t, 2)
	require.NoError(t, f.mailbox.Post("focus on the flaky scheduler test"))

	require.NoError(t, f.sup.Run(context.Background()))

	require.Len(t, f.runner.specs, 2)
	assert.Contains(t, f.runner.specs[0].Prompt, "focus on the flaky scheduler test")
	assert.NotContains(t, f.runner.specs[1].Prompt, "focus on the flaky scheduler test")

	_, err := os.Stat(f.settings.HintPath(domain.RoleWorker))
	assert.ErrorIs(t, err, os.ErrNotExist)

	ack, err := os.ReadFile(f.settings.HintAckPath(domain.RoleWorker))
	require.NoError(t, err)
	assert.Contains(t, string(ack), "iteration 1")

	history, err := os.ReadFile(f.settings.HintHistoryPath(domain.RoleWorker))
	require.NoError(t, err)
	assert.Contains(t, string(history), "focus on the flaky scheduler test")
}

func TestSupervisor_RotatesToSecondaryAssistant(t *testing.T) {
	f := newSupervisorFixture(t, 4)
	writeRoleDocs(t, f.settings, supervisorSharedDoc,
		"---\nassistant_rotation_interval: 2\n---\nShip.\n")
	f.runner.available = map[string]bool{"codex": true}

	require.NoError(t, f.sup.Run(context.Background()))

	require.Len(t, f.runner.specs, 4)
	assistants := make([]string, 0, 4)
	for _, spec := range f.runner.specs {
		assistants = append(assistants, spec.Assistant)
	}
	assert.Equal(t, []string{"claude", "codex", "claude", "codex"}, assistants)
}

func TestSupervisor_KeepsPrimaryWhenSecondaryUnavailable(t *testing.T) {
	f := newSupervisorFixture(t, 2)
	writeRoleDocs(t, f.settings, supervisorSharedDoc,
		"---\nassistant_rotation_interval: 2\n---\nShip.\n")

	require.NoError(t, f.sup.Run(context.Background()))

	require.Len(t, f.runner.specs, 2)
	assert.Equal(t, "claude", f.runner.specs[0].Assistant)
	assert.Equal(t, "claude", f.runner.specs[1].Assistant)
}

func TestSupervisor_MissingRoleDocsIsConfigError(t *testing.T) {
	f := newSupervisorFixture(t, 1)
	require.NoError(t, os.RemoveAll(f.settings.RolesDir()))

	err := f.sup.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)
	assert.Empty(t, f.runner.specs)
	assert.Equal(t, 1, f.store.closed)
}

func TestSupervisor_UnknownTemplateMarkerAborts(t *testing.T) {
	f := newSupervisorFixture(t, 1)
	writeRoleDocs(t, f.settings, "Plan:\n<!-- INJECT:bogus -->\n", supervisorWorkerDoc)

	err := f.sup.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)
	assert.Contains(t, err.Error(), "bogus")
	assert.Empty(t, f.runner.specs)
}

func TestSupervisor_RefusesRoleHeldByLivePID(t *testing.T) {
	f := newSupervisorFixture(t, 1)
	writeForeignStatus(t, f.settings, 4242)
	f.inspector.alive[4242] = true

	err := f.sup.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRoleRunning)
	assert.Empty(t, f.runner.specs)

	// The live supervisor's snapshot must survive the refusal
	snap, _, err := ReadStatus(f.settings, domain.RoleWorker)
	require.NoError(t, err)
	assert.Equal(t, 4242, snap.PID)
}

func TestSupervisor_StaleStatusDoesNotBlockStart(t *testing.T) {
	f := newSupervisorFixture(t, 1)
	writeForeignStatus(t, f.settings, 4242)

	require.NoError(t, f.sup.Run(context.Background()))

	assert.Len(t, f.runner.specs, 1)
	_, err := os.Stat(f.settings.StatusPath(domain.RoleWorker))
	assert.ErrorIs(t, err, os.ErrNotExist, "stale snapshot is replaced, then cleared on exit")
}

func TestSupervisor_CancelledContextRunsNothing(t *testing.T) {
	f := newSupervisorFixture(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, f.sup.Run(ctx))

	assert.Empty(t, f.runner.specs)
	assert.Empty(t, f.store.records)
	assert.Equal(t, 1, f.store.closed)
}

func TestSupervisorWait_ErrorDelayAfterFailure(t *testing.T) {
	s := &Supervisor{
		cfg:        domain.RoleConfig{ErrorDelay: 30 * time.Millisecond},
		lastResult: domain.SessionResult{Outcome: domain.OutcomeCrashed},
	}

	start := time.Now()
	state, err := s.wait(context.Background())

	require.NoError(t, err)
	assert.Equal(t, stateIterating, state)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestSupervisorWait_RestartDelayAfterCleanIteration(t *testing.T) {
	s := &Supervisor{
		cfg:        domain.RoleConfig{ErrorDelay: 5 * time.Second, RestartDelay: 0},
		lastResult: domain.SessionResult{Committed: true, Outcome: domain.OutcomeCompleted},
	}

	start := time.Now()
	state, err := s.wait(context.Background())

	require.NoError(t, err)
	assert.Equal(t, stateIterating, state)
	assert.Less(t, time.Since(start), time.Second, "clean iteration uses the restart delay")
}

func TestSupervisorWait_FalseSuccessWaitsErrorDelay(t *testing.T) {
	s := &Supervisor{
		cfg:        domain.RoleConfig{ErrorDelay: 30 * time.Millisecond, RestartDelay: 0},
		lastResult: domain.SessionResult{Committed: false, Outcome: domain.OutcomeCompleted},
	}

	start := time.Now()
	state, err := s.wait(context.Background())

	require.NoError(t, err)
	assert.Equal(t, stateIterating, state)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestSupervisorWait_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &Supervisor{cfg: domain.RoleConfig{ErrorDelay: time.Hour}}

	state, err := s.wait(ctx)

	require.NoError(t, err)
	assert.Equal(t, stateStopped, state)
}
