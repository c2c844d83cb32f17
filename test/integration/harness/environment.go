package harness

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestEnvironment isolates a test behind its own DTOOL_HOME.
type TestEnvironment struct {
	DtoolHome string
	extraEnv  map[string]string
	tb        testing.TB
}

// NewTestEnvironment builds an isolated environment backed by a temp
// DTOOL_HOME that the testing package removes on cleanup.
func NewTestEnvironment(tb testing.TB) *TestEnvironment {
	tb.Helper()

	return &TestEnvironment{
		DtoolHome: tb.TempDir(),
		extraEnv:  make(map[string]string),
		tb:        tb,
	}
}

// Environ returns environment variables configured for test isolation:
// the parent environment with every DTOOL_* variable removed, DTOOL_HOME
// pointed at the temp directory, debug logging disabled, and any SetEnv
// extras applied on top.
func (e *TestEnvironment) Environ() []string {
	overrides := map[string]string{
		"DTOOL_HOME":  e.DtoolHome,
		"DTOOL_DEBUG": "",
	}
	for k, v := range e.extraEnv {
		overrides[k] = v
	}

	env := make([]string, 0, len(os.Environ())+len(overrides))
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "DTOOL_") {
			continue
		}
		if _, replaced := overrides[key]; replaced {
			continue
		}
		env = append(env, kv)
	}
	for k, v := range overrides {
		env = append(env, k+"="+v)
	}
	return env
}

// SetEnv adds one extra environment variable for subsequent commands.
func (e *TestEnvironment) SetEnv(key, value string) {
	if e.extraEnv == nil {
		e.extraEnv = make(map[string]string)
	}
	e.extraEnv[key] = value
}

// SetRepo points DTOOL_REPO at the given working repository.
func (e *TestEnvironment) SetRepo(path string) {
	e.SetEnv("DTOOL_REPO", path)
}

// PrependPath puts dir at the front of PATH so fake assistant
// executables shadow real ones.
func (e *TestEnvironment) PrependPath(dir string) {
	e.SetEnv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

// WriteRoleDocs writes the shared and role-specific prompt documents
// into the environment's roles directory.
func (e *TestEnvironment) WriteRoleDocs(role, shared, roleDoc string) {
	e.tb.Helper()

	dir := filepath.Join(e.DtoolHome, "roles")
	if err := os.MkdirAll(dir, 0755); err != nil {
		e.tb.Fatalf("Failed to create roles directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "shared.md"), []byte(shared), 0644); err != nil {
		e.tb.Fatalf("Failed to write shared role document: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, role+".md"), []byte(roleDoc), 0644); err != nil {
		e.tb.Fatalf("Failed to write %s role document: %v", role, err)
	}
}

// DBPath returns the path to the test iteration history database.
func (e *TestEnvironment) DBPath() string {
	return filepath.Join(e.DtoolHome, "state.db")
}

// StatusPath returns the status snapshot path for a role.
func (e *TestEnvironment) StatusPath(role string) string {
	return filepath.Join(e.DtoolHome, "status", role+".json")
}

// CrashLogPath returns the crash log path for a role.
func (e *TestEnvironment) CrashLogPath(role string) string {
	return filepath.Join(e.DtoolHome, "crash", role+".log")
}

// HintPath returns the pending hint slot path for a role.
func (e *TestEnvironment) HintPath(role string) string {
	return filepath.Join(e.DtoolHome, "hints", role+".hint")
}

// HintAckPath returns the hint acknowledgment path for a role.
func (e *TestEnvironment) HintAckPath(role string) string {
	return filepath.Join(e.DtoolHome, "hints", role+".ack")
}

// StopPath returns the stop sentinel path for a role.
func (e *TestEnvironment) StopPath(role string) string {
	return filepath.Join(e.DtoolHome, "stop", role+".stop")
}

// StopAllPath returns the all-roles stop sentinel path.
func (e *TestEnvironment) StopAllPath() string {
	return filepath.Join(e.DtoolHome, "stop", "all.stop")
}

// IterationLogDir returns the per-iteration output log directory for a role.
func (e *TestEnvironment) IterationLogDir(role string) string {
	return filepath.Join(e.DtoolHome, "logs", role)
}
