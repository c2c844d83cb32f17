package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/joweeba/dTOOL/internal/domain"
)

// Settings holds process-wide configuration resolved from the environment
// (and an optional .env file) with defaults applied last.
type Settings struct {
	CrashLogMaxLines   int
	FeedbackCount      int
	GitLogCount        int
	HintMinInterval    time.Duration
	Home               string
	IssueCapInProgress int
	IssueCapPerTier    int
	IssueCapTopTier    int
	IssueLimit         int
	IssueRandomExtra   int
	IterationLogMax    int
	KillGrace          time.Duration
	PreCommitChecks    []string
	PrimaryAssistant   string
	RepoPath           string
	SecondaryAssistant string
}

// Load resolves settings from the environment. A .env file in the current
// directory is honored when present but never required.
func Load() (*Settings, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}

	s := &Settings{
		CrashLogMaxLines:   envInt("DTOOL_CRASH_LOG_MAX_LINES", 200),
		FeedbackCount:      envInt("DTOOL_FEEDBACK_COUNT", 5),
		GitLogCount:        envInt("DTOOL_GIT_LOG_COUNT", 10),
		HintMinInterval:    envDuration("DTOOL_HINT_MIN_INTERVAL", 30*time.Minute),
		Home:               ExpandPath(envStr("DTOOL_HOME", defaultHome())),
		IssueCapInProgress: envInt("DTOOL_ISSUE_CAP_IN_PROGRESS", 5),
		IssueCapPerTier:    envInt("DTOOL_ISSUE_CAP_PER_TIER", 3),
		IssueCapTopTier:    envInt("DTOOL_ISSUE_CAP_TOP_TIER", 8),
		IssueLimit:         envInt("DTOOL_ISSUE_LIMIT", 100),
		IssueRandomExtra:   envInt("DTOOL_ISSUE_RANDOM_EXTRA", 3),
		IterationLogMax:    envInt("DTOOL_ITERATION_LOG_MAX", 20),
		KillGrace:          envDuration("DTOOL_KILL_GRACE", 5*time.Second),
		PreCommitChecks:    envList("DTOOL_PRECOMMIT_CHECKS"),
		PrimaryAssistant:   envStr("DTOOL_PRIMARY_ASSISTANT", "claude"),
		RepoPath:           ExpandPath(envStr("DTOOL_REPO", cwd)),
		SecondaryAssistant: envStr("DTOOL_SECONDARY_ASSISTANT", "codex"),
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks settings invariants that would otherwise surface as
// confusing runtime failures.
func (s *Settings) Validate() error {
	if s.Home == "" {
		return fmt.Errorf("config: DTOOL_HOME is required")
	}
	if s.PrimaryAssistant == "" {
		return fmt.Errorf("config: DTOOL_PRIMARY_ASSISTANT is required")
	}
	if s.CrashLogMaxLines <= 0 {
		return fmt.Errorf("config: DTOOL_CRASH_LOG_MAX_LINES must be positive")
	}
	if s.IterationLogMax <= 0 {
		return fmt.Errorf("config: DTOOL_ITERATION_LOG_MAX must be positive")
	}
	if s.HintMinInterval < 0 {
		return fmt.Errorf("config: DTOOL_HINT_MIN_INTERVAL must be non-negative")
	}
	return nil
}

func defaultHome() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".dtool"
	}
	return filepath.Join(homeDir, ".dtool")
}

// ExpandPath expands a leading ~ to the user's home directory
func ExpandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, strings.TrimPrefix(path, "~"))
	}
	return path
}

// Role-scoped state file locations. Every supervisor process touches only
// its own role's files; cross-role access is read-only by design.

func (s *Settings) RolesDir() string {
	return filepath.Join(s.Home, "roles")
}

func (s *Settings) StatusPath(role domain.Role) string {
	return filepath.Join(s.Home, "status", string(role)+".json")
}

func (s *Settings) CrashLogPath(role domain.Role) string {
	return filepath.Join(s.Home, "crash", string(role)+".log")
}

func (s *Settings) HintPath(role domain.Role) string {
	return filepath.Join(s.Home, "hints", string(role)+".hint")
}

func (s *Settings) HintHistoryPath(role domain.Role) string {
	return filepath.Join(s.Home, "hints", string(role)+".history.log")
}

func (s *Settings) HintAckPath(role domain.Role) string {
	return filepath.Join(s.Home, "hints", string(role)+".ack")
}

func (s *Settings) StopPath(role domain.Role) string {
	return filepath.Join(s.Home, "stop", string(role)+".stop")
}

func (s *Settings) StopAllPath() string {
	return filepath.Join(s.Home, "stop", "all.stop")
}

func (s *Settings) IterationLogDir(role domain.Role) string {
	return filepath.Join(s.Home, "logs", string(role))
}

func (s *Settings) DBPath() string {
	return filepath.Join(s.Home, "state.db")
}

func envStr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
		// Bare integers are accepted as seconds
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return fallback
}

func envList(key string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
