package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const defaultMaxLogFiles = 1000

// Logger is shared process-wide; it discards everything until Initialize
// installs a real handler
var Logger *slog.Logger

func init() {
	// Safe default so packages can log before Initialize runs
	Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// Initialize sets up the logger based on the debug flag and configuration.
// Returns the log file path so callers can share it with child processes.
func Initialize(debug bool, debugFile string, maxLogFiles int) (string, error) {
	debug, debugFile, maxLogFiles = withEnvOverrides(debug, debugFile, maxLogFiles)

	if !debug && debugFile == "" {
		Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
		return "", nil
	}

	path, err := resolveLogFile(debugFile, maxLogFiles)
	if err != nil {
		return "", err
	}

	out, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create log file: %w", err)
	}
	Logger = slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Announce the log location only when debug was enabled on this
	// invocation rather than inherited, so hook invocations stay quiet
	if os.Getenv("DTOOL_DEBUG") == "" {
		Logger.Info("Debug logging initialized", "log_file", path)
		fmt.Printf("Debug mode enabled. Logs: %s\n", path)
	}
	return path, nil
}

// withEnvOverrides folds inherited debug settings into the flag values.
// Flags win; the max-files env var applies only while the flag still holds
// its default.
func withEnvOverrides(debug bool, debugFile string, maxLogFiles int) (bool, string, int) {
	if os.Getenv("DTOOL_DEBUG") == "1" {
		debug = true
	}
	if debugFile == "" {
		debugFile = os.Getenv("DTOOL_DEBUG_FILE")
	}
	if v := os.Getenv("DTOOL_MAX_LOG_FILES"); v != "" && maxLogFiles == defaultMaxLogFiles {
		if parsed, err := strconv.Atoi(v); err == nil {
			maxLogFiles = parsed
		}
	}
	return debug, debugFile, maxLogFiles
}

// resolveLogFile picks the file to log into: a custom path verbatim (no
// rotation, the caller owns cleanup) or a uuid-named file in the managed
// per-OS log directory with old logs pruned first.
func resolveLogFile(debugFile string, maxLogFiles int) (string, error) {
	if debugFile != "" {
		if err := os.MkdirAll(filepath.Dir(debugFile), 0755); err != nil {
			return "", fmt.Errorf("failed to create log directory: %w", err)
		}
		return debugFile, nil
	}

	dir, err := logDir()
	if err != nil {
		return "", fmt.Errorf("failed to get log directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create log directory: %w", err)
	}
	if maxLogFiles > 0 {
		if err := pruneOldLogs(dir, maxLogFiles); err != nil {
			// Pruning failure never blocks logging itself
			fmt.Fprintf(os.Stderr, "Warning: could not prune old logs: %v\n", err)
		}
	}
	return filepath.Join(dir, uuid.New().String()+".log"), nil
}

// pruneOldLogs deletes the oldest .log files so that after one more file
// is created at most max remain
func pruneOldLogs(dir string, max int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to read log directory: %w", err)
	}

	modTimes := make(map[string]time.Time)
	var logs []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".log" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		modTimes[path] = info.ModTime()
		logs = append(logs, path)
	}

	excess := len(logs) - max + 1
	if excess <= 0 {
		return nil
	}
	sort.Slice(logs, func(i, j int) bool {
		return modTimes[logs[i]].Before(modTimes[logs[j]])
	})
	for _, path := range logs[:excess] {
		if err := os.Remove(path); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to delete old log file %s: %v\n", path, err)
		}
	}
	return nil
}

// logDir returns the OS-specific managed log directory
func logDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Logs", "dtool"), nil
	case "linux":
		state := os.Getenv("XDG_STATE_HOME")
		if state == "" {
			state = filepath.Join(home, ".local", "state")
		}
		return filepath.Join(state, "dtool"), nil
	case "windows":
		appData := os.Getenv("LOCALAPPDATA")
		if appData == "" {
			appData = filepath.Join(home, "AppData", "Local")
		}
		return filepath.Join(appData, "dtool", "logs"), nil
	default:
		return filepath.Join(home, ".dtool", "logs"), nil
	}
}
