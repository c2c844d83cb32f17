package services

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joweeba/dTOOL/internal/config"
	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/logging"
	"github.com/joweeba/dTOOL/internal/ports"
)

const iterationLogStamp = "20060102-150405"

// Recorder persists everything an iteration leaves behind: the live
// status snapshot, the role crash log, rotated per-iteration output logs
// and the iteration history store.
type Recorder struct {
	role     domain.Role
	settings *config.Settings
	store    ports.IterationStore
}

// NewRecorder creates the recorder for one role. The store may be nil
// when history persistence is unavailable; everything else still works.
func NewRecorder(settings *config.Settings, role domain.Role, store ports.IterationStore) *Recorder {
	return &Recorder{role: role, settings: settings, store: store}
}

// WriteStatus overwrites the role's live status snapshot. Lock plus
// temp-and-rename so `dtool status` never reads a half-written file.
func (r *Recorder) WriteStatus(snap domain.StatusSnapshot) error {
	snap.Role = r.role
	snap.PID = os.Getpid()
	snap.UpdatedAt = time.Now()

	path := r.settings.StatusPath(r.role)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create status directory: %w", err)
	}

	lock, err := os.OpenFile(path+".lock", os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open status lock: %w", err)
	}
	defer lock.Close()
	if err := lockFile(lock); err != nil {
		return fmt.Errorf("failed to acquire status lock: %w", err)
	}
	defer unlockFile(lock)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	return writeFileAtomic(path, append(data, '\n'), 0o644)
}

// ClearStatus removes the status snapshot on graceful shutdown. A
// snapshot that survives its process is evidence of a crash.
func (r *Recorder) ClearStatus() {
	for _, path := range []string{r.settings.StatusPath(r.role), r.settings.StatusPath(r.role) + ".lock"} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.Logger.Warn("Failed to remove status file", "path", path, "error", err)
		}
	}
}

// ReadStatus loads a role's status snapshot along with the file's
// modification time, for staleness checks. Returns os.ErrNotExist when
// the role has no live supervisor.
func ReadStatus(settings *config.Settings, role domain.Role) (domain.StatusSnapshot, time.Time, error) {
	path := settings.StatusPath(role)
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.StatusSnapshot{}, time.Time{}, err
	}
	var snap domain.StatusSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.StatusSnapshot{}, time.Time{}, fmt.Errorf("failed to parse status file %s: %w", path, err)
	}
	mtime := time.Now()
	if info, err := os.Stat(path); err == nil {
		mtime = info.ModTime()
	}
	return snap, mtime, nil
}

// RecordOutcome persists one finished iteration everywhere it belongs:
// a history row, and a crash log line when the outcome was abnormal. A
// completed iteration that produced no new change record is a false
// success and gets a crash line too, without changing its outcome.
func (r *Recorder) RecordOutcome(ctx context.Context, rec domain.IterationRecord) {
	if r.store != nil {
		if err := r.store.Record(ctx, rec); err != nil {
			logging.Logger.Warn("Failed to persist iteration history", "iteration", rec.Iteration, "error", err)
		}
	}

	switch {
	case rec.Outcome != domain.OutcomeCompleted:
		message := rec.Detail
		if message == "" {
			message = string(rec.Outcome)
		}
		r.appendCrash(domain.CrashRecord{Iteration: rec.Iteration, Message: message, Time: rec.FinishedAt})
	case !rec.Committed:
		r.appendCrash(domain.CrashRecord{Iteration: rec.Iteration, Message: "false success: no new commit", Time: rec.FinishedAt})
	}
}

func (r *Recorder) appendCrash(rec domain.CrashRecord) {
	path := r.settings.CrashLogPath(r.role)
	if err := appendLine(path, rec.Line()); err != nil {
		logging.Logger.Warn("Failed to append crash log", "error", err)
		return
	}
	if err := trimCrashLog(path, r.settings.CrashLogMaxLines); err != nil {
		logging.Logger.Warn("Failed to trim crash log", "error", err)
	}
}

// trimCrashLog keeps the newest maxLines lines, dropping from the top
func trimCrashLog(path string, maxLines int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) <= maxLines {
		return nil
	}
	kept := lines[len(lines)-maxLines:]
	return writeFileAtomic(path, []byte(strings.Join(kept, "\n")+"\n"), 0o644)
}

// ReadCrashes returns the role's crash records newest first, optionally
// filtered to those at or after since. Malformed lines are skipped.
func ReadCrashes(settings *config.Settings, role domain.Role, since time.Time) ([]domain.CrashRecord, error) {
	f, err := os.Open(settings.CrashLogPath(role))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open crash log: %w", err)
	}
	defer f.Close()

	var records []domain.CrashRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		rec, ok := domain.ParseCrashLine(scanner.Text())
		if !ok {
			continue
		}
		if !since.IsZero() && rec.Time.Before(since) {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read crash log: %w", err)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Time.After(records[j].Time)
	})
	return records, nil
}

// OpenIterationLog creates the full-output log file for one iteration
// and prunes the oldest logs beyond the retention cap
func (r *Recorder) OpenIterationLog(iteration int, now time.Time) (*os.File, error) {
	dir := r.settings.IterationLogDir(r.role)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create iteration log directory: %w", err)
	}
	if err := pruneIterationLogs(dir, r.settings.IterationLogMax); err != nil {
		logging.Logger.Warn("Failed to prune iteration logs", "error", err)
	}

	name := fmt.Sprintf("iter-%d-%s.log", iteration, now.Format(iterationLogStamp))
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create iteration log: %w", err)
	}
	return f, nil
}

// pruneIterationLogs removes the oldest iteration logs so that after the
// next log is created at most maxFiles remain
func pruneIterationLogs(dir string, maxFiles int) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}

	modTimes := make(map[string]time.Time)
	var logs []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), "iter-") || filepath.Ext(entry.Name()) != ".log" {
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

	excess := len(logs) - maxFiles + 1
	if excess <= 0 {
		return nil
	}
	sort.Slice(logs, func(i, j int) bool {
		return modTimes[logs[i]].Before(modTimes[logs[j]])
	})
	for _, path := range logs[:excess] {
		if err := os.Remove(path); err != nil {
			logging.Logger.Warn("Failed to delete old iteration log", "path", path, "error", err)
		}
	}
	return nil
}
