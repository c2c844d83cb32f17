package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/logging"
	"github.com/joweeba/dTOOL/internal/ports"
)

const (
	storeRetries  = 3
	slowQueryWarn = 200 * time.Millisecond
)

// SQLiteRepository implements ports.IterationStore using GORM
type SQLiteRepository struct {
	db *gorm.DB
}

// Verify interface compliance at compile time
var _ ports.IterationStore = (*SQLiteRepository)(nil)

// NewSQLiteRepository opens (creating if needed) the iteration history
// database at dbPath
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	dbPath, err := expandHome(dbPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		PrepareStmt: false,
		NowFunc:     func() time.Time { return time.Now().UTC() },
		Logger:      storeLogger(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL so readers (status, health) never block the writing supervisor
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA synchronous=NORMAL")

	if err := db.AutoMigrate(&IterationModel{}); err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return nil, fmt.Errorf("failed to migrate iteration schema: %w", err)
		}
	}

	// Small pool; there is exactly one writer per role
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(4)
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetConnMaxLifetime(0)

	return &SQLiteRepository{db: db}, nil
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, path[1:]), nil
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record implements IterationStore.Record
func (r *SQLiteRepository) Record(ctx context.Context, rec domain.IterationRecord) error {
	model := IterationModel{
		Assistant:  rec.Assistant,
		Committed:  rec.Committed,
		Detail:     rec.Detail,
		FinishedAt: rec.FinishedAt.UTC(),
		Iteration:  rec.Iteration,
		Outcome:    string(rec.Outcome),
		Role:       string(rec.Role),
		StartedAt:  rec.StartedAt.UTC(),
	}

	return busyRetry(storeRetries, func() error {
		if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
			return fmt.Errorf("failed to record iteration: %w", err)
		}
		return nil
	})
}

// CountSince implements IterationStore.CountSince. Failed counts every
// outcome except a committed completion, matching what the crash log records.
func (r *SQLiteRepository) CountSince(ctx context.Context, role domain.Role, since time.Time) (int, int, error) {
	var total, failed int64

	err := busyRetry(storeRetries, func() error {
		return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			base := tx.Model(&IterationModel{}).
				Where("role = ? AND finished_at >= ?", string(role), since.UTC())
			if err := base.Count(&total).Error; err != nil {
				return err
			}

			return tx.Model(&IterationModel{}).
				Where("role = ? AND finished_at >= ?", string(role), since.UTC()).
				Where("outcome <> ? OR committed = ?", string(domain.OutcomeCompleted), false).
				Count(&failed).Error
		})
	})

	if err != nil {
		return 0, 0, fmt.Errorf("failed to count iterations: %w", err)
	}
	return int(total), int(failed), nil
}

// busyRetry retries fn while SQLite reports the database busy or locked,
// backing off linearly. Any other error ends the attempts immediately.
func busyRetry(attempts int, fn func() error) error {
	for i := 0; i < attempts; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !retryableSQLite(err) {
			return err
		}
		time.Sleep(time.Duration(50*(i+1)) * time.Millisecond)
	}
	return fmt.Errorf("operation failed after %d retries", attempts)
}

func retryableSQLite(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

// storeLogger returns the GORM logger bridged onto the process logger.
// Silent unless debug logging is on; queries slower than slowQueryWarn
// are logged at warn level either way once enabled.
func storeLogger() logger.Interface {
	if os.Getenv("DTOOL_DEBUG") == "1" {
		return slogGorm{level: logger.Info}
	}
	return slogGorm{level: logger.Silent}
}

// slogGorm adapts gorm's logger interface to slog
type slogGorm struct {
	level logger.LogLevel
}

func (l slogGorm) LogMode(level logger.LogLevel) logger.Interface {
	return slogGorm{level: level}
}

func (l slogGorm) Info(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		logging.Logger.Info(fmt.Sprintf(msg, data...))
	}
}

func (l slogGorm) Warn(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		logging.Logger.Warn(fmt.Sprintf(msg, data...))
	}
}

func (l slogGorm) Error(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		logging.Logger.Error(fmt.Sprintf(msg, data...))
	}
}

func (l slogGorm) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level < logger.Info {
		return
	}
	elapsed := time.Since(begin)
	sql, rows := fc()
	attrs := []any{"duration", elapsed, "sql", sql, "rows", rows}
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		logging.Logger.Error("gorm query error", append([]any{"error", err}, attrs...)...)
	case elapsed > slowQueryWarn:
		logging.Logger.Warn("slow query", attrs...)
	default:
		logging.Logger.Debug("gorm query", attrs...)
	}
}
