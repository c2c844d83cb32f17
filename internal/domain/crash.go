package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// CrashTimeLayout is the timestamp format used in crash log lines
const CrashTimeLayout = "2006-01-02 15:04:05"

// CrashPattern classifies a crash record for health reporting
type CrashPattern string

const (
	PatternExitError  CrashPattern = "exit_error"
	PatternSignalKill CrashPattern = "signal_kill"
	PatternTimeout    CrashPattern = "timeout"
	PatternUnknown    CrashPattern = "unknown"
)

// CrashRecord is one line of the role-scoped crash log
type CrashRecord struct {
	Iteration int
	Message   string
	Time      time.Time
}

// Line renders the record in the crash log format:
// [2006-01-02 15:04:05] Iteration N: message
func (r CrashRecord) Line() string {
	return fmt.Sprintf("[%s] Iteration %d: %s", r.Time.Format(CrashTimeLayout), r.Iteration, r.Message)
}

// ParseCrashLine parses a crash log line. Malformed lines return ok=false
// and are skipped by readers rather than failing the whole log.
func ParseCrashLine(line string) (CrashRecord, bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "[") {
		return CrashRecord{}, false
	}
	end := strings.Index(line, "]")
	if end < 0 {
		return CrashRecord{}, false
	}
	ts, err := time.ParseInLocation(CrashTimeLayout, line[1:end], time.Local)
	if err != nil {
		return CrashRecord{}, false
	}
	rest := strings.TrimSpace(line[end+1:])
	if !strings.HasPrefix(rest, "Iteration ") {
		return CrashRecord{}, false
	}
	rest = strings.TrimPrefix(rest, "Iteration ")
	colon := strings.Index(rest, ":")
	if colon < 0 {
		return CrashRecord{}, false
	}
	iter, err := strconv.Atoi(strings.TrimSpace(rest[:colon]))
	if err != nil {
		return CrashRecord{}, false
	}
	return CrashRecord{
		Iteration: iter,
		Message:   strings.TrimSpace(rest[colon+1:]),
		Time:      ts,
	}, true
}

// Pattern classifies the crash message for health reporting
func (r CrashRecord) Pattern() CrashPattern {
	msg := strings.ToLower(r.Message)
	switch {
	case strings.Contains(msg, "killed by signal"):
		return PatternSignalKill
	case strings.Contains(msg, "timed out"):
		return PatternTimeout
	case strings.Contains(msg, "exited with code"):
		return PatternExitError
	}
	return PatternUnknown
}

// HealthStatus summarizes a role's recent failure rate
type HealthStatus string

const (
	HealthCritical HealthStatus = "critical"
	HealthOK       HealthStatus = "healthy"
	HealthWarning  HealthStatus = "warning"
)

// HealthThresholds for failure rate classification
const (
	WarningFailureRate  = 0.25
	CriticalFailureRate = 0.50
)

// HealthReport is the result of analyzing a role's crash history
type HealthReport struct {
	Crashes     int                  `json:"crashes"`
	FailureRate float64              `json:"failure_rate"`
	Iterations  int                  `json:"iterations"`
	Patterns    map[CrashPattern]int `json:"patterns"`
	Recent      []CrashRecord        `json:"-"`
	RecentLines []string             `json:"recent,omitempty"`
	Role        Role                 `json:"role"`
	Status      HealthStatus         `json:"status"`
	WindowHours float64              `json:"window_hours"`
}

// ClassifyFailureRate maps a failure rate to a health status
func ClassifyFailureRate(rate float64) HealthStatus {
	switch {
	case rate >= CriticalFailureRate:
		return HealthCritical
	case rate >= WarningFailureRate:
		return HealthWarning
	}
	return HealthOK
}
