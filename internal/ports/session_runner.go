package ports

import (
	"context"
	"io"
	"time"

	"github.com/joweeba/dTOOL/internal/domain"
)

// LineFormatter transforms one raw assistant output line for relay.
// emit=false drops the line entirely.
type LineFormatter interface {
	FormatLine(line string) (out string, emit bool)
}

// SessionSpec describes one assistant invocation
type SessionSpec struct {
	// Assistant is the executable name (claude, codex)
	Assistant string
	// Env holds extra KEY=VALUE pairs appended to the inherited environment
	Env []string
	// Formatter transforms output lines before relay; nil selects the default
	Formatter LineFormatter
	// Output receives the formatted stream
	Output io.Writer
	// Prompt is written to the assistant's stdin
	Prompt string
	// Timeout bounds the session wall clock. Role validation keeps it
	// positive; a non-positive value, reachable only by driving Run
	// directly, skips the deadline.
	Timeout time.Duration
}

// SessionRunner executes one bounded assistant session
type SessionRunner interface {
	// Available reports whether the assistant executable is on PATH
	Available(assistant string) bool
	// Run blocks until the session finishes or is terminated. The returned
	// error is reserved for launch failures; runtime failures are encoded
	// in the result outcome.
	Run(ctx context.Context, spec SessionSpec) (domain.SessionResult, error)
}
