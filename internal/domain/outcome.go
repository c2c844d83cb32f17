package domain

import "time"

// Outcome is the terminal result of one session runner invocation
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeCrashed     Outcome = "crashed"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeTimedOut    Outcome = "timed_out"
)

// SessionResult describes how one iteration's assistant session ended
type SessionResult struct {
	Assistant string // executable name that ran
	Committed bool   // a new change record appeared during the iteration
	Detail    string // diagnostic text for crash log lines
	Duration  time.Duration
	ExitCode  int
	Outcome   Outcome
}

// Failed reports whether the result should be recorded as a crash
func (r SessionResult) Failed() bool {
	return r.Outcome != OutcomeCompleted
}

// Phase is the supervisor's live status phase
type Phase string

const (
	PhaseRunning Phase = "running"
	PhaseWaiting Phase = "waiting"
)

// StatusSnapshot is the live per-role status file payload. Overwritten
// every iteration; deleted on clean exit. A snapshot surviving its
// process is evidence of a crash.
type StatusSnapshot struct {
	// Committed qualifies LastOutcome: a completed outcome without it is
	// a false success
	Committed   bool      `json:"committed,omitempty"`
	Iteration   int       `json:"iteration"`
	LastOutcome Outcome   `json:"last_outcome,omitempty"`
	PID         int       `json:"pid"`
	Phase       Phase     `json:"phase"`
	Role        Role      `json:"role"`
	StartedAt   time.Time `json:"started_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Hint is one operator instruction consumed from the mailbox
type Hint struct {
	ReceivedAt time.Time
	Text       string
}

// IterationRecord is one persisted iteration outcome
type IterationRecord struct {
	Assistant  string
	Committed  bool
	Detail     string
	FinishedAt time.Time
	Iteration  int
	Outcome    Outcome
	Role       Role
	StartedAt  time.Time
}
