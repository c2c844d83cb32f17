package services

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joweeba/dTOOL/internal/config"
	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/logging"
)

// Mailbox is the single-slot operator channel for one role. An operator
// posts a hint; the supervisor consumes it at the top of the next
// iteration and acknowledges the consumption. The slot holds at most one
// hint, so a newer post replaces an unconsumed older one.
type Mailbox struct {
	ackPath     string
	historyPath string
	minInterval time.Duration
	slotPath    string
}

// NewMailbox creates the mailbox for one role
func NewMailbox(settings *config.Settings, role domain.Role) *Mailbox {
	return &Mailbox{
		ackPath:     settings.HintAckPath(role),
		historyPath: settings.HintHistoryPath(role),
		minInterval: settings.HintMinInterval,
		slotPath:    settings.HintPath(role),
	}
}

// Post places a hint in the slot for the next iteration to pick up
func (m *Mailbox) Post(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("hint text is empty")
	}
	if _, err := os.Stat(m.slotPath); err == nil {
		logging.Logger.Warn("Replacing unconsumed hint", "path", m.slotPath)
	}
	return writeFileAtomic(m.slotPath, []byte(text+"\n"), 0o644)
}

// Peek returns the pending hint without consuming it. Returns
// domain.ErrNoHint when the slot is empty.
func (m *Mailbox) Peek() (domain.Hint, error) {
	data, err := os.ReadFile(m.slotPath)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Hint{}, domain.ErrNoHint
	}
	if err != nil {
		return domain.Hint{}, fmt.Errorf("failed to read hint: %w", err)
	}
	received := time.Now()
	if info, err := os.Stat(m.slotPath); err == nil {
		received = info.ModTime()
	}
	return domain.Hint{ReceivedAt: received, Text: strings.TrimSpace(string(data))}, nil
}

// Consume takes the pending hint out of the slot, appends it to the
// history log and overwrites the acknowledgment file. Delete happens
// before the bookkeeping so a crash mid-consumption can never deliver
// the same hint twice. Returns domain.ErrNoHint when the slot is empty.
func (m *Mailbox) Consume(iteration int) (domain.Hint, error) {
	data, err := os.ReadFile(m.slotPath)
	if errors.Is(err, os.ErrNotExist) {
		return domain.Hint{}, domain.ErrNoHint
	}
	if err != nil {
		return domain.Hint{}, fmt.Errorf("failed to read hint: %w", err)
	}
	text := strings.TrimSpace(string(data))

	m.warnOnRapidConsumption()

	if err := os.Remove(m.slotPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return domain.Hint{}, fmt.Errorf("failed to clear hint slot: %w", err)
	}

	now := time.Now()
	historyLine := fmt.Sprintf("[%s] %s", now.Format(domain.CrashTimeLayout), strings.ReplaceAll(text, "\n", " "))
	if err := appendLine(m.historyPath, historyLine); err != nil {
		logging.Logger.Warn("Failed to append hint history", "error", err)
	}

	ack := fmt.Sprintf("[%s] iteration %d\n%s\n", now.Format(domain.CrashTimeLayout), iteration, text)
	if err := writeFileAtomic(m.ackPath, []byte(ack), 0o644); err != nil {
		logging.Logger.Warn("Failed to write hint acknowledgment", "error", err)
	}

	logging.Logger.Info("Consumed hint", "iteration", iteration, "chars", len(text))
	return domain.Hint{ReceivedAt: now, Text: text}, nil
}

// warnOnRapidConsumption flags two consumptions closer together than the
// slot's expected cadence. Usually means two supervisors are racing on
// the same role.
func (m *Mailbox) warnOnRapidConsumption() {
	info, err := os.Stat(m.ackPath)
	if err != nil {
		return
	}
	if since := time.Since(info.ModTime()); since < m.minInterval {
		logging.Logger.Warn("Hint consumed unusually soon after the previous one, another supervisor may be running this role",
			"previous", info.ModTime().Format(time.RFC3339),
			"interval", since.Round(time.Second))
	}
}
