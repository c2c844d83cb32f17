package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/services"
)

// StatusCmd prints the live status of every role
type StatusCmd struct{}

// Run prints one line per role. A snapshot whose process is gone is
// flagged: it means the supervisor died without cleaning up.
func (s *StatusCmd) Run(cli *CLI) error {
	for _, role := range domain.Roles() {
		snap, mtime, err := services.ReadStatus(cli.Container.Settings, role)
		switch {
		case errors.Is(err, os.ErrNotExist):
			fmt.Printf("%-11s not running\n", role)
		case err != nil:
			fmt.Printf("%-11s unreadable status: %v\n", role, err)
		case !cli.Container.Inspector.Alive(snap.PID):
			fmt.Printf("%-11s STALE: pid %d is gone, snapshot from %s - supervisor likely crashed\n",
				role, snap.PID, mtime.Format(domain.CrashTimeLayout))
		default:
			fmt.Printf("%-11s %s iteration %d", role, snap.Phase, snap.Iteration)
			if snap.LastOutcome != "" {
				fmt.Printf(", last outcome %s", snap.LastOutcome)
				if snap.LastOutcome == domain.OutcomeCompleted && !snap.Committed {
					fmt.Printf(" (no commit)")
				}
			}
			fmt.Printf(", updated %s ago\n", time.Since(snap.UpdatedAt).Round(time.Second))
		}
	}
	return nil
}
