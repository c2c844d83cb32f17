package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/services"
)

// HintCmd leaves an instruction for a role's next iteration
type HintCmd struct {
	Role string   `arg:"" help:"Role to address (worker, manager, researcher, prover)"`
	Text []string `arg:"" help:"Instruction text"`
}

// Run posts the hint into the role's mailbox slot
func (h *HintCmd) Run(cli *CLI) error {
	role, err := domain.ParseRole(h.Role)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(strings.Join(h.Text, " "))
	if text == "" {
		return errors.New("hint text is required")
	}

	mailbox := services.NewMailbox(cli.Container.Settings, role)
	if pending, err := mailbox.Peek(); err == nil {
		fmt.Printf("Warning: replacing unconsumed hint from %s: %q\n",
			pending.ReceivedAt.Format(domain.CrashTimeLayout), pending.Text)
	}
	if err := mailbox.Post(text); err != nil {
		return err
	}
	fmt.Printf("Hint for %s queued; it will be picked up at the start of the next iteration.\n", role)
	return nil
}
