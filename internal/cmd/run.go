package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/logging"
	"github.com/joweeba/dTOOL/internal/ports"
	"github.com/joweeba/dTOOL/internal/services"
)

// RunCmd runs the supervisor loop for one role
type RunCmd struct {
	Role       string `arg:"" default:"worker" help:"Role to supervise (worker, manager, researcher, prover)"`
	Home       string `help:"Override the state directory"`
	Iterations int    `default:"0" help:"Stop after N iterations (0 = run until stopped)"`
	Repo       string `help:"Working repository path (default: current directory)"`
}

// Run executes the supervisor loop until stopped
func (r *RunCmd) Run(cli *CLI) error {
	role, err := domain.ParseRole(r.Role)
	if err != nil {
		return err
	}

	c := cli.Container
	var store ports.IterationStore
	if s, err := c.OpenStore(); err != nil {
		logging.Logger.Warn("History store unavailable, continuing without it", "error", err)
	} else {
		store = s
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	supervisor := services.NewSupervisor(role, r.Iterations, services.SupervisorDeps{
		Builder:   services.NewContextBuilder(c.Git, c.Issues, c.Settings),
		Git:       c.Git,
		Hooks:     services.NewHookInstaller(c.Git),
		Identity:  services.NewIdentityService(),
		Inspector: c.Inspector,
		Mailbox:   services.NewMailbox(c.Settings, role),
		Output:    os.Stdout,
		Recorder:  services.NewRecorder(c.Settings, role, store),
		Runner:    c.Runner,
		Settings:  c.Settings,
		Store:     store,
	})
	return supervisor.Run(ctx)
}
