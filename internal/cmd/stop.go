package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joweeba/dTOOL/internal/domain"
)

// StopCmd creates (or clears) stop sentinel files. A running supervisor
// checks for its sentinel before every iteration and exits cleanly.
type StopCmd struct {
	Role  string `arg:"" optional:"" help:"Role to stop"`
	All   bool   `help:"Stop every role"`
	Clear bool   `help:"Remove stop sentinels instead of creating them"`
}

// Run creates or removes the requested sentinel files
func (s *StopCmd) Run(cli *CLI) error {
	settings := cli.Container.Settings

	var paths []string
	switch {
	case s.All:
		paths = append(paths, settings.StopAllPath())
		if s.Clear {
			for _, role := range domain.Roles() {
				paths = append(paths, settings.StopPath(role))
			}
		}
	case s.Role != "":
		role, err := domain.ParseRole(s.Role)
		if err != nil {
			return err
		}
		paths = append(paths, settings.StopPath(role))
	default:
		return errors.New("specify a role or --all")
	}

	for _, path := range paths {
		if s.Clear {
			if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("failed to remove %s: %w", path, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("failed to create stop directory: %w", err)
		}
		if err := os.WriteFile(path, nil, 0o644); err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
	}

	if s.Clear {
		fmt.Println("Stop sentinels cleared.")
	} else {
		fmt.Println("Stop requested; supervisors exit after their current iteration.")
	}
	return nil
}
