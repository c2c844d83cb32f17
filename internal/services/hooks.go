package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joweeba/dTOOL/internal/logging"
	"github.com/joweeba/dTOOL/internal/ports"
)

// hookMarker identifies hook scripts owned by dtool. Files carrying it
// are safe to overwrite on reinstall.
const hookMarker = "# dtool hook v1"

// HookInstaller writes the git hook scripts that enforce iteration
// tagging and message structure on every change record
type HookInstaller struct {
	git ports.HookTarget
}

// NewHookInstaller creates a HookInstaller for the given repository
func NewHookInstaller(git ports.HookTarget) *HookInstaller {
	return &HookInstaller{git: git}
}

// Install writes the commit-msg and pre-commit hooks. Idempotent: our
// own hooks are overwritten in place, foreign hooks are preserved once
// under a .bak suffix before being replaced.
func (h *HookInstaller) Install(ctx context.Context) error {
	dir, err := h.git.HooksDir(ctx)
	if err != nil {
		return fmt.Errorf("failed to resolve hooks directory: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create hooks directory: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		exe = "dtool"
	}

	hooks := map[string]string{
		"commit-msg": fmt.Sprintf("#!/bin/sh\n%s\nexec \"%s\" commit-msg \"$1\"\n", hookMarker, exe),
		"pre-commit": fmt.Sprintf("#!/bin/sh\n%s\nexec \"%s\" pre-commit\n", hookMarker, exe),
	}
	for name, script := range hooks {
		if err := installHook(filepath.Join(dir, name), script); err != nil {
			return err
		}
	}
	logging.Logger.Debug("Installed git hooks", "dir", dir)
	return nil
}

func installHook(path, script string) error {
	existing, err := os.ReadFile(path)
	switch {
	case err == nil && strings.Contains(string(existing), hookMarker):
		// Ours from a previous install, overwrite in place
	case err == nil:
		backup := path + ".bak"
		if _, statErr := os.Stat(backup); errors.Is(statErr, os.ErrNotExist) {
			if err := os.Rename(path, backup); err != nil {
				return fmt.Errorf("failed to back up existing hook %s: %w", path, err)
			}
			logging.Logger.Info("Preserved existing hook", "hook", path, "backup", backup)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return fmt.Errorf("failed to inspect hook %s: %w", path, err)
	}

	if err := writeFileAtomic(path, []byte(script), 0o755); err != nil {
		return err
	}
	return os.Chmod(path, 0o755)
}
