package roledoc

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joweeba/dTOOL/internal/domain"
	"github.com/joweeba/dTOOL/internal/logging"
)

// Load reads the shared base document and the role-specific document from
// dir, merges their options onto the role's built-in defaults (shared
// first, role-specific last) and concatenates the bodies into the prompt
// template. Loaded once per process; the result is immutable thereafter.
func Load(dir string, role domain.Role) (domain.RoleConfig, string, error) {
	sharedOpts, sharedBody, err := loadFile(filepath.Join(dir, "shared.md"))
	if err != nil {
		return domain.RoleConfig{}, "", err
	}
	roleOpts, roleBody, err := loadFile(filepath.Join(dir, string(role)+".md"))
	if err != nil {
		return domain.RoleConfig{}, "", err
	}

	merged := sharedOpts.merge(roleOpts)
	cfg := apply(domain.DefaultConfig(role), merged)

	// A rotation type configured without phases falls back to the
	// built-in cycle for that type before validation rejects it.
	if cfg.RotationType != "" && len(cfg.RotationPhases) == 0 {
		cfg.RotationPhases = domain.DefaultRotationPhases(cfg.RotationType)
	}
	if err := cfg.Validate(); err != nil {
		return domain.RoleConfig{}, "", err
	}

	template := joinBodies(sharedBody, roleBody)
	logging.Logger.Debug("Loaded role configuration",
		"role", role,
		"restart_delay", cfg.RestartDelay,
		"error_delay", cfg.ErrorDelay,
		"iteration_timeout", cfg.IterationTimeout,
		"rotation_interval", cfg.RotationInterval,
		"rotation_type", cfg.RotationType,
		"template_bytes", len(template))
	return cfg, template, nil
}

func loadFile(path string) (Options, string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Options{}, "", fmt.Errorf("role document %s: %v: %w", filepath.Base(path), err, domain.ErrConfig)
	}
	opts, body, err := ParseDocument(content)
	if err != nil {
		return Options{}, "", fmt.Errorf("role document %s: %v: %w", filepath.Base(path), err, domain.ErrConfig)
	}
	return opts, body, nil
}

func apply(cfg domain.RoleConfig, opts Options) domain.RoleConfig {
	if opts.AuthorName != nil {
		cfg.AuthorName = *opts.AuthorName
	}
	if opts.ErrorDelay != nil {
		cfg.ErrorDelay = time.Duration(*opts.ErrorDelay) * time.Second
	}
	if opts.IterationTimeout != nil {
		cfg.IterationTimeout = time.Duration(*opts.IterationTimeout) * time.Second
	}
	if opts.RestartDelay != nil {
		cfg.RestartDelay = time.Duration(*opts.RestartDelay) * time.Second
	}
	if opts.RotationInterval != nil {
		cfg.RotationInterval = *opts.RotationInterval
	}
	if opts.RotationType != nil {
		cfg.RotationType = *opts.RotationType
		// An explicit rotation type replaces the default phase list
		// unless the documents also set one.
		if opts.RotationPhases == nil {
			cfg.RotationPhases = nil
		}
	}
	if opts.RotationPhases != nil {
		cfg.RotationPhases = opts.RotationPhases
	}
	return cfg
}

func joinBodies(shared, role string) string {
	shared = strings.TrimRight(shared, "\n")
	role = strings.TrimLeft(role, "\n")
	switch {
	case shared == "":
		return role
	case role == "":
		return shared + "\n"
	}
	return shared + "\n\n" + role
}
