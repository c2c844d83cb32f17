package domain

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies one of the fixed operating modes of the supervisor
type Role string

const (
	RoleWorker     Role = "worker"
	RoleManager    Role = "manager"
	RoleResearcher Role = "researcher"
	RoleProver     Role = "prover"
)

// Roles returns all known roles in a stable order
func Roles() []Role {
	return []Role{RoleWorker, RoleManager, RoleResearcher, RoleProver}
}

// ParseRole validates a role name (case-insensitive)
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Roles() {
		if r == known {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q: %w", s, ErrConfig)
}

// Tag returns the commit prefix tag for the role, e.g. "[W]" for worker
func (r Role) Tag() string {
	switch r {
	case RoleWorker:
		return "[W]"
	case RoleManager:
		return "[M]"
	case RoleResearcher:
		return "[R]"
	case RoleProver:
		return "[P]"
	}
	return "[?]"
}

// Author returns the default author name for the role
func (r Role) Author() string {
	return strings.ToUpper(string(r))
}

// RoleConfig holds the resolved per-role options that drive the loop
type RoleConfig struct {
	AuthorName       string
	ErrorDelay       time.Duration
	IterationTimeout time.Duration
	RestartDelay     time.Duration
	Role             Role
	RotationInterval int
	RotationPhases   []string
	RotationType     string
}

// DefaultConfig returns the built-in configuration for a role. Role
// documents override these field by field.
func DefaultConfig(role Role) RoleConfig {
	cfg := RoleConfig{
		AuthorName:       role.Author(),
		ErrorDelay:       60 * time.Second,
		IterationTimeout: 60 * time.Minute,
		Role:             role,
	}
	switch role {
	case RoleWorker:
		cfg.RestartDelay = 0
		cfg.RotationInterval = 9
	case RoleManager:
		cfg.RestartDelay = 900 * time.Second
		cfg.RotationType = "audit"
		cfg.RotationPhases = DefaultRotationPhases("audit")
	case RoleResearcher:
		cfg.RestartDelay = 600 * time.Second
		cfg.RotationType = "research"
		cfg.RotationPhases = DefaultRotationPhases("research")
	case RoleProver:
		cfg.RestartDelay = 900 * time.Second
	}
	return cfg
}

// DefaultRotationPhases returns the built-in phase cycle for a rotation type
func DefaultRotationPhases(rotationType string) []string {
	switch rotationType {
	case "audit":
		return []string{"security", "performance", "correctness", "maintainability", "documentation", "testing"}
	case "research":
		return []string{"architecture", "dependencies", "tooling", "process"}
	}
	return nil
}

// Validate checks the invariants every loaded configuration must satisfy
func (c RoleConfig) Validate() error {
	if c.RestartDelay < 0 {
		return fmt.Errorf("restart_delay must be non-negative: %w", ErrConfig)
	}
	if c.ErrorDelay < 0 {
		return fmt.Errorf("error_delay must be non-negative: %w", ErrConfig)
	}
	if c.IterationTimeout <= 0 {
		return fmt.Errorf("iteration_timeout must be greater than zero: %w", ErrConfig)
	}
	if c.RotationInterval < 0 {
		return fmt.Errorf("assistant_rotation_interval must be non-negative: %w", ErrConfig)
	}
	if c.RotationType != "" && len(c.RotationPhases) == 0 {
		return fmt.Errorf("rotation_type %q set without rotation_phases: %w", c.RotationType, ErrConfig)
	}
	return nil
}
