package domain

import "errors"

var (
	ErrConfig      = errors.New("invalid configuration")
	ErrNoHint      = errors.New("no hint pending")
	ErrRoleRunning = errors.New("supervisor already running for role")
)
