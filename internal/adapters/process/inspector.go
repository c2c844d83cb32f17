package process

import (
	"errors"
	"os"
	"syscall"

	"github.com/joweeba/dTOOL/internal/ports"
)

// OSProcessInspector checks supervisor liveness through the OS
type OSProcessInspector struct{}

// Compile-time interface verification
var _ ports.ProcessInspector = (*OSProcessInspector)(nil)

// NewOSProcessInspector returns an inspector backed by kill(2) probing
func NewOSProcessInspector() *OSProcessInspector {
	return &OSProcessInspector{}
}

// Alive reports whether a process with the given pid still exists.
// Signal 0 probes without delivering; EPERM still means the process is
// there, just not ours.
func (i *OSProcessInspector) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
