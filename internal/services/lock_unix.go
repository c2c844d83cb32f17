//go:build unix

package services

import (
	"os"

	"golang.org/x/sys/unix"
)

// lockFile takes an exclusive flock on the open file
func lockFile(file *os.File) error {
	return unix.Flock(int(file.Fd()), unix.LOCK_EX)
}

// unlockFile drops the flock held on the open file
func unlockFile(file *os.File) error {
	return unix.Flock(int(file.Fd()), unix.LOCK_UN)
}
