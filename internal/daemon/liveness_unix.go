//go:build unix

package daemon

import (
	"errors"
	"fmt"
	"syscall"
)

// probeLiveness implements the kill(pid, 0) mapping from spec.md §4.1:
// success or EPERM means the process exists, ESRCH/ECHILD means it
// does not, anything else is an unknown condition that propagates.
func probeLiveness(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	err := syscall.Kill(pid, 0)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, syscall.ESRCH), errors.Is(err, syscall.ECHILD):
		return false, nil
	case errors.Is(err, syscall.EPERM):
		return true, nil
	default:
		return false, fmt.Errorf("daemon: liveness probe pid %d: %w", pid, err)
	}
}
