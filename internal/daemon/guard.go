// Package daemon implements the Process Supervisor (spec.md §4.1, C2):
// singleton enforcement via ProcessGuard, the startup/shutdown
// sequence, and health reporting. It is grounded on the teacher's
// flock/pidfile/lifecycle idiom, generalised from thrum's
// multi-process-chat singleton to Weaver's exclusive-create lock with
// stale-recovery semantics.
package daemon

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/weaverlang/weaver/internal/health"
	"github.com/weaverlang/weaver/internal/paths"
)

// ProcessGuard owns the runtime artefacts for one daemon instance. At
// most one ProcessGuard exists per RuntimePaths across the host,
// enforced by creating the lock file with O_CREATE|O_EXCL.
type ProcessGuard struct {
	paths *paths.RuntimePaths

	mu       sync.Mutex
	lockFile *os.File
	pid      int // 0 until WritePID succeeds
	released bool
}

// Acquire implements spec.md §4.1 step 3: attempt to create lock_path
// with exclusive-create semantics. On AlreadyExists, it distinguishes
// a racing launch (pid file absent: StartupInProgressError, lock
// untouched) from a stale lock (pid file unreadable, malformed, zero,
// or naming a dead process — removed and retried once) from a
// genuinely live daemon (AlreadyRunningError).
func Acquire(rp *paths.RuntimePaths) (*ProcessGuard, error) {
	if err := rp.EnsureRuntimeDir(); err != nil {
		return nil, err
	}

	g, err := tryAcquire(rp)
	if err == nil {
		return g, nil
	}
	if !os.IsExist(err) {
		return nil, err
	}

	if _, statErr := os.Stat(rp.PidPath); os.IsNotExist(statErr) {
		return nil, &StartupInProgressError{}
	}

	pid, readErr := readPIDFile(rp.PidPath)
	stale := readErr != nil || pid <= 0
	if !stale {
		alive, probeErr := probeLiveness(pid)
		if probeErr != nil {
			return nil, probeErr
		}
		stale = !alive
	}
	if !stale {
		return nil, &AlreadyRunningError{PID: pid}
	}

	if err := os.Remove(rp.PidPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon: remove stale pid file: %w", err)
	}
	if err := os.Remove(rp.LockPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("daemon: remove stale lock file: %w", err)
	}

	g, err = tryAcquire(rp)
	if err != nil {
		if os.IsExist(err) {
			return nil, &StartupInProgressError{}
		}
		return nil, err
	}
	return g, nil
}

func tryAcquire(rp *paths.RuntimePaths) (*ProcessGuard, error) {
	f, err := os.OpenFile(rp.LockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	return &ProcessGuard{paths: rp, lockFile: f}, nil
}

// WritePID writes the current process's pid to pid_path atomically
// and fsyncs, per spec.md §4.1 step 5.
func (g *ProcessGuard) WritePID() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	pid := os.Getpid()
	if err := writePIDFile(g.paths.PidPath, pid); err != nil {
		return err
	}
	g.pid = pid
	return nil
}

// WriteHealth publishes a health snapshot for status. It is an error
// to call before WritePID: original_source's ProcessGuard enforces the
// same pid-before-health invariant so the health file's embedded pid
// is never zero.
func (g *ProcessGuard) WriteHealth(status health.Status) error {
	g.mu.Lock()
	pid := g.pid
	g.mu.Unlock()
	if pid == 0 {
		return fmt.Errorf("daemon: WriteHealth called before WritePID")
	}
	return health.Write(g.paths.HealthPath, health.Snapshot{
		Status:    status,
		PID:       pid,
		Timestamp: time.Now().Unix(),
	})
}

// Release drops the guard: it removes the lock, pid, and health
// files, ignoring NotFound, and closes the held file descriptor. Safe
// to call more than once.
func (g *ProcessGuard) Release() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.released {
		return nil
	}
	g.released = true

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if g.lockFile != nil {
		record(g.lockFile.Close())
		g.lockFile = nil
	}
	if err := os.Remove(g.paths.LockPath); err != nil && !os.IsNotExist(err) {
		record(fmt.Errorf("daemon: remove lock file: %w", err))
	}
	record(removePIDFile(g.paths.PidPath))
	record(health.Remove(g.paths.HealthPath))
	return firstErr
}

// PID returns the pid written by WritePID, or 0 if it has not been
// called yet.
func (g *ProcessGuard) PID() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pid
}
