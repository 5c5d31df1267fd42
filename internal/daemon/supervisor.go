package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/weaverlang/weaver/internal/config"
	"github.com/weaverlang/weaver/internal/health"
	"github.com/weaverlang/weaver/internal/listener"
	"github.com/weaverlang/weaver/internal/paths"
)

// ErrDetached is returned by Run when it has just spawned the
// background daemon process and the caller (the parent) should exit
// immediately with status 0 without performing any further startup.
var ErrDetached = errors.New("daemon: detached to background, parent should exit")

// Bootstrap runs the eager collaborators spec.md §4.1 step 7 calls
// for — services that must exist before the listener starts accepting
// traffic. A nil Bootstrap is a no-op.
type Bootstrap func(ctx context.Context) error

// Supervisor drives the startup/shutdown sequence of spec.md §4.1. It
// is grounded on the teacher's Lifecycle struct, generalised from
// thrum's dual-socket (Unix RPC + WebSocket) startup to Weaver's
// single Socket Listener plus explicit singleton recovery semantics.
type Supervisor struct {
	cfg       *config.Config
	bootstrap Bootstrap
	handle    listener.Handler
	logger    func(format string, args ...any)

	guard    *ProcessGuard
	ln       *listener.Listener
	shutdown chan struct{}
	once     sync.Once

	// OnHealthTransition, when non-nil, is called after every
	// successful health snapshot write. Additive hook for the Event
	// Stream (SPEC_FULL.md §D2); it changes no startup/shutdown
	// semantics.
	OnHealthTransition func(health.Status)
}

// New constructs a Supervisor. handle processes each accepted
// connection; bootstrap may be nil.
func New(cfg *config.Config, bootstrap Bootstrap, handle listener.Handler) *Supervisor {
	return &Supervisor{
		cfg:       cfg,
		bootstrap: bootstrap,
		handle:    handle,
		logger:    func(format string, args ...any) { fmt.Fprintf(os.Stderr, "supervisor: "+format+"\n", args...) },
		shutdown:  make(chan struct{}),
	}
}

func (s *Supervisor) writeHealth(status health.Status) error {
	if err := s.guard.WriteHealth(status); err != nil {
		return err
	}
	if s.OnHealthTransition != nil {
		s.OnHealthTransition(status)
	}
	return nil
}

// Run executes the full startup sequence, blocks until a shutdown
// signal or Shutdown() is called, then runs the shutdown sequence. It
// returns ErrDetached for the Background-mode parent process (see
// detachInPlace), and nil after a clean graceful shutdown.
func (s *Supervisor) Run(ctx context.Context) error {
	rp, err := paths.Derive(s.cfg)
	if err != nil {
		return fmt.Errorf("supervisor: derive runtime paths: %w", err)
	}
	if err := rp.EnsureRuntimeDir(); err != nil {
		return fmt.Errorf("supervisor: %w", err)
	}

	if s.cfg.Mode == config.Background {
		if err := detachInPlace(); err != nil {
			if errors.Is(err, ErrDetached) {
				return ErrDetached
			}
			return fmt.Errorf("supervisor: detach: %w", err)
		}
		if err := os.Chdir(rp.RuntimeDir); err != nil {
			return fmt.Errorf("supervisor: chdir to runtime dir: %w", err)
		}
	}

	guard, err := Acquire(rp)
	if err != nil {
		return err
	}
	s.guard = guard

	if err := guard.WritePID(); err != nil {
		_ = guard.Release()
		return fmt.Errorf("supervisor: %w", err)
	}
	if err := s.writeHealth(health.Starting); err != nil {
		_ = guard.Release()
		return fmt.Errorf("supervisor: %w", err)
	}

	if s.bootstrap != nil {
		if err := s.bootstrap(ctx); err != nil {
			_ = s.writeHealth(health.Stopping)
			_ = guard.Release()
			return fmt.Errorf("supervisor: bootstrap: %w", err)
		}
	}

	ln, err := listener.Bind(s.cfg.Endpoint)
	if err != nil {
		_ = s.writeHealth(health.Stopping)
		_ = guard.Release()
		return fmt.Errorf("supervisor: bind listener: %w", err)
	}

	s.ln = ln
	go s.ln.Serve(s.handle)

	if err := s.writeHealth(health.Ready); err != nil {
		_ = s.ln.Stop()
		_ = guard.Release()
		return fmt.Errorf("supervisor: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	registerShutdownSignals(sigCh)

	select {
	case sig := <-sigCh:
		s.logger("received signal %v, shutting down", sig)
	case <-s.shutdown:
		s.logger("shutdown requested")
	case <-ctx.Done():
		s.logger("context cancelled, shutting down")
	}

	return s.runShutdownSequence()
}

func (s *Supervisor) runShutdownSequence() error {
	if err := s.writeHealth(health.Stopping); err != nil {
		s.logger("write stopping health snapshot: %v", err)
	}
	if err := s.ln.Stop(); err != nil {
		s.logger("stop listener: %v", err)
	}
	return s.guard.Release()
}

// Shutdown requests a graceful shutdown from outside Run's calling
// goroutine (e.g. from an RPC handler implementing a "stop" command).
// Safe to call more than once.
func (s *Supervisor) Shutdown() {
	s.once.Do(func() { close(s.shutdown) })
}
