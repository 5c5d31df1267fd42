// Package backend implements the Backend Registry (spec.md §4.6, C6):
// a lazy, thread-safe container for heavy subsystems shared across
// handlers. The only kind this spec names is Semantic — the
// language-server host the Semantic Lock consults.
package backend

import (
	"context"
	"fmt"
	"sync"
)

// Kind identifies a backend subsystem. Semantic is the only kind
// defined by spec.md §4.6; the type exists so a future kind can be
// added without reshaping the registry.
type Kind int

const (
	Semantic Kind = iota
)

// Severity mirrors the LSP DiagnosticSeverity numeric scale so
// Provider implementations can be adapted directly from an LSP client
// without a translation layer.
type Severity int

const (
	SeverityError       Severity = 1
	SeverityWarning     Severity = 2
	SeverityInformation Severity = 3
	SeverityHint        Severity = 4
)

// Diagnostic is one entry returned by a Provider's diagnostics fetch,
// using zero-based LSP positions; the Semantic Lock converts to the
// one-based VerificationFailure positions at its boundary.
type Diagnostic struct {
	Line      int
	Character int
	Severity  Severity
	Message   string
	Code      string
}

// Provider is the language-server host interface the Semantic Lock
// drives per spec.md §4.8's per-file protocol.
type Provider interface {
	OpenDocument(ctx context.Context, uri, languageID, content string, version int) error
	ChangeDocument(ctx context.Context, uri, content string, version int) error
	CloseDocument(ctx context.Context, uri string) error
	Diagnostics(ctx context.Context, uri string) ([]Diagnostic, error)
}

// StartFunc boots a Provider for a Kind. Registered once at daemon
// boot (spec.md §4.1 step 7's "bootstrap services" is distinct from
// this lazy start — EnsureStarted is invoked by the first handler that
// needs the backend, not eagerly).
type StartFunc func(ctx context.Context) (Provider, error)

// StartupError is cached and returned to every subsequent
// EnsureStarted call for the same Kind until the daemon restarts,
// per spec.md §4.6 ("terminal for that backend for the lifetime of
// the daemon").
type StartupError struct {
	Kind    Kind
	Message string
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("backend: startup failed for kind %d: %s", e.Kind, e.Message)
}

// Registry is the mutex-guarded container described above.
type Registry struct {
	mu        sync.Mutex
	starters  map[Kind]StartFunc
	providers map[Kind]Provider
	errs      map[Kind]error
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		starters:  make(map[Kind]StartFunc),
		providers: make(map[Kind]Provider),
		errs:      make(map[Kind]error),
	}
}

// Register associates a StartFunc with kind. Must be called before
// the first EnsureStarted(kind): it takes the registry mutex, but a
// registration that lands after EnsureStarted(kind) has already run is
// not picked up, so registration happens during boot before the
// listener starts accepting.
func (r *Registry) Register(kind Kind, start StartFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starters[kind] = start
}

// EnsureStarted idempotently starts kind. The first caller performs
// startup while holding the registry mutex; concurrent callers block
// on the same mutex and observe the identical result once it releases
// — the "wait and observe the same result" contract of spec.md §4.6.
func (r *Registry) EnsureStarted(ctx context.Context, kind Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err, ok := r.errs[kind]; ok {
		return err
	}
	if _, ok := r.providers[kind]; ok {
		return nil
	}

	starter, ok := r.starters[kind]
	if !ok {
		err := fmt.Errorf("backend: no starter registered for kind %d", kind)
		r.errs[kind] = err
		return err
	}

	provider, err := starter(ctx)
	if err != nil {
		wrapped := &StartupError{Kind: kind, Message: err.Error()}
		r.errs[kind] = wrapped
		return wrapped
	}
	r.providers[kind] = provider
	return nil
}

// WithProvider runs f with the started provider for kind. Returns an
// error if the backend has not been started (callers should
// EnsureStarted first) or if it failed to start.
func (r *Registry) WithProvider(kind Kind, f func(Provider) error) error {
	r.mu.Lock()
	provider, ok := r.providers[kind]
	startErr := r.errs[kind]
	r.mu.Unlock()

	if startErr != nil {
		return startErr
	}
	if !ok {
		return fmt.Errorf("backend: kind %d not started", kind)
	}
	return f(provider)
}
