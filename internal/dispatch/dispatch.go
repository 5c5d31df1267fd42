// Package dispatch implements the Dispatch Router (spec.md §4.5, C5):
// pure routing from a parsed CommandRequest to a domain handler, with
// a uniform error surface. It owns no I/O beyond what handlers
// request.
package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/weaverlang/weaver/internal/backend"
	"github.com/weaverlang/weaver/internal/protocol"
)

// vocabulary is the fixed operation set per domain, spec.md §4.5.
var vocabulary = map[string]map[string]bool{
	"observe": {
		"get-definition": true, "find-references": true, "grep": true,
		"diagnostics": true, "call-hierarchy": true,
	},
	"act": {
		"rename-symbol": true, "apply-edits": true, "apply-patch": true,
		"apply-rewrite": true, "refactor": true,
	},
	"verify": {
		"diagnostics": true, "syntax": true,
	},
}

// UnknownDomainError is returned for a domain outside {observe, act,
// verify}.
type UnknownDomainError struct{ Domain string }

func (e *UnknownDomainError) Error() string {
	return fmt.Sprintf("unknown domain %q", e.Domain)
}

// UnknownOperationError is returned for an operation not in the known
// domain's fixed vocabulary.
type UnknownOperationError struct{ Domain, Operation string }

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q in domain %q", e.Operation, e.Domain)
}

// ResponseWriter is the narrow interface handlers use to stream
// output; Router never constructs one directly.
type ResponseWriter interface {
	Stdout(data string) error
	Stderr(data string) error
}

// Handler implements one domain/operation. It returns the status for
// the connection's exit frame, or an error that the caller renders as
// a Stream-stderr frame followed by a non-zero Exit.
type Handler func(ctx context.Context, req protocol.CommandRequest, w ResponseWriter, registry *backend.Registry) (status int, err error)

// Router holds the registered handlers for the fixed operation
// vocabulary.
type Router struct {
	handlers map[string]map[string]Handler
}

// NewRouter constructs an empty Router.
func NewRouter() *Router {
	return &Router{handlers: make(map[string]map[string]Handler)}
}

// Register wires handler for domain/operation. domain and operation
// are matched case-insensitively at dispatch time; Register itself
// expects lower-case canonical names ("observe", "get-definition").
func (r *Router) Register(domain, operation string, handler Handler) {
	if r.handlers[domain] == nil {
		r.handlers[domain] = make(map[string]Handler)
	}
	r.handlers[domain][operation] = handler
}

// Dispatch parses req's domain/operation, validates them against the
// fixed vocabulary, and invokes the registered handler. An unknown
// domain or operation is a dispatch-level rejection rendered to
// stderr with Exit=1 by the caller, per spec.md §4.5.
func (r *Router) Dispatch(ctx context.Context, req protocol.CommandRequest, w ResponseWriter, registry *backend.Registry) (int, error) {
	if err := req.Validate(); err != nil {
		return 1, err
	}

	domain := strings.ToLower(strings.TrimSpace(req.Command.Domain))
	ops, ok := vocabulary[domain]
	if !ok {
		return 1, &UnknownDomainError{Domain: req.Command.Domain}
	}

	operation := strings.ToLower(strings.TrimSpace(req.Command.Operation))
	if !ops[operation] {
		return 1, &UnknownOperationError{Domain: domain, Operation: req.Command.Operation}
	}

	handler, ok := r.handlers[domain][operation]
	if !ok {
		return 1, fmt.Errorf("dispatch: operation %q in domain %q is not wired to a handler", operation, domain)
	}

	return handler(ctx, req, w, registry)
}
