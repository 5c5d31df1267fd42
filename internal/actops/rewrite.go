package actops

import (
	"context"
	"fmt"

	"github.com/weaverlang/weaver/internal/backend"
	"github.com/weaverlang/weaver/internal/dispatch"
	"github.com/weaverlang/weaver/internal/protocol"
)

// RewriteResult is the outcome of a RewriteProvider call.
type RewriteResult struct {
	Message       string
	FilesModified int
}

// RewriteProvider drives structural refactorings: symbol renames,
// arbitrary text edits, and named rewrites/refactors executed by a
// refactoring plugin binary. spec.md §1 names "refactoring plugin
// binaries" and "structural parser grammars" as explicit external
// collaborators; RewriteProvider is the collaborator interface a real
// plugin host (weaver-plugin-rope) plugs into at boot.
type RewriteProvider interface {
	RenameSymbol(ctx context.Context, uri string, pos Position, newName string) (RewriteResult, error)
	ApplyEdits(ctx context.Context, uri string, edits []string) (RewriteResult, error)
	ApplyRewrite(ctx context.Context, rewriteID string, args []string) (RewriteResult, error)
	Refactor(ctx context.Context, name string, args []string) (RewriteResult, error)
}

// UnavailableRewriteProvider is the default RewriteProvider: every
// call fails with a BackendUnavailable-style message naming the
// missing collaborator, rather than panicking or silently no-op'ing.
// No concrete refactoring plugin binary appears anywhere in the
// retrieved corpus (see DESIGN.md), so this is the grounded default —
// the operations stay fully wired through the Dispatch Router (C5)
// and produce a well-formed structured error instead of an
// UnknownOperation rejection.
type UnavailableRewriteProvider struct{}

func (UnavailableRewriteProvider) RenameSymbol(context.Context, string, Position, string) (RewriteResult, error) {
	return RewriteResult{}, fmt.Errorf("rename-symbol: no refactoring plugin binary is configured")
}

func (UnavailableRewriteProvider) ApplyEdits(context.Context, string, []string) (RewriteResult, error) {
	return RewriteResult{}, fmt.Errorf("apply-edits: no refactoring plugin binary is configured")
}

func (UnavailableRewriteProvider) ApplyRewrite(context.Context, string, []string) (RewriteResult, error) {
	return RewriteResult{}, fmt.Errorf("apply-rewrite: no refactoring plugin binary is configured")
}

func (UnavailableRewriteProvider) Refactor(context.Context, string, []string) (RewriteResult, error) {
	return RewriteResult{}, fmt.Errorf("refactor: no refactoring plugin binary is configured")
}

func writeRewriteResult(w dispatch.ResponseWriter, result RewriteResult, err error) (int, error) {
	if err != nil {
		if werr := writeJSON(w.Stderr, envelope{Kind: "RewriteUnavailable", Message: err.Error()}); werr != nil {
			return 1, werr
		}
		return 1, nil
	}
	if werr := writeJSON(w.Stdout, envelope{Kind: "Committed", Message: result.Message, FilesModified: result.FilesModified}); werr != nil {
		return 1, werr
	}
	return 0, nil
}

// NewRenameSymbolHandler builds "act rename-symbol", reading --uri,
// --position, and --new-name.
func NewRenameSymbolHandler(provider RewriteProvider) dispatch.Handler {
	return func(ctx context.Context, req protocol.CommandRequest, w dispatch.ResponseWriter, _ *backend.Registry) (int, error) {
		flags := parseFlags(req.Arguments)
		result, err := provider.RenameSymbol(ctx, flags["uri"], splitPosition(flags["position"]), flags["new-name"])
		return writeRewriteResult(w, result, err)
	}
}

// NewApplyEditsHandler builds "act apply-edits". Unlike apply-patch
// (SPEC_FULL.md §D4), spec.md never defines apply-edits' argument
// shape beyond its name in the operation vocabulary table (§4.5); it
// is dispatched to the same RewriteProvider collaborator rather than
// routed through the Patch Engine's SEARCH/REPLACE state machine.
func NewApplyEditsHandler(provider RewriteProvider) dispatch.Handler {
	return func(ctx context.Context, req protocol.CommandRequest, w dispatch.ResponseWriter, _ *backend.Registry) (int, error) {
		flags := parseFlags(req.Arguments)
		result, err := provider.ApplyEdits(ctx, flags["uri"], req.Arguments)
		return writeRewriteResult(w, result, err)
	}
}

// NewApplyRewriteHandler builds "act apply-rewrite", reading
// --rewrite-id and passing the full argument list to the provider.
func NewApplyRewriteHandler(provider RewriteProvider) dispatch.Handler {
	return func(ctx context.Context, req protocol.CommandRequest, w dispatch.ResponseWriter, _ *backend.Registry) (int, error) {
		flags := parseFlags(req.Arguments)
		result, err := provider.ApplyRewrite(ctx, flags["rewrite-id"], req.Arguments)
		return writeRewriteResult(w, result, err)
	}
}

// NewRefactorHandler builds "act refactor". spec.md §7 names this
// operation explicitly as a machine-consumer envelope target
// alongside apply-patch.
func NewRefactorHandler(provider RewriteProvider) dispatch.Handler {
	return func(ctx context.Context, req protocol.CommandRequest, w dispatch.ResponseWriter, _ *backend.Registry) (int, error) {
		flags := parseFlags(req.Arguments)
		result, err := provider.Refactor(ctx, flags["name"], req.Arguments)
		return writeRewriteResult(w, result, err)
	}
}
