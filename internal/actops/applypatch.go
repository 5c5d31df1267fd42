// Package actops wires the Patch Engine (SPEC_FULL.md §D4) and the
// rest of the "act" vocabulary into concrete dispatch.Handler values
// that drive an edit.Transaction. It is the composition point between
// C5 (Dispatch Router), C9 (Edit Transaction), and the handlers'
// domain-specific input parsing.
package actops

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strings"

	"github.com/weaverlang/weaver/internal/backend"
	"github.com/weaverlang/weaver/internal/corrid"
	"github.com/weaverlang/weaver/internal/dispatch"
	"github.com/weaverlang/weaver/internal/edit"
	"github.com/weaverlang/weaver/internal/eventstream"
	"github.com/weaverlang/weaver/internal/lock"
	"github.com/weaverlang/weaver/internal/patch"
	"github.com/weaverlang/weaver/internal/protocol"
)

// envelope is the structured JSON shape spec.md §7 mandates for
// machine consumers: {"kind": "...", "message"?, "failures"?}.
type envelope struct {
	Kind          string                     `json:"kind"`
	Message       string                     `json:"message,omitempty"`
	FilesModified int                        `json:"files_modified,omitempty"`
	Failures      []lock.VerificationFailure `json:"failures,omitempty"`
}

func writeJSON(write func(string) error, e envelope) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return write(string(data))
}

// LanguageIDForPath maps a file extension to an LSP language
// identifier, per spec.md §4.8 step 1's initial supported set.
// Unrecognised extensions return ok=false, and such files are skipped
// by the Semantic Lock.
func LanguageIDForPath(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".rs":
		return "rust", true
	case ".py":
		return "python", true
	case ".ts", ".tsx":
		return "typescript", true
	default:
		return "", false
	}
}

// NewApplyPatchHandler builds the "act apply-patch" handler described
// in spec.md §6/§7: parse the request's unified-diff-with-SEARCH/REPLACE
// payload, resolve it into edit.ContentChange values relative to
// workspaceRoot, and run it through tx. Parse and path-resolution
// failures surface as a PatchParse envelope on stderr; a rejected
// Double-Lock outcome surfaces its failures on stdout with a non-zero
// status, mirroring a normal TransactionOutcome rather than a dispatch
// error. hub, if non-nil, receives a TransactionSummary broadcast
// (SPEC_FULL.md §D2) tagged with the connection's correlation ID.
func NewApplyPatchHandler(workspaceRoot string, tx *edit.Transaction, hub *eventstream.Hub) dispatch.Handler {
	return func(ctx context.Context, req protocol.CommandRequest, w dispatch.ResponseWriter, registry *backend.Registry) (int, error) {
		ops, err := patch.Parse(req.Patch)
		if err != nil {
			if werr := writeJSON(w.Stderr, envelope{Kind: "PatchParse", Message: err.Error()}); werr != nil {
				return 1, werr
			}
			return 1, nil
		}

		changes, err := patch.BuildChanges(workspaceRoot, ops)
		if err != nil {
			if werr := writeJSON(w.Stderr, envelope{Kind: "PatchParse", Message: err.Error()}); werr != nil {
				return 1, werr
			}
			return 1, nil
		}

		outcome, err := tx.Execute(ctx, changes)
		if err != nil {
			return 1, err
		}

		if hub != nil {
			hub.Broadcast(eventstream.FromTransactionOutcome(corrid.FromContext(ctx), outcome))
		}

		switch outcome.Kind {
		case edit.Committed, edit.NoChanges:
			kind := "Committed"
			if outcome.Kind == edit.NoChanges {
				kind = "NoChanges"
			}
			if werr := writeJSON(w.Stdout, envelope{Kind: kind, FilesModified: outcome.FilesModified}); werr != nil {
				return 1, werr
			}
			return 0, nil

		case edit.SyntacticLockFailed:
			if werr := writeJSON(w.Stdout, envelope{Kind: "SyntacticLockFailed", Failures: outcome.Failures}); werr != nil {
				return 1, werr
			}
			return 1, nil

		case edit.SemanticLockFailed:
			if werr := writeJSON(w.Stdout, envelope{Kind: "SemanticLockFailed", Failures: outcome.Failures}); werr != nil {
				return 1, werr
			}
			return 1, nil
		}

		return 1, nil
	}
}
