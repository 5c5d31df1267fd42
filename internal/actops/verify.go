package actops

import (
	"context"
	"encoding/json"
	"os"

	"github.com/weaverlang/weaver/internal/backend"
	"github.com/weaverlang/weaver/internal/dispatch"
	"github.com/weaverlang/weaver/internal/lock"
	"github.com/weaverlang/weaver/internal/patch"
	"github.com/weaverlang/weaver/internal/protocol"
)

// NewVerifySyntaxHandler builds "verify syntax": it runs syn against
// the current on-disk content of --uri, outside of any edit
// transaction, reporting the same VerificationFailure shape C7
// returns for a rejected commit.
func NewVerifySyntaxHandler(workspaceRoot string, syn lock.SyntacticLock) dispatch.Handler {
	return func(ctx context.Context, req protocol.CommandRequest, w dispatch.ResponseWriter, _ *backend.Registry) (int, error) {
		flags := parseFlags(req.Arguments)
		path := flags["uri"]

		resolved, err := patch.ResolvePath(workspaceRoot, path)
		if err != nil {
			if werr := writeJSON(w.Stderr, envelope{Kind: "PatchParse", Message: err.Error()}); werr != nil {
				return 1, werr
			}
			return 1, nil
		}
		content, err := os.ReadFile(resolved)
		if err != nil {
			if werr := writeJSON(w.Stderr, envelope{Kind: "PatchParse", Message: err.Error()}); werr != nil {
				return 1, werr
			}
			return 1, nil
		}

		result, err := syn.Validate(ctx, lock.VerificationContext{
			path: {Original: string(content), Modified: string(content)},
		})
		if err != nil {
			return 1, err
		}
		if result.Passed() {
			return writeVerifyResult(w.Stdout, "Passed", nil)
		}
		return writeVerifyResult(w.Stdout, "SyntacticLockFailed", result.Failures)
	}
}

// NewVerifyDiagnosticsHandler builds "verify diagnostics": it fetches
// current diagnostics for --uri from the Semantic backend and reports
// any Error/Warning entry as a failure, without a baseline comparison
// (unlike the Semantic Lock, "verify" has no "before" state to diff
// against — every high-severity diagnostic is reported).
func NewVerifyDiagnosticsHandler(workspaceRoot string, languageIDOf func(string) (string, bool), uriOf func(string) string) dispatch.Handler {
	if uriOf == nil {
		uriOf = func(path string) string { return "file://" + path }
	}
	return func(ctx context.Context, req protocol.CommandRequest, w dispatch.ResponseWriter, registry *backend.Registry) (int, error) {
		flags := parseFlags(req.Arguments)
		path := flags["uri"]

		languageID, ok := languageIDOf(path)
		if !ok {
			return writeVerifyResult(w.Stdout, "Passed", nil)
		}

		resolved, err := patch.ResolvePath(workspaceRoot, path)
		if err != nil {
			if werr := writeJSON(w.Stderr, envelope{Kind: "PatchParse", Message: err.Error()}); werr != nil {
				return 1, werr
			}
			return 1, nil
		}
		content, err := os.ReadFile(resolved)
		if err != nil {
			if werr := writeJSON(w.Stderr, envelope{Kind: "PatchParse", Message: err.Error()}); werr != nil {
				return 1, werr
			}
			return 1, nil
		}

		if err := registry.EnsureStarted(ctx, backend.Semantic); err != nil {
			return 1, err
		}

		var failures []lock.VerificationFailure
		err = registry.WithProvider(backend.Semantic, func(p backend.Provider) error {
			uri := uriOf(path)
			if err := p.OpenDocument(ctx, uri, languageID, string(content), 1); err != nil {
				return err
			}
			defer p.CloseDocument(ctx, uri)
			diags, err := p.Diagnostics(ctx, uri)
			if err != nil {
				return err
			}
			for _, d := range diags {
				if d.Severity != backend.SeverityError && d.Severity != backend.SeverityWarning && d.Severity != 0 {
					continue
				}
				failures = append(failures, lock.VerificationFailure{
					Path: path, Line: d.Line + 1, Column: d.Character + 1, Message: d.Message,
				})
			}
			return nil
		})
		if err != nil {
			return 1, err
		}

		if len(failures) == 0 {
			return writeVerifyResult(w.Stdout, "Passed", nil)
		}
		return writeVerifyResult(w.Stdout, "SemanticLockFailed", failures)
	}
}

func writeVerifyResult(write func(string) error, kind string, failures []lock.VerificationFailure) (int, error) {
	e := envelope{Kind: kind, Failures: failures}
	data, err := json.Marshal(e)
	if err != nil {
		return 1, err
	}
	if err := write(string(data)); err != nil {
		return 1, err
	}
	if kind == "Passed" {
		return 0, nil
	}
	return 1, nil
}
