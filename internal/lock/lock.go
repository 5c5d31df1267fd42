// Package lock implements the Double-Lock verification gate (spec.md
// §4.7–§4.9, §9, C7/C8): two narrow interfaces, each with a single
// validate method, so concrete grammar- and LSP-backed implementations
// plug in at boot while tests supply configurable fakes.
package lock

import "context"

// FileVersions holds the original and proposed content for one path.
// Original is empty for newly created files.
type FileVersions struct {
	Original string
	Modified string
}

// VerificationContext maps every affected path to its before/after
// content. One instance exists per EditTransaction.
type VerificationContext map[string]FileVersions

// VerificationFailure names one verification defect at a one-based
// line/column, per spec.md §3.
type VerificationFailure struct {
	Path    string
	Line    int
	Column  int
	Message string
}

// SyntacticResult is the outcome of a SyntacticLock.Validate call.
type SyntacticResult struct {
	Failures []VerificationFailure
}

// Passed reports whether no failures were collected, per spec.md
// §4.7 ("Passed if no failures are collected across all files").
func (r SyntacticResult) Passed() bool { return len(r.Failures) == 0 }

// SemanticResult is the outcome of a SemanticLock.Validate call.
type SemanticResult struct {
	Failures []VerificationFailure
}

// Passed reports whether no newly introduced diagnostics were found.
func (r SemanticResult) Passed() bool { return len(r.Failures) == 0 }

// SyntacticLock parses proposed content and fails on any parse error
// for a recognised language (spec.md §4.7, C7).
type SyntacticLock interface {
	Validate(ctx context.Context, vc VerificationContext) (SyntacticResult, error)
}

// SemanticLock fetches diagnostics before and after a proposed change
// and fails on newly introduced high-severity entries (spec.md §4.8,
// C8).
type SemanticLock interface {
	Validate(ctx context.Context, vc VerificationContext) (SemanticResult, error)
}

// BackendUnavailableError marks an infrastructure failure in the
// Semantic Lock's backend, distinct from a validation failure
// (spec.md §4.8, §7).
type BackendUnavailableError struct {
	Message string
}

func (e *BackendUnavailableError) Error() string {
	return "semantic backend unavailable: " + e.Message
}
