package lock

import (
	"context"
	"fmt"
	"sort"

	"github.com/weaverlang/weaver/internal/backend"
	"github.com/weaverlang/weaver/internal/diagnostics"
)

// diagnosticSignature is the comparison key spec.md §4.8 defines:
// (start_line, start_character, severity, message, code?). Two
// diagnostics with an equal signature are considered the same entry
// across the baseline/updated comparison.
type diagnosticSignature struct {
	line      int
	character int
	severity  backend.Severity
	message   string
	code      string
}

func signatureOf(d backend.Diagnostic) diagnosticSignature {
	sev := d.Severity
	if sev == 0 {
		sev = backend.SeverityError
	}
	return diagnosticSignature{
		line: d.Line, character: d.Character,
		severity: sev, message: d.Message, code: d.Code,
	}
}

// highSeverity restricts failures to Error and Warning (and
// no-severity, already normalised to Error by signatureOf).
func highSeverity(sev backend.Severity) bool {
	return sev == backend.SeverityError || sev == backend.SeverityWarning
}

// BackendSemanticLock is the default SemanticLock. It drives a
// backend.Provider through the open/baseline/change/updated/close
// protocol described in spec.md §4.8.
type BackendSemanticLock struct {
	registry     *backend.Registry
	languageIDOf func(path string) (languageID string, ok bool)
	uriOf        func(path string) string

	// Cache, when non-nil, lets validateFile skip a redundant baseline
	// diagnostics fetch for a file whose original content matches what
	// was last stored (SPEC_FULL.md §D1). A nil Cache always fetches a
	// fresh baseline.
	Cache *diagnostics.Cache
}

// NewBackendSemanticLock constructs a lock against registry. languageIDOf
// maps a path to an LSP language identifier (e.g. "rust"), returning
// ok=false for unsupported extensions, which are skipped per spec.md
// §4.8 step 1. uriOf converts a workspace-relative path to the URI the
// backend expects; a simple "file://" + path default is used if nil.
func NewBackendSemanticLock(registry *backend.Registry, languageIDOf func(string) (string, bool), uriOf func(string) string) *BackendSemanticLock {
	if uriOf == nil {
		uriOf = func(path string) string { return "file://" + path }
	}
	return &BackendSemanticLock{registry: registry, languageIDOf: languageIDOf, uriOf: uriOf}
}

// Validate implements SemanticLock.
func (l *BackendSemanticLock) Validate(ctx context.Context, vc VerificationContext) (SemanticResult, error) {
	var result SemanticResult

	for path, versions := range vc {
		languageID, ok := l.languageIDOf(path)
		if !ok {
			continue
		}

		if err := l.registry.EnsureStarted(ctx, backend.Semantic); err != nil {
			return SemanticResult{}, &BackendUnavailableError{Message: err.Error()}
		}

		failures, err := l.validateFile(ctx, path, languageID, versions)
		if err != nil {
			return SemanticResult{}, err
		}
		result.Failures = append(result.Failures, failures...)
	}

	sort.Slice(result.Failures, func(i, j int) bool {
		a, b := result.Failures[i], result.Failures[j]
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		if a.Line != b.Line {
			return a.Line < b.Line
		}
		return a.Column < b.Column
	})

	return result, nil
}

func (l *BackendSemanticLock) validateFile(ctx context.Context, path, languageID string, versions FileVersions) ([]VerificationFailure, error) {
	uri := l.uriOf(path)
	var failures []VerificationFailure
	var opErr error

	originalHash := diagnostics.HashContent(versions.Original)
	baselineSet, cached := l.cachedBaseline(path, originalHash)

	err := l.registry.WithProvider(backend.Semantic, func(p backend.Provider) error {
		if err := p.OpenDocument(ctx, uri, languageID, versions.Original, 1); err != nil {
			return fmt.Errorf("open document %s: %w", path, err)
		}

		if !cached {
			baseline, err := p.Diagnostics(ctx, uri)
			if err != nil {
				opErr = err
				return err
			}
			baselineSet = make(map[diagnosticSignature]bool, len(baseline))
			for _, d := range baseline {
				baselineSet[signatureOf(d)] = true
			}
		}

		if err := p.ChangeDocument(ctx, uri, versions.Modified, 2); err != nil {
			opErr = err
			return err
		}

		updated, err := p.Diagnostics(ctx, uri)
		if err != nil {
			opErr = err
			return err
		}

		for _, d := range updated {
			sig := signatureOf(d)
			if baselineSet[sig] {
				continue
			}
			if !highSeverity(sig.severity) {
				continue
			}
			failures = append(failures, VerificationFailure{
				Path:    path,
				Line:    d.Line + 1,
				Column:  d.Character + 1,
				Message: d.Message,
			})
		}

		l.storeBaseline(path, versions.Modified, updated)

		if closeErr := p.CloseDocument(ctx, uri); closeErr != nil && opErr == nil {
			return fmt.Errorf("close document %s: %w", path, closeErr)
		}
		return nil
	})

	if err != nil {
		return nil, &BackendUnavailableError{Message: err.Error()}
	}
	return failures, nil
}

// cachedBaseline consults l.Cache, if configured, for a still-valid
// baseline signature set for path keyed by originalHash.
func (l *BackendSemanticLock) cachedBaseline(path, originalHash string) (map[diagnosticSignature]bool, bool) {
	if l.Cache == nil {
		return nil, false
	}
	stored, ok, err := l.Cache.Lookup(path, originalHash)
	if err != nil || !ok {
		return nil, false
	}
	set := make(map[diagnosticSignature]bool, len(stored))
	for _, s := range stored {
		set[diagnosticSignature{
			line: s.Line, character: s.Character,
			severity: backend.Severity(s.Severity), message: s.Message, code: s.Code,
		}] = true
	}
	return set, true
}

// storeBaseline persists updated as the new baseline for path, keyed
// by the modified content's hash, so a later transaction that doesn't
// change this file again can reuse it.
func (l *BackendSemanticLock) storeBaseline(path, modifiedContent string, updated []backend.Diagnostic) {
	if l.Cache == nil {
		return
	}
	sigs := make([]diagnostics.Signature, 0, len(updated))
	for _, d := range updated {
		sigs = append(sigs, diagnostics.Signature{
			Line: d.Line, Character: d.Character,
			Severity: int(d.Severity), Message: d.Message, Code: d.Code,
		})
	}
	_ = l.Cache.Store(path, diagnostics.HashContent(modifiedContent), sigs)
}
