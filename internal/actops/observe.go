package actops

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/weaverlang/weaver/internal/backend"
	"github.com/weaverlang/weaver/internal/dispatch"
	"github.com/weaverlang/weaver/internal/protocol"
)

// Position is a zero-based LSP-style position, converted from the
// one-based "line:character" wire argument at the handler boundary.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range spans from Start to End, both zero-based.
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location names a position within a document, the shape spec.md §8
// scenario 1 names for "observe get-definition".
type Location struct {
	URI   string `json:"uri"`
	Range Range  `json:"range"`
}

// GraphProvider resolves symbol-graph queries: definitions,
// references, and call hierarchies. Concrete language-server
// processes and structural code engines are explicitly out of scope
// (spec.md §1 "explicitly out of scope... concrete language-server
// processes"); GraphProvider is the collaborator interface spec.md's
// own design notes anticipate plugging a real implementation into at
// boot (crates/weaver-graph/src/provider.rs).
type GraphProvider interface {
	Definition(ctx context.Context, uri string, pos Position) ([]Location, error)
	References(ctx context.Context, uri string, pos Position) ([]Location, error)
	CallHierarchy(ctx context.Context, uri string, pos Position, direction string) ([]Location, error)
}

// StubGraphProvider is the default GraphProvider: it answers every
// query with a single Location at the queried URI with a zeroed
// range, exactly the behaviour spec.md §8 scenario 1 specifies for
// "Observe server stub". It lets the dispatch vocabulary be fully
// wired without a real language server attached.
type StubGraphProvider struct{}

func (StubGraphProvider) Definition(_ context.Context, uri string, _ Position) ([]Location, error) {
	return []Location{{URI: uri}}, nil
}

func (StubGraphProvider) References(_ context.Context, uri string, _ Position) ([]Location, error) {
	return []Location{{URI: uri}}, nil
}

func (StubGraphProvider) CallHierarchy(_ context.Context, uri string, _ Position, _ string) ([]Location, error) {
	return []Location{{URI: uri}}, nil
}

func writeLocations(write func(string) error, locations []Location) (int, error) {
	if locations == nil {
		locations = []Location{}
	}
	data, err := json.Marshal(locations)
	if err != nil {
		return 1, err
	}
	if err := write(string(data)); err != nil {
		return 1, err
	}
	return 0, nil
}

// NewGetDefinitionHandler builds "observe get-definition": it reads
// --uri/--position and resolves them through provider.
func NewGetDefinitionHandler(provider GraphProvider) dispatch.Handler {
	return func(ctx context.Context, req protocol.CommandRequest, w dispatch.ResponseWriter, _ *backend.Registry) (int, error) {
		flags := parseFlags(req.Arguments)
		locations, err := provider.Definition(ctx, flags["uri"], splitPosition(flags["position"]))
		if err != nil {
			return 1, err
		}
		return writeLocations(w.Stdout, locations)
	}
}

// NewFindReferencesHandler builds "observe find-references".
func NewFindReferencesHandler(provider GraphProvider) dispatch.Handler {
	return func(ctx context.Context, req protocol.CommandRequest, w dispatch.ResponseWriter, _ *backend.Registry) (int, error) {
		flags := parseFlags(req.Arguments)
		locations, err := provider.References(ctx, flags["uri"], splitPosition(flags["position"]))
		if err != nil {
			return 1, err
		}
		return writeLocations(w.Stdout, locations)
	}
}

// NewCallHierarchyHandler builds "observe call-hierarchy", reading
// --uri, --position, and --direction (incoming|outgoing).
func NewCallHierarchyHandler(provider GraphProvider) dispatch.Handler {
	return func(ctx context.Context, req protocol.CommandRequest, w dispatch.ResponseWriter, _ *backend.Registry) (int, error) {
		flags := parseFlags(req.Arguments)
		locations, err := provider.CallHierarchy(ctx, flags["uri"], splitPosition(flags["position"]), flags["direction"])
		if err != nil {
			return 1, err
		}
		return writeLocations(w.Stdout, locations)
	}
}

// GrepMatch is one line matching a grep's pattern.
type GrepMatch struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

// NewGrepHandler builds "observe grep": a plain regular-expression
// search over workspaceRoot, reading --pattern (required) and --path
// (an optional subdirectory to scope the walk). Unlike the Graph/
// Rewrite collaborators this needs no external process, so it is
// implemented directly rather than stubbed.
func NewGrepHandler(workspaceRoot string) dispatch.Handler {
	return func(_ context.Context, req protocol.CommandRequest, w dispatch.ResponseWriter, _ *backend.Registry) (int, error) {
		flags := parseFlags(req.Arguments)
		pattern := flags["pattern"]
		if pattern == "" {
			return writeLocations(w.Stdout, nil) // no pattern: vacuous empty result
		}

		re, err := regexp.Compile(pattern)
		if err != nil {
			return 1, fmt.Errorf("grep: invalid pattern: %w", err)
		}

		root := workspaceRoot
		if sub := flags["path"]; sub != "" {
			root = filepath.Join(workspaceRoot, sub)
		}

		var matches []GrepMatch
		err = filepath.Walk(root, func(path string, info os.FileInfo, walkErr error) error {
			if walkErr != nil || info.IsDir() {
				return nil
			}
			content, readErr := os.ReadFile(path)
			if readErr != nil {
				return nil
			}
			rel, relErr := filepath.Rel(workspaceRoot, path)
			if relErr != nil {
				rel = path
			}
			for i, line := range strings.Split(string(content), "\n") {
				if re.MatchString(line) {
					matches = append(matches, GrepMatch{Path: rel, Line: i + 1, Text: line})
				}
			}
			return nil
		})
		if err != nil {
			return 1, err
		}

		sort.Slice(matches, func(i, j int) bool {
			if matches[i].Path != matches[j].Path {
				return matches[i].Path < matches[j].Path
			}
			return matches[i].Line < matches[j].Line
		})

		if matches == nil {
			matches = []GrepMatch{}
		}
		data, err := json.Marshal(matches)
		if err != nil {
			return 1, err
		}
		if err := w.Stdout(string(data)); err != nil {
			return 1, err
		}
		return 0, nil
	}
}

// ObserveDiagnostic mirrors backend.Diagnostic at the wire boundary,
// converted to one-based positions per spec.md §3.
type ObserveDiagnostic struct {
	Line      int    `json:"line"`
	Character int    `json:"character"`
	Severity  int    `json:"severity"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
}

// NewObserveDiagnosticsHandler builds "observe diagnostics": a direct
// point-in-time fetch of a single file's current diagnostics from the
// Semantic backend (C6), independent of any Double-Lock transaction's
// baseline/updated comparison.
func NewObserveDiagnosticsHandler(languageIDOf func(string) (string, bool), uriOf func(string) string) dispatch.Handler {
	if uriOf == nil {
		uriOf = func(path string) string { return "file://" + path }
	}
	return func(ctx context.Context, req protocol.CommandRequest, w dispatch.ResponseWriter, registry *backend.Registry) (int, error) {
		flags := parseFlags(req.Arguments)
		path := flags["uri"]
		content := flags["content"]

		languageID, ok := languageIDOf(path)
		if !ok {
			return writeDiagnostics(w.Stdout, nil)
		}

		if err := registry.EnsureStarted(ctx, backend.Semantic); err != nil {
			return 1, err
		}

		var diags []backend.Diagnostic
		err := registry.WithProvider(backend.Semantic, func(p backend.Provider) error {
			uri := uriOf(path)
			if err := p.OpenDocument(ctx, uri, languageID, content, 1); err != nil {
				return err
			}
			defer p.CloseDocument(ctx, uri)
			found, err := p.Diagnostics(ctx, uri)
			if err != nil {
				return err
			}
			diags = found
			return nil
		})
		if err != nil {
			return 1, err
		}
		return writeDiagnostics(w.Stdout, diags)
	}
}

func writeDiagnostics(write func(string) error, diags []backend.Diagnostic) (int, error) {
	out := make([]ObserveDiagnostic, 0, len(diags))
	for _, d := range diags {
		out = append(out, ObserveDiagnostic{
			Line: d.Line + 1, Character: d.Character + 1,
			Severity: int(d.Severity), Message: d.Message, Code: d.Code,
		})
	}
	data, err := json.Marshal(out)
	if err != nil {
		return 1, err
	}
	if err := write(string(data)); err != nil {
		return 1, err
	}
	return 0, nil
}
