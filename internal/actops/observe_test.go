package actops

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/weaverlang/weaver/internal/backend"
	"github.com/weaverlang/weaver/internal/protocol"
)

func TestGetDefinitionHandlerReturnsOneElementArray(t *testing.T) {
	handler := NewGetDefinitionHandler(StubGraphProvider{})
	w := &recordingWriter{}
	req := protocol.CommandRequest{
		Command:   protocol.Command{Domain: "observe", Operation: "get-definition"},
		Arguments: []string{"--uri", "file:///x.rs", "--position", "1:1"},
	}

	status, err := handler(context.Background(), req, w, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if status != 0 {
		t.Fatalf("status = %d, want 0", status)
	}

	var locations []Location
	if err := json.Unmarshal([]byte(w.stdout[0]), &locations); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(locations) != 1 || locations[0].URI != "file:///x.rs" {
		t.Fatalf("unexpected locations: %+v", locations)
	}
	if locations[0].Range != (Range{}) {
		t.Errorf("expected zeroed range, got %+v", locations[0].Range)
	}
}

func TestGrepHandlerFindsMatchingLines(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.rs"), []byte("fn main() {}\nfn helper() {}\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	handler := NewGrepHandler(dir)
	w := &recordingWriter{}
	req := protocol.CommandRequest{
		Command:   protocol.Command{Domain: "observe", Operation: "grep"},
		Arguments: []string{"--pattern", "^fn helper"},
	}

	status, err := handler(context.Background(), req, w, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if status != 0 {
		t.Fatalf("status = %d, want 0", status)
	}

	var matches []GrepMatch
	if err := json.Unmarshal([]byte(w.stdout[0]), &matches); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(matches) != 1 || matches[0].Line != 2 {
		t.Fatalf("unexpected matches: %+v", matches)
	}
}

type fakeObserveProvider struct {
	diags []backend.Diagnostic
}

func (p *fakeObserveProvider) OpenDocument(context.Context, string, string, string, int) error { return nil }
func (p *fakeObserveProvider) ChangeDocument(context.Context, string, string, int) error        { return nil }
func (p *fakeObserveProvider) CloseDocument(context.Context, string) error                      { return nil }
func (p *fakeObserveProvider) Diagnostics(context.Context, string) ([]backend.Diagnostic, error) {
	return p.diags, nil
}

func TestObserveDiagnosticsHandlerConvertsToOneBasedPositions(t *testing.T) {
	registry := backend.NewRegistry()
	provider := &fakeObserveProvider{diags: []backend.Diagnostic{
		{Line: 2, Character: 4, Severity: backend.SeverityError, Message: "bad"},
	}}
	registry.Register(backend.Semantic, func(context.Context) (backend.Provider, error) { return provider, nil })

	handler := NewObserveDiagnosticsHandler(rustLanguageID, nil)
	w := &recordingWriter{}
	req := protocol.CommandRequest{
		Command:   protocol.Command{Domain: "observe", Operation: "diagnostics"},
		Arguments: []string{"--uri", "main.rs"},
	}

	status, err := handler(context.Background(), req, w, registry)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if status != 0 {
		t.Fatalf("status = %d, want 0", status)
	}

	var out []ObserveDiagnostic
	if err := json.Unmarshal([]byte(w.stdout[0]), &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(out) != 1 || out[0].Line != 3 || out[0].Character != 5 {
		t.Fatalf("unexpected diagnostics: %+v", out)
	}
}

func rustLanguageID(path string) (string, bool) {
	if path == "main.rs" {
		return "rust", true
	}
	return "", false
}
