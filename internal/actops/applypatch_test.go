package actops

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/weaverlang/weaver/internal/edit"
	"github.com/weaverlang/weaver/internal/lock"
	"github.com/weaverlang/weaver/internal/protocol"
)

type passingLock struct{}

func (passingLock) Validate(ctx context.Context, vc lock.VerificationContext) (lock.SyntacticResult, error) {
	return lock.SyntacticResult{}, nil
}

type passingSemanticLock struct{}

func (passingSemanticLock) Validate(ctx context.Context, vc lock.VerificationContext) (lock.SemanticResult, error) {
	return lock.SemanticResult{}, nil
}

type failingLock struct{ failures []lock.VerificationFailure }

func (f failingLock) Validate(ctx context.Context, vc lock.VerificationContext) (lock.SyntacticResult, error) {
	return lock.SyntacticResult{Failures: f.failures}, nil
}

type recordingWriter struct {
	stdout, stderr []string
}

func (r *recordingWriter) Stdout(data string) error { r.stdout = append(r.stdout, data); return nil }
func (r *recordingWriter) Stderr(data string) error { r.stderr = append(r.stderr, data); return nil }

func TestApplyPatchHandlerCommitsAModifyOperation(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.rs"), []byte("fn main() {}\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	patchText := "diff --git a/main.rs b/main.rs\n" +
		"<<<<<<< SEARCH\n" +
		"fn main() {}\n" +
		"=======\n" +
		"fn main() { x(); }\n" +
		">>>>>>> REPLACE\n"

	tx := edit.NewTransaction(passingLock{}, passingSemanticLock{})
	handler := NewApplyPatchHandler(dir, tx, nil)
	w := &recordingWriter{}

	req := protocol.CommandRequest{Command: protocol.Command{Domain: "act", Operation: "apply-patch"}, Patch: patchText}
	status, err := handler(context.Background(), req, w, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if status != 0 {
		t.Fatalf("status = %d, want 0", status)
	}
	if len(w.stdout) != 1 {
		t.Fatalf("expected 1 stdout frame, got %d", len(w.stdout))
	}
	var e envelope
	if err := json.Unmarshal([]byte(w.stdout[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Kind != "Committed" || e.FilesModified != 1 {
		t.Fatalf("unexpected envelope: %+v", e)
	}

	got, err := os.ReadFile(filepath.Join(dir, "main.rs"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(got) != "fn main() { x(); }\n" {
		t.Errorf("file content = %q", got)
	}
}

func TestApplyPatchHandlerReportsPatchParseErrorOnStderr(t *testing.T) {
	dir := t.TempDir()
	tx := edit.NewTransaction(passingLock{}, passingSemanticLock{})
	handler := NewApplyPatchHandler(dir, tx, nil)
	w := &recordingWriter{}

	req := protocol.CommandRequest{Command: protocol.Command{Domain: "act", Operation: "apply-patch"}, Patch: "not a patch"}
	status, err := handler(context.Background(), req, w, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if status != 1 {
		t.Fatalf("status = %d, want 1", status)
	}
	if len(w.stderr) != 1 {
		t.Fatalf("expected 1 stderr frame, got %d", len(w.stderr))
	}
	var e envelope
	if err := json.Unmarshal([]byte(w.stderr[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Kind != "PatchParse" {
		t.Fatalf("unexpected envelope: %+v", e)
	}
}

func TestApplyPatchHandlerReportsSyntacticLockFailureOnStdout(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "main.rs"), []byte("fn main() {}\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	patchText := "diff --git a/main.rs b/main.rs\n" +
		"<<<<<<< SEARCH\n" +
		"fn main() {}\n" +
		"=======\n" +
		"fn main() {\n" +
		">>>>>>> REPLACE\n"

	failures := []lock.VerificationFailure{{Path: "main.rs", Line: 1, Column: 1, Message: "unbalanced brace"}}
	tx := edit.NewTransaction(failingLock{failures: failures}, passingSemanticLock{})
	handler := NewApplyPatchHandler(dir, tx, nil)
	w := &recordingWriter{}

	req := protocol.CommandRequest{Command: protocol.Command{Domain: "act", Operation: "apply-patch"}, Patch: patchText}
	status, err := handler(context.Background(), req, w, nil)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if status != 1 {
		t.Fatalf("status = %d, want 1", status)
	}

	var e envelope
	if err := json.Unmarshal([]byte(w.stdout[0]), &e); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if e.Kind != "SyntacticLockFailed" || len(e.Failures) != 1 {
		t.Fatalf("unexpected envelope: %+v", e)
	}

	got, err := os.ReadFile(filepath.Join(dir, "main.rs"))
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if string(got) != "fn main() {}\n" {
		t.Error("file must be left unchanged on a lock failure")
	}
}

func TestLanguageIDForPathRecognisesInitialSet(t *testing.T) {
	cases := map[string]string{"a.rs": "rust", "b.py": "python", "c.ts": "typescript", "d.tsx": "typescript"}
	for path, want := range cases {
		got, ok := LanguageIDForPath(path)
		if !ok || got != want {
			t.Errorf("LanguageIDForPath(%q) = (%q, %v), want (%q, true)", path, got, ok, want)
		}
	}
	if _, ok := LanguageIDForPath("readme.md"); ok {
		t.Error("expected unrecognised extension to return ok=false")
	}
}
