package patch

import "testing"

func TestRenderProducesNonEmptyDiffForChangedContent(t *testing.T) {
	out := Render("fn main() {}\n", "fn main() { x(); }\n")
	if out == "" {
		t.Fatal("expected non-empty rendered diff")
	}
}

func TestRenderPatchesSkipsNonModifyOperations(t *testing.T) {
	ops := []Operation{
		{Kind: Create, Path: "new.rs", Content: "fn hello() {}\n"},
		{Kind: Delete, Path: "gone.rs"},
	}
	rendered, err := RenderPatches(ops, func(string) (string, error) { return "", nil })
	if err != nil {
		t.Fatalf("RenderPatches: %v", err)
	}
	if len(rendered) != 0 {
		t.Errorf("expected no rendered entries for Create/Delete ops, got %v", rendered)
	}
}

func TestRenderPatchesRendersModifyOperation(t *testing.T) {
	ops := []Operation{{
		Kind: Modify, Path: "src/lib.rs",
		Blocks: []SearchReplaceBlock{{Search: "old", Replace: "new"}},
	}}
	rendered, err := RenderPatches(ops, func(string) (string, error) { return "old content", nil })
	if err != nil {
		t.Fatalf("RenderPatches: %v", err)
	}
	if rendered["src/lib.rs"] == "" {
		t.Error("expected a rendered diff for src/lib.rs")
	}
}
