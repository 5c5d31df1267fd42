package patch

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// Render produces a human-readable inline diff (insertions and
// deletions marked with ANSI colour codes, not unified-diff hunks) between
// original and modified, for "weaver act apply-patch --dry-run"
// previews of a Modify operation before it ever reaches the daemon. It
// never mutates anything and plays no part in the commit path.
func Render(original, modified string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, modified, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.DiffPrettyText(diffs)
}

// RenderPatches builds Render's inline diff text for every Modify operation
// in ops, keyed by path, leaving Create/Delete operations to speak
// for themselves in the summary.
func RenderPatches(ops []Operation, originalOf func(path string) (string, error)) (map[string]string, error) {
	rendered := make(map[string]string)
	for _, op := range ops {
		if op.Kind != Modify {
			continue
		}
		original, err := originalOf(op.Path)
		if err != nil {
			return nil, err
		}
		modified, err := ApplySearchReplace(op.Path, original, op.Blocks)
		if err != nil {
			return nil, err
		}
		rendered[op.Path] = Render(original, modified)
	}
	return rendered, nil
}
