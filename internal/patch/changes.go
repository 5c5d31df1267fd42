package patch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/weaverlang/weaver/internal/edit"
)

// InvalidPathError is returned when an operation's path is empty,
// absolute, or escapes the workspace root via a ".." component.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("patch: invalid path %q: %s", e.Path, e.Reason)
}

// FileNotFoundError is returned when a Modify operation targets a
// path that does not exist.
type FileNotFoundError struct{ Path string }

func (e *FileNotFoundError) Error() string { return fmt.Sprintf("patch: file not found: %s", e.Path) }

// FileAlreadyExistsError is returned when a Create operation targets
// a path that already exists.
type FileAlreadyExistsError struct{ Path string }

func (e *FileAlreadyExistsError) Error() string {
	return fmt.Sprintf("patch: file already exists: %s", e.Path)
}

// DeleteMissingError is returned when a Delete operation targets a
// path that does not exist.
type DeleteMissingError struct{ Path string }

func (e *DeleteMissingError) Error() string {
	return fmt.Sprintf("patch: cannot delete missing file: %s", e.Path)
}

// SearchNotFoundError is returned when a Modify block's search text
// is not present in the file being patched.
type SearchNotFoundError struct{ Path string }

func (e *SearchNotFoundError) Error() string {
	return fmt.Sprintf("patch: search text not found in %s", e.Path)
}

// ResolvePath validates path per spec.md §6 (relative, inside the
// workspace, no ".." components, no Windows-drive prefixes) and joins
// it to workspaceRoot.
func ResolvePath(workspaceRoot, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", &InvalidPathError{Path: path, Reason: "path is empty"}
	}
	if filepath.IsAbs(path) || (len(path) >= 2 && path[1] == ':') {
		return "", &InvalidPathError{Path: path, Reason: "absolute paths are not allowed"}
	}

	clean := filepath.ToSlash(path)
	for _, part := range strings.Split(clean, "/") {
		if part == ".." {
			return "", &InvalidPathError{Path: path, Reason: "path traversal is not allowed"}
		}
	}

	return filepath.Join(workspaceRoot, filepath.FromSlash(clean)), nil
}

// ApplySearchReplace sequentially applies each block's exact-text
// substitution to content. Each block's Search text must appear in the
// content as of that step; only its first occurrence is replaced.
func ApplySearchReplace(path, content string, blocks []SearchReplaceBlock) (string, error) {
	result := content
	for _, block := range blocks {
		count := strings.Count(result, block.Search)
		if count == 0 {
			return "", &SearchNotFoundError{Path: path}
		}
		result = strings.Replace(result, block.Search, block.Replace, 1)
	}
	return result, nil
}

// BuildChanges converts parsed Operations into edit.ContentChange
// values, resolving and validating each target path against
// workspaceRoot and reading pre-existing file content as needed.
func BuildChanges(workspaceRoot string, operations []Operation) ([]edit.ContentChange, error) {
	changes := make([]edit.ContentChange, 0, len(operations))

	for _, op := range operations {
		resolved, err := ResolvePath(workspaceRoot, op.Path)
		if err != nil {
			return nil, err
		}

		switch op.Kind {
		case Modify:
			data, readErr := os.ReadFile(resolved) //nolint:gosec // resolved is workspace-confined
			if readErr != nil {
				return nil, &FileNotFoundError{Path: op.Path}
			}
			modified, err := ApplySearchReplace(op.Path, string(data), op.Blocks)
			if err != nil {
				return nil, err
			}
			changes = append(changes, edit.ContentChange{Kind: edit.Write, Path: resolved, Content: modified})

		case Create:
			if _, statErr := os.Stat(resolved); statErr == nil {
				return nil, &FileAlreadyExistsError{Path: op.Path}
			}
			changes = append(changes, edit.ContentChange{Kind: edit.Write, Path: resolved, Content: op.Content})

		case Delete:
			if _, statErr := os.Stat(resolved); statErr != nil {
				return nil, &DeleteMissingError{Path: op.Path}
			}
			changes = append(changes, edit.ContentChange{Kind: edit.Delete, Path: resolved})
		}
	}

	return changes, nil
}
