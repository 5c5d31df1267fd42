// Package patch implements the apply-patch parser (SPEC_FULL.md §D4,
// spec.md §6): a Git-style patch stream carrying SEARCH/REPLACE
// modify blocks, create hunks, and delete headers, grounded on the
// original implementation's dispatch/act/apply_patch/parser.rs state
// machine. It produces edit.ContentChange values; it reads existing
// files (BuildChanges) but never writes to the filesystem or invokes
// the Double-Lock itself.
package patch

import (
	"fmt"
	"strings"
)

// OperationKind distinguishes the three patch operation shapes
// spec.md §6 defines.
type OperationKind int

const (
	Modify OperationKind = iota
	Create
	Delete
)

// SearchReplaceBlock is one <<<<<<< SEARCH / ======= / >>>>>>> REPLACE
// block within a Modify operation.
type SearchReplaceBlock struct {
	Search  string
	Replace string
}

// Operation is one per-file section of a parsed patch.
type Operation struct {
	Kind    OperationKind
	Path    string
	Blocks  []SearchReplaceBlock // Modify only
	Content string                // Create only
}

// EmptyPatchError is returned for a patch that is empty after
// trimming.
type EmptyPatchError struct{}

func (*EmptyPatchError) Error() string { return "patch: empty patch" }

// BinaryPatchError is returned when the patch text contains a NUL
// byte.
type BinaryPatchError struct{}

func (*BinaryPatchError) Error() string { return "patch: binary content is not a valid patch" }

// MissingDiffHeaderError is returned when no "diff --git " line is
// found anywhere in the patch.
type MissingDiffHeaderError struct{}

func (*MissingDiffHeaderError) Error() string { return "patch: missing diff --git header" }

// InvalidDiffHeaderError is returned for a malformed "diff --git"
// line, or one that appears mid-section.
type InvalidDiffHeaderError struct{ Line string }

func (e *InvalidDiffHeaderError) Error() string {
	return fmt.Sprintf("patch: invalid diff header: %q", e.Line)
}

// UnclosedSearchBlockError is returned when a SEARCH marker is never
// followed by a ======= separator.
type UnclosedSearchBlockError struct{ Path string }

func (e *UnclosedSearchBlockError) Error() string {
	return fmt.Sprintf("patch: unclosed SEARCH block in %s", e.Path)
}

// UnclosedReplaceBlockError is returned when a ======= separator is
// never followed by a >>>>>>> REPLACE marker.
type UnclosedReplaceBlockError struct{ Path string }

func (e *UnclosedReplaceBlockError) Error() string {
	return fmt.Sprintf("patch: unclosed REPLACE block in %s", e.Path)
}

// MissingHunkError is returned for a Create section with no @@ hunk.
type MissingHunkError struct{ Path string }

func (e *MissingHunkError) Error() string {
	return fmt.Sprintf("patch: create operation for %s is missing a hunk", e.Path)
}

// MissingSearchReplaceError is returned for a Modify section with no
// SEARCH/REPLACE blocks at all.
type MissingSearchReplaceError struct{ Path string }

func (e *MissingSearchReplaceError) Error() string {
	return fmt.Sprintf("patch: modify operation for %s has no SEARCH/REPLACE blocks", e.Path)
}

// Parse parses a full patch stream into its per-file Operations, per
// spec.md §6's format and the original parser's split-then-parse
// structure.
func Parse(text string) ([]Operation, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &EmptyPatchError{}
	}
	if strings.ContainsRune(text, 0) {
		return nil, &BinaryPatchError{}
	}

	chunks, err := splitOperations(text)
	if err != nil {
		return nil, err
	}

	operations := make([]Operation, 0, len(chunks))
	for _, chunk := range chunks {
		op, err := parseOperation(chunk)
		if err != nil {
			return nil, err
		}
		operations = append(operations, op)
	}
	return operations, nil
}

// splitOperations splits text at each "diff --git " line, mirroring
// the original's offset-collecting pass.
func splitOperations(text string) ([]string, error) {
	lines := splitInclusive(text)

	var offsets []int
	offset := 0
	for _, line := range lines {
		if strings.HasPrefix(trimLine(line), "diff --git ") {
			offsets = append(offsets, offset)
		}
		offset += len(line)
	}

	if len(offsets) == 0 {
		return nil, &MissingDiffHeaderError{}
	}

	chunks := make([]string, 0, len(offsets))
	for i, start := range offsets {
		end := len(text)
		if i+1 < len(offsets) {
			end = offsets[i+1]
		}
		chunks = append(chunks, text[start:end])
	}
	return chunks, nil
}

type operationMode int

const (
	modeUnknown operationMode = iota
	modeModify
	modeCreate
	modeDelete
)

// promote mirrors OperationMode::promote: the first non-Unknown mode
// wins and is never overwritten by a later one.
func (m operationMode) promote(next operationMode) operationMode {
	if m == modeUnknown {
		return next
	}
	return m
}

func parseOperation(chunk string) (Operation, error) {
	lines := splitInclusive(chunk)

	var (
		offset         int
		headerSeen     bool
		path           string
		mode           = modeUnknown
		blocks         []SearchReplaceBlock
		createContent  strings.Builder
		inHunk         bool
		captureHunk    bool
		sawHunk        bool
		searchStart    = -1
		replaceStart   = -1
	)

	for _, line := range lines {
		lineStart := offset
		lineEnd := offset + len(line)
		trimmed := trimLine(line)

		if !headerSeen {
			if !strings.HasPrefix(trimmed, "diff --git ") {
				return Operation{}, &InvalidDiffHeaderError{Line: trimmed}
			}
			_, bPath, err := parseDiffPaths(trimmed)
			if err != nil {
				return Operation{}, err
			}
			path = stripBPrefix(bPath)
			headerSeen = true
			offset = lineEnd
			continue
		}

		switch trimmed {
		case "<<<<<<< SEARCH":
			mode = mode.promote(modeModify)
			searchStart = lineEnd
			replaceStart = -1
			offset = lineEnd
			continue
		case "=======":
			if searchStart >= 0 {
				search := chunk[searchStart:lineStart]
				replaceStart = lineEnd
				blocks = append(blocks, SearchReplaceBlock{Search: search})
			}
			offset = lineEnd
			continue
		case ">>>>>>> REPLACE":
			if replaceStart < 0 {
				return Operation{}, &UnclosedSearchBlockError{Path: path}
			}
			replace := chunk[replaceStart:lineStart]
			if len(blocks) > 0 {
				blocks[len(blocks)-1].Replace = replace
			}
			searchStart = -1
			replaceStart = -1
			offset = lineEnd
			continue
		}

		if strings.HasPrefix(trimmed, "new file mode ") {
			mode = mode.promote(modeCreate)
		}
		if strings.HasPrefix(trimmed, "deleted file mode ") {
			mode = mode.promote(modeDelete)
		}

		if strings.HasPrefix(trimmed, "@@") {
			sawHunk = true
			if mode == modeCreate && !inHunk {
				inHunk = true
				captureHunk = true
			} else if mode == modeCreate {
				captureHunk = false
			}
		} else if strings.HasPrefix(trimmed, "diff --git ") {
			return Operation{}, &InvalidDiffHeaderError{Line: trimmed}
		}

		if mode == modeCreate && captureHunk && strings.HasPrefix(trimmed, "+") {
			content, ending := splitLineContent(line)
			createContent.WriteString(content)
			createContent.WriteString(ending)
		}

		offset = lineEnd
	}

	if searchStart >= 0 && replaceStart < 0 {
		return Operation{}, &UnclosedSearchBlockError{Path: path}
	}
	if replaceStart >= 0 {
		return Operation{}, &UnclosedReplaceBlockError{Path: path}
	}

	switch mode {
	case modeModify:
		if len(blocks) == 0 {
			return Operation{}, &MissingSearchReplaceError{Path: path}
		}
		return Operation{Kind: Modify, Path: path, Blocks: blocks}, nil
	case modeCreate:
		if !sawHunk {
			return Operation{}, &MissingHunkError{Path: path}
		}
		return Operation{Kind: Create, Path: path, Content: createContent.String()}, nil
	case modeDelete:
		return Operation{Kind: Delete, Path: path}, nil
	default:
		return Operation{}, &MissingDiffHeaderError{}
	}
}

// splitInclusive splits s into lines, keeping each line's terminator
// attached (mirroring Rust's split_inclusive('\n')).
func splitInclusive(s string) []string {
	var lines []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i+1])
			start = i + 1
		}
	}
	if start < len(s) {
		lines = append(lines, s[start:])
	}
	return lines
}

func trimLine(line string) string {
	return strings.TrimRight(line, "\r\n")
}

// parseDiffPaths extracts the (a, b) path tokens from a
// "diff --git a/<path> b/<path>" line, tolerating quoted paths that
// may contain spaces.
func parseDiffPaths(line string) (aPath, bPath string, err error) {
	const prefix = "diff --git "
	if !strings.HasPrefix(line, prefix) {
		return "", "", &InvalidDiffHeaderError{Line: line}
	}
	remainder := strings.TrimPrefix(line, prefix)

	tokens := make([]string, 0, 2)
	i := 0
	for len(tokens) < 2 && i < len(remainder) {
		for i < len(remainder) && remainder[i] == ' ' {
			i++
		}
		if i >= len(remainder) {
			break
		}
		var token string
		if remainder[i] == '"' {
			i++
			j := strings.IndexByte(remainder[i:], '"')
			if j < 0 {
				token = remainder[i:]
				i = len(remainder)
			} else {
				token = remainder[i : i+j]
				i += j + 1
			}
		} else {
			j := strings.IndexByte(remainder[i:], ' ')
			if j < 0 {
				token = remainder[i:]
				i = len(remainder)
			} else {
				token = remainder[i : i+j]
				i += j
			}
		}
		if token != "" {
			tokens = append(tokens, token)
		}
	}

	if len(tokens) != 2 {
		return "", "", &InvalidDiffHeaderError{Line: line}
	}
	return tokens[0], tokens[1], nil
}

func stripBPrefix(path string) string {
	if s, ok := strings.CutPrefix(path, "b/"); ok {
		return s
	}
	if s, ok := strings.CutPrefix(path, `b\`); ok {
		return s
	}
	return path
}

// splitLineContent strips a leading '+' from a hunk content line and
// returns (content, line-ending) separately so callers can reassemble
// without double-counting terminators.
func splitLineContent(line string) (content, ending string) {
	switch {
	case strings.HasSuffix(line, "\r\n"):
		return strings.TrimPrefix(strings.TrimSuffix(line, "\r\n"), "+"), "\r\n"
	case strings.HasSuffix(line, "\n"):
		return strings.TrimPrefix(strings.TrimSuffix(line, "\n"), "+"), "\n"
	default:
		return strings.TrimPrefix(line, "+"), ""
	}
}
