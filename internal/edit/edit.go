// Package edit implements the Edit Transaction (spec.md §4.9, C9): the
// only sanctioned mutator of tracked files. It stages proposed changes
// in memory, gates them behind the Double-Lock, and commits via a
// two-phase rename with best-effort rollback on partial failure.
package edit

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/weaverlang/weaver/internal/lock"
)

// Kind distinguishes the two ContentChange variants.
type Kind int

const (
	Write Kind = iota
	Delete
)

// ContentChange is the user-level intent EditTransaction materialises
// into a VerificationContext.
type ContentChange struct {
	Kind    Kind
	Path    string
	Content string // ignored for Delete
}

// OutcomeKind names which TransactionOutcome variant was produced.
// Exactly one is produced per Execute call (spec.md §3, §8).
type OutcomeKind int

const (
	Committed OutcomeKind = iota
	SyntacticLockFailed
	SemanticLockFailed
	NoChanges
)

// Outcome is the result of Execute.
type Outcome struct {
	Kind          OutcomeKind
	FilesModified int
	Failures      []lock.VerificationFailure
}

// FileReadError wraps a failure to read a file needed to build the
// VerificationContext — a Delete target that does not exist, or an
// unreadable Write target.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("edit: read %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

// Logger receives best-effort rollback failures, which must never mask
// the original commit error (spec.md §4.9).
type Logger func(format string, args ...any)

func defaultLogger(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "edit: "+format+"\n", args...)
}

// Transaction runs the Double-Lock pipeline ahead of any disk mutation.
type Transaction struct {
	Syntactic lock.SyntacticLock
	Semantic  lock.SemanticLock
	Log       Logger
}

// NewTransaction constructs a Transaction gated by the given locks.
func NewTransaction(syntactic lock.SyntacticLock, semantic lock.SemanticLock) *Transaction {
	return &Transaction{Syntactic: syntactic, Semantic: semantic, Log: defaultLogger}
}

// Execute runs the pipeline described in spec.md §4.9: build context,
// syntactic lock, semantic lock, then two-phase commit. Original file
// contents are read first; no file is written unless both locks pass.
func (t *Transaction) Execute(ctx context.Context, changes []ContentChange) (Outcome, error) {
	if len(changes) == 0 {
		return Outcome{Kind: NoChanges}, nil
	}

	vc := make(lock.VerificationContext, len(changes))
	existed := make(map[string]bool, len(changes))

	for _, c := range changes {
		original, fileExisted, err := readOriginal(c)
		if err != nil {
			return Outcome{}, err
		}
		existed[c.Path] = fileExisted

		modified := c.Content
		if c.Kind == Delete {
			modified = ""
		}
		vc[c.Path] = lock.FileVersions{Original: original, Modified: modified}
	}

	logger := t.Log
	if logger == nil {
		logger = defaultLogger
	}

	synResult, err := t.Syntactic.Validate(ctx, vc)
	if err != nil {
		return Outcome{}, fmt.Errorf("edit: syntactic lock: %w", err)
	}
	if !synResult.Passed() {
		return Outcome{Kind: SyntacticLockFailed, Failures: synResult.Failures}, nil
	}

	semResult, err := t.Semantic.Validate(ctx, vc)
	if err != nil {
		return Outcome{}, err
	}
	if !semResult.Passed() {
		return Outcome{Kind: SemanticLockFailed, Failures: semResult.Failures}, nil
	}

	n, err := commit(changes, vc, existed, logger)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Kind: Committed, FilesModified: n}, nil
}

// readOriginal reads the pre-transaction content of c.Path. A missing
// Write target reads as empty original content; a missing Delete
// target is a FileReadError.
func readOriginal(c ContentChange) (content string, existed bool, err error) {
	data, readErr := os.ReadFile(c.Path) //nolint:gosec // path is caller-supplied workspace-relative target
	if readErr == nil {
		return string(data), true, nil
	}
	if os.IsNotExist(readErr) {
		if c.Kind == Write {
			return "", false, nil
		}
		return "", false, &FileReadError{Path: c.Path, Err: readErr}
	}
	return "", false, &FileReadError{Path: c.Path, Err: readErr}
}

type committedChange struct {
	change   ContentChange
	original string
	existed  bool
}

// commit performs the two-phase write: prepare temp files for every
// Write in the target's own parent directory (guaranteeing the same
// filesystem for an atomic rename), then apply all changes, rolling
// back everything already applied if any step fails.
func commit(changes []ContentChange, vc lock.VerificationContext, existed map[string]bool, log Logger) (int, error) {
	tempPaths := make(map[string]string, len(changes))
	for _, c := range changes {
		if c.Kind != Write {
			continue
		}
		dir := filepath.Dir(c.Path)
		tmp, err := os.CreateTemp(dir, ".weaver-edit-*.tmp")
		if err != nil {
			cleanupTemps(tempPaths)
			return 0, fmt.Errorf("edit: prepare %s: %w", c.Path, err)
		}
		if _, err := tmp.WriteString(c.Content); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
			cleanupTemps(tempPaths)
			return 0, fmt.Errorf("edit: write staged content for %s: %w", c.Path, err)
		}
		if err := tmp.Close(); err != nil {
			_ = os.Remove(tmp.Name())
			cleanupTemps(tempPaths)
			return 0, fmt.Errorf("edit: close staged file for %s: %w", c.Path, err)
		}
		tempPaths[c.Path] = tmp.Name()
	}

	var done []committedChange
	for _, c := range changes {
		var applyErr error
		switch c.Kind {
		case Write:
			applyErr = os.Rename(tempPaths[c.Path], c.Path)
		case Delete:
			if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
				applyErr = err
			}
		}
		if applyErr != nil {
			rollback(done, log)
			cleanupTemps(remaining(tempPaths, done))
			return 0, fmt.Errorf("edit: commit %s: %w", c.Path, applyErr)
		}
		done = append(done, committedChange{change: c, original: vc[c.Path].Original, existed: existed[c.Path]})
	}

	return len(changes), nil
}

// remaining returns the temp files not yet consumed by a successful
// rename, so a mid-commit failure doesn't leak them.
func remaining(tempPaths map[string]string, done []committedChange) map[string]string {
	consumed := make(map[string]bool, len(done))
	for _, d := range done {
		if d.change.Kind == Write {
			consumed[d.change.Path] = true
		}
	}
	left := make(map[string]string)
	for path, tmp := range tempPaths {
		if !consumed[path] {
			left[path] = tmp
		}
	}
	return left
}

func cleanupTemps(tempPaths map[string]string) {
	for _, tmp := range tempPaths {
		_ = os.Remove(tmp)
	}
}

// rollback restores every already-applied change to its pre-transaction
// state, best-effort: failures are logged and never returned, so they
// cannot mask the commit-phase error that triggered the rollback.
func rollback(done []committedChange, log Logger) {
	for i := len(done) - 1; i >= 0; i-- {
		cc := done[i]
		switch cc.change.Kind {
		case Write:
			if cc.existed {
				if err := os.WriteFile(cc.change.Path, []byte(cc.original), 0o644); err != nil {
					log("rollback: restore %s: %v", cc.change.Path, err)
				}
			} else {
				if err := os.Remove(cc.change.Path); err != nil && !os.IsNotExist(err) {
					log("rollback: remove newly created %s: %v", cc.change.Path, err)
				}
			}
		case Delete:
			if err := os.WriteFile(cc.change.Path, []byte(cc.original), 0o644); err != nil {
				log("rollback: recreate deleted %s: %v", cc.change.Path, err)
			}
		}
	}
}
