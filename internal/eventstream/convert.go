package eventstream

import (
	"github.com/weaverlang/weaver/internal/edit"
	"github.com/weaverlang/weaver/internal/health"
)

// FromHealthSnapshot converts a health.Snapshot into a
// HealthTransition Event.
func FromHealthSnapshot(snap health.Snapshot) Event {
	return Event{
		Kind:      HealthTransition,
		Status:    string(snap.Status),
		PID:       snap.PID,
		Timestamp: snap.Timestamp,
	}
}

var outcomeNames = map[edit.OutcomeKind]string{
	edit.Committed:           "Committed",
	edit.SyntacticLockFailed: "SyntacticLockFailed",
	edit.SemanticLockFailed:  "SemanticLockFailed",
	edit.NoChanges:           "NoChanges",
}

// FromTransactionOutcome converts an edit.Outcome, tagged with corrID,
// into a TransactionSummary Event.
func FromTransactionOutcome(corrID string, outcome edit.Outcome) Event {
	return Event{
		Kind:          TransactionSummary,
		CorrID:        corrID,
		Outcome:       outcomeNames[outcome.Kind],
		FilesModified: outcome.FilesModified,
	}
}
