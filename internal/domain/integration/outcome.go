package integration

import (
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Outcome
// ---------------------------------------------------------------------------

// Outcome is the result of one apply attempt for one staging record.
// The orchestrator writes outcomes back to staging in a single batched
// update per page.
type Outcome struct {
	RecordID uint64
	Status   SyncStatus
	Notes    string
	SyncedAt time.Time
}

// NewOutcome creates an outcome stamped with the current time
func NewOutcome(recordID uint64, status SyncStatus, notes string) Outcome {
	return Outcome{
		RecordID: recordID,
		Status:   status,
		Notes:    notes,
		SyncedAt: time.Now(),
	}
}

// OutcomeFromError converts an apply error into an outcome.
//
//	ValidationError -> F with the missing field list
//	ConflictError   -> O with the serialized destination body
//	ClientError     -> F with the serialized destination body
//	anything else   -> E
func OutcomeFromError(recordID uint64, err error) Outcome {
	return DeltaFromError(err).Outcome(recordID)
}

// ---------------------------------------------------------------------------
// OutcomeDelta
// ---------------------------------------------------------------------------

// OutcomeDelta is the contribution of one linkage step to a record outcome.
// Deltas are folded with Fold; steps never mutate a shared outcome.
type OutcomeDelta struct {
	Status SyncStatus
	Note   string
}

// Ok returns a successful delta
func Ok(note string) OutcomeDelta {
	return OutcomeDelta{Status: SyncStatusOk, Note: note}
}

// Failed returns a terminal failure delta
func Failed(note string) OutcomeDelta {
	return OutcomeDelta{Status: SyncStatusFailed, Note: note}
}

// DeltaFromError classifies err and returns the matching delta.
func DeltaFromError(err error) OutcomeDelta {
	classified := Classify(err)
	switch e := classified.(type) {
	case *ValidationError:
		return OutcomeDelta{Status: SyncStatusFailed, Note: e.Error()}
	case *ConflictError:
		return OutcomeDelta{Status: SyncStatusOk, Note: e.Cause.BodyString()}
	case *ClientError:
		return OutcomeDelta{Status: SyncStatusFailed, Note: e.Cause.BodyString()}
	}
	return OutcomeDelta{Status: SyncStatusError, Note: classified.Error()}
}

// Outcome turns the delta into an outcome for recordID
func (d OutcomeDelta) Outcome(recordID uint64) Outcome {
	return NewOutcome(recordID, d.Status, d.Note)
}

// Fold reduces deltas to the worst status. Notes are joined in step order.
// An empty list folds to Ok with no note.
func Fold(deltas ...OutcomeDelta) OutcomeDelta {
	result := OutcomeDelta{Status: SyncStatusOk}
	notes := make([]string, 0, len(deltas))
	for _, d := range deltas {
		if d.Status.severity() > result.Status.severity() {
			result.Status = d.Status
		}
		if d.Note != "" {
			notes = append(notes, d.Note)
		}
	}
	result.Note = strings.Join(notes, " ")
	return result
}
