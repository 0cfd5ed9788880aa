package integration

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// RunRecord Entity
// ---------------------------------------------------------------------------

// RunRecord is the process-control log row of one task execution.
// At most one RunRecord per task may be processing at a time.
type RunRecord struct {
	ID uuid.UUID
	// Task names the pipeline, e.g. "prod_acstg_to_ac"
	Task      string
	Status    RunStatus
	StartedAt time.Time
	EndedAt   *time.Time
	Notes     string
}

// NewRunRecord creates a processing run for task
func NewRunRecord(task, notes string) (*RunRecord, error) {
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, ErrRunInvalidTask
	}
	return &RunRecord{
		ID:        uuid.New(),
		Task:      task,
		Status:    RunStatusProcessing,
		StartedAt: time.Now(),
		Notes:     notes,
	}, nil
}

// Finalize moves the run to a terminal status. Processing is not a valid
// target and a finalized run cannot be finalized again.
func (r *RunRecord) Finalize(status RunStatus, notes string) error {
	if r.Status.IsTerminal() {
		return ErrRunAlreadyFinalized
	}
	if !status.IsTerminal() {
		return ErrRunInvalidStatus
	}
	now := time.Now()
	r.Status = status
	r.EndedAt = &now
	r.Notes = notes
	return nil
}

// Complete finalizes the run as complete
func (r *RunRecord) Complete(notes string) error {
	return r.Finalize(RunStatusComplete, notes)
}

// Fail finalizes the run as failed
func (r *RunRecord) Fail(notes string) error {
	return r.Finalize(RunStatusFailed, notes)
}

// IsProcessing returns true while the run holds the task
func (r *RunRecord) IsProcessing() bool {
	return r.Status == RunStatusProcessing
}

// IsStale reports a processing run that started before now-ttl.
func (r *RunRecord) IsStale(now time.Time, ttl time.Duration) bool {
	return r.IsProcessing() && ttl > 0 && r.StartedAt.Before(now.Add(-ttl))
}

// Duration returns the elapsed time of a finalized run, zero otherwise
func (r *RunRecord) Duration() time.Duration {
	if r.EndedAt == nil {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}
