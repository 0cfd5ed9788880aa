package integration

// ---------------------------------------------------------------------------
// SyncStatus
// ---------------------------------------------------------------------------

// SyncStatus is the synchronization state of a staging record.
type SyncStatus string

const (
	// SyncStatusNew marks a record loaded from the ERP and not yet applied
	SyncStatusNew SyncStatus = "N"
	// SyncStatusOk marks a record that converged in the commerce platform
	SyncStatusOk SyncStatus = "O"
	// SyncStatusFailed marks a record rejected by validation or the destination
	SyncStatusFailed SyncStatus = "F"
	// SyncStatusError marks a record whose apply hit an infrastructure error
	SyncStatusError SyncStatus = "E"
	// SyncStatusWarning is only produced by legacy tooling; ingestion still
	// reads it when deduplicating against existing rows.
	SyncStatusWarning SyncStatus = "W"
)

// IsValid returns true if the status is a known value
func (s SyncStatus) IsValid() bool {
	switch s {
	case SyncStatusNew, SyncStatusOk, SyncStatusFailed, SyncStatusError, SyncStatusWarning:
		return true
	}
	return false
}

// IsTerminal reports whether a forward sync will ever select the record again
// without operator intervention.
func (s SyncStatus) IsTerminal() bool {
	return s == SyncStatusOk || s == SyncStatusFailed
}

// String returns the string representation
func (s SyncStatus) String() string {
	return string(s)
}

// severity orders statuses for the worst-of reducer.
func (s SyncStatus) severity() int {
	switch s {
	case SyncStatusFailed:
		return 3
	case SyncStatusError:
		return 2
	case SyncStatusOk:
		return 1
	}
	return 0
}

// ForwardSyncStatuses are the statuses a forward sync selects. E rows are
// retried by the next run; a run never selects rows it synced itself.
var ForwardSyncStatuses = []SyncStatus{SyncStatusNew, SyncStatusError}

// IngestionLookupStatuses are the statuses ingestion reads when matching
// incoming ERP rows against existing staging rows.
var IngestionLookupStatuses = []SyncStatus{SyncStatusNew, SyncStatusOk, SyncStatusFailed, SyncStatusWarning}

// ---------------------------------------------------------------------------
// RunStatus
// ---------------------------------------------------------------------------

// RunStatus is the state of a RunRecord.
type RunStatus string

const (
	RunStatusProcessing RunStatus = "processing"
	RunStatusWarning    RunStatus = "warning"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// IsValid returns true if the status is a known value
func (s RunStatus) IsValid() bool {
	switch s {
	case RunStatusProcessing, RunStatusWarning, RunStatusComplete, RunStatusFailed:
		return true
	}
	return false
}

// IsTerminal returns true for every status except processing
func (s RunStatus) IsTerminal() bool {
	return s.IsValid() && s != RunStatusProcessing
}

// String returns the string representation
func (s RunStatus) String() string {
	return string(s)
}
