package integration

import (
	"context"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Run log
// ---------------------------------------------------------------------------

// RunFilter selects runs for the history query.
type RunFilter struct {
	Task     string
	Status   RunStatus
	Page     int
	PageSize int
}

// RunLog persists RunRecords.
type RunLog interface {
	// FindRunning counts processing runs of task
	FindRunning(ctx context.Context, task string) (int64, error)
	// Insert stores a new processing run. It returns a *RunConflictError
	// when the store rejects a second processing run for the task.
	Insert(ctx context.Context, run *RunRecord) error
	// Update persists status, end time and notes
	Update(ctx context.Context, run *RunRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*RunRecord, error)
	// FindStale returns processing runs started before the cutoff
	FindStale(ctx context.Context, startedBefore time.Time) ([]RunRecord, error)
	List(ctx context.Context, filter RunFilter) ([]RunRecord, int64, error)
}

// RunLease is a cross-process lease on a task name held for the short
// window between the running check and the insert.
type RunLease interface {
	Acquire(ctx context.Context, task string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, task string) error
}

// ---------------------------------------------------------------------------
// Staging store
// ---------------------------------------------------------------------------

// StagingReader reads pages of one staging table.
type StagingReader[T Staged] interface {
	FindPage(ctx context.Context, criteria Criteria) (Page[T], error)
}

// StagingRepository reads and writes one staging table. Upsert matches
// rows on their natural key and resets them to status N.
type StagingRepository[T Staged] interface {
	StagingReader[T]
	Upsert(ctx context.Context, rows []T) (int, error)
}

// OutcomeRecorder writes apply outcomes back to staging in one batch.
type OutcomeRecorder interface {
	RecordOutcomes(ctx context.Context, entity EntityKind, outcomes []Outcome) error
}

// LinkageRecorder stores commerce ids learned while applying.
type LinkageRecorder interface {
	SetProductID(ctx context.Context, sku string, productID int64) error
	SetCompanyID(ctx context.Context, custID string, companyID int64) error
	SetCustomerID(ctx context.Context, contactID string, customerID int64) error
}

// AttributeMappingRepository persists attribute mappings and option caches.
type AttributeMappingRepository interface {
	FindByStatus(ctx context.Context, statuses ...MappingStatus) ([]AttributeMapping, error)
	Count(ctx context.Context) (int64, error)
	// SaveAll upserts mappings by attribute code
	SaveAll(ctx context.Context, mappings []AttributeMapping) error
	// MergeOptions adds option ids to the cache of one attribute
	MergeOptions(ctx context.Context, code string, options map[string]string) error
}

// ---------------------------------------------------------------------------
// Commerce platform
// ---------------------------------------------------------------------------

// CommerceClient is the credentialed REST client of the commerce platform.
// Resources are relative to the REST root, e.g. "products". 4xx and 5xx
// responses are returned as *HTTPError.
type CommerceClient interface {
	Get(ctx context.Context, resource string, query url.Values, out any) error
	Post(ctx context.Context, resource string, payload any, out any) error
	Put(ctx context.Context, resource string, payload any, out any) error
	Delete(ctx context.Context, resource string, out any) error
}

// ---------------------------------------------------------------------------
// ERP source
// ---------------------------------------------------------------------------

// SourceEntity describes one ERP export view.
type SourceEntity struct {
	Name string
	// Resource is the OData path relative to the company root
	Resource string
	// Table is the ERP staging table drained by the view
	Table string
	// Prefix is stripped from field keys
	Prefix  string
	OrderBy string
}

// SourcePage is one OData page.
type SourcePage struct {
	Rows       []map[string]any
	TotalCount int64
}

// SourceClient reads the ERP export views.
type SourceClient interface {
	GetPage(ctx context.Context, entity SourceEntity, skip, top int, filter string) (SourcePage, error)
	// MarkProcessed tells the ERP the staging table was fully drained
	MarkProcessed(ctx context.Context, table string) error
}

// ExtractArchive stores raw ERP pages for audit.
type ExtractArchive interface {
	ArchivePage(ctx context.Context, task string, runID uuid.UUID, page int, rows []map[string]any) error
}

// ---------------------------------------------------------------------------
// Event relay
// ---------------------------------------------------------------------------

// ActionResult is the status and body returned by a downstream action.
type ActionResult struct {
	StatusCode int
	Body       any
}

// ActionInvoker runs a named downstream action.
type ActionInvoker interface {
	Invoke(ctx context.Context, action string, params map[string]any) (ActionResult, error)
}
