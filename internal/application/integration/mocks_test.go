package integration

import (
	"context"
	"encoding/json"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// ---------------------------------------------------------------------------
// Commerce client
// ---------------------------------------------------------------------------

type commerceCall struct {
	Method   string
	Resource string
	Query    url.Values
	Payload  any
}

// Body decodes the payload through JSON, the way the platform sees it
func (c commerceCall) Body() map[string]any {
	raw, _ := json.Marshal(c.Payload)
	var out map[string]any
	_ = json.Unmarshal(raw, &out)
	return out
}

type commerceHandler func(call commerceCall) (any, error)

// fakeCommerce answers scripted method/resource pairs and records every
// call. Unscripted calls succeed with an empty body.
type fakeCommerce struct {
	mu       sync.Mutex
	handlers map[string]commerceHandler
	calls    []commerceCall
}

func newFakeCommerce() *fakeCommerce {
	return &fakeCommerce{handlers: make(map[string]commerceHandler)}
}

func (f *fakeCommerce) on(method, resource string, h commerceHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[method+" "+resource] = h
}

func (f *fakeCommerce) reply(method, resource string, body any) {
	f.on(method, resource, func(commerceCall) (any, error) { return body, nil })
}

func (f *fakeCommerce) fail(method, resource string, err error) {
	f.on(method, resource, func(commerceCall) (any, error) { return nil, err })
}

func (f *fakeCommerce) do(method, resource string, query url.Values, payload, out any) error {
	call := commerceCall{Method: method, Resource: resource, Query: query, Payload: payload}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	h, ok := f.handlers[method+" "+resource]
	f.mu.Unlock()
	if !ok {
		return nil
	}
	resp, err := h(call)
	if err != nil {
		return err
	}
	if out == nil || resp == nil {
		return nil
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (f *fakeCommerce) callsTo(method, resource string) []commerceCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []commerceCall
	for _, c := range f.calls {
		if c.Method == method && c.Resource == resource {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeCommerce) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeCommerce) Get(_ context.Context, resource string, query url.Values, out any) error {
	return f.do("GET", resource, query, nil, out)
}

func (f *fakeCommerce) Post(_ context.Context, resource string, payload any, out any) error {
	return f.do("POST", resource, nil, payload, out)
}

func (f *fakeCommerce) Put(_ context.Context, resource string, payload any, out any) error {
	return f.do("PUT", resource, nil, payload, out)
}

func (f *fakeCommerce) Delete(_ context.Context, resource string, out any) error {
	return f.do("DELETE", resource, nil, nil, out)
}

func httpError(status int, method, resource string, body any) *integration.HTTPError {
	return &integration.HTTPError{StatusCode: status, Method: method, Resource: resource, Body: body}
}

// ---------------------------------------------------------------------------
// Repositories
// ---------------------------------------------------------------------------

// MockStagingRepository is a mock implementation of StagingRepository
type MockStagingRepository[T integration.Staged] struct {
	mock.Mock
}

func (m *MockStagingRepository[T]) FindPage(ctx context.Context, criteria integration.Criteria) (integration.Page[T], error) {
	args := m.Called(ctx, criteria)
	return args.Get(0).(integration.Page[T]), args.Error(1)
}

func (m *MockStagingRepository[T]) Upsert(ctx context.Context, rows []T) (int, error) {
	args := m.Called(ctx, rows)
	return args.Int(0), args.Error(1)
}

// MockOutcomeRecorder is a mock implementation of OutcomeRecorder
type MockOutcomeRecorder struct {
	mock.Mock
}

func (m *MockOutcomeRecorder) RecordOutcomes(ctx context.Context, entity integration.EntityKind, outcomes []integration.Outcome) error {
	args := m.Called(ctx, entity, outcomes)
	return args.Error(0)
}

// MockLinkageRecorder is a mock implementation of LinkageRecorder
type MockLinkageRecorder struct {
	mock.Mock
}

func (m *MockLinkageRecorder) SetProductID(ctx context.Context, sku string, productID int64) error {
	args := m.Called(ctx, sku, productID)
	return args.Error(0)
}

func (m *MockLinkageRecorder) SetCompanyID(ctx context.Context, custID string, companyID int64) error {
	args := m.Called(ctx, custID, companyID)
	return args.Error(0)
}

func (m *MockLinkageRecorder) SetCustomerID(ctx context.Context, contactID string, customerID int64) error {
	args := m.Called(ctx, contactID, customerID)
	return args.Error(0)
}

// MockAttributeMappingRepository is a mock implementation of AttributeMappingRepository
type MockAttributeMappingRepository struct {
	mock.Mock
}

func (m *MockAttributeMappingRepository) FindByStatus(ctx context.Context, statuses ...integration.MappingStatus) ([]integration.AttributeMapping, error) {
	args := m.Called(ctx, statuses)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.AttributeMapping), args.Error(1)
}

func (m *MockAttributeMappingRepository) Count(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAttributeMappingRepository) SaveAll(ctx context.Context, mappings []integration.AttributeMapping) error {
	args := m.Called(ctx, mappings)
	return args.Error(0)
}

func (m *MockAttributeMappingRepository) MergeOptions(ctx context.Context, code string, options map[string]string) error {
	args := m.Called(ctx, code, options)
	return args.Error(0)
}

// MockRunLog is a mock implementation of RunLog
type MockRunLog struct {
	mock.Mock
}

func (m *MockRunLog) FindRunning(ctx context.Context, task string) (int64, error) {
	args := m.Called(ctx, task)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRunLog) Insert(ctx context.Context, run *integration.RunRecord) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunLog) Update(ctx context.Context, run *integration.RunRecord) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockRunLog) FindByID(ctx context.Context, id uuid.UUID) (*integration.RunRecord, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*integration.RunRecord), args.Error(1)
}

func (m *MockRunLog) FindStale(ctx context.Context, startedBefore time.Time) ([]integration.RunRecord, error) {
	args := m.Called(ctx, startedBefore)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]integration.RunRecord), args.Error(1)
}

func (m *MockRunLog) List(ctx context.Context, filter integration.RunFilter) ([]integration.RunRecord, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]integration.RunRecord), args.Get(1).(int64), args.Error(2)
}

// MockRunLease is a mock implementation of RunLease
type MockRunLease struct {
	mock.Mock
}

func (m *MockRunLease) Acquire(ctx context.Context, task string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, task, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockRunLease) Release(ctx context.Context, task string) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

// MockSourceClient is a mock implementation of SourceClient
type MockSourceClient struct {
	mock.Mock
}

func (m *MockSourceClient) GetPage(ctx context.Context, entity integration.SourceEntity, skip, top int, filter string) (integration.SourcePage, error) {
	args := m.Called(ctx, entity, skip, top, filter)
	return args.Get(0).(integration.SourcePage), args.Error(1)
}

func (m *MockSourceClient) MarkProcessed(ctx context.Context, table string) error {
	args := m.Called(ctx, table)
	return args.Error(0)
}

// MockActionInvoker is a mock implementation of ActionInvoker
type MockActionInvoker struct {
	mock.Mock
}

func (m *MockActionInvoker) Invoke(ctx context.Context, action string, params map[string]any) (integration.ActionResult, error) {
	args := m.Called(ctx, action, params)
	return args.Get(0).(integration.ActionResult), args.Error(1)
}

// ---------------------------------------------------------------------------
// In-memory staging
// ---------------------------------------------------------------------------

// memoryInventory is a staging table whose statuses follow the recorded
// outcomes, so page 1 of the waiting records moves as a run progresses.
type memoryInventory struct {
	mu       sync.Mutex
	rows     []integration.ProductInventory
	recorded [][]integration.Outcome
}

func (m *memoryInventory) FindPage(_ context.Context, criteria integration.Criteria) (integration.Page[integration.ProductInventory], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var statuses []string
	for _, g := range criteria.Groups {
		for _, f := range g {
			if f.Field == "sync_status" {
				statuses = f.Values
			}
		}
	}
	var matched []integration.ProductInventory
	for _, r := range m.rows {
		if len(statuses) > 0 && !slices.Contains(statuses, string(r.Status)) {
			continue
		}
		if !criteria.SyncedBefore.IsZero() && r.SyncedAt != nil && !r.SyncedAt.Before(criteria.SyncedBefore) {
			continue
		}
		matched = append(matched, r)
	}
	page := integration.Page[integration.ProductInventory]{TotalCount: int64(len(matched))}
	start := min(criteria.Offset(), len(matched))
	end := min(start+criteria.PageSize, len(matched))
	page.Items = append(page.Items, matched[start:end]...)
	return page, nil
}

func (m *memoryInventory) RecordOutcomes(_ context.Context, _ integration.EntityKind, outcomes []integration.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recorded = append(m.recorded, outcomes)
	for _, o := range outcomes {
		for i := range m.rows {
			if m.rows[i].ID == o.RecordID {
				syncedAt := o.SyncedAt
				if syncedAt.IsZero() {
					syncedAt = time.Now()
				}
				m.rows[i].Status = o.Status
				m.rows[i].Notes = o.Notes
				m.rows[i].SyncedAt = &syncedAt
			}
		}
	}
	return nil
}

func newMemoryInventory(n int) *memoryInventory {
	m := &memoryInventory{}
	for i := 1; i <= n; i++ {
		m.rows = append(m.rows, inventoryRecord(uint64(i), "SKU-"+uuid.NewString()[:8], "PLANT1", "5"))
	}
	return m
}

// ---------------------------------------------------------------------------
// Builders
// ---------------------------------------------------------------------------

func int64Ptr(v int64) *int64 { return &v }

func mustRequiredFields() *RequiredFields {
	rf, err := LoadRequiredFields()
	if err != nil {
		panic(err)
	}
	return rf
}
