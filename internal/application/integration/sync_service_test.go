package integration

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type syncFixture struct {
	commerce *fakeCommerce
	staging  *memoryInventory
	runs     *MockRunLog
	service  *SyncService
}

func newSyncFixture(records, pageSize, ceiling int) *syncFixture {
	f := &syncFixture{
		commerce: newFakeCommerce(),
		staging:  newMemoryInventory(records),
		runs:     new(MockRunLog),
	}
	tasks := integration.DefaultTasks()
	def := tasks[integration.TaskInventoryToCommerce]
	def.PageSize = pageSize
	def.Ceiling = ceiling
	tasks[def.Name] = def

	pipeline := NewStagingPipeline[integration.ProductInventory](integration.EntityInventory, f.staging, NewInventoryEngine(f.commerce, zap.NewNop()))
	control := NewProcessControl(f.runs, zap.NewNop())
	f.service = NewSyncService(tasks, []Pipeline{pipeline}, f.staging, control, nil, nil, zap.NewNop())
	return f
}

func (f *syncFixture) expectRun(status integration.RunStatus, notes string) {
	f.runs.On("FindRunning", mock.Anything, integration.TaskInventoryToCommerce).Return(int64(0), nil)
	f.runs.On("Insert", mock.Anything, mock.Anything).Return(nil)
	f.runs.On("Update", mock.Anything, mock.MatchedBy(func(r *integration.RunRecord) bool {
		return r.Status == status && (notes == "" || r.Notes == notes)
	})).Return(nil).Once()
}

func TestSyncService_DrainsStagingPageByPage(t *testing.T) {
	f := newSyncFixture(25, 10, 0)
	want := "Total 25 inventories needs to be processed. 25 inventories are processed in this batch."
	f.expectRun(integration.RunStatusComplete, want)

	result, err := f.service.Run(context.Background(), integration.TaskInventoryToCommerce)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, want, result.Body)

	calls := f.commerce.callsTo("POST", "inventory/source-items")
	require.Len(t, calls, 3)
	assert.Len(t, calls[0].Body()["sourceItems"], 10)
	assert.Len(t, calls[1].Body()["sourceItems"], 10)
	assert.Len(t, calls[2].Body()["sourceItems"], 5)

	require.Len(t, f.staging.recorded, 3)
	for _, row := range f.staging.rows {
		assert.Equal(t, integration.SyncStatusOk, row.Status)
		assert.Equal(t, noteSourceItemUpdated, row.Notes)
	}
	f.runs.AssertExpectations(t)
}

func TestSyncService_StopsAfterCeiling(t *testing.T) {
	f := newSyncFixture(25, 10, 15)
	f.expectRun(integration.RunStatusComplete,
		"Total 25 inventories needs to be processed. 20 inventories are processed in this batch.")

	result, err := f.service.Run(context.Background(), integration.TaskInventoryToCommerce)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Len(t, f.commerce.callsTo("POST", "inventory/source-items"), 2)

	waiting := 0
	for _, row := range f.staging.rows {
		if row.Status == integration.SyncStatusNew {
			waiting++
		}
	}
	assert.Equal(t, 5, waiting)
}

func TestSyncService_NothingToProcess(t *testing.T) {
	f := newSyncFixture(0, 10, 0)

	result, err := f.service.Run(context.Background(), integration.TaskInventoryToCommerce)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, noteNoData, result.Body)
	f.runs.AssertNotCalled(t, "FindRunning", mock.Anything, mock.Anything)
	f.runs.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	assert.Zero(t, f.commerce.callCount())
}

func TestSyncService_ConcurrentRunConflicts(t *testing.T) {
	f := newSyncFixture(5, 10, 0)
	f.runs.On("FindRunning", mock.Anything, integration.TaskInventoryToCommerce).Return(int64(1), nil)

	result, err := f.service.Run(context.Background(), integration.TaskInventoryToCommerce)

	var conflict *integration.RunConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
	assert.Equal(t, map[string]string{
		"error": "Warning: There are 1 inventory sync from AC staging to AC process running. Please check the log.",
	}, result.Body)
	assert.Zero(t, f.commerce.callCount())
	for _, row := range f.staging.rows {
		assert.Equal(t, integration.SyncStatusNew, row.Status)
	}
}

func TestSyncService_RecordFailuresStayIsolated(t *testing.T) {
	f := newSyncFixture(3, 10, 0)
	f.staging.rows[1].SKU = ""
	f.expectRun(integration.RunStatusComplete, "")

	result, err := f.service.Run(context.Background(), integration.TaskInventoryToCommerce)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, integration.SyncStatusOk, f.staging.rows[0].Status)
	assert.Equal(t, integration.SyncStatusFailed, f.staging.rows[1].Status)
	assert.Equal(t, integration.SyncStatusOk, f.staging.rows[2].Status)
}

func TestSyncService_DestinationOutageMarksRecordsErrored(t *testing.T) {
	f := newSyncFixture(4, 10, 0)
	f.commerce.fail("POST", "inventory/source-items", httpError(503, "POST", "inventory/source-items", "maintenance"))
	f.expectRun(integration.RunStatusComplete, "")

	result, err := f.service.Run(context.Background(), integration.TaskInventoryToCommerce)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	for _, row := range f.staging.rows {
		assert.Equal(t, integration.SyncStatusError, row.Status)
	}
}

func TestSyncService_ErroredRecordsRetryOnNextRun(t *testing.T) {
	f := newSyncFixture(25, 10, 0)
	f.commerce.fail("POST", "inventory/source-items", httpError(503, "POST", "inventory/source-items", "maintenance"))
	f.expectRun(integration.RunStatusComplete,
		"Total 25 inventories needs to be processed. 25 inventories are processed in this batch.")

	result, err := f.service.Run(context.Background(), integration.TaskInventoryToCommerce)

	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	// Rows errored by this run are not read again within it
	assert.Len(t, f.commerce.callsTo("POST", "inventory/source-items"), 3)
	for _, row := range f.staging.rows {
		assert.Equal(t, integration.SyncStatusError, row.Status)
	}

	f.commerce.reply("POST", "inventory/source-items", []any{})
	f.runs.On("Update", mock.Anything, mock.MatchedBy(func(r *integration.RunRecord) bool {
		return r.Status == integration.RunStatusComplete
	})).Return(nil).Once()

	result, err = f.service.Run(context.Background(), integration.TaskInventoryToCommerce)

	require.NoError(t, err)
	assert.Equal(t, "Total 25 inventories needs to be processed. 25 inventories are processed in this batch.", result.Body)
	assert.Len(t, f.commerce.callsTo("POST", "inventory/source-items"), 6)
	for _, row := range f.staging.rows {
		assert.Equal(t, integration.SyncStatusOk, row.Status)
	}
	f.runs.AssertExpectations(t)
}

type failingRecorder struct{}

func (failingRecorder) RecordOutcomes(context.Context, integration.EntityKind, []integration.Outcome) error {
	return errors.New("deadlock detected")
}

func TestSyncService_OutcomeWriteFailureFailsRun(t *testing.T) {
	f := newSyncFixture(5, 10, 0)
	f.expectRun(integration.RunStatusFailed, "")
	pipeline := NewStagingPipeline[integration.ProductInventory](integration.EntityInventory, f.staging, NewInventoryEngine(f.commerce, nil))
	service := NewSyncService(integration.DefaultTasks(), []Pipeline{pipeline}, failingRecorder{}, NewProcessControl(f.runs, nil), nil, nil, nil)

	result, err := service.Run(context.Background(), integration.TaskInventoryToCommerce)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
	assert.Equal(t, serverErrorBody, result.Body)
	f.runs.AssertExpectations(t)
}

func TestSyncService_UnknownTasks(t *testing.T) {
	f := newSyncFixture(0, 10, 0)

	for _, task := range []string{"nope", integration.TaskProductToCommerce, integration.TaskProductToStaging} {
		result, err := f.service.Run(context.Background(), task)
		assert.ErrorIs(t, err, integration.ErrUnknownTask, task)
		assert.Equal(t, http.StatusNotFound, result.StatusCode, task)
	}
}

func TestSyncService_TasksAreSorted(t *testing.T) {
	f := newSyncFixture(0, 10, 0)

	tasks := f.service.Tasks()

	require.Len(t, tasks, len(integration.DefaultTasks()))
	for i := 1; i < len(tasks); i++ {
		assert.Less(t, tasks[i-1].Name, tasks[i].Name)
	}
	def, ok := f.service.Task(integration.TaskInventoryToCommerce)
	assert.True(t, ok)
	assert.Equal(t, 10, def.PageSize)
}
