package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	appsync "github.com/erp/kksync/internal/application/integration"
	"github.com/erp/kksync/internal/domain/integration"
	"github.com/erp/kksync/internal/infrastructure/logger"
	"github.com/erp/kksync/internal/interfaces/http/dto"
	"github.com/erp/kksync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// TaskRunner runs configured tasks
type TaskRunner interface {
	Run(ctx context.Context, task string) (appsync.RunResult, error)
	Tasks() []integration.TaskDefinition
}

// RunHistory reads and repairs the run log
type RunHistory interface {
	History(ctx context.Context, filter integration.RunFilter) ([]integration.RunRecord, int64, error)
	ReconcileStale(ctx context.Context) (int, error)
}

// SyncHandler handles task and run log endpoints
type SyncHandler struct {
	BaseHandler
	runner  TaskRunner
	history RunHistory
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(runner TaskRunner, history RunHistory) *SyncHandler {
	return &SyncHandler{runner: runner, history: history}
}

// RunTask handles POST /sync/tasks/:task/run. The task runs synchronously
// and its notes are returned as data.
func (h *SyncHandler) RunTask(c *gin.Context) {
	task := c.Param("task")
	result, err := h.runner.Run(c.Request.Context(), task)
	if err == nil && result.StatusCode < http.StatusBadRequest {
		h.Success(c, dto.TaskRunResponse{Task: task, Notes: result.Body})
		return
	}

	status := result.StatusCode
	if status == 0 {
		status = http.StatusInternalServerError
	}
	code := dto.CodeForStatus(status)
	var conflict *integration.RunConflictError
	if errors.As(err, &conflict) {
		code = dto.ErrCodeRunConflict
	}
	if err != nil {
		logger.L(c.Request.Context()).Warn("Task run failed", zap.String("task", task), zap.Error(err))
	}
	h.Error(c, status, code, resultMessage(result.Body))
}

// resultMessage extracts the message of a failed run body
func resultMessage(body any) string {
	switch b := body.(type) {
	case string:
		return b
	case map[string]string:
		return b["error"]
	case map[string]any:
		if msg, ok := b["error"].(string); ok {
			return msg
		}
	case nil:
		return "server error"
	}
	return fmt.Sprint(body)
}

// ListTasks handles GET /sync/tasks
func (h *SyncHandler) ListTasks(c *gin.Context) {
	defs := h.runner.Tasks()
	out := make([]dto.TaskResponse, len(defs))
	for i, def := range defs {
		out[i] = dto.NewTaskResponse(def)
	}
	h.Success(c, out)
}

// ListRuns handles GET /sync/runs
func (h *SyncHandler) ListRuns(c *gin.Context) {
	var req dto.RunListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		middleware.HandleValidationError(c, err)
		return
	}

	filter := req.Filter()
	runs, total, err := h.history.History(c.Request.Context(), filter)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.SuccessWithMeta(c, dto.NewRunResponses(runs), total, filter.Page, filter.PageSize)
}

// ReconcileRuns handles POST /sync/runs/reconcile
func (h *SyncHandler) ReconcileRuns(c *gin.Context) {
	n, err := h.history.ReconcileStale(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, dto.ReconcileResponse{Reconciled: n})
}
