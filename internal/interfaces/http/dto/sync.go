package dto

import (
	"time"

	"github.com/erp/kksync/internal/domain/integration"
)

// TaskResponse describes one configured task
type TaskResponse struct {
	Name        string `json:"name"`
	Direction   string `json:"direction"`
	Entity      string `json:"entity"`
	Description string `json:"description"`
	PageSize    int    `json:"page_size"`
	Ceiling     int    `json:"ceiling,omitempty"`
}

// NewTaskResponse maps a task definition
func NewTaskResponse(def integration.TaskDefinition) TaskResponse {
	return TaskResponse{
		Name:        def.Name,
		Direction:   string(def.Direction),
		Entity:      string(def.Entity),
		Description: def.Description,
		PageSize:    def.PageSize,
		Ceiling:     def.Ceiling,
	}
}

// TaskRunResponse is the answer of a completed task run
type TaskRunResponse struct {
	Task  string `json:"task"`
	Notes any    `json:"notes"`
}

// RunListRequest filters the run history
type RunListRequest struct {
	ListRequest
	Task   string `form:"task" binding:"omitempty,max=64"`
	Status string `form:"status" binding:"omitempty,oneof=processing warning complete failed"`
}

// Filter converts the request into a run filter
func (r RunListRequest) Filter() integration.RunFilter {
	page, size := r.Page, r.PageSize
	if page < 1 {
		page = DefaultListRequest().Page
	}
	if size < 1 {
		size = DefaultListRequest().PageSize
	}
	return integration.RunFilter{
		Task:     r.Task,
		Status:   integration.RunStatus(r.Status),
		Page:     page,
		PageSize: size,
	}
}

// RunResponse is one run log entry
type RunResponse struct {
	ID        string     `json:"id"`
	Task      string     `json:"task"`
	Status    string     `json:"status"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Duration  string     `json:"duration,omitempty"`
	Notes     string     `json:"notes"`
}

// NewRunResponse maps a run record
func NewRunResponse(r integration.RunRecord) RunResponse {
	resp := RunResponse{
		ID:        r.ID.String(),
		Task:      r.Task,
		Status:    string(r.Status),
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		Notes:     r.Notes,
	}
	if r.EndedAt != nil {
		resp.Duration = r.Duration().Round(time.Millisecond).String()
	}
	return resp
}

// NewRunResponses maps a page of run records
func NewRunResponses(runs []integration.RunRecord) []RunResponse {
	out := make([]RunResponse, len(runs))
	for i, r := range runs {
		out[i] = NewRunResponse(r)
	}
	return out
}

// ReconcileResponse reports a stale-run sweep
type ReconcileResponse struct {
	Reconciled int `json:"reconciled"`
}

// HealthResponse reports the service health
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Uptime   string `json:"uptime"`
}
