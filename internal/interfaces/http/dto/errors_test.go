package dto

import (
	"net/http"
	"testing"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeUnknown, http.StatusInternalServerError},
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeUnauthorized, http.StatusUnauthorized},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeTokenExpired, http.StatusUnauthorized},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeConflict, http.StatusConflict},
		{ErrCodeRunConflict, http.StatusInternalServerError},
		{ErrCodeUpstream, http.StatusBadGateway},
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrCodeTooLarge, http.StatusRequestEntityTooLarge},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		// Unknown code should return 500
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestCodeForStatus(t *testing.T) {
	for _, status := range []int{400, 401, 403, 404, 409, 413, 429, 502} {
		code := CodeForStatus(status)
		assert.Equal(t, status, GetHTTPStatus(code), code)
	}
	assert.Equal(t, ErrCodeInternal, CodeForStatus(503))
	assert.Equal(t, ErrCodeUnknown, CodeForStatus(418))
}

func TestNormalizeErrorCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"NOT_FOUND", ErrCodeNotFound},
		{"INVALID_INPUT", ErrCodeInvalidInput},
		{"RUN_CONFLICT", ErrCodeRunConflict},
		{"INTERNAL_ERROR", ErrCodeInternal},
		{ErrCodeNotFound, ErrCodeNotFound},
		{"CUSTOM_ERROR", "CUSTOM_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeErrorCode(tt.input))
		})
	}
}

func TestErrorCodesAreMapped(t *testing.T) {
	for code := range ErrorCodeHTTPStatus {
		assert.Contains(t, code, "ERR_")
	}
	for _, code := range LegacyErrorCodeMapping {
		_, ok := ErrorCodeHTTPStatus[code]
		assert.True(t, ok, "legacy target %s has no status", code)
	}
}

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse("NOT_FOUND", "Resource not found")

	assert.False(t, resp.Success)
	assert.Nil(t, resp.Data)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeNotFound, resp.Error.Code)
	assert.Equal(t, "Resource not found", resp.Error.Message)
	assert.NotZero(t, resp.Error.Timestamp)
}

func TestNewValidationErrorResponse(t *testing.T) {
	details := []ValidationDetail{
		{Field: "page_size", Message: "must be at most 100"},
		{Field: "status", Message: "must be one of processing warning complete failed"},
	}

	resp := NewValidationErrorResponse("Validation failed", "req-789", details)

	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeValidation, resp.Error.Code)
	assert.Equal(t, "req-789", resp.Error.RequestID)
	assert.Len(t, resp.Error.Details, 2)
}

func TestNewSuccessResponseWithMeta(t *testing.T) {
	resp := NewSuccessResponseWithMeta([]int{1, 2}, 41, 2, 20)

	assert.True(t, resp.Success)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, 3, resp.Meta.TotalPages)

	empty := NewSuccessResponseWithMeta(nil, 5, 1, 0)
	assert.Zero(t, empty.Meta.TotalPages)
}

func TestRunListRequestFilter(t *testing.T) {
	assert.Equal(t, integration.RunFilter{Page: 1, PageSize: 20}, RunListRequest{}.Filter())

	req := RunListRequest{ListRequest: ListRequest{Page: 3, PageSize: 50}, Task: "prod_acstg_to_ac", Status: "failed"}
	assert.Equal(t, integration.RunFilter{
		Task: "prod_acstg_to_ac", Status: integration.RunStatusFailed, Page: 3, PageSize: 50,
	}, req.Filter())
}

func TestNewRunResponse(t *testing.T) {
	started := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	ended := started.Add(90 * time.Second)
	run := integration.RunRecord{
		ID:        uuid.MustParse("7d9f1a5e-2c1b-4d6a-9a53-0b3d8f4e2c11"),
		Task:      "stock_acstg_to_ac",
		Status:    integration.RunStatusComplete,
		StartedAt: started,
		EndedAt:   &ended,
		Notes:     "done",
	}

	resp := NewRunResponse(run)

	assert.Equal(t, "7d9f1a5e-2c1b-4d6a-9a53-0b3d8f4e2c11", resp.ID)
	assert.Equal(t, "complete", resp.Status)
	assert.Equal(t, "1m30s", resp.Duration)

	run.EndedAt = nil
	assert.Empty(t, NewRunResponse(run).Duration)
}
