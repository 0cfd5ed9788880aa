package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/erp/kksync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupValidator(t *testing.T) {
	// Should not panic
	SetupValidator()

	v, ok := binding.Validator.Engine().(*validator.Validate)
	assert.True(t, ok)
	assert.NotNil(t, v)
}

func TestFormatValidationErrors(t *testing.T) {
	type runQuery struct {
		PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
		Status   string `form:"status" binding:"omitempty,oneof=processing warning complete failed"`
	}

	SetupValidator()

	router := gin.New()
	router.GET("/runs", func(c *gin.Context) {
		var req runQuery
		if err := c.ShouldBindQuery(&req); err != nil {
			HandleValidationError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	})

	t.Run("returns field details for invalid query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/runs?page_size=500&status=stuck", nil)
		req.Header.Set(RequestIDHeader, "req-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)

		var resp dto.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		assert.Equal(t, "Request validation failed", resp.Error.Message)
		assert.Equal(t, "req-1", resp.Error.RequestID)
		require.Len(t, resp.Error.Details, 2)
		assert.Equal(t, "page_size", resp.Error.Details[0].Field)
		assert.Equal(t, "Must be at most 100", resp.Error.Details[0].Message)
		assert.Equal(t, "status", resp.Error.Details[1].Field)
		assert.Equal(t, "Must be one of: processing warning complete failed", resp.Error.Details[1].Message)
	})

	t.Run("returns success for valid query", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/runs?page_size=50&status=failed", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestGetValidationMessage(t *testing.T) {
	type input struct {
		Required string `validate:"required"`
		Min      string `validate:"min=5"`
		Max      string `validate:"max=3"`
		Len      string `validate:"len=5"`
		OneOf    string `validate:"oneof=a b c"`
		GTE      int    `validate:"gte=10"`
	}

	v := validator.New()
	err := v.Struct(input{Min: "ab", Max: "abcdef", Len: "ab", OneOf: "d", GTE: 1})
	require.Error(t, err)

	got := map[string]string{}
	for _, e := range err.(validator.ValidationErrors) {
		got[e.Field()] = getValidationMessage(e)
	}

	assert.Equal(t, map[string]string{
		"Required": "This field is required",
		"Min":      "Must be at least 5 characters",
		"Max":      "Must be at most 3 characters",
		"Len":      "Must be exactly 5 characters",
		"OneOf":    "Must be one of: a b c",
		"GTE":      "Must be greater than or equal to 10",
	}, got)
}

func TestHandleValidationError_NonValidatorError(t *testing.T) {
	router := gin.New()
	router.POST("/test", func(c *gin.Context) {
		var input struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&input); err != nil {
			HandleValidationError(c, err)
			return
		}
	})

	req := httptest.NewRequest(http.MethodPost, "/test", strings.NewReader(`{"name":`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), dto.ErrCodeValidation)
	assert.NotContains(t, w.Body.String(), `"details"`)
}
