package handler

import (
	"errors"
	"net/http"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/erp/kksync/internal/domain/shared"
	"github.com/erp/kksync/internal/interfaces/http/dto"
	"github.com/erp/kksync/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// SuccessWithMeta sends a success response with pagination meta
func (h *BaseHandler) SuccessWithMeta(c *gin.Context, data any, total int64, page, pageSize int) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(data, total, page, pageSize))
}

// Error sends an error response with the appropriate status code
func (h *BaseHandler) Error(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, dto.NewErrorResponseWithRequestID(code, message, middleware.GetRequestID(c)))
}

// ErrorWithCode sends an error response, deriving status code from error code
func (h *BaseHandler) ErrorWithCode(c *gin.Context, code, message string) {
	h.Error(c, dto.GetHTTPStatus(code), code, message)
}

// BadRequest sends a 400 bad request response
func (h *BaseHandler) BadRequest(c *gin.Context, message string) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeBadRequest, message)
}

// NotFound sends a 404 not found response
func (h *BaseHandler) NotFound(c *gin.Context, message string) {
	h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, message)
}

// InternalError sends a 500 internal server error response
func (h *BaseHandler) InternalError(c *gin.Context, message string) {
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, message)
}

// HandleError converts domain and sync errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	domainErr := asDomainError(err)
	code := dto.NormalizeErrorCode(domainErr.Code)
	h.Error(c, dto.GetHTTPStatus(code), code, domainErr.Message)
}

// asDomainError maps err onto the domain error a caller may see. Anything
// unrecognised becomes an internal error so causes do not leak.
func asDomainError(err error) *shared.DomainError {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	var conflict *integration.RunConflictError
	switch {
	case errors.As(err, &conflict):
		return shared.ErrRunConflict.WithMessage(conflict.Error())
	case errors.Is(err, integration.ErrUnknownTask), errors.Is(err, integration.ErrRunNotFound):
		return shared.ErrNotFound.WithMessage(err.Error())
	case errors.Is(err, integration.ErrRunInvalidStatus), errors.Is(err, integration.ErrRunInvalidTask):
		return shared.ErrInvalidInput.WithMessage(err.Error())
	}
	return shared.ErrInternal
}
