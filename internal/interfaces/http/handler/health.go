package handler

import (
	"net/http"
	"time"

	"github.com/erp/kksync/internal/infrastructure/logger"
	"github.com/erp/kksync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Pinger reports whether the database answers
type Pinger interface {
	Ping() error
}

// HealthHandler handles the health endpoint
type HealthHandler struct {
	BaseHandler
	db        Pinger
	startTime time.Time
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, startTime: time.Now()}
}

// Health handles GET /health. An unreachable database answers 503.
func (h *HealthHandler) Health(c *gin.Context) {
	resp := dto.HealthResponse{
		Status:   "healthy",
		Database: "connected",
		Uptime:   time.Since(h.startTime).Round(time.Second).String(),
	}
	if err := h.db.Ping(); err != nil {
		logger.L(c.Request.Context()).Error("Database health check failed", zap.Error(err))
		resp.Status = "unhealthy"
		resp.Database = "disconnected"
		c.JSON(http.StatusServiceUnavailable, dto.Response{Success: false, Data: resp})
		return
	}
	h.Success(c, resp)
}
