package handler

import (
	"context"
	"net/http"

	appsync "github.com/erp/kksync/internal/application/integration"
	"github.com/erp/kksync/internal/domain/integration"
	"github.com/erp/kksync/internal/infrastructure/logger"
	"github.com/erp/kksync/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// EventRelay routes inbound events to actions
type EventRelay interface {
	CustomerEvent(ctx context.Context, params map[string]any) appsync.RunResult
	ProductEvent(ctx context.Context, params map[string]any) appsync.RunResult
}

// EventHandler handles the relay endpoints. Relay answers are written as
// they come back from the action, outside the response envelope.
type EventHandler struct {
	BaseHandler
	relay   EventRelay
	actions integration.ActionInvoker
}

// NewEventHandler creates a new EventHandler
func NewEventHandler(relay EventRelay, actions integration.ActionInvoker) *EventHandler {
	return &EventHandler{relay: relay, actions: actions}
}

// CustomerEvent handles POST /events/customer
func (h *EventHandler) CustomerEvent(c *gin.Context) {
	params, ok := h.bindParams(c)
	if !ok {
		return
	}
	result := h.relay.CustomerEvent(c.Request.Context(), params)
	c.JSON(result.StatusCode, result.Body)
}

// ProductEvent handles POST /events/product
func (h *EventHandler) ProductEvent(c *gin.Context) {
	params, ok := h.bindParams(c)
	if !ok {
		return
	}
	result := h.relay.ProductEvent(c.Request.Context(), params)
	c.JSON(result.StatusCode, result.Body)
}

// ShipmentUpdated handles POST /actions/shipment-updated
func (h *EventHandler) ShipmentUpdated(c *gin.Context) {
	params, ok := h.bindParams(c)
	if !ok {
		return
	}
	result, err := h.actions.Invoke(c.Request.Context(), appsync.ActionShipmentUpdated, params)
	if err != nil && result.StatusCode == 0 {
		logger.L(c.Request.Context()).Error("Shipment action failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server error: " + err.Error()})
		return
	}
	c.JSON(result.StatusCode, result.Body)
}

func (h *EventHandler) bindParams(c *gin.Context) (map[string]any, bool) {
	var params map[string]any
	if err := c.ShouldBindJSON(&params); err != nil {
		h.Error(c, http.StatusBadRequest, dto.ErrCodeInvalidJSON, "Request body must be a JSON object")
		return nil, false
	}
	if params == nil {
		params = map[string]any{}
	}
	return params, true
}
