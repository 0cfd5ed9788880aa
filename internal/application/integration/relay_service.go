package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/erp/kksync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Inbound event types
const (
	EventCustomerSaved   = "com.adobe.commerce.observer.customer_save_commit_after"
	EventCustomerDeleted = "com.adobe.commerce.observer.customer_delete_commit_after"
	EventProductCreated  = "be-observer.catalog_product_create"
	EventProductUpdated  = "be-observer.catalog_product_update"
	EventProductDeleted  = "be-observer.catalog_product_delete"
)

// Relayed actions
const (
	ActionCustomerCreated = "customer-commerce/created"
	ActionCustomerUpdated = "customer-commerce/updated"
	ActionCustomerDeleted = "customer-commerce/deleted"
	ActionProductCreated  = "product-backoffice/created"
	ActionProductUpdated  = "product-backoffice/updated"
	ActionProductDeleted  = "product-backoffice/deleted"
	ActionShipmentUpdated = "shipment-backoffice/updated"
)

var productActions = map[string]string{
	EventProductCreated: ActionProductCreated,
	EventProductUpdated: ActionProductUpdated,
	EventProductDeleted: ActionProductDeleted,
}

// RelayService routes commerce and back-office events to actions
type RelayService struct {
	invoker integration.ActionInvoker
	metrics *telemetry.SyncMetrics
	logger  *zap.Logger
}

// NewRelayService creates a RelayService
func NewRelayService(invoker integration.ActionInvoker, metrics *telemetry.SyncMetrics, logger *zap.Logger) *RelayService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RelayService{invoker: invoker, metrics: metrics, logger: logger}
}

// CustomerEvent relays a commerce customer event. Saves whose created and
// updated times are equal are creations.
func (s *RelayService) CustomerEvent(ctx context.Context, params map[string]any) RunResult {
	if msg := missingParams(params, "type", "data.value.created_at", "data.value.updated_at"); msg != "" {
		s.logger.Error("Invalid customer event", zap.String("error", msg))
		return s.reject(ctx, integration.AsString(params["type"]), msg)
	}
	eventType := integration.AsString(params["type"])
	value, _ := lookup(params, "data.value")
	data, _ := value.(map[string]any)

	var action string
	switch eventType {
	case EventCustomerSaved:
		created, errC := parseEventTime(data["created_at"])
		updated, errU := parseEventTime(data["updated_at"])
		if errC == nil && errU == nil && created.Equal(updated) {
			action = ActionCustomerCreated
		} else {
			action = ActionCustomerUpdated
		}
	case EventCustomerDeleted:
		action = ActionCustomerDeleted
	default:
		return s.unsupported(ctx, eventType, data)
	}
	return s.relay(ctx, eventType, action, data)
}

// ProductEvent relays a back-office product event
func (s *RelayService) ProductEvent(ctx context.Context, params map[string]any) RunResult {
	if msg := missingParams(params, "type", "data"); msg != "" {
		s.logger.Error("Invalid product event", zap.String("error", msg))
		return s.reject(ctx, integration.AsString(params["type"]), msg)
	}
	eventType := integration.AsString(params["type"])
	data := params["data"]

	action, ok := productActions[eventType]
	if !ok {
		return s.unsupported(ctx, eventType, data)
	}
	return s.relay(ctx, eventType, action, data)
}

func (s *RelayService) relay(ctx context.Context, eventType, action string, data any) RunResult {
	ctx, span := telemetry.StartSpan(ctx, "relay.event",
		telemetry.WithAttribute(telemetry.SpanAttrEvent, eventType),
		telemetry.WithAttribute(telemetry.SpanAttrAction, action),
	)
	defer span.End()

	params, ok := data.(map[string]any)
	if !ok {
		params = map[string]any{"data": data}
	}
	s.logger.Info("Relaying event", zap.String("type", eventType), zap.String("action", action))
	result, err := s.invoker.Invoke(ctx, action, params)
	if err != nil && result.StatusCode == 0 {
		telemetry.RecordError(span, err)
		s.logger.Error("Relayed action failed", zap.String("action", action), zap.Error(err))
		s.metrics.RecordRelay(ctx, eventType, "error")
		return RunResult{
			StatusCode: http.StatusInternalServerError,
			Body:       map[string]any{"error": "Server error: " + err.Error()},
		}
	}
	if err != nil {
		s.logger.Warn("Relayed action returned an error", zap.String("action", action), zap.Error(err))
	}
	s.metrics.RecordRelay(ctx, eventType, http.StatusText(result.StatusCode))
	return RunResult{
		StatusCode: result.StatusCode,
		Body: map[string]any{
			"type":     eventType,
			"request":  data,
			"response": result.Body,
		},
	}
}

func (s *RelayService) unsupported(ctx context.Context, eventType string, data any) RunResult {
	s.logger.Error("Event type not supported", zap.String("type", eventType))
	s.metrics.RecordRelay(ctx, eventType, "unsupported")
	return RunResult{
		StatusCode: http.StatusBadRequest,
		Body: map[string]any{
			"type":     eventType,
			"request":  data,
			"response": "This case type is not supported: " + eventType,
		},
	}
}

func (s *RelayService) reject(ctx context.Context, eventType, msg string) RunResult {
	s.metrics.RecordRelay(ctx, eventType, "invalid")
	return RunResult{StatusCode: http.StatusBadRequest, Body: map[string]any{"error": msg}}
}

// ShipmentAction posts shipments updated in the back office to commerce
type ShipmentAction struct {
	client integration.CommerceClient
	logger *zap.Logger
}

// NewShipmentAction creates a ShipmentAction
func NewShipmentAction(client integration.CommerceClient, logger *zap.Logger) *ShipmentAction {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShipmentAction{client: client, logger: logger}
}

// ShipmentItem is one shipped order item
type ShipmentItem struct {
	OrderItemID any `json:"order_item_id"`
	Qty         any `json:"qty"`
}

// ShipmentTrack is one tracking number of a shipment
type ShipmentTrack struct {
	TrackNumber string `json:"track_number"`
	Title       string `json:"title"`
	CarrierCode string `json:"carrier_code"`
}

// ShipmentRequest is the body of order/{id}/ship
type ShipmentRequest struct {
	Items  []ShipmentItem  `json:"items"`
	Notify bool            `json:"notify"`
	Tracks []ShipmentTrack `json:"tracks,omitempty"`
}

// Handle validates, transforms and sends one shipment update
func (a *ShipmentAction) Handle(ctx context.Context, params map[string]any) (integration.ActionResult, error) {
	if msg := missingParams(params, "data.id", "data.orderId"); msg != "" {
		return actionError(http.StatusBadRequest, msg), nil
	}
	data, _ := params["data"].(map[string]any)
	items, _ := data["items"].([]any)
	if len(items) == 0 {
		return actionError(http.StatusBadRequest, "missing parameter(s) 'data.items'"), nil
	}

	orderID := integration.AsString(data["orderId"])
	req := transformShipment(data, items)
	resource := fmt.Sprintf("order/%s/ship", orderID)
	if err := a.client.Post(ctx, resource, req, nil); err != nil {
		a.logger.Error("Failed to send shipment",
			zap.String("order_id", orderID),
			zap.Any("shipment_id", data["id"]),
			zap.Error(err),
		)
		status := http.StatusInternalServerError
		var httpErr *integration.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode > 0 {
			status = httpErr.StatusCode
		}
		return actionError(status, err.Error()), nil
	}
	a.logger.Info("Shipment updated", zap.String("order_id", orderID))
	return integration.ActionResult{
		StatusCode: http.StatusOK,
		Body:       map[string]any{"message": "Shipment updated successfully"},
	}, nil
}

func transformShipment(data map[string]any, items []any) ShipmentRequest {
	req := ShipmentRequest{Items: make([]ShipmentItem, 0, len(items))}
	for _, raw := range items {
		item, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		req.Items = append(req.Items, ShipmentItem{OrderItemID: item["orderItemId"], Qty: item["qty"]})
	}
	tracks, _ := data["tracks"].([]any)
	for _, raw := range tracks {
		track, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		req.Tracks = append(req.Tracks, ShipmentTrack{
			TrackNumber: integration.AsString(track["trackNumber"]),
			Title:       integration.AsString(track["title"]),
			CarrierCode: integration.AsString(track["carrierCode"]),
		})
	}
	req.Notify = integration.AsBool(data["notify"])
	return req
}

func actionError(status int, msg string) integration.ActionResult {
	return integration.ActionResult{StatusCode: status, Body: map[string]any{"error": msg}}
}

// missingParams names the dotted paths absent from params. Empty strings
// count as absent; zero and null do not.
func missingParams(params map[string]any, paths ...string) string {
	var missing []string
	for _, p := range paths {
		v, ok := lookup(params, p)
		if !ok {
			missing = append(missing, p)
			continue
		}
		if s, isString := v.(string); isString && s == "" {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return ""
	}
	return fmt.Sprintf("missing parameter(s) '%s'", strings.Join(missing, ","))
}

func lookup(params map[string]any, path string) (any, bool) {
	var cur any = params
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[key]; !ok {
			return nil, false
		}
	}
	return cur, true
}

var eventTimeLayouts = []string{time.RFC3339Nano, time.DateTime, "2006-01-02T15:04:05"}

func parseEventTime(v any) (time.Time, error) {
	s := strings.TrimSpace(integration.AsString(v))
	for _, layout := range eventTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
