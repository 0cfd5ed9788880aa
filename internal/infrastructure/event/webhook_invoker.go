package event

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"
)

const maxWebhookResponseSize = 1 << 20

// WebhookInvoker forwards actions as JSON POSTs to configured URLs
type WebhookInvoker struct {
	urls       map[string]string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewWebhookInvoker creates an invoker for the action to URL table
func NewWebhookInvoker(urls map[string]string, timeout time.Duration, logger *zap.Logger) *WebhookInvoker {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookInvoker{
		urls:       urls,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Invoke posts params to the action URL and relays its status and body
func (w *WebhookInvoker) Invoke(ctx context.Context, action string, params map[string]any) (integration.ActionResult, error) {
	target, ok := w.urls[action]
	if !ok || target == "" {
		return integration.ActionResult{
			StatusCode: http.StatusNotFound,
			Body:       map[string]any{"error": fmt.Sprintf("action %s is not available", action)},
		}, fmt.Errorf("%w: %s", ErrActionNotFound, action)
	}

	raw, err := json.Marshal(params)
	if err != nil {
		return integration.ActionResult{}, fmt.Errorf("failed to encode action params: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(raw))
	if err != nil {
		return integration.ActionResult{}, fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := w.httpClient.Do(req)
	if err != nil {
		w.logger.Warn("webhook action failed", zap.String("action", action), zap.Error(err))
		return integration.ActionResult{
			StatusCode: http.StatusBadGateway,
			Body:       map[string]any{"error": "server error"},
		}, fmt.Errorf("%w: %v", integration.ErrPlatformUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponseSize))
	if err != nil {
		return integration.ActionResult{}, fmt.Errorf("%w: failed to read webhook response: %v", integration.ErrPlatformUnavailable, err)
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		decoded = strings.TrimSpace(string(body))
	}
	return integration.ActionResult{StatusCode: resp.StatusCode, Body: decoded}, nil
}

var _ integration.ActionInvoker = (*WebhookInvoker)(nil)
