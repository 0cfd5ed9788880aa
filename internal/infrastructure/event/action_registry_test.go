package event

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okHandler(status int, body any) ActionHandler {
	return func(context.Context, map[string]any) (integration.ActionResult, error) {
		return integration.ActionResult{StatusCode: status, Body: body}, nil
	}
}

func TestActionRegistry_InvokeRegistered(t *testing.T) {
	registry := NewActionRegistry(nil, zap.NewNop())
	registry.Register("customer-commerce/created", okHandler(http.StatusOK, "created"))
	registry.Register("customer-commerce/deleted", okHandler(http.StatusOK, "deleted"))

	result, err := registry.Invoke(context.Background(), "customer-commerce/created", map[string]any{"id": 1})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "created", result.Body)
	assert.Equal(t, []string{"customer-commerce/created", "customer-commerce/deleted"}, registry.Actions())
}

func TestActionRegistry_UnknownWithoutFallback(t *testing.T) {
	registry := NewActionRegistry(nil, zap.NewNop())

	result, err := registry.Invoke(context.Background(), "nope", nil)
	assert.ErrorIs(t, err, ErrActionNotFound)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
}

type stubInvoker struct {
	action string
	params map[string]any
}

func (s *stubInvoker) Invoke(_ context.Context, action string, params map[string]any) (integration.ActionResult, error) {
	s.action = action
	s.params = params
	return integration.ActionResult{StatusCode: http.StatusAccepted}, nil
}

func TestActionRegistry_FallsBackForUnknownActions(t *testing.T) {
	fallback := &stubInvoker{}
	registry := NewActionRegistry(fallback, zap.NewNop())

	result, err := registry.Invoke(context.Background(), "product-backoffice/updated", map[string]any{"sku": "A"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, result.StatusCode)
	assert.Equal(t, "product-backoffice/updated", fallback.action)
	assert.Equal(t, "A", fallback.params["sku"])
}

func TestActionRegistry_RecoversPanics(t *testing.T) {
	registry := NewActionRegistry(nil, zap.NewNop())
	registry.Register("boom", func(context.Context, map[string]any) (integration.ActionResult, error) {
		panic("nil map")
	})

	result, err := registry.Invoke(context.Background(), "boom", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, http.StatusInternalServerError, result.StatusCode)
}

func TestActionRegistry_HandlerErrorPassesThrough(t *testing.T) {
	registry := NewActionRegistry(nil, zap.NewNop())
	want := errors.New("downstream")
	registry.Register("x", func(context.Context, map[string]any) (integration.ActionResult, error) {
		return integration.ActionResult{StatusCode: http.StatusBadGateway}, want
	})

	result, err := registry.Invoke(context.Background(), "x", nil)
	assert.ErrorIs(t, err, want)
	assert.Equal(t, http.StatusBadGateway, result.StatusCode)
}

func TestWebhookInvoker(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		var params map[string]any
		assert.NoError(t, json.Unmarshal(raw, &params))

		switch r.URL.Path {
		case "/created":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]any{"echo": params["id"]})
		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("bad request\n"))
		}
	}))
	t.Cleanup(server.Close)

	invoker := NewWebhookInvoker(map[string]string{
		"customer-commerce/created": server.URL + "/created",
		"customer-commerce/updated": server.URL + "/updated",
	}, time.Second, zap.NewNop())

	t.Run("relays status and JSON body", func(t *testing.T) {
		result, err := invoker.Invoke(context.Background(), "customer-commerce/created", map[string]any{"id": "42"})
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, result.StatusCode)
		assert.Equal(t, map[string]any{"echo": "42"}, result.Body)
	})

	t.Run("relays non JSON body as text", func(t *testing.T) {
		result, err := invoker.Invoke(context.Background(), "customer-commerce/updated", map[string]any{})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, result.StatusCode)
		assert.Equal(t, "bad request", result.Body)
	})

	t.Run("unconfigured action", func(t *testing.T) {
		result, err := invoker.Invoke(context.Background(), "customer-commerce/deleted", nil)
		assert.ErrorIs(t, err, ErrActionNotFound)
		assert.Equal(t, http.StatusNotFound, result.StatusCode)
	})
}

func TestWebhookInvoker_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	invoker := NewWebhookInvoker(map[string]string{"a": server.URL}, time.Second, zap.NewNop())
	result, err := invoker.Invoke(context.Background(), "a", nil)
	assert.ErrorIs(t, err, integration.ErrPlatformUnavailable)
	assert.Equal(t, http.StatusBadGateway, result.StatusCode)
}
