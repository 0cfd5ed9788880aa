package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTestTracer sets up a test tracer provider and returns the span recorder.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()

	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	t.Cleanup(func() {
		_ = tp.Shutdown(t.Context())
	})

	return sr
}

func findSpan(t *testing.T, sr *tracetest.SpanRecorder, name string) sdktrace.ReadOnlySpan {
	t.Helper()
	for _, span := range sr.Ended() {
		if span.Name() == name {
			return span
		}
	}
	require.FailNow(t, "span not found", name)
	return nil
}

func spanAttr(span sdktrace.ReadOnlySpan, key string) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func tracedRouter(status int) *gin.Engine {
	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: true, ServiceName: "test-service"}))
	router.Use(SpanAttributes())
	router.POST("/api/v1/sync/tasks/:task/run", func(c *gin.Context) {
		c.Status(status)
	})
	return router
}

func TestTracingWithConfig_Disabled(t *testing.T) {
	sr := setupTestTracer(t)

	router := gin.New()
	router.Use(TracingWithConfig(TracingConfig{Enabled: false}))
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, sr.Ended())
}

func TestTracing_SpanAttributes(t *testing.T) {
	sr := setupTestTracer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/tasks/prod_acstg_to_ac/run", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	w := httptest.NewRecorder()
	tracedRouter(http.StatusOK).ServeHTTP(w, req)

	span := findSpan(t, sr, "POST /api/v1/sync/tasks/:task/run")

	id, ok := spanAttr(span, "request_id")
	require.True(t, ok)
	assert.Equal(t, "req-123", id.AsString())

	task, ok := spanAttr(span, "sync.task")
	require.True(t, ok)
	assert.Equal(t, "prod_acstg_to_ac", task.AsString())

	assert.NotEqual(t, codes.Error, span.Status().Code)
}

func TestTracing_ErrorStatus(t *testing.T) {
	for _, status := range []int{http.StatusNotFound, http.StatusUnauthorized, http.StatusInternalServerError} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			sr := setupTestTracer(t)

			w := httptest.NewRecorder()
			tracedRouter(status).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/sync/tasks/x/run", nil))

			span := findSpan(t, sr, "POST /api/v1/sync/tasks/:task/run")
			assert.Equal(t, codes.Error, span.Status().Code)
			code, ok := spanAttr(span, "http.status_code")
			require.True(t, ok)
			assert.Equal(t, int64(status), code.AsInt64())
		})
	}
}

func TestTracing_LongRequestIDTruncated(t *testing.T) {
	sr := setupTestTracer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/tasks/x/run", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("a", 500))
	w := httptest.NewRecorder()
	tracedRouter(http.StatusOK).ServeHTTP(w, req)

	id, ok := spanAttr(findSpan(t, sr, "POST /api/v1/sync/tasks/:task/run"), "request_id")
	require.True(t, ok)
	assert.Len(t, id.AsString(), MaxRequestIDLength)
}

func TestDefaultTracingConfig(t *testing.T) {
	cfg := DefaultTracingConfig()
	assert.Equal(t, "kksync", cfg.ServiceName)
	assert.True(t, cfg.Enabled)
}
