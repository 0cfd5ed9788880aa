package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

// setupTestMeter sets up a test meter provider and reader.
func setupTestMeter(t *testing.T) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
	})
	return mp, reader
}

// collectMetrics collects metrics from the reader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

// findMetricByName finds a metric by name in the collected metrics.
func findMetricByName(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func meteredRouter(mp *sdkmetric.MeterProvider) *gin.Engine {
	router := gin.New()
	router.Use(HTTPMetrics(mp.Meter("http.server"), zap.NewNop()))
	router.GET("/api/v1/sync/runs", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"runs": []string{}})
	})
	router.POST("/api/v1/sync/tasks/:task/run", func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown task"})
	})
	return router
}

func TestHTTPMetrics_NilMeter(t *testing.T) {
	router := gin.New()
	router.Use(HTTPMetrics(nil, nil))
	router.GET("/test", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHTTPMetrics_RecordsInstruments(t *testing.T) {
	mp, reader := setupTestMeter(t)
	router := meteredRouter(mp)

	for i := 0; i < 2; i++ {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/sync/runs", nil))
	}
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/sync/tasks/nope/run", nil))

	rm := collectMetrics(t, reader)

	total := findMetricByName(rm, "http_server_request_total")
	require.NotNil(t, total)
	sum, ok := total.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		route, _ := dp.Attributes.Value(attribute.Key("http.route"))
		class, _ := dp.Attributes.Value(attribute.Key("http.status_class"))
		counts[route.AsString()+" "+class.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{
		"/api/v1/sync/runs 2xx":            2,
		"/api/v1/sync/tasks/:task/run 4xx": 1,
	}, counts)

	require.NotNil(t, findMetricByName(rm, "http_server_request_duration_seconds"))
	require.NotNil(t, findMetricByName(rm, "http_server_response_size_bytes"))

	active := findMetricByName(rm, "http_server_active_requests")
	require.NotNil(t, active)
	for _, dp := range active.Data.(metricdata.Sum[int64]).DataPoints {
		assert.Zero(t, dp.Value)
	}
}

func TestHTTPMetrics_UnmatchedRoute(t *testing.T) {
	mp, reader := setupTestMeter(t)
	router := meteredRouter(mp)

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	total := findMetricByName(collectMetrics(t, reader), "http_server_request_total")
	require.NotNil(t, total)
	dp := total.Data.(metricdata.Sum[int64]).DataPoints
	require.Len(t, dp, 1)
	route, _ := dp[0].Attributes.Value(attribute.Key("http.route"))
	assert.Equal(t, "unknown", route.AsString())
}

func TestStatusClass(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{429, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
		{100, "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusClass(tt.code), "status %d", tt.code)
	}
}
