package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestTracer installs an in-memory span recorder as the global provider.
func setupTestTracer(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		_ = tp.Shutdown(context.Background())
	})
	return sr
}

func TestSetup_Disabled(t *testing.T) {
	p, err := Setup(context.Background(), Config{Enabled: false}, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, p.IsEnabled())

	base := zap.NewNop()
	assert.Same(t, base, p.Logger(base))
	assert.NotNil(t, p.Meter("test"))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestSampler(t *testing.T) {
	assert.Equal(t, sdktrace.AlwaysSample().Description(), sampler(1).Description())
	assert.Equal(t, sdktrace.NeverSample().Description(), sampler(0).Description())
	assert.Contains(t, sampler(0.25).Description(), "TraceIDRatioBased")
}

func TestStartSpan(t *testing.T) {
	sr := setupTestTracer(t)

	ctx, span := StartSpan(context.Background(), "sync.page",
		WithAttribute(SpanAttrTask, "prod_acstg_to_ac"),
		WithAttribute(SpanAttrPage, 2),
	)
	assert.NotEmpty(t, GetTraceID(ctx))
	SetAttributes(span, SpanAttrTotal, 25, 7, "skipped")
	AddEvent(span, "page_done", "count", 10)
	RecordError(span, errors.New("boom"))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	s := spans[0]
	assert.Equal(t, "sync.page", s.Name())
	assert.Equal(t, codes.Error, s.Status().Code)
	assert.Equal(t, "boom", s.Status().Description)
	require.Len(t, s.Events(), 2)
	assert.Equal(t, "page_done", s.Events()[0].Name)

	attrs := map[string]string{}
	for _, kv := range s.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "prod_acstg_to_ac", attrs[SpanAttrTask])
	assert.Equal(t, "2", attrs[SpanAttrPage])
	assert.Equal(t, "25", attrs[SpanAttrTotal])
}

func TestGetTraceID_NoSpan(t *testing.T) {
	assert.Empty(t, GetTraceID(context.Background()))
}

func TestRecordError_NilSafe(t *testing.T) {
	assert.NotPanics(t, func() {
		RecordError(nil, errors.New("x"))
		SetAttributes(nil, "a", 1)
		AddEvent(nil, "e")
	})
}

func TestSyncMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewSyncMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordOutcomes(ctx, "prod_acstg_to_ac", map[string]int{"O": 8, "F": 2, "E": 0})
	m.RecordRun(ctx, "prod_acstg_to_ac", "complete", 3*time.Second)
	m.RecordConflict(ctx, "prod_acstg_to_ac")
	m.RecordRelay(ctx, "customer_save_after", "ok")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	byName := map[string]metricdata.Metrics{}
	for _, metric := range rm.ScopeMetrics[0].Metrics {
		byName[metric.Name] = metric
	}

	records, ok := byName["kksync.sync.records"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range records.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(10), total)
	assert.Len(t, records.DataPoints, 2)

	runs, ok := byName["kksync.sync.runs"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, runs.DataPoints, 1)
	assert.Equal(t, int64(1), runs.DataPoints[0].Value)

	_, ok = byName["kksync.sync.run.duration"].Data.(metricdata.Histogram[float64])
	assert.True(t, ok)
	assert.Contains(t, byName, "kksync.sync.run.conflicts")
	assert.Contains(t, byName, "kksync.relay.events")
}

func TestSyncMetrics_NilIsNoop(t *testing.T) {
	var m *SyncMetrics
	assert.NotPanics(t, func() {
		m.RecordOutcomes(context.Background(), "t", map[string]int{"O": 1})
		m.RecordRun(context.Background(), "t", "complete", time.Second)
		m.RecordConflict(context.Background(), "t")
		m.RecordRelay(context.Background(), "e", "ok")
	})
}

type tracedModel struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:100"`
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&tracedModel{}))
	return db
}

func TestRegisterDBTracing_Disabled(t *testing.T) {
	db := setupTestDB(t)
	require.NoError(t, RegisterDBTracing(db, DBTracingConfig{Enabled: false}, zap.NewNop()))
	assert.Nil(t, db.Callback().Query().Get("kksync:timing_after_query"))
}

func TestRegisterDBTracing_RecordsSpansAndSlowQueries(t *testing.T) {
	sr := setupTestTracer(t)
	db := setupTestDB(t)

	core, logs := observer.New(zap.WarnLevel)
	err := RegisterDBTracing(db, DBTracingConfig{
		Enabled:         true,
		SlowQueryThresh: time.Nanosecond,
		DBName:          "kksync",
	}, zap.New(core))
	require.NoError(t, err)

	ctx, span := StartSpan(context.Background(), "test.parent")
	require.NoError(t, db.WithContext(ctx).Create(&tracedModel{Name: "a"}).Error)
	var got []tracedModel
	require.NoError(t, db.WithContext(ctx).Find(&got).Error)
	span.End()

	assert.Len(t, got, 1)
	assert.GreaterOrEqual(t, len(sr.Ended()), 3)
	assert.GreaterOrEqual(t, logs.FilterMessage("Slow database query").Len(), 2)
}
