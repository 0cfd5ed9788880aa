package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
var (
	AttrTask      = attribute.Key("task")
	AttrStatus    = attribute.Key("status")
	AttrDirection = attribute.Key("direction")
	AttrEvent     = attribute.Key("event")
)

// RunDurationBuckets are bucket boundaries for sync run duration (seconds).
var RunDurationBuckets = []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600}

// SyncMetrics records pipeline counters. The zero value and nil are no-ops.
type SyncMetrics struct {
	records     metric.Int64Counter
	runs        metric.Int64Counter
	runDuration metric.Float64Histogram
	conflicts   metric.Int64Counter
	relayed     metric.Int64Counter
}

// NewSyncMetrics registers the sync instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	records, err := meter.Int64Counter("kksync.sync.records",
		metric.WithDescription("Staging records processed, by task and outcome status"),
		metric.WithUnit("{record}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create records counter: %w", err)
	}
	runs, err := meter.Int64Counter("kksync.sync.runs",
		metric.WithDescription("Finished sync runs, by task and final status"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}
	runDuration, err := meter.Float64Histogram("kksync.sync.run.duration",
		metric.WithDescription("Sync run wall time"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(RunDurationBuckets...))
	if err != nil {
		return nil, fmt.Errorf("failed to create run duration histogram: %w", err)
	}
	conflicts, err := meter.Int64Counter("kksync.sync.run.conflicts",
		metric.WithDescription("Runs refused because the task was already processing"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create conflicts counter: %w", err)
	}
	relayed, err := meter.Int64Counter("kksync.relay.events",
		metric.WithDescription("Relayed events, by event name and status"),
		metric.WithUnit("{event}"))
	if err != nil {
		return nil, fmt.Errorf("failed to create relay counter: %w", err)
	}

	return &SyncMetrics{
		records:     records,
		runs:        runs,
		runDuration: runDuration,
		conflicts:   conflicts,
		relayed:     relayed,
	}, nil
}

// RecordOutcomes adds counts per outcome status for task
func (m *SyncMetrics) RecordOutcomes(ctx context.Context, task string, counts map[string]int) {
	if m == nil || m.records == nil {
		return
	}
	for status, n := range counts {
		if n == 0 {
			continue
		}
		m.records.Add(ctx, int64(n), metric.WithAttributes(AttrTask.String(task), AttrStatus.String(status)))
	}
}

// RecordRun counts a finished run and its duration
func (m *SyncMetrics) RecordRun(ctx context.Context, task, status string, d time.Duration) {
	if m == nil || m.runs == nil {
		return
	}
	attrs := metric.WithAttributes(AttrTask.String(task), AttrStatus.String(status))
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordConflict counts a refused run
func (m *SyncMetrics) RecordConflict(ctx context.Context, task string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Add(ctx, 1, metric.WithAttributes(AttrTask.String(task)))
}

// RecordRelay counts a relayed event
func (m *SyncMetrics) RecordRelay(ctx context.Context, event, status string) {
	if m == nil || m.relayed == nil {
		return
	}
	m.relayed.Add(ctx, 1, metric.WithAttributes(AttrEvent.String(event), AttrStatus.String(status)))
}
