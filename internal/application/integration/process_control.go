package integration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/erp/kksync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Run history paging defaults
const (
	defaultHistoryPageSize = 20
	maxHistoryPageSize     = 100
)

// ProcessControl guards task execution with the run log. At most one run
// of a task is processing at a time; the optional lease covers the window
// between the running check and the insert across processes.
type ProcessControl struct {
	runs     integration.RunLog
	lease    integration.RunLease
	leaseTTL time.Duration
	staleTTL time.Duration
	metrics  *telemetry.SyncMetrics
	logger   *zap.Logger
	now      func() time.Time
}

// ProcessControlOption configures a ProcessControl
type ProcessControlOption func(*ProcessControl)

// WithRunLease sets the cross-process lease taken around Begin
func WithRunLease(lease integration.RunLease, ttl time.Duration) ProcessControlOption {
	return func(pc *ProcessControl) {
		pc.lease = lease
		pc.leaseTTL = ttl
	}
}

// WithStaleRunTTL sets the age after which a processing run is reconciled
func WithStaleRunTTL(ttl time.Duration) ProcessControlOption {
	return func(pc *ProcessControl) {
		pc.staleTTL = ttl
	}
}

// WithSyncMetrics sets the metrics recorder
func WithSyncMetrics(m *telemetry.SyncMetrics) ProcessControlOption {
	return func(pc *ProcessControl) {
		pc.metrics = m
	}
}

// NewProcessControl creates a ProcessControl over runs
func NewProcessControl(runs integration.RunLog, logger *zap.Logger, opts ...ProcessControlOption) *ProcessControl {
	if logger == nil {
		logger = zap.NewNop()
	}
	pc := &ProcessControl{
		runs:     runs,
		leaseTTL: 30 * time.Second,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(pc)
	}
	return pc
}

// FindRunning counts processing runs of task
func (pc *ProcessControl) FindRunning(ctx context.Context, task string) (int64, error) {
	return pc.runs.FindRunning(ctx, task)
}

// Begin records a processing run of def. A processing run of the same
// task, a held lease or a rejected insert all yield a *RunConflictError.
// A lease that cannot be reached is logged and the database checks alone
// decide.
func (pc *ProcessControl) Begin(ctx context.Context, def integration.TaskDefinition) (*integration.RunRecord, error) {
	if pc.lease != nil {
		acquired, err := pc.lease.Acquire(ctx, def.Name, pc.leaseTTL)
		switch {
		case err != nil:
			pc.logger.Warn("Run lease unavailable, relying on the run log",
				zap.String("task", def.Name), zap.Error(err))
		case !acquired:
			return nil, pc.conflict(ctx, def, 1)
		default:
			defer func() {
				if err := pc.lease.Release(context.WithoutCancel(ctx), def.Name); err != nil {
					pc.logger.Warn("Failed to release run lease", zap.String("task", def.Name), zap.Error(err))
				}
			}()
		}
	}

	running, err := pc.runs.FindRunning(ctx, def.Name)
	if err != nil {
		return nil, fmt.Errorf("find running %s: %w", def.Name, err)
	}
	if running > 0 {
		return nil, pc.conflict(ctx, def, running)
	}

	run, err := integration.NewRunRecord(def.Name, def.StartNotes)
	if err != nil {
		return nil, err
	}
	if err := pc.runs.Insert(ctx, run); err != nil {
		var conflict *integration.RunConflictError
		if errors.As(err, &conflict) {
			return nil, pc.conflict(ctx, def, conflict.Running)
		}
		return nil, err
	}
	pc.logger.Info("Run started",
		zap.String("task", run.Task),
		zap.String("run_id", run.ID.String()),
	)
	return run, nil
}

func (pc *ProcessControl) conflict(ctx context.Context, def integration.TaskDefinition, running int64) error {
	pc.metrics.RecordConflict(ctx, def.Name)
	err := &integration.RunConflictError{Task: def.Name, Description: def.Description, Running: running}
	pc.logger.Warn(err.Error(), zap.String("task", def.Name))
	return err
}

// Finalize moves run to a terminal status and persists it. The update
// outlives a cancelled request context.
func (pc *ProcessControl) Finalize(ctx context.Context, run *integration.RunRecord, status integration.RunStatus, notes string) error {
	if err := run.Finalize(status, notes); err != nil {
		return err
	}
	if err := pc.runs.Update(context.WithoutCancel(ctx), run); err != nil {
		return fmt.Errorf("finalize run %s: %w", run.ID, err)
	}
	pc.metrics.RecordRun(ctx, run.Task, string(run.Status), run.Duration())
	pc.logger.Info("Run finished",
		zap.String("task", run.Task),
		zap.String("run_id", run.ID.String()),
		zap.String("status", string(run.Status)),
		zap.Duration("duration", run.Duration()),
	)
	return nil
}

// ReconcileStale fails runs left processing longer than the stale TTL and
// returns how many were reconciled. It does nothing without a TTL.
func (pc *ProcessControl) ReconcileStale(ctx context.Context) (int, error) {
	if pc.staleTTL <= 0 {
		return 0, nil
	}
	now := pc.now()
	stale, err := pc.runs.FindStale(ctx, now.Add(-pc.staleTTL))
	if err != nil {
		return 0, fmt.Errorf("find stale runs: %w", err)
	}

	reconciled := 0
	for i := range stale {
		run := &stale[i]
		if !run.IsStale(now, pc.staleTTL) {
			continue
		}
		notes := fmt.Sprintf("Run did not finish within %s and was marked failed. Last notes: %s", pc.staleTTL, run.Notes)
		if err := pc.Finalize(ctx, run, integration.RunStatusFailed, notes); err != nil {
			pc.logger.Error("Failed to reconcile stale run",
				zap.String("task", run.Task),
				zap.String("run_id", run.ID.String()),
				zap.Error(err),
			)
			continue
		}
		reconciled++
	}
	if reconciled > 0 {
		pc.logger.Warn("Stale runs reconciled", zap.Int("count", reconciled))
	}
	return reconciled, nil
}

// History lists runs, newest first
func (pc *ProcessControl) History(ctx context.Context, filter integration.RunFilter) ([]integration.RunRecord, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultHistoryPageSize
	}
	if filter.PageSize > maxHistoryPageSize {
		filter.PageSize = maxHistoryPageSize
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, integration.ErrRunInvalidStatus
	}
	return pc.runs.List(ctx, filter)
}
