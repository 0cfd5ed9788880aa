package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/erp/kksync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	noteNoData      = "No data in AC staging table to be processed."
	serverErrorBody = "server error"
)

// RunResult is the status code and body a task run answers with. Body is
// a string note or a map with an "error" key.
type RunResult struct {
	StatusCode int
	Body       any
}

// beginFailure maps a failed Begin onto its response
func beginFailure(err error) RunResult {
	var conflict *integration.RunConflictError
	if errors.As(err, &conflict) {
		return RunResult{StatusCode: http.StatusInternalServerError, Body: map[string]string{"error": conflict.Error()}}
	}
	return RunResult{StatusCode: http.StatusInternalServerError, Body: serverErrorBody}
}

// SyncService runs named tasks: forward tasks through their staging
// pipeline, ingestion tasks through the IngestionService.
type SyncService struct {
	tasks     map[string]integration.TaskDefinition
	pipelines map[integration.EntityKind]Pipeline
	outcomes  integration.OutcomeRecorder
	control   *ProcessControl
	ingestion *IngestionService
	metrics   *telemetry.SyncMetrics
	logger    *zap.Logger
}

// NewSyncService creates a SyncService. Tasks whose entity has no pipeline
// fail with ErrUnknownTask when run.
func NewSyncService(
	tasks map[string]integration.TaskDefinition,
	pipelines []Pipeline,
	outcomes integration.OutcomeRecorder,
	control *ProcessControl,
	ingestion *IngestionService,
	metrics *telemetry.SyncMetrics,
	logger *zap.Logger,
) *SyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	byEntity := make(map[integration.EntityKind]Pipeline, len(pipelines))
	for _, p := range pipelines {
		byEntity[p.Entity()] = p
	}
	return &SyncService{
		tasks:     tasks,
		pipelines: byEntity,
		outcomes:  outcomes,
		control:   control,
		ingestion: ingestion,
		metrics:   metrics,
		logger:    logger,
	}
}

// Tasks returns the task definitions ordered by name
func (s *SyncService) Tasks() []integration.TaskDefinition {
	names := integration.SortedTaskNames(s.tasks)
	defs := make([]integration.TaskDefinition, len(names))
	for i, name := range names {
		defs[i] = s.tasks[name]
	}
	return defs
}

// Task returns the definition of name
func (s *SyncService) Task(name string) (integration.TaskDefinition, bool) {
	def, ok := s.tasks[name]
	return def, ok
}

// Control returns the process control of the service
func (s *SyncService) Control() *ProcessControl {
	return s.control
}

// Run executes task and returns its response. The error is non-nil when
// the task is unknown, already running, or failed as a whole.
func (s *SyncService) Run(ctx context.Context, task string) (RunResult, error) {
	def, ok := s.tasks[task]
	if !ok {
		return RunResult{StatusCode: http.StatusNotFound, Body: map[string]string{"error": "unknown task " + task}},
			fmt.Errorf("%w: %s", integration.ErrUnknownTask, task)
	}
	if def.Direction == integration.DirectionIngest {
		if s.ingestion == nil {
			return RunResult{StatusCode: http.StatusNotFound, Body: map[string]string{"error": "unknown task " + task}},
				fmt.Errorf("%w: %s", integration.ErrUnknownTask, task)
		}
		return s.ingestion.Ingest(ctx, def)
	}
	pipeline, ok := s.pipelines[def.Entity]
	if !ok {
		return RunResult{StatusCode: http.StatusNotFound, Body: map[string]string{"error": "unknown task " + task}},
			fmt.Errorf("%w: %s", integration.ErrUnknownTask, task)
	}
	return s.runForward(ctx, def, pipeline)
}

// runForward drains the N and E records of one staging table. Each pass
// reads page 1 again, since applied records leave the set. Records the run
// itself left at E are not read again before the next run. A run stops
// after the ceiling; the last page may overrun it.
func (s *SyncService) runForward(ctx context.Context, def integration.TaskDefinition, pipeline Pipeline) (RunResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.run",
		telemetry.WithAttribute(telemetry.SpanAttrTask, def.Name),
		telemetry.WithAttribute(telemetry.SpanAttrPageSize, def.PageSize),
	)
	defer span.End()

	runStart := time.Now()
	batch, err := pipeline.ReadBatch(ctx, def.PageSize, runStart)
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Error("Failed to read staging", zap.String("task", def.Name), zap.Error(err))
		return RunResult{StatusCode: http.StatusInternalServerError, Body: serverErrorBody}, err
	}
	total := batch.Total()
	telemetry.SetAttributes(span, telemetry.SpanAttrTotal, total)
	s.logger.Info(fmt.Sprintf("Total %d %s needs to be processed.", total, def.Noun), zap.String("task", def.Name))
	if total == 0 {
		return RunResult{StatusCode: http.StatusOK, Body: noteNoData}, nil
	}

	run, err := s.control.Begin(ctx, def)
	if err != nil {
		telemetry.RecordError(span, err)
		return beginFailure(err), err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrRunID, run.ID.String())

	if err := pipeline.Prepare(ctx); err != nil {
		return s.fail(ctx, run, err), err
	}

	retrieved := batch.Len()
	if err := s.applyBatch(ctx, def, pipeline, batch, 1); err != nil {
		return s.fail(ctx, run, err), err
	}

	pages := 1
	for int64(retrieved) < total && (def.Ceiling <= 0 || retrieved < def.Ceiling) {
		pages++
		batch, err = pipeline.ReadBatch(ctx, def.PageSize, runStart)
		if err != nil {
			return s.fail(ctx, run, err), err
		}
		if batch.Len() == 0 {
			break
		}
		retrieved += batch.Len()
		if err := s.applyBatch(ctx, def, pipeline, batch, pages); err != nil {
			return s.fail(ctx, run, err), err
		}
		s.logger.Info(fmt.Sprintf("Retrieved %d %s to be processed in page %d.", retrieved, def.Noun, pages),
			zap.String("task", def.Name))
		if float64(pages) > def.Batches(total) {
			break
		}
	}

	notes := fmt.Sprintf("Total %d %s needs to be processed. %d %s are processed in this batch.", total, def.Noun, retrieved, def.Noun)
	if err := s.control.Finalize(ctx, run, integration.RunStatusComplete, notes); err != nil {
		telemetry.RecordError(span, err)
		return RunResult{StatusCode: http.StatusInternalServerError, Body: serverErrorBody}, err
	}
	return RunResult{StatusCode: http.StatusOK, Body: notes}, nil
}

// applyBatch applies one page and writes its outcomes back in one update
func (s *SyncService) applyBatch(ctx context.Context, def integration.TaskDefinition, pipeline Pipeline, batch Batch, page int) error {
	ctx, span := telemetry.StartSpan(ctx, "sync.page",
		telemetry.WithAttribute(telemetry.SpanAttrTask, def.Name),
		telemetry.WithAttribute(telemetry.SpanAttrPage, page),
	)
	defer span.End()

	outcomes := batch.Apply(ctx)
	if err := s.outcomes.RecordOutcomes(ctx, pipeline.Entity(), outcomes); err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("record %s outcomes: %w", pipeline.Entity(), err)
	}

	counts := make(map[string]int, 4)
	for _, o := range outcomes {
		counts[string(o.Status)]++
	}
	s.metrics.RecordOutcomes(ctx, def.Name, counts)
	telemetry.AddEvent(span, "outcomes",
		string(integration.SyncStatusOk), counts[string(integration.SyncStatusOk)],
		string(integration.SyncStatusFailed), counts[string(integration.SyncStatusFailed)],
		string(integration.SyncStatusError), counts[string(integration.SyncStatusError)],
	)
	s.logger.Debug("Page applied",
		zap.String("task", def.Name),
		zap.Int("page", page),
		zap.Int("records", len(outcomes)),
		zap.Any("statuses", counts),
	)
	return nil
}

func (s *SyncService) fail(ctx context.Context, run *integration.RunRecord, cause error) RunResult {
	s.logger.Error("Sync run failed",
		zap.String("task", run.Task),
		zap.String("run_id", run.ID.String()),
		zap.Error(cause),
	)
	if err := s.control.Finalize(ctx, run, integration.RunStatusFailed, cause.Error()); err != nil {
		s.logger.Error("Failed to finalize run", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
	return RunResult{StatusCode: http.StatusInternalServerError, Body: serverErrorBody}
}
