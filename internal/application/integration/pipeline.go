package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"golang.org/x/sync/errgroup"
)

// Engine applies one page of staging records to commerce and returns one
// outcome per record, in input order. Engines never fail as a whole; a
// failure of one record is that record's outcome.
type Engine[T integration.Staged] interface {
	Apply(ctx context.Context, records []T) []integration.Outcome
}

// Preparer is implemented by engines that load run-scoped state once the
// run lock is held.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// Batch is one page read from staging, ready to apply.
type Batch interface {
	Len() int
	// Total is the number of records still waiting, this page included
	Total() int64
	Apply(ctx context.Context) []integration.Outcome
}

// Pipeline reads the records a forward task still has to sync and applies
// them through its engine.
type Pipeline interface {
	Entity() integration.EntityKind
	// ReadBatch reads page 1 of the records waiting to sync that were not
	// synced since runStart. Applied records leave the set, so page 1 is
	// always the next page.
	ReadBatch(ctx context.Context, pageSize int, runStart time.Time) (Batch, error)
	Prepare(ctx context.Context) error
}

// StagingPipeline is the Pipeline of one staging table.
type StagingPipeline[T integration.Staged] struct {
	entity integration.EntityKind
	reader integration.StagingReader[T]
	engine Engine[T]
}

// NewStagingPipeline creates a pipeline over reader and engine
func NewStagingPipeline[T integration.Staged](entity integration.EntityKind, reader integration.StagingReader[T], engine Engine[T]) *StagingPipeline[T] {
	return &StagingPipeline[T]{entity: entity, reader: reader, engine: engine}
}

// Entity returns the staging table of the pipeline
func (p *StagingPipeline[T]) Entity() integration.EntityKind {
	return p.entity
}

// ReadBatch reads page 1 of the records waiting to sync
func (p *StagingPipeline[T]) ReadBatch(ctx context.Context, pageSize int, runStart time.Time) (Batch, error) {
	criteria := integration.NewCriteria(1, pageSize, integration.StatusIn(integration.ForwardSyncStatuses...)).
		NotSyncedSince(runStart)
	page, err := p.reader.FindPage(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("read %s staging: %w", p.entity, err)
	}
	return &stagingBatch[T]{page: page, engine: p.engine}, nil
}

// Prepare lets the engine load run-scoped state
func (p *StagingPipeline[T]) Prepare(ctx context.Context) error {
	if pr, ok := p.engine.(Preparer); ok {
		return pr.Prepare(ctx)
	}
	return nil
}

type stagingBatch[T integration.Staged] struct {
	page   integration.Page[T]
	engine Engine[T]
}

func (b *stagingBatch[T]) Len() int     { return b.page.Len() }
func (b *stagingBatch[T]) Total() int64 { return b.page.TotalCount }

func (b *stagingBatch[T]) Apply(ctx context.Context) []integration.Outcome {
	if b.page.Len() == 0 {
		return nil
	}
	return b.engine.Apply(ctx, b.page.Items)
}

// applyEach runs fn for every record with at most limit in flight and
// collects the outcomes in input order. A panicking record ends as E.
func applyEach[T integration.Staged](ctx context.Context, records []T, limit int, fn func(ctx context.Context, record T) integration.Outcome) []integration.Outcome {
	outcomes := make([]integration.Outcome, len(records))
	if limit <= 0 || limit > len(records) {
		limit = len(records)
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i := range records {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = integration.NewOutcome(records[i].RecordID(), integration.SyncStatusError, fmt.Sprintf("panic: %v", r))
				}
			}()
			outcomes[i] = fn(ctx, records[i])
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}
