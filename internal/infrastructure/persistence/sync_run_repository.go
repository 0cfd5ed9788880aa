package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/erp/kksync/internal/infrastructure/persistence/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormSyncRunRepository implements integration.RunLog using GORM
type GormSyncRunRepository struct {
	db *gorm.DB
}

// NewGormSyncRunRepository creates a new GormSyncRunRepository
func NewGormSyncRunRepository(db *gorm.DB) *GormSyncRunRepository {
	return &GormSyncRunRepository{db: db}
}

// FindRunning counts processing runs of task
func (r *GormSyncRunRepository) FindRunning(ctx context.Context, task string) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).
		Model(&models.SyncRunModel{}).
		Where("task = ? AND status = ?", task, integration.RunStatusProcessing).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Insert stores a new run. The partial unique index on processing runs
// turns a concurrent second insert into gorm.ErrDuplicatedKey, which is
// reported as a RunConflictError.
func (r *GormSyncRunRepository) Insert(ctx context.Context, run *integration.RunRecord) error {
	model := models.SyncRunModelFromDomain(run)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &integration.RunConflictError{Task: run.Task, Running: 1}
		}
		return fmt.Errorf("insert sync run: %w", err)
	}
	return nil
}

// Update persists status, end time and notes of run
func (r *GormSyncRunRepository) Update(ctx context.Context, run *integration.RunRecord) error {
	result := r.db.WithContext(ctx).
		Model(&models.SyncRunModel{}).
		Where("id = ?", run.ID).
		Updates(map[string]any{
			"status":     run.Status,
			"ended_at":   run.EndedAt,
			"notes":      run.Notes,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("update sync run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return integration.ErrRunNotFound
	}
	return nil
}

// FindByID finds a run by its ID
func (r *GormSyncRunRepository) FindByID(ctx context.Context, id uuid.UUID) (*integration.RunRecord, error) {
	var model models.SyncRunModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, integration.ErrRunNotFound
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// FindStale returns processing runs started before the cutoff, oldest first
func (r *GormSyncRunRepository) FindStale(ctx context.Context, startedBefore time.Time) ([]integration.RunRecord, error) {
	var rows []models.SyncRunModel
	if err := r.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", integration.RunStatusProcessing, startedBefore).
		Order("started_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	runs := make([]integration.RunRecord, len(rows))
	for i := range rows {
		runs[i] = *rows[i].ToDomain()
	}
	return runs, nil
}

// List returns run history, newest first, with the total matching count
func (r *GormSyncRunRepository) List(ctx context.Context, filter integration.RunFilter) ([]integration.RunRecord, int64, error) {
	applyFilter := func(q *gorm.DB) *gorm.DB {
		if filter.Task != "" {
			q = q.Where("task = ?", filter.Task)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", filter.Status)
		}
		return q
	}

	var total int64
	if err := applyFilter(r.db.WithContext(ctx).Model(&models.SyncRunModel{})).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	var rows []models.SyncRunModel
	if err := applyFilter(r.db.WithContext(ctx).Model(&models.SyncRunModel{})).
		Order("started_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	runs := make([]integration.RunRecord, len(rows))
	for i := range rows {
		runs[i] = *rows[i].ToDomain()
	}
	return runs, total, nil
}
