package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/erp/kksync/internal/infrastructure/persistence/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormAttributeMappingRepository implements integration.AttributeMappingRepository
type GormAttributeMappingRepository struct {
	db *gorm.DB
}

// NewGormAttributeMappingRepository creates a new GormAttributeMappingRepository
func NewGormAttributeMappingRepository(db *gorm.DB) *GormAttributeMappingRepository {
	return &GormAttributeMappingRepository{db: db}
}

// FindByStatus returns mappings in any of the statuses, all when none given
func (r *GormAttributeMappingRepository) FindByStatus(ctx context.Context, statuses ...integration.MappingStatus) ([]integration.AttributeMapping, error) {
	query := r.db.WithContext(ctx).Model(&models.AttributeMappingModel{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var rows []models.AttributeMappingModel
	if err := query.Order("attribute_code ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	mappings := make([]integration.AttributeMapping, len(rows))
	for i := range rows {
		mappings[i] = rows[i].ToDomain()
	}
	return mappings, nil
}

// Count returns the number of stored mappings
func (r *GormAttributeMappingRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.AttributeMappingModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// SaveAll upserts mappings by attribute code. The option cache of an
// existing mapping is kept.
func (r *GormAttributeMappingRepository) SaveAll(ctx context.Context, mappings []integration.AttributeMapping) error {
	if len(mappings) == 0 {
		return nil
	}
	rows := make([]*models.AttributeMappingModel, len(mappings))
	for i, m := range mappings {
		rows[i] = models.AttributeMappingModelFromDomain(m)
		rows[i].ID = 0
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "attribute_code"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"source_key",
			"backend_type",
			"frontend_input",
			"status",
			"notes",
			"updated_at",
		}),
	}).Create(&rows).Error
}

// MergeOptions adds option ids to the cache of one attribute. Existing
// labels keep their id. The read-modify-write runs under a row lock.
func (r *GormAttributeMappingRepository) MergeOptions(ctx context.Context, code string, options map[string]string) error {
	if len(options) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row models.AttributeMappingModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("attribute_code = ?", code).
			First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", integration.ErrMappingInvalidCode, code)
			}
			return err
		}

		merged := row.Options.Data()
		if merged == nil {
			merged = map[string]string{}
		}
		changed := false
		for label, id := range options {
			if _, ok := merged[label]; !ok {
				merged[label] = id
				changed = true
			}
		}
		if !changed {
			return nil
		}
		return tx.Model(&models.AttributeMappingModel{}).
			Where("id = ?", row.ID).
			Updates(map[string]any{
				"options":    datatypes.NewJSONType(merged),
				"updated_at": time.Now(),
			}).Error
	})
}
