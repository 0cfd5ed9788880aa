package models

import (
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SyncRunModel is the persistence model of the process-control log.
// Postgres enforces one processing row per task with a partial unique
// index created by the migrations (uq_sync_runs_processing).
type SyncRunModel struct {
	ID        uuid.UUID             `gorm:"type:uuid;primary_key"`
	Task      string                `gorm:"type:varchar(64);not null;index:idx_sync_runs_task_status,priority:1"`
	Status    integration.RunStatus `gorm:"type:varchar(16);not null;index:idx_sync_runs_task_status,priority:2"`
	StartedAt time.Time             `gorm:"not null;index"`
	EndedAt   *time.Time
	Notes     string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SyncRunModel) TableName() string {
	return "sync_runs"
}

// ToDomain converts the model to a domain RunRecord
func (m *SyncRunModel) ToDomain() *integration.RunRecord {
	return &integration.RunRecord{
		ID:        m.ID,
		Task:      m.Task,
		Status:    m.Status,
		StartedAt: m.StartedAt,
		EndedAt:   m.EndedAt,
		Notes:     m.Notes,
	}
}

// SyncRunModelFromDomain creates a model from a domain RunRecord
func SyncRunModelFromDomain(r *integration.RunRecord) *SyncRunModel {
	return &SyncRunModel{
		ID:        r.ID,
		Task:      r.Task,
		Status:    r.Status,
		StartedAt: r.StartedAt,
		EndedAt:   r.EndedAt,
		Notes:     r.Notes,
	}
}

// AttributeMappingModel is the persistence model of an attribute mapping
// with its option cache.
type AttributeMappingModel struct {
	ID            uint64                                `gorm:"primaryKey;autoIncrement"`
	AttributeCode string                                `gorm:"type:varchar(128);not null;uniqueIndex"`
	SourceKey     string                                `gorm:"type:varchar(128)"`
	BackendType   string                                `gorm:"type:varchar(32);not null;default:'varchar'"`
	FrontendInput integration.FrontendInput             `gorm:"type:varchar(32);not null;default:'text'"`
	Status        integration.MappingStatus             `gorm:"type:varchar(1);not null;default:'N';index"`
	Options       datatypes.JSONType[map[string]string] `gorm:"column:options"`
	Notes         string                                `gorm:"type:text"`
	CreatedAt     time.Time                             `gorm:"not null"`
	UpdatedAt     time.Time                             `gorm:"not null"`
}

// TableName returns the table name for GORM
func (AttributeMappingModel) TableName() string {
	return "attribute_mappings"
}

// ToDomain converts the model to a domain AttributeMapping
func (m *AttributeMappingModel) ToDomain() integration.AttributeMapping {
	options := m.Options.Data()
	if options == nil {
		options = map[string]string{}
	}
	return integration.AttributeMapping{
		ID:            m.ID,
		AttributeCode: m.AttributeCode,
		SourceKey:     m.SourceKey,
		BackendType:   m.BackendType,
		FrontendInput: m.FrontendInput,
		Status:        m.Status,
		Options:       options,
		Notes:         m.Notes,
	}
}

// AttributeMappingModelFromDomain creates a model from a domain mapping
func AttributeMappingModelFromDomain(a integration.AttributeMapping) *AttributeMappingModel {
	options := a.Options
	if options == nil {
		options = map[string]string{}
	}
	return &AttributeMappingModel{
		ID:            a.ID,
		AttributeCode: a.AttributeCode,
		SourceKey:     a.SourceKey,
		BackendType:   a.BackendType,
		FrontendInput: a.FrontendInput,
		Status:        a.Status,
		Options:       datatypes.NewJSONType(options),
		Notes:         a.Notes,
	}
}
