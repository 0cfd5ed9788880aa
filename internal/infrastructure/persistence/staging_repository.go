package persistence

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/erp/kksync/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// upsertBatchSize bounds the rows of one INSERT .. ON CONFLICT statement
const upsertBatchSize = 200

// stagingModel is implemented by the pointer type of every staging model.
type stagingModel[M any, T integration.Staged] interface {
	*M
	TableName() string
	Columns() *models.StagingColumns
	NaturalKey() string
	ToDomain() T
	FromDomain(T)
}

// stagingTable implements paging and natural-key upserts for one staging
// table. Typed repositories embed it.
type stagingTable[M any, T integration.Staged, PM stagingModel[M, T]] struct {
	db     *gorm.DB
	fields map[string]bool
	// keyColumns is the natural key used as the ON CONFLICT target
	keyColumns []string
	// updateColumns are overwritten when an upsert matches an existing row.
	// Commerce ids are never part of it.
	updateColumns []string
}

// FindPage returns one page of rows matching criteria ordered by id unless
// the criteria name another allowed field.
func (s *stagingTable[M, T, PM]) FindPage(ctx context.Context, criteria integration.Criteria) (integration.Page[T], error) {
	criteria = criteria.Normalize()

	countQuery, err := s.filtered(ctx, criteria)
	if err != nil {
		return integration.Page[T]{}, err
	}
	var total int64
	if err := countQuery.Count(&total).Error; err != nil {
		return integration.Page[T]{}, fmt.Errorf("count %s: %w", PM(new(M)).TableName(), err)
	}
	if total == 0 {
		return integration.Page[T]{}, nil
	}

	query, err := s.filtered(ctx, criteria)
	if err != nil {
		return integration.Page[T]{}, err
	}
	orderBy := ValidateSortField(criteria.OrderBy, s.fields, "id")
	orderDir := ValidateSortOrder(criteria.OrderDir, "ASC")

	var rows []M
	if err := query.Order(orderBy + " " + orderDir).
		Offset(criteria.Offset()).
		Limit(criteria.PageSize).
		Find(&rows).Error; err != nil {
		return integration.Page[T]{}, fmt.Errorf("read %s: %w", PM(new(M)).TableName(), err)
	}

	items := make([]T, len(rows))
	for i := range rows {
		items[i] = PM(&rows[i]).ToDomain()
	}
	return integration.Page[T]{Items: items, TotalCount: total}, nil
}

func (s *stagingTable[M, T, PM]) filtered(ctx context.Context, criteria integration.Criteria) (*gorm.DB, error) {
	query, err := applyCriteria(s.db.WithContext(ctx).Model(PM(new(M))), criteria.Groups, s.fields)
	if err != nil {
		return nil, err
	}
	if !criteria.SyncedBefore.IsZero() {
		query = query.Where("(synced_at IS NULL OR synced_at < ?)", criteria.SyncedBefore)
	}
	return query, nil
}

// Upsert inserts rows or updates the row with the same natural key. Rows
// without a status are stored as N. Duplicate keys in one call keep the
// last row.
func (s *stagingTable[M, T, PM]) Upsert(ctx context.Context, rows []T) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	index := make(map[string]int, len(rows))
	batch := make([]M, 0, len(rows))
	for _, row := range rows {
		var m M
		PM(&m).FromDomain(row)
		base := PM(&m).Columns()
		if base.SyncStatus == "" {
			base.SyncStatus = integration.SyncStatusNew
		}
		// Inserts always get a fresh id
		base.ID = 0

		key := PM(&m).NaturalKey()
		if i, ok := index[key]; ok {
			batch[i] = m
			continue
		}
		index[key] = len(batch)
		batch = append(batch, m)
	}

	columns := make([]clause.Column, len(s.keyColumns))
	for i, c := range s.keyColumns {
		columns[i] = clause.Column{Name: c}
	}

	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   columns,
			DoUpdates: clause.AssignmentColumns(s.updateColumns),
		}).
		CreateInBatches(&batch, upsertBatchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("upsert %s: %w", PM(new(M)).TableName(), result.Error)
	}
	return len(batch), nil
}

// applyCriteria adds one WHERE clause per filter group. Filters inside a
// group are ORed; groups are ANDed.
func applyCriteria(query *gorm.DB, groups []integration.FilterGroup, allowed map[string]bool) (*gorm.DB, error) {
	for _, group := range groups {
		parts := make([]string, 0, len(group))
		args := make([]any, 0, len(group))
		for _, f := range group {
			if err := ValidateFilterField(f.Field, allowed); err != nil {
				return nil, err
			}
			field := strings.TrimSpace(f.Field)
			switch f.Condition {
			case integration.ConditionEq:
				if len(f.Values) == 0 {
					return nil, fmt.Errorf("%w: %s eq without value", integration.ErrStagingFieldNotAllowed, field)
				}
				parts = append(parts, field+" = ?")
				args = append(args, f.Values[0])
			case integration.ConditionIn:
				parts = append(parts, field+" IN ?")
				args = append(args, f.Values)
			default:
				return nil, fmt.Errorf("%w: condition %q", integration.ErrStagingFieldNotAllowed, f.Condition)
			}
		}
		if len(parts) == 0 {
			continue
		}
		query = query.Where("("+strings.Join(parts, " OR ")+")", args...)
	}
	return query, nil
}

// ---------------------------------------------------------------------------
// Typed staging repositories
// ---------------------------------------------------------------------------

var stagingRowColumns = []string{"raw_data", "sync_status", "notes", "updated_at"}

func updateColumns(cols ...string) []string {
	return append(append([]string{}, stagingRowColumns...), cols...)
}

// GormProductStagingRepository implements StagingRepository for product rows
type GormProductStagingRepository struct {
	stagingTable[models.ProductStagingModel, integration.ProductMaster, *models.ProductStagingModel]
}

// NewGormProductStagingRepository creates a new GormProductStagingRepository
func NewGormProductStagingRepository(db *gorm.DB) *GormProductStagingRepository {
	return &GormProductStagingRepository{stagingTable[models.ProductStagingModel, integration.ProductMaster, *models.ProductStagingModel]{
		db:            db,
		fields:        ProductStagingFields,
		keyColumns:    []string{"sku"},
		updateColumns: updateColumns("store_code", "type_id", "configurable_sku", "grouped_skus", "bundled_skus"),
	}}
}

// FindPage returns a page of product rows. The commerce id of each
// configurable parent is filled from the parent's own staging row.
func (r *GormProductStagingRepository) FindPage(ctx context.Context, criteria integration.Criteria) (integration.Page[integration.ProductMaster], error) {
	page, err := r.stagingTable.FindPage(ctx, criteria)
	if err != nil || page.Len() == 0 {
		return page, err
	}

	var parents []string
	for _, p := range page.Items {
		if p.ConfigurableSKU != "" {
			parents = append(parents, p.ConfigurableSKU)
		}
	}
	if len(parents) == 0 {
		return page, nil
	}

	var rows []models.ProductStagingModel
	if err := r.db.WithContext(ctx).
		Select("sku", "ac_product_id").
		Where("sku IN ? AND ac_product_id IS NOT NULL", parents).
		Find(&rows).Error; err != nil {
		return page, fmt.Errorf("read configurable parents: %w", err)
	}
	ids := make(map[string]int64, len(rows))
	for _, row := range rows {
		ids[row.SKU] = *row.ACProductID
	}
	for i := range page.Items {
		if id, ok := ids[page.Items[i].ConfigurableSKU]; ok {
			page.Items[i].ACConfigurableProductID = &id
		}
	}
	return page, nil
}

// GormPriceStagingRepository implements StagingRepository for price rows
type GormPriceStagingRepository struct {
	stagingTable[models.PriceStagingModel, integration.ProductPrice, *models.PriceStagingModel]
}

// NewGormPriceStagingRepository creates a new GormPriceStagingRepository
func NewGormPriceStagingRepository(db *gorm.DB) *GormPriceStagingRepository {
	return &GormPriceStagingRepository{stagingTable[models.PriceStagingModel, integration.ProductPrice, *models.PriceStagingModel]{
		db:            db,
		fields:        PriceStagingFields,
		keyColumns:    []string{"sku", "qty", "website_code", "customer_group"},
		updateColumns: updateColumns("price", "price_value_type"),
	}}
}

// GormInventoryStagingRepository implements StagingRepository for inventory rows
type GormInventoryStagingRepository struct {
	stagingTable[models.InventoryStagingModel, integration.ProductInventory, *models.InventoryStagingModel]
}

// NewGormInventoryStagingRepository creates a new GormInventoryStagingRepository
func NewGormInventoryStagingRepository(db *gorm.DB) *GormInventoryStagingRepository {
	return &GormInventoryStagingRepository{stagingTable[models.InventoryStagingModel, integration.ProductInventory, *models.InventoryStagingModel]{
		db:            db,
		fields:        InventoryStagingFields,
		keyColumns:    []string{"sku", "source_code"},
		updateColumns: updateColumns("qty", "store_code"),
	}}
}

// GormCompanyStagingRepository implements StagingRepository for company rows
type GormCompanyStagingRepository struct {
	stagingTable[models.CompanyStagingModel, integration.Company, *models.CompanyStagingModel]
}

// NewGormCompanyStagingRepository creates a new GormCompanyStagingRepository
func NewGormCompanyStagingRepository(db *gorm.DB) *GormCompanyStagingRepository {
	return &GormCompanyStagingRepository{stagingTable[models.CompanyStagingModel, integration.Company, *models.CompanyStagingModel]{
		db:         db,
		fields:     CompanyStagingFields,
		keyColumns: []string{"cust_id"},
		updateColumns: updateColumns("personal_account", "web_admin_contact_id", "primary_billing_contact_id",
			"bill_to_same_as_main_address", "website_code", "customer_type_code"),
	}}
}

// GormContactStagingRepository implements StagingRepository for contact rows
type GormContactStagingRepository struct {
	stagingTable[models.ContactStagingModel, integration.Contact, *models.ContactStagingModel]
}

// NewGormContactStagingRepository creates a new GormContactStagingRepository
func NewGormContactStagingRepository(db *gorm.DB) *GormContactStagingRepository {
	return &GormContactStagingRepository{stagingTable[models.ContactStagingModel, integration.Contact, *models.ContactStagingModel]{
		db:            db,
		fields:        ContactStagingFields,
		keyColumns:    []string{"contact_id"},
		updateColumns: updateColumns("cust_id"),
	}}
}

// ---------------------------------------------------------------------------
// Outcome and linkage writes
// ---------------------------------------------------------------------------

// stagingTables maps an entity kind to its table
var stagingTables = map[integration.EntityKind]string{
	integration.EntityProduct:   models.ProductStagingModel{}.TableName(),
	integration.EntityPrice:     models.PriceStagingModel{}.TableName(),
	integration.EntityInventory: models.InventoryStagingModel{}.TableName(),
	integration.EntityCompany:   models.CompanyStagingModel{}.TableName(),
	integration.EntityContact:   models.ContactStagingModel{}.TableName(),
}

// GormStagingWriter writes apply outcomes and commerce ids back to staging.
// It implements OutcomeRecorder and LinkageRecorder.
type GormStagingWriter struct {
	db *gorm.DB
}

// NewGormStagingWriter creates a new GormStagingWriter
func NewGormStagingWriter(db *gorm.DB) *GormStagingWriter {
	return &GormStagingWriter{db: db}
}

type outcomeGroup struct {
	status   integration.SyncStatus
	notes    string
	syncedAt time.Time
	ids      []uint64
}

// RecordOutcomes patches status, notes and sync time of every outcome in
// one transaction. Outcomes sharing status and notes become one UPDATE
// stamped with the latest sync time of the group, so no row is stamped
// earlier than its own apply.
func (w *GormStagingWriter) RecordOutcomes(ctx context.Context, entity integration.EntityKind, outcomes []integration.Outcome) error {
	table, ok := stagingTables[entity]
	if !ok {
		return fmt.Errorf("%w: %q", integration.ErrStagingInvalidEntity, entity)
	}
	if len(outcomes) == 0 {
		return nil
	}

	var groups []*outcomeGroup
	byKey := make(map[string]*outcomeGroup)
	for _, o := range outcomes {
		syncedAt := o.SyncedAt
		if syncedAt.IsZero() {
			syncedAt = time.Now()
		}
		key := string(o.Status) + "\x00" + o.Notes
		g, ok := byKey[key]
		if !ok {
			g = &outcomeGroup{status: o.Status, notes: o.Notes, syncedAt: syncedAt}
			byKey[key] = g
			groups = append(groups, g)
		}
		if syncedAt.After(g.syncedAt) {
			g.syncedAt = syncedAt
		}
		g.ids = append(g.ids, o.RecordID)
	}

	return w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, g := range groups {
			if err := tx.Table(table).
				Where("id IN ?", g.ids).
				Updates(map[string]any{
					"sync_status": g.status,
					"notes":       g.notes,
					"synced_at":   g.syncedAt,
					"updated_at":  time.Now(),
				}).Error; err != nil {
				return fmt.Errorf("record outcomes on %s: %w", table, err)
			}
		}
		return nil
	})
}

// SetProductID stores the commerce product id of sku
func (w *GormStagingWriter) SetProductID(ctx context.Context, sku string, productID int64) error {
	return w.setID(ctx, integration.EntityProduct, "sku", sku, "ac_product_id", productID)
}

// SetCompanyID stores the commerce company id of a customer account
func (w *GormStagingWriter) SetCompanyID(ctx context.Context, custID string, companyID int64) error {
	return w.setID(ctx, integration.EntityCompany, "cust_id", custID, "ac_company_id", companyID)
}

// SetCustomerID stores the commerce customer id of a contact
func (w *GormStagingWriter) SetCustomerID(ctx context.Context, contactID string, customerID int64) error {
	return w.setID(ctx, integration.EntityContact, "contact_id", contactID, "ac_customer_id", customerID)
}

func (w *GormStagingWriter) setID(ctx context.Context, entity integration.EntityKind, keyColumn, key, idColumn string, id int64) error {
	if key == "" || id == 0 {
		return nil
	}
	return w.db.WithContext(ctx).
		Table(stagingTables[entity]).
		Where(keyColumn+" = ?", key).
		Update(idColumn, id).Error
}
