package integration

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/erp/kksync/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Names of the ERP export views
const (
	SourceProducts   = "products"
	SourceListPrices = "list_prices"
	SourceTierPrices = "tier_prices"
	SourceInventory  = "inventory"
	SourceCustomers  = "customers"
	SourceContacts   = "contacts"
)

const (
	noteIngested = "Load from ERP API. To be created/updated."
	// notAvailable is the ERP placeholder for a missing product value
	notAvailable = "NA"

	ingestStoreCodeAdmin   = "admin"
	ingestStoreCodeDefault = "default"
	ingestWebsiteDefault   = "default"
	ingestGroupDefault     = "default"
)

// DefaultSourceEntities returns the ERP export views keyed by name
func DefaultSourceEntities() map[string]integration.SourceEntity {
	return map[string]integration.SourceEntity{
		SourceProducts: {
			Name: SourceProducts, Resource: "BaqSvc/RBk22_Web_Products/Data",
			Table: "dbo.Web_Export_Products", Prefix: integration.PrefixProducts,
			OrderBy: "Web_Export_Products_RecordID asc",
		},
		SourceListPrices: {
			Name: SourceListPrices, Resource: "BaqSvc/RBk22_Web_ListPrice/Data",
			Table: "dbo.Web_Export_ListPrice", Prefix: integration.PrefixListPrice,
			OrderBy: "Web_Export_ListPrice_RecordID asc",
		},
		SourceTierPrices: {
			Name: SourceTierPrices, Resource: "BaqSvc/RBk22_Web_ListPriceQtyBreaks/Data",
			Table: "dbo.Web_Export_ListPriceQtyBreaks", Prefix: integration.PrefixListPriceBreak,
			OrderBy: "Web_Export_ListPriceQtyBreaks_RecordID asc",
		},
		SourceInventory: {
			Name: SourceInventory, Resource: "BaqSvc/RBk22_Web_ProductInventory/Data",
			Table: "dbo.Web_Export_ProductInventory", Prefix: integration.PrefixInventory,
			OrderBy: "Web_Export_ProductInventory_RecordID asc",
		},
		SourceCustomers: {
			Name: SourceCustomers, Resource: "BaqSvc/RBk22_Web_Customers/Data",
			Table: "dbo.Web_Export_Customers", Prefix: integration.PrefixCustomers,
			OrderBy: "Web_Export_Customers_RecordID asc",
		},
		SourceContacts: {
			Name: SourceContacts, Resource: "BaqSvc/RBk22_Web_Contacts/Data",
			Table: "dbo.Web_Export_Contacts", Prefix: integration.PrefixContacts,
			OrderBy: "Web_Export_Contacts_RecordID asc",
		},
	}
}

// StagingStores groups the staging repositories written by ingestion.
type StagingStores struct {
	Products  integration.StagingRepository[integration.ProductMaster]
	Prices    integration.StagingRepository[integration.ProductPrice]
	Inventory integration.StagingRepository[integration.ProductInventory]
	Companies integration.StagingRepository[integration.Company]
	Contacts  integration.StagingRepository[integration.Contact]
}

// IngestionService copies ERP export views into the staging tables.
type IngestionService struct {
	source   integration.SourceClient
	stores   StagingStores
	mappings integration.AttributeMappingRepository
	commerce integration.CommerceClient
	fields   *RequiredFields
	control  *ProcessControl
	archive  integration.ExtractArchive
	entities map[string]integration.SourceEntity
	logger   *zap.Logger
}

// IngestionOption configures an IngestionService
type IngestionOption func(*IngestionService)

// WithExtractArchive stores every raw page read from the ERP
func WithExtractArchive(archive integration.ExtractArchive) IngestionOption {
	return func(s *IngestionService) {
		s.archive = archive
	}
}

// WithSourceResources overrides the OData path of export views by name
func WithSourceResources(resources map[string]string) IngestionOption {
	return func(s *IngestionService) {
		for name, resource := range resources {
			entity, ok := s.entities[name]
			if !ok || strings.TrimSpace(resource) == "" {
				continue
			}
			entity.Resource = resource
			s.entities[name] = entity
		}
	}
}

// NewIngestionService creates an IngestionService
func NewIngestionService(
	source integration.SourceClient,
	stores StagingStores,
	mappings integration.AttributeMappingRepository,
	commerce integration.CommerceClient,
	fields *RequiredFields,
	control *ProcessControl,
	logger *zap.Logger,
	opts ...IngestionOption,
) *IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &IngestionService{
		source:   source,
		stores:   stores,
		mappings: mappings,
		commerce: commerce,
		fields:   fields,
		control:  control,
		entities: DefaultSourceEntities(),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Entity returns the export view named name
func (s *IngestionService) Entity(name string) (integration.SourceEntity, bool) {
	e, ok := s.entities[name]
	return e, ok
}

// ingestRun carries the state of one ingestion run
type ingestRun struct {
	def   integration.TaskDefinition
	run   *integration.RunRecord
	pages int
}

// Ingest runs the ingestion task def
func (s *IngestionService) Ingest(ctx context.Context, def integration.TaskDefinition) (RunResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "sync.ingest", telemetry.WithAttribute(telemetry.SpanAttrTask, def.Name))
	defer span.End()

	run, err := s.control.Begin(ctx, def)
	if err != nil {
		telemetry.RecordError(span, err)
		return beginFailure(err), err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrRunID, run.ID.String())

	ir := &ingestRun{def: def, run: run}
	retrieved, err := s.ingest(ctx, ir)
	if err != nil {
		telemetry.RecordError(span, err)
		return s.fail(ctx, run, err), err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrTotal, retrieved)

	notes := fmt.Sprintf("Total %d %s records are retrieved from KK STAGING to AC STAGING", retrieved, def.Noun)
	if err := s.control.Finalize(ctx, run, integration.RunStatusComplete, notes); err != nil {
		return RunResult{StatusCode: http.StatusInternalServerError, Body: serverErrorBody}, err
	}
	return RunResult{StatusCode: http.StatusOK, Body: notes}, nil
}

func (s *IngestionService) fail(ctx context.Context, run *integration.RunRecord, cause error) RunResult {
	s.logger.Error("Ingestion run failed",
		zap.String("task", run.Task),
		zap.String("run_id", run.ID.String()),
		zap.Error(cause),
	)
	if err := s.control.Finalize(ctx, run, integration.RunStatusFailed, cause.Error()); err != nil {
		s.logger.Error("Failed to finalize run", zap.String("run_id", run.ID.String()), zap.Error(err))
	}
	return RunResult{StatusCode: http.StatusInternalServerError, Body: serverErrorBody}
}

func (s *IngestionService) ingest(ctx context.Context, ir *ingestRun) (int, error) {
	switch ir.def.Entity {
	case integration.EntityProduct:
		seeded := false
		return ingestView(ctx, s, ir, s.entities[SourceProducts], s.stores.Products, func(ctx context.Context, rows []map[string]any) []integration.ProductMaster {
			staged := mapRows(rows, s.productRow)
			if !seeded && len(rows) > 0 {
				seeded = true
				s.seedMappings(ctx, rows[0])
			}
			return staged
		})

	case integration.EntityPrice:
		list, err := ingestView(ctx, s, ir, s.entities[SourceListPrices], s.stores.Prices, func(_ context.Context, rows []map[string]any) []integration.ProductPrice {
			return mapRows(rows, func(row map[string]any) (integration.ProductPrice, bool) {
				return s.priceRow(FieldSetListPrice, row)
			})
		})
		if err != nil {
			return list, err
		}
		tier, err := ingestView(ctx, s, ir, s.entities[SourceTierPrices], s.stores.Prices, func(_ context.Context, rows []map[string]any) []integration.ProductPrice {
			return mapRows(rows, func(row map[string]any) (integration.ProductPrice, bool) {
				return s.priceRow(FieldSetTierPrice, row)
			})
		})
		return list + tier, err

	case integration.EntityInventory:
		return ingestView(ctx, s, ir, s.entities[SourceInventory], s.stores.Inventory, func(_ context.Context, rows []map[string]any) []integration.ProductInventory {
			return mapRows(rows, s.inventoryRow)
		})

	case integration.EntityCompany:
		return ingestView(ctx, s, ir, s.entities[SourceCustomers], s.stores.Companies, func(_ context.Context, rows []map[string]any) []integration.Company {
			return mapRows(rows, companyRow)
		})

	case integration.EntityContact:
		return ingestView(ctx, s, ir, s.entities[SourceContacts], s.stores.Contacts, func(_ context.Context, rows []map[string]any) []integration.Contact {
			return mapRows(rows, s.contactRow)
		})
	}
	return 0, fmt.Errorf("%w: %s", integration.ErrStagingInvalidEntity, ir.def.Entity)
}

// ingestView reads every page of entity, stores the mapped rows and marks
// the ERP table processed. It returns the number of rows read.
func ingestView[T integration.Staged](
	ctx context.Context,
	s *IngestionService,
	ir *ingestRun,
	entity integration.SourceEntity,
	repo integration.StagingRepository[T],
	mapPage func(ctx context.Context, rows []map[string]any) []T,
) (int, error) {
	top := ir.def.PageSize
	if top <= 0 {
		top = 100
	}

	retrieved := 0
	for skip := 0; ; skip += top {
		page, err := s.source.GetPage(ctx, entity, skip, top, "")
		if err != nil {
			return retrieved, fmt.Errorf("read %s: %w", entity.Name, err)
		}
		if len(page.Rows) == 0 {
			break
		}
		ir.pages++
		s.archivePage(ctx, ir, page.Rows)

		rows := make([]map[string]any, len(page.Rows))
		for i, raw := range page.Rows {
			rows[i] = integration.NormalizeRow(raw, entity.Prefix)
		}
		staged := mapPage(ctx, rows)
		stored, err := repo.Upsert(ctx, staged)
		if err != nil {
			return retrieved, err
		}
		retrieved += len(page.Rows)
		s.logger.Info("Staging page stored",
			zap.String("task", ir.def.Name),
			zap.String("entity", entity.Name),
			zap.Int("skip", skip),
			zap.Int("rows", len(page.Rows)),
			zap.Int("stored", stored),
			zap.Int64("total", page.TotalCount),
		)
		if int64(retrieved) >= page.TotalCount {
			break
		}
	}

	if retrieved > 0 {
		if err := s.source.MarkProcessed(ctx, entity.Table); err != nil {
			return retrieved, fmt.Errorf("mark %s processed: %w", entity.Table, err)
		}
	}
	return retrieved, nil
}

func (s *IngestionService) archivePage(ctx context.Context, ir *ingestRun, rows []map[string]any) {
	if s.archive == nil {
		return
	}
	if err := s.archive.ArchivePage(ctx, ir.def.Name, ir.run.ID, ir.pages, rows); err != nil {
		s.logger.Warn("Failed to archive ERP page",
			zap.String("task", ir.def.Name),
			zap.Int("page", ir.pages),
			zap.Error(err),
		)
	}
}

// mapRows maps rows with fn and drops the rows it rejects
func mapRows[T any](rows []map[string]any, fn func(map[string]any) (T, bool)) []T {
	out := make([]T, 0, len(rows))
	for _, row := range rows {
		if v, ok := fn(row); ok {
			out = append(out, v)
		}
	}
	return out
}

func newStagingRecord(row map[string]any) integration.StagingRecord {
	return integration.StagingRecord{
		Raw:    row,
		Status: integration.SyncStatusNew,
		Notes:  noteIngested,
	}
}

func (s *IngestionService) productRow(row map[string]any) (integration.ProductMaster, bool) {
	for k, v := range row {
		if str, ok := v.(string); ok && str == notAvailable {
			row[k] = ""
		}
	}
	s.fields.Populate(FieldSetProduct, row)
	sku := strings.TrimSpace(integration.AsString(row["sku"]))
	if sku == "" {
		return integration.ProductMaster{}, false
	}
	return integration.ProductMaster{
		StagingRecord:   newStagingRecord(row),
		SKU:             sku,
		StoreCode:       ingestStoreCodeAdmin,
		TypeID:          productTypeSimple,
		ConfigurableSKU: strings.TrimSpace(integration.AsString(row["base_sku"])),
		GroupedSKUs:     integration.AsString(row["group_base_sku_list"]),
		BundledSKUs:     integration.AsString(row["bundle_base_sku_list"]),
	}, true
}

func (s *IngestionService) priceRow(set string, row map[string]any) (integration.ProductPrice, bool) {
	s.fields.Populate(set, row)
	sku := strings.TrimSpace(integration.AsString(row["sku"]))
	if sku == "" {
		return integration.ProductPrice{}, false
	}
	p := integration.ProductPrice{
		StagingRecord:  newStagingRecord(row),
		SKU:            sku,
		Qty:            integration.AsDecimal(1),
		Price:          integration.AsDecimal(row["price"]),
		PriceValueType: integration.PriceValueFixed,
		WebsiteCode:    ingestWebsiteDefault,
		CustomerGroup:  ingestGroupDefault,
	}
	if q, ok := row["quantity"]; ok {
		p.Qty = integration.AsDecimal(q)
	}
	if integration.AsBool(row["deletion_flag"]) {
		p.PriceValueType = integration.PriceValueDeleted
	}
	return p, true
}

func (s *IngestionService) inventoryRow(row map[string]any) (integration.ProductInventory, bool) {
	s.fields.Populate(FieldSetInventory, row)
	sku := strings.TrimSpace(integration.AsString(row["sku"]))
	source := strings.TrimSpace(integration.AsString(row["source_code"]))
	if sku == "" || source == "" {
		return integration.ProductInventory{}, false
	}
	return integration.ProductInventory{
		StagingRecord: newStagingRecord(row),
		SKU:           sku,
		SourceCode:    source,
		Qty:           integration.AsDecimal(row["qty"]),
		StoreCode:     ingestStoreCodeDefault,
	}, true
}

func companyRow(row map[string]any) (integration.Company, bool) {
	custID := strings.TrimSpace(integration.AsString(row["cust_id"]))
	if custID == "" {
		return integration.Company{}, false
	}
	return integration.Company{
		StagingRecord:           newStagingRecord(row),
		CustID:                  custID,
		PersonalAccount:         integration.AsString(row["personal_account"]),
		WebAdminContactID:       strings.TrimSpace(integration.AsString(row["web_admin_contact_id"])),
		PrimaryBillingContactID: integration.AsString(row["primary_billing_contact_id"]),
		BillToSameAsMainAddress: integration.AsString(row["bill_to_same_as_main_address"]),
		WebsiteCode:             integration.AsString(row["website"]),
		CustomerTypeCode:        integration.AsString(row["customer_type_code"]),
	}, true
}

func (s *IngestionService) contactRow(row map[string]any) (integration.Contact, bool) {
	s.fields.Populate(FieldSetContact, row)
	contactID := strings.TrimSpace(integration.AsString(row["contact_id"]))
	if contactID == "" {
		return integration.Contact{}, false
	}
	return integration.Contact{
		StagingRecord: newStagingRecord(row),
		ContactID:     contactID,
		CustID:        strings.TrimSpace(integration.AsString(row["cust_id"])),
	}, true
}

// attributeSearchResult is the part of GET products/attributes the seed
// reads.
type attributeSearchResult struct {
	Items []struct {
		AttributeCode string `json:"attribute_code"`
		BackendType   string `json:"backend_type"`
		FrontendInput string `json:"frontend_input"`
	} `json:"items"`
}

// seedMappings stores a mapping for every field of the first product row
// that has none yet. Fields named like a commerce attribute are stored as
// found with its metadata. Failures are logged; the next ingestion retries.
func (s *IngestionService) seedMappings(ctx context.Context, row map[string]any) {
	existing, err := s.mappings.FindByStatus(ctx, integration.MappingStatusNew, integration.MappingStatusFound)
	if err != nil {
		s.logger.Warn("Failed to load attribute mappings", zap.Error(err))
		return
	}
	known := make(map[string]bool, len(existing))
	for _, m := range existing {
		known[m.Source()] = true
		known[m.AttributeCode] = true
	}

	keys := make([]string, 0, len(row))
	for k := range row {
		k = strings.TrimSpace(k)
		if k != "" && !known[k] {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return
	}

	var found attributeSearchResult
	criteria := integration.NewCriteria(1, len(keys), integration.In("attribute_code", keys...))
	if err := s.commerce.Get(ctx, "products/attributes", criteria.CommerceQuery(), &found); err != nil {
		s.logger.Warn("Failed to look up commerce attributes", zap.Int("keys", len(keys)), zap.Error(err))
		return
	}
	byCode := make(map[string]int, len(found.Items))
	for i, item := range found.Items {
		byCode[item.AttributeCode] = i
	}

	seeds := make([]integration.AttributeMapping, 0, len(keys))
	for _, k := range keys {
		m, err := integration.NewAttributeMapping(k, k)
		if err != nil {
			continue
		}
		if i, ok := byCode[k]; ok {
			item := found.Items[i]
			m.MarkFound(item.BackendType, integration.FrontendInput(item.FrontendInput))
		}
		seeds = append(seeds, *m)
	}
	if err := s.mappings.SaveAll(ctx, seeds); err != nil {
		s.logger.Warn("Failed to store attribute mappings", zap.Int("count", len(seeds)), zap.Error(err))
		return
	}
	s.logger.Info("Attribute mappings seeded",
		zap.Int("count", len(seeds)),
		zap.Int("found", len(found.Items)),
	)
}
