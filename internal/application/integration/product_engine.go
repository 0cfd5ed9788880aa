package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Product outcome notes
const (
	noteSimpleSaved         = "Simple product create/update successfully"
	noteSimpleSaveFailed    = "Simple product create/update failed with error: "
	noteConfigurableMissing = "Base sku has not been setup in AC"
	noteConfigurableLinked  = "Assigned to configurable product successfully."
	noteConfigurableLink    = "Configurable product link: "
)

// ProductEngine creates and updates products in commerce and links them
// to their configurable and bundle parents.
type ProductEngine struct {
	client      integration.CommerceClient
	transformer *Transformer
	mappings    integration.AttributeMappingRepository
	prices      integration.StagingReader[integration.ProductPrice]
	links       integration.LinkageRecorder
	concurrency int
	logger      *zap.Logger
	now         func() time.Time

	mu   sync.Mutex
	base *integration.MappingTable
}

// NewProductEngine creates a ProductEngine
func NewProductEngine(
	client integration.CommerceClient,
	transformer *Transformer,
	mappings integration.AttributeMappingRepository,
	prices integration.StagingReader[integration.ProductPrice],
	links integration.LinkageRecorder,
	concurrency int,
	logger *zap.Logger,
) *ProductEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductEngine{
		client:      client,
		transformer: transformer,
		mappings:    mappings,
		prices:      prices,
		links:       links,
		concurrency: concurrency,
		logger:      logger,
		now:         time.Now,
	}
}

// Prepare loads the confirmed attribute mappings and their option caches
// for the run.
func (e *ProductEngine) Prepare(ctx context.Context) error {
	mappings, err := e.mappings.FindByStatus(ctx, integration.MappingStatusFound)
	if err != nil {
		return fmt.Errorf("load attribute mappings: %w", err)
	}
	e.mu.Lock()
	e.base = integration.NewMappingTable(mappings)
	e.mu.Unlock()
	e.logger.Info("Attribute mappings loaded", zap.Int("count", len(mappings)))
	return nil
}

func (e *ProductEngine) table(ctx context.Context) (*integration.MappingTable, error) {
	e.mu.Lock()
	base := e.base
	e.mu.Unlock()
	if base != nil {
		return base, nil
	}
	if err := e.Prepare(ctx); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.base, nil
}

// Apply saves one page of products. The page works on a copy of the
// mapping table; option ids it creates are merged into the run table and
// persisted afterwards.
func (e *ProductEngine) Apply(ctx context.Context, records []integration.ProductMaster) []integration.Outcome {
	base, err := e.table(ctx)
	if err != nil {
		outcomes := make([]integration.Outcome, len(records))
		for i, r := range records {
			outcomes[i] = integration.OutcomeFromError(r.ID, err)
		}
		return outcomes
	}

	page := base.Clone()
	outcomes := applyEach(ctx, records, e.concurrency, func(ctx context.Context, p integration.ProductMaster) integration.Outcome {
		return e.applyOne(ctx, p, page).Outcome(p.ID)
	})

	for _, code := range base.Merge(page) {
		m, _ := base.Get(code)
		if err := e.mappings.MergeOptions(ctx, code, m.Options); err != nil {
			e.logger.Warn("Failed to persist attribute options", zap.String("attribute_code", code), zap.Error(err))
		}
	}
	return outcomes
}

func (e *ProductEngine) applyOne(ctx context.Context, p integration.ProductMaster, table *integration.MappingTable) integration.OutcomeDelta {
	attrs := e.transformer.Transform(ctx, p.Raw, table)
	payload, err := e.buildPayload(ctx, p, attrs)
	if err != nil {
		return integration.DeltaFromError(err)
	}

	var (
		deltas []integration.OutcomeDelta
		saved  bool
	)
	if p.ConfigurableSKU != "" {
		d, ok := e.linkConfigurable(ctx, p, payload)
		deltas = append(deltas, d)
		if !ok {
			return integration.Fold(deltas...)
		}
		saved = true
	}

	if links := p.BundleLinks(); len(links) > 0 {
		if !saved {
			if err := e.saveProduct(ctx, p, payload); err != nil {
				deltas = append(deltas, prefixed(noteSimpleSaveFailed, err))
				return integration.Fold(deltas...)
			}
			saved = true
		}
		deltas = append(deltas, e.linkBundles(ctx, p.SKU, attrs.Text("name"), links)...)
	}

	if !saved {
		if err := e.saveProduct(ctx, p, payload); err != nil {
			return prefixed(noteSimpleSaveFailed, err)
		}
		deltas = append(deltas, integration.Ok(noteSimpleSaved))
	}
	return integration.Fold(deltas...)
}

// buildPayload builds the creation or update body of p. A new product
// needs a price: the closeout original price, else the staged list price.
func (e *ProductEngine) buildPayload(ctx context.Context, p integration.ProductMaster, attrs Attributes) (any, error) {
	sku := attrs.Text("sku")
	if sku == "" {
		sku = p.SKU
	}
	custom := e.customAttributes(p, attrs)
	weight, _ := attrs.Get("weight")
	status, _ := attrs.Get("status")

	if !p.IsNewInCommerce() {
		update := ProductUpdate{SKU: sku, Weight: weight, Status: status, CustomAttributes: custom}
		if err := ValidatePayload(update); err != nil {
			return nil, err
		}
		return update, nil
	}

	visibility := visibilityCatalogSearch
	if p.ConfigurableSKU != "" {
		visibility = visibilityNotVisible
	}
	product := NewProduct{
		SKU:              sku,
		Name:             attrs.Text("name"),
		Weight:           weight,
		AttributeSetID:   defaultAttributeSetID,
		Status:           status,
		Visibility:       visibility,
		TypeID:           productTypeSimple,
		CustomAttributes: custom,
	}
	if product.SKU != "" && product.Name != "" {
		price, err := e.newProductPrice(ctx, sku, attrs)
		if err != nil {
			return nil, err
		}
		if price.IsPositive() {
			product.Price = amount(price)
		}
	}
	if err := ValidatePayload(product); err != nil {
		return nil, err
	}
	return product, nil
}

func (e *ProductEngine) newProductPrice(ctx context.Context, sku string, attrs Attributes) (decimal.Decimal, error) {
	if v, ok := attrs.Get("closeout_original_price"); ok {
		if price := integration.AsDecimal(v); price.IsPositive() {
			return price, nil
		}
	}
	criteria := integration.NewCriteria(1, 1,
		integration.Eq("sku", sku),
		integration.Eq("website_code", "default"),
		integration.Eq("customer_group", "default"),
		integration.Eq("qty", "1"),
	)
	page, err := e.prices.FindPage(ctx, criteria)
	if err != nil {
		return decimal.Zero, fmt.Errorf("look up list price of %s: %w", sku, err)
	}
	if page.Len() == 0 {
		return decimal.Zero, nil
	}
	return page.Items[0].Price, nil
}

// customAttributes lists every transformed attribute except sku and name.
// The description of an existing product is owned by commerce. A positive
// closeout price becomes a special price valid for one year.
func (e *ProductEngine) customAttributes(p integration.ProductMaster, attrs Attributes) []CustomAttribute {
	custom := make([]CustomAttribute, 0, len(attrs)+3)
	for _, av := range attrs {
		switch av.Code {
		case "sku", "name":
			continue
		case "description":
			if !p.IsNewInCommerce() {
				continue
			}
		}
		custom = append(custom, CustomAttribute{AttributeCode: av.Code, Value: av.Value})
	}

	if v, ok := attrs.Get("closeout_price"); ok && integration.AsDecimal(v).IsPositive() {
		now := e.now().UTC()
		custom = append(custom,
			CustomAttribute{AttributeCode: "special_price", Value: v},
			CustomAttribute{AttributeCode: "special_from_date", Value: now.Format(specialDateLayout)},
			CustomAttribute{AttributeCode: "special_to_date", Value: now.AddDate(1, 0, 0).Format(specialDateLayout)},
		)
	}
	return custom
}

func (e *ProductEngine) saveProduct(ctx context.Context, p integration.ProductMaster, payload any) error {
	var resp ProductResponse
	if err := e.client.Post(ctx, "products", ProductRequest{Product: payload}, &resp); err != nil {
		return err
	}
	if p.IsNewInCommerce() && resp.ID > 0 {
		if err := e.links.SetProductID(ctx, p.SKU, resp.ID); err != nil {
			e.logger.Warn("Failed to record commerce product id", zap.String("sku", p.SKU), zap.Error(err))
		}
	}
	return nil
}

// linkConfigurable saves the product and assigns it to its configurable
// parent. ok is false when the product was not saved.
func (e *ProductEngine) linkConfigurable(ctx context.Context, p integration.ProductMaster, payload any) (integration.OutcomeDelta, bool) {
	if p.ACConfigurableProductID == nil || *p.ACConfigurableProductID == 0 {
		e.logger.Info("Configurable parent missing in commerce",
			zap.String("sku", p.SKU),
			zap.String("configurable_sku", p.ConfigurableSKU),
		)
		return integration.Failed(noteConfigurableMissing), false
	}
	if err := e.saveProduct(ctx, p, payload); err != nil {
		return prefixed(noteSimpleSaveFailed, err), false
	}

	resource := "configurable-products/" + url.PathEscape(p.ConfigurableSKU) + "/child"
	if err := e.client.Post(ctx, resource, ChildLink{ChildSKU: p.SKU}, nil); err != nil {
		return prefixed(noteConfigurableLink, err), true
	}
	return integration.Ok(noteConfigurableLinked), true
}

// linkBundles adds sku to every bundle of links, concurrently.
func (e *ProductEngine) linkBundles(ctx context.Context, sku, title string, links []integration.BundleLink) []integration.OutcomeDelta {
	deltas := make([]integration.OutcomeDelta, len(links))
	var wg sync.WaitGroup
	for i, link := range links {
		wg.Add(1)
		go func() {
			defer wg.Done()
			deltas[i] = e.linkBundle(ctx, sku, title, link)
		}()
	}
	wg.Wait()
	return deltas
}

func (e *ProductEngine) linkBundle(ctx context.Context, sku, title string, link integration.BundleLink) integration.OutcomeDelta {
	bundle := url.PathEscape(link.BundleSKU)
	var options []BundleOption
	if err := e.client.Get(ctx, "bundle-products/"+bundle+"/options/all", nil, &options); err != nil {
		var httpErr *integration.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return integration.Failed(fmt.Sprintf("Bundled sku %s has not been setup in AC", link.BundleSKU))
		}
		return prefixed("Failed to get bundled product options with error: ", err)
	}

	linked := false
	for _, opt := range options {
		if len(opt.ProductLinks) == 0 && opt.OptionID > 0 {
			resource := fmt.Sprintf("bundle-products/%s/options/%d", bundle, opt.OptionID)
			if err := e.client.Delete(ctx, resource, nil); err != nil {
				e.logger.Warn("Failed to delete empty bundle option",
					zap.String("bundle_sku", link.BundleSKU),
					zap.Int64("option_id", opt.OptionID),
					zap.Error(err),
				)
			}
		}
		if opt.HasSKU(sku) {
			linked = true
		}
	}

	linkedNote := fmt.Sprintf("Simple sku %s has been linked with bundled sku %s in AC", sku, link.BundleSKU)
	if linked {
		return integration.Ok(linkedNote)
	}

	option := BundleOption{
		SKU:      link.BundleSKU,
		Title:    title,
		Type:     "select",
		Required: true,
		ProductLinks: []BundleProductLink{
			{SKU: sku, Qty: link.Qty, IsDefault: true},
		},
	}
	var err error
	if len(options) > 0 {
		err = e.client.Post(ctx, "bundle-products/options/add", BundleOptionRequest{Option: option}, nil)
	} else {
		seed := BundleSeed{
			Product: BundleSeedProduct{
				SKU:                 link.BundleSKU,
				ExtensionAttributes: BundleSeedExtension{BundleProductOptions: []BundleOption{option}},
				CustomAttributes:    []CustomAttribute{{AttributeCode: "shipment_type", Value: "1"}},
			},
			SaveOptions: true,
		}
		err = e.client.Post(ctx, "products", seed, nil)
	}
	if err != nil {
		return prefixed(fmt.Sprintf("Simple sku %s has failed to link with bundled sku %s. Error ", sku, link.BundleSKU), err)
	}
	return integration.Ok(linkedNote)
}

// prefixed classifies err and prepends prefix to its note
func prefixed(prefix string, err error) integration.OutcomeDelta {
	d := integration.DeltaFromError(err)
	d.Note = prefix + d.Note
	return d
}

var _ Engine[integration.ProductMaster] = (*ProductEngine)(nil)
