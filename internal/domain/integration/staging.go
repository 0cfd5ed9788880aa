package integration

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// EntityKind
// ---------------------------------------------------------------------------

// EntityKind identifies a staging table.
type EntityKind string

const (
	EntityProduct   EntityKind = "product"
	EntityPrice     EntityKind = "price"
	EntityInventory EntityKind = "inventory"
	EntityCompany   EntityKind = "company"
	EntityContact   EntityKind = "contact"
)

// IsValid returns true if the entity kind is known
func (k EntityKind) IsValid() bool {
	switch k {
	case EntityProduct, EntityPrice, EntityInventory, EntityCompany, EntityContact:
		return true
	}
	return false
}

// ---------------------------------------------------------------------------
// StagingRecord
// ---------------------------------------------------------------------------

// StagingRecord holds the columns shared by every staging row.
// Rows are created by ingestion with status N, patched in place after each
// apply attempt and never deleted by the sync.
type StagingRecord struct {
	ID         uint64
	NaturalKey string
	// Raw is the ERP payload with normalized snake_case keys
	Raw        map[string]any
	Status     SyncStatus
	Notes      string
	SyncedAt   *time.Time
	CreatedAt  time.Time
}

// RecordID returns the staging row id
func (r StagingRecord) RecordID() uint64 {
	return r.ID
}

// RawString returns a raw field as a string, "" when absent.
func (r StagingRecord) RawString(key string) string {
	return AsString(r.Raw[key])
}

// RawDecimal parses a raw field as a decimal, zero when absent or invalid.
func (r StagingRecord) RawDecimal(key string) decimal.Decimal {
	return AsDecimal(r.Raw[key])
}

// Staged is implemented by every typed staging row.
type Staged interface {
	RecordID() uint64
}

// ProductMaster is a staging row of the product master table.
type ProductMaster struct {
	StagingRecord
	SKU       string
	StoreCode string
	TypeID    string
	// ConfigurableSKU is the parent configurable product, if any
	ConfigurableSKU string
	// GroupedSKUs is a "~" separated list of grouped parents
	GroupedSKUs string
	// BundledSKUs is a "~" separated list of "bundleSku_qty" items
	BundledSKUs string
	// ACProductID is the commerce product id once the product exists there
	ACProductID *int64
	// ACConfigurableProductID is the commerce id of the configurable parent
	ACConfigurableProductID *int64
}

// IsNewInCommerce reports whether the product still has to be created
func (p ProductMaster) IsNewInCommerce() bool {
	return p.ACProductID == nil || *p.ACProductID == 0
}

// BundleLink is one entry of ProductMaster.BundledSKUs.
type BundleLink struct {
	BundleSKU string
	Qty       int64
}

// BundleLinks parses the "~" separated bundle list. Each item is
// "bundleSku_qty"; a missing or invalid quantity defaults to 1.
func (p ProductMaster) BundleLinks() []BundleLink {
	var links []BundleLink
	for _, item := range strings.Split(p.BundledSKUs, "~") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		sku, qtyStr, _ := strings.Cut(item, "_")
		qty, err := strconv.ParseInt(strings.TrimSpace(qtyStr), 10, 64)
		if err != nil || qty <= 0 {
			qty = 1
		}
		links = append(links, BundleLink{BundleSKU: sku, Qty: qty})
	}
	return links
}

// PriceValueType distinguishes price updates from deletions.
type PriceValueType string

const (
	PriceValueFixed   PriceValueType = "fixed"
	PriceValueDeleted PriceValueType = "deleted"
)

// ProductPrice is a staging row of the price table. Qty 1 rows are list
// prices, others are tier prices.
type ProductPrice struct {
	StagingRecord
	SKU            string
	Qty            decimal.Decimal
	Price          decimal.Decimal
	PriceValueType PriceValueType
	WebsiteCode    string
	CustomerGroup  string
}

// IsBasePrice reports whether the row is a list price
func (p ProductPrice) IsBasePrice() bool {
	return p.Qty.Equal(decimal.NewFromInt(1))
}

// ProductInventory is a staging row of the inventory table.
type ProductInventory struct {
	StagingRecord
	SKU        string
	SourceCode string
	Qty        decimal.Decimal
	StoreCode  string
}

// Company is a staging row of the company table.
type Company struct {
	StagingRecord
	CustID                  string
	PersonalAccount         string
	WebAdminContactID       string
	PrimaryBillingContactID string
	BillToSameAsMainAddress string
	WebsiteCode             string
	CustomerTypeCode        string
	ACCompanyID             *int64
}

// Contact is a staging row of the contact table.
type Contact struct {
	StagingRecord
	ContactID    string
	CustID       string
	ACCustomerID *int64
}

// ---------------------------------------------------------------------------
// Value helpers
// ---------------------------------------------------------------------------

// AsString renders a raw JSON value as a string.
func AsString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case decimal.Decimal:
		return t.String()
	}
	return fmt.Sprintf("%v", v)
}

// AsDecimal parses a raw JSON value as a decimal, zero when invalid.
func AsDecimal(v any) decimal.Decimal {
	switch t := v.(type) {
	case float64:
		return decimal.NewFromFloat(t)
	case int:
		return decimal.NewFromInt(int64(t))
	case int64:
		return decimal.NewFromInt(t)
	case decimal.Decimal:
		return t
	}
	d, err := decimal.NewFromString(strings.TrimSpace(AsString(v)))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// AsBool interprets the ERP's boolean encodings.
func AsBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case int:
		return t != 0
	}
	switch strings.ToLower(strings.TrimSpace(AsString(v))) {
	case "1", "true", "y", "yes":
		return true
	}
	return false
}
