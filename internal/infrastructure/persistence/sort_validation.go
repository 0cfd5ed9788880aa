package persistence

import (
	"fmt"
	"strings"

	"github.com/erp/kksync/internal/domain/integration"
)

// ValidateSortOrder validates and normalizes the sort order to ASC or DESC.
// Returns defaultDir if the input is empty or invalid.
func ValidateSortOrder(orderDir, defaultDir string) string {
	switch strings.ToUpper(strings.TrimSpace(orderDir)) {
	case "ASC":
		return "ASC"
	case "DESC":
		return "DESC"
	}
	return defaultDir
}

// ValidateSortField validates the sort field against a whitelist of allowed fields.
// Returns the defaultField if the input is invalid, empty, or not in the whitelist.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if trimmed == "" {
		return defaultField
	}
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// ValidateFilterField rejects filter fields outside the whitelist. Unlike
// sorting, a bad filter field is an error: silently dropping it would widen
// the result set.
func ValidateFilterField(field string, allowedFields map[string]bool) error {
	if !allowedFields[strings.TrimSpace(field)] {
		return fmt.Errorf("%w: %q", integration.ErrStagingFieldNotAllowed, field)
	}
	return nil
}

// stagingCommonFields are present on every staging table
var stagingCommonFields = map[string]bool{
	"id":          true,
	"created_at":  true,
	"updated_at":  true,
	"sync_status": true,
	"synced_at":   true,
}

func withCommon(fields ...string) map[string]bool {
	out := make(map[string]bool, len(stagingCommonFields)+len(fields))
	for k := range stagingCommonFields {
		out[k] = true
	}
	for _, f := range fields {
		out[f] = true
	}
	return out
}

// ProductStagingFields contains allowed filter and sort fields for staging_products
var ProductStagingFields = withCommon("sku", "store_code", "type_id", "configurable_sku", "ac_product_id")

// PriceStagingFields contains allowed filter and sort fields for staging_prices
var PriceStagingFields = withCommon("sku", "qty", "price", "price_value_type", "website_code", "customer_group")

// InventoryStagingFields contains allowed filter and sort fields for staging_inventories
var InventoryStagingFields = withCommon("sku", "source_code", "store_code")

// CompanyStagingFields contains allowed filter and sort fields for staging_companies
var CompanyStagingFields = withCommon("cust_id", "web_admin_contact_id", "website_code", "customer_type_code", "ac_company_id")

// ContactStagingFields contains allowed filter and sort fields for staging_contacts
var ContactStagingFields = withCommon("contact_id", "cust_id", "ac_customer_id")

// SyncRunSortFields contains allowed sort fields for sync runs
var SyncRunSortFields = map[string]bool{
	"started_at": true,
	"ended_at":   true,
	"task":       true,
	"status":     true,
}
