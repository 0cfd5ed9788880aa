package persistence

import (
	"testing"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/stretchr/testify/assert"
)

func TestValidateSortOrder(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		defaultDir string
		expected   string
	}{
		{"empty string returns default", "", "ASC", "ASC"},
		{"empty string returns DESC default", "", "DESC", "DESC"},
		{"asc lowercase returns ASC", "asc", "DESC", "ASC"},
		{"desc lowercase returns DESC", "desc", "ASC", "DESC"},
		{"invalid value returns default", "INVALID", "ASC", "ASC"},
		{"sql injection attempt returns default", "ASC; DROP TABLE sync_runs;--", "ASC", "ASC"},
		{"whitespace around asc returns ASC", "  asc  ", "DESC", "ASC"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortOrder(tt.input, tt.defaultDir))
		})
	}
}

func TestValidateSortField(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		defaultField string
		expected     string
	}{
		{"empty string returns default", "", "id", "id"},
		{"valid field returns field", "sku", "id", "sku"},
		{"invalid field returns default", "raw_data", "id", "id"},
		{"sql injection attempt returns default", "id; DROP TABLE staging_products;--", "id", "id"},
		{"case sensitive - uppercase invalid", "SKU", "id", "id"},
		{"whitespace around valid field returns field", "  sku  ", "id", "sku"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ValidateSortField(tt.input, ProductStagingFields, tt.defaultField))
		})
	}
}

func TestValidateFilterField(t *testing.T) {
	assert.NoError(t, ValidateFilterField("sync_status", PriceStagingFields))
	assert.NoError(t, ValidateFilterField("customer_group", PriceStagingFields))

	err := ValidateFilterField("sku = sku OR 1=1 --", PriceStagingFields)
	assert.ErrorIs(t, err, integration.ErrStagingFieldNotAllowed)

	assert.ErrorIs(t, ValidateFilterField("cust_id", ProductStagingFields), integration.ErrStagingFieldNotAllowed)
}

func TestStagingFieldWhitelists(t *testing.T) {
	whitelists := map[string]map[string]bool{
		"ProductStagingFields":   ProductStagingFields,
		"PriceStagingFields":     PriceStagingFields,
		"InventoryStagingFields": InventoryStagingFields,
		"CompanyStagingFields":   CompanyStagingFields,
		"ContactStagingFields":   ContactStagingFields,
	}
	for name, fields := range whitelists {
		t.Run(name, func(t *testing.T) {
			assert.True(t, fields["id"], "%s should contain id", name)
			assert.True(t, fields["sync_status"], "%s should contain sync_status", name)
			assert.False(t, fields["raw_data"], "%s should not expose raw_data", name)
		})
	}
}
