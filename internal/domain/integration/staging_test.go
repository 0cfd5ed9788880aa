package integration

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		key    string
		prefix string
		want   string
	}{
		{"Web_Export_Products_PartNumber", PrefixProducts, "part_number"},
		{"Web_Export_Products_GroupBaseSKUList", PrefixProducts, "group_base_sku_list"},
		{"Web_Export_Products_RecordID", PrefixProducts, "record_id"},
		{"Web_Export_ListPrice_UnitPrice", PrefixListPrice, "unit_price"},
		{"Web_Export_ListPriceQtyBreaks_Quantity", PrefixListPriceBreak, "quantity"},
		{"Web_Export_Customers_BT_Address1", PrefixCustomers, "bt_address1"},
		{"Web_Export_Customers_CountryISO", PrefixCustomers, "country_iso"},
		{"SellableQty", "", "sellable_qty"},
		{"already_snake", "", "already_snake"},
		{"Features1Label", "", "features1_label"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.key, tt.prefix))
		})
	}
}

func TestNormalizeRow(t *testing.T) {
	row := NormalizeRow(map[string]any{"Web_Export_ProductInventory_Plant": "RBW", "Web_Export_ProductInventory_SellableQty": 4.0}, PrefixInventory)
	assert.Equal(t, map[string]any{"plant": "RBW", "sellable_qty": 4.0}, row)
}

func TestProductMaster_BundleLinks(t *testing.T) {
	p := ProductMaster{BundledSKUs: "KIT-A_2~KIT-B~ ~KIT-C_x"}
	links := p.BundleLinks()
	assert.Equal(t, []BundleLink{
		{BundleSKU: "KIT-A", Qty: 2},
		{BundleSKU: "KIT-B", Qty: 1},
		{BundleSKU: "KIT-C", Qty: 1},
	}, links)

	assert.Empty(t, ProductMaster{}.BundleLinks())
}

func TestProductMaster_IsNewInCommerce(t *testing.T) {
	id := int64(5)
	zero := int64(0)
	assert.True(t, ProductMaster{}.IsNewInCommerce())
	assert.True(t, ProductMaster{ACProductID: &zero}.IsNewInCommerce())
	assert.False(t, ProductMaster{ACProductID: &id}.IsNewInCommerce())
}

func TestProductPrice_IsBasePrice(t *testing.T) {
	assert.True(t, ProductPrice{Qty: decimal.RequireFromString("1.000")}.IsBasePrice())
	assert.False(t, ProductPrice{Qty: decimal.NewFromInt(10)}.IsBasePrice())
}

func TestValueHelpers(t *testing.T) {
	assert.Equal(t, "", AsString(nil))
	assert.Equal(t, "12.5", AsString(12.5))
	assert.Equal(t, "true", AsString(true))
	assert.True(t, AsDecimal("3.25").Equal(decimal.RequireFromString("3.25")))
	assert.True(t, AsDecimal("n/a").IsZero())
	assert.True(t, AsDecimal(4.0).Equal(decimal.NewFromInt(4)))

	for _, v := range []any{true, 1.0, "1", "Y", "yes"} {
		assert.True(t, AsBool(v), "%v", v)
	}
	for _, v := range []any{false, 0.0, "0", "n", "", nil} {
		assert.False(t, AsBool(v), "%v", v)
	}
}

func TestCriteria(t *testing.T) {
	c := NewCriteria(0, 0, StatusIn(SyncStatusNew))
	assert.Equal(t, 1, c.PageNumber)
	assert.Equal(t, 1, c.PageSize)
	assert.Equal(t, 0, c.Offset())
	assert.Len(t, c.Groups, 1)

	c2 := NewCriteria(3, 10).And(Eq("sku", "A"), Eq("sku", "B"))
	assert.Equal(t, 20, c2.Offset())
	assert.Len(t, c2.Groups, 1)
	assert.Len(t, c2.Groups[0], 2)

	assert.Equal(t, []string{"a", "b"}, SplitValues(" a,,b ,"))
}

func TestCriteria_CommerceQuery(t *testing.T) {
	c := NewCriteria(1, 50, In("attribute_code", "color", "size"))
	q := c.CommerceQuery()

	assert.Equal(t, "attribute_code", q.Get("searchCriteria[filter_groups][0][filters][0][field]"))
	assert.Equal(t, "color,size", q.Get("searchCriteria[filter_groups][0][filters][0][value]"))
	assert.Equal(t, "in", q.Get("searchCriteria[filter_groups][0][filters][0][condition_type]"))
	assert.Equal(t, "50", q.Get("searchCriteria[pageSize]"))
	assert.Equal(t, "1", q.Get("searchCriteria[currentPage]"))
	assert.Empty(t, q.Get("searchCriteria[sortOrders][0][field]"))

	sorted := NewCriteria(2, 10, Eq("sku", "A"))
	sorted.OrderBy, sorted.OrderDir = "entity_id", "desc"
	q = sorted.CommerceQuery()
	assert.Equal(t, "eq", q.Get("searchCriteria[filter_groups][0][filters][0][condition_type]"))
	assert.Equal(t, "DESC", q.Get("searchCriteria[sortOrders][0][direction]"))
}
