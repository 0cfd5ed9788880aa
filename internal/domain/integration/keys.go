package integration

import (
	"strings"
	"unicode"
)

// ERP export prefixes stripped from field keys before normalization.
const (
	PrefixProducts       = "Web_Export_Products_"
	PrefixListPrice      = "Web_Export_ListPrice"
	PrefixListPriceBreak = "Web_Export_ListPriceQtyBreaks"
	PrefixInventory      = "Web_Export_ProductInventory_"
	PrefixCustomers      = "Web_Export_Customers_"
	PrefixContacts       = "Web_Export_Contacts_"
)

// NormalizeKey strips prefix from key and converts the remainder from
// camelCase to snake_case. Acronyms stay together: "BaseSKUList" becomes
// "base_sku_list". Existing underscores are kept, repeated ones collapse.
func NormalizeKey(key, prefix string) string {
	if prefix != "" {
		key = strings.TrimPrefix(key, prefix)
	}
	runes := []rune(strings.Trim(key, "_ "))
	var b strings.Builder
	b.Grow(len(runes) + 4)
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		if r == ' ' || r == '-' {
			r = '_'
		}
		b.WriteRune(unicode.ToLower(r))
	}
	out := b.String()
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	return out
}

// NormalizeRow applies NormalizeKey to every key of row.
func NormalizeRow(row map[string]any, prefix string) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		out[NormalizeKey(k, prefix)] = v
	}
	return out
}
