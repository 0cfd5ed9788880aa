package integration

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// Commerce payload constants
const (
	defaultAttributeSetID = 4
	productTypeSimple     = "simple"
	// visibilityCatalogSearch is used for products sold on their own
	visibilityCatalogSearch = 4
	// visibilityNotVisible hides children of a configurable product
	visibilityNotVisible = 1
	specialDateLayout    = "2006-01-02 15:04:05"
)

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

var (
	payloadValidator     *validator.Validate
	payloadValidatorOnce sync.Once
)

func getPayloadValidator() *validator.Validate {
	payloadValidatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		payloadValidator = v
	})
	return payloadValidator
}

// ValidatePayload checks the required fields of a payload. Missing fields
// are reported as a *integration.ValidationError listing their JSON names.
func ValidatePayload(payload any) error {
	err := getPayloadValidator().Struct(payload)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return &integration.ValidationError{Missing: missing}
}

// amount renders a decimal as a JSON number
func amount(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

// ---------------------------------------------------------------------------
// Products
// ---------------------------------------------------------------------------

// CustomAttribute is one entry of custom_attributes.
type CustomAttribute struct {
	AttributeCode string `json:"attribute_code"`
	Value         any    `json:"value"`
}

// NewProduct is the body of a product creation.
type NewProduct struct {
	SKU              string            `json:"sku" validate:"required"`
	Name             string            `json:"name" validate:"required"`
	Weight           any               `json:"weight"`
	AttributeSetID   int               `json:"attribute_set_id"`
	Price            json.Number       `json:"price" validate:"required"`
	Status           any               `json:"status"`
	Visibility       int               `json:"visibility"`
	TypeID           string            `json:"type_id"`
	CustomAttributes []CustomAttribute `json:"custom_attributes"`
}

// ProductUpdate is the body of an update to an existing product. Name and
// price are owned by commerce once the product exists.
type ProductUpdate struct {
	SKU              string            `json:"sku" validate:"required"`
	Weight           any               `json:"weight"`
	Status           any               `json:"status"`
	CustomAttributes []CustomAttribute `json:"custom_attributes"`
}

// ProductRequest wraps a product body for POST products.
type ProductRequest struct {
	Product any `json:"product"`
}

// ProductResponse is the part of a saved product the sync reads back.
type ProductResponse struct {
	ID  int64  `json:"id"`
	SKU string `json:"sku"`
}

// ChildLink is the body of POST configurable-products/{sku}/child.
type ChildLink struct {
	ChildSKU string `json:"childSku" validate:"required"`
}

// BundleProductLink is one product link of a bundle option.
type BundleProductLink struct {
	SKU               string `json:"sku"`
	Qty               int64  `json:"qty"`
	IsDefault         bool   `json:"is_default"`
	Price             int    `json:"price"`
	PriceType         int    `json:"price_type"`
	CanChangeQuantity int    `json:"can_change_quantity"`
}

// BundleOption is a bundle option as read from and sent to commerce.
type BundleOption struct {
	OptionID     int64               `json:"option_id,omitempty"`
	SKU          string              `json:"sku"`
	Title        string              `json:"title"`
	Type         string              `json:"type"`
	Required     bool                `json:"required"`
	ProductLinks []BundleProductLink `json:"product_links"`
}

// HasSKU reports whether the option links sku
func (o BundleOption) HasSKU(sku string) bool {
	for _, l := range o.ProductLinks {
		if l.SKU == sku {
			return true
		}
	}
	return false
}

// BundleOptionRequest is the body of POST bundle-products/options/add.
type BundleOptionRequest struct {
	Option BundleOption `json:"option"`
}

// BundleSeed saves a bundle with its first option.
type BundleSeed struct {
	Product     BundleSeedProduct `json:"product"`
	SaveOptions bool              `json:"saveOptions"`
}

// BundleSeedProduct is the product part of BundleSeed.
type BundleSeedProduct struct {
	SKU                 string              `json:"sku"`
	ExtensionAttributes BundleSeedExtension `json:"extension_attributes"`
	CustomAttributes    []CustomAttribute   `json:"custom_attributes"`
}

// BundleSeedExtension carries the bundle options of BundleSeedProduct.
type BundleSeedExtension struct {
	BundleProductOptions []BundleOption `json:"bundle_product_options"`
}

// OptionLabel is the body part of an attribute option creation.
type OptionLabel struct {
	Label string `json:"label"`
}

// OptionPayload is the body of POST products/attributes/{code}/options.
type OptionPayload struct {
	Option OptionLabel `json:"option"`
}

// ---------------------------------------------------------------------------
// Prices
// ---------------------------------------------------------------------------

// BasePrice is one entry of POST products/base-prices.
type BasePrice struct {
	Price               json.Number    `json:"price" validate:"required"`
	StoreID             int            `json:"store_id"`
	SKU                 string         `json:"sku" validate:"required"`
	ExtensionAttributes map[string]any `json:"extension_attributes"`
}

// TierPrice is one entry of POST products/tier-prices and tier-prices-delete.
type TierPrice struct {
	Price         json.Number `json:"price" validate:"required"`
	PriceType     string      `json:"price_type"`
	WebsiteID     int         `json:"website_id"`
	SKU           string      `json:"sku" validate:"required"`
	CustomerGroup string      `json:"customer_group"`
	Quantity      json.Number `json:"quantity" validate:"required"`
}

// PricesRequest wraps a list of price entries.
type PricesRequest[P any] struct {
	Prices []P `json:"prices"`
}

// PriceUpdateError is one entry of the error list returned by the price
// endpoints. Parameters are positional and depend on the message template.
type PriceUpdateError struct {
	Message    string `json:"message"`
	Parameters []any  `json:"parameters"`
}

// param returns the i-th parameter as a string, "" when absent
func (e PriceUpdateError) param(i int) string {
	if i < len(e.Parameters) {
		return integration.AsString(e.Parameters[i])
	}
	return ""
}

// ---------------------------------------------------------------------------
// Inventory
// ---------------------------------------------------------------------------

// SourceItem is one entry of POST inventory/source-items.
type SourceItem struct {
	SourceCode string `json:"source_code" validate:"required"`
	SKU        string `json:"sku" validate:"required"`
	Quantity   int64  `json:"quantity"`
	Status     int    `json:"status"`
}

// SourceItemsRequest wraps the source items of one page.
type SourceItemsRequest struct {
	SourceItems []SourceItem `json:"sourceItems"`
}

// ---------------------------------------------------------------------------
// Customers and companies
// ---------------------------------------------------------------------------

// CompanyAttributes links a customer to a company.
type CompanyAttributes struct {
	CompanyID int64 `json:"company_id"`
}

// CustomerExtension is the extension_attributes part of a customer.
type CustomerExtension struct {
	CompanyAttributes *CompanyAttributes `json:"company_attributes,omitempty"`
}

// Customer is a commerce customer body.
type Customer struct {
	ID                  int64              `json:"id,omitempty"`
	Email               string             `json:"email" validate:"required"`
	Firstname           string             `json:"firstname" validate:"required"`
	Lastname            string             `json:"lastname" validate:"required"`
	WebsiteID           int                `json:"website_id"`
	GroupID             int                `json:"group_id"`
	StoreID             int                `json:"store_id"`
	CustomAttributes    []CustomAttribute  `json:"custom_attributes,omitempty"`
	ExtensionAttributes *CustomerExtension `json:"extension_attributes,omitempty"`
}

// CustomerRequest wraps a customer body.
type CustomerRequest struct {
	Customer Customer `json:"customer"`
}

// CustomerResponse is the part of a saved customer the sync reads back.
type CustomerResponse struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// CompanyExtension carries the ERP attributes of a company.
type CompanyExtension struct {
	KKAttributes []string `json:"kk_attributes"`
}

// CompanyData is a commerce company body.
type CompanyData struct {
	ID                  int64            `json:"id,omitempty"`
	CompanyName         string           `json:"company_name" validate:"required"`
	LegalName           string           `json:"legal_name,omitempty"`
	CompanyEmail        string           `json:"company_email" validate:"required"`
	SuperUserID         int64            `json:"super_user_id" validate:"required"`
	Region              string           `json:"region,omitempty"`
	Postcode            string           `json:"postcode,omitempty"`
	City                string           `json:"city,omitempty"`
	CountryID           string           `json:"country_id,omitempty"`
	Street              []string         `json:"street"`
	CustomerGroupID     int              `json:"customer_group_id,omitempty"`
	Telephone           string           `json:"telephone,omitempty"`
	ExtensionAttributes CompanyExtension `json:"extension_attributes"`
}

// CompanyRequest wraps a company body.
type CompanyRequest struct {
	Company CompanyData `json:"company"`
}

// CompanyResponse is the part of a saved company the sync reads back.
type CompanyResponse struct {
	ID int64 `json:"id"`
}
