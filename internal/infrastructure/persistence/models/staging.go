package models

import (
	"time"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// StagingColumns are the columns shared by every staging table.
type StagingColumns struct {
	ID         uint64                 `gorm:"primaryKey;autoIncrement"`
	RawData    datatypes.JSONMap      `gorm:"column:raw_data"`
	SyncStatus integration.SyncStatus `gorm:"type:varchar(1);not null;default:'N';index"`
	Notes      string                 `gorm:"type:text"`
	SyncedAt   *time.Time
	CreatedAt  time.Time `gorm:"not null"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// Columns returns the shared columns of an embedding model
func (c *StagingColumns) Columns() *StagingColumns {
	return c
}

func (c *StagingColumns) toDomain(naturalKey string) integration.StagingRecord {
	return integration.StagingRecord{
		ID:         c.ID,
		NaturalKey: naturalKey,
		Raw:        map[string]any(c.RawData),
		Status:     c.SyncStatus,
		Notes:      c.Notes,
		SyncedAt:   c.SyncedAt,
		CreatedAt:  c.CreatedAt,
	}
}

func (c *StagingColumns) fromDomain(r integration.StagingRecord) {
	c.ID = r.ID
	c.RawData = datatypes.JSONMap(r.Raw)
	c.SyncStatus = r.Status
	c.Notes = r.Notes
	c.SyncedAt = r.SyncedAt
}

// ProductStagingModel is the persistence model of the product master table.
type ProductStagingModel struct {
	StagingColumns
	SKU             string `gorm:"column:sku;type:varchar(128);not null;uniqueIndex"`
	StoreCode       string `gorm:"type:varchar(64)"`
	TypeID          string `gorm:"type:varchar(32)"`
	ConfigurableSKU string `gorm:"column:configurable_sku;type:varchar(128);index"`
	GroupedSKUs     string `gorm:"column:grouped_skus;type:text"`
	BundledSKUs     string `gorm:"column:bundled_skus;type:text"`
	ACProductID     *int64 `gorm:"column:ac_product_id"`
}

// TableName returns the table name for GORM
func (ProductStagingModel) TableName() string {
	return "staging_products"
}

// NaturalKey returns the upsert key of the row
func (m *ProductStagingModel) NaturalKey() string {
	return m.SKU
}

// ToDomain converts the model to a domain ProductMaster. The configurable
// parent id is filled by the repository.
func (m *ProductStagingModel) ToDomain() integration.ProductMaster {
	return integration.ProductMaster{
		StagingRecord:   m.StagingColumns.toDomain(m.NaturalKey()),
		SKU:             m.SKU,
		StoreCode:       m.StoreCode,
		TypeID:          m.TypeID,
		ConfigurableSKU: m.ConfigurableSKU,
		GroupedSKUs:     m.GroupedSKUs,
		BundledSKUs:     m.BundledSKUs,
		ACProductID:     m.ACProductID,
	}
}

// FromDomain populates the model from a domain ProductMaster
func (m *ProductStagingModel) FromDomain(p integration.ProductMaster) {
	m.StagingColumns.fromDomain(p.StagingRecord)
	m.SKU = p.SKU
	m.StoreCode = p.StoreCode
	m.TypeID = p.TypeID
	m.ConfigurableSKU = p.ConfigurableSKU
	m.GroupedSKUs = p.GroupedSKUs
	m.BundledSKUs = p.BundledSKUs
	m.ACProductID = p.ACProductID
}

// PriceStagingModel is the persistence model of the price table. List
// prices and tier prices share it; qty 1 rows are list prices.
type PriceStagingModel struct {
	StagingColumns
	SKU            string                     `gorm:"column:sku;type:varchar(128);not null;uniqueIndex:uq_staging_prices_key,priority:1"`
	Qty            decimal.Decimal            `gorm:"type:decimal(18,4);not null;uniqueIndex:uq_staging_prices_key,priority:2"`
	Price          decimal.Decimal            `gorm:"type:decimal(18,4);not null"`
	PriceValueType integration.PriceValueType `gorm:"type:varchar(16);not null;default:'fixed'"`
	WebsiteCode    string                     `gorm:"type:varchar(64);not null;uniqueIndex:uq_staging_prices_key,priority:3"`
	CustomerGroup  string                     `gorm:"type:varchar(64);not null;uniqueIndex:uq_staging_prices_key,priority:4"`
}

// TableName returns the table name for GORM
func (PriceStagingModel) TableName() string {
	return "staging_prices"
}

// NaturalKey returns the upsert key of the row
func (m *PriceStagingModel) NaturalKey() string {
	return m.SKU + "|" + m.Qty.String() + "|" + m.WebsiteCode + "|" + m.CustomerGroup
}

// ToDomain converts the model to a domain ProductPrice
func (m *PriceStagingModel) ToDomain() integration.ProductPrice {
	return integration.ProductPrice{
		StagingRecord:  m.StagingColumns.toDomain(m.NaturalKey()),
		SKU:            m.SKU,
		Qty:            m.Qty,
		Price:          m.Price,
		PriceValueType: m.PriceValueType,
		WebsiteCode:    m.WebsiteCode,
		CustomerGroup:  m.CustomerGroup,
	}
}

// FromDomain populates the model from a domain ProductPrice
func (m *PriceStagingModel) FromDomain(p integration.ProductPrice) {
	m.StagingColumns.fromDomain(p.StagingRecord)
	m.SKU = p.SKU
	m.Qty = p.Qty
	m.Price = p.Price
	m.PriceValueType = p.PriceValueType
	m.WebsiteCode = p.WebsiteCode
	m.CustomerGroup = p.CustomerGroup
}

// InventoryStagingModel is the persistence model of the inventory table.
type InventoryStagingModel struct {
	StagingColumns
	SKU        string          `gorm:"column:sku;type:varchar(128);not null;uniqueIndex:uq_staging_inventories_key,priority:1"`
	SourceCode string          `gorm:"type:varchar(64);not null;uniqueIndex:uq_staging_inventories_key,priority:2"`
	Qty        decimal.Decimal `gorm:"type:decimal(18,4);not null"`
	StoreCode  string          `gorm:"type:varchar(64)"`
}

// TableName returns the table name for GORM
func (InventoryStagingModel) TableName() string {
	return "staging_inventories"
}

// NaturalKey returns the upsert key of the row
func (m *InventoryStagingModel) NaturalKey() string {
	return m.SKU + "|" + m.SourceCode
}

// ToDomain converts the model to a domain ProductInventory
func (m *InventoryStagingModel) ToDomain() integration.ProductInventory {
	return integration.ProductInventory{
		StagingRecord: m.StagingColumns.toDomain(m.NaturalKey()),
		SKU:           m.SKU,
		SourceCode:    m.SourceCode,
		Qty:           m.Qty,
		StoreCode:     m.StoreCode,
	}
}

// FromDomain populates the model from a domain ProductInventory
func (m *InventoryStagingModel) FromDomain(p integration.ProductInventory) {
	m.StagingColumns.fromDomain(p.StagingRecord)
	m.SKU = p.SKU
	m.SourceCode = p.SourceCode
	m.Qty = p.Qty
	m.StoreCode = p.StoreCode
}

// CompanyStagingModel is the persistence model of the company table.
type CompanyStagingModel struct {
	StagingColumns
	CustID                  string `gorm:"column:cust_id;type:varchar(64);not null;uniqueIndex"`
	PersonalAccount         string `gorm:"type:varchar(16)"`
	WebAdminContactID       string `gorm:"type:varchar(64);index"`
	PrimaryBillingContactID string `gorm:"type:varchar(64)"`
	BillToSameAsMainAddress string `gorm:"type:varchar(16)"`
	WebsiteCode             string `gorm:"type:varchar(64)"`
	CustomerTypeCode        string `gorm:"type:varchar(32)"`
	ACCompanyID             *int64 `gorm:"column:ac_company_id"`
}

// TableName returns the table name for GORM
func (CompanyStagingModel) TableName() string {
	return "staging_companies"
}

// NaturalKey returns the upsert key of the row
func (m *CompanyStagingModel) NaturalKey() string {
	return m.CustID
}

// ToDomain converts the model to a domain Company
func (m *CompanyStagingModel) ToDomain() integration.Company {
	return integration.Company{
		StagingRecord:           m.StagingColumns.toDomain(m.NaturalKey()),
		CustID:                  m.CustID,
		PersonalAccount:         m.PersonalAccount,
		WebAdminContactID:       m.WebAdminContactID,
		PrimaryBillingContactID: m.PrimaryBillingContactID,
		BillToSameAsMainAddress: m.BillToSameAsMainAddress,
		WebsiteCode:             m.WebsiteCode,
		CustomerTypeCode:        m.CustomerTypeCode,
		ACCompanyID:             m.ACCompanyID,
	}
}

// FromDomain populates the model from a domain Company
func (m *CompanyStagingModel) FromDomain(c integration.Company) {
	m.StagingColumns.fromDomain(c.StagingRecord)
	m.CustID = c.CustID
	m.PersonalAccount = c.PersonalAccount
	m.WebAdminContactID = c.WebAdminContactID
	m.PrimaryBillingContactID = c.PrimaryBillingContactID
	m.BillToSameAsMainAddress = c.BillToSameAsMainAddress
	m.WebsiteCode = c.WebsiteCode
	m.CustomerTypeCode = c.CustomerTypeCode
	m.ACCompanyID = c.ACCompanyID
}

// ContactStagingModel is the persistence model of the contact table.
type ContactStagingModel struct {
	StagingColumns
	ContactID    string `gorm:"column:contact_id;type:varchar(64);not null;uniqueIndex"`
	CustID       string `gorm:"column:cust_id;type:varchar(64);index"`
	ACCustomerID *int64 `gorm:"column:ac_customer_id"`
}

// TableName returns the table name for GORM
func (ContactStagingModel) TableName() string {
	return "staging_contacts"
}

// NaturalKey returns the upsert key of the row
func (m *ContactStagingModel) NaturalKey() string {
	return m.ContactID
}

// ToDomain converts the model to a domain Contact
func (m *ContactStagingModel) ToDomain() integration.Contact {
	return integration.Contact{
		StagingRecord: m.StagingColumns.toDomain(m.NaturalKey()),
		ContactID:     m.ContactID,
		CustID:        m.CustID,
		ACCustomerID:  m.ACCustomerID,
	}
}

// FromDomain populates the model from a domain Contact
func (m *ContactStagingModel) FromDomain(c integration.Contact) {
	m.StagingColumns.fromDomain(c.StagingRecord)
	m.ContactID = c.ContactID
	m.CustID = c.CustID
	m.ACCustomerID = c.ACCustomerID
}
