package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func contactRecord(id uint64, contactID, custID string) integration.Contact {
	return integration.Contact{
		StagingRecord: integration.StagingRecord{
			ID:     id,
			Status: integration.SyncStatusNew,
			Raw: map[string]any{
				"contact_id":    contactID,
				"cust_id":       custID,
				"first_name":    "Ada",
				"last_name":     "Lovelace",
				"email_address": contactID + "@example.com",
				"phone_num":     "555-0100",
				"web_enabled":   true,
			},
		},
		ContactID: contactID,
		CustID:    custID,
	}
}

func companyRecord(id uint64, custID, adminID string) integration.Company {
	return integration.Company{
		StagingRecord: integration.StagingRecord{
			ID:     id,
			Status: integration.SyncStatusNew,
			Raw: map[string]any{
				"cust_id":              custID,
				"company_name":         "Company " + custID,
				"address1":             "1 Main St",
				"address2":             "",
				"city":                 "Springfield",
				"country_id":           "US",
				"postcode":             "12345",
				"web_admin_contact_id": adminID,
				"po_required":          true,
				"website":              "base",
			},
		},
		CustID:            custID,
		WebAdminContactID: adminID,
		WebsiteCode:       "base",
	}
}

type companyFixture struct {
	commerce *fakeCommerce
	contacts *MockStagingRepository[integration.Contact]
	outcomes *MockOutcomeRecorder
	links    *MockLinkageRecorder
	engine   *CompanyEngine
}

func newCompanyFixture() *companyFixture {
	f := &companyFixture{
		commerce: newFakeCommerce(),
		contacts: new(MockStagingRepository[integration.Contact]),
		outcomes: new(MockOutcomeRecorder),
		links:    new(MockLinkageRecorder),
	}
	f.engine = NewCompanyEngine(f.commerce, f.contacts, f.outcomes, f.links, mustRequiredFields(), 4, zap.NewNop())
	return f
}

func TestCompanyEngine_SavesAdminThenCompany(t *testing.T) {
	f := newCompanyFixture()
	f.contacts.On("FindPage", mock.Anything, mock.MatchedBy(func(c integration.Criteria) bool {
		return c.Groups[0][0].Field == "contact_id" && assert.ObjectsAreEqual([]string{"C1"}, c.Groups[0][0].Values)
	})).Return(integration.Page[integration.Contact]{Items: []integration.Contact{contactRecord(11, "C1", "CUST1")}, TotalCount: 1}, nil)
	f.commerce.reply("POST", "customers", map[string]any{"id": 500, "email": "c1@example.com"})
	f.commerce.reply("POST", "company", map[string]any{"id": 900})
	f.links.On("SetCustomerID", mock.Anything, "C1", int64(500)).Return(nil)
	f.links.On("SetCompanyID", mock.Anything, "CUST1", int64(900)).Return(nil)
	f.outcomes.On("RecordOutcomes", mock.Anything, integration.EntityContact, mock.MatchedBy(func(o []integration.Outcome) bool {
		return len(o) == 1 && o[0].RecordID == 11 && o[0].Status == integration.SyncStatusOk
	})).Return(nil)

	outcomes := f.engine.Apply(context.Background(), []integration.Company{companyRecord(1, "CUST1", "C1")})

	require.Len(t, outcomes, 1)
	assert.Equal(t, integration.SyncStatusOk, outcomes[0].Status)
	assert.Equal(t, noteAdminContactSaved+" "+noteCompanySaved, outcomes[0].Notes)

	customers := f.commerce.callsTo("POST", "customers")
	require.Len(t, customers, 1)
	customer := customers[0].Body()["customer"].(map[string]any)
	assert.Equal(t, "C1@example.com", customer["email"])
	assert.Equal(t, "Ada", customer["firstname"])
	assert.NotContains(t, customer, "id")
	assert.NotContains(t, customer, "extension_attributes")

	companies := f.commerce.callsTo("POST", "company")
	require.Len(t, companies, 1)
	company := companies[0].Body()["company"].(map[string]any)
	assert.Equal(t, "Company CUST1", company["company_name"])
	assert.Equal(t, "c1@example.com", company["company_email"])
	assert.Equal(t, float64(500), company["super_user_id"])
	assert.Equal(t, []any{"1 Main St"}, company["street"])
	assert.Equal(t, float64(companyCustomerGroupID), company["customer_group_id"])
	assert.Equal(t, companyTelephone, company["telephone"])
	assert.NotContains(t, company, "id")
	assert.Equal(t, []any{
		"cust_id:CUST1", "web_admin_contact_id:C1", "website:base", "po_required:1",
	}, company["extension_attributes"].(map[string]any)["kk_attributes"])

	f.links.AssertExpectations(t)
	f.outcomes.AssertExpectations(t)
}

func TestCompanyEngine_ExistingCompanyKeepsItsID(t *testing.T) {
	f := newCompanyFixture()
	admin := contactRecord(11, "C1", "CUST1")
	admin.ACCustomerID = int64Ptr(500)
	f.contacts.On("FindPage", mock.Anything, mock.Anything).
		Return(integration.Page[integration.Contact]{Items: []integration.Contact{admin}, TotalCount: 1}, nil)
	f.outcomes.On("RecordOutcomes", mock.Anything, integration.EntityContact, mock.Anything).Return(nil)

	record := companyRecord(1, "CUST1", "C1")
	record.ACCompanyID = int64Ptr(900)
	outcomes := f.engine.Apply(context.Background(), []integration.Company{record})

	assert.Equal(t, integration.SyncStatusOk, outcomes[0].Status)
	assert.Len(t, f.commerce.callsTo("PUT", "customers/500"), 1)
	company := f.commerce.callsTo("POST", "company")[0].Body()["company"].(map[string]any)
	assert.Equal(t, float64(900), company["id"])
	assert.Equal(t, float64(500), company["super_user_id"])
	assert.NotContains(t, company, "customer_group_id")
	f.links.AssertNotCalled(t, "SetCompanyID", mock.Anything, mock.Anything, mock.Anything)
	f.links.AssertNotCalled(t, "SetCustomerID", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompanyEngine_WithoutAdminContact(t *testing.T) {
	f := newCompanyFixture()

	outcomes := f.engine.Apply(context.Background(), []integration.Company{companyRecord(1, "CUST1", "")})

	assert.Equal(t, integration.SyncStatusFailed, outcomes[0].Status)
	assert.Equal(t, `Missing required fields: ["company_email","super_user_id"]`, outcomes[0].Notes)
	assert.Zero(t, f.commerce.callCount())
	f.contacts.AssertNotCalled(t, "FindPage", mock.Anything, mock.Anything)
}

func TestCompanyEngine_AdminFailureFoldsIntoCompany(t *testing.T) {
	f := newCompanyFixture()
	f.contacts.On("FindPage", mock.Anything, mock.Anything).
		Return(integration.Page[integration.Contact]{Items: []integration.Contact{contactRecord(11, "C1", "CUST1")}, TotalCount: 1}, nil)
	f.commerce.fail("POST", "customers", httpError(400, "POST", "customers", map[string]any{"message": "A customer with the same email address already exists in an associated website."}))
	f.outcomes.On("RecordOutcomes", mock.Anything, integration.EntityContact, mock.MatchedBy(func(o []integration.Outcome) bool {
		return len(o) == 1 && o[0].Status == integration.SyncStatusFailed
	})).Return(errors.New("db gone"))

	outcomes := f.engine.Apply(context.Background(), []integration.Company{companyRecord(1, "CUST1", "C1")})

	assert.Equal(t, integration.SyncStatusFailed, outcomes[0].Status)
	assert.Contains(t, outcomes[0].Notes, noteAdminContactSaveFailed+`{"message":"A customer with the same email address`)
	assert.Contains(t, outcomes[0].Notes, "Missing required fields")
	assert.Empty(t, f.commerce.callsTo("POST", "company"))
}

func TestCompanyEngine_SharedAdminIsSavedOnce(t *testing.T) {
	f := newCompanyFixture()
	f.contacts.On("FindPage", mock.Anything, mock.Anything).
		Return(integration.Page[integration.Contact]{Items: []integration.Contact{contactRecord(11, "C1", "CUST1")}, TotalCount: 1}, nil)
	f.commerce.reply("POST", "customers", map[string]any{"id": 500})
	f.commerce.fail("POST", "company", httpError(500, "POST", "company", "boom"))
	f.links.On("SetCustomerID", mock.Anything, "C1", int64(500)).Return(nil)
	f.outcomes.On("RecordOutcomes", mock.Anything, integration.EntityContact, mock.Anything).Return(nil)

	outcomes := f.engine.Apply(context.Background(), []integration.Company{
		companyRecord(1, "CUST1", "C1"),
		companyRecord(2, "CUST2", " C1 "),
	})

	assert.Len(t, f.commerce.callsTo("POST", "customers"), 1)
	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.Equal(t, integration.SyncStatusError, o.Status)
		assert.Contains(t, o.Notes, noteAdminContactSaved)
		assert.Contains(t, o.Notes, noteCompanySaveFailed)
	}
}

func TestCompanyEngine_ContactReadFailure(t *testing.T) {
	f := newCompanyFixture()
	f.contacts.On("FindPage", mock.Anything, mock.Anything).
		Return(integration.Page[integration.Contact]{}, errors.New("connection refused"))

	outcomes := f.engine.Apply(context.Background(), []integration.Company{
		companyRecord(1, "CUST1", "C1"),
		companyRecord(2, "CUST2", "C2"),
	})

	for _, o := range outcomes {
		assert.Equal(t, integration.SyncStatusError, o.Status)
		assert.Contains(t, o.Notes, "connection refused")
	}
	assert.Zero(t, f.commerce.callCount())
}
