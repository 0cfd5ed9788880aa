package integration

import (
	"context"
	"strings"

	"github.com/erp/kksync/internal/domain/integration"
	"go.uber.org/zap"
)

// Company outcome notes
const (
	noteAdminContactSaved      = "admin contact create/update successfully"
	noteAdminContactSaveFailed = "admin contact create/update failed with error: "
	noteCompanySaved           = "company create/update successfully"
	noteCompanySaveFailed      = "Company create/update failed with error: "
)

// New companies get these until the storefront fills them in
const (
	companyCustomerGroupID = 1
	companyTelephone       = "123-456-7890"
)

// companyERPKeys are the ERP fields carried on the company as
// "key:value" strings, in this order.
var companyERPKeys = []string{
	"cust_id", "personal_account", "web_admin_contact_id", "primary_billing_contact_id",
	"payment_terms", "bill_to_same_as_main_address",
	"bt_address1", "bt_address2", "bt_address3", "bt_city", "bt_country_iso", "bt_state", "bt_region_id", "bt_zip",
	"fein", "fax", "website", "customer_type_code", "customer_deletion_flag",
	"po_required", "auth_buyers_required", "do_not_mail_invoices", "blind_dropship_enabled", "ship_collect_enabled",
}

var companyStreetKeys = []string{"address1", "address2", "address3"}

// CompanyEngine syncs a page of companies together with their admin
// contacts. Each admin contact becomes the company's super user, so it is
// saved first and its outcome is written to the contact table as well.
type CompanyEngine struct {
	contacts    integration.StagingReader[integration.Contact]
	outcomes    integration.OutcomeRecorder
	links       integration.LinkageRecorder
	client      integration.CommerceClient
	customers   *customerWriter
	concurrency int
	logger      *zap.Logger
}

// NewCompanyEngine creates a CompanyEngine
func NewCompanyEngine(
	client integration.CommerceClient,
	contacts integration.StagingReader[integration.Contact],
	outcomes integration.OutcomeRecorder,
	links integration.LinkageRecorder,
	fields *RequiredFields,
	concurrency int,
	logger *zap.Logger,
) *CompanyEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CompanyEngine{
		contacts:    contacts,
		outcomes:    outcomes,
		links:       links,
		client:      client,
		customers:   &customerWriter{client: client, fields: fields, links: links, logger: logger},
		concurrency: concurrency,
		logger:      logger,
	}
}

// superUser is the saved admin contact of a company
type superUser struct {
	delta integration.OutcomeDelta
	id    int64
	email string
}

// Apply saves the admin contacts of the page, then the companies
func (e *CompanyEngine) Apply(ctx context.Context, records []integration.Company) []integration.Outcome {
	admins, err := e.saveAdminContacts(ctx, records)
	if err != nil {
		outcomes := make([]integration.Outcome, len(records))
		for i, c := range records {
			outcomes[i] = integration.OutcomeFromError(c.ID, err)
		}
		return outcomes
	}

	return applyEach(ctx, records, e.concurrency, func(ctx context.Context, c integration.Company) integration.Outcome {
		var deltas []integration.OutcomeDelta
		admin, ok := admins[strings.TrimSpace(c.WebAdminContactID)]
		if ok {
			deltas = append(deltas, admin.delta)
		}
		deltas = append(deltas, e.saveCompany(ctx, c, admin))
		return integration.Fold(deltas...).Outcome(c.ID)
	})
}

// saveAdminContacts loads and saves the admin contacts of companies. The
// result is keyed by contact id. Only a failed staging read is returned as
// an error.
func (e *CompanyEngine) saveAdminContacts(ctx context.Context, companies []integration.Company) (map[string]superUser, error) {
	ids := make([]string, 0, len(companies))
	seen := make(map[string]bool, len(companies))
	for _, c := range companies {
		id := strings.TrimSpace(c.WebAdminContactID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	admins := make(map[string]superUser, len(ids))
	if len(ids) == 0 {
		return admins, nil
	}

	page, err := e.contacts.FindPage(ctx, integration.NewCriteria(1, len(ids), integration.In("contact_id", ids...)))
	if err != nil {
		return nil, err
	}
	contacts := page.Items

	index := make(map[uint64]int, len(contacts))
	for i, ct := range contacts {
		index[ct.ID] = i
	}
	results := make([]superUser, len(contacts))
	outcomes := applyEach(ctx, contacts, e.concurrency, func(ctx context.Context, ct integration.Contact) integration.Outcome {
		resp, err := e.customers.save(ctx, ct, nil)
		var su superUser
		if err != nil {
			su.delta = prefixed(noteAdminContactSaveFailed, err)
		} else {
			su = superUser{delta: integration.Ok(noteAdminContactSaved), id: resp.ID, email: resp.Email}
		}
		results[index[ct.ID]] = su
		return su.delta.Outcome(ct.ID)
	})
	for i, ct := range contacts {
		admins[strings.TrimSpace(ct.ContactID)] = results[i]
	}

	if err := e.outcomes.RecordOutcomes(ctx, integration.EntityContact, outcomes); err != nil {
		e.logger.Warn("Failed to record admin contact outcomes", zap.Int("count", len(outcomes)), zap.Error(err))
	}
	return admins, nil
}

// saveCompany builds and posts one company
func (e *CompanyEngine) saveCompany(ctx context.Context, c integration.Company, admin superUser) integration.OutcomeDelta {
	company := e.buildCompany(c, admin)
	if err := ValidatePayload(company); err != nil {
		return integration.DeltaFromError(err)
	}

	var resp CompanyResponse
	if err := e.client.Post(ctx, "company", CompanyRequest{Company: company}, &resp); err != nil {
		return prefixed(noteCompanySaveFailed, err)
	}
	if c.ACCompanyID == nil && resp.ID > 0 {
		if err := e.links.SetCompanyID(ctx, c.CustID, resp.ID); err != nil {
			e.logger.Warn("Failed to record commerce company id", zap.String("cust_id", c.CustID), zap.Error(err))
		}
	}
	return integration.Ok(noteCompanySaved)
}

func (e *CompanyEngine) buildCompany(c integration.Company, admin superUser) CompanyData {
	raw := func(key string) string {
		return strings.TrimSpace(c.RawString(key))
	}
	company := CompanyData{
		CompanyName:  raw("company_name"),
		LegalName:    raw("legal_name"),
		CompanyEmail: admin.email,
		SuperUserID:  admin.id,
		Region:       raw("region"),
		Postcode:     raw("postcode"),
		City:         raw("city"),
		CountryID:    raw("country_id"),
		Street:       make([]string, 0, len(companyStreetKeys)),
		ExtensionAttributes: CompanyExtension{
			KKAttributes: make([]string, 0, len(companyERPKeys)),
		},
	}
	for _, k := range companyStreetKeys {
		if line := raw(k); line != "" {
			company.Street = append(company.Street, line)
		}
	}
	for _, k := range companyERPKeys {
		v, ok := c.Raw[k]
		if !ok {
			continue
		}
		company.ExtensionAttributes.KKAttributes = append(company.ExtensionAttributes.KKAttributes,
			k+":"+integration.AsString(flagValue(v)))
	}
	if c.ACCompanyID != nil && *c.ACCompanyID != 0 {
		company.ID = *c.ACCompanyID
	} else {
		company.CustomerGroupID = companyCustomerGroupID
		company.Telephone = companyTelephone
	}
	return company
}

var _ Engine[integration.Company] = (*CompanyEngine)(nil)
