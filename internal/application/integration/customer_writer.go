package integration

import (
	"context"
	"sort"
	"strconv"

	"github.com/erp/kksync/internal/domain/integration"
	"go.uber.org/zap"
)

// Fixed customer scope of the commerce store
const (
	customerWebsiteID = 1
	customerGroupID   = 1
	customerStoreID   = 1
)

// customerCoreFields are sent as top-level customer fields and never as
// custom attributes.
var customerCoreFields = map[string]bool{
	"email":     true,
	"firstname": true,
	"lastname":  true,
}

// customerWriter creates or updates the commerce customer of a contact row.
// Shared by the company and contact engines.
type customerWriter struct {
	client integration.CommerceClient
	fields *RequiredFields
	links  integration.LinkageRecorder
	logger *zap.Logger
}

// build maps a contact row onto a customer body
func (w *customerWriter) build(c integration.Contact, ext *CustomerExtension) Customer {
	row := make(map[string]any, len(c.Raw)+3)
	for k, v := range c.Raw {
		row[k] = v
	}
	w.fields.Populate(FieldSetContact, row)

	keys := make([]string, 0, len(row))
	for k := range row {
		if !customerCoreFields[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	attrs := make([]CustomAttribute, 0, len(keys))
	for _, k := range keys {
		attrs = append(attrs, CustomAttribute{AttributeCode: k, Value: flagValue(row[k])})
	}

	customer := Customer{
		Email:               integration.AsString(row["email"]),
		Firstname:           integration.AsString(row["firstname"]),
		Lastname:            integration.AsString(row["lastname"]),
		WebsiteID:           customerWebsiteID,
		GroupID:             customerGroupID,
		StoreID:             customerStoreID,
		CustomAttributes:    attrs,
		ExtensionAttributes: ext,
	}
	if c.ACCustomerID != nil {
		customer.ID = *c.ACCustomerID
	}
	return customer
}

// save validates and sends the customer of c. Existing customers are
// updated in place; a created customer's id is recorded on the contact row.
func (w *customerWriter) save(ctx context.Context, c integration.Contact, ext *CustomerExtension) (CustomerResponse, error) {
	customer := w.build(c, ext)
	if err := ValidatePayload(customer); err != nil {
		return CustomerResponse{}, err
	}

	var resp CustomerResponse
	body := CustomerRequest{Customer: customer}
	if customer.ID != 0 {
		if err := w.client.Put(ctx, "customers/"+strconv.FormatInt(customer.ID, 10), body, &resp); err != nil {
			return CustomerResponse{}, err
		}
		if resp.ID == 0 {
			resp.ID = customer.ID
		}
	} else {
		if err := w.client.Post(ctx, "customers", body, &resp); err != nil {
			return CustomerResponse{}, err
		}
		if resp.ID != 0 && w.links != nil {
			if err := w.links.SetCustomerID(ctx, c.ContactID, resp.ID); err != nil {
				w.logger.Warn("Failed to record customer id",
					zap.String("contact_id", c.ContactID),
					zap.Int64("customer_id", resp.ID),
					zap.Error(err),
				)
			}
		}
	}
	if resp.Email == "" {
		resp.Email = customer.Email
	}
	return resp, nil
}

// flagValue sends booleans as 0 and 1
func flagValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}
