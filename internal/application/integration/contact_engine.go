package integration

import (
	"context"
	"strings"

	"github.com/erp/kksync/internal/domain/integration"
	"go.uber.org/zap"
)

// Contact outcome notes
const (
	noteContactSaved      = "Contact create/update successfully"
	noteCompanyNotInAC    = "Company has not been setup in AC"
	companyLookupPageSize = 100
)

// ContactEngine saves contacts as commerce customers attached to the
// company of their ERP customer.
type ContactEngine struct {
	companies   integration.StagingReader[integration.Company]
	customers   *customerWriter
	concurrency int
	logger      *zap.Logger
}

// NewContactEngine creates a ContactEngine
func NewContactEngine(
	client integration.CommerceClient,
	companies integration.StagingReader[integration.Company],
	links integration.LinkageRecorder,
	fields *RequiredFields,
	concurrency int,
	logger *zap.Logger,
) *ContactEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContactEngine{
		companies:   companies,
		customers:   &customerWriter{client: client, fields: fields, links: links, logger: logger},
		concurrency: concurrency,
		logger:      logger,
	}
}

// Apply saves one page of contacts
func (e *ContactEngine) Apply(ctx context.Context, records []integration.Contact) []integration.Outcome {
	companyIDs, err := e.companyIDs(ctx, records)
	if err != nil {
		outcomes := make([]integration.Outcome, len(records))
		for i, c := range records {
			outcomes[i] = integration.OutcomeFromError(c.ID, err)
		}
		return outcomes
	}

	return applyEach(ctx, records, e.concurrency, func(ctx context.Context, c integration.Contact) integration.Outcome {
		companyID, ok := companyIDs[strings.TrimSpace(c.CustID)]
		if !ok {
			return integration.NewOutcome(c.ID, integration.SyncStatusFailed, noteCompanyNotInAC)
		}
		ext := &CustomerExtension{CompanyAttributes: &CompanyAttributes{CompanyID: companyID}}
		if _, err := e.customers.save(ctx, c, ext); err != nil {
			return integration.OutcomeFromError(c.ID, err)
		}
		return integration.NewOutcome(c.ID, integration.SyncStatusOk, noteContactSaved)
	})
}

// companyIDs maps the ERP customer ids of records to commerce company ids.
// Companies not yet created in commerce are left out.
func (e *ContactEngine) companyIDs(ctx context.Context, records []integration.Contact) (map[string]int64, error) {
	ids := make([]string, 0, len(records))
	seen := make(map[string]bool, len(records))
	for _, c := range records {
		id := strings.TrimSpace(c.CustID)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	out := make(map[string]int64, len(ids))

	for start := 0; start < len(ids); start += companyLookupPageSize {
		end := min(start+companyLookupPageSize, len(ids))
		page, err := e.companies.FindPage(ctx, integration.NewCriteria(1, companyLookupPageSize, integration.In("cust_id", ids[start:end]...)))
		if err != nil {
			return nil, err
		}
		for _, c := range page.Items {
			if c.ACCompanyID != nil && *c.ACCompanyID != 0 {
				out[strings.TrimSpace(c.CustID)] = *c.ACCompanyID
			}
		}
	}
	return out, nil
}

var _ Engine[integration.Contact] = (*ContactEngine)(nil)
