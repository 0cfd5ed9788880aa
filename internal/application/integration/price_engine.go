package integration

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/erp/kksync/internal/domain/integration"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const notePriceUpdated = "Price is updated successfully."

// Fixed price targets of the commerce store
const (
	priceStoreID       = 0
	priceWebsiteID     = 0
	tierCustomerGroup  = "General"
	tierPriceTypeFixed = "fixed"
)

// PriceEngine sends list prices, tier prices and tier price deletions in
// bulk. The endpoints answer with a list of rejected entries, which is
// matched back to the records that produced them.
type PriceEngine struct {
	client integration.CommerceClient
	logger *zap.Logger
}

// NewPriceEngine creates a PriceEngine
func NewPriceEngine(client integration.CommerceClient, logger *zap.Logger) *PriceEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PriceEngine{client: client, logger: logger}
}

type priceEntry[P any] struct {
	index int
	id    uint64
	entry P
}

// Apply sends the page in up to three bulk calls
func (e *PriceEngine) Apply(ctx context.Context, records []integration.ProductPrice) []integration.Outcome {
	outcomes := make([]integration.Outcome, len(records))
	var (
		base    []priceEntry[BasePrice]
		tier    []priceEntry[TierPrice]
		deleted []priceEntry[TierPrice]
	)

	for i, p := range records {
		if p.IsBasePrice() {
			entry := BasePrice{
				Price:               amount(p.Price),
				StoreID:             priceStoreID,
				SKU:                 p.SKU,
				ExtensionAttributes: map[string]any{},
			}
			if err := ValidatePayload(entry); err != nil {
				outcomes[i] = integration.OutcomeFromError(p.ID, err)
				continue
			}
			base = append(base, priceEntry[BasePrice]{index: i, id: p.ID, entry: entry})
			continue
		}

		entry := TierPrice{
			Price:         amount(p.Price),
			PriceType:     string(p.PriceValueType),
			WebsiteID:     priceWebsiteID,
			SKU:           p.SKU,
			CustomerGroup: tierCustomerGroup,
			Quantity:      amount(p.Qty),
		}
		if p.PriceValueType == integration.PriceValueDeleted || entry.PriceType == "" {
			entry.PriceType = tierPriceTypeFixed
		}
		if err := ValidatePayload(entry); err != nil {
			outcomes[i] = integration.OutcomeFromError(p.ID, err)
			continue
		}
		item := priceEntry[TierPrice]{index: i, id: p.ID, entry: entry}
		if p.PriceValueType == integration.PriceValueDeleted {
			deleted = append(deleted, item)
		} else {
			tier = append(tier, item)
		}
	}

	sendPrices(ctx, e, "products/base-prices", base, matchBasePriceError, outcomes)
	sendPrices(ctx, e, "products/tier-prices", tier, matchTierPriceError, outcomes)
	sendPrices(ctx, e, "products/tier-prices-delete", deleted, matchTierPriceError, outcomes)
	return outcomes
}

// sendPrices posts one bulk call and writes an outcome for each entry. A
// failed call is the outcome of every entry it carried.
func sendPrices[P any](
	ctx context.Context,
	e *PriceEngine,
	resource string,
	entries []priceEntry[P],
	match func(rejected []PriceUpdateError, entry P) *PriceUpdateError,
	outcomes []integration.Outcome,
) {
	if len(entries) == 0 {
		return
	}
	body := PricesRequest[P]{Prices: make([]P, len(entries))}
	for i, it := range entries {
		body.Prices[i] = it.entry
	}

	var rejected []PriceUpdateError
	if err := e.client.Post(ctx, resource, body, &rejected); err != nil {
		e.logger.Warn("Price update call failed",
			zap.String("resource", resource),
			zap.Int("count", len(entries)),
			zap.Error(err),
		)
		for _, it := range entries {
			outcomes[it.index] = integration.OutcomeFromError(it.id, err)
		}
		return
	}

	for _, it := range entries {
		if rec := match(rejected, it.entry); rec != nil {
			note, _ := json.Marshal(rec)
			outcomes[it.index] = integration.NewOutcome(it.id, integration.SyncStatusFailed, string(note))
			continue
		}
		outcomes[it.index] = integration.NewOutcome(it.id, integration.SyncStatusOk, notePriceUpdated)
	}
}

// matchBasePriceError finds the rejection of a list price entry
func matchBasePriceError(rejected []PriceUpdateError, entry BasePrice) *PriceUpdateError {
	for i := range rejected {
		rec := &rejected[i]
		field, value := rec.param(0), rec.param(1)
		switch {
		case strings.HasPrefix(rec.Message, "Invalid attribute %fieldName = %fieldValue."):
			if field == "SKU" && value == entry.SKU {
				return rec
			}
			if field == "Price" && sameAmount(value, entry.Price) {
				return rec
			}
		case strings.HasPrefix(rec.Message, "Requested store is not found."):
			if field == entry.SKU && value == strconv.Itoa(entry.StoreID) {
				return rec
			}
		}
	}
	return nil
}

// matchTierPriceError finds the rejection of a tier price entry
func matchTierPriceError(rejected []PriceUpdateError, entry TierPrice) *PriceUpdateError {
	for i := range rejected {
		rec := &rejected[i]
		switch {
		case strings.HasPrefix(rec.Message, "Invalid attribute SKU = %SKU"):
			if rec.param(0) == entry.SKU {
				return rec
			}
		case strings.HasPrefix(rec.Message, "Invalid attribute Price = %price."):
			if rec.param(1) == entry.SKU && sameAmount(rec.param(0), entry.Price) {
				return rec
			}
		case strings.HasPrefix(rec.Message, "Invalid attribute Quantity = %qty."):
			if rec.param(0) == entry.SKU && sameAmount(rec.param(3), entry.Quantity) {
				return rec
			}
		case strings.HasPrefix(rec.Message, "No such entity with Customer Group = %customerGroup."):
			if rec.param(0) == entry.SKU && rec.param(2) == entry.CustomerGroup {
				return rec
			}
		}
	}
	return nil
}

// sameAmount compares a rejected parameter with a sent amount numerically
func sameAmount(param string, sent json.Number) bool {
	a, err := decimal.NewFromString(strings.TrimSpace(param))
	if err != nil {
		return false
	}
	b, err := decimal.NewFromString(sent.String())
	if err != nil {
		return false
	}
	return a.Equal(b)
}

var _ Engine[integration.ProductPrice] = (*PriceEngine)(nil)
