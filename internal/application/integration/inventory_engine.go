package integration

import (
	"context"
	"strings"

	"github.com/erp/kksync/internal/domain/integration"
	"go.uber.org/zap"
)

const noteSourceItemUpdated = "Product source item has been updated."

// InventoryEngine sends a page of stock levels in one source-items call.
// The endpoint reports no per-item result, so the call outcome is the
// outcome of every record it carried.
type InventoryEngine struct {
	client integration.CommerceClient
	logger *zap.Logger
}

// NewInventoryEngine creates an InventoryEngine
func NewInventoryEngine(client integration.CommerceClient, logger *zap.Logger) *InventoryEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InventoryEngine{client: client, logger: logger}
}

// Apply posts the page as source items
func (e *InventoryEngine) Apply(ctx context.Context, records []integration.ProductInventory) []integration.Outcome {
	outcomes := make([]integration.Outcome, len(records))
	body := SourceItemsRequest{SourceItems: make([]SourceItem, 0, len(records))}
	sent := make([]int, 0, len(records))

	for i, inv := range records {
		item := SourceItem{
			SourceCode: strings.ToLower(strings.TrimSpace(inv.SourceCode)),
			SKU:        inv.SKU,
			Quantity:   inv.Qty.IntPart(),
		}
		if inv.Qty.IsPositive() {
			item.Status = 1
		}
		if err := ValidatePayload(item); err != nil {
			outcomes[i] = integration.OutcomeFromError(inv.ID, err)
			continue
		}
		body.SourceItems = append(body.SourceItems, item)
		sent = append(sent, i)
	}
	if len(sent) == 0 {
		return outcomes
	}

	err := e.client.Post(ctx, "inventory/source-items", body, nil)
	if err != nil {
		e.logger.Warn("Source items update failed", zap.Int("count", len(sent)), zap.Error(err))
	}
	for _, i := range sent {
		if err != nil {
			outcomes[i] = integration.OutcomeFromError(records[i].ID, err)
			continue
		}
		outcomes[i] = integration.NewOutcome(records[i].ID, integration.SyncStatusOk, noteSourceItemUpdated)
	}
	return outcomes
}

var _ Engine[integration.ProductInventory] = (*InventoryEngine)(nil)
