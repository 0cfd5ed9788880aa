package integration

import "sort"

// Task names of the forward syncs (staging to commerce).
const (
	TaskProductToCommerce   = "prod_acstg_to_ac"
	TaskPriceToCommerce     = "price_acstg_to_ac"
	TaskInventoryToCommerce = "stock_acstg_to_ac"
	TaskCompanyToCommerce   = "cc_acstg_to_ac"
	TaskContactToCommerce   = "contact_acstg_to_ac"
)

// Task names of the ingestion runs (ERP to staging).
const (
	TaskProductToStaging   = "prod_kk_to_acstg"
	TaskPriceToStaging     = "price_kk_to_acstg"
	TaskInventoryToStaging = "stock_kk_to_acstg"
	TaskCompanyToStaging   = "company_kk_to_acstg"
	TaskContactToStaging   = "contact_kk_to_acstg"
)

// TaskDirection tells which leg of the sync a task covers.
type TaskDirection string

const (
	DirectionIngest  TaskDirection = "ingest"
	DirectionForward TaskDirection = "forward"
)

// TaskDefinition describes one named task.
type TaskDefinition struct {
	Name      string
	Direction TaskDirection
	Entity    EntityKind
	// Noun is used in run summaries, e.g. "products"
	Noun string
	// Description names the task in conflict messages
	Description string
	// StartNotes is written to the run when it begins
	StartNotes string
	PageSize   int
	// Ceiling caps the records processed by one forward run
	Ceiling int
}

// Batches returns min(total, ceiling)/pageSize as a float, the bound the
// orchestrator compares the page counter against.
func (d TaskDefinition) Batches(total int64) float64 {
	limit := total
	if d.Ceiling > 0 && int64(d.Ceiling) < limit {
		limit = int64(d.Ceiling)
	}
	if d.PageSize <= 0 {
		return float64(limit)
	}
	return float64(limit) / float64(d.PageSize)
}

// DefaultTasks returns the built-in task definitions keyed by name.
func DefaultTasks() map[string]TaskDefinition {
	defs := []TaskDefinition{
		{
			Name: TaskProductToCommerce, Direction: DirectionForward, Entity: EntityProduct,
			Noun: "products", Description: "product sync from AC staging to AC",
			StartNotes: "Retrieving products from AC staging to create/update products in AC",
			PageSize:   10, Ceiling: 200,
		},
		{
			Name: TaskPriceToCommerce, Direction: DirectionForward, Entity: EntityPrice,
			Noun: "prices", Description: "price sync from AC staging to AC",
			StartNotes: "Retrieving prices from AC staging to update product prices in AC",
			PageSize:   10, Ceiling: 500,
		},
		{
			Name: TaskInventoryToCommerce, Direction: DirectionForward, Entity: EntityInventory,
			Noun: "inventories", Description: "inventory sync from AC staging to AC",
			StartNotes: "Retrieving inventories from AC staging to update product source items in AC",
			PageSize:   10, Ceiling: 500,
		},
		{
			Name: TaskCompanyToCommerce, Direction: DirectionForward, Entity: EntityCompany,
			Noun: "companies", Description: "company sync from AC staging to AC",
			StartNotes: "Retrieving companies from AC staging to create/update companies in AC",
			PageSize:   10, Ceiling: 500,
		},
		{
			Name: TaskContactToCommerce, Direction: DirectionForward, Entity: EntityContact,
			Noun: "contacts", Description: "contact sync from AC staging to AC",
			StartNotes: "Retrieving contact from AC staging to create/update in AC",
			PageSize:   10, Ceiling: 500,
		},
		{
			Name: TaskProductToStaging, Direction: DirectionIngest, Entity: EntityProduct,
			Noun: "product", Description: "product sync from KK staging to AC staging",
			StartNotes: "Retrieving products from Kinetic to AC staging",
			PageSize:   1000,
		},
		{
			Name: TaskPriceToStaging, Direction: DirectionIngest, Entity: EntityPrice,
			Noun: "price", Description: "price sync from KK staging to AC staging",
			StartNotes: "Retrieving prices from Kinetic to AC staging",
			PageSize:   1000,
		},
		{
			Name: TaskInventoryToStaging, Direction: DirectionIngest, Entity: EntityInventory,
			Noun: "inventory", Description: "inventory sync from KK staging to AC staging",
			StartNotes: "Retrieving inventories from Kinetic to AC staging",
			PageSize:   1000,
		},
		{
			Name: TaskCompanyToStaging, Direction: DirectionIngest, Entity: EntityCompany,
			Noun: "company", Description: "company sync from KK staging to AC staging",
			StartNotes: "Retrieving companies from Kinetic to AC staging",
			PageSize:   100,
		},
		{
			Name: TaskContactToStaging, Direction: DirectionIngest, Entity: EntityContact,
			Noun: "contact", Description: "contact sync from KK staging to AC staging",
			StartNotes: "Retrieving contacts from Kinetic to AC staging",
			PageSize:   100,
		},
	}
	out := make(map[string]TaskDefinition, len(defs))
	for _, d := range defs {
		out[d.Name] = d
	}
	return out
}

// SortedTaskNames returns the keys of defs in lexical order
func SortedTaskNames(defs map[string]TaskDefinition) []string {
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
