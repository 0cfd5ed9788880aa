package integration

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// ---------------------------------------------------------------------------
// AttributeMapping
// ---------------------------------------------------------------------------

// FrontendInput is the commerce input type of an attribute.
type FrontendInput string

const (
	InputText        FrontendInput = "text"
	InputTextarea    FrontendInput = "textarea"
	InputSelect      FrontendInput = "select"
	InputMultiselect FrontendInput = "multiselect"
	InputBoolean     FrontendInput = "boolean"
	InputPrice       FrontendInput = "price"
	InputWeight      FrontendInput = "weight"
	InputDate        FrontendInput = "date"
)

// MappingStatus tells whether the attribute was confirmed against the
// commerce schema.
type MappingStatus string

const (
	// MappingStatusNew is a mapping seeded locally and not found in commerce
	MappingStatusNew MappingStatus = "N"
	// MappingStatusFound is a mapping confirmed against commerce
	MappingStatusFound MappingStatus = "O"
)

// AttributeMapping maps an ERP field to a commerce attribute.
type AttributeMapping struct {
	ID            uint64
	AttributeCode string
	// SourceKey is the normalized ERP field; empty means AttributeCode
	SourceKey     string
	BackendType   string
	FrontendInput FrontendInput
	Status        MappingStatus
	// Options caches option ids by folded label
	Options map[string]string
	Notes   string
}

// NewAttributeMapping creates a mapping seeded from configuration
func NewAttributeMapping(code, sourceKey string) (*AttributeMapping, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrMappingInvalidCode
	}
	return &AttributeMapping{
		AttributeCode: code,
		SourceKey:     strings.TrimSpace(sourceKey),
		BackendType:   "varchar",
		FrontendInput: InputText,
		Status:        MappingStatusNew,
		Options:       map[string]string{},
		Notes:         "Load from file",
	}, nil
}

// MarkFound records the commerce metadata of the attribute
func (m *AttributeMapping) MarkFound(backendType string, input FrontendInput) {
	m.BackendType = backendType
	m.FrontendInput = input
	m.Status = MappingStatusFound
	m.Notes = "Attribute is found"
}

// Source returns the ERP key to read for this attribute
func (m AttributeMapping) Source() string {
	if m.SourceKey != "" {
		return m.SourceKey
	}
	return m.AttributeCode
}

// OptionKey folds a label into its cache key: trimmed and case-folded.
func OptionKey(label string) string {
	return cases.Fold().String(strings.TrimSpace(label))
}

// ---------------------------------------------------------------------------
// MappingTable
// ---------------------------------------------------------------------------

// MappingTable is the set of attribute mappings used by one transform pass.
// A run keeps a base table and hands each page a Clone; the option ids
// discovered on the page are merged back into the base afterwards.
// MappingTable is safe for concurrent use.
type MappingTable struct {
	mu       sync.RWMutex
	mappings map[string]*AttributeMapping
	codes    []string
}

// NewMappingTable builds a table from mappings, ordered by attribute code
func NewMappingTable(mappings []AttributeMapping) *MappingTable {
	t := &MappingTable{mappings: make(map[string]*AttributeMapping, len(mappings))}
	for i := range mappings {
		m := copyMapping(mappings[i])
		if _, exists := t.mappings[m.AttributeCode]; !exists {
			t.codes = append(t.codes, m.AttributeCode)
		}
		t.mappings[m.AttributeCode] = m
	}
	sort.Strings(t.codes)
	return t
}

// Clone returns a deep copy. Option caches are copied, not shared.
func (t *MappingTable) Clone() *MappingTable {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c := &MappingTable{
		mappings: make(map[string]*AttributeMapping, len(t.mappings)),
		codes:    append([]string(nil), t.codes...),
	}
	for code, m := range t.mappings {
		c.mappings[code] = copyMapping(*m)
	}
	return c
}

// Len returns the number of mappings
func (t *MappingTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.codes)
}

// Attributes returns a snapshot of the mappings ordered by code
func (t *MappingTable) Attributes() []AttributeMapping {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]AttributeMapping, 0, len(t.codes))
	for _, code := range t.codes {
		out = append(out, *copyMapping(*t.mappings[code]))
	}
	return out
}

// Get returns a snapshot of one mapping
func (t *MappingTable) Get(code string) (AttributeMapping, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.mappings[code]
	if !ok {
		return AttributeMapping{}, false
	}
	return *copyMapping(*m), true
}

// LookupOption returns the cached option id for a label
func (t *MappingTable) LookupOption(code, label string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	m, ok := t.mappings[code]
	if !ok {
		return "", false
	}
	id, ok := m.Options[OptionKey(label)]
	return id, ok && id != ""
}

// AddOption caches an option id. The cache only grows; an existing id for
// the same label is kept.
func (t *MappingTable) AddOption(code, label, id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.mappings[code]
	if !ok {
		return
	}
	key := OptionKey(label)
	if _, exists := m.Options[key]; !exists {
		m.Options[key] = id
	}
}

// Merge copies option ids from other that are missing here and returns the
// codes whose cache grew.
func (t *MappingTable) Merge(other *MappingTable) []string {
	if other == nil || other == t {
		return nil
	}
	snapshot := other.Attributes()

	t.mu.Lock()
	defer t.mu.Unlock()
	var grown []string
	for _, om := range snapshot {
		m, ok := t.mappings[om.AttributeCode]
		if !ok {
			continue
		}
		changed := false
		for key, id := range om.Options {
			if _, exists := m.Options[key]; !exists {
				m.Options[key] = id
				changed = true
			}
		}
		if changed {
			grown = append(grown, om.AttributeCode)
		}
	}
	return grown
}

func copyMapping(m AttributeMapping) *AttributeMapping {
	options := make(map[string]string, len(m.Options))
	for k, v := range m.Options {
		options[k] = v
	}
	m.Options = options
	return &m
}
