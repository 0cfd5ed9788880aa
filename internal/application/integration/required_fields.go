package integration

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

// Field sets of required_fields.yaml
const (
	FieldSetProduct   = "product"
	FieldSetListPrice = "list_price"
	FieldSetTierPrice = "tier_price"
	FieldSetInventory = "inventory"
	FieldSetContact   = "contact"
)

//go:embed required_fields.yaml
var requiredFieldsYAML []byte

// FieldAlias copies the ERP field From onto the commerce field To.
type FieldAlias struct {
	To   string
	From string
}

// RequiredFields holds the field aliases of every field set.
type RequiredFields struct {
	sets map[string][]FieldAlias
}

// LoadRequiredFields parses the embedded alias table
func LoadRequiredFields() (*RequiredFields, error) {
	return ParseRequiredFields(requiredFieldsYAML)
}

// ParseRequiredFields parses an alias table. Aliases of a set are ordered by
// commerce code.
func ParseRequiredFields(data []byte) (*RequiredFields, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse required fields: %w", err)
	}
	rf := &RequiredFields{sets: make(map[string][]FieldAlias, len(raw))}
	for set, fields := range raw {
		aliases := make([]FieldAlias, 0, len(fields))
		for to, from := range fields {
			if to == "" || from == "" {
				return nil, fmt.Errorf("parse required fields: empty alias in set %q", set)
			}
			aliases = append(aliases, FieldAlias{To: to, From: from})
		}
		sort.Slice(aliases, func(i, j int) bool { return aliases[i].To < aliases[j].To })
		rf.sets[set] = aliases
	}
	return rf, nil
}

// Aliases returns the aliases of one set
func (rf *RequiredFields) Aliases(set string) []FieldAlias {
	return rf.sets[set]
}

// Codes returns the commerce codes of one set
func (rf *RequiredFields) Codes(set string) []string {
	aliases := rf.sets[set]
	codes := make([]string, len(aliases))
	for i, a := range aliases {
		codes[i] = a.To
	}
	return codes
}

// Populate copies every aliased ERP field present in row onto its commerce
// code. Fields missing from row are left alone.
func (rf *RequiredFields) Populate(set string, row map[string]any) map[string]any {
	if rf == nil {
		return row
	}
	for _, a := range rf.sets[set] {
		if v, ok := row[a.From]; ok {
			row[a.To] = v
		}
	}
	return row
}
