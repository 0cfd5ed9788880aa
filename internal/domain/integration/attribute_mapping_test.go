package integration

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTable() *MappingTable {
	return NewMappingTable([]AttributeMapping{
		{AttributeCode: "color", FrontendInput: InputSelect, Options: map[string]string{"red": "11"}},
		{AttributeCode: "sku", SourceKey: "part_number", FrontendInput: InputText},
	})
}

func TestNewAttributeMapping(t *testing.T) {
	m, err := NewAttributeMapping("weight", "gross_weight")
	require.NoError(t, err)
	assert.Equal(t, MappingStatusNew, m.Status)
	assert.Equal(t, "varchar", m.BackendType)
	assert.Equal(t, InputText, m.FrontendInput)
	assert.Equal(t, "gross_weight", m.Source())

	m.MarkFound("decimal", InputWeight)
	assert.Equal(t, MappingStatusFound, m.Status)
	assert.Equal(t, "Attribute is found", m.Notes)

	_, err = NewAttributeMapping(" ", "x")
	assert.ErrorIs(t, err, ErrMappingInvalidCode)

	noSource, _ := NewAttributeMapping("status", "")
	assert.Equal(t, "status", noSource.Source())
}

func TestOptionKey(t *testing.T) {
	assert.Equal(t, "dark blue", OptionKey("  Dark Blue "))
	assert.Equal(t, OptionKey("STRASSE"), OptionKey("strasse"))
}

func TestMappingTable_LookupAndAdd(t *testing.T) {
	table := newTestTable()

	id, ok := table.LookupOption("color", " RED ")
	assert.True(t, ok)
	assert.Equal(t, "11", id)

	_, ok = table.LookupOption("color", "Blue")
	assert.False(t, ok)

	table.AddOption("color", "Blue", "12")
	table.AddOption("color", "blue", "99")
	id, _ = table.LookupOption("color", "BLUE")
	assert.Equal(t, "12", id, "cache keeps the first id for a label")

	table.AddOption("unknown", "x", "1")
	_, ok = table.Get("unknown")
	assert.False(t, ok)
}

func TestMappingTable_CloneIsCopyOnWrite(t *testing.T) {
	base := newTestTable()
	page := base.Clone()

	page.AddOption("color", "Green", "13")
	_, ok := base.LookupOption("color", "green")
	assert.False(t, ok, "page writes do not leak into the base before merge")

	grown := base.Merge(page)
	assert.Equal(t, []string{"color"}, grown)
	id, ok := base.LookupOption("color", "green")
	assert.True(t, ok)
	assert.Equal(t, "13", id)

	assert.Empty(t, base.Merge(page), "second merge adds nothing")
	assert.Nil(t, base.Merge(nil))
}

func TestMappingTable_Attributes(t *testing.T) {
	table := newTestTable()
	attrs := table.Attributes()
	require.Len(t, attrs, 2)
	assert.Equal(t, "color", attrs[0].AttributeCode)
	assert.Equal(t, "sku", attrs[1].AttributeCode)
	assert.Equal(t, 2, table.Len())

	attrs[0].Options["mutated"] = "1"
	_, ok := table.LookupOption("color", "mutated")
	assert.False(t, ok, "snapshots are detached")
}

func TestMappingTable_ConcurrentAdd(t *testing.T) {
	table := newTestTable()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			table.AddOption("color", "Violet", "20")
			table.LookupOption("color", "violet")
		}()
	}
	wg.Wait()
	id, ok := table.LookupOption("color", "violet")
	assert.True(t, ok)
	assert.Equal(t, "20", id)
}
