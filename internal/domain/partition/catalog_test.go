package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTableDefinition_Validate(t *testing.T) {
	valid := TableDefinition{Database: "db", Name: "inventory", Location: "inventory/", Format: FormatCSV}
	assert.NoError(t, valid.Validate())
	assert.Equal(t, "db.inventory", valid.QualifiedName())

	tests := []struct {
		name   string
		mutate func(*TableDefinition)
	}{
		{"missing database", func(d *TableDefinition) { d.Database = " " }},
		{"missing name", func(d *TableDefinition) { d.Name = "" }},
		{"missing location", func(d *TableDefinition) { d.Location = "" }},
		{"unknown format", func(d *TableDefinition) { d.Format = "orc" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := valid
			tt.mutate(&def)
			assert.ErrorIs(t, def.Validate(), ErrInvalidTable)
		})
	}
}
