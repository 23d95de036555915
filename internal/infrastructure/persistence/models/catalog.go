package models

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/grf/partitioner/internal/domain/partition"
)

// CatalogTableModel is the persistence model of a catalog table definition
type CatalogTableModel struct {
	BaseModel
	DatabaseName      string `gorm:"column:database_name;type:varchar(255);not null;uniqueIndex:idx_catalog_tables_name,priority:1"`
	Name              string `gorm:"type:varchar(255);not null;uniqueIndex:idx_catalog_tables_name,priority:2"`
	Location          string `gorm:"type:text;not null"`
	Format            string `gorm:"type:varchar(20);not null"`
	Compression       string `gorm:"type:varchar(20);not null;default:''"`
	ColumnsJSON       string `gorm:"column:columns;type:text;not null;default:'[]'"`
	PartitionKeysJSON string `gorm:"column:partition_keys;type:text;not null;default:'[]'"`
	RunID             string `gorm:"type:varchar(64);not null;default:''"`
}

// TableName returns the table name for GORM
func (CatalogTableModel) TableName() string {
	return "catalog_tables"
}

// ToDomain converts the model to a domain TableDefinition
func (m *CatalogTableModel) ToDomain() (*partition.TableDefinition, error) {
	table := &partition.TableDefinition{
		Database:    m.DatabaseName,
		Name:        m.Name,
		Location:    m.Location,
		Format:      m.Format,
		Compression: m.Compression,
		RunID:       m.RunID,
		UpdatedAt:   m.UpdatedAt,
	}
	if err := unmarshalList(m.ColumnsJSON, &table.Columns); err != nil {
		return nil, fmt.Errorf("table %s.%s columns: %w", m.DatabaseName, m.Name, err)
	}
	if err := unmarshalList(m.PartitionKeysJSON, &table.PartitionKeys); err != nil {
		return nil, fmt.Errorf("table %s.%s partition keys: %w", m.DatabaseName, m.Name, err)
	}
	return table, nil
}

// FromDomain populates the model from a domain TableDefinition. ID and
// timestamps are left to the caller.
func (m *CatalogTableModel) FromDomain(t partition.TableDefinition) error {
	columns, err := marshalList(t.Columns)
	if err != nil {
		return err
	}
	keys, err := marshalList(t.PartitionKeys)
	if err != nil {
		return err
	}

	m.DatabaseName = t.Database
	m.Name = t.Name
	m.Location = t.Location
	m.Format = t.Format
	m.Compression = t.Compression
	m.ColumnsJSON = columns
	m.PartitionKeysJSON = keys
	m.RunID = t.RunID
	return nil
}

// CatalogPartitionModel is one partition object of a catalog table
type CatalogPartitionModel struct {
	TableID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	PartitionID int64     `gorm:"primaryKey;autoIncrement:false"`
	Location    string    `gorm:"type:text;not null"`
	Records     int64     `gorm:"not null"`
	MinRowNum   int64     `gorm:"not null"`
	MaxRowNum   int64     `gorm:"not null"`
}

// TableName returns the table name for GORM
func (CatalogPartitionModel) TableName() string {
	return "catalog_partitions"
}

// ToDomain converts the model to a domain PartitionEntry
func (m *CatalogPartitionModel) ToDomain() partition.PartitionEntry {
	return partition.PartitionEntry{
		PartitionID: m.PartitionID,
		Location:    m.Location,
		Records:     m.Records,
		MinRowNum:   m.MinRowNum,
		MaxRowNum:   m.MaxRowNum,
	}
}

// NewCatalogPartitionModel builds the model of entry for table tableID
func NewCatalogPartitionModel(tableID uuid.UUID, entry partition.PartitionEntry) CatalogPartitionModel {
	return CatalogPartitionModel{
		TableID:     tableID,
		PartitionID: entry.PartitionID,
		Location:    entry.Location,
		Records:     entry.Records,
		MinRowNum:   entry.MinRowNum,
		MaxRowNum:   entry.MaxRowNum,
	}
}

func marshalList(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to encode list: %w", err)
	}
	return string(data), nil
}

func unmarshalList(data string, out *[]string) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), out)
}
