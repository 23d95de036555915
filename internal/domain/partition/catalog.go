package partition

import (
	"context"
	"strings"
	"time"
)

// Table formats known to the catalog
const (
	FormatCSV     = "csv"
	FormatParquet = "parquet"
	FormatCSVGzip = "csv.gz"
)

// TableDefinition describes a table registered in the catalog: where its
// objects live and how they are encoded.
type TableDefinition struct {
	Database      string
	Name          string
	Location      string // object key prefix
	Format        string
	Compression   string
	Columns       []string
	PartitionKeys []string
	RunID         string // run that produced the current objects, empty for input tables
	UpdatedAt     time.Time
}

// Validate checks the fields every catalog entry needs
func (t TableDefinition) Validate() error {
	switch {
	case strings.TrimSpace(t.Database) == "":
		return newDomainErrorf(ErrCodeInvalidTable, "table database is required")
	case strings.TrimSpace(t.Name) == "":
		return newDomainErrorf(ErrCodeInvalidTable, "table name is required")
	case strings.TrimSpace(t.Location) == "":
		return newDomainErrorf(ErrCodeInvalidTable, "table %s.%s has no location", t.Database, t.Name)
	}
	switch t.Format {
	case FormatCSV, FormatParquet, FormatCSVGzip:
		return nil
	default:
		return newDomainErrorf(ErrCodeInvalidTable, "table %s.%s has unsupported format %q", t.Database, t.Name, t.Format)
	}
}

// QualifiedName returns database.name
func (t TableDefinition) QualifiedName() string {
	return t.Database + "." + t.Name
}

// PartitionEntry is one written partition of an output table
type PartitionEntry struct {
	PartitionID int64
	Location    string // object key
	Records     int64
	MinRowNum   int64
	MaxRowNum   int64
}

// CatalogRepository resolves input tables and publishes output tables
type CatalogRepository interface {
	// GetTable returns ErrCatalogTableNotFound when the table is not registered
	GetTable(ctx context.Context, database, name string) (*TableDefinition, error)

	// RegisterTable creates or replaces an input table definition
	RegisterTable(ctx context.Context, table TableDefinition) error

	// CommitOutput atomically replaces the output table definition and its
	// partitions. It returns the definition it replaced, nil on first publish.
	CommitOutput(ctx context.Context, table TableDefinition, partitions []PartitionEntry) (*TableDefinition, error)

	// ListPartitions returns the partitions of a table ordered by partition id
	ListPartitions(ctx context.Context, database, name string) ([]PartitionEntry, error)
}

// RunLock guards an output table against concurrent runs
type RunLock interface {
	// Acquire returns ErrRunLocked if another holder owns key
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

// LockHandle releases an acquired lock
type LockHandle interface {
	Release(ctx context.Context) error
}
