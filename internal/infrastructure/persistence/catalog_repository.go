package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/grf/partitioner/internal/domain/partition"
	"github.com/grf/partitioner/internal/infrastructure/persistence/models"
)

// partitionInsertBatch is the number of partition rows per INSERT
const partitionInsertBatch = 500

var _ partition.CatalogRepository = (*GormCatalogRepository)(nil)

// GormCatalogRepository implements CatalogRepository using GORM
type GormCatalogRepository struct {
	db *gorm.DB
}

// NewGormCatalogRepository creates a new GormCatalogRepository
func NewGormCatalogRepository(db *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: db}
}

// WithTx returns a new repository instance with the given transaction
func (r *GormCatalogRepository) WithTx(tx *gorm.DB) *GormCatalogRepository {
	return &GormCatalogRepository{db: tx}
}

// GetTable finds a table by database and name
func (r *GormCatalogRepository) GetTable(ctx context.Context, database, name string) (*partition.TableDefinition, error) {
	model, err := r.findTable(r.db.WithContext(ctx), database, name)
	if err != nil {
		return nil, err
	}
	return model.ToDomain()
}

func (r *GormCatalogRepository) findTable(db *gorm.DB, database, name string) (*models.CatalogTableModel, error) {
	var model models.CatalogTableModel
	if err := db.Where("database_name = ? AND name = ?", database, name).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, partition.NewDomainError(partition.ErrCodeCatalogTableNotFound,
				fmt.Sprintf("table %s.%s is not registered", database, name))
		}
		return nil, fmt.Errorf("failed to load table %s.%s: %w", database, name, err)
	}
	return &model, nil
}

// RegisterTable creates the table definition or replaces an existing one.
// Partitions of a replaced table are kept.
func (r *GormCatalogRepository) RegisterTable(ctx context.Context, table partition.TableDefinition) error {
	if err := table.Validate(); err != nil {
		return err
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, _, err := r.upsertTable(tx, table)
		return err
	})
}

// upsertTable writes table and returns its row id and the definition it replaced
func (r *GormCatalogRepository) upsertTable(tx *gorm.DB, table partition.TableDefinition) (uuid.UUID, *partition.TableDefinition, error) {
	existing, err := r.findTable(tx, table.Database, table.Name)
	if err != nil && !errors.Is(err, partition.ErrCatalogTableNotFound) {
		return uuid.Nil, nil, err
	}

	if existing == nil {
		model := models.CatalogTableModel{}
		if err := model.FromDomain(table); err != nil {
			return uuid.Nil, nil, err
		}
		model.ID = uuid.New()
		if err := tx.Create(&model).Error; err != nil {
			return uuid.Nil, nil, fmt.Errorf("failed to create table %s: %w", table.QualifiedName(), err)
		}
		return model.ID, nil, nil
	}

	previous, err := existing.ToDomain()
	if err != nil {
		return uuid.Nil, nil, err
	}
	if err := existing.FromDomain(table); err != nil {
		return uuid.Nil, nil, err
	}
	if err := tx.Save(existing).Error; err != nil {
		return uuid.Nil, nil, fmt.Errorf("failed to update table %s: %w", table.QualifiedName(), err)
	}
	return existing.ID, previous, nil
}

// CommitOutput replaces the table definition and all of its partitions in
// one transaction and returns the definition it replaced
func (r *GormCatalogRepository) CommitOutput(ctx context.Context, table partition.TableDefinition, partitions []partition.PartitionEntry) (*partition.TableDefinition, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}

	var previous *partition.TableDefinition
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		id, prev, err := r.upsertTable(tx, table)
		if err != nil {
			return err
		}
		previous = prev

		if err := tx.Where("table_id = ?", id).Delete(&models.CatalogPartitionModel{}).Error; err != nil {
			return fmt.Errorf("failed to clear partitions of %s: %w", table.QualifiedName(), err)
		}
		if len(partitions) == 0 {
			return nil
		}

		rows := make([]models.CatalogPartitionModel, len(partitions))
		for i, p := range partitions {
			rows[i] = models.NewCatalogPartitionModel(id, p)
		}
		if err := tx.CreateInBatches(rows, partitionInsertBatch).Error; err != nil {
			return fmt.Errorf("failed to register partitions of %s: %w", table.QualifiedName(), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return previous, nil
}

// ListPartitions returns the partitions of a table ordered by partition id
func (r *GormCatalogRepository) ListPartitions(ctx context.Context, database, name string) ([]partition.PartitionEntry, error) {
	db := r.db.WithContext(ctx)
	table, err := r.findTable(db, database, name)
	if err != nil {
		return nil, err
	}

	var rows []models.CatalogPartitionModel
	if err := db.Where("table_id = ?", table.ID).Order("partition_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list partitions of %s.%s: %w", database, name, err)
	}

	entries := make([]partition.PartitionEntry, len(rows))
	for i := range rows {
		entries[i] = rows[i].ToDomain()
	}
	return entries, nil
}
