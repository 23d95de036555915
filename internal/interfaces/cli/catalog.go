package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/grf/partitioner/internal/domain/partition"
	"github.com/grf/partitioner/internal/infrastructure/migration"
)

var catalogFlagKeys = map[string]string{
	"database": "job.database",
}

func newCatalogCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the table catalog",
	}
	cmd.PersistentFlags().String("database", "", "catalog database (default job.database)")

	cmd.AddCommand(
		newCatalogMigrateCommand(v),
		newCatalogRegisterCommand(v),
		newCatalogShowCommand(v),
	)
	return cmd
}

// withCatalog loads the configuration, opens the catalog and runs fn
func withCatalog(cmd *cobra.Command, v *viper.Viper, fn func(ctx context.Context, c *components) error) (err error) {
	if err := bindFlags(v, cmd.Flags(), catalogFlagKeys); err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, log, err := loadConfig(v)
	if err != nil {
		return err
	}
	c, err := openCatalog(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := c.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return fn(ctx, c)
}

func newCatalogMigrateCommand(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the catalog schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, v, func(ctx context.Context, c *components) error {
				if c.db.Driver() != "postgres" {
					if err := c.db.AutoMigrate(ctx); err != nil {
						return err
					}
					c.log.Info("Catalog schema migrated", zap.String("driver", c.db.Driver()))
					fmt.Fprintln(cmd.OutOrStdout(), "catalog schema is up to date")
					return nil
				}

				m, err := migration.NewFromDSN(c.cfg.Database.DSN(), c.log)
				if err != nil {
					return err
				}
				defer func() {
					if err := m.Close(); err != nil {
						c.log.Warn("Failed to close migrator", zap.Error(err))
					}
				}()
				if err := m.Up(); err != nil {
					return err
				}
				version, _, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "catalog schema at version %d\n", version)
				return nil
			})
		},
	}
}

func newCatalogRegisterCommand(v *viper.Viper) *cobra.Command {
	var (
		table    string
		location string
		format   string
		columns  []string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register an input table",
		Example: `  partitioner catalog register --table inventory --location inventory/
  partitioner catalog register --table filelist --location filelist/`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, v, func(ctx context.Context, c *components) error {
				def := partition.TableDefinition{
					Database: c.cfg.Job.Database,
					Name:     table,
					Location: location,
					Format:   strings.ToLower(format),
					Columns:  columns,
				}
				if err := c.catalog.RegisterTable(ctx, def); err != nil {
					return err
				}
				c.log.Info("Table registered",
					zap.String("table", def.QualifiedName()),
					zap.String("location", def.Location),
				)
				fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", formatTable(&def))
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&table, "table", "", "table name")
	flags.StringVar(&location, "location", "", "object prefix holding the table data")
	flags.StringVar(&format, "format", partition.FormatCSV, "data format")
	flags.StringSliceVar(&columns, "columns", nil, "column names, informational")
	_ = cmd.MarkFlagRequired("table")
	_ = cmd.MarkFlagRequired("location")
	return cmd
}

func newCatalogShowCommand(v *viper.Viper) *cobra.Command {
	var table string

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a table and its partitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withCatalog(cmd, v, func(ctx context.Context, c *components) error {
				def, err := c.catalog.GetTable(ctx, c.cfg.Job.Database, table)
				if err != nil {
					return err
				}
				entries, err := c.catalog.ListPartitions(ctx, c.cfg.Job.Database, table)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintln(out, formatTable(def))
				if len(def.Columns) > 0 {
					fmt.Fprintf(out, "columns: %s\n", strings.Join(def.Columns, ", "))
				}
				for _, e := range entries {
					fmt.Fprintf(out, "%s=%d\trows %d..%d\t%d records\t%s\n",
						partition.ColumnPartition, e.PartitionID, e.MinRowNum, e.MaxRowNum, e.Records, e.Location)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&table, "table", "", "table name")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}
