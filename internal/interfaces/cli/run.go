package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var runFlagKeys = map[string]string{
	"database":        "job.database",
	"inventory-table": "job.inventory_table",
	"filelist-table":  "job.filelist_table",
	"output-table":    "job.output_table",
	"output-prefix":   "job.output_prefix",
	"format":          "writer.format",
}

func newRunCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Partition the inventory and publish the output table",
		Long: `run resolves the inventory and filelist tables in the catalog, orders and
numbers every archive, applies the filelist overrides and writes one object
per partition below <output-prefix>/run=<id>. The output table is switched
to the new run in a single catalog transaction; objects of the replaced run
are deleted afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd.Flags(), planFlagKeys); err != nil {
				return err
			}
			if err := bindFlags(v, cmd.Flags(), runFlagKeys); err != nil {
				return err
			}
			return runPartition(cmd, v)
		},
	}

	addPlanFlags(cmd)
	flags := cmd.Flags()
	flags.String("database", "", "catalog database of the input and output tables")
	flags.String("inventory-table", "", "inventory table")
	flags.String("filelist-table", "", "filelist table with description overrides")
	flags.String("output-table", "", "partitioned output table")
	flags.String("output-prefix", "", "object prefix of the output runs")
	flags.String("format", "", "output format (parquet, csv.gz)")
	return cmd
}

func runPartition(cmd *cobra.Command, v *viper.Viper) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, log, err := loadConfig(v)
	if err != nil {
		return err
	}
	log.Info("Starting partitioner",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("catalog", cfg.Database.Driver),
	)

	c, err := openCatalog(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := c.Close(context.WithoutCancel(ctx)); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	service, err := c.newService(ctx)
	if err != nil {
		return err
	}

	result, err := service.Run(ctx, runRequest(cfg))
	if err != nil {
		log.Error("Run failed", zap.Error(err))
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "run %s committed: %d records in %d partitions of %d at %s (%s)\n",
		result.RunID, result.Records, len(result.Partitions), result.Plan.Size, result.Location, result.Duration.Round(time.Millisecond))
	return nil
}
