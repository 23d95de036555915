// Package cli exposes the partitioner as a command line tool.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/grf/partitioner/internal/infrastructure/config"
	"github.com/grf/partitioner/internal/infrastructure/logger"
)

// NewRootCommand builds the partitioner command tree. Every tree owns its
// viper instance so that flags of one invocation never leak into another.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "partitioner",
		Short: "Partition a vault inventory for throttled retrieval",
		Long: `partitioner orders a vault inventory by creation date and archive id,
numbers every archive, applies description overrides from the filelist and
writes the result as a partitioned table sized to the daily retrieval quota.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
				v.SetConfigFile(cfgFile)
			}
			return nil
		},
	}

	root.PersistentFlags().StringP("config", "c", "", "config file (default is ./partitioner.toml)")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = v.BindPFlag("log.level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(
		newRunCommand(v),
		newPlanCommand(v),
		newCatalogCommand(v),
	)
	return root
}

// loadConfig reads the configuration with the bound flags applied
func loadConfig(v *viper.Viper) (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadFrom(v)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, log, nil
}

// planFlagKeys maps the sizing flags shared by run and plan to config keys
var planFlagKeys = map[string]string{
	"daily-quota":    "plan.daily_quota",
	"archive-count":  "plan.archive_count",
	"vault-size":     "plan.vault_size",
	"partition-size": "plan.default_partition_size",
}

func addPlanFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.Int64("daily-quota", 0, "bytes that can be retrieved per day (DQL)")
	flags.Int64("archive-count", 0, "number of archives in the inventory")
	flags.Int64("vault-size", 0, "total vault size in bytes")
	flags.Int64("partition-size", 0, "default records per partition")
}

// bindFlags binds the flags of the executing command to their config keys.
// Binding happens at execution time because sibling commands share keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for name, key := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}
