package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grf/partitioner/internal/domain/partition"
)

func newPlanCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the partition plan without touching any data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd.Flags(), planFlagKeys); err != nil {
				return err
			}
			cfg, log, err := loadConfig(v)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			in := cfg.PlanInput()
			plan, err := partition.ComputePartitionSize(in)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "daily quota:     %d\n", in.DailyQuota)
			fmt.Fprintf(out, "vault size:      %d\n", in.VaultSize)
			fmt.Fprintf(out, "archive count:   %d\n", in.ArchiveCount)
			fmt.Fprintf(out, "estimated days:  %d\n", plan.Days)
			fmt.Fprintf(out, "partition size:  %d\n", plan.Size)
			fmt.Fprintf(out, "partitions:      %d\n", plan.PartitionCount(in.ArchiveCount))
			return nil
		},
	}
	addPlanFlags(cmd)
	return cmd
}
