// Package cleanup provides the cleanup command for one-shot retention purges
package cleanup

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tphakala/occupancy-go/internal/analysis"
	"github.com/tphakala/occupancy-go/internal/conf"
	"github.com/tphakala/occupancy-go/internal/counting"
)

// Command creates and returns the cleanup command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Purge events and measurements older than the retention period",
		Long:  `Cleanup removes counting events and occupancy measurements older than counting.retention_days. Areas and zone bindings are kept.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if settings.Counting.RetentionDays <= 0 {
				return fmt.Errorf("retention is disabled, set counting.retention_days to a positive value")
			}

			store, err := analysis.OpenDataStore(cmd.Context(), settings)
			if err != nil {
				return err
			}
			defer store.Close()

			sampler := counting.NewSampler(store, nil, &settings.Counting)
			result, err := sampler.Cleanup(cmd.Context())
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d events and %d measurements\n", result.Events, result.Measurements)
			return nil
		},
	}

	cmd.Flags().IntVar(&settings.Counting.RetentionDays, "days", settings.Counting.RetentionDays, "Override the retention period in days")

	return cmd
}
