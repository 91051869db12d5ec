package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teemow/workspace-mcp/internal/responsecache"
	"github.com/teemow/workspace-mcp/internal/tools/cache_tools"
)

func newAnalyticsCmd() *cobra.Command {
	var (
		startTime string
		endTime   string
		groupBy   string
		debugMode bool
		cache     cacheFlags
	)

	cmd := &cobra.Command{
		Use:   "analytics",
		Short: "Aggregate the stored tool responses",
		Long: `Count the stored responses per group and report execution time and
compression statistics as JSON. --start and --end take RFC3339 timestamps or
plain dates.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cache.config(cmd)
			if err != nil {
				return err
			}

			window := map[string]any{"start": startTime, "end": endTime}
			start, err := cache_tools.ParseTime(window, "start")
			if err != nil {
				return err
			}
			end, err := cache_tools.ParseTime(window, "end")
			if err != nil {
				return err
			}

			sc, err := openServerContext(cmd.Context(), cfg, debugMode)
			if err != nil {
				return err
			}
			defer sc.Shutdown()

			result, err := sc.Aggregator().Aggregate(cmd.Context(), responsecache.AnalyticsQuery{
				Start:   start,
				End:     end,
				GroupBy: groupBy,
			})
			if err != nil {
				return fmt.Errorf("analytics failed: %w", err)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVar(&startTime, "start", "", "Inclusive start of the time window")
	cmd.Flags().StringVar(&endTime, "end", "", "Inclusive end of the time window")
	cmd.Flags().StringVar(&groupBy, "group-by", responsecache.FieldToolName, "Payload field to group by")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cache.register(cmd)

	return cmd
}
