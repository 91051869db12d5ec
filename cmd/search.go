package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/teemow/workspace-mcp/internal/responsecache"
	"github.com/teemow/workspace-mcp/internal/server"
	"github.com/teemow/workspace-mcp/internal/tools/cache_tools"
)

func newSearchCmd() *cobra.Command {
	var (
		limit          int
		scoreThreshold float64
		debugMode      bool
		cache          cacheFlags
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the stored tool responses",
		Long: `Run a hybrid query against the response collection and print the matches
as JSON.

Query grammar:
  id:<record-id>              fetch one record
  field:value ... [text]      exact-match filters, optionally ranked by text
  text                        semantic search`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cache.config(cmd)
			if err != nil {
				return err
			}
			if limit <= 0 || limit > cache_tools.MaxSearchLimit {
				return fmt.Errorf("limit must be between 1 and %d", cache_tools.MaxSearchLimit)
			}
			if scoreThreshold < 0 {
				return fmt.Errorf("score-threshold must not be negative")
			}

			sc, err := openServerContext(cmd.Context(), cfg, debugMode)
			if err != nil {
				return err
			}
			defer sc.Shutdown()

			query := strings.Join(args, " ")
			parsed := responsecache.ParseQuery(query)
			results, err := sc.Searcher().Search(cmd.Context(), parsed, limit, float32(scoreThreshold))
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}
			if results == nil {
				results = []responsecache.ScoredResult{}
			}

			return writeJSON(cmd.OutOrStdout(), cache_tools.SearchResponse{
				Query:      query,
				Parsed:     parsed,
				Collection: sc.Searcher().Collection(),
				Count:      len(results),
				Results:    results,
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", responsecache.DefaultSearchLimit, "Maximum number of results")
	cmd.Flags().Float64Var(&scoreThreshold, "score-threshold", 0, "Minimum similarity score for ranked results")
	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cache.register(cmd)

	return cmd
}

// openServerContext builds a ServerContext for one-shot commands. Logs go to
// stderr so stdout stays valid JSON.
func openServerContext(ctx context.Context, cfg server.Config, debug bool) (*server.ServerContext, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sc, err := server.NewServerContext(ctx, cfg, server.WithLogger(newLogger(os.Stderr, debug)))
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	return sc, nil
}

func writeJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
