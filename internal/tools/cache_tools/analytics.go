package cache_tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/workspace-mcp/internal/responsecache"
	"github.com/teemow/workspace-mcp/internal/server"
	"github.com/teemow/workspace-mcp/internal/tools/common"
)

func registerAnalyticsTool(s *mcpserver.MCPServer, sc *server.ServerContext) {
	analyticsTool := mcp.NewTool(responsecache.ToolResponseAnalytics,
		mcp.WithDescription("Aggregate usage statistics over cached tool responses: counts per group, execution times and compression savings"),
		mcp.WithString("start_time",
			mcp.Description("Inclusive start of the time window (RFC3339)"),
		),
		mcp.WithString("end_time",
			mcp.Description("Inclusive end of the time window (RFC3339)"),
		),
		mcp.WithString("group_by",
			mcp.Description("Payload field to group by (default: tool_name), e.g. user_email, kind, session_id"),
		),
		mcp.WithString("collection",
			mcp.Description("Collection to aggregate (default: the configured response collection)"),
		),
	)

	s.AddTool(analyticsTool, common.InstrumentedToolHandler(responsecache.ToolResponseAnalytics, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleAnalytics(ctx, request, sc)
	}))
}

func handleAnalytics(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	start, err := ParseTime(args, "start_time")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	end, err := ParseTime(args, "end_time")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	groupBy, _ := args["group_by"].(string)

	agg := sc.Aggregator().ForCollection(collectionArg(args))
	result, err := agg.Aggregate(ctx, responsecache.AnalyticsQuery{
		Start:   start,
		End:     end,
		GroupBy: strings.TrimSpace(groupBy),
	})
	if err != nil {
		return toolError("analytics", err), nil
	}

	return jsonResult(result)
}

// ParseTime reads an optional RFC3339 timestamp argument. A date alone
// (2006-01-02) is accepted as midnight UTC.
func ParseTime(args map[string]any, key string) (*time.Time, error) {
	raw, _ := args[key].(string)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, fmt.Errorf("%s must be an RFC3339 timestamp, got %q", key, raw)
}
