package cache_tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/workspace-mcp/internal/responsecache"
	"github.com/teemow/workspace-mcp/internal/server"
	"github.com/teemow/workspace-mcp/internal/tools/common"
)

// SearchResponse is the search_responses result.
type SearchResponse struct {
	Query      string                      `json:"query"`
	Parsed     responsecache.ParsedQuery   `json:"parsed"`
	Collection string                      `json:"collection"`
	Count      int                         `json:"count"`
	Results    []responsecache.ScoredResult `json:"results"`
}

func registerSearchTool(s *mcpserver.MCPServer, sc *server.ServerContext) {
	searchTool := mcp.NewTool(responsecache.ToolSearchResponses,
		mcp.WithDescription(`Search cached tool responses.

Query grammar:
  id:<record-id>              fetch one record
  field:value ... [text]      exact-match filters (tool_name, user_email, session_id, kind), optionally ranked by text
  text                        semantic search`),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("Search query, e.g. 'tool_name:list_events next week'"),
		),
		mcp.WithString("collection",
			mcp.Description("Collection to search (default: the configured response collection)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of results (default: 10, max: 100)"),
		),
		mcp.WithNumber("score_threshold",
			mcp.Description("Minimum similarity score for ranked results (default: 0)"),
		),
	)

	s.AddTool(searchTool, common.InstrumentedToolHandler(responsecache.ToolSearchResponses, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleSearch(ctx, request, sc)
	}))
}

func handleSearch(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	limit := request.GetInt("limit", responsecache.DefaultSearchLimit)
	if limit <= 0 {
		limit = responsecache.DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	threshold := request.GetFloat("score_threshold", 0)
	if threshold < 0 {
		return mcp.NewToolResultError("score_threshold must not be negative"), nil
	}

	searcher := sc.Searcher().ForCollection(collectionArg(args))
	parsed := responsecache.ParseQuery(query)

	results, err := searcher.Search(ctx, parsed, limit, float32(threshold))
	if err != nil {
		return toolError("search", err), nil
	}
	if results == nil {
		results = []responsecache.ScoredResult{}
	}

	return jsonResult(SearchResponse{
		Query:      query,
		Parsed:     parsed,
		Collection: searcher.Collection(),
		Count:      len(results),
		Results:    results,
	})
}
