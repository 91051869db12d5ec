package cache_tools

import (
	"errors"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/workspace-mcp/internal/embedding"
	"github.com/teemow/workspace-mcp/internal/responsecache"
	"github.com/teemow/workspace-mcp/internal/server"
	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

// MaxSearchLimit caps the limit argument of search_responses.
const MaxSearchLimit = 100

// RegisterCacheTools registers the response cache admin tools with the MCP server.
func RegisterCacheTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	if sc == nil {
		return fmt.Errorf("server context is required")
	}

	registerSearchTool(s, sc)
	registerGetResponseTool(s, sc)
	registerAnalyticsTool(s, sc)

	return nil
}

func collectionArg(args map[string]any) string {
	c, _ := args["collection"].(string)
	return c
}

// toolError maps cache errors to a tool error result with a short prefix
// naming what went wrong.
func toolError(action string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, vectorstore.ErrConnectionUnavailable):
		return mcp.NewToolResultError(fmt.Sprintf("%s: vector store unavailable: %v", action, err))
	case errors.Is(err, embedding.ErrEmbeddingUnavailable):
		return mcp.NewToolResultError(fmt.Sprintf("%s: embedding provider unavailable, use filter or id queries: %v", action, err))
	case errors.Is(err, responsecache.ErrInvalidQuery), errors.Is(err, responsecache.ErrInvalidTimeRange):
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", action, err))
	default:
		return mcp.NewToolResultError(fmt.Sprintf("%s failed: %v", action, err))
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
