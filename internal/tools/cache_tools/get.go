package cache_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/workspace-mcp/internal/responsecache"
	"github.com/teemow/workspace-mcp/internal/server"
	"github.com/teemow/workspace-mcp/internal/tools/batch"
	"github.com/teemow/workspace-mcp/internal/tools/common"
)

func registerGetResponseTool(s *mcpserver.MCPServer, sc *server.ServerContext) {
	getTool := mcp.NewTool(responsecache.ToolGetResponse,
		mcp.WithDescription("Get the full cached response for one or more record ids, decompressed"),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Record ID (string) or array of record IDs to retrieve"),
		),
		mcp.WithString("collection",
			mcp.Description("Collection to read from (default: the configured response collection)"),
		),
	)

	s.AddTool(getTool, common.InstrumentedToolHandler(responsecache.ToolGetResponse, sc, func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return handleGetResponse(ctx, request, sc)
	}))
}

func handleGetResponse(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	ids, err := batch.ParseStringOrArray(args["id"], "id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	store := sc.Store().ForCollection(collectionArg(args))
	results := batch.ProcessBatchContext(ctx, ids, func(ctx context.Context, id string) (*responsecache.StructuredPayload, error) {
		rec, found, err := store.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("response %s not found in %s", id, store.Collection())
		}
		return rec, nil
	})

	return mcp.NewToolResultText(batch.FormatResults(results)), nil
}
