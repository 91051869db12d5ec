package cache_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/workspace-mcp/internal/server"
	"github.com/teemow/workspace-mcp/internal/tools/common"
	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

// ToolVectorStoreStatus is not an admin tool: its responses are cached like
// those of any other wrapped tool.
const ToolVectorStoreStatus = "vector_store_status"

type statusReport struct {
	Status         string                       `json:"status"`
	Endpoint       string                       `json:"endpoint,omitempty"`
	Error          string                       `json:"error,omitempty"`
	Collections    []vectorstore.CollectionInfo `json:"collections"`
	Embedding      embeddingStatus              `json:"embedding"`
	ActiveSessions int                          `json:"active_sessions"`
}

type embeddingStatus struct {
	Provider   string `json:"provider"`
	Loaded     bool   `json:"loaded"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// RegisterStatusTool registers vector_store_status.
func RegisterStatusTool(s *mcpserver.MCPServer, sc *server.ServerContext) {
	statusTool := mcp.NewTool(ToolVectorStoreStatus,
		mcp.WithDescription("Report the vector store endpoint, its collections and the embedding provider state"),
	)

	s.AddTool(statusTool, common.InstrumentedToolHandler(ToolVectorStoreStatus, sc, func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return jsonResult(vectorStoreStatus(ctx, sc))
	}))
}

// vectorStoreStatus never fails; an unreachable store is reported as
// degraded.
func vectorStoreStatus(ctx context.Context, sc *server.ServerContext) statusReport {
	report := statusReport{
		Status:         "ok",
		Collections:    []vectorstore.CollectionInfo{},
		ActiveSessions: sc.Sessions().Count(),
		Embedding: embeddingStatus{
			Provider: sc.Config().Embedding.Provider,
			Loaded:   sc.Embedder().Loaded(),
		},
	}
	if report.Embedding.Loaded {
		report.Embedding.Dimensions = sc.Embedder().Dimensions()
	}

	collections, err := sc.Store().Collections(ctx)
	if err != nil {
		report.Status = "degraded"
		report.Error = err.Error()
	} else if collections != nil {
		report.Collections = collections
	}
	if ep, ok := sc.Connection().Endpoint(); ok {
		report.Endpoint = ep.String()
	}
	return report
}
