package server

import (
	"context"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/workspace-mcp/internal/embedding"
	"github.com/teemow/workspace-mcp/internal/responsecache"
	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

func memoryConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Backend = BackendMemory
	cfg.VectorStore.URL = ""
	cfg.VectorStore.RetryInterval = 0
	cfg.Embedding.Provider = embedding.ProviderHash
	cfg.Embedding.Dimensions = 64
	cfg.Cache = responsecache.DefaultConfig()
	cfg.Cache.Enabled = true
	return cfg
}

func newTestServerContext(t *testing.T) *ServerContext {
	t.Helper()
	sc, err := NewServerContext(context.Background(), memoryConfig(t))
	if err != nil {
		t.Fatalf("NewServerContext() error = %v", err)
	}
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		errContains string
	}{
		{name: "memory backend", mutate: func(*Config) {}},
		{name: "qdrant backend", mutate: func(c *Config) { c.Backend = BackendQdrant }},
		{name: "unknown backend", mutate: func(c *Config) { c.Backend = "redis" }, errContains: "invalid vector store"},
		{name: "bad endpoint", mutate: func(c *Config) { c.VectorStore.URL = "ftp://qdrant" }, errContains: "vector store"},
		{name: "bad provider", mutate: func(c *Config) { c.Embedding.Provider = "bert" }, errContains: "embedding"},
		{name: "bad cache", mutate: func(c *Config) { c.Cache.Collection = "" }, errContains: "response cache"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := memoryConfig(t)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.errContains == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Validate() error = %v, want error containing %q", err, tt.errContains)
			}
		})
	}
}

func TestNewServerContext_InvalidConfig(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Backend = "redis"
	if _, err := NewServerContext(context.Background(), cfg); err == nil {
		t.Fatal("NewServerContext() expected error for invalid backend")
	}
}

func TestServerContext_WiresCache(t *testing.T) {
	sc := newTestServerContext(t)

	if sc.Metrics() != nil || sc.AuditLogger() != nil {
		t.Error("instrumentation should be off by default")
	}
	if got := sc.Store().Collection(); got != responsecache.DefaultCollection {
		t.Errorf("Store().Collection() = %q, want %q", got, responsecache.DefaultCollection)
	}
	if sc.Embedder().Loaded() {
		t.Error("embedder should load lazily")
	}

	handler := sc.Interceptor().Wrap("list_items", func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(`{"status":"ok","count":2}`), nil
	})
	req := mcp.CallToolRequest{}
	req.Params.Name = "list_items"
	if _, err := handler(context.Background(), req); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	// Shutdown drains the background store.
	if err := sc.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !sc.IsShutdown() {
		t.Error("IsShutdown() = false after Shutdown()")
	}
	if sc.Context().Err() == nil {
		t.Error("context should be cancelled after Shutdown()")
	}

	filter := vectorstore.NewFilter().WithMatch(responsecache.FieldToolName, "list_items")
	records, err := sc.Store().Scan(context.Background(), filter, 0)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Scan() returned %d records, want 1", len(records))
	}

	results, err := sc.Searcher().SearchString(context.Background(), "tool_name:list_items", 10, 0)
	if err != nil {
		t.Fatalf("SearchString() error = %v", err)
	}
	if len(results) != 1 || results[0].Record.ID != records[0].ID {
		t.Errorf("SearchString() = %+v, want the stored record", results)
	}

	// A second shutdown is a no-op.
	if err := sc.Shutdown(); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
}

func TestServerContext_WithDialer(t *testing.T) {
	shared := vectorstore.NewMemoryBackend()
	cfg := memoryConfig(t)
	sc, err := NewServerContext(context.Background(), cfg, WithDialer(vectorstore.MemoryDialer(shared)))
	if err != nil {
		t.Fatalf("NewServerContext() error = %v", err)
	}
	defer sc.Shutdown()

	if _, err := sc.Store().Put(context.Background(), &responsecache.StructuredPayload{
		ToolName:     "list_items",
		ResponseData: responsecache.String("hello"),
	}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	names, err := shared.ListCollections(context.Background())
	if err != nil {
		t.Fatalf("ListCollections() error = %v", err)
	}
	if len(names) != 1 || names[0] != responsecache.DefaultCollection {
		t.Errorf("collections = %v, want [%s]", names, responsecache.DefaultCollection)
	}
}
