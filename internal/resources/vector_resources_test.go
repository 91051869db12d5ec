package resources

import (
	"context"
	"net/url"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/workspace-mcp/internal/embedding"
	"github.com/teemow/workspace-mcp/internal/responsecache"
	"github.com/teemow/workspace-mcp/internal/server"
	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

func newServerContext(t *testing.T, opts ...server.Option) *server.ServerContext {
	t.Helper()
	cfg := server.DefaultConfig()
	cfg.Backend = server.BackendMemory
	cfg.VectorStore.URL = ""
	cfg.Embedding.Provider = embedding.ProviderHash
	cfg.Embedding.Dimensions = 64
	cfg.Cache = responsecache.DefaultConfig()

	sc, err := server.NewServerContext(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func seed(t *testing.T, sc *server.ServerContext, n int) []string {
	t.Helper()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := sc.Store().Put(context.Background(), &responsecache.StructuredPayload{
			ToolName:     "list_events",
			Timestamp:    base.Add(time.Duration(i) * time.Minute),
			ResponseData: responsecache.Object(map[string]responsecache.Value{"count": responsecache.Int(int64(i))}),
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	return ids
}

func read(t *testing.T, sc *server.ServerContext, uri string) map[string]any {
	t.Helper()
	contents, err := Read(context.Background(), sc, uri)
	require.NoError(t, err)
	require.Len(t, contents, 1)

	text, ok := contents[0].(*mcp.TextResourceContents)
	require.True(t, ok, "contents is %T", contents[0])
	assert.Equal(t, uri, text.URI)
	assert.Equal(t, "application/json", text.MIMEType)

	var body map[string]any
	require.NoError(t, json.Unmarshal([]byte(text.Text), &body))
	return body
}

func TestParseURI(t *testing.T) {
	tests := []struct {
		uri     string
		want    route
		wantErr bool
	}{
		{uri: "qdrant://collections/list", want: route{kind: routeCollections}},
		{uri: "qdrant://collection/tool_responses/info", want: route{kind: routeInfo, collection: "tool_responses"}},
		{uri: "qdrant://collection/tool_responses/responses/recent", want: route{kind: routeRecent, collection: "tool_responses", limit: DefaultRecentCount}},
		{uri: "qdrant://collection/c/responses/recent?limit=3", want: route{kind: routeRecent, collection: "c", limit: 3}},
		{uri: "qdrant://search/tool_name%3Alist_events%20offsite", want: route{kind: routeSearch, query: "tool_name:list_events offsite"}},
		{uri: "qdrant://search/archive/a%2Fb", want: route{kind: routeSearch, collection: "archive", query: "a/b"}},
		{uri: "qdrant://collection/c/responses/recent?limit=0", wantErr: true},
		{uri: "qdrant://collection//info", wantErr: true},
		{uri: "qdrant://search/", wantErr: true},
		{uri: "qdrant://search/%zz", wantErr: true},
		{uri: "user://profile", wantErr: true},
		{uri: "qdrant://points/1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			got, err := parseURI(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRegisterVectorResources(t *testing.T) {
	sc := newServerContext(t)
	s := mcpserver.NewMCPServer("workspace-mcp", "test", mcpserver.WithResourceCapabilities(false, false))

	require.NoError(t, RegisterVectorResources(s, sc))
	assert.Error(t, RegisterVectorResources(s, nil))
}

func TestRead_Collections(t *testing.T) {
	sc := newServerContext(t)

	body := read(t, sc, CollectionsListURI)
	assert.EqualValues(t, 0, body["count"])

	seed(t, sc, 2)
	body = read(t, sc, CollectionsListURI)
	assert.EqualValues(t, 1, body["count"])

	collections := body["collections"].([]any)
	first := collections[0].(map[string]any)
	assert.Equal(t, responsecache.DefaultCollection, first["name"])
	assert.EqualValues(t, 2, first["points_count"])
	assert.EqualValues(t, 64, first["vector_size"])
}

func TestRead_CollectionInfo(t *testing.T) {
	sc := newServerContext(t)
	seed(t, sc, 1)

	body := read(t, sc, "qdrant://collection/tool_responses/info")
	assert.Equal(t, "tool_responses", body["name"])
	assert.EqualValues(t, 1, body["points_count"])

	body = read(t, sc, "qdrant://collection/missing/info")
	assert.Equal(t, "collection not found", body["error"])
	assert.Equal(t, "missing", body["collection"])
}

func TestRead_RecentResponses(t *testing.T) {
	sc := newServerContext(t)
	ids := seed(t, sc, 12)

	body := read(t, sc, "qdrant://collection/tool_responses/responses/recent")
	assert.EqualValues(t, DefaultRecentCount, body["count"])

	body = read(t, sc, "qdrant://collection/tool_responses/responses/recent?limit=2")
	responses := body["responses"].([]any)
	require.Len(t, responses, 2)
	assert.Equal(t, ids[11], responses[0].(map[string]any)["id"])
	assert.Equal(t, ids[10], responses[1].(map[string]any)["id"])

	body = read(t, sc, "qdrant://collection/empty/responses/recent")
	assert.EqualValues(t, 0, body["count"])
	assert.Equal(t, []any{}, body["responses"])
}

func TestRead_Search(t *testing.T) {
	sc := newServerContext(t)
	ids := seed(t, sc, 3)

	body := read(t, sc, "qdrant://search/"+url.PathEscape("id:"+ids[1]))
	assert.EqualValues(t, 1, body["count"])
	result := body["results"].([]any)[0].(map[string]any)
	assert.Equal(t, ids[1], result["record"].(map[string]any)["id"])

	body = read(t, sc, "qdrant://search/"+url.PathEscape("tool_name:list_events"))
	assert.EqualValues(t, 3, body["count"])
	assert.Equal(t, "filter", body["parsed"].(map[string]any)["type"])

	body = read(t, sc, "qdrant://search/archive/"+url.PathEscape("tool_name:list_events"))
	assert.EqualValues(t, 0, body["count"])
	assert.Equal(t, "archive", body["collection"])
}

func TestRead_Errors(t *testing.T) {
	down := func(context.Context, vectorstore.Endpoint) (vectorstore.Backend, error) {
		return nil, vectorstore.ErrConnectionUnavailable
	}
	sc := newServerContext(t, server.WithDialer(down))

	body := read(t, sc, CollectionsListURI)
	assert.Equal(t, "vector store unavailable", body["error"])

	body = read(t, sc, "qdrant://search/archive/hello")
	assert.Equal(t, "vector store unavailable", body["error"])
	assert.Equal(t, "archive", body["collection"])
	assert.Equal(t, "hello", body["query"])

	body = read(t, sc, "qdrant://nowhere")
	assert.Contains(t, body["error"], "unknown resource")
}
