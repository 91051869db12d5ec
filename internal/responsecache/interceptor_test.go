package responsecache

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/workspace-mcp/internal/instrumentation"
	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func textHandler(text string) server.ToolHandlerFunc {
	return func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(text), nil
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return tc.Text
}

func closeInterceptor(t *testing.T, i *Interceptor) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, i.Close(ctx))
}

func TestInterceptor_SummarizesAndStores(t *testing.T) {
	f := newFixture(t)
	ic := NewInterceptor(f.store, testConfig())

	handler := ic.Middleware()(textHandler(`{"status":"ok","count":3,"items":[1,2,3]}`))
	args := map[string]any{"user_google_email": "a@b.com", "session_id": "s-1", "folder": "inbox"}

	ti := instrumentation.NewToolInvocation("list_items")
	ctx := instrumentation.ContextWithInvocation(context.Background(), ti)

	res, err := handler(ctx, callRequest("list_items", args))
	require.NoError(t, err)
	assert.Equal(t, "status: ok; count: 3; items: 3 items", resultText(t, res))
	assert.Equal(t, instrumentation.CacheOutcomeQueued, ti.CacheOutcome)
	assert.False(t, ti.Verbose)

	closeInterceptor(t, ic)

	records, err := f.store.Scan(context.Background(), vectorstore.NewFilter().WithMatch(FieldToolName, "list_items"), 0)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "a@b.com", rec.UserEmail)
	assert.Equal(t, "s-1", rec.SessionID)
	assert.Equal(t, KindToolResponse, rec.Kind)
	assert.True(t, rec.ResponseData.Equal(mustParse(t, `{"status":"ok","count":3,"items":[1,2,3]}`)))
	folder, ok := rec.ToolArgs.Field("folder")
	require.True(t, ok)
	assert.True(t, folder.Equal(String("inbox")))
}

func TestInterceptor_SummaryKeepsWrapperKeys(t *testing.T) {
	tests := []struct {
		body string
		want string
	}{
		{body: `{"result":[1,2]}`, want: "result: 2 items"},
		{body: `{"result":{"a":1}}`, want: `result: {"a":1}`},
		{body: `{"data":"x"}`, want: "Response received"},
	}

	for _, tt := range tests {
		t.Run(tt.body, func(t *testing.T) {
			f := newFixture(t)
			ic := NewInterceptor(f.store, testConfig())

			res, err := ic.Middleware()(textHandler(tt.body))(context.Background(), callRequest("list_items", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.want, resultText(t, res))
			assert.Equal(t, Summarize(mustParse(t, tt.body)), resultText(t, res))

			closeInterceptor(t, ic)

			records, err := f.store.Scan(context.Background(), nil, 0)
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, tt.want, records[0].ResponseSummary)
		})
	}
}

func TestInterceptor_Verbose(t *testing.T) {
	f := newFixture(t)
	ic := NewInterceptor(f.store, testConfig())
	defer closeInterceptor(t, ic)

	for _, verbose := range []any{true, "true", "TRUE"} {
		ti := instrumentation.NewToolInvocation("list_items")
		ctx := instrumentation.ContextWithInvocation(context.Background(), ti)

		res, err := ic.Wrap("list_items", textHandler(`{"count":3}`))(ctx, callRequest("list_items", map[string]any{"verbose": verbose}))
		require.NoError(t, err)
		assert.Equal(t, `{"count":3}`, resultText(t, res), "verbose=%v", verbose)
		assert.True(t, ti.Verbose)
	}
}

func TestInterceptor_PassesErrorsThrough(t *testing.T) {
	f := newFixture(t)
	ic := NewInterceptor(f.store, testConfig())

	failing := func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, errBoom
	}
	res, err := ic.Wrap("list_items", failing)(context.Background(), callRequest("list_items", nil))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, errBoom)

	toolErr := mcp.NewToolResultError("quota exceeded")
	res, err = ic.Wrap("list_items", func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolErr, nil
	})(context.Background(), callRequest("list_items", nil))
	require.NoError(t, err)
	assert.Same(t, toolErr, res)

	closeInterceptor(t, ic)
	records, err := f.store.Scan(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, records, "failed calls are not stored")
}

func TestInterceptor_ExcludedAndDisabled(t *testing.T) {
	f := newFixture(t)
	ic := NewInterceptor(f.store, testConfig())

	ti := instrumentation.NewToolInvocation(ToolSearchResponses)
	ctx := instrumentation.ContextWithInvocation(context.Background(), ti)
	res, err := ic.Middleware()(textHandler(`{"count":3}`))(ctx, callRequest(ToolSearchResponses, nil))
	require.NoError(t, err)
	assert.Equal(t, `{"count":3}`, resultText(t, res))
	assert.Equal(t, instrumentation.CacheOutcomeSkipped, ti.CacheOutcome)

	cfg := testConfig()
	cfg.Enabled = false
	disabled := NewInterceptor(f.store, cfg)
	res, err = disabled.Wrap("list_items", textHandler("raw"))(context.Background(), callRequest("list_items", nil))
	require.NoError(t, err)
	assert.Equal(t, "raw", resultText(t, res))

	closeInterceptor(t, ic)
	closeInterceptor(t, disabled)
	records, err := f.store.Scan(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, records)
}

// blockingEmbedder holds every Encode until release is closed.
type blockingEmbedder struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingEmbedder) Encode(ctx context.Context, _ string) ([]float32, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	select {
	case <-b.release:
		return make([]float32, 4), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestInterceptor_DropsWhenFull(t *testing.T) {
	emb := &blockingEmbedder{started: make(chan struct{}, 1), release: make(chan struct{})}
	store := NewStore(staticConnector{backend: vectorstore.NewMemoryBackend()}, emb, testConfig())

	cfg := testConfig()
	cfg.MaxInFlight = 1
	ic := NewInterceptor(store, cfg)
	handler := ic.Wrap("list_items", textHandler("ok"))

	first := instrumentation.NewToolInvocation("list_items")
	_, err := handler(instrumentation.ContextWithInvocation(context.Background(), first), callRequest("list_items", nil))
	require.NoError(t, err)
	assert.Equal(t, instrumentation.CacheOutcomeQueued, first.CacheOutcome)

	select {
	case <-emb.started:
	case <-time.After(5 * time.Second):
		t.Fatal("background store did not start")
	}

	second := instrumentation.NewToolInvocation("list_items")
	res, err := handler(instrumentation.ContextWithInvocation(context.Background(), second), callRequest("list_items", nil))
	require.NoError(t, err)
	assert.Equal(t, "ok", resultText(t, res), "the caller is answered even when the store is dropped")
	assert.Equal(t, instrumentation.CacheOutcomeDropped, second.CacheOutcome)

	close(emb.release)
	closeInterceptor(t, ic)

	records, err := store.Scan(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestInterceptor_BackgroundStoreOutlivesRequest(t *testing.T) {
	f := newFixture(t)
	ic := NewInterceptor(f.store, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	_, err := ic.Wrap("list_items", textHandler("done"))(ctx, callRequest("list_items", nil))
	require.NoError(t, err)
	cancel()

	closeInterceptor(t, ic)
	records, err := f.store.Scan(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestInterceptor_DegradesWithoutBackend(t *testing.T) {
	store := NewStore(staticConnector{err: vectorstore.ErrConnectionUnavailable}, failingEmbedder{}, testConfig())
	ic := NewInterceptor(store, testConfig())

	res, err := ic.Wrap("list_items", textHandler(`[1,2]`))(context.Background(), callRequest("list_items", nil))
	require.NoError(t, err)
	assert.Equal(t, "List with 2 items", resultText(t, res))

	closeInterceptor(t, ic)

	// Closed interceptors drop new stores but still answer.
	ti := instrumentation.NewToolInvocation("list_items")
	_, err = ic.Wrap("list_items", textHandler("x"))(instrumentation.ContextWithInvocation(context.Background(), ti), callRequest("list_items", nil))
	require.NoError(t, err)
	assert.Equal(t, instrumentation.CacheOutcomeDropped, ti.CacheOutcome)
}

func TestResponseValue(t *testing.T) {
	tests := []struct {
		name   string
		result *mcp.CallToolResult
		want   Value
	}{
		{name: "nil", result: nil, want: Null()},
		{name: "plain text", result: mcp.NewToolResultText("hello"), want: String("hello")},
		{name: "json object text", result: mcp.NewToolResultText(`{"a":1}`), want: Object(map[string]Value{"a": Int(1)})},
		{name: "json-looking number stays text", result: mcp.NewToolResultText("42"), want: String("42")},
		{name: "broken json stays text", result: mcp.NewToolResultText("{oops"), want: String("{oops")},
		{
			name:   "structured content wins",
			result: &mcp.CallToolResult{StructuredContent: map[string]any{"b": true}, Content: []mcp.Content{mcp.NewTextContent("ignored")}},
			want:   Object(map[string]Value{"b": Bool(true)}),
		},
		{
			name:   "several items",
			result: &mcp.CallToolResult{Content: []mcp.Content{mcp.NewTextContent("a"), mcp.NewTextContent("b")}},
			want:   Array(String("a"), String("b")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResponseValue(tt.result)
			assert.True(t, tt.want.Equal(got), "got %#v", got)
		})
	}
}

func TestCorrelation(t *testing.T) {
	assert.Equal(t, "a@b.com", UserEmailFromArgs(map[string]any{"email": "x@y.com", "user_google_email": " a@b.com "}))
	assert.Equal(t, "x@y.com", UserEmailFromArgs(map[string]any{"user_google_email": "", "email": "x@y.com"}))
	assert.Empty(t, UserEmailFromArgs(nil))

	assert.Equal(t, "s-9", SessionIDFromContext(context.Background(), map[string]any{"session_id": "s-9"}))
	assert.Empty(t, SessionIDFromContext(context.Background(), nil))

	assert.False(t, IsVerbose(nil))
	assert.False(t, IsVerbose(map[string]any{"verbose": "yes"}))
	assert.True(t, IsVerbose(map[string]any{"verbose": true}))
}
