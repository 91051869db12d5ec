package common

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/teemow/workspace-mcp/internal/embedding"
	"github.com/teemow/workspace-mcp/internal/instrumentation"
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
	cfg.Cache.Enabled = true

	sc, err := server.NewServerContext(context.Background(), cfg, opts...)
	if err != nil {
		t.Fatalf("failed to create server context: %v", err)
	}
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func newTestMetrics(t *testing.T) *instrumentation.Metrics {
	t.Helper()
	metrics, err := instrumentation.NewMetrics(noop.NewMeterProvider().Meter("test"), false)
	if err != nil {
		t.Fatalf("failed to create metrics: %v", err)
	}
	return metrics
}

func callRequest(name string, args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return req
}

func TestInstrumentedToolHandler_Success(t *testing.T) {
	sc := newServerContext(t)

	called := false
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := InstrumentedToolHandler("test_tool", sc, handler)
	result, err := wrapped(context.Background(), callRequest("test_tool", nil))

	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if !called {
		t.Error("expected handler to be called")
	}
	if result == nil {
		t.Fatal("expected result, got nil")
	}
}

func TestInstrumentedToolHandler_Error(t *testing.T) {
	sc := newServerContext(t, server.WithMetrics(newTestMetrics(t)))

	expectedErr := errors.New("test error")
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, expectedErr
	}

	_, err := InstrumentedToolHandler("test_tool", sc, handler)(context.Background(), callRequest("test_tool", nil))
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}
}

func TestInstrumentedToolHandler_ErrorResult(t *testing.T) {
	sc := newServerContext(t, server.WithMetrics(newTestMetrics(t)))

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("error message"), nil
	}

	result, err := InstrumentedToolHandler("test_tool", sc, handler)(context.Background(), callRequest("test_tool", nil))
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result == nil || !result.IsError {
		t.Error("expected result.IsError to be true")
	}
}

func TestInstrumentedToolHandler_AuditsCacheOutcome(t *testing.T) {
	var buf bytes.Buffer
	audit := instrumentation.NewAuditLoggerWithConfig(
		slog.New(slog.NewTextHandler(&buf, nil)),
		instrumentation.AuditLoggingConfig{Enabled: true, IncludePII: true},
	)
	sc := newServerContext(t, server.WithMetrics(newTestMetrics(t)), server.WithAuditLogger(audit))

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		time.Sleep(time.Millisecond)
		return mcp.NewToolResultText(`{"status":"ok","count":1}`), nil
	}
	wrapped := InstrumentedToolHandler("list_items", sc, handler)

	args := map[string]any{"user_google_email": "a@example.com", "session_id": "s-7"}
	result, err := wrapped(context.Background(), callRequest("list_items", args))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok || text.Text != "status: ok; count: 1" {
		t.Errorf("expected summarized response, got %#v", result.Content[0])
	}

	logged := buf.String()
	for _, want := range []string{"tool=list_items", "user=a@example.com", "session_id=s-7", "cache=queued"} {
		if !strings.Contains(logged, want) {
			t.Errorf("audit log %q missing %q", logged, want)
		}
	}

	if err := sc.Shutdown(); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	records, err := sc.Store().Scan(context.Background(), vectorstore.NewFilter().WithMatch(responsecache.FieldSessionID, "s-7"), 0)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 stored record, got %d", len(records))
	}
	if records[0].UserEmail != "a@example.com" {
		t.Errorf("UserEmail = %q, want a@example.com", records[0].UserEmail)
	}
}

func TestInstrumentedToolHandler_ExcludedToolSkipsCache(t *testing.T) {
	var buf bytes.Buffer
	audit := instrumentation.NewAuditLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	sc := newServerContext(t, server.WithAuditLogger(audit))

	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText(`{"count":1}`), nil
	}
	result, err := InstrumentedToolHandler(responsecache.ToolSearchResponses, sc, handler)(context.Background(), callRequest(responsecache.ToolSearchResponses, nil))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if text, ok := result.Content[0].(mcp.TextContent); !ok || text.Text != `{"count":1}` {
		t.Errorf("excluded tools return the raw response, got %#v", result.Content[0])
	}
	if !strings.Contains(buf.String(), "cache=skipped") {
		t.Errorf("audit log %q should record the skipped cache", buf.String())
	}
}

func TestCorrelationFromArgs(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want Correlation
	}{
		{name: "nil args", args: nil, want: Correlation{}},
		{
			name: "google email and session",
			args: map[string]any{"user_google_email": "a@b.com", "session_id": "s-1"},
			want: Correlation{UserEmail: "a@b.com", SessionID: "s-1"},
		},
		{
			name: "plain email",
			args: map[string]any{"email": "x@y.com"},
			want: Correlation{UserEmail: "x@y.com"},
		},
		{
			name: "non-string values are ignored",
			args: map[string]any{"user_email": 42, "session_id": true},
			want: Correlation{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CorrelationFromArgs(context.Background(), tt.args)
			if got != tt.want {
				t.Errorf("CorrelationFromArgs() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
