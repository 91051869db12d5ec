package responsecache

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/teemow/workspace-mcp/internal/embedding"
	"github.com/teemow/workspace-mcp/internal/instrumentation"
	"github.com/teemow/workspace-mcp/internal/logging"
	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

// Argument names read by the interceptor.
const (
	ArgVerbose   = "verbose"
	ArgSessionID = "session_id"
)

// userEmailArgs are checked in order for the caller's email address.
var userEmailArgs = []string{"user_google_email", "user_email", "email"}

// Interceptor wraps tool handlers. Each successful call is stored in the
// background and answered with a summary unless the caller passed
// verbose=true. Tool errors pass through unchanged and are not stored.
type Interceptor struct {
	store        *Store
	enabled      bool
	excluded     map[string]bool
	storeTimeout time.Duration
	metrics      *instrumentation.Metrics
	logger       *slog.Logger

	sem    chan struct{}
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// ResponseCacheMiddleware is the former name of Interceptor.
//
// Deprecated: use Interceptor.
type ResponseCacheMiddleware = Interceptor

// NewResponseCacheMiddleware is the former name of NewInterceptor.
//
// Deprecated: use NewInterceptor.
var NewResponseCacheMiddleware = NewInterceptor

// NewInterceptor returns an Interceptor writing to store.
func NewInterceptor(store *Store, cfg Config, opts ...Option) *Interceptor {
	cfg = cfg.withDefaults()
	o := applyOptions(opts)

	excluded := make(map[string]bool, len(cfg.ExcludedTools))
	for _, name := range cfg.ExcludedTools {
		excluded[name] = true
	}

	return &Interceptor{
		store:        store,
		enabled:      cfg.Enabled && store != nil,
		excluded:     excluded,
		storeTimeout: cfg.StoreTimeout,
		metrics:      o.metrics,
		logger:       logging.WithComponent(o.logger, "interceptor"),
		sem:          make(chan struct{}, cfg.MaxInFlight),
	}
}

// Middleware returns the interceptor as mcp-go tool middleware.
func (i *Interceptor) Middleware() server.ToolHandlerMiddleware {
	return func(next server.ToolHandlerFunc) server.ToolHandlerFunc {
		return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return i.handle(ctx, req.Params.Name, req, next)
		}
	}
}

// Wrap intercepts a single handler registered as name.
func (i *Interceptor) Wrap(name string, next server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return i.handle(ctx, name, req, next)
	}
}

func (i *Interceptor) handle(ctx context.Context, name string, req mcp.CallToolRequest, next server.ToolHandlerFunc) (*mcp.CallToolResult, error) {
	invocation := instrumentation.InvocationFromContext(ctx)

	if !i.enabled || i.excluded[name] {
		if invocation != nil {
			invocation.WithCacheOutcome(instrumentation.CacheOutcomeSkipped)
		}
		return next(ctx, req)
	}

	start := time.Now()
	result, err := next(ctx, req)
	if err != nil || result == nil || result.IsError {
		return result, err
	}
	elapsed := time.Since(start)

	args := req.GetArguments()
	rec := &StructuredPayload{
		ToolName:        name,
		Timestamp:       start.UTC(),
		ExecutionTimeMs: elapsed.Milliseconds(),
		SessionID:       SessionIDFromContext(ctx, args),
		UserEmail:       UserEmailFromArgs(args),
		ResponseData:    ResponseValue(result),
	}
	if args != nil {
		rec.ToolArgs = FromAny(args)
	}
	i.store.prepare(rec)
	summary := rec.ResponseSummary

	outcome := i.schedule(ctx, rec)
	verbose := IsVerbose(args)
	if invocation != nil {
		invocation.WithResponseMode(verbose).WithCacheOutcome(outcome)
	}

	if verbose {
		return result, nil
	}
	return mcp.NewToolResultText(summary), nil
}

// schedule starts a background store unless the in-flight limit is reached.
func (i *Interceptor) schedule(ctx context.Context, rec *StructuredPayload) string {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if i.closed {
		return instrumentation.CacheOutcomeDropped
	}

	select {
	case i.sem <- struct{}{}:
	default:
		i.logger.Warn("response store dropped, too many in flight",
			logging.Tool(rec.ToolName),
			slog.Int("max_in_flight", cap(i.sem)))
		i.metrics.RecordResponseStore(ctx, rec.ToolName, instrumentation.StoreOutcomeDropped)
		return instrumentation.CacheOutcomeDropped
	}

	i.wg.Add(1)
	bg := context.WithoutCancel(ctx)
	go func() {
		defer i.wg.Done()
		defer func() { <-i.sem }()

		ctx, cancel := context.WithTimeout(bg, i.storeTimeout)
		defer cancel()
		i.persist(ctx, rec)
	}()
	return instrumentation.CacheOutcomeQueued
}

func (i *Interceptor) persist(ctx context.Context, rec *StructuredPayload) {
	ctx, span := instrumentation.StartSpan(ctx, "responsecache.store",
		instrumentation.NewSpanAttributeBuilder().
			WithTool(rec.ToolName).
			WithCollection(i.store.Collection()).
			WithSession(rec.SessionID).
			Build()...)
	defer span.End()

	id, err := i.store.Put(ctx, rec)

	outcome := instrumentation.StoreOutcomeStored
	switch {
	case err == nil:
		span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithRecordID(id).Build()...)
		i.logger.Debug("response stored",
			logging.Tool(rec.ToolName),
			logging.RecordID(id),
			logging.UserHash(rec.UserEmail))
	case errors.Is(err, vectorstore.ErrConnectionUnavailable):
		outcome = instrumentation.StoreOutcomeSkipped
		i.logger.Debug("response not stored, vector store unavailable", logging.Tool(rec.ToolName))
	case errors.Is(err, embedding.ErrEmbeddingUnavailable):
		outcome = instrumentation.StoreOutcomeSkipped
		i.logger.Warn("response not stored, embedding unavailable",
			logging.Tool(rec.ToolName),
			logging.Err(err))
	default:
		outcome = instrumentation.StoreOutcomeFailed
		instrumentation.SetSpanError(span, err)
		i.logger.Warn("response store failed",
			logging.Tool(rec.ToolName),
			logging.UserHash(rec.UserEmail),
			logging.Err(err))
	}
	instrumentation.AddSpanEvent(span, "store."+outcome)
	i.metrics.RecordResponseStore(ctx, rec.ToolName, outcome)
}

// Close stops accepting stores and waits for in-flight ones, or for ctx.
func (i *Interceptor) Close(ctx context.Context) error {
	i.mu.Lock()
	i.closed = true
	i.mu.Unlock()

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResponseValue normalizes a tool result. Structured content wins; a single
// text item holding a JSON object or array is parsed; other text stays a
// string; several items become an array.
func ResponseValue(result *mcp.CallToolResult) Value {
	if result == nil {
		return Null()
	}
	if result.StructuredContent != nil {
		return FromAny(result.StructuredContent)
	}

	items := make([]Value, 0, len(result.Content))
	for _, c := range result.Content {
		items = append(items, contentValue(c))
	}
	switch len(items) {
	case 0:
		return Null()
	case 1:
		return items[0]
	}
	return Array(items...)
}

func contentValue(c mcp.Content) Value {
	var text string
	switch tc := c.(type) {
	case mcp.TextContent:
		text = tc.Text
	case *mcp.TextContent:
		text = tc.Text
	default:
		return FromAny(c)
	}

	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		if v, err := ParseJSON([]byte(trimmed)); err == nil {
			return v
		}
	}
	return String(text)
}

// IsVerbose reports whether the caller asked for the full response.
func IsVerbose(args map[string]any) bool {
	switch v := args[ArgVerbose].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(strings.TrimSpace(v), "true")
	}
	return false
}

// SessionIDFromContext returns the MCP client session id, falling back to
// a session_id argument.
func SessionIDFromContext(ctx context.Context, args map[string]any) string {
	if session := server.ClientSessionFromContext(ctx); session != nil {
		if id := session.SessionID(); id != "" {
			return id
		}
	}
	return stringArg(args, ArgSessionID)
}

// UserEmailFromArgs returns the first non-empty of the user_google_email,
// user_email and email arguments.
func UserEmailFromArgs(args map[string]any) string {
	for _, key := range userEmailArgs {
		if email := stringArg(args, key); email != "" {
			return email
		}
	}
	return ""
}

func stringArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return strings.TrimSpace(s)
}
