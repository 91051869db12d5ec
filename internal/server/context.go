package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/teemow/workspace-mcp/internal/embedding"
	"github.com/teemow/workspace-mcp/internal/instrumentation"
	"github.com/teemow/workspace-mcp/internal/logging"
	"github.com/teemow/workspace-mcp/internal/responsecache"
	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

// Vector store backends.
const (
	BackendQdrant = "qdrant"
	BackendMemory = "memory"
)

// Config wires the vector store, the embedder and the response cache.
type Config struct {
	// Backend is "qdrant" (default) or "memory".
	Backend string

	VectorStore vectorstore.Config
	Embedding   embedding.Config
	Cache       responsecache.Config
}

// DefaultConfig returns a Config populated from the environment.
func DefaultConfig() Config {
	return Config{
		Backend:     getEnvOrDefault("VECTOR_STORE", BackendQdrant),
		VectorStore: vectorstore.DefaultConfig(),
		Embedding:   embedding.DefaultConfig(),
		Cache:       responsecache.DefaultConfig(),
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendQdrant, BackendMemory, "":
	default:
		return fmt.Errorf("invalid vector store %q, must be one of: qdrant, memory", c.Backend)
	}
	if err := c.VectorStore.Validate(); err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	if err := c.Embedding.Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("response cache: %w", err)
	}
	return nil
}

// Option configures a ServerContext.
type Option func(*ServerContext)

// WithMetrics records metrics from every component.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(sc *ServerContext) { sc.metrics = m }
}

// WithAuditLogger logs tool invocations.
func WithAuditLogger(al *instrumentation.AuditLogger) Option {
	return func(sc *ServerContext) { sc.auditLogger = al }
}

// WithLogger sets the operational logger.
func WithLogger(logger *slog.Logger) Option {
	return func(sc *ServerContext) { sc.logger = logger }
}

// WithDialer replaces the vector store dialer.
func WithDialer(dial vectorstore.Dialer) Option {
	return func(sc *ServerContext) { sc.dial = dial }
}

// ServerContext holds the context for the MCP server: the shared vector store
// connection, the embedder and the response cache services built on them.
type ServerContext struct {
	ctx    context.Context
	cancel context.CancelFunc

	cfg         Config
	dial        vectorstore.Dialer
	conn        *vectorstore.ConnectionManager
	embedder    *embedding.Lazy
	store       *responsecache.Store
	searcher    *responsecache.Searcher
	aggregator  *responsecache.Aggregator
	interceptor *responsecache.Interceptor
	sessions    *SessionTracker

	metrics     *instrumentation.Metrics
	auditLogger *instrumentation.AuditLogger
	logger      *slog.Logger

	mu       sync.RWMutex
	shutdown bool
}

// NewServerContext creates a new server context. Nothing connects here: the
// vector store is discovered and the embedder loaded on first use.
func NewServerContext(ctx context.Context, cfg Config, opts ...Option) (*ServerContext, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	shutdownCtx, cancel := context.WithCancel(ctx)
	sc := &ServerContext{
		ctx:    shutdownCtx,
		cancel: cancel,
		cfg:    cfg,
	}
	for _, opt := range opts {
		opt(sc)
	}
	if sc.logger == nil {
		sc.logger = slog.Default()
	}

	if sc.dial == nil {
		switch cfg.Backend {
		case BackendMemory:
			sc.dial = vectorstore.MemoryDialer(vectorstore.NewMemoryBackend())
		default:
			sc.dial = vectorstore.DialQdrant(cfg.VectorStore.APIKey)
		}
	}
	sc.conn = vectorstore.NewConnectionManager(
		cfg.VectorStore,
		vectorstore.InstrumentDialer(sc.dial, sc.metrics),
		logging.NewSlogAdapter(logging.WithComponent(sc.logger, "vectorstore")),
	)

	embedder, err := embedding.NewLazyFromConfig(cfg.Embedding,
		embedding.WithMetrics(sc.metrics),
		embedding.WithLogger(sc.logger),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	sc.embedder = embedder

	cacheOpts := []responsecache.Option{
		responsecache.WithMetrics(sc.metrics),
		responsecache.WithLogger(sc.logger),
	}
	sc.store = responsecache.NewStore(sc.conn, embedder, cfg.Cache, cacheOpts...)
	sc.searcher = responsecache.NewSearcher(sc.store, embedder, cacheOpts...)
	sc.aggregator = responsecache.NewAggregator(sc.store, cacheOpts...)
	sc.interceptor = responsecache.NewInterceptor(sc.store, cfg.Cache, cacheOpts...)
	sc.sessions = NewSessionTracker(sc.metrics, logging.WithComponent(sc.logger, "sessions"))

	return sc, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Config returns the configuration the context was built from.
func (sc *ServerContext) Config() Config {
	return sc.cfg
}

// Connection returns the shared vector store connection manager.
func (sc *ServerContext) Connection() *vectorstore.ConnectionManager {
	return sc.conn
}

// Embedder returns the lazily loaded embedding provider.
func (sc *ServerContext) Embedder() *embedding.Lazy {
	return sc.embedder
}

// Store returns the payload store for the default collection.
func (sc *ServerContext) Store() *responsecache.Store {
	return sc.store
}

// Searcher returns the search executor for the default collection.
func (sc *ServerContext) Searcher() *responsecache.Searcher {
	return sc.searcher
}

// Aggregator returns the analytics aggregator for the default collection.
func (sc *ServerContext) Aggregator() *responsecache.Aggregator {
	return sc.aggregator
}

// Interceptor returns the tool response interceptor.
func (sc *ServerContext) Interceptor() *responsecache.Interceptor {
	return sc.interceptor
}

// Sessions returns the tracker of connected MCP sessions.
func (sc *ServerContext) Sessions() *SessionTracker {
	return sc.sessions
}

// Logger returns the operational logger.
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Metrics returns the metrics recorder, or nil when instrumentation is off.
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// AuditLogger returns the audit logger, or nil when auditing is off.
func (sc *ServerContext) AuditLogger() *instrumentation.AuditLogger {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.auditLogger
}

// SetAuditLogger sets the audit logger used by tool middleware.
func (sc *ServerContext) SetAuditLogger(al *instrumentation.AuditLogger) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.auditLogger = al
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown drains pending background stores, then closes the vector store
// connection. Stores still running after the cache's store timeout are
// abandoned.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	if sc.shutdown {
		sc.mu.Unlock()
		return nil
	}
	sc.shutdown = true
	sc.mu.Unlock()

	drain := sc.cfg.Cache.StoreTimeout
	if drain <= 0 {
		drain = responsecache.DefaultStoreTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), drain+time.Second)
	defer cancel()

	var errs []error
	if err := sc.interceptor.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("drain background stores: %w", err))
	}
	if err := sc.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close vector store: %w", err))
	}
	sc.cancel()
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
