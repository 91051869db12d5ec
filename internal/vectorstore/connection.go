package vectorstore

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/workspace-mcp/internal/logging"
)

// Dialer opens a Backend for an endpoint. Dialing must not block on the
// network; reachability is established by the health probe that follows.
type Dialer func(ctx context.Context, ep Endpoint) (Backend, error)

// DialQdrant returns a Dialer for Qdrant's gRPC API.
func DialQdrant(apiKey string) Dialer {
	return func(_ context.Context, ep Endpoint) (Backend, error) {
		return NewQdrantBackend(ep, apiKey)
	}
}

// MemoryDialer returns a Dialer that serves b for every endpoint.
func MemoryDialer(b *MemoryBackend) Dialer {
	return func(context.Context, Endpoint) (Backend, error) {
		return b, nil
	}
}

// ConnectionManager discovers a reachable vector store and hands out the
// cached handle. The first healthy endpoint is kept for the process lifetime.
type ConnectionManager struct {
	cfg    Config
	dial   Dialer
	logger logging.Logger

	group  singleflight.Group
	outage logging.OnceFlag
	now    func() time.Time

	mu          sync.Mutex
	backend     Backend
	endpoint    Endpoint
	lastFailure time.Time
}

// NewConnectionManager creates a ConnectionManager. A nil logger uses slog's default.
func NewConnectionManager(cfg Config, dial Dialer, logger logging.Logger) *ConnectionManager {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if len(cfg.Ports) == 0 {
		cfg.Ports = append([]int(nil), DefaultPorts...)
	}
	if cfg.HealthCheckTimeout <= 0 {
		cfg.HealthCheckTimeout = DefaultHealthCheckTimeout
	}
	return &ConnectionManager{
		cfg:    cfg,
		dial:   dial,
		logger: logger,
		now:    time.Now,
	}
}

// Candidates returns the endpoints probed by Discover, in order, without duplicates.
func (m *ConnectionManager) Candidates() []Endpoint {
	var out []Endpoint
	seen := make(map[Endpoint]bool)
	add := func(ep Endpoint) {
		if !seen[ep] {
			seen[ep] = true
			out = append(out, ep)
		}
	}

	if m.cfg.URL != "" {
		ep, err := ParseEndpoint(m.cfg.URL)
		if err != nil {
			m.logger.Warn("ignoring invalid vector store URL", "url", m.cfg.URL, "error", err)
		} else {
			add(ep)
		}
	}
	for _, port := range m.cfg.Ports {
		add(Endpoint{Host: m.cfg.Host, Port: port})
	}
	return out
}

// Discover probes the candidates and caches the first healthy one. Once an
// endpoint is cached Discover returns it without probing. It reports false
// when no candidate responds.
func (m *ConnectionManager) Discover(ctx context.Context) (Endpoint, bool) {
	if _, ep, ok := m.cached(); ok {
		return ep, true
	}

	// Shared with other waiters; each probe carries its own timeout.
	ctx = context.WithoutCancel(ctx)
	v, _, _ := m.group.Do("discover", func() (any, error) {
		if _, ep, ok := m.cached(); ok {
			return ep, nil
		}
		ep, ok := m.discover(ctx)
		if !ok {
			return nil, ErrConnectionUnavailable
		}
		return ep, nil
	})

	ep, ok := v.(Endpoint)
	return ep, ok
}

func (m *ConnectionManager) discover(ctx context.Context) (Endpoint, bool) {
	candidates := m.Candidates()

	for _, ep := range candidates {
		backend, err := m.dial(ctx, ep)
		if err != nil {
			m.logger.Debug("vector store dial failed", logging.KeyEndpoint, ep.String(), "error", err)
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.HealthCheckTimeout)
		_, err = backend.ListCollections(probeCtx)
		cancel()
		if err != nil {
			_ = backend.Close()
			m.logger.Debug("vector store health check failed", logging.KeyEndpoint, ep.String(), "error", err)
			continue
		}

		m.mu.Lock()
		m.backend = backend
		m.endpoint = ep
		m.lastFailure = time.Time{}
		m.mu.Unlock()

		m.outage.Reset()
		m.logger.Info("connected to vector store", logging.KeyEndpoint, ep.String(), "tls", ep.UseTLS)
		return ep, true
	}

	m.mu.Lock()
	m.lastFailure = m.now()
	m.mu.Unlock()

	m.outage.Warn(m.logger, "no vector store endpoint responded, response caching disabled",
		"candidates", len(candidates))
	return Endpoint{}, false
}

// Client returns the cached backend, discovering it on first use. It returns
// ErrConnectionUnavailable when nothing responds; after a failure, discovery
// is not retried until RetryInterval has elapsed.
func (m *ConnectionManager) Client(ctx context.Context) (Backend, error) {
	if b, _, ok := m.cached(); ok {
		return b, nil
	}

	m.mu.Lock()
	last := m.lastFailure
	m.mu.Unlock()
	if !last.IsZero() && m.cfg.RetryInterval > 0 && m.now().Sub(last) < m.cfg.RetryInterval {
		return nil, ErrConnectionUnavailable
	}

	if _, ok := m.Discover(ctx); !ok {
		return nil, ErrConnectionUnavailable
	}
	b, _, _ := m.cached()
	return b, nil
}

// Endpoint returns the cached endpoint, if any.
func (m *ConnectionManager) Endpoint() (Endpoint, bool) {
	_, ep, ok := m.cached()
	return ep, ok
}

// Ping verifies the cached backend still answers. Used by readiness checks.
func (m *ConnectionManager) Ping(ctx context.Context) error {
	b, err := m.Client(ctx)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, m.cfg.HealthCheckTimeout)
	defer cancel()
	_, err = b.ListCollections(ctx)
	return err
}

// Close closes the cached backend.
func (m *ConnectionManager) Close() error {
	m.mu.Lock()
	b := m.backend
	m.backend = nil
	m.endpoint = Endpoint{}
	m.mu.Unlock()

	if b == nil {
		return nil
	}
	return b.Close()
}

func (m *ConnectionManager) cached() (Backend, Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backend, m.endpoint, m.backend != nil
}
