package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teemow/workspace-mcp/internal/instrumentation"
	"github.com/teemow/workspace-mcp/internal/logging"
)

// Lazy defers building a Provider until the first Encode. Concurrent first
// callers share a single load; a failed load is not remembered and is
// retried by the next caller. Lazy itself implements Provider.
type Lazy struct {
	factory   Factory
	truncator *Truncator
	timeout   time.Duration
	metrics   *instrumentation.Metrics
	logger    *slog.Logger

	group singleflight.Group

	mu       sync.RWMutex
	provider Provider

	dims atomic.Int64
}

// Option configures a Lazy.
type Option func(*Lazy)

// WithMetrics records embedding metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(l *Lazy) { l.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Lazy) { l.logger = logger }
}

// WithMaxInputTokens truncates input to n tokens before encoding.
func WithMaxInputTokens(n int) Option {
	return func(l *Lazy) { l.truncator = NewTruncator(n) }
}

// WithEncodeTimeout bounds each Encode call.
func WithEncodeTimeout(d time.Duration) Option {
	return func(l *Lazy) { l.timeout = d }
}

// NewLazy returns a Lazy around factory.
func NewLazy(factory Factory, opts ...Option) *Lazy {
	l := &Lazy{
		factory:   factory,
		truncator: NewTruncator(DefaultMaxInputTokens),
		timeout:   DefaultEncodeTimeout,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.WithComponent(l.logger, "embedding")
	return l
}

// NewLazyFromConfig builds a Lazy for cfg.
func NewLazyFromConfig(cfg Config, opts ...Option) (*Lazy, error) {
	factory, err := NewFactory(cfg)
	if err != nil {
		return nil, err
	}
	base := []Option{WithMaxInputTokens(cfg.MaxInputTokens)}
	if cfg.EncodeTimeout > 0 {
		base = append(base, WithEncodeTimeout(cfg.EncodeTimeout))
	}
	return NewLazy(factory, append(base, opts...)...), nil
}

// Load returns the shared provider, building it on first use.
func (l *Lazy) Load(ctx context.Context) (Provider, error) {
	if p := l.loaded(); p != nil {
		return p, nil
	}

	v, err, _ := l.group.Do("load", func() (any, error) {
		if p := l.loaded(); p != nil {
			return p, nil
		}

		start := time.Now()
		p, err := l.factory()
		if err != nil {
			l.logger.Warn("embedding provider failed to load", logging.Err(err))
			return nil, err
		}

		l.mu.Lock()
		l.provider = p
		l.mu.Unlock()

		l.logger.Info("embedding provider loaded",
			slog.String("provider", p.Name()),
			slog.Int("dimensions", p.Dimensions()),
			slog.Duration(logging.KeyDuration, time.Since(start)))
		return p, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	return v.(Provider), nil
}

// Loaded reports whether the provider has been built.
func (l *Lazy) Loaded() bool {
	return l.loaded() != nil
}

func (l *Lazy) loaded() Provider {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.provider
}

// Encode loads the provider if needed, truncates text and encodes it.
func (l *Lazy) Encode(ctx context.Context, text string) ([]float32, error) {
	p, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}

	ctx, span := instrumentation.StartBackendSpan(ctx, "embedding", "encode")
	defer span.End()

	if l.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.timeout)
		defer cancel()
	}

	start := time.Now()
	vec, err := p.Encode(ctx, l.truncator.Truncate(text))
	if err != nil {
		err = fmt.Errorf("%w: %s: %w", ErrEmbeddingUnavailable, p.Name(), err)
	} else {
		err = l.checkDimensions(len(vec))
	}

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	}
	l.metrics.RecordEmbedding(ctx, p.Name(), status, time.Since(start))

	if err != nil {
		return nil, err
	}
	return vec, nil
}

// checkDimensions fixes the dimensionality on the first call and rejects
// any later vector of a different length.
func (l *Lazy) checkDimensions(n int) error {
	if n == 0 {
		return ErrEmptyEmbedding
	}
	if l.dims.CompareAndSwap(0, int64(n)) {
		return nil
	}
	if want := l.dims.Load(); want != int64(n) {
		return fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, n, want)
	}
	return nil
}

// Dimensions returns the fixed dimensionality, the loaded provider's
// declared size, or 0 before anything is loaded.
func (l *Lazy) Dimensions() int {
	if d := l.dims.Load(); d > 0 {
		return int(d)
	}
	if p := l.loaded(); p != nil {
		return p.Dimensions()
	}
	return 0
}

// Name returns the loaded provider's name, or "lazy" before loading.
func (l *Lazy) Name() string {
	if p := l.loaded(); p != nil {
		return p.Name()
	}
	return "lazy"
}
