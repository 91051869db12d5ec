package responsecache

import (
	"log/slog"

	"github.com/teemow/workspace-mcp/internal/instrumentation"
)

type options struct {
	metrics *instrumentation.Metrics
	logger  *slog.Logger
}

// Option configures the cache components.
type Option func(*options)

// WithMetrics records cache metrics.
func WithMetrics(m *instrumentation.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithLogger sets the logger. Nil uses slog's default.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func applyOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}
