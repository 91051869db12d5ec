package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/workspace-mcp/internal/instrumentation"
	"github.com/teemow/workspace-mcp/internal/logging"
)

// SessionTracker keeps the set of connected MCP client sessions and feeds
// the active sessions gauge.
type SessionTracker struct {
	sessions map[string]time.Time // session ID to connect time
	mu       sync.RWMutex
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessionTracker creates a SessionTracker. Both arguments may be nil.
func NewSessionTracker(metrics *instrumentation.Metrics, logger *slog.Logger) *SessionTracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionTracker{
		sessions: make(map[string]time.Time),
		metrics:  metrics,
		logger:   logger,
		now:      time.Now,
	}
}

// Hooks returns MCP server hooks that report session registration to t.
func (t *SessionTracker) Hooks() *mcpserver.Hooks {
	hooks := &mcpserver.Hooks{}
	hooks.AddOnRegisterSession(func(ctx context.Context, session mcpserver.ClientSession) {
		t.Open(ctx, session.SessionID())
	})
	hooks.AddOnUnregisterSession(func(ctx context.Context, session mcpserver.ClientSession) {
		t.Close(ctx, session.SessionID())
	})
	return hooks
}

// Open records a connected session. Opening a known session is a no-op.
func (t *SessionTracker) Open(ctx context.Context, sessionID string) {
	t.mu.Lock()
	if _, ok := t.sessions[sessionID]; ok {
		t.mu.Unlock()
		return
	}
	t.sessions[sessionID] = t.now()
	active := len(t.sessions)
	t.mu.Unlock()

	t.metrics.IncrementActiveSessions(ctx)
	t.logger.Debug("session opened", logging.Session(sessionID), slog.Int("active", active))
}

// Close forgets a session. Closing an unknown session is a no-op.
func (t *SessionTracker) Close(ctx context.Context, sessionID string) {
	t.mu.Lock()
	opened, ok := t.sessions[sessionID]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.sessions, sessionID)
	active := len(t.sessions)
	t.mu.Unlock()

	t.metrics.DecrementActiveSessions(ctx)
	t.logger.Debug("session closed",
		logging.Session(sessionID),
		slog.Duration("duration", t.now().Sub(opened)),
		slog.Int("active", active))
}

// Count returns the number of connected sessions.
func (t *SessionTracker) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.sessions)
}
