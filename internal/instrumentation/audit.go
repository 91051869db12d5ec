package instrumentation

import (
	"context"
	"log/slog"
	"time"
)

// ToolInvocation captures one MCP tool call for audit logging.
//
// # Privacy Considerations
//
// UserEmail is PII. Operational logs only carry the domain (see UserDomain);
// the full address is written only when the audit logger is configured with
// IncludePII.
type ToolInvocation struct {
	Tool string

	// Caller identity as reported by the tool arguments
	UserEmail string
	SessionID string

	// Response handling
	Verbose      bool   // full response returned instead of a summary
	CacheOutcome string // queued, skipped, dropped, or empty when not cached

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// Cache outcomes recorded on a ToolInvocation.
const (
	CacheOutcomeQueued  = "queued"
	CacheOutcomeSkipped = "skipped"
	CacheOutcomeDropped = "dropped"
)

// UserDomain returns the domain portion of the user's email for lower-cardinality logging.
func (ti *ToolInvocation) UserDomain() string {
	return ExtractUserDomain(ti.UserEmail)
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

func (ti *ToolInvocation) commonAttrs(identity slog.Attr) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("tool", ti.Tool),
		identity,
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}

	if ti.SessionID != "" {
		attrs = append(attrs, slog.String("session_id", ti.SessionID))
	}
	if ti.Verbose {
		attrs = append(attrs, slog.Bool("verbose", true))
	}
	if ti.CacheOutcome != "" {
		attrs = append(attrs, slog.String("cache", ti.CacheOutcome))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	return attrs
}

// LogAttrs returns slog attributes with the user reduced to a domain.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	attrs := ti.commonAttrs(slog.String("user_domain", ti.UserDomain()))
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

// LogAuditAttrs returns slog attributes including the full user email and span ID.
//
// # Security Warning
//
// This includes PII. Route audit logs to storage with appropriate access controls.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr {
	attrs := ti.commonAttrs(slog.String("user", ti.UserEmail))
	if ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

// NewToolInvocation creates a new ToolInvocation with timing started.
// Call Complete() when the tool operation finishes.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithUser sets the user identity information.
func (ti *ToolInvocation) WithUser(email string) *ToolInvocation {
	ti.UserEmail = email
	return ti
}

// WithSession sets the MCP session identifier.
func (ti *ToolInvocation) WithSession(sessionID string) *ToolInvocation {
	ti.SessionID = sessionID
	return ti
}

// WithResponseMode records whether the caller asked for the full response.
func (ti *ToolInvocation) WithResponseMode(verbose bool) *ToolInvocation {
	ti.Verbose = verbose
	return ti
}

// WithCacheOutcome records what happened to the response in the cache.
func (ti *ToolInvocation) WithCacheOutcome(outcome string) *ToolInvocation {
	ti.CacheOutcome = outcome
	return ti
}

// WithSpanContext extracts trace context from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	ti.TraceID = GetTraceID(ctx)
	ti.SpanID = GetSpanID(ctx)
	return ti
}

// Complete marks the invocation as completed and calculates duration.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// CompleteWithError marks the invocation as failed with the given error.
func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	return ti.Complete(false, err)
}

// CompleteSuccess marks the invocation as successful.
func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	return ti.Complete(true, nil)
}

type invocationKey struct{}

// ContextWithInvocation attaches ti to ctx so inner middleware can annotate it.
func ContextWithInvocation(ctx context.Context, ti *ToolInvocation) context.Context {
	return context.WithValue(ctx, invocationKey{}, ti)
}

// InvocationFromContext returns the invocation attached by ContextWithInvocation, or nil.
func InvocationFromContext(ctx context.Context) *ToolInvocation {
	ti, _ := ctx.Value(invocationKey{}).(*ToolInvocation)
	return ti
}

// AuditLogger writes tool invocations to a dedicated slog.Logger.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates an enabled AuditLogger that anonymizes users.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

// NewAuditLoggerWithConfig creates a new AuditLogger with the given configuration.
func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// SetIncludePII sets whether to include full email addresses in audit logs.
func (al *AuditLogger) SetIncludePII(include bool) {
	al.includePII = include
}

// SetEnabled sets whether audit logging is enabled.
func (al *AuditLogger) SetEnabled(enabled bool) {
	al.enabled = enabled
}

// LogToolInvocation logs ti at Info on success and Warn on failure.
// Full emails are only written when IncludePII is set.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = ti.LogAuditAttrs()
	} else {
		attrs = ti.LogAttrs()
	}

	level := slog.LevelInfo
	msg := "tool_executed"
	if !ti.Success {
		level = slog.LevelWarn
		msg = "tool_failed"
	}
	al.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
