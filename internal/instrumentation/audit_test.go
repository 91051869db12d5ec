package instrumentation

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

const (
	testEmail   = "jane@example.com"
	testDomain  = "example.com"
	testSession = "sess-42"
	testTraceID = "abc123def456"
	testSpanID  = "span789"
	testTool    = "list_items"
)

func attrsToMap(attrs []slog.Attr) map[string]slog.Attr {
	m := make(map[string]slog.Attr, len(attrs))
	for _, a := range attrs {
		m[a.Key] = a
	}
	return m
}

func TestToolInvocation_NewAndComplete(t *testing.T) {
	ti := NewToolInvocation(testTool)

	if ti.Tool != testTool {
		t.Errorf("Tool = %q, want %q", ti.Tool, testTool)
	}
	if ti.StartTime.IsZero() {
		t.Error("StartTime should not be zero")
	}

	ti.CompleteSuccess()

	if !ti.Success {
		t.Error("Success should be true")
	}
	if ti.Duration < 0 {
		t.Error("Duration should not be negative")
	}
	if ti.Error != "" {
		t.Errorf("Error should be empty, got %q", ti.Error)
	}
	if ti.Status() != StatusSuccess {
		t.Errorf("Status() = %q, want %q", ti.Status(), StatusSuccess)
	}
}

func TestToolInvocation_CompleteWithError(t *testing.T) {
	ti := NewToolInvocation(testTool)
	ti.CompleteWithError(errors.New("permission denied"))

	if ti.Success {
		t.Error("Success should be false")
	}
	if ti.Error != "permission denied" {
		t.Errorf("Error = %q, want %q", ti.Error, "permission denied")
	}
	if ti.Status() != StatusError {
		t.Errorf("Status() = %q, want %q", ti.Status(), StatusError)
	}
}

func TestToolInvocation_Builders(t *testing.T) {
	ti := NewToolInvocation(testTool).
		WithUser(testEmail).
		WithSession(testSession).
		WithResponseMode(true).
		WithCacheOutcome(CacheOutcomeQueued)

	if ti.UserEmail != testEmail {
		t.Errorf("UserEmail = %q, want %q", ti.UserEmail, testEmail)
	}
	if ti.SessionID != testSession {
		t.Errorf("SessionID = %q, want %q", ti.SessionID, testSession)
	}
	if !ti.Verbose {
		t.Error("Verbose should be true")
	}
	if ti.CacheOutcome != CacheOutcomeQueued {
		t.Errorf("CacheOutcome = %q, want %q", ti.CacheOutcome, CacheOutcomeQueued)
	}
	if ti.UserDomain() != testDomain {
		t.Errorf("UserDomain() = %q, want %q", ti.UserDomain(), testDomain)
	}
}

func TestToolInvocation_LogAttrs(t *testing.T) {
	ti := NewToolInvocation(testTool).
		WithUser(testEmail).
		WithSession(testSession).
		WithCacheOutcome(CacheOutcomeSkipped)
	ti.TraceID = testTraceID
	ti.SpanID = testSpanID
	ti.CompleteWithError(errors.New("boom"))

	attrs := attrsToMap(ti.LogAttrs())

	if _, ok := attrs["user"]; ok {
		t.Error("LogAttrs must not include the full email")
	}
	if _, ok := attrs["span_id"]; ok {
		t.Error("LogAttrs must not include the span id")
	}
	checks := map[string]string{
		"tool":        testTool,
		"user_domain": testDomain,
		"session_id":  testSession,
		"cache":       CacheOutcomeSkipped,
		"trace_id":    testTraceID,
		"error":       "boom",
	}
	for key, want := range checks {
		if got := attrs[key].Value.String(); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestToolInvocation_LogAttrs_MinimalFields(t *testing.T) {
	ti := NewToolInvocation(testTool)
	ti.CompleteSuccess()

	// tool, user_domain, duration, success
	if got := len(ti.LogAttrs()); got != 4 {
		t.Errorf("expected 4 attributes, got %d", got)
	}
}

func TestToolInvocation_LogAuditAttrs(t *testing.T) {
	ti := NewToolInvocation(testTool).WithUser(testEmail).WithResponseMode(true)
	ti.SpanID = testSpanID
	ti.CompleteSuccess()

	attrs := attrsToMap(ti.LogAuditAttrs())

	if attrs["user"].Value.String() != testEmail {
		t.Errorf("user = %q, want %q", attrs["user"].Value.String(), testEmail)
	}
	if attrs["span_id"].Value.String() != testSpanID {
		t.Errorf("span_id = %q, want %q", attrs["span_id"].Value.String(), testSpanID)
	}
	if !attrs["verbose"].Value.Bool() {
		t.Error("verbose should be true")
	}
}

func TestToolInvocation_WithSpanContext_NoSpan(t *testing.T) {
	ti := NewToolInvocation(testTool).WithSpanContext(context.Background())

	if ti.TraceID != "" || ti.SpanID != "" {
		t.Errorf("expected empty trace context, got %q/%q", ti.TraceID, ti.SpanID)
	}
}

func TestAuditLogger_LogToolInvocation(t *testing.T) {
	tests := []struct {
		name       string
		includePII bool
		success    bool
		wantMsg    string
		wantEmail  bool
	}{
		{"success anonymized", false, true, "tool_executed", false},
		{"failure anonymized", false, false, "tool_failed", false},
		{"success with PII", true, true, "tool_executed", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))
			al := NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true, IncludePII: tt.includePII})

			ti := NewToolInvocation(testTool).WithUser(testEmail)
			ti.Complete(tt.success, nil)
			al.LogToolInvocation(ti)

			out := buf.String()
			if !strings.Contains(out, tt.wantMsg) {
				t.Errorf("expected %q in output, got %q", tt.wantMsg, out)
			}
			if strings.Contains(out, testEmail) != tt.wantEmail {
				t.Errorf("email present = %v, want %v", !tt.wantEmail, tt.wantEmail)
			}
		})
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	al := NewAuditLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	al.SetEnabled(false)

	al.LogToolInvocation(NewToolInvocation(testTool).CompleteSuccess())

	if buf.Len() != 0 {
		t.Errorf("expected no output when disabled, got %q", buf.String())
	}

	var nilLogger *AuditLogger
	nilLogger.LogToolInvocation(NewToolInvocation(testTool))
}

func TestInvocationContext(t *testing.T) {
	if got := InvocationFromContext(context.Background()); got != nil {
		t.Errorf("InvocationFromContext() = %v, want nil", got)
	}

	ti := NewToolInvocation(testTool)
	ctx := ContextWithInvocation(context.Background(), ti)
	InvocationFromContext(ctx).WithCacheOutcome(CacheOutcomeQueued).WithResponseMode(true)

	if ti.CacheOutcome != CacheOutcomeQueued {
		t.Errorf("CacheOutcome = %q, want %q", ti.CacheOutcome, CacheOutcomeQueued)
	}
	if !ti.Verbose {
		t.Error("Verbose should be set through the context")
	}
}
