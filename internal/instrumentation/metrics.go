package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys - using constants for consistency and DRY
const (
	attrMethod     = "method"
	attrPath       = "path"
	attrStatus     = "status"
	attrOperation  = "operation"
	attrProvider   = "provider"
	attrOutcome    = "outcome"
	attrQueryType  = "query_type"
	attrTool       = "tool"
	attrUserDomain = "user_domain"
	attrCompressed = "compressed"
)

// Metrics provides methods for recording observability metrics.
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	activeSessions      metric.Int64UpDownCounter

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// Vector store metrics
	vectorStoreOperationsTotal   metric.Int64Counter
	vectorStoreOperationDuration metric.Float64Histogram

	// Embedding metrics
	embeddingRequestsTotal metric.Int64Counter
	embeddingDuration      metric.Float64Histogram

	// Response cache metrics
	responseStoresTotal  metric.Int64Counter
	responsePayloadBytes metric.Int64Histogram
	searchesTotal        metric.Int64Counter
	searchResults        metric.Int64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The detailedLabels parameter controls whether high-cardinality labels are included.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// HTTP Metrics
	m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	m.activeSessions, err = meter.Int64UpDownCounter(
		"active_sessions",
		metric.WithDescription("Number of active MCP client sessions"),
		metric.WithUnit("{session}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create active_sessions gauge: %w", err)
	}

	// MCP Tool Metrics
	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	// Vector Store Metrics
	m.vectorStoreOperationsTotal, err = meter.Int64Counter(
		"vectorstore_operations_total",
		metric.WithDescription("Total number of vector store operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vectorstore_operations_total counter: %w", err)
	}

	m.vectorStoreOperationDuration, err = meter.Float64Histogram(
		"vectorstore_operation_duration_seconds",
		metric.WithDescription("Vector store operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create vectorstore_operation_duration_seconds histogram: %w", err)
	}

	// Embedding Metrics
	m.embeddingRequestsTotal, err = meter.Int64Counter(
		"embedding_requests_total",
		metric.WithDescription("Total number of embedding requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding_requests_total counter: %w", err)
	}

	m.embeddingDuration, err = meter.Float64Histogram(
		"embedding_duration_seconds",
		metric.WithDescription("Embedding request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding_duration_seconds histogram: %w", err)
	}

	// Response Cache Metrics
	m.responseStoresTotal, err = meter.Int64Counter(
		"response_cache_stores_total",
		metric.WithDescription("Total number of background response stores by outcome"),
		metric.WithUnit("{store}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create response_cache_stores_total counter: %w", err)
	}

	m.responsePayloadBytes, err = meter.Int64Histogram(
		"response_cache_payload_bytes",
		metric.WithDescription("Serialized response payload size in bytes before compression"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(256, 1024, 4096, 5120, 16384, 65536, 262144, 1048576),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create response_cache_payload_bytes histogram: %w", err)
	}

	m.searchesTotal, err = meter.Int64Counter(
		"response_cache_searches_total",
		metric.WithDescription("Total number of response cache searches by query type"),
		metric.WithUnit("{search}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create response_cache_searches_total counter: %w", err)
	}

	m.searchResults, err = meter.Int64Histogram(
		"response_cache_search_results",
		metric.WithDescription("Number of results returned per search"),
		metric.WithUnit("{result}"),
		metric.WithExplicitBucketBoundaries(0, 1, 5, 10, 25, 50, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create response_cache_search_results histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	}

	m.httpRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpRequestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// IncrementActiveSessions increments the active sessions counter.
func (m *Metrics) IncrementActiveSessions(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

// DecrementActiveSessions decrements the active sessions counter.
func (m *Metrics) DecrementActiveSessions(ctx context.Context) {
	if m == nil || m.activeSessions == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
//
// Parameters:
//   - toolName: Name of the MCP tool (e.g., "search_responses")
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the tool execution
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	m.RecordToolInvocationWithUser(ctx, toolName, status, "", duration)
}

// RecordToolInvocationWithUser records an MCP tool invocation including the
// caller's email domain when detailed labels are enabled.
func (m *Metrics) RecordToolInvocationWithUser(ctx context.Context, toolName, status, userEmail string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	// Only add high-cardinality labels if explicitly enabled
	if m.detailedLabels && userEmail != "" {
		attrs = append(attrs, attribute.String(attrUserDomain, ExtractUserDomain(userEmail)))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordVectorStoreOperation records a backend call (list, create, upsert,
// retrieve, scroll, query, info) with its status and duration.
func (m *Metrics) RecordVectorStoreOperation(ctx context.Context, operation, status string, duration time.Duration) {
	if m == nil || m.vectorStoreOperationsTotal == nil || m.vectorStoreOperationDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.vectorStoreOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.vectorStoreOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordEmbedding records one embedding request.
func (m *Metrics) RecordEmbedding(ctx context.Context, provider, status string, duration time.Duration) {
	if m == nil || m.embeddingRequestsTotal == nil || m.embeddingDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrProvider, provider),
		attribute.String(attrStatus, status),
	}

	m.embeddingRequestsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.embeddingDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordResponseStore records the outcome of a background response store.
// Outcome should be one of the StoreOutcome constants.
func (m *Metrics) RecordResponseStore(ctx context.Context, toolName, outcome string) {
	if m == nil || m.responseStoresTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrOutcome, outcome),
	}

	m.responseStoresTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordPayloadSize records the serialized size of a stored response.
func (m *Metrics) RecordPayloadSize(ctx context.Context, originalBytes int64, compressed bool) {
	if m == nil || m.responsePayloadBytes == nil {
		return
	}

	m.responsePayloadBytes.Record(ctx, originalBytes,
		metric.WithAttributes(attribute.Bool(attrCompressed, compressed)))
}

// RecordSearch records a response cache search by query type
// ("id", "filter", "semantic") with its status and result count.
func (m *Metrics) RecordSearch(ctx context.Context, queryType, status string, results int) {
	if m == nil || m.searchesTotal == nil || m.searchResults == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrQueryType, queryType),
		attribute.String(attrStatus, status),
	}

	m.searchesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.searchResults.Record(ctx, int64(results), metric.WithAttributes(attrs...))
}
