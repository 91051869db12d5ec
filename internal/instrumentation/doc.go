// Package instrumentation provides OpenTelemetry metrics, tracing and audit logging
// for the workspace-mcp server.
//
// # Metrics
//
// HTTP:
//   - http_requests_total / http_request_duration_seconds by method, path, status
//   - active_sessions: MCP client sessions currently registered
//
// Tools:
//   - mcp_tool_invocations_total / mcp_tool_duration_seconds by tool and status
//
// Vector store and embeddings:
//   - vectorstore_operations_total / vectorstore_operation_duration_seconds by operation, status
//   - embedding_requests_total / embedding_duration_seconds by provider, status
//
// Response cache:
//   - response_cache_stores_total by tool and outcome (stored, failed, skipped, dropped)
//   - response_cache_payload_bytes by compression
//   - response_cache_searches_total / response_cache_search_results by query type
//
// # Tracing
//
// Tool calls run in "tool.<name>" spans. Backend calls run in client spans
// named "vectorstore.<operation>" and "embedding.encode".
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP collector endpoint
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate 0.0-1.0 (default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: workspace-mcp)
//   - METRICS_DETAILED_LABELS: Add user_domain to tool metrics (default: false)
//
// # Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	metrics := provider.Metrics()
//	metrics.RecordVectorStoreOperation(ctx, instrumentation.OperationQuery, instrumentation.StatusSuccess, time.Since(start))
//
// All Record methods are no-ops on a nil or disabled *Metrics.
package instrumentation
