// Package server provides the MCP server context, health checks, the metrics
// server and the streamable HTTP server for workspace-mcp.
//
// # Key Components
//
// ServerContext wires the response cache together: one ConnectionManager for
// the vector store, one lazily loaded embedding provider, and the Store,
// Searcher, Aggregator and Interceptor built on them. Nothing connects at
// construction; the vector store is discovered on first use and the server
// keeps answering tool calls while it is unreachable.
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed. An
// unreachable vector store is reported as degraded without failing
// readiness.
//
// HTTPServer mounts the streamable HTTP transport on /mcp next to the health
// endpoints, tagging every request with an X-Request-ID and recording HTTP
// metrics.
//
// MetricsServer exposes Prometheus metrics on a dedicated port.
package server
