package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/workspace-mcp/internal/instrumentation"
	"github.com/teemow/workspace-mcp/internal/logging"
	"github.com/teemow/workspace-mcp/internal/resources"
	"github.com/teemow/workspace-mcp/internal/server"
	"github.com/teemow/workspace-mcp/internal/tools/cache_tools"
)

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

type serveOptions struct {
	transport        string
	httpAddr         string
	debug            bool
	disableStreaming bool
	metrics          MetricsConfig
	config           server.Config
	instrumentation  instrumentation.Config
}

func newServeCmd() *cobra.Command {
	var (
		debugMode        bool
		transport        string
		httpAddr         string
		disableStreaming bool
		metricsEnabled   bool
		metricsAddr      string
		cache            cacheFlags
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server with the response cache.

Every tool response is summarized for the client while the full response is
stored in the vector store in the background. The search_responses,
get_response and response_analytics tools and the qdrant:// resources read
the stored responses back.

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport on /mcp with /healthz, /readyz
    and /healthz/detailed

Vector store:
  --vector-store qdrant (default) probes --qdrant-url, then QDRANT_HOST on
  QDRANT_PORTS. When no endpoint answers the server keeps running and tools
  return their responses uncached.
  --vector-store memory keeps records in process memory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := cache.config(cmd)
			if err != nil {
				return err
			}
			instrConfig, err := cache.instrumentationConfig(cmd)
			if err != nil {
				return err
			}

			metricsConfig := MetricsConfig{
				Enabled: metricsEnabled,
				Addr:    metricsAddr,
			}
			loadMetricsEnvVars(cmd, &metricsConfig)

			return runServe(serveOptions{
				transport:        transport,
				httpAddr:         httpAddr,
				debug:            debugMode,
				disableStreaming: disableStreaming,
				metrics:          metricsConfig,
				config:           cfg,
				instrumentation:  instrConfig,
			})
		},
	}

	cmd.Flags().BoolVar(&debugMode, "debug", false, "Enable debug logging")
	cmd.Flags().StringVar(&transport, "transport", "stdio", "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP server address (for streamable-http transport)")
	cmd.Flags().BoolVar(&disableStreaming, "disable-streaming", false, "Disable streaming for HTTP transport (for compatibility with certain clients)")

	// Metrics server flags
	cmd.Flags().BoolVar(&metricsEnabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	cache.register(cmd)

	return cmd
}

// loadMetricsEnvVars applies METRICS_ENABLED and METRICS_ADDR for flags the
// user did not set.
func loadMetricsEnvVars(cmd *cobra.Command, config *MetricsConfig) {
	if !cmd.Flags().Changed("metrics-enabled") {
		if v := os.Getenv("METRICS_ENABLED"); v != "" {
			if enabled, err := strconv.ParseBool(v); err == nil {
				config.Enabled = enabled
			} else {
				slog.Warn("invalid METRICS_ENABLED value, keeping default", "value", v, "default", config.Enabled)
			}
		}
	}
	if !cmd.Flags().Changed("metrics-addr") {
		if addr := os.Getenv("METRICS_ADDR"); addr != "" {
			config.Addr = addr
		}
	}
}

func runServe(opts serveOptions) error {
	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// stdout belongs to the protocol on stdio, so every log line goes to stderr.
	logger := newLogger(os.Stderr, opts.debug)
	slog.SetDefault(logger)

	instrConfig := opts.instrumentation
	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		if err := provider.Shutdown(context.Background()); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	serverOpts := []server.Option{server.WithLogger(logger)}
	if provider.Enabled() {
		serverOpts = append(serverOpts,
			server.WithMetrics(provider.Metrics()),
			server.WithAuditLogger(instrumentation.NewAuditLoggerWithConfig(logger, instrConfig.AuditLogging)),
		)
	}

	serverContext, err := server.NewServerContext(shutdownCtx, opts.config, serverOpts...)
	if err != nil {
		return fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() {
		if err := serverContext.Shutdown(); err != nil {
			logger.Warn("server context shutdown failed", logging.Err(err))
		}
	}()

	go connectVectorStore(shutdownCtx, serverContext, logger)

	mcpSrv := newMCPServer(serverContext)
	if err := registerAll(mcpSrv, serverContext); err != nil {
		return err
	}

	switch opts.transport {
	case "stdio":
		return runStdioServer(mcpSrv)
	case "streamable-http":
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, serverContext, opts, provider)
	default:
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", opts.transport)
	}
}

// connectVectorStore runs discovery once at startup so the first tool call
// does not pay for it.
func connectVectorStore(ctx context.Context, sc *server.ServerContext, logger *slog.Logger) {
	if ep, ok := sc.Connection().Discover(ctx); ok {
		logger.Info("vector store connected", logging.Endpoint(ep.String()))
		return
	}
	logger.Warn("no vector store reachable, responses will not be cached until one is",
		"candidates", len(sc.Connection().Candidates()))
}

func newMCPServer(sc *server.ServerContext) *mcpserver.MCPServer {
	return mcpserver.NewMCPServer("workspace-mcp", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false), // Subscribe and listChanged
		mcpserver.WithHooks(sc.Sessions().Hooks()),
	)
}

func registerAll(mcpSrv *mcpserver.MCPServer, sc *server.ServerContext) error {
	type registration struct {
		name     string
		register func() error
	}

	registrations := []registration{
		{
			name: "response cache tools",
			register: func() error {
				return cache_tools.RegisterCacheTools(mcpSrv, sc)
			},
		},
		{
			name: "vector store status tool",
			register: func() error {
				cache_tools.RegisterStatusTool(mcpSrv, sc)
				return nil
			},
		},
		{
			name: "vector store resources",
			register: func() error {
				return resources.RegisterVectorResources(mcpSrv, sc)
			},
		},
	}

	for _, reg := range registrations {
		if err := reg.register(); err != nil {
			return fmt.Errorf("failed to register %s: %w", reg.name, err)
		}
	}

	return nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := mcpserver.ServeStdio(mcpSrv); err != nil {
			serverDone <- err
		}
	}()

	err := <-serverDone
	if err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, sc *server.ServerContext, opts serveOptions, provider *instrumentation.Provider) error {
	logger := sc.Logger()

	healthChecker := server.NewHealthChecker(sc)
	httpServer, err := server.NewHTTPServer(mcpSrv, healthChecker, opts.disableStreaming)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	httpServer.SetLogger(logging.WithComponent(logger, "http"))
	if provider.Enabled() {
		httpServer.SetMetrics(provider.Metrics())
	}

	var metricsServer *server.MetricsServer
	if opts.metrics.Enabled && provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    opts.metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: provider,
		})
		if err != nil {
			return fmt.Errorf("failed to create metrics server: %w", err)
		}
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", logging.Err(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown failed", logging.Err(err))
			}
		}()
	}

	fmt.Printf("Starting workspace-mcp MCP server with %s transport on %s\n", opts.transport, opts.httpAddr)
	fmt.Printf("  HTTP endpoint: %s\n", server.MCPEndpointPath)
	fmt.Printf("  Health endpoints: /healthz, /readyz, /healthz/detailed\n")
	if metricsServer != nil {
		fmt.Printf("  Metrics endpoint: %s%s\n", metricsServer.Addr(), metricsServer.Path())
	}
	fmt.Printf("  Response cache: collection %q, enabled=%t\n", opts.config.Cache.Collection, opts.config.Cache.Enabled)

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		if err := httpServer.Start(opts.httpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Println("Shutdown signal received, stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
		fmt.Println("HTTP server stopped normally")
	}

	fmt.Println("HTTP server gracefully stopped")
	return nil
}
