package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/teemow/workspace-mcp/internal/instrumentation"
	"github.com/teemow/workspace-mcp/internal/responsecache"
	"github.com/teemow/workspace-mcp/internal/server"
)

// loadEnvFile loads variables from path into the process environment.
// Variables that are already set win. A missing file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// cacheFlags are the flags shared by every command that opens the response
// cache. Unset flags fall back to the environment, then to the defaults.
type cacheFlags struct {
	configFile        string
	vectorStore       string
	qdrantURL         string
	qdrantAPIKey      string
	collection        string
	embeddingProvider string
	embeddingModel    string
	embeddingBaseURL  string
	embeddingDims     int
	excludeTools      []string
}

func (f *cacheFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.configFile, "config", "", "YAML file with response cache settings. Can also use RESPONSE_CACHE_CONFIG env var.")
	cmd.Flags().StringVar(&f.vectorStore, "vector-store", server.BackendQdrant, "Vector store backend: qdrant or memory. Can also use VECTOR_STORE env var.")
	cmd.Flags().StringVar(&f.qdrantURL, "qdrant-url", "", "Qdrant endpoint (e.g. http://localhost:6334). Without it, QDRANT_HOST and QDRANT_PORTS are probed. Can also use QDRANT_URL env var.")
	cmd.Flags().StringVar(&f.qdrantAPIKey, "qdrant-api-key", "", "Qdrant API key. Can also use QDRANT_API_KEY env var.")
	cmd.Flags().StringVar(&f.collection, "collection", responsecache.DefaultCollection, "Collection cached responses are written to. Can also use RESPONSE_CACHE_COLLECTION env var.")
	cmd.Flags().StringVar(&f.embeddingProvider, "embedding-provider", "hash", "Embedding provider: hash (offline) or openai. Can also use EMBEDDING_PROVIDER env var.")
	cmd.Flags().StringVar(&f.embeddingModel, "embedding-model", "", "Embedding model for the openai provider. Can also use EMBEDDING_MODEL env var.")
	cmd.Flags().StringVar(&f.embeddingBaseURL, "embedding-base-url", "", "Base URL of an OpenAI-compatible embeddings API. Can also use EMBEDDING_BASE_URL env var.")
	cmd.Flags().IntVar(&f.embeddingDims, "embedding-dimensions", 0, "Embedding vector size (0 uses the provider default). Can also use EMBEDDING_DIMENSIONS env var.")
	cmd.Flags().StringSliceVar(&f.excludeTools, "exclude-tools", nil, "Additional tools whose responses are never cached (comma-separated). Can also use RESPONSE_CACHE_EXCLUDED_TOOLS env var.")
}

// config builds the server configuration: defaults and environment first,
// then the YAML file, then flags the user set explicitly.
func (f *cacheFlags) config(cmd *cobra.Command) (server.Config, error) {
	cfg := server.DefaultConfig()

	if configFile := f.configPath(cmd); configFile != "" {
		if err := cfg.Cache.LoadFile(configFile); err != nil {
			return cfg, err
		}
	}

	changed := cmd.Flags().Changed
	if changed("vector-store") {
		cfg.Backend = f.vectorStore
	}
	if changed("qdrant-url") {
		cfg.VectorStore.URL = f.qdrantURL
	}
	if changed("qdrant-api-key") {
		cfg.VectorStore.APIKey = f.qdrantAPIKey
	}
	if changed("collection") {
		cfg.Cache.Collection = f.collection
	}
	if changed("embedding-provider") {
		cfg.Embedding.Provider = f.embeddingProvider
	}
	if changed("embedding-model") {
		cfg.Embedding.Model = f.embeddingModel
	}
	if changed("embedding-base-url") {
		cfg.Embedding.BaseURL = f.embeddingBaseURL
	}
	if changed("embedding-dimensions") {
		cfg.Embedding.Dimensions = f.embeddingDims
	}

	extra := f.excludeTools
	if !changed("exclude-tools") {
		extra = parseCommaSeparatedList(os.Getenv("RESPONSE_CACHE_EXCLUDED_TOOLS"))
	}
	cfg.Cache.ExcludedTools = mergeTools(cfg.Cache.ExcludedTools, extra)

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// configPath returns the YAML file named by --config or RESPONSE_CACHE_CONFIG.
func (f *cacheFlags) configPath(cmd *cobra.Command) string {
	if cmd.Flags().Changed("config") {
		return f.configFile
	}
	return os.Getenv("RESPONSE_CACHE_CONFIG")
}

// instrumentationConfig reads the instrumentation section of the same file
// on top of the OTEL_* and METRICS_* environment.
func (f *cacheFlags) instrumentationConfig(cmd *cobra.Command) (instrumentation.Config, error) {
	cfg := instrumentation.DefaultConfig()
	cfg.ServiceVersion = version
	if configFile := f.configPath(cmd); configFile != "" {
		if err := cfg.LoadFile(configFile); err != nil {
			return cfg, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid instrumentation configuration: %w", err)
	}
	return cfg, nil
}

// mergeTools appends extra to base, skipping blanks and duplicates.
func mergeTools(base, extra []string) []string {
	seen := make(map[string]bool, len(base)+len(extra))
	out := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, name := range list {
			name = strings.TrimSpace(name)
			if name == "" || seen[name] {
				continue
			}
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// newLogger returns a text logger writing to w. Stdio transport must pass
// stderr because stdout carries the protocol.
func newLogger(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// parseCommaSeparatedList parses a comma-separated string into a slice,
// trimming whitespace from each element and filtering out empty strings.
// Returns nil if the input is empty or contains only whitespace/commas.
func parseCommaSeparatedList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}
