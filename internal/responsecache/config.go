package responsecache

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

// Defaults for the response cache.
const (
	DefaultCollection       = "tool_responses"
	DefaultStoreTimeout     = 30 * time.Second
	DefaultOperationTimeout = 10 * time.Second
	DefaultMaxInFlight      = 64
	DefaultSearchLimit      = 10
	DefaultRecentLimit      = 10
)

// Names of the administrative tools. Their responses are never cached.
const (
	ToolSearchResponses   = "search_responses"
	ToolGetResponse       = "get_response"
	ToolResponseAnalytics = "response_analytics"
)

// DefaultExcludedTools are passed through the interceptor untouched.
var DefaultExcludedTools = []string{ToolSearchResponses, ToolGetResponse, ToolResponseAnalytics}

// Config controls the response cache.
type Config struct {
	Enabled bool `yaml:"enabled"`

	// Collection is the vector store collection records are written to.
	Collection string `yaml:"collection"`
	Distance   string `yaml:"distance"`

	// CompressionThreshold in bytes; larger serialized responses are gzipped.
	CompressionThreshold int `yaml:"compression_threshold"`

	// StoreTimeout bounds one background store, including embedding.
	StoreTimeout time.Duration `yaml:"store_timeout"`

	// OperationTimeout bounds each synchronous backend call.
	OperationTimeout time.Duration `yaml:"operation_timeout"`

	// MaxInFlight caps concurrent background stores; extra stores are dropped.
	MaxInFlight int `yaml:"max_in_flight"`

	ExcludedTools []string `yaml:"excluded_tools"`
}

// DefaultConfig returns a Config populated from RESPONSE_CACHE_* environment variables.
func DefaultConfig() Config {
	return Config{
		Enabled:              getEnvBoolOrDefault("RESPONSE_CACHE_ENABLED", true),
		Collection:           getEnvOrDefault("RESPONSE_CACHE_COLLECTION", DefaultCollection),
		Distance:             getEnvOrDefault("RESPONSE_CACHE_DISTANCE", string(vectorstore.DistanceCosine)),
		CompressionThreshold: getEnvIntOrDefault("RESPONSE_CACHE_COMPRESSION_THRESHOLD", DefaultCompressionThreshold),
		StoreTimeout:         getEnvDurationOrDefault("RESPONSE_CACHE_STORE_TIMEOUT", DefaultStoreTimeout),
		OperationTimeout:     getEnvDurationOrDefault("RESPONSE_CACHE_OPERATION_TIMEOUT", DefaultOperationTimeout),
		MaxInFlight:          getEnvIntOrDefault("RESPONSE_CACHE_MAX_IN_FLIGHT", DefaultMaxInFlight),
		ExcludedTools:        append([]string(nil), DefaultExcludedTools...),
	}
}

// LoadFile overlays the response_cache section of a YAML file onto c.
// Keys missing from the file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	file := struct {
		ResponseCache *Config `yaml:"response_cache"`
	}{ResponseCache: c}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Collection) == "" {
		return fmt.Errorf("collection must not be empty")
	}
	if _, ok := vectorstore.ParseDistance(c.Distance); !ok {
		return fmt.Errorf("unsupported distance %q", c.Distance)
	}
	if c.CompressionThreshold < 0 {
		return fmt.Errorf("compression threshold must not be negative")
	}
	if c.StoreTimeout < 0 || c.OperationTimeout < 0 {
		return fmt.Errorf("timeouts must not be negative")
	}
	if c.MaxInFlight < 0 {
		return fmt.Errorf("max in-flight stores must not be negative")
	}
	return nil
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.Collection == "" {
		out.Collection = DefaultCollection
	}
	if out.CompressionThreshold <= 0 {
		out.CompressionThreshold = DefaultCompressionThreshold
	}
	if out.StoreTimeout <= 0 {
		out.StoreTimeout = DefaultStoreTimeout
	}
	if out.OperationTimeout <= 0 {
		out.OperationTimeout = DefaultOperationTimeout
	}
	if out.MaxInFlight <= 0 {
		out.MaxInFlight = DefaultMaxInFlight
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}
