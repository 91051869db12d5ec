package embedding

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Provider names.
const (
	ProviderHash   = "hash"
	ProviderOpenAI = "openai"
)

// Defaults.
const (
	DefaultMaxInputTokens = 8191
	DefaultEncodeTimeout  = 10 * time.Second
	DefaultHashDimensions = 384
	DefaultOpenAIModel    = "text-embedding-3-small"
)

// Config selects and configures the embedding provider.
type Config struct {
	// Provider is "hash" (default, offline) or "openai".
	Provider string

	// Model, BaseURL and APIKey configure the OpenAI-compatible provider.
	// BaseURL may point at any server speaking the OpenAI embeddings API.
	Model   string
	BaseURL string
	APIKey  string

	// Dimensions requests a vector size. Zero uses the provider default.
	Dimensions int

	// MaxInputTokens truncates longer input (cl100k_base tokens).
	MaxInputTokens int

	// EncodeTimeout bounds each Encode call.
	EncodeTimeout time.Duration
}

// DefaultConfig returns a Config populated from EMBEDDING_* environment variables.
func DefaultConfig() Config {
	return Config{
		Provider:       getEnvOrDefault("EMBEDDING_PROVIDER", ProviderHash),
		Model:          getEnvOrDefault("EMBEDDING_MODEL", DefaultOpenAIModel),
		BaseURL:        os.Getenv("EMBEDDING_BASE_URL"),
		APIKey:         getEnvOrDefault("EMBEDDING_API_KEY", os.Getenv("OPENAI_API_KEY")),
		Dimensions:     getEnvIntOrDefault("EMBEDDING_DIMENSIONS", 0),
		MaxInputTokens: getEnvIntOrDefault("EMBEDDING_MAX_INPUT_TOKENS", DefaultMaxInputTokens),
		EncodeTimeout:  DefaultEncodeTimeout,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Provider {
	case ProviderHash, ProviderOpenAI, "":
	default:
		return fmt.Errorf("invalid embedding provider %q, must be one of: hash, openai", c.Provider)
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("embedding dimensions must not be negative, got %d", c.Dimensions)
	}
	if c.MaxInputTokens < 0 {
		return fmt.Errorf("max input tokens must not be negative, got %d", c.MaxInputTokens)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
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
