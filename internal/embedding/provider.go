package embedding

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrEmbeddingUnavailable is returned when the provider cannot be loaded.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrDimensionMismatch is returned when a vector's length differs from the
	// dimensionality fixed by the first successful encode.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrEmptyEmbedding is returned when a provider answers with no vector.
	ErrEmptyEmbedding = errors.New("provider returned an empty embedding")
)

// Provider turns text into a fixed-length vector.
type Provider interface {
	Encode(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}

// Factory builds a Provider. It is called lazily, on first use.
type Factory func() (Provider, error)

// NewFactory returns the Factory for cfg.Provider.
func NewFactory(cfg Config) (Factory, error) {
	switch cfg.Provider {
	case ProviderHash, "":
		return func() (Provider, error) {
			return NewHashProvider(cfg.Dimensions), nil
		}, nil
	case ProviderOpenAI:
		return func() (Provider, error) {
			return NewOpenAIProvider(cfg)
		}, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
