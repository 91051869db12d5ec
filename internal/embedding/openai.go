package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

const openAIDefaultDimensions = 1536

// OpenAIProvider calls an OpenAI-compatible embeddings endpoint.
type OpenAIProvider struct {
	client     *openai.Client
	model      string
	dimensions int
}

// NewOpenAIProvider creates an OpenAIProvider. An API key is required unless
// a custom BaseURL is configured (local servers often accept anonymous calls).
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, errors.New("OPENAI_API_KEY is required for the openai embedding provider")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = DefaultOpenAIModel
	}

	return &OpenAIProvider{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		dimensions: cfg.Dimensions,
	}, nil
}

// Encode embeds a single text.
func (p *OpenAIProvider) Encode(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(p.model),
	}
	if p.dimensions > 0 {
		req.Dimensions = p.dimensions
	}

	rsp, err := p.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("embedding request for model %s failed: %w", p.model, err)
	}

	if len(rsp.Data) == 0 || len(rsp.Data[0].Embedding) == 0 {
		return nil, ErrEmptyEmbedding
	}

	return rsp.Data[0].Embedding, nil
}

// Dimensions returns the requested size, or the default of the text-embedding-3 models.
func (p *OpenAIProvider) Dimensions() int {
	if p.dimensions > 0 {
		return p.dimensions
	}
	return openAIDefaultDimensions
}

// Name returns "openai".
func (p *OpenAIProvider) Name() string {
	return ProviderOpenAI
}
