// Package embedding turns tool responses and search queries into vectors.
//
// Two providers are available: "hash", a deterministic feature-hashing
// embedder that needs no network, and "openai", which calls any server that
// speaks the OpenAI embeddings API.
//
// Lazy wraps a provider factory so the provider is built on first use and
// shared by all callers:
//
//	emb, err := embedding.NewLazyFromConfig(embedding.DefaultConfig(),
//		embedding.WithMetrics(metrics))
//	vec, err := emb.Encode(ctx, "list of open issues")
//	if errors.Is(err, embedding.ErrEmbeddingUnavailable) {
//		// fall back to filter-only behaviour
//	}
package embedding
