package responsecache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teemow/workspace-mcp/internal/embedding"
	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

const testDims = 256

// staticConnector always returns the same backend, or err when set.
type staticConnector struct {
	backend vectorstore.Backend
	err     error
}

func (c staticConnector) Client(context.Context) (vectorstore.Backend, error) {
	if c.err != nil {
		return nil, c.err
	}
	return c.backend, nil
}

// failingEmbedder never produces a vector.
type failingEmbedder struct{}

func (failingEmbedder) Encode(context.Context, string) ([]float32, error) {
	return nil, embedding.ErrEmbeddingUnavailable
}

func testConfig() Config {
	cfg := Config{
		Enabled:              true,
		Collection:           DefaultCollection,
		CompressionThreshold: DefaultCompressionThreshold,
		ExcludedTools:        DefaultExcludedTools,
	}
	return cfg
}

type fixture struct {
	mem      *vectorstore.MemoryBackend
	embedder *embedding.HashProvider
	store    *Store
	searcher *Searcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := vectorstore.NewMemoryBackend()
	emb := embedding.NewHashProvider(testDims)
	store := NewStore(staticConnector{backend: mem}, emb, testConfig())
	return &fixture{
		mem:      mem,
		embedder: emb,
		store:    store,
		searcher: NewSearcher(store, emb),
	}
}

func (f *fixture) put(t *testing.T, rec *StructuredPayload) string {
	t.Helper()
	id, err := f.store.Put(context.Background(), rec)
	require.NoError(t, err)
	return id
}

func mustParse(t *testing.T, s string) Value {
	t.Helper()
	v, err := ParseJSON([]byte(s))
	require.NoError(t, err)
	return v
}

var errBoom = errors.New("boom")
