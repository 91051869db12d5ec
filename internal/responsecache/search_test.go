package responsecache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/workspace-mcp/internal/embedding"
	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

func seedSearch(t *testing.T, f *fixture) map[string]string {
	t.Helper()
	ids := make(map[string]string)
	for _, r := range []struct {
		tool, email, body string
	}{
		{"list_items", "a@b.com", `{"count":3,"items":["calendar events for next week"]}`},
		{"list_items", "c@d.com", `{"count":1,"items":["drive folder permissions"]}`},
		{"list_events", "a@b.com", `{"status":"ok","result":"upcoming calendar events next week"}`},
		{"send_message", "a@b.com", `"message delivered to the team channel"`},
	} {
		ids[r.tool+"/"+r.email] = f.put(t, &StructuredPayload{
			ToolName:     r.tool,
			UserEmail:    r.email,
			ResponseData: mustParse(t, r.body),
		})
	}
	return ids
}

func TestSearch_IDLookup(t *testing.T) {
	f := newFixture(t)
	ids := seedSearch(t, f)
	id := ids["list_items/a@b.com"]

	results, err := f.searcher.SearchString(context.Background(), "id:"+id, 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, float32(1.0), results[0].Score)
	assert.Equal(t, id, results[0].Record.ID)
	assert.Equal(t, "list_items", results[0].Record.ToolName)

	results, err = f.searcher.SearchString(context.Background(), "id:6f1c5b8e-0000-4000-8000-000000000000", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)

	_, err = f.searcher.SearchString(context.Background(), "id:", 10, 0)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

func TestSearch_FilterOnly(t *testing.T) {
	f := newFixture(t)
	seedSearch(t, f)

	results, err := f.searcher.SearchString(context.Background(), "tool_name:list_items", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, float32(1.0), r.Score)
		assert.Equal(t, "list_items", r.Record.ToolName)
	}

	results, err = f.searcher.SearchString(context.Background(), "tool_name:list_items user_email:c@d.com", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c@d.com", results[0].Record.UserEmail)

	results, err = f.searcher.SearchString(context.Background(), "tool_name:list_items", 1, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	results, err = f.searcher.SearchString(context.Background(), "nonexistent_field:whatever", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearch_RankedOrder(t *testing.T) {
	f := newFixture(t)
	seedSearch(t, f)

	results, err := f.searcher.SearchString(context.Background(), "calendar events next week", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score, "results must not increase in score")
	}
	assert.Equal(t, "list_events", results[0].Record.ToolName)

	limited, err := f.searcher.SearchString(context.Background(), "calendar events next week", 2, 0)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestSearch_RankedWithFilter(t *testing.T) {
	f := newFixture(t)
	seedSearch(t, f)

	results, err := f.searcher.SearchString(context.Background(), "user_email:a@b.com calendar events", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "a@b.com", r.Record.UserEmail)
	}
}

func TestSearch_ScoreThreshold(t *testing.T) {
	f := newFixture(t)
	seedSearch(t, f)
	ctx := context.Background()

	results, err := f.searcher.SearchString(ctx, "calendar events next week", 10, 1.5)
	require.NoError(t, err)
	assert.Empty(t, results, "threshold above the maximum score returns nothing")

	all, err := f.searcher.SearchString(ctx, "calendar events next week", 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, all)

	cutoff := all[0].Score
	results, err = f.searcher.SearchString(ctx, "calendar events next week", 10, cutoff)
	require.NoError(t, err)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, cutoff)
	}
}

func TestSearch_Errors(t *testing.T) {
	f := newFixture(t)
	seedSearch(t, f)
	ctx := context.Background()

	_, err := f.searcher.SearchString(ctx, "   ", 10, 0)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	failing := NewSearcher(f.store, failingEmbedder{})
	_, err = failing.SearchString(ctx, "calendar", 10, 0)
	assert.ErrorIs(t, err, embedding.ErrEmbeddingUnavailable)

	// Filter-only queries do not need the embedder.
	results, err := failing.SearchString(ctx, "tool_name:list_events", 10, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)

	down := NewSearcher(NewStore(staticConnector{err: vectorstore.ErrConnectionUnavailable}, f.embedder, testConfig()), f.embedder)
	_, err = down.SearchString(ctx, "calendar", 10, 0)
	assert.ErrorIs(t, err, vectorstore.ErrConnectionUnavailable)
}

func TestSearch_ForCollection(t *testing.T) {
	f := newFixture(t)
	seedSearch(t, f)

	empty := f.searcher.ForCollection("other")
	assert.Equal(t, "other", empty.Collection())

	results, err := empty.SearchString(context.Background(), "calendar events", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, results, "missing collection yields no results")
}

// brokenModel loads but cannot encode.
type brokenModel struct{}

func (brokenModel) Encode(context.Context, string) ([]float32, error) {
	return nil, errors.New("model inference failed")
}
func (brokenModel) Dimensions() int { return testDims }
func (brokenModel) Name() string    { return "broken" }

func TestSearch_EncodeFailureIsUnavailable(t *testing.T) {
	f := newFixture(t)
	seedSearch(t, f)

	lazy := embedding.NewLazy(func() (embedding.Provider, error) { return brokenModel{}, nil })
	searcher := NewSearcher(f.store, lazy)

	_, err := searcher.SearchString(context.Background(), "calendar events", 5, 0)
	require.ErrorIs(t, err, embedding.ErrEmbeddingUnavailable)

	// Filter-only queries never touch the model.
	results, err := searcher.SearchString(context.Background(), "tool_name:list_events", 5, 0)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}
