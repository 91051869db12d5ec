package responsecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/teemow/workspace-mcp/internal/embedding"
	"github.com/teemow/workspace-mcp/internal/instrumentation"
	"github.com/teemow/workspace-mcp/internal/logging"
	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

// ScoredResult is one search hit. Unranked hits score 1.0.
type ScoredResult struct {
	Score  float32            `json:"score"`
	Record *StructuredPayload `json:"record"`
}

// Searcher executes parsed queries against a Store.
type Searcher struct {
	store    *Store
	embedder Embedder
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

// NewSearcher returns a Searcher reading from store.
func NewSearcher(store *Store, embedder Embedder, opts ...Option) *Searcher {
	o := applyOptions(opts)
	return &Searcher{
		store:    store,
		embedder: embedder,
		metrics:  o.metrics,
		logger:   logging.WithComponent(o.logger, "search"),
	}
}

// ForCollection returns a Searcher over another collection.
func (s *Searcher) ForCollection(name string) *Searcher {
	clone := *s
	clone.store = s.store.ForCollection(name)
	return &clone
}

// Collection returns the collection searched.
func (s *Searcher) Collection() string {
	return s.store.Collection()
}

// SearchString parses query and runs it.
func (s *Searcher) SearchString(ctx context.Context, query string, limit int, scoreThreshold float32) ([]ScoredResult, error) {
	return s.Search(ctx, ParseQuery(query), limit, scoreThreshold)
}

// Search runs q and returns at most limit results. Ranked results are in
// non-increasing score order and never score below scoreThreshold. A limit
// of 0 or less uses DefaultSearchLimit.
func (s *Searcher) Search(ctx context.Context, q ParsedQuery, limit int, scoreThreshold float32) ([]ScoredResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	queryType := string(q.Type)
	if q.Type == QueryFiltered && q.Ranked() {
		queryType = instrumentation.QueryTypeSemantic
	}

	ctx, span := instrumentation.StartSpan(ctx, "responsecache.search",
		instrumentation.NewSpanAttributeBuilder().
			WithCollection(s.store.Collection()).
			WithQueryType(queryType).
			Build()...)
	defer span.End()

	var (
		results []ScoredResult
		err     error
	)
	switch {
	case q.Type == QueryIDLookup:
		results, err = s.lookup(ctx, q.ID)
	case q.Ranked():
		results, err = s.ranked(ctx, q, limit, scoreThreshold)
	case q.Type == QueryFiltered:
		results, err = s.filtered(ctx, q, limit)
	default:
		err = fmt.Errorf("%w: empty query", ErrInvalidQuery)
	}

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		span.SetAttributes(instrumentation.NewSpanAttributeBuilder().WithResultCount(len(results)).Build()...)
	}
	s.metrics.RecordSearch(ctx, queryType, status, len(results))

	if err != nil {
		return nil, err
	}
	return results, nil
}

func (s *Searcher) lookup(ctx context.Context, id string) ([]ScoredResult, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidQuery)
	}
	rec, ok, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []ScoredResult{}, nil
	}
	return []ScoredResult{{Score: 1.0, Record: rec}}, nil
}

func (s *Searcher) filtered(ctx context.Context, q ParsedQuery, limit int) ([]ScoredResult, error) {
	records, err := s.store.Scan(ctx, q.Filter(), limit)
	if err != nil {
		return nil, err
	}
	results := make([]ScoredResult, 0, len(records))
	for _, rec := range records {
		results = append(results, ScoredResult{Score: 1.0, Record: rec})
	}
	return results, nil
}

func (s *Searcher) ranked(ctx context.Context, q ParsedQuery, limit int, scoreThreshold float32) ([]ScoredResult, error) {
	if s.embedder == nil {
		return nil, embedding.ErrEmbeddingUnavailable
	}
	vec, err := s.embedder.Encode(ctx, q.SemanticQuery)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	backend, err := s.store.conn.Client(ctx)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := s.store.opContext(ctx)
	defer cancel()

	points, err := backend.Query(opCtx, s.store.Collection(), vec, q.Filter(), limit, scoreThreshold)
	if errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return []ScoredResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", s.store.Collection(), err)
	}

	results := make([]ScoredResult, 0, len(points))
	for _, p := range points {
		if p.Score < scoreThreshold {
			continue
		}
		results = append(results, ScoredResult{Score: p.Score, Record: s.store.decode(p.Point)})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}
