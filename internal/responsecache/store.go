package responsecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teemow/workspace-mcp/internal/embedding"
	"github.com/teemow/workspace-mcp/internal/instrumentation"
	"github.com/teemow/workspace-mcp/internal/logging"
	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

const (
	scanPageSize = 256

	// embeddingResponseRunes is how much of the serialized response feeds
	// the embedding text.
	embeddingResponseRunes = 2000
)

// Connector hands out the active vector store backend.
// vectorstore.ConnectionManager implements it.
type Connector interface {
	Client(ctx context.Context) (vectorstore.Backend, error)
}

// Embedder turns text into a vector. embedding.Lazy implements it.
type Embedder interface {
	Encode(ctx context.Context, text string) ([]float32, error)
}

// Store writes and reads StructuredPayload records in one collection.
type Store struct {
	conn       Connector
	embedder   Embedder
	compressor *Compressor
	collection string
	distance   vectorstore.Distance
	timeout    time.Duration
	metrics    *instrumentation.Metrics
	logger     *slog.Logger

	schema *schemaState
}

// schemaState remembers the vector size of every collection this process
// has provisioned or verified. Shared by stores derived with ForCollection.
type schemaState struct {
	mu   sync.Mutex
	dims map[string]int
}

// NewStore returns a Store for cfg.Collection.
func NewStore(conn Connector, embedder Embedder, cfg Config, opts ...Option) *Store {
	cfg = cfg.withDefaults()
	o := applyOptions(opts)

	distance, ok := vectorstore.ParseDistance(cfg.Distance)
	if !ok {
		distance = vectorstore.DistanceCosine
	}

	return &Store{
		conn:       conn,
		embedder:   embedder,
		compressor: NewCompressor(cfg.CompressionThreshold),
		collection: cfg.Collection,
		distance:   distance,
		timeout:    cfg.OperationTimeout,
		metrics:    o.metrics,
		logger:     logging.WithComponent(o.logger, "payload_store"),
		schema:     &schemaState{dims: make(map[string]int)},
	}
}

// ForCollection returns a Store bound to another collection. An empty name
// returns s.
func (s *Store) ForCollection(name string) *Store {
	if name == "" || name == s.collection {
		return s
	}
	clone := *s
	clone.collection = name
	return &clone
}

// Collection returns the collection name.
func (s *Store) Collection() string {
	return s.collection
}

// Compressor returns the compressor used for response data.
func (s *Store) Compressor() *Compressor {
	return s.compressor
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// EnsureSchema creates the collection with vectors of size dim unless this
// process has already done so. An existing collection of another size is
// rejected with embedding.ErrDimensionMismatch.
func (s *Store) EnsureSchema(ctx context.Context, dim int) error {
	backend, err := s.conn.Client(ctx)
	if err != nil {
		return err
	}
	return s.ensureSchema(ctx, backend, dim)
}

func (s *Store) ensureSchema(ctx context.Context, backend vectorstore.Backend, dim int) error {
	if dim <= 0 {
		return embedding.ErrEmptyEmbedding
	}

	s.schema.mu.Lock()
	defer s.schema.mu.Unlock()

	if known, ok := s.schema.dims[s.collection]; ok {
		if known != dim {
			return fmt.Errorf("%w: collection %s has %d dimensions, vector has %d",
				embedding.ErrDimensionMismatch, s.collection, known, dim)
		}
		return nil
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	info, err := backend.CollectionInfo(opCtx, s.collection)
	switch {
	case errors.Is(err, vectorstore.ErrCollectionNotFound):
		if err := backend.CreateCollection(opCtx, s.collection, dim, s.distance); err != nil {
			return fmt.Errorf("create collection %s: %w", s.collection, err)
		}
		s.logger.Info("created collection",
			logging.Collection(s.collection),
			slog.Int("dimensions", dim),
			slog.String("distance", string(s.distance)))
	case err != nil:
		return fmt.Errorf("describe collection %s: %w", s.collection, err)
	case info.VectorSize != 0 && int(info.VectorSize) != dim:
		return fmt.Errorf("%w: collection %s has %d dimensions, vector has %d",
			embedding.ErrDimensionMismatch, s.collection, info.VectorSize, dim)
	}

	s.schema.dims[s.collection] = dim
	return nil
}

// prepare fills in the fields derived at write time.
func (s *Store) prepare(rec *StructuredPayload) {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	rec.Timestamp = rec.Timestamp.UTC()
	if rec.Kind == "" {
		rec.Kind = ClassifyKind(rec.ToolName)
	}
	if rec.ResponseSummary == "" {
		rec.ResponseSummary = Summarize(rec.ResponseData)
	}
	if rec.ResponseTypeTag == "" {
		rec.ResponseTypeTag = rec.ResponseData.TypeTag()
	}
}

// Put embeds rec and stores it under a new id.
func (s *Store) Put(ctx context.Context, rec *StructuredPayload) (string, error) {
	if s.embedder == nil {
		return "", embedding.ErrEmbeddingUnavailable
	}
	s.prepare(rec)

	vec, err := s.embedder.Encode(ctx, EmbeddingText(rec))
	if err != nil {
		return "", fmt.Errorf("embed record: %w", err)
	}
	return s.PutWithVector(ctx, rec, vec)
}

// PutWithVector stores rec with a precomputed vector. Every call assigns a
// fresh id; records are never overwritten. On success rec.ID and
// rec.Compression are set.
func (s *Store) PutWithVector(ctx context.Context, rec *StructuredPayload, vector []float32) (string, error) {
	s.prepare(rec)

	backend, err := s.conn.Client(ctx)
	if err != nil {
		return "", err
	}
	if err := s.ensureSchema(ctx, backend, len(vector)); err != nil {
		return "", err
	}

	payload, err := encodePayload(rec, s.compressor)
	if err != nil {
		return "", err
	}

	id := uuid.NewString()
	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	err = backend.Upsert(opCtx, s.collection, []vectorstore.Point{{
		ID:      id,
		Vector:  vector,
		Payload: payload,
	}})
	if err != nil {
		return "", fmt.Errorf("upsert into %s: %w", s.collection, err)
	}

	rec.ID = id
	s.metrics.RecordPayloadSize(ctx, rec.Compression.OriginalSize, rec.Compression.Applied)
	s.logger.Debug("stored response",
		logging.RecordID(id),
		logging.Tool(rec.ToolName),
		slog.Bool("compressed", rec.Compression.Applied),
		slog.Int64("original_size", rec.Compression.OriginalSize))
	return id, nil
}

// GetByID returns the record with id. A missing record or collection is
// reported as (nil, false, nil).
func (s *Store) GetByID(ctx context.Context, id string) (*StructuredPayload, bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, false, nil
	}

	backend, err := s.conn.Client(ctx)
	if err != nil {
		return nil, false, err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	points, err := backend.Retrieve(opCtx, s.collection, []string{id})
	if errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("retrieve %s: %w", id, err)
	}
	if len(points) == 0 {
		return nil, false, nil
	}
	return s.decode(points[0]), true, nil
}

// Scan returns up to limit records matching filter in backend order.
// A limit of 0 or less returns every match.
func (s *Store) Scan(ctx context.Context, filter *vectorstore.Filter, limit int) ([]*StructuredPayload, error) {
	points, err := s.scanPoints(ctx, filter, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*StructuredPayload, 0, len(points))
	for _, p := range points {
		out = append(out, s.decode(p))
	}
	return out, nil
}

// scanPoints pages through raw points. A missing collection holds no points.
func (s *Store) scanPoints(ctx context.Context, filter *vectorstore.Filter, limit int) ([]vectorstore.Point, error) {
	backend, err := s.conn.Client(ctx)
	if err != nil {
		return nil, err
	}

	var out []vectorstore.Point
	cursor := ""
	for {
		page := scanPageSize
		if limit > 0 && limit-len(out) < page {
			page = limit - len(out)
		}

		opCtx, cancel := s.opContext(ctx)
		points, next, err := backend.Scroll(opCtx, s.collection, filter, page, cursor)
		cancel()
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("scroll %s: %w", s.collection, err)
		}

		out = append(out, points...)
		if next == "" || len(points) == 0 || (limit > 0 && len(out) >= limit) {
			return out, nil
		}
		cursor = next
	}
}

// Recent returns the n newest records, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]*StructuredPayload, error) {
	if n <= 0 {
		n = DefaultRecentLimit
	}
	backend, err := s.conn.Client(ctx)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	points, err := backend.Latest(opCtx, s.collection, FieldTimestampMs, n)
	if errors.Is(err, vectorstore.ErrCollectionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("recent %s: %w", s.collection, err)
	}

	out := make([]*StructuredPayload, 0, len(points))
	for _, p := range points {
		out = append(out, s.decode(p))
	}
	return out, nil
}

// Collections describes every collection in the backend.
func (s *Store) Collections(ctx context.Context) ([]vectorstore.CollectionInfo, error) {
	backend, err := s.conn.Client(ctx)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	names, err := backend.ListCollections(opCtx)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	out := make([]vectorstore.CollectionInfo, 0, len(names))
	for _, name := range names {
		info, err := backend.CollectionInfo(opCtx, name)
		if err != nil {
			return nil, fmt.Errorf("describe collection %s: %w", name, err)
		}
		out = append(out, *info)
	}
	return out, nil
}

// Info describes the store's collection.
func (s *Store) Info(ctx context.Context) (*vectorstore.CollectionInfo, error) {
	backend, err := s.conn.Client(ctx)
	if err != nil {
		return nil, err
	}

	opCtx, cancel := s.opContext(ctx)
	defer cancel()

	info, err := backend.CollectionInfo(opCtx, s.collection)
	if err != nil {
		return nil, fmt.Errorf("describe collection %s: %w", s.collection, err)
	}
	return info, nil
}

func (s *Store) decode(p vectorstore.Point) *StructuredPayload {
	rec := decodePayload(p, s.compressor)
	if rec.DecodeError != "" {
		s.logger.Warn("stored response could not be decoded",
			logging.RecordID(rec.ID),
			logging.Collection(s.collection),
			slog.String("decode_error", rec.DecodeError))
	}
	return rec
}

// EmbeddingText is the text embedded for a record: tool name, summary,
// arguments and the head of the serialized response.
func EmbeddingText(rec *StructuredPayload) string {
	var b strings.Builder
	b.WriteString("tool: ")
	b.WriteString(rec.ToolName)
	if rec.ResponseSummary != "" {
		b.WriteString("\nsummary: ")
		b.WriteString(rec.ResponseSummary)
	}
	if !rec.ToolArgs.IsNull() {
		if args, err := rec.ToolArgs.MarshalJSON(); err == nil {
			b.WriteString("\nargs: ")
			b.Write(args)
		}
	}
	// The response budget goes to the unwrapped payload.
	if data, err := Unwrap(rec.ResponseData).MarshalJSON(); err == nil {
		b.WriteString("\nresponse: ")
		b.WriteString(prefixRunes(string(data), embeddingResponseRunes))
	}
	return b.String()
}

func prefixRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
