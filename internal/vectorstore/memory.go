package vectorstore

import (
	"context"
	"fmt"
	"maps"
	"math"
	"sort"
	"strconv"
	"sync"
)

// MemoryBackend is an in-process Backend. Scroll follows insertion order and
// Query is an exhaustive similarity scan. Writes are immediately visible.
type MemoryBackend struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dim      int
	distance Distance
	order    []string
	points   map[string]Point
}

// NewMemoryBackend returns an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{collections: make(map[string]*memoryCollection)}
}

// ListCollections returns collection names in sorted order.
func (m *MemoryBackend) ListCollections(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// CreateCollection creates a collection. Creating an existing collection is an error.
func (m *MemoryBackend) CreateCollection(ctx context.Context, name string, dim int, distance Distance) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("invalid vector size %d", dim)
	}
	if distance != DistanceCosine && distance != DistanceDot {
		return fmt.Errorf("unsupported distance %q", distance)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[name]; ok {
		return fmt.Errorf("collection %s already exists", name)
	}
	m.collections[name] = &memoryCollection{
		dim:      dim,
		distance: distance,
		points:   make(map[string]Point),
	}
	return nil
}

// CollectionInfo describes a collection.
func (m *MemoryBackend) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, name)
	}
	return &CollectionInfo{
		Name:        name,
		VectorSize:  uint64(c.dim),
		Distance:    c.distance,
		Status:      "green",
		PointsCount: uint64(len(c.points)),
	}, nil
}

// Upsert inserts or replaces points.
func (m *MemoryBackend) Upsert(ctx context.Context, collection string, points []Point) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	for _, p := range points {
		if len(p.Vector) != c.dim {
			return fmt.Errorf("point %s: vector size %d, collection expects %d", p.ID, len(p.Vector), c.dim)
		}
	}
	for _, p := range points {
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.points[p.ID] = Point{
			ID:      p.ID,
			Vector:  append([]float32(nil), p.Vector...),
			Payload: maps.Clone(p.Payload),
		}
	}
	return nil
}

// Retrieve returns the points with the given ids. Unknown ids are skipped.
func (m *MemoryBackend) Retrieve(ctx context.Context, collection string, ids []string) ([]Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	out := make([]Point, 0, len(ids))
	for _, id := range ids {
		if p, ok := c.points[id]; ok {
			out = append(out, copyPoint(p))
		}
	}
	return out, nil
}

// Scroll pages through points in insertion order. The cursor is the position
// of the next point.
func (m *MemoryBackend) Scroll(ctx context.Context, collection string, filter *Filter, limit int, cursor string) ([]Point, string, error) {
	if err := ctx.Err(); err != nil {
		return nil, "", err
	}
	if limit <= 0 {
		return nil, "", nil
	}

	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return nil, "", fmt.Errorf("invalid scroll cursor %q", cursor)
		}
		start = n
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, "", fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	var out []Point
	i := start
	for ; i < len(c.order) && len(out) < limit; i++ {
		p := c.points[c.order[i]]
		if matchesFilter(p.Payload, filter) {
			out = append(out, copyPoint(p))
		}
	}

	next := ""
	if i < len(c.order) {
		next = strconv.Itoa(i)
	}
	return out, next, nil
}

// Latest sorts the points holding key in descending order. Ties keep
// insertion order.
func (m *MemoryBackend) Latest(ctx context.Context, collection, key string, limit int) ([]Point, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}

	type keyed struct {
		point Point
		value float64
	}
	var all []keyed
	for _, id := range c.order {
		p := c.points[id]
		if v, ok := numericValue(p.Payload[key]); ok {
			all = append(all, keyed{point: p, value: v})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].value > all[j].value })

	if len(all) > limit {
		all = all[:limit]
	}
	out := make([]Point, 0, len(all))
	for _, k := range all {
		out = append(out, copyPoint(k.point))
	}
	return out, nil
}

// Query scores every matching point against vector.
func (m *MemoryBackend) Query(ctx context.Context, collection string, vector []float32, filter *Filter, limit int, scoreThreshold float32) ([]ScoredPoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionNotFound, collection)
	}
	if len(vector) != c.dim {
		return nil, fmt.Errorf("query vector size %d, collection expects %d", len(vector), c.dim)
	}

	var scored []ScoredPoint
	for _, id := range c.order {
		p := c.points[id]
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		var score float32
		if c.distance == DistanceDot {
			score = float32(DotProduct(vector, p.Vector))
		} else {
			score = float32(CosineSimilarity(vector, p.Vector))
		}
		if score < scoreThreshold {
			continue
		}
		scored = append(scored, ScoredPoint{Point: copyPoint(p), Score: score})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if limit > 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Close is a no-op; the data stays available to other holders of the backend.
func (m *MemoryBackend) Close() error {
	return nil
}

func copyPoint(p Point) Point {
	return Point{
		ID:      p.ID,
		Vector:  append([]float32(nil), p.Vector...),
		Payload: maps.Clone(p.Payload),
	}
}

func matchesFilter(payload map[string]any, filter *Filter) bool {
	if filter.IsEmpty() {
		return true
	}
	for _, cond := range filter.Match {
		s, ok := payload[cond.Key].(string)
		if !ok || s != cond.Value {
			return false
		}
	}
	for _, cond := range filter.Ranges {
		v, ok := numericValue(payload[cond.Key])
		if !ok {
			return false
		}
		if cond.Gte != nil && v < *cond.Gte {
			return false
		}
		if cond.Lte != nil && v > *cond.Lte {
			return false
		}
	}
	return true
}

func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// CosineSimilarity returns the cosine similarity of a and b, or 0 when the
// lengths differ or either vector has zero norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		ai := float64(a[i])
		bi := float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// DotProduct returns the dot product of a and b, or 0 when the lengths differ.
func DotProduct(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
