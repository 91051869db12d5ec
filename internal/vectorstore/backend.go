package vectorstore

import (
	"context"
	"strings"
)

// Distance is the similarity metric of a collection.
type Distance string

// Supported distances.
const (
	DistanceCosine Distance = "cosine"
	DistanceDot    Distance = "dot"
)

// ParseDistance maps a configuration value to a Distance.
func ParseDistance(s string) (Distance, bool) {
	switch Distance(strings.ToLower(strings.TrimSpace(s))) {
	case DistanceCosine, "":
		return DistanceCosine, true
	case DistanceDot:
		return DistanceDot, true
	}
	return "", false
}

// Point is a stored vector with its payload.
//
// Payload values are limited to nil, bool, int64, float64, string, []any and
// map[string]any so that every backend can round-trip them.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a Point returned by a similarity query.
type ScoredPoint struct {
	Point
	Score float32
}

// CollectionInfo describes a collection.
type CollectionInfo struct {
	Name        string   `json:"name"`
	VectorSize  uint64   `json:"vector_size"`
	Distance    Distance `json:"distance"`
	Status      string   `json:"status"`
	PointsCount uint64   `json:"points_count"`
}

// MatchCondition requires a payload field to equal a keyword exactly.
type MatchCondition struct {
	Key   string
	Value string
}

// RangeCondition bounds a numeric payload field. Nil bounds are open,
// set bounds are inclusive.
type RangeCondition struct {
	Key string
	Gte *float64
	Lte *float64
}

// Filter is a conjunction of match and range conditions.
type Filter struct {
	Match  []MatchCondition
	Ranges []RangeCondition
}

// NewFilter returns an empty filter.
func NewFilter() *Filter {
	return &Filter{}
}

// WithMatch adds an exact keyword condition.
func (f *Filter) WithMatch(key, value string) *Filter {
	f.Match = append(f.Match, MatchCondition{Key: key, Value: value})
	return f
}

// WithRange adds an inclusive numeric range condition.
func (f *Filter) WithRange(key string, gte, lte *float64) *Filter {
	if gte == nil && lte == nil {
		return f
	}
	f.Ranges = append(f.Ranges, RangeCondition{Key: key, Gte: gte, Lte: lte})
	return f
}

// IsEmpty reports whether the filter has no conditions. A nil filter is empty.
func (f *Filter) IsEmpty() bool {
	return f == nil || (len(f.Match) == 0 && len(f.Ranges) == 0)
}

// Backend is the vector database the response cache talks to.
type Backend interface {
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, name string, dim int, distance Distance) error
	CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error)
	Upsert(ctx context.Context, collection string, points []Point) error
	Retrieve(ctx context.Context, collection string, ids []string) ([]Point, error)

	// Scroll returns up to limit points matching filter, starting at cursor.
	// The returned cursor is empty when no more points remain.
	Scroll(ctx context.Context, collection string, filter *Filter, limit int, cursor string) ([]Point, string, error)

	// Latest returns up to limit points with the largest values of the
	// integer payload field key, largest first. Points without the field
	// are not returned.
	Latest(ctx context.Context, collection, key string, limit int) ([]Point, error)

	// Query returns up to limit points ordered by descending similarity to
	// vector, dropping points scoring below scoreThreshold.
	Query(ctx context.Context, collection string, vector []float32, filter *Filter, limit int, scoreThreshold float32) ([]ScoredPoint, error)

	Close() error
}
