package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantBackend is a Backend on the Qdrant gRPC API.
type QdrantBackend struct {
	client *qdrant.Client
}

// NewQdrantBackend connects to a Qdrant endpoint. The gRPC connection is
// established lazily, so a nil error does not imply the server is reachable.
// The client's own version check is skipped: it would dial the server with
// its own timeout and log on every failed attempt.
func NewQdrantBackend(ep Endpoint, apiKey string) (*QdrantBackend, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   ep.Host,
		Port:                   ep.Port,
		APIKey:                 apiKey,
		UseTLS:                 ep.UseTLS,
		SkipCompatibilityCheck: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client for %s: %w", ep, err)
	}
	return &QdrantBackend{client: client}, nil
}

// ListCollections lists all collection names.
func (q *QdrantBackend) ListCollections(ctx context.Context) ([]string, error) {
	names, err := q.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	return names, nil
}

// CreateCollection creates a collection with a single unnamed vector.
func (q *QdrantBackend) CreateCollection(ctx context.Context, name string, dim int, distance Distance) error {
	err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: toQdrantDistance(distance),
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}
	return nil
}

// CollectionInfo describes a collection.
func (q *QdrantBackend) CollectionInfo(ctx context.Context, name string) (*CollectionInfo, error) {
	info, err := q.client.GetCollectionInfo(ctx, name)
	if err != nil {
		return nil, wrapQdrantError(err, "failed to get collection info for "+name)
	}

	params := info.GetConfig().GetParams().GetVectorsConfig().GetParams()
	return &CollectionInfo{
		Name:        name,
		VectorSize:  params.GetSize(),
		Distance:    fromQdrantDistance(params.GetDistance()),
		Status:      strings.ToLower(info.GetStatus().String()),
		PointsCount: info.GetPointsCount(),
	}, nil
}

// Upsert writes points and waits for the write to be applied.
func (q *QdrantBackend) Upsert(ctx context.Context, collection string, points []Point) error {
	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := toQdrantPayload(p.Payload)
		if err != nil {
			return fmt.Errorf("point %s: %w", p.ID, err)
		}
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      toPointID(p.ID),
			Vectors: &qdrant.Vectors{VectorsOptions: &qdrant.Vectors_Vector{Vector: &qdrant.Vector{Data: p.Vector}}},
			Payload: payload,
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qpoints,
	})
	if err != nil {
		return wrapQdrantError(err, "failed to upsert into "+collection)
	}
	return nil
}

// Retrieve fetches points by id with their payload.
func (q *QdrantBackend) Retrieve(ctx context.Context, collection string, ids []string) ([]Point, error) {
	pointIDs := make([]*qdrant.PointId, 0, len(ids))
	for _, id := range ids {
		pointIDs = append(pointIDs, toPointID(id))
	}

	points, err := q.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            pointIDs,
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, wrapQdrantError(err, "failed to retrieve points from "+collection)
	}

	out := make([]Point, 0, len(points))
	for _, p := range points {
		out = append(out, Point{
			ID:      pointIDToString(p.GetId()),
			Payload: fromQdrantPayload(p.GetPayload()),
		})
	}
	return out, nil
}

// Scroll pages through points ordered by id.
func (q *QdrantBackend) Scroll(ctx context.Context, collection string, filter *Filter, limit int, cursor string) ([]Point, string, error) {
	req := &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         toQdrantFilter(filter),
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	}
	if cursor != "" {
		req.Offset = toPointID(cursor)
	}

	resp, err := q.client.GetPointsClient().Scroll(ctx, req)
	if err != nil {
		return nil, "", wrapQdrantError(err, "failed to scroll "+collection)
	}

	out := make([]Point, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		out = append(out, Point{
			ID:      pointIDToString(p.GetId()),
			Payload: fromQdrantPayload(p.GetPayload()),
		})
	}

	next := ""
	if offset := resp.GetNextPageOffset(); offset != nil {
		next = pointIDToString(offset)
	}
	return out, next, nil
}

// Latest scrolls in descending order of key. Qdrant only orders by indexed
// fields, so a missing index is created on first use.
func (q *QdrantBackend) Latest(ctx context.Context, collection, key string, limit int) ([]Point, error) {
	if limit <= 0 {
		return nil, nil
	}
	req := &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		OrderBy: &qdrant.OrderBy{
			Key:       key,
			Direction: qdrant.Direction_Desc.Enum(),
		},
	}

	resp, err := q.client.GetPointsClient().Scroll(ctx, req)
	if status.Code(err) == codes.InvalidArgument {
		if _, ierr := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      key,
			FieldType:      qdrant.FieldType_FieldTypeInteger.Enum(),
			Wait:           qdrant.PtrOf(true),
		}); ierr != nil {
			return nil, wrapQdrantError(ierr, "failed to index "+key+" in "+collection)
		}
		resp, err = q.client.GetPointsClient().Scroll(ctx, req)
	}
	if err != nil {
		return nil, wrapQdrantError(err, "failed to scroll "+collection+" by "+key)
	}

	out := make([]Point, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		out = append(out, Point{
			ID:      pointIDToString(p.GetId()),
			Payload: fromQdrantPayload(p.GetPayload()),
		})
	}
	return out, nil
}

// Query runs a nearest-neighbour search.
func (q *QdrantBackend) Query(ctx context.Context, collection string, vector []float32, filter *Filter, limit int, scoreThreshold float32) ([]ScoredPoint, error) {
	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		Filter:         toQdrantFilter(filter),
	}
	if scoreThreshold > 0 {
		req.ScoreThreshold = qdrant.PtrOf(scoreThreshold)
	}

	results, err := q.client.Query(ctx, req)
	if err != nil {
		return nil, wrapQdrantError(err, "failed to query "+collection)
	}

	out := make([]ScoredPoint, 0, len(results))
	for _, r := range results {
		out = append(out, ScoredPoint{
			Point: Point{
				ID:      pointIDToString(r.GetId()),
				Payload: fromQdrantPayload(r.GetPayload()),
			},
			Score: r.GetScore(),
		})
	}
	return out, nil
}

// Close closes the gRPC connection.
func (q *QdrantBackend) Close() error {
	return q.client.Close()
}

func wrapQdrantError(err error, msg string) error {
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%s: %w: %v", msg, ErrCollectionNotFound, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func toQdrantDistance(d Distance) qdrant.Distance {
	if d == DistanceDot {
		return qdrant.Distance_Dot
	}
	return qdrant.Distance_Cosine
}

func fromQdrantDistance(d qdrant.Distance) Distance {
	switch d {
	case qdrant.Distance_Cosine:
		return DistanceCosine
	case qdrant.Distance_Dot:
		return DistanceDot
	default:
		return Distance(strings.ToLower(d.String()))
	}
}

func toPointID(id string) *qdrant.PointId {
	if n, err := strconv.ParseUint(id, 10, 64); err == nil {
		return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Num{Num: n}}
	}
	return &qdrant.PointId{PointIdOptions: &qdrant.PointId_Uuid{Uuid: id}}
}

func pointIDToString(id *qdrant.PointId) string {
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func toQdrantFilter(f *Filter) *qdrant.Filter {
	if f.IsEmpty() {
		return nil
	}

	conditions := make([]*qdrant.Condition, 0, len(f.Match)+len(f.Ranges))
	for _, m := range f.Match {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key: m.Key,
					Match: &qdrant.Match{
						MatchValue: &qdrant.Match_Keyword{Keyword: m.Value},
					},
				},
			},
		})
	}
	for _, r := range f.Ranges {
		conditions = append(conditions, &qdrant.Condition{
			ConditionOneOf: &qdrant.Condition_Field{
				Field: &qdrant.FieldCondition{
					Key:   r.Key,
					Range: &qdrant.Range{Gte: r.Gte, Lte: r.Lte},
				},
			},
		})
	}
	return &qdrant.Filter{Must: conditions}
}

func toQdrantPayload(payload map[string]any) (map[string]*qdrant.Value, error) {
	out := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		qv, err := toQdrantValue(v)
		if err != nil {
			return nil, fmt.Errorf("payload field %s: %w", k, err)
		}
		out[k] = qv
	}
	return out, nil
}

func toQdrantValue(v any) (*qdrant.Value, error) {
	switch t := v.(type) {
	case nil:
		return &qdrant.Value{Kind: &qdrant.Value_NullValue{NullValue: qdrant.NullValue_NULL_VALUE}}, nil
	case bool:
		return &qdrant.Value{Kind: &qdrant.Value_BoolValue{BoolValue: t}}, nil
	case int:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: int64(t)}}, nil
	case int64:
		return &qdrant.Value{Kind: &qdrant.Value_IntegerValue{IntegerValue: t}}, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return nil, errors.New("non-finite number")
		}
		return &qdrant.Value{Kind: &qdrant.Value_DoubleValue{DoubleValue: t}}, nil
	case string:
		return &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: t}}, nil
	case []any:
		values := make([]*qdrant.Value, 0, len(t))
		for _, item := range t {
			qv, err := toQdrantValue(item)
			if err != nil {
				return nil, err
			}
			values = append(values, qv)
		}
		return &qdrant.Value{Kind: &qdrant.Value_ListValue{ListValue: &qdrant.ListValue{Values: values}}}, nil
	case map[string]any:
		fields, err := toQdrantPayload(t)
		if err != nil {
			return nil, err
		}
		return &qdrant.Value{Kind: &qdrant.Value_StructValue{StructValue: &qdrant.Struct{Fields: fields}}}, nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", v)
	}
}

func fromQdrantPayload(payload map[string]*qdrant.Value) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = fromQdrantValue(v)
	}
	return out
}

func fromQdrantValue(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_ListValue:
		values := k.ListValue.GetValues()
		out := make([]any, 0, len(values))
		for _, item := range values {
			out = append(out, fromQdrantValue(item))
		}
		return out
	case *qdrant.Value_StructValue:
		return fromQdrantPayload(k.StructValue.GetFields())
	default:
		return nil
	}
}
