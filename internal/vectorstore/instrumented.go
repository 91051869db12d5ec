package vectorstore

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/workspace-mcp/internal/instrumentation"
)

const spanBackend = "vectorstore"

// Instrument wraps b so every call records a span and operation metrics.
// A nil metrics still produces spans.
func Instrument(b Backend, metrics *instrumentation.Metrics) Backend {
	return &instrumentedBackend{next: b, metrics: metrics}
}

// InstrumentDialer wraps every Backend produced by dial with Instrument.
func InstrumentDialer(dial Dialer, metrics *instrumentation.Metrics) Dialer {
	return func(ctx context.Context, ep Endpoint) (Backend, error) {
		b, err := dial(ctx, ep)
		if err != nil {
			return nil, err
		}
		return Instrument(b, metrics), nil
	}
}

type instrumentedBackend struct {
	next    Backend
	metrics *instrumentation.Metrics
}

func (ib *instrumentedBackend) observe(ctx context.Context, op, collection string, fn func(context.Context) error) error {
	var attrs []attribute.KeyValue
	if collection != "" {
		attrs = append(attrs, attribute.String(instrumentation.SpanAttrCollection, collection))
	}
	ctx, span := instrumentation.StartBackendSpan(ctx, spanBackend, op, attrs...)
	defer span.End()

	start := time.Now()
	err := fn(ctx)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	}
	ib.metrics.RecordVectorStoreOperation(ctx, op, status, time.Since(start))
	return err
}

func (ib *instrumentedBackend) ListCollections(ctx context.Context) (names []string, err error) {
	err = ib.observe(ctx, instrumentation.OperationListCollections, "", func(ctx context.Context) error {
		names, err = ib.next.ListCollections(ctx)
		return err
	})
	return names, err
}

func (ib *instrumentedBackend) CreateCollection(ctx context.Context, name string, dim int, distance Distance) error {
	return ib.observe(ctx, instrumentation.OperationCreateCollection, name, func(ctx context.Context) error {
		return ib.next.CreateCollection(ctx, name, dim, distance)
	})
}

func (ib *instrumentedBackend) CollectionInfo(ctx context.Context, name string) (info *CollectionInfo, err error) {
	err = ib.observe(ctx, instrumentation.OperationCollectionInfo, name, func(ctx context.Context) error {
		info, err = ib.next.CollectionInfo(ctx, name)
		return err
	})
	return info, err
}

func (ib *instrumentedBackend) Upsert(ctx context.Context, collection string, points []Point) error {
	return ib.observe(ctx, instrumentation.OperationUpsert, collection, func(ctx context.Context) error {
		return ib.next.Upsert(ctx, collection, points)
	})
}

func (ib *instrumentedBackend) Retrieve(ctx context.Context, collection string, ids []string) (points []Point, err error) {
	err = ib.observe(ctx, instrumentation.OperationRetrieve, collection, func(ctx context.Context) error {
		points, err = ib.next.Retrieve(ctx, collection, ids)
		return err
	})
	return points, err
}

func (ib *instrumentedBackend) Scroll(ctx context.Context, collection string, filter *Filter, limit int, cursor string) (points []Point, next string, err error) {
	err = ib.observe(ctx, instrumentation.OperationScroll, collection, func(ctx context.Context) error {
		points, next, err = ib.next.Scroll(ctx, collection, filter, limit, cursor)
		return err
	})
	return points, next, err
}

func (ib *instrumentedBackend) Latest(ctx context.Context, collection, key string, limit int) (points []Point, err error) {
	err = ib.observe(ctx, instrumentation.OperationScroll, collection, func(ctx context.Context) error {
		points, err = ib.next.Latest(ctx, collection, key, limit)
		return err
	})
	return points, err
}

func (ib *instrumentedBackend) Query(ctx context.Context, collection string, vector []float32, filter *Filter, limit int, scoreThreshold float32) (results []ScoredPoint, err error) {
	err = ib.observe(ctx, instrumentation.OperationQuery, collection, func(ctx context.Context) error {
		results, err = ib.next.Query(ctx, collection, vector, filter, limit, scoreThreshold)
		return err
	})
	return results, err
}

func (ib *instrumentedBackend) Close() error {
	return ib.next.Close()
}
