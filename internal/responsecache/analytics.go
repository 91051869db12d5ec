package responsecache

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/teemow/workspace-mcp/internal/instrumentation"
	"github.com/teemow/workspace-mcp/internal/logging"
	"github.com/teemow/workspace-mcp/internal/vectorstore"
)

const unknownGroup = "unknown"

// AnalyticsQuery selects the records to aggregate. Nil bounds are open;
// set bounds are inclusive.
type AnalyticsQuery struct {
	Start   *time.Time
	End     *time.Time
	GroupBy string
}

// GroupStats summarizes the records sharing one group value.
type GroupStats struct {
	Count              int     `json:"count"`
	AvgExecutionTimeMs float64 `json:"avg_execution_time_ms"`
}

// ExecutionStats covers all matching records.
type ExecutionStats struct {
	MinMs int64   `json:"min_ms"`
	AvgMs float64 `json:"avg_ms"`
	MaxMs int64   `json:"max_ms"`
}

// CompressionStats covers the compressed records. Ratio is compressed over
// original bytes, 0 when nothing was compressed.
type CompressionStats struct {
	CompressedCount      int     `json:"compressed_count"`
	TotalOriginalBytes   int64   `json:"total_original_bytes"`
	TotalCompressedBytes int64   `json:"total_compressed_bytes"`
	Ratio                float64 `json:"ratio"`
	BytesSaved           int64   `json:"bytes_saved"`
}

// Analytics is the result of Aggregate.
type Analytics struct {
	Collection  string                `json:"collection"`
	Start       *time.Time            `json:"start,omitempty"`
	End         *time.Time            `json:"end,omitempty"`
	GroupBy     string                `json:"group_by"`
	Total       int                   `json:"total"`
	Groups      map[string]GroupStats `json:"groups"`
	Execution   ExecutionStats        `json:"execution"`
	Compression CompressionStats      `json:"compression"`
}

// Aggregator computes usage statistics over stored records.
type Aggregator struct {
	store  *Store
	logger *slog.Logger
}

// NewAggregator returns an Aggregator reading from store.
func NewAggregator(store *Store, opts ...Option) *Aggregator {
	o := applyOptions(opts)
	return &Aggregator{
		store:  store,
		logger: logging.WithComponent(o.logger, "analytics"),
	}
}

// ForCollection returns an Aggregator over another collection.
func (a *Aggregator) ForCollection(name string) *Aggregator {
	clone := *a
	clone.store = a.store.ForCollection(name)
	return &clone
}

// Aggregate scans the records in the query's time range and computes
// grouped statistics. No matching records yield zero values, not an error.
// GroupBy defaults to tool_name; records without the field group as "unknown".
func (a *Aggregator) Aggregate(ctx context.Context, q AnalyticsQuery) (*Analytics, error) {
	if q.Start != nil && q.End != nil && q.Start.After(*q.End) {
		return nil, fmt.Errorf("%w: start %s is after end %s",
			ErrInvalidTimeRange, q.Start.Format(time.RFC3339), q.End.Format(time.RFC3339))
	}
	if q.GroupBy == "" {
		q.GroupBy = FieldToolName
	}

	ctx, span := instrumentation.StartSpan(ctx, "responsecache.aggregate",
		instrumentation.NewSpanAttributeBuilder().WithCollection(a.store.Collection()).Build()...)
	defer span.End()

	points, err := a.store.scanPoints(ctx, timeRangeFilter(q.Start, q.End), 0)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	result := &Analytics{
		Collection: a.store.Collection(),
		Start:      q.Start,
		End:        q.End,
		GroupBy:    q.GroupBy,
		Groups:     make(map[string]GroupStats),
	}

	groupTotals := make(map[string]int64)
	var execTotal int64
	for _, p := range points {
		if !inTimeRange(payloadTime(p.Payload), q.Start, q.End) {
			continue
		}
		result.Total++

		execMs := payloadInt(p.Payload, FieldExecutionTimeMs)
		execTotal += execMs
		if result.Total == 1 || execMs < result.Execution.MinMs {
			result.Execution.MinMs = execMs
		}
		if execMs > result.Execution.MaxMs {
			result.Execution.MaxMs = execMs
		}

		key := groupValue(p.Payload, q.GroupBy)
		g := result.Groups[key]
		g.Count++
		result.Groups[key] = g
		groupTotals[key] += execMs

		if payloadBool(p.Payload, FieldCompressionApplied) {
			c := &result.Compression
			c.CompressedCount++
			c.TotalOriginalBytes += payloadInt(p.Payload, FieldOriginalSize)
			c.TotalCompressedBytes += payloadInt(p.Payload, FieldCompressedSize)
		}
	}

	if result.Total > 0 {
		result.Execution.AvgMs = float64(execTotal) / float64(result.Total)
	}
	for key, g := range result.Groups {
		g.AvgExecutionTimeMs = float64(groupTotals[key]) / float64(g.Count)
		result.Groups[key] = g
	}
	if c := &result.Compression; c.TotalOriginalBytes > 0 {
		c.Ratio = float64(c.TotalCompressedBytes) / float64(c.TotalOriginalBytes)
		c.BytesSaved = c.TotalOriginalBytes - c.TotalCompressedBytes
	}

	a.logger.Debug("aggregated responses",
		logging.Collection(result.Collection),
		slog.Int("total", result.Total),
		slog.Int("groups", len(result.Groups)))
	return result, nil
}

// timeRangeFilter narrows the scan on timestamp_ms. Millisecond bounds
// admit records up to 1ms outside the range; inTimeRange drops them.
func timeRangeFilter(start, end *time.Time) *vectorstore.Filter {
	var gte, lte *float64
	if start != nil {
		v := float64(start.UnixMilli())
		gte = &v
	}
	if end != nil {
		v := float64(end.UnixMilli())
		lte = &v
	}
	f := vectorstore.NewFilter().WithRange(FieldTimestampMs, gte, lte)
	if f.IsEmpty() {
		return nil
	}
	return f
}

func inTimeRange(ts time.Time, start, end *time.Time) bool {
	if start != nil && ts.Before(*start) {
		return false
	}
	if end != nil && ts.After(*end) {
		return false
	}
	return true
}

func groupValue(pl map[string]any, field string) string {
	switch v := pl[field].(type) {
	case string:
		if v != "" {
			return v
		}
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return unknownGroup
}
