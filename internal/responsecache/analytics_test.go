package responsecache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregate_Empty(t *testing.T) {
	f := newFixture(t)
	agg := NewAggregator(f.store)

	// No collection at all.
	res, err := agg.Aggregate(context.Background(), AnalyticsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Empty(t, res.Groups)
	assert.Equal(t, FieldToolName, res.GroupBy)

	f.put(t, &StructuredPayload{ToolName: "list_items", ResponseData: mustParse(t, `{"count":3}`)})

	// A window in the future matches nothing.
	start := time.Now().Add(24 * time.Hour)
	end := start.Add(time.Hour)
	res, err = agg.Aggregate(context.Background(), AnalyticsQuery{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)
	assert.Zero(t, res.Execution.AvgMs)
	assert.Zero(t, res.Execution.MinMs)
	assert.Zero(t, res.Execution.MaxMs)
	assert.Zero(t, res.Compression.Ratio)
	assert.Zero(t, res.Compression.BytesSaved)
}

func TestAggregate_GroupsAndStats(t *testing.T) {
	f := newFixture(t)
	agg := NewAggregator(f.store)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	big := Object(map[string]Value{"blob": String(strings.Repeat("abc", 4000))})
	for i, r := range []struct {
		tool    string
		email   string
		execMs  int64
		payload Value
	}{
		{"list_items", "a@b.com", 10, Int(1)},
		{"list_items", "", 30, Int(2)},
		{"export", "a@b.com", 100, big},
		{"export", "c@d.com", 200, Int(3)},
	} {
		f.put(t, &StructuredPayload{
			ToolName:        r.tool,
			UserEmail:       r.email,
			ExecutionTimeMs: r.execMs,
			Timestamp:       base.Add(time.Duration(i) * time.Hour),
			ResponseData:    r.payload,
		})
	}

	res, err := agg.Aggregate(context.Background(), AnalyticsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, int64(10), res.Execution.MinMs)
	assert.Equal(t, int64(200), res.Execution.MaxMs)
	assert.InDelta(t, 85.0, res.Execution.AvgMs, 1e-9)

	require.Contains(t, res.Groups, "list_items")
	assert.Equal(t, 2, res.Groups["list_items"].Count)
	assert.InDelta(t, 20.0, res.Groups["list_items"].AvgExecutionTimeMs, 1e-9)
	assert.InDelta(t, 150.0, res.Groups["export"].AvgExecutionTimeMs, 1e-9)

	assert.Equal(t, 1, res.Compression.CompressedCount)
	assert.Greater(t, res.Compression.TotalOriginalBytes, res.Compression.TotalCompressedBytes)
	assert.Greater(t, res.Compression.Ratio, 0.0)
	assert.Less(t, res.Compression.Ratio, 1.0)
	assert.Equal(t, res.Compression.TotalOriginalBytes-res.Compression.TotalCompressedBytes, res.Compression.BytesSaved)

	byUser, err := agg.Aggregate(context.Background(), AnalyticsQuery{GroupBy: FieldUserEmail})
	require.NoError(t, err)
	assert.Equal(t, 2, byUser.Groups["a@b.com"].Count)
	assert.Equal(t, 1, byUser.Groups["c@d.com"].Count)
	assert.Equal(t, 1, byUser.Groups[unknownGroup].Count)

	// Inclusive bounds: the first and second records only.
	start, end := base, base.Add(time.Hour)
	window, err := agg.Aggregate(context.Background(), AnalyticsQuery{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, 2, window.Total)
	assert.Equal(t, 2, window.Groups["list_items"].Count)
}

func TestAggregate_SubMillisecondBounds(t *testing.T) {
	f := newFixture(t)
	agg := NewAggregator(f.store)
	base := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

	f.put(t, &StructuredPayload{
		ToolName:     "list_items",
		Timestamp:    base.Add(100 * time.Microsecond),
		ResponseData: Int(1),
	})

	// Same millisecond as the record, but after it.
	start := base.Add(900 * time.Microsecond)
	res, err := agg.Aggregate(context.Background(), AnalyticsQuery{Start: &start})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)

	// Same millisecond as the record, but before it.
	end := base.Add(50 * time.Microsecond)
	res, err = agg.Aggregate(context.Background(), AnalyticsQuery{End: &end})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)

	start, end = base, base.Add(100*time.Microsecond)
	res, err = agg.Aggregate(context.Background(), AnalyticsQuery{Start: &start, End: &end})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Equal(t, 1, res.Groups["list_items"].Count)
}

func TestAggregate_InvalidRange(t *testing.T) {
	f := newFixture(t)
	start := time.Now()
	end := start.Add(-time.Hour)

	_, err := NewAggregator(f.store).Aggregate(context.Background(), AnalyticsQuery{Start: &start, End: &end})
	assert.ErrorIs(t, err, ErrInvalidTimeRange)
}
