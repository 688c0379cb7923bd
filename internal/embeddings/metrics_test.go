package embeddings

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestMetrics_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := newMetrics(mp.Meter("test"), nil)

	ctx := context.Background()
	m.Record(ctx, "mini", "embed_documents", 20*time.Millisecond, 8, nil)
	m.Record(ctx, "mini", "embed_query", 5*time.Millisecond, 1, errors.New("x"))

	got := collect(t, reader)
	require.Contains(t, got, "convrag.embedding.duration_seconds")
	require.Contains(t, got, "convrag.embedding.batch_size")
	require.Contains(t, got, "convrag.embedding.errors_total")

	errs := got["convrag.embedding.errors_total"].(metricdata.Sum[int64])
	require.Len(t, errs.DataPoints, 1)
	assert.Equal(t, int64(1), errs.DataPoints[0].Value)

	dur := got["convrag.embedding.duration_seconds"].(metricdata.Histogram[float64])
	var count uint64
	for _, dp := range dur.DataPoints {
		count += dp.Count
	}
	assert.Equal(t, uint64(2), count)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Record(context.Background(), "m", "op", time.Second, 1, errors.New("x"))
	})
}
