package telemetry

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// CircularBuffer Tests
// =============================================================================

func TestCircularBuffer_MaintainsCapacity(t *testing.T) {
	buf := NewCircularBuffer[string](3)

	buf.Add("query1")
	buf.Add("query2")
	buf.Add("query3")
	buf.Add("query4") // Should evict query1
	buf.Add("query5") // Should evict query2

	assert.Equal(t, 3, buf.Size())
	assert.Equal(t, []string{"query3", "query4", "query5"}, buf.Items())
}

func TestCircularBuffer_EmptyItems(t *testing.T) {
	buf := NewCircularBuffer[string](10)

	items := buf.Items()
	assert.Empty(t, items)
	assert.NotNil(t, items)
}

func TestLatencyToBucket(t *testing.T) {
	assert.Equal(t, BucketP10, LatencyToBucket(2*time.Millisecond))
	assert.Equal(t, BucketP50, LatencyToBucket(20*time.Millisecond))
	assert.Equal(t, BucketP100, LatencyToBucket(75*time.Millisecond))
	assert.Equal(t, BucketP500, LatencyToBucket(300*time.Millisecond))
	assert.Equal(t, BucketP1000, LatencyToBucket(2*time.Second))
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"us", "flag"}, ExtractTerms("  US a flag "))
	assert.Nil(t, ExtractTerms(""))
}

// =============================================================================
// QueryInsights Tests
// =============================================================================

func TestQueryInsights_Record(t *testing.T) {
	// Given: a fresh collector
	q := NewQueryInsights(InsightsConfig{})

	// When: recording a mix of queries
	q.Record(QueryEvent{Query: "arrow", Kind: QueryKindGroups, ResultCount: 3, Latency: time.Millisecond})
	q.Record(QueryEvent{Query: "Arrow", Kind: QueryKindGroups, ResultCount: 3, Latency: time.Millisecond})
	q.Record(QueryEvent{Query: "zzz", Kind: QueryKindStatic, ResultCount: 0, Latency: 20 * time.Millisecond})

	// Then: the snapshot reflects them
	snap := q.Snapshot()
	assert.Equal(t, int64(3), snap.TotalQueries)
	assert.Equal(t, int64(2), snap.KindCounts[QueryKindGroups])
	assert.Equal(t, int64(1), snap.ZeroResultCount)
	assert.Equal(t, []string{"zzz"}, snap.ZeroResultQueries)
	assert.Equal(t, int64(1), snap.ExactRepeatCount)
	assert.Equal(t, int64(2), snap.LatencyDistribution[BucketP10])
	require.NotEmpty(t, snap.TopTerms)
	assert.Equal(t, TermCount{Term: "arrow", Count: 2}, snap.TopTerms[0])
	assert.InDelta(t, 33.3, snap.ZeroResultPercentage(), 0.1)
}

func TestQueryInsights_NilIsNoop(t *testing.T) {
	var q *QueryInsights
	assert.NotPanics(t, func() {
		q.Record(QueryEvent{Query: "x"})
	})
}

// =============================================================================
// Prometheus Metrics Tests
// =============================================================================

func TestNewMetrics_RegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	require.NotNil(t, m)

	m.ObserveQuery("groups", 5*time.Millisecond, 4, nil)
	m.ObserveQuery("groups", time.Millisecond, 0, errors.New("boom"))
	m.ObserveCache("results", true)
	m.ObserveCache("results", false)
	m.ObserveIndexOp("replace_source", "icons", 10, time.Millisecond, nil)
	m.SetIndexedItems(map[string]int{"icons": 10, "flags": 2})
	m.ObserveExport(12, 1, time.Second)
	m.ObserveShardLoad(nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("groups", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("groups", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("results")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissTotal.WithLabelValues("results")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.IndexItemsWritten.WithLabelValues("icons")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IndexedItems.WithLabelValues("flags")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.ExportShards))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExportOverflowed))
}

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveQuery("items", time.Millisecond, 1, nil)
		m.ObserveCache("results", true)
		m.ObserveIndexOp("upsert", "", 1, time.Millisecond, nil)
		m.SetIndexedItems(nil)
		m.ObserveExport(0, 0, 0)
		m.ObserveShardLoad(nil)
	})
}

func TestRegisterMetricsEndpoint(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.ObserveQuery("items", time.Millisecond, 1, nil)

	mux := http.NewServeMux()
	RegisterMetricsEndpoint(mux, registry)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "mediadex_queries_total"))
}
