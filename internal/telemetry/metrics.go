package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for mediadex.
//
// A nil *Metrics is valid: every Observe/Record method is a no-op on it, so
// library callers never need to check whether metrics are enabled.
type Metrics struct {
	// Query metrics
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	QueryResults    *prometheus.HistogramVec
	CacheHitsTotal  *prometheus.CounterVec
	CacheMissTotal  *prometheus.CounterVec
	ShardLoadsTotal *prometheus.CounterVec

	// Index metrics
	IndexOperationsTotal   *prometheus.CounterVec
	IndexOperationDuration *prometheus.HistogramVec
	IndexItemsWritten      *prometheus.CounterVec
	IndexedItems           *prometheus.GaugeVec

	// Export metrics
	ExportShards     prometheus.Gauge
	ExportOverflowed prometheus.Gauge
	ExportDuration   prometheus.Histogram
}

// NewMetrics creates and registers all collectors on registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediadex_queries_total",
				Help: "Total number of search queries",
			},
			[]string{"kind", "status"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediadex_query_duration_seconds",
				Help:    "Search query duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"kind"},
		),
		QueryResults: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediadex_query_results",
				Help:    "Number of results returned per query",
				Buckets: prometheus.ExponentialBuckets(1, 4, 6),
			},
			[]string{"kind"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediadex_cache_hits_total",
				Help: "Total number of cache hits",
			},
			[]string{"cache_type"},
		),
		CacheMissTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediadex_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"cache_type"},
		),
		ShardLoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediadex_static_shard_loads_total",
				Help: "Total number of static shard file reads",
			},
			[]string{"status"},
		),

		IndexOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediadex_index_operations_total",
				Help: "Total number of index write operations",
			},
			[]string{"operation", "status"},
		),
		IndexOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mediadex_index_operation_duration_seconds",
				Help:    "Index write duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		IndexItemsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mediadex_index_items_written_total",
				Help: "Total number of items written to the index",
			},
			[]string{"source"},
		),
		IndexedItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "mediadex_indexed_items",
				Help: "Items currently in the index by source",
			},
			[]string{"source"},
		),

		ExportShards: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mediadex_export_shards",
				Help: "Shard files written by the last static export",
			},
		),
		ExportOverflowed: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "mediadex_export_overflowed_prefixes",
				Help: "Prefixes dropped by the last static export for exceeding the size threshold",
			},
		),
		ExportDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mediadex_export_duration_seconds",
				Help:    "Static export duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 10, 30, 60, 120},
			},
		),
	}

	registry.MustRegister(
		m.QueriesTotal,
		m.QueryDuration,
		m.QueryResults,
		m.CacheHitsTotal,
		m.CacheMissTotal,
		m.ShardLoadsTotal,
		m.IndexOperationsTotal,
		m.IndexOperationDuration,
		m.IndexItemsWritten,
		m.IndexedItems,
		m.ExportShards,
		m.ExportOverflowed,
		m.ExportDuration,
	)

	return m
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveQuery records one search of the given kind ("items", "groups",
// "static").
func (m *Metrics) ObserveQuery(kind string, d time.Duration, results int, err error) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(kind, status(err)).Inc()
	m.QueryDuration.WithLabelValues(kind).Observe(d.Seconds())
	if err == nil {
		m.QueryResults.WithLabelValues(kind).Observe(float64(results))
	}
}

// ObserveCache records a cache lookup.
func (m *Metrics) ObserveCache(cacheType string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(cacheType).Inc()
		return
	}
	m.CacheMissTotal.WithLabelValues(cacheType).Inc()
}

// ObserveShardLoad records a static shard read.
func (m *Metrics) ObserveShardLoad(err error) {
	if m == nil {
		return
	}
	m.ShardLoadsTotal.WithLabelValues(status(err)).Inc()
}

// ObserveIndexOp records an index write. written counts items inserted for
// source; pass an empty source for operations spanning several.
func (m *Metrics) ObserveIndexOp(op, source string, written int, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.IndexOperationsTotal.WithLabelValues(op, status(err)).Inc()
	m.IndexOperationDuration.WithLabelValues(op).Observe(d.Seconds())
	if err == nil && written > 0 && source != "" {
		m.IndexItemsWritten.WithLabelValues(source).Add(float64(written))
	}
}

// SetIndexedItems replaces the per-source item gauge.
func (m *Metrics) SetIndexedItems(counts map[string]int) {
	if m == nil {
		return
	}
	m.IndexedItems.Reset()
	for source, n := range counts {
		m.IndexedItems.WithLabelValues(source).Set(float64(n))
	}
}

// ObserveExport records the outcome of a static export.
func (m *Metrics) ObserveExport(shards, overflowed int, d time.Duration) {
	if m == nil {
		return
	}
	m.ExportShards.Set(float64(shards))
	m.ExportOverflowed.Set(float64(overflowed))
	m.ExportDuration.Observe(d.Seconds())
}

// RegisterMetricsEndpoint registers the /metrics endpoint.
func RegisterMetricsEndpoint(mux *http.ServeMux, registry *prometheus.Registry) {
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
