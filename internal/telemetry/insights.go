// Package telemetry provides Prometheus metrics and in-memory query insights
// for mediadex. Nothing is reported externally; the metrics endpoint is only
// served when the server is started with a metrics address.
package telemetry

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryKind identifies which search surface served a query.
type QueryKind string

const (
	QueryKindItems  QueryKind = "items"
	QueryKindGroups QueryKind = "groups"
	QueryKindStatic QueryKind = "static"
	QueryKindName   QueryKind = "name"
)

// LatencyBucket represents a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent represents a single search query.
type QueryEvent struct {
	Query       string
	Kind        QueryKind
	ResultCount int
	Latency     time.Duration
}

// IsZeroResult returns true if this query returned no results.
func (e QueryEvent) IsZeroResult() bool {
	return e.ResultCount == 0
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	items    []T
	head     int // Next write position
	size     int
	capacity int
	mu       sync.RWMutex
}

// NewCircularBuffer creates a new circular buffer with the given capacity.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add adds an item to the buffer. If full, the oldest item is evicted.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns all items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.size == 0 {
		return []T{}
	}
	result := make([]T, b.size)
	if b.size < b.capacity {
		copy(result, b.items[:b.size])
	} else {
		copy(result, b.items[b.head:])
		copy(result[b.capacity-b.head:], b.items[:b.head])
	}
	return result
}

// Size returns the current number of items in the buffer.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases a query and keeps words of two or more runes,
// the shortest query the static shards can answer.
func ExtractTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		if len([]rune(w)) >= 2 {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount represents a term and its frequency count.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// InsightsSnapshot is an immutable copy of the collected insights.
type InsightsSnapshot struct {
	KindCounts          map[QueryKind]int64     `json:"kind_counts"`
	TopTerms            []TermCount             `json:"top_terms"`
	ZeroResultQueries   []string                `json:"zero_result_queries"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution"`
	TotalQueries        int64                   `json:"total_queries"`
	ZeroResultCount     int64                   `json:"zero_result_count"`
	ExactRepeatCount    int64                   `json:"exact_repeat_count"`
	Since               time.Time               `json:"since"`
}

// ZeroResultPercentage returns the percentage of zero-result queries.
func (s *InsightsSnapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// InsightsConfig bounds the memory used by QueryInsights.
type InsightsConfig struct {
	TopTermsCapacity      int // Max terms to track (default: 100)
	ZeroResultsCapacity   int // Max zero-result queries to keep (default: 100)
	RecentQueriesCapacity int // Max queries remembered for repeat detection (default: 500)
}

// DefaultInsightsConfig returns the default capacities.
func DefaultInsightsConfig() InsightsConfig {
	return InsightsConfig{
		TopTermsCapacity:      100,
		ZeroResultsCapacity:   100,
		RecentQueriesCapacity: 500,
	}
}

// QueryInsights aggregates query patterns in memory: popular terms,
// zero-result queries, latency and repeats. Safe for concurrent use.
// A nil *QueryInsights ignores Record.
type QueryInsights struct {
	mu sync.RWMutex

	kinds           map[QueryKind]int64
	topTerms        *lru.Cache[string, int64]
	zeroResults     *CircularBuffer[string]
	latencies       map[LatencyBucket]int64
	recentQueries   *lru.Cache[string, struct{}]
	totalQueries    int64
	zeroResultCount int64
	repeatCount     int64
	startTime       time.Time
}

// NewQueryInsights creates a collector with cfg, filling zero capacities
// with defaults.
func NewQueryInsights(cfg InsightsConfig) *QueryInsights {
	def := DefaultInsightsConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = def.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = def.ZeroResultsCapacity
	}
	if cfg.RecentQueriesCapacity <= 0 {
		cfg.RecentQueriesCapacity = def.RecentQueriesCapacity
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentQueriesCapacity)

	return &QueryInsights{
		kinds:         make(map[QueryKind]int64),
		topTerms:      topTerms,
		zeroResults:   NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		latencies:     make(map[LatencyBucket]int64),
		recentQueries: recent,
		startTime:     time.Now(),
	}
}

// Record captures one query.
func (q *QueryInsights) Record(event QueryEvent) {
	if q == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	q.kinds[event.Kind]++
	q.totalQueries++

	for _, term := range ExtractTerms(event.Query) {
		count, _ := q.topTerms.Get(term)
		q.topTerms.Add(term, count+1)
	}

	if event.IsZeroResult() {
		q.zeroResults.Add(event.Query)
		q.zeroResultCount++
	}

	q.latencies[LatencyToBucket(event.Latency)]++

	key := hashQuery(event.Query)
	if _, seen := q.recentQueries.Get(key); seen {
		q.repeatCount++
	}
	q.recentQueries.Add(key, struct{}{})
}

// hashQuery creates a normalized key for repeat detection.
func hashQuery(query string) string {
	normalized := strings.ToLower(strings.TrimSpace(query))
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:16])
}

// Snapshot returns the current insights. Top terms are ordered by count
// descending, then term.
func (q *QueryInsights) Snapshot() *InsightsSnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	kinds := make(map[QueryKind]int64, len(q.kinds))
	for k, v := range q.kinds {
		kinds[k] = v
	}

	topTerms := make([]TermCount, 0, q.topTerms.Len())
	for _, key := range q.topTerms.Keys() {
		if count, ok := q.topTerms.Peek(key); ok {
			topTerms = append(topTerms, TermCount{Term: key, Count: count})
		}
	}
	sort.Slice(topTerms, func(i, j int) bool {
		if topTerms[i].Count != topTerms[j].Count {
			return topTerms[i].Count > topTerms[j].Count
		}
		return topTerms[i].Term < topTerms[j].Term
	})

	latencies := make(map[LatencyBucket]int64, len(q.latencies))
	for k, v := range q.latencies {
		latencies[k] = v
	}

	return &InsightsSnapshot{
		KindCounts:          kinds,
		TopTerms:            topTerms,
		ZeroResultQueries:   q.zeroResults.Items(),
		LatencyDistribution: latencies,
		TotalQueries:        q.totalQueries,
		ZeroResultCount:     q.zeroResultCount,
		ExactRepeatCount:    q.repeatCount,
		Since:               q.startTime,
	}
}
