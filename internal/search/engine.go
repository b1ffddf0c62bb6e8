package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/mediadex/internal/media"
	"github.com/Aman-CERP/mediadex/internal/store"
	"github.com/Aman-CERP/mediadex/internal/telemetry"
)

// ErrNilDependency is returned when a required dependency is nil.
var ErrNilDependency = errors.New("nil dependency")

const (
	kindItems  = string(telemetry.QueryKindItems)
	kindGroups = string(telemetry.QueryKindGroups)
)

// Engine executes ranked and grouped queries against an ItemStore.
// It does not own the store; the caller opens and closes it.
//
// Result slices may share item pointers with the cache and must be treated
// as read-only.
type Engine struct {
	store    store.ItemStore
	config   EngineConfig
	items    *lru.Cache[string, []*Result]      // nil when caching is disabled
	groups   *lru.Cache[string, []*GroupResult] // nil when caching is disabled
	logger   *slog.Logger
	metrics  *telemetry.Metrics
	insights *telemetry.QueryInsights
}

// EngineOption configures the search engine.
type EngineOption func(*Engine)

// WithLogger sets the logger (default: slog.Default()).
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics records query counts, latency and cache hits.
func WithMetrics(m *telemetry.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithInsights records query patterns, zero-result queries and repeats.
func WithInsights(q *telemetry.QueryInsights) EngineOption {
	return func(e *Engine) {
		e.insights = q
	}
}

// NewEngine creates a search engine over s. Zero config fields take their
// defaults.
func NewEngine(s store.ItemStore, config EngineConfig, opts ...EngineOption) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: item store is required", ErrNilDependency)
	}

	def := DefaultConfig()
	if config.DefaultLimit <= 0 {
		config.DefaultLimit = def.DefaultLimit
	}
	if config.MaxLimit <= 0 {
		config.MaxLimit = def.MaxLimit
	}
	if config.DefaultLimit > config.MaxLimit {
		config.DefaultLimit = config.MaxLimit
	}
	if config.Preferences == nil {
		config.Preferences = def.Preferences
	}
	if config.CacheSize == 0 {
		config.CacheSize = def.CacheSize
	}

	e := &Engine{
		store:  s,
		config: config,
		logger: slog.Default(),
	}
	if config.CacheSize > 0 {
		e.items, _ = lru.New[string, []*Result](config.CacheSize)
		e.groups, _ = lru.New[string, []*GroupResult](config.CacheSize)
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the effective engine configuration.
func (e *Engine) Config() EngineConfig {
	return e.config
}

// Search returns items ranked by relevance, highest first. Ties are broken by
// item id so identical requests always return identical pages. A query with
// no usable terms returns no results and no error.
func (e *Engine) Search(ctx context.Context, query string, opts SearchOptions) ([]*Result, error) {
	start := time.Now()
	if err := opts.validate(e.config.MaxLimit); err != nil {
		return nil, err
	}
	opts = e.applyDefaults(opts)

	results, err := e.search(ctx, query, opts)
	e.observe(telemetry.QueryKindItems, query, len(results), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) search(ctx context.Context, query string, opts SearchOptions) ([]*Result, error) {
	terms := store.QueryTerms(query)
	if len(terms) == 0 {
		return []*Result{}, nil
	}

	var key string
	if e.items != nil {
		gen, err := e.store.Generation(ctx)
		if err != nil {
			return nil, err
		}
		key = cacheKey(kindItems, terms, opts, gen)
		if cached, ok := e.items.Get(key); ok {
			e.metrics.ObserveCache("items", true)
			return append([]*Result(nil), cached...), nil
		}
		e.metrics.ObserveCache("items", false)
	}

	results, err := e.fetch(ctx, query, opts.filter(), opts.Limit, opts.Offset)
	if err != nil {
		return nil, err
	}
	if e.items != nil {
		e.items.Add(key, results)
	}
	return append([]*Result(nil), results...), nil
}

// fetch runs the store query. limit <= 0 fetches every match.
func (e *Engine) fetch(ctx context.Context, query string, f store.Filter, limit, offset int) ([]*Result, error) {
	hits, err := e.store.Search(ctx, store.SearchRequest{
		Query:  query,
		Filter: f,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}
	results := make([]*Result, len(hits))
	for i, h := range hits {
		results[i] = &Result{Item: h.Item, Score: h.Score}
	}
	return results, nil
}

// SearchGrouped returns groups of style variants ranked by their best
// member. The item search is widened to (offset+limit)*OverfetchFactor so
// groups are found complete even when only one variant ranks high.
func (e *Engine) SearchGrouped(ctx context.Context, query string, opts SearchOptions) ([]*GroupResult, error) {
	start := time.Now()
	if err := opts.validate(e.config.MaxLimit); err != nil {
		return nil, err
	}
	opts = e.applyDefaults(opts)

	groups, err := e.searchGrouped(ctx, query, opts)
	e.observe(telemetry.QueryKindGroups, query, len(groups), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (e *Engine) searchGrouped(ctx context.Context, query string, opts SearchOptions) ([]*GroupResult, error) {
	terms := store.QueryTerms(query)
	if len(terms) == 0 {
		return []*GroupResult{}, nil
	}

	var key string
	if e.groups != nil {
		gen, err := e.store.Generation(ctx)
		if err != nil {
			return nil, err
		}
		key = cacheKey(kindGroups, terms, opts, gen)
		if cached, ok := e.groups.Get(key); ok {
			e.metrics.ObserveCache("groups", true)
			return append([]*GroupResult(nil), cached...), nil
		}
		e.metrics.ObserveCache("groups", false)
	}

	fetchLimit := (opts.Offset + opts.Limit) * OverfetchFactor
	results, err := e.fetch(ctx, query, opts.filter(), fetchLimit, 0)
	if err != nil {
		return nil, err
	}

	groups := paginate(GroupResults(results, opts.Preferences), opts.Offset, opts.Limit)
	if e.groups != nil {
		e.groups.Add(key, groups)
	}
	return append([]*GroupResult(nil), groups...), nil
}

// GetByID returns the item with id, or nil when it does not exist.
func (e *Engine) GetByID(ctx context.Context, id string) (*media.Item, error) {
	return e.store.Get(ctx, id)
}

// SearchByName returns items whose canonical name contains name, ignoring
// case, ordered by source, canonical name, style then id. Empty sourceID or
// style does not filter. A blank name returns no results and no error.
func (e *Engine) SearchByName(ctx context.Context, name, sourceID, style string, limit int) ([]*media.Item, error) {
	start := time.Now()
	opts := SearchOptions{Limit: limit}
	if err := opts.validate(e.config.MaxLimit); err != nil {
		return nil, err
	}
	opts = e.applyDefaults(opts)

	name = strings.TrimSpace(name)
	if name == "" {
		return []*media.Item{}, nil
	}
	items, err := e.store.SearchByName(ctx, store.NameRequest{
		Name:     name,
		SourceID: strings.TrimSpace(sourceID),
		Style:    strings.TrimSpace(style),
		Limit:    opts.Limit,
	})
	e.observe(telemetry.QueryKindName, name, len(items), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*media.Item{}
	}
	return items, nil
}

// GetVariants returns every item sharing the group key with styles sorted,
// or nil when the group does not exist. Nil preferences use the engine's.
func (e *Engine) GetVariants(ctx context.Context, sourceID, canonicalName string, preferences []string) (*media.Group, error) {
	items, err := e.store.Variants(ctx, sourceID, canonicalName)
	if err != nil {
		return nil, err
	}
	if preferences == nil {
		preferences = e.config.Preferences
	}
	return media.NewGroup(items, preferences, true), nil
}

// ListSources returns every indexed source, sorted.
func (e *Engine) ListSources(ctx context.Context) ([]string, error) {
	return e.store.Sources(ctx)
}

// ListStyles returns the distinct styles of one source, or of all sources
// when sourceID is empty, sorted.
func (e *Engine) ListStyles(ctx context.Context, sourceID string) ([]string, error) {
	return e.store.Styles(ctx, sourceID)
}

// Count returns the number of items, or of variant groups when grouped is
// set, in one source or all sources.
func (e *Engine) Count(ctx context.Context, sourceID string, grouped bool) (int, error) {
	return e.store.Count(ctx, sourceID, grouped)
}

// Stats summarizes the index.
func (e *Engine) Stats(ctx context.Context) (*EngineStats, error) {
	stats := &EngineStats{}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := e.store.SourceCounts(gctx)
		if err != nil {
			return err
		}
		stats.Sources = counts
		for _, n := range counts {
			stats.Items += n
		}
		return nil
	})
	g.Go(func() error {
		n, err := e.store.Count(gctx, "", true)
		stats.Groups = n
		return err
	})
	g.Go(func() error {
		styles, err := e.store.Styles(gctx, "")
		stats.Styles = styles
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if e.items != nil {
		stats.CachedResults = e.items.Len() + e.groups.Len()
	}
	return stats, nil
}

// PurgeCache drops every cached result set.
func (e *Engine) PurgeCache() {
	if e.items != nil {
		e.items.Purge()
		e.groups.Purge()
	}
}

// applyDefaults fills Limit and Preferences. Call after validate.
func (e *Engine) applyDefaults(opts SearchOptions) SearchOptions {
	if opts.Limit == 0 {
		opts.Limit = e.config.DefaultLimit
	}
	if opts.Preferences == nil {
		opts.Preferences = e.config.Preferences
	}
	return opts
}

func (e *Engine) observe(kind telemetry.QueryKind, query string, results int, d time.Duration, err error) {
	e.metrics.ObserveQuery(string(kind), d, results, err)
	if err != nil {
		e.logger.Warn("search_failed",
			slog.String("kind", string(kind)),
			slog.String("query", query),
			slog.String("error", err.Error()))
		return
	}
	e.insights.Record(telemetry.QueryEvent{
		Query:       query,
		Kind:        kind,
		ResultCount: results,
		Latency:     d,
	})
	e.logger.Debug("search_complete",
		slog.String("kind", string(kind)),
		slog.String("query", query),
		slog.Int("results", results),
		slog.Int64("duration_ms", d.Milliseconds()))
}
