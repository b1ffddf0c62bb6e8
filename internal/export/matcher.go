package export

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/media"
	"github.com/Aman-CERP/mediadex/internal/telemetry"
)

// DefaultShardCacheSize is the number of decoded shards a Matcher keeps.
const DefaultShardCacheSize = 64

// MatchFilter narrows static matches. Empty lists do not filter.
type MatchFilter struct {
	IncludeSources  []string
	ExcludeSources  []string
	IncludeLicenses []string
	ExcludeLicenses []string

	// Limit caps the records (or groups) returned; 0 returns all.
	Limit int
}

// MatchResult is the outcome of one static lookup.
type MatchResult struct {
	Query   string   `json:"query"`
	Prefix  string   `json:"prefix"`
	Records []Record `json:"records"`

	// Overflowed is set when the prefix shard was dropped at export time;
	// the client needs a query whose first two runes are less common.
	Overflowed bool `json:"overflowed,omitempty"`
}

// RecordGroup collects the records sharing a group key.
type RecordGroup struct {
	SourceID     string   `json:"source_id"`
	Name         string   `json:"name"`
	Records      []Record `json:"records"`
	Styles       []string `json:"styles"`
	DefaultStyle string   `json:"default_style,omitempty"`
}

// MatcherOptions configures a Matcher.
type MatcherOptions struct {
	// CacheSize is the number of shards kept decoded (default: 64).
	CacheSize int

	Metrics  *telemetry.Metrics
	Insights *telemetry.QueryInsights
}

// Matcher is the reference client matcher over an export directory. It
// reproduces what a browser does with the files: pick the shard for the
// query's first two runes, then substring-match names and tags.
type Matcher struct {
	dir        string
	manifest   map[string]int
	overflowed map[string]struct{}
	sources    map[string]SourceEntry
	shards     *lru.Cache[string, []Record]
	metrics    *telemetry.Metrics
	insights   *telemetry.QueryInsights
}

// OpenMatcher loads the manifest and side indexes of the export in dir.
func OpenMatcher(dir string, opts MatcherOptions) (*Matcher, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultShardCacheSize
	}

	var manifest []ManifestEntry
	if err := readJSON(filepath.Join(dir, SearchDir, ManifestFile), &manifest); err != nil {
		return nil, readError(dir, err)
	}
	var sources []SourceEntry
	if err := readJSON(filepath.Join(dir, "sources.json"), &sources); err != nil {
		return nil, readError(dir, err)
	}
	var meta Meta
	if err := readJSON(filepath.Join(dir, "meta.json"), &meta); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, readError(dir, err)
	}

	m := &Matcher{
		dir:        dir,
		manifest:   make(map[string]int, len(manifest)),
		overflowed: make(map[string]struct{}),
		sources:    make(map[string]SourceEntry, len(sources)),
		metrics:    opts.Metrics,
		insights:   opts.Insights,
	}
	for _, e := range manifest {
		m.manifest[e.Prefix] = e.Count
	}
	for _, s := range sources {
		m.sources[s.ID] = s
	}
	if meta.Stats != nil {
		for _, o := range meta.Stats.Overflowed {
			m.overflowed[o.Prefix] = struct{}{}
		}
	}
	m.shards, _ = lru.New[string, []Record](opts.CacheSize)
	return m, nil
}

func readError(dir string, err error) error {
	if mderrors.GetCode(err) != "" {
		return err
	}
	return mderrors.New(mderrors.ErrCodeExportRead, "failed to read static index", err).
		WithDetail("path", dir).
		WithSuggestion("run 'mediadex export' first")
}

// Prefixes returns the number of shards listed in the manifest.
func (m *Matcher) Prefixes() int {
	return len(m.manifest)
}

// Match returns the records whose name or any tag contains the lowercased
// query, in shard order. Queries shorter than two runes match nothing.
func (m *Matcher) Match(query string, f MatchFilter) (*MatchResult, error) {
	start := time.Now()
	result, err := m.match(query, f)
	n := 0
	if result != nil {
		n = len(result.Records)
	}
	m.observe(query, n, time.Since(start), err)
	return result, err
}

func (m *Matcher) match(query string, f MatchFilter) (*MatchResult, error) {
	q := strings.ToLower(strings.TrimSpace(query))
	result := &MatchResult{Query: q, Records: []Record{}}

	prefix := media.QueryPrefixKey(q)
	if prefix == "" {
		return result, nil
	}
	result.Prefix = prefix

	if _, ok := m.manifest[prefix]; !ok {
		_, result.Overflowed = m.overflowed[prefix]
		return result, nil
	}

	records, err := m.shard(prefix)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		if !recordMatches(rec, q) || !m.allowed(rec, f) {
			continue
		}
		result.Records = append(result.Records, rec)
		if f.Limit > 0 && len(result.Records) == f.Limit {
			break
		}
	}
	return result, nil
}

// MatchGrouped collapses the matches by group key in first-seen order and
// resolves each group's default style from preferences.
func (m *Matcher) MatchGrouped(query string, f MatchFilter, preferences []string) ([]*RecordGroup, error) {
	limit := f.Limit
	f.Limit = 0
	result, err := m.Match(query, f)
	if err != nil {
		return nil, err
	}
	groups := GroupRecords(result.Records, preferences)
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	return groups, nil
}

// GroupRecords groups records by group key in first-seen order. Styles keep
// first-seen order within each group.
func GroupRecords(records []Record, preferences []string) []*RecordGroup {
	var groups []*RecordGroup
	byKey := make(map[string]*RecordGroup)
	for _, rec := range records {
		key := rec.GroupKey()
		g, ok := byKey[key]
		if !ok {
			name := rec.Name
			if rec.Canonical != "" {
				name = rec.Canonical
			}
			g = &RecordGroup{SourceID: rec.Source, Name: name, Styles: []string{}}
			byKey[key] = g
			groups = append(groups, g)
		}
		g.Records = append(g.Records, rec)
		if rec.Style != "" && !contains(g.Styles, rec.Style) {
			g.Styles = append(g.Styles, rec.Style)
		}
	}
	for _, g := range groups {
		g.DefaultStyle = media.ResolveDefaultStyle(g.Styles, preferences)
	}
	return groups
}

func (m *Matcher) shard(prefix string) ([]Record, error) {
	if records, ok := m.shards.Get(prefix); ok {
		m.metrics.ObserveCache("shards", true)
		return records, nil
	}
	m.metrics.ObserveCache("shards", false)

	var records []Record
	err := readJSON(filepath.Join(m.dir, SearchDir, shardFile(prefix)), &records)
	m.metrics.ObserveShardLoad(err)
	if err != nil {
		return nil, readError(m.dir, err)
	}
	m.shards.Add(prefix, records)
	return records, nil
}

// recordMatches applies the substring rule to the record name, tags and
// extra terms.
func recordMatches(rec Record, q string) bool {
	if strings.Contains(strings.ToLower(rec.Name), q) {
		return true
	}
	for _, t := range rec.Tags {
		if strings.Contains(strings.ToLower(t), q) {
			return true
		}
	}
	return media.MatchesTerms(q, rec.Terms)
}

// allowed applies source and license filters. A record without its own
// license falls back to its source's license.
func (m *Matcher) allowed(rec Record, f MatchFilter) bool {
	if len(f.IncludeSources) > 0 && !contains(f.IncludeSources, rec.Source) {
		return false
	}
	if contains(f.ExcludeSources, rec.Source) {
		return false
	}
	if len(f.IncludeLicenses) == 0 && len(f.ExcludeLicenses) == 0 {
		return true
	}
	license := rec.License
	if license == "" {
		license = m.sources[rec.Source].License
	}
	if len(f.IncludeLicenses) > 0 && !contains(f.IncludeLicenses, license) {
		return false
	}
	return !contains(f.ExcludeLicenses, license)
}

func (m *Matcher) observe(query string, results int, d time.Duration, err error) {
	m.metrics.ObserveQuery(string(telemetry.QueryKindStatic), d, results, err)
	if err == nil {
		m.insights.Record(telemetry.QueryEvent{
			Query:       query,
			Kind:        telemetry.QueryKindStatic,
			ResultCount: results,
			Latency:     d,
		})
	}
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}
