package export

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/media"
	"github.com/Aman-CERP/mediadex/internal/search"
	"github.com/Aman-CERP/mediadex/internal/store"
	"github.com/Aman-CERP/mediadex/internal/telemetry"
)

func unitedStates() *media.Item {
	return &media.Item{
		SourceID: "flags",
		Path:     "us.svg",
		Name:     "flag: United States",
		Format:   "svg",
		Tags:     []string{"flag", "US", "america"},
	}
}

func catalog() []*media.Item {
	return []*media.Item{
		unitedStates(),
		germany(),
		{SourceID: "emoji", Path: "us.png", Name: "United States", Format: "png", Tags: []string{"us", "country"},
			License: &media.License{SPDX: "CC-BY-4.0"}},
		{SourceID: "icons", Path: "outline/bus.svg", Name: "bus", Format: "svg", Style: "outline", Tags: []string{"transport"}},
		{SourceID: "icons", Path: "solid/bus.svg", Name: "bus", Format: "svg", Style: "solid", Tags: []string{"transport"}},
		{SourceID: "icons", Path: "outline/user.svg", Name: "user", Format: "svg", Style: "outline", Tags: []string{"person"}},
	}
}

func exportCatalog(t *testing.T, items []*media.Item) string {
	t.Helper()
	dir := t.TempDir()
	sources := SourceMetaMap{
		"flags": {ID: "flags", Name: "Flags", License: &media.License{SPDX: "MIT"}},
		"icons": {ID: "icons", Name: "Icons", License: &media.License{SPDX: "Apache-2.0"}},
	}
	_, err := newTestBuilder(t, dir).Build(context.Background(), items, sources, nil)
	require.NoError(t, err)
	return dir
}

func recordIDs(records []Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func TestOpenMatcher_MissingExport(t *testing.T) {
	_, err := OpenMatcher(t.TempDir(), MatcherOptions{})
	require.Error(t, err)
	assert.Equal(t, mderrors.ErrCodeExportRead, mderrors.GetCode(err))
}

func TestMatcher_SubstringOverNameAndTags(t *testing.T) {
	m, err := OpenMatcher(exportCatalog(t, catalog()), MatcherOptions{})
	require.NoError(t, err)

	result, err := m.Match("US", MatchFilter{})
	require.NoError(t, err)

	assert.Equal(t, "us", result.Prefix)
	names := make([]string, 0, len(result.Records))
	for _, r := range result.Records {
		names = append(names, r.Name)
	}
	assert.ElementsMatch(t, []string{"flag: United States", "United States", "bus", "bus", "user"}, names)
}

func TestMatcher_ShortQuery(t *testing.T) {
	m, err := OpenMatcher(exportCatalog(t, catalog()), MatcherOptions{})
	require.NoError(t, err)

	for _, q := range []string{"", "u", " b "} {
		result, err := m.Match(q, MatchFilter{})
		require.NoError(t, err)
		assert.Empty(t, result.Records, q)
	}
}

func TestMatcher_LongerQueryNarrows(t *testing.T) {
	m, err := OpenMatcher(exportCatalog(t, catalog()), MatcherOptions{})
	require.NoError(t, err)

	result, err := m.Match("user", MatchFilter{})
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "user", result.Records[0].Name)

	result, err = m.Match("zz", MatchFilter{})
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.False(t, result.Overflowed)
}

func TestMatcher_Filters(t *testing.T) {
	m, err := OpenMatcher(exportCatalog(t, catalog()), MatcherOptions{})
	require.NoError(t, err)

	tests := []struct {
		name   string
		filter MatchFilter
		want   []string
	}{
		{"include source", MatchFilter{IncludeSources: []string{"flags"}}, []string{"flag: United States"}},
		{"exclude source", MatchFilter{ExcludeSources: []string{"icons", "flags"}}, []string{"United States"}},
		{"item license", MatchFilter{IncludeLicenses: []string{"CC-BY-4.0"}}, []string{"United States"}},
		{"source license fallback", MatchFilter{IncludeLicenses: []string{"MIT"}}, []string{"flag: United States"}},
		{"exclude license", MatchFilter{ExcludeLicenses: []string{"Apache-2.0", "MIT"}}, []string{"United States"}},
		{"limit", MatchFilter{IncludeSources: []string{"icons"}, Limit: 2}, []string{"bus", "bus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := m.Match("us", tt.filter)
			require.NoError(t, err)
			var names []string
			for _, r := range result.Records {
				names = append(names, r.Name)
			}
			assert.ElementsMatch(t, tt.want, names)
		})
	}
}

func TestMatcher_ReportsOverflow(t *testing.T) {
	dir := t.TempDir()
	b, err := NewBuilder(Options{OutputDir: dir, OverflowThreshold: 1})
	require.NoError(t, err)
	_, err = b.Build(context.Background(), []*media.Item{
		{SourceID: "s", Path: "1", Name: "ab", Format: "svg"},
		{SourceID: "s", Path: "2", Name: "ab", Format: "svg"},
	}, nil, nil)
	require.NoError(t, err)

	m, err := OpenMatcher(dir, MatcherOptions{})
	require.NoError(t, err)
	result, err := m.Match("ab", MatchFilter{})
	require.NoError(t, err)

	assert.True(t, result.Overflowed)
	assert.Empty(t, result.Records)
	assert.Equal(t, 0, m.Prefixes())
}

func TestMatcher_MatchGrouped(t *testing.T) {
	m, err := OpenMatcher(exportCatalog(t, catalog()), MatcherOptions{})
	require.NoError(t, err)

	groups, err := m.MatchGrouped("bus", MatchFilter{}, []string{"solid", "outline"})
	require.NoError(t, err)

	require.Len(t, groups, 1)
	assert.Equal(t, "icons", groups[0].SourceID)
	assert.Equal(t, "bus", groups[0].Name)
	assert.ElementsMatch(t, []string{"outline", "solid"}, groups[0].Styles)
	assert.Equal(t, "solid", groups[0].DefaultStyle)
	assert.Len(t, groups[0].Records, 2)

	// Absent preference falls back to the first style, every time.
	a, err := m.MatchGrouped("bus", MatchFilter{}, []string{"regular"})
	require.NoError(t, err)
	b, err := m.MatchGrouped("bus", MatchFilter{}, []string{"regular"})
	require.NoError(t, err)
	assert.Equal(t, groups[0].Styles[0], a[0].DefaultStyle)
	assert.Equal(t, a[0].DefaultStyle, b[0].DefaultStyle)
}

func TestMatcher_ShardCache(t *testing.T) {
	insights := telemetry.NewQueryInsights(telemetry.DefaultInsightsConfig())
	m, err := OpenMatcher(exportCatalog(t, catalog()), MatcherOptions{CacheSize: 1, Insights: insights})
	require.NoError(t, err)

	first, err := m.Match("us", MatchFilter{})
	require.NoError(t, err)
	second, err := m.Match("us", MatchFilter{})
	require.NoError(t, err)

	assert.Equal(t, first.Records, second.Records)
	assert.Equal(t, int64(2), insights.Snapshot().TotalQueries)
}

// Both search modes must agree on items tagged exactly "us".
func TestCrossModeAgreement_US(t *testing.T) {
	ctx := context.Background()
	items := catalog()

	// Given: the catalog in the live index
	s, err := store.Open("", store.BackendSQLite, store.DefaultOptions())
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Upsert(ctx, items)
	require.NoError(t, err)
	engine, err := search.NewEngine(s, search.DefaultConfig())
	require.NoError(t, err)

	// And: the same catalog exported
	m, err := OpenMatcher(exportCatalog(t, items), MatcherOptions{})
	require.NoError(t, err)

	// When: querying "us" both ways
	live, err := engine.Search(ctx, "us", search.SearchOptions{Tags: []string{"us"}, Limit: search.MaxLimit})
	require.NoError(t, err)
	static, err := m.Match("us", MatchFilter{})
	require.NoError(t, err)

	liveIDs := make(map[string]bool)
	for _, r := range live {
		liveIDs[r.Item.ID()] = true
	}
	staticIDs := make(map[string]bool)
	for _, id := range recordIDs(static.Records) {
		staticIDs[id] = true
	}

	// Then: every exact "us" item is present in both
	var exact int
	for _, it := range items {
		hasUS := false
		for _, tag := range it.Tags {
			if tag == "us" || tag == "US" {
				hasUS = true
			}
		}
		if !hasUS {
			continue
		}
		exact++
		assert.True(t, liveIDs[it.ID()], "live index missing %s", it.Name)
		assert.True(t, staticIDs[it.ID()], "static shard missing %s", it.Name)
	}
	assert.Equal(t, 2, exact)

	// And: group membership agrees for the grouped variants
	groups, err := engine.SearchGrouped(ctx, "bus", search.SearchOptions{})
	require.NoError(t, err)
	static, err = m.Match("bus", MatchFilter{})
	require.NoError(t, err)
	staticGroups := GroupRecords(static.Records, nil)
	require.Len(t, groups, 1)
	require.Len(t, staticGroups, 1)
	assert.Equal(t, groups[0].GroupKey(), staticGroups[0].Records[0].GroupKey())
	assert.ElementsMatch(t, groups[0].Styles, staticGroups[0].Styles)
}

func TestMatcher_MatchesTermsBeyondKeptTags(t *testing.T) {
	// Given: an item tagged "us" only in its sixth tag and one known as "us"
	// only through its markdown shortcode
	sixthTag := &media.Item{
		SourceID: "flags", Path: "us-alt.svg", Name: "flag alt", Format: "svg",
		Tags: []string{"flag", "alt", "banner", "stars", "stripes", "us"},
	}
	shortcode := &media.Item{
		SourceID: "emoji", Path: "1f1fa-1f1f8.png", Name: "flag", Format: "png",
		Metadata: media.Metadata{Kind: media.KindEmoji, Markdown: "us"},
	}
	m, err := OpenMatcher(exportCatalog(t, []*media.Item{sixthTag, shortcode}), MatcherOptions{})
	require.NoError(t, err)

	// When: the static client queries "us"
	result, err := m.Match("us", MatchFilter{})
	require.NoError(t, err)

	// Then: both items sharded under "us" are returned
	assert.ElementsMatch(t, []string{sixthTag.ID(), shortcode.ID()}, recordIDs(result.Records))
}

// An item reachable through a capped-away tag or an alias must surface in
// both the live index and the static shards.
func TestCrossModeAgreement_TermsBeyondKeptTags(t *testing.T) {
	ctx := context.Background()
	sixthTag := &media.Item{
		SourceID: "flags", Path: "us-alt.svg", Name: "flag alt", Format: "svg",
		Tags: []string{"flag", "alt", "banner", "stars", "stripes", "us"},
	}
	alias := &media.Item{
		SourceID: "emoji", Path: "1f1fa-1f1f8.png", Name: "flag", Format: "png",
		Metadata: media.Metadata{Kind: media.KindEmoji, Aliases: []string{"us"}},
	}
	items := []*media.Item{sixthTag, alias}

	// Given: the items in the live index and in an export
	s, err := store.Open("", store.BackendSQLite, store.DefaultOptions())
	require.NoError(t, err)
	defer s.Close()
	_, err = s.Upsert(ctx, items)
	require.NoError(t, err)
	engine, err := search.NewEngine(s, search.DefaultConfig())
	require.NoError(t, err)
	m, err := OpenMatcher(exportCatalog(t, items), MatcherOptions{})
	require.NoError(t, err)

	// When: querying "us" both ways
	live, err := engine.Search(ctx, "us", search.SearchOptions{Limit: search.MaxLimit})
	require.NoError(t, err)
	static, err := m.Match("us", MatchFilter{})
	require.NoError(t, err)

	// Then: both modes return both items
	liveIDs := make([]string, 0, len(live))
	for _, r := range live {
		liveIDs = append(liveIDs, r.Item.ID())
	}
	assert.ElementsMatch(t, []string{sixthTag.ID(), alias.ID()}, liveIDs)
	assert.ElementsMatch(t, []string{sixthTag.ID(), alias.ID()}, recordIDs(static.Records))
}
