package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/mediadex/internal/media"
	"github.com/Aman-CERP/mediadex/internal/telemetry"
)

var fixedNow = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

func newTestBuilder(t *testing.T, dir string) *Builder {
	t.Helper()
	b, err := NewBuilder(Options{OutputDir: dir, Now: fixedNow})
	require.NoError(t, err)
	return b
}

func germany() *media.Item {
	return &media.Item{
		SourceID: "flags",
		Path:     "de.svg",
		Name:     "flag: Germany",
		Format:   "svg",
		Tags:     []string{"flag", "de", "germany"},
	}
}

func readFile[T any](t *testing.T, path string) T {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var v T
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestNewBuilder_RequiresOutputDir(t *testing.T) {
	_, err := NewBuilder(Options{})
	assert.Error(t, err)
}

// End-to-end scenario: the German flag lands in the "de" shard.
func TestBuild_FlagInDEShard(t *testing.T) {
	// Given: the German flag
	dir := t.TempDir()

	// When: exporting
	stats, err := newTestBuilder(t, dir).Build(context.Background(), []*media.Item{germany()}, nil, nil)
	require.NoError(t, err)

	// Then: de.json holds its compact record with tag "de"
	records := readFile[[]Record](t, filepath.Join(dir, SearchDir, "de.json"))
	require.Len(t, records, 1)
	assert.Equal(t, germany().ID(), records[0].ID)
	assert.Equal(t, "flag: Germany", records[0].Name)
	assert.Equal(t, "flags", records[0].Source)
	assert.Contains(t, records[0].Tags, "de")
	assert.Equal(t, 1, stats.TotalItems)
}

func TestBuild_OverflowThreshold(t *testing.T) {
	// Given: 5001 items under "qx" and exactly 5000 under "jv"
	var items []*media.Item
	for i := 0; i < 5001; i++ {
		items = append(items, &media.Item{SourceID: "s", Path: fmt.Sprintf("qx/%d", i), Name: "qx", Format: "svg"})
	}
	for i := 0; i < 5000; i++ {
		items = append(items, &media.Item{SourceID: "s", Path: fmt.Sprintf("jv/%d", i), Name: "jv", Format: "svg"})
	}
	dir := t.TempDir()

	// When: exporting with the default threshold
	stats, err := newTestBuilder(t, dir).Build(context.Background(), items, nil, nil)
	require.NoError(t, err)

	// Then: "qx" is dropped entirely and "jv" is kept
	manifest := readFile[[]ManifestEntry](t, filepath.Join(dir, SearchDir, ManifestFile))
	assert.Equal(t, []ManifestEntry{{Prefix: "jv", Count: 5000}}, manifest)
	assert.Equal(t, []Overflow{{Prefix: "qx", Count: 5001}}, stats.Overflowed)
	assert.NoFileExists(t, filepath.Join(dir, SearchDir, "qx.json"))
	assert.FileExists(t, filepath.Join(dir, SearchDir, "jv.json"))
	assert.Equal(t, 1, stats.PrefixFiles)
}

func TestBuild_DedupesPrefixesWithinItem(t *testing.T) {
	dir := t.TempDir()
	item := &media.Item{SourceID: "s", Path: "a", Name: "anna", Format: "svg", Tags: []string{"banana"}}

	_, err := newTestBuilder(t, dir).Build(context.Background(), []*media.Item{item}, nil, nil)
	require.NoError(t, err)

	records := readFile[[]Record](t, filepath.Join(dir, SearchDir, "an.json"))
	assert.Len(t, records, 1)

	manifest := readFile[[]ManifestEntry](t, filepath.Join(dir, SearchDir, ManifestFile))
	var prefixes []string
	for _, e := range manifest {
		prefixes = append(prefixes, e.Prefix)
		assert.Equal(t, 1, e.Count)
	}
	assert.Equal(t, []string{"an", "ba", "na", "nn"}, prefixes)
}

func TestBuild_MetadataTermsAreIndexed(t *testing.T) {
	dir := t.TempDir()
	item := &media.Item{
		SourceID: "emoji",
		Path:     "1f1fa-1f1f8.svg",
		Name:     "flag: United States",
		Format:   "svg",
		Metadata: media.Metadata{Kind: media.KindEmoji, Markdown: "us", Aliases: []string{"usa"}},
	}

	_, err := newTestBuilder(t, dir).Build(context.Background(), []*media.Item{item}, nil, nil)
	require.NoError(t, err)

	records := readFile[[]Record](t, filepath.Join(dir, SearchDir, "sa.json"))
	require.Len(t, records, 1)
	assert.Equal(t, item.ID(), records[0].ID)
}

func TestBuild_SideIndexes(t *testing.T) {
	dir := t.TempDir()
	items := []*media.Item{
		{SourceID: "icons", Path: "a.svg", Name: "arrow", Format: "svg", Tags: []string{"arrow", "ui"}},
		{SourceID: "icons", Path: "b.svg", Name: "bell", Format: "svg", Tags: []string{"ui"},
			License: &media.License{SPDX: "CC-BY-4.0"}},
		germany(),
	}
	sources := SourceMetaMap{
		"icons": {ID: "icons", Name: "Icon Set", Type: "archive", License: &media.License{SPDX: "MIT"},
			Category: "icons", Subcategory: "ui"},
	}

	stats, err := newTestBuilder(t, dir).Build(context.Background(), items, sources, nil)
	require.NoError(t, err)

	srcs := readFile[[]SourceEntry](t, filepath.Join(dir, "sources.json"))
	assert.Equal(t, []SourceEntry{
		{ID: "flags", Name: "flags", Count: 1, Type: "git", Tags: []string{"de", "flag", "germany"}, License: "unknown"},
		{ID: "icons", Name: "Icon Set", Count: 2, Type: "archive", Tags: []string{"arrow", "ui"}, License: "MIT",
			Category: "icons", Subcategory: "ui"},
	}, srcs)

	licenses := readFile[[]LicenseEntry](t, filepath.Join(dir, "licenses.json"))
	assert.Equal(t, []LicenseEntry{{Type: "CC-BY-4.0", Count: 1}}, licenses)

	tags := readFile[[]TagEntry](t, filepath.Join(dir, "tags.json"))
	require.NotEmpty(t, tags)
	assert.Equal(t, TagEntry{Tag: "ui", Count: 2}, tags[0])
	assert.Equal(t, TagEntry{Tag: "arrow", Count: 1}, tags[1])

	meta := readFile[map[string]any](t, filepath.Join(dir, "meta.json"))
	assert.Equal(t, float64(FormatVersion), meta["version"])
	assert.Equal(t, "2026-01-02T03:04:05Z", meta["generated"])

	assert.Equal(t, 2, stats.Sources)
	assert.Equal(t, 1, stats.Licenses)
	assert.Equal(t, 5, stats.Tags)
}

func TestBuild_CompactRecord(t *testing.T) {
	dir := t.TempDir()
	withThumb := &media.Item{
		SourceID: "photos", Path: "p1.jpg", Name: "zebra", Format: "jpg", Style: "wide",
		Tags:     []string{"a1", "a2", "a3", "a4", "a5", "a6"},
		License:  &media.License{Name: "Photo License"},
		Metadata: media.Metadata{PreviewURL: "https://cdn.example/p1.jpg"},
	}
	withPreview := &media.Item{
		SourceID: "photos", Path: "p2.jpg", Name: "zebra crossing", CanonicalName: "crossing", Format: "jpg",
		Metadata: media.Metadata{PreviewURL: "https://cdn.example/p2.jpg"},
	}
	thumbs := ThumbnailMap{withThumb.ID(): "thumbs/photos/p1_64.jpg"}

	_, err := newTestBuilder(t, dir).Build(context.Background(), []*media.Item{withThumb, withPreview}, nil, thumbs)
	require.NoError(t, err)

	records := readFile[[]Record](t, filepath.Join(dir, SearchDir, "ze.json"))
	require.Len(t, records, 2)

	assert.Equal(t, Record{
		ID: withThumb.ID(), Name: "zebra", Source: "photos",
		Tags:  []string{"a1", "a2", "a3", "a4", "a5"},
		Terms: []string{"a6"},
		Style: "wide", Preview: "thumbs/photos/p1_64.jpg", License: "Photo License",
	}, records[0])
	assert.Equal(t, "https://cdn.example/p2.jpg", records[1].Preview)
	assert.Equal(t, "crossing", records[1].Canonical)
	assert.Equal(t, []string{}, records[1].Tags)
	assert.Equal(t, "photos:crossing", records[1].GroupKey())
}

func TestBuild_UntaggedRecordHasEmptyTagArray(t *testing.T) {
	// Given: an item without tags
	dir := t.TempDir()
	item := &media.Item{SourceID: "icons", Path: "star.svg", Name: "star", Format: "svg"}

	// When: it is exported
	_, err := newTestBuilder(t, dir).Build(context.Background(), []*media.Item{item}, nil, nil)
	require.NoError(t, err)

	// Then: the raw shard carries "t":[] and no extra terms
	raw := readFile[[]map[string]json.RawMessage](t, filepath.Join(dir, SearchDir, "st.json"))
	require.Len(t, raw, 1)
	assert.Equal(t, "[]", string(raw[0]["t"]))
	assert.NotContains(t, raw[0], "a")
}

func TestBuild_ExtraTermsCarryOverflowTagsAndAliases(t *testing.T) {
	// Given: an item whose sixth tag and alias are search terms
	dir := t.TempDir()
	item := &media.Item{
		SourceID: "emoji", Path: "1f1fa-1f1f8.png", Name: "flag: United States", Format: "png",
		Tags:     []string{"flag", "country", "nation", "stars", "stripes", "Liberty"},
		Metadata: media.Metadata{Markdown: ":us:", Aliases: []string{"usa", "flag"}},
	}

	// When: it is exported with the default tag cap
	_, err := newTestBuilder(t, dir).Build(context.Background(), []*media.Item{item}, nil, nil)
	require.NoError(t, err)

	// Then: the record keeps five tags and lists the remaining terms once
	records := readFile[[]Record](t, filepath.Join(dir, SearchDir, "li.json"))
	require.Len(t, records, 1)
	assert.Len(t, records[0].Tags, DefaultMaxTags)
	assert.Equal(t, []string{"liberty", ":us:", "usa"}, records[0].Terms)
}

func TestBuild_RemovesStaleShards(t *testing.T) {
	dir := t.TempDir()
	b := newTestBuilder(t, dir)
	ctx := context.Background()

	_, err := b.Build(ctx, []*media.Item{{SourceID: "s", Path: "1", Name: "zz", Format: "svg"}}, nil, nil)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(dir, SearchDir, "zz.json"))

	// When: the next export no longer has "zz"
	stats, err := b.Build(ctx, []*media.Item{{SourceID: "s", Path: "2", Name: "yy", Format: "svg"}}, nil, nil)
	require.NoError(t, err)

	// Then: the old shard is gone
	assert.NoFileExists(t, filepath.Join(dir, SearchDir, "zz.json"))
	assert.FileExists(t, filepath.Join(dir, SearchDir, "yy.json"))
	assert.Equal(t, 1, stats.Removed)
}

func TestBuild_OutputIndependentOfWorkers(t *testing.T) {
	var items []*media.Item
	for i := 0; i < 200; i++ {
		items = append(items, &media.Item{
			SourceID: "icons",
			Path:     fmt.Sprintf("%d.svg", i),
			Name:     fmt.Sprintf("icon-%d", i),
			Format:   "svg",
			Tags:     []string{"shape", fmt.Sprintf("t%d", i%7)},
		})
	}

	build := func(workers int) string {
		dir := t.TempDir()
		b, err := NewBuilder(Options{OutputDir: dir, Workers: workers, Now: fixedNow})
		require.NoError(t, err)
		_, err = b.Build(context.Background(), items, nil, nil)
		require.NoError(t, err)
		return dir
	}
	one, many := build(1), build(8)

	entries, err := os.ReadDir(filepath.Join(one, SearchDir))
	require.NoError(t, err)
	for _, e := range entries {
		a, err := os.ReadFile(filepath.Join(one, SearchDir, e.Name()))
		require.NoError(t, err)
		b, err := os.ReadFile(filepath.Join(many, SearchDir, e.Name()))
		require.NoError(t, err)
		assert.Equal(t, string(a), string(b), e.Name())
	}
}

func TestBuild_RecordsMetrics(t *testing.T) {
	metrics := telemetry.NewMetrics(prometheus.NewRegistry())
	b, err := NewBuilder(Options{OutputDir: t.TempDir(), Metrics: metrics, OverflowThreshold: 1})
	require.NoError(t, err)

	items := []*media.Item{
		{SourceID: "s", Path: "1", Name: "ab", Format: "svg"},
		{SourceID: "s", Path: "2", Name: "ab", Format: "svg"},
		{SourceID: "s", Path: "3", Name: "cd", Format: "svg"},
	}
	_, err = b.Build(context.Background(), items, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ExportShards))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.ExportOverflowed))
}
