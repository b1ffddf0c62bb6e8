package export

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/media"
	"github.com/Aman-CERP/mediadex/internal/telemetry"
)

// Options configures a Builder.
type Options struct {
	// OutputDir receives the export (required).
	OutputDir string

	// OverflowThreshold drops shards with more records (default: 5000).
	// A shard with exactly this many records is kept.
	OverflowThreshold int

	// Workers is the shard writer pool size (default: GOMAXPROCS).
	Workers int

	// MaxTags caps the tags per compact record (default: 5).
	MaxTags int

	Logger  *slog.Logger
	Metrics *telemetry.Metrics

	// Now stamps meta.json (default: time.Now).
	Now func() time.Time
}

// Builder writes the static index for a full item list. It reads only the
// items it is given and never the live index.
type Builder struct {
	opts Options
}

// NewBuilder creates a Builder, filling defaults.
func NewBuilder(opts Options) (*Builder, error) {
	if opts.OutputDir == "" {
		return nil, mderrors.InvalidInput("export output directory is required")
	}
	if opts.OverflowThreshold <= 0 {
		opts.OverflowThreshold = DefaultOverflowThreshold
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.MaxTags <= 0 {
		opts.MaxTags = DefaultMaxTags
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Builder{opts: opts}, nil
}

// Build writes every file of the export and returns its statistics. Shards
// left over from a previous export that are not in the new manifest are
// removed.
func (b *Builder) Build(ctx context.Context, items []*media.Item, sources SourceMetaMap, thumbs ThumbnailMap) (*Stats, error) {
	start := time.Now()
	out := b.opts.OutputDir
	searchDir := filepath.Join(out, SearchDir)
	if err := os.MkdirAll(searchDir, 0755); err != nil {
		return nil, mderrors.ExportError(searchDir, err)
	}

	stats := &Stats{TotalItems: len(items), Overflowed: []Overflow{}}

	sourceIndex := buildSourceIndex(items, sources)
	if err := writeJSON(filepath.Join(out, "sources.json"), sourceIndex, false); err != nil {
		return nil, err
	}
	stats.Sources = len(sourceIndex)

	licenseIndex := buildLicenseIndex(items)
	if err := writeJSON(filepath.Join(out, "licenses.json"), licenseIndex, false); err != nil {
		return nil, err
	}
	stats.Licenses = len(licenseIndex)

	tagIndex := buildTagIndex(items)
	if err := writeJSON(filepath.Join(out, "tags.json"), tagIndex, false); err != nil {
		return nil, err
	}
	stats.Tags = len(tagIndex)

	buckets := b.buildBuckets(items, thumbs)
	manifest, overflowed := b.partition(buckets)
	stats.Overflowed = overflowed

	if err := b.writeShards(ctx, searchDir, manifest, buckets); err != nil {
		return nil, err
	}
	if err := writeJSON(filepath.Join(searchDir, ManifestFile), manifest, false); err != nil {
		return nil, err
	}
	stats.PrefixFiles = len(manifest)

	removed, err := removeStaleShards(searchDir, manifest)
	if err != nil {
		return nil, err
	}
	stats.Removed = removed

	meta := Meta{
		Version:   FormatVersion,
		Generated: b.opts.Now().UTC().Truncate(time.Second),
		Stats:     stats,
	}
	if err := writeJSON(filepath.Join(out, "meta.json"), meta, false); err != nil {
		return nil, err
	}

	d := time.Since(start)
	b.opts.Metrics.ObserveExport(stats.PrefixFiles, len(overflowed), d)
	b.opts.Logger.Info("export_complete",
		slog.String("output", out),
		slog.Int("items", stats.TotalItems),
		slog.Int("shards", stats.PrefixFiles),
		slog.Int("overflowed", len(overflowed)),
		slog.Int("removed", removed),
		slog.Int64("duration_ms", d.Milliseconds()))
	return stats, nil
}

// buildSourceIndex aggregates counts and tags per source, sorted by id.
func buildSourceIndex(items []*media.Item, sources SourceMetaMap) []SourceEntry {
	counts := make(map[string]int)
	tags := make(map[string]map[string]struct{})
	for _, it := range items {
		counts[it.SourceID]++
		set, ok := tags[it.SourceID]
		if !ok {
			set = make(map[string]struct{})
			tags[it.SourceID] = set
		}
		for _, t := range it.Tags {
			set[t] = struct{}{}
		}
	}

	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	entries := make([]SourceEntry, 0, len(ids))
	for _, id := range ids {
		entry := SourceEntry{
			ID:      id,
			Name:    id,
			Count:   counts[id],
			Type:    DefaultSourceType,
			Tags:    sortedKeys(tags[id]),
			License: UnknownLicense,
		}
		if meta := sources[id]; meta != nil {
			if meta.Name != "" {
				entry.Name = meta.Name
			}
			if meta.Type != "" {
				entry.Type = meta.Type
			}
			if meta.License != nil {
				entry.License = meta.License.Identifier()
			}
			entry.Category = meta.Category
			entry.Subcategory = meta.Subcategory
		}
		entries = append(entries, entry)
	}
	return entries
}

// buildLicenseIndex counts items per item-level license, sorted by type.
// Items inheriting their source license are not counted.
func buildLicenseIndex(items []*media.Item) []LicenseEntry {
	counts := make(map[string]int)
	for _, it := range items {
		if id := it.LicenseID(); id != "" {
			counts[id]++
		}
	}
	entries := make([]LicenseEntry, 0, len(counts))
	for _, id := range sortedKeys(counts) {
		entries = append(entries, LicenseEntry{Type: id, Count: counts[id]})
	}
	return entries
}

// buildTagIndex counts items per tag, most frequent first, then by tag.
func buildTagIndex(items []*media.Item) []TagEntry {
	counts := make(map[string]int)
	for _, it := range items {
		for _, t := range it.Tags {
			counts[t]++
		}
	}
	entries := make([]TagEntry, 0, len(counts))
	for tag, n := range counts {
		entries = append(entries, TagEntry{Tag: tag, Count: n})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Tag < entries[j].Tag
	})
	return entries
}

// compact builds the shard record of an item. The preview comes from the
// thumbnail map first, then the metadata preview URL.
func (b *Builder) compact(it *media.Item, thumbs ThumbnailMap) Record {
	id := it.ID()
	n := min(len(it.Tags), b.opts.MaxTags)
	tags := make([]string, n)
	copy(tags, it.Tags[:n])
	rec := Record{
		ID:      id,
		Name:    it.Name,
		Source:  it.SourceID,
		Tags:    tags,
		Terms:   extraTerms(it, tags),
		Style:   it.Style,
		License: it.LicenseID(),
	}
	if it.Canonical() != it.Name {
		rec.Canonical = it.Canonical()
	}
	if p := thumbs[id]; p != "" {
		rec.Preview = p
	} else {
		rec.Preview = it.Metadata.PreviewURL
	}
	return rec
}

// extraTerms returns the lowercased search terms of an item that neither
// its name nor the kept tags carry: overflow tags, aliases and markdown.
func extraTerms(it *media.Item, kept []string) []string {
	covered := make(map[string]struct{}, 1+len(kept))
	covered[strings.ToLower(it.Name)] = struct{}{}
	for _, t := range kept {
		covered[strings.ToLower(t)] = struct{}{}
	}
	var extra []string
	for _, term := range media.SearchTerms(it) {
		if _, ok := covered[term]; !ok {
			extra = append(extra, term)
		}
	}
	return extra
}

// buildBuckets appends each item's record once to every prefix key of its
// search terms. Records keep item input order.
func (b *Builder) buildBuckets(items []*media.Item, thumbs ThumbnailMap) map[string][]Record {
	buckets := make(map[string][]Record)
	for _, it := range items {
		keys := media.ItemPrefixKeys(it)
		if len(keys) == 0 {
			continue
		}
		rec := b.compact(it, thumbs)
		for _, k := range keys {
			buckets[k] = append(buckets[k], rec)
		}
	}
	return buckets
}

// partition splits buckets into the sorted manifest and the overflowed
// prefixes, logging each overflow.
func (b *Builder) partition(buckets map[string][]Record) ([]ManifestEntry, []Overflow) {
	manifest := make([]ManifestEntry, 0, len(buckets))
	overflowed := []Overflow{}
	for _, prefix := range sortedKeys(buckets) {
		n := len(buckets[prefix])
		if n > b.opts.OverflowThreshold {
			b.opts.Logger.Warn("export_prefix_overflow",
				slog.String("prefix", prefix),
				slog.Int("count", n),
				slog.Int("threshold", b.opts.OverflowThreshold))
			overflowed = append(overflowed, Overflow{Prefix: prefix, Count: n})
			continue
		}
		manifest = append(manifest, ManifestEntry{Prefix: prefix, Count: n})
	}
	return manifest, overflowed
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// shardFile returns the file name of a prefix shard.
func shardFile(prefix string) string {
	return fmt.Sprintf("%s.json", prefix)
}
