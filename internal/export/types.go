// Package export builds the static, sharded search index: side indexes for
// sources, licenses and tags, plus one JSON shard per two-character key that
// a client can search by substring without a server.
//
// Output layout:
//
//	meta.json
//	sources.json
//	licenses.json
//	tags.json
//	search/_manifest.json
//	search/<prefix>.json
package export

import (
	"time"

	"github.com/Aman-CERP/mediadex/internal/media"
)

// FormatVersion is written to meta.json.
const FormatVersion = 1

const (
	// DefaultOverflowThreshold is the largest shard that is still written.
	DefaultOverflowThreshold = 5000

	// DefaultMaxTags is the number of tags kept per compact record.
	DefaultMaxTags = 5

	// DefaultSourceType applies when source metadata names no type.
	DefaultSourceType = "git"

	// UnknownLicense is reported for sources without a license.
	UnknownLicense = "unknown"

	// SearchDir is the shard directory under the output dir.
	SearchDir = "search"

	// ManifestFile lists the emitted shards inside SearchDir.
	ManifestFile = "_manifest.json"
)

// SourceMeta is caller-supplied display metadata for one source.
type SourceMeta struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Type        string         `json:"type" yaml:"type"`
	License     *media.License `json:"license,omitempty" yaml:"license,omitempty"`
	Category    string         `json:"category,omitempty" yaml:"category,omitempty"`
	Subcategory string         `json:"subcategory,omitempty" yaml:"subcategory,omitempty"`
}

// SourceMetaMap maps source ID to its metadata.
type SourceMetaMap map[string]*SourceMeta

// ThumbnailMap maps item ID to a relative path or absolute preview URL.
type ThumbnailMap map[string]string

// SourceEntry is one element of sources.json.
type SourceEntry struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Count       int      `json:"count"`
	Type        string   `json:"type"`
	Tags        []string `json:"tags"`
	License     string   `json:"license"`
	Category    string   `json:"category,omitempty"`
	Subcategory string   `json:"subcategory,omitempty"`
}

// LicenseEntry is one element of licenses.json.
type LicenseEntry struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// TagEntry is one element of tags.json.
type TagEntry struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// ManifestEntry describes one emitted shard.
type ManifestEntry struct {
	Prefix string `json:"prefix"`
	Count  int    `json:"count"`
}

// Record is the compact item form stored in shards.
type Record struct {
	ID     string   `json:"id"`
	Name   string   `json:"n"`
	Source string   `json:"s"`
	Tags   []string `json:"t"`
	// Terms holds the lowercased search terms not carried by Name or Tags,
	// so a client matches every term the record was sharded under.
	Terms []string `json:"a,omitempty"`
	// Canonical is set only when the grouping name differs from Name.
	Canonical string `json:"c,omitempty"`
	Style     string `json:"y,omitempty"`
	Preview   string `json:"p,omitempty"`
	License   string `json:"l,omitempty"`
}

// GroupKey returns the same key the query engine groups by.
func (r *Record) GroupKey() string {
	if r.Canonical != "" {
		return media.GroupKey(r.Source, r.Canonical)
	}
	return media.GroupKey(r.Source, r.Name)
}

// Overflow is a prefix dropped for exceeding the threshold.
type Overflow struct {
	Prefix string `json:"prefix"`
	Count  int    `json:"count"`
}

// Stats summarizes one export.
type Stats struct {
	TotalItems  int        `json:"total_items"`
	Sources     int        `json:"sources"`
	Licenses    int        `json:"licenses"`
	Tags        int        `json:"tags"`
	PrefixFiles int        `json:"prefix_files"`
	Removed     int        `json:"removed_files"`
	Overflowed  []Overflow `json:"overflowed"`
}

// Meta is the content of meta.json.
type Meta struct {
	Version   int       `json:"version"`
	Generated time.Time `json:"generated"`
	Stats     *Stats    `json:"stats"`
}
