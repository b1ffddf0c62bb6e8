// Package store provides the persistent media index: a record store keyed by
// item id plus a full-text index over the searchable fields, kept in step on
// every write. Two backends exist, SQLite FTS5 (default) and Bleve.
package store

import (
	"context"
	"log/slog"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/media"
)

// Filter narrows a text search. Empty fields do not filter.
type Filter struct {
	// SourceID is an exact match on the item's source.
	SourceID string
	// Tags matches when any entry is a case-insensitive substring of the
	// item's space-joined tags.
	Tags []string
	// Formats and Styles are exact set membership.
	Formats []string
	Styles  []string
}

// SearchRequest is a ranked text query with filters and pagination.
type SearchRequest struct {
	Query  string
	Filter Filter
	// Limit <= 0 returns every match.
	Limit  int
	Offset int
}

// NameRequest selects items whose canonical name contains Name, ignoring
// case. An empty Name selects every item.
type NameRequest struct {
	Name     string
	SourceID string
	Style    string
	// Limit <= 0 returns every match.
	Limit int
}

// ScoredItem is one ranked hit. Higher Score is a better match.
type ScoredItem struct {
	Item  *media.Item
	Score float64
}

// ItemStore is the persistent index of media items.
//
// Writes are transactional per call: a reader sees either the state before
// or the state after, never a partially applied batch. Lookups report a
// missing entity as nil with no error.
type ItemStore interface {
	// Upsert inserts or replaces items by id and returns the number written.
	Upsert(ctx context.Context, items []*media.Item) (int, error)

	// DeleteSource removes every item of a source.
	DeleteSource(ctx context.Context, sourceID string) (int, error)

	// ReplaceSource removes a source's items and inserts items in one
	// transaction.
	ReplaceSource(ctx context.Context, sourceID string, items []*media.Item) (removed, added int, err error)

	// Clear removes everything.
	Clear(ctx context.Context) error

	// Search runs a ranked prefix-OR text query. Results are ordered by score
	// descending with ties broken by id ascending.
	Search(ctx context.Context, req SearchRequest) ([]*ScoredItem, error)

	// SearchByName returns the items selected by req ordered by source,
	// canonical name, style then id.
	SearchByName(ctx context.Context, req NameRequest) ([]*media.Item, error)

	Get(ctx context.Context, id string) (*media.Item, error)

	// Variants returns every item of a group ordered by style then id.
	Variants(ctx context.Context, sourceID, canonicalName string) ([]*media.Item, error)

	// Sources returns the distinct source ids, sorted.
	Sources(ctx context.Context) ([]string, error)

	// Styles returns distinct non-empty styles, sorted, optionally for one source.
	Styles(ctx context.Context, sourceID string) ([]string, error)

	// Count returns the number of items, or of distinct groups when grouped.
	Count(ctx context.Context, sourceID string, grouped bool) (int, error)

	// SourceCounts returns item counts by source.
	SourceCounts(ctx context.Context) (map[string]int, error)

	// RecordIDs returns every id in the record store, sorted.
	RecordIDs(ctx context.Context) ([]string, error)

	// TextIDs returns the record ids that have a text index entry, sorted.
	// A text entry with no record is reported as "rowid:<n>".
	TextIDs(ctx context.Context) ([]string, error)

	// RebuildText regenerates the text index from the record store.
	RebuildText(ctx context.Context) error

	// Generation changes whenever the stored data changes.
	Generation(ctx context.Context) (uint64, error)

	Close() error
}

// Options configures a store backend.
type Options struct {
	// CacheSizeMB is the SQLite page cache size. Ignored by Bleve.
	CacheSizeMB int

	// Logger receives corruption and recovery events.
	Logger *slog.Logger
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		CacheSizeMB: 64,
	}
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

func errClosed() error {
	return mderrors.New(mderrors.ErrCodeStoreClosed, "store is closed", nil)
}
