// Package index maintains the persistent media index: batch upserts,
// per-source replacement and removal, and consistency checks between the
// record store and its text index.
package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/media"
	"github.com/Aman-CERP/mediadex/internal/store"
	"github.com/Aman-CERP/mediadex/internal/telemetry"
)

// Config contains the injected dependencies for an Indexer.
type Config struct {
	// Store is the persistent index (required).
	Store store.ItemStore

	// IndexDir is the directory holding the index files. Lock files are
	// created under IndexDir/locks. Empty disables cross-process locking.
	IndexDir string

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics may be nil.
	Metrics *telemetry.Metrics
}

// Stats holds per-source item counts.
type Stats struct {
	Sources map[string]int `json:"sources"`
	Total   int            `json:"total"`
}

// Indexer writes media items to an ItemStore. Writers for the same source are
// serialized; each call is all-or-nothing.
type Indexer struct {
	store   store.ItemStore
	locker  *SourceLocker
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// New creates an Indexer.
func New(cfg Config) (*Indexer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lockDir := ""
	if cfg.IndexDir != "" {
		lockDir = filepath.Join(cfg.IndexDir, "locks")
	}
	return &Indexer{
		store:   cfg.Store,
		locker:  NewSourceLocker(lockDir),
		logger:  logger,
		metrics: cfg.Metrics,
	}, nil
}

// Store returns the underlying item store.
func (ix *Indexer) Store() store.ItemStore {
	return ix.store
}

// AddItems upserts items by id. Re-adding identical items leaves the index
// unchanged. Returns the number of items processed.
func (ix *Indexer) AddItems(ctx context.Context, items []*media.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	if err := validateItems(items); err != nil {
		return 0, err
	}

	release, err := ix.locker.Lock(ctx, sourceIDs(items)...)
	if err != nil {
		return 0, mderrors.New(mderrors.ErrCodeStorageUnavailable, "failed to lock sources", err)
	}
	defer release()

	start := time.Now()
	n, err := ix.store.Upsert(ctx, items)
	ix.metrics.ObserveIndexOp("upsert", singleSource(items), n, time.Since(start), err)
	if err != nil {
		return 0, err
	}

	ix.logger.Info("index_items_added",
		slog.Int("items", n),
		slog.Int("sources", len(sourceIDs(items))),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return n, nil
}

// RemoveSource deletes every item of sourceID and returns how many were
// removed. Other sources are untouched.
func (ix *Indexer) RemoveSource(ctx context.Context, sourceID string) (int, error) {
	if strings.TrimSpace(sourceID) == "" {
		return 0, mderrors.InvalidInput("source_id is required")
	}

	release, err := ix.locker.Lock(ctx, sourceID)
	if err != nil {
		return 0, mderrors.New(mderrors.ErrCodeStorageUnavailable, "failed to lock source", err).
			WithDetail("source_id", sourceID)
	}
	defer release()

	start := time.Now()
	n, err := ix.store.DeleteSource(ctx, sourceID)
	ix.metrics.ObserveIndexOp("remove_source", sourceID, 0, time.Since(start), err)
	if err != nil {
		return 0, err
	}

	ix.logger.Info("index_source_removed",
		slog.String("source_id", sourceID),
		slog.Int("removed", n))
	return n, nil
}

// ReplaceSource swaps the contents of sourceID for items in one transaction.
// Readers see either the old or the new set. Every item must belong to
// sourceID.
func (ix *Indexer) ReplaceSource(ctx context.Context, sourceID string, items []*media.Item) (removed, added int, err error) {
	if strings.TrimSpace(sourceID) == "" {
		return 0, 0, mderrors.InvalidInput("source_id is required")
	}
	if err := validateItems(items); err != nil {
		return 0, 0, err
	}
	for _, it := range items {
		if it.SourceID != sourceID {
			return 0, 0, mderrors.New(mderrors.ErrCodeSourceMismatch,
				fmt.Sprintf("item belongs to source %q, not %q", it.SourceID, sourceID), nil).
				WithDetail("path", it.Path)
		}
	}

	release, err := ix.locker.Lock(ctx, sourceID)
	if err != nil {
		return 0, 0, mderrors.New(mderrors.ErrCodeStorageUnavailable, "failed to lock source", err).
			WithDetail("source_id", sourceID)
	}
	defer release()

	start := time.Now()
	removed, added, err = ix.store.ReplaceSource(ctx, sourceID, items)
	ix.metrics.ObserveIndexOp("replace_source", sourceID, added, time.Since(start), err)
	if err != nil {
		return 0, 0, err
	}

	ix.logger.Info("index_source_replaced",
		slog.String("source_id", sourceID),
		slog.Int("removed", removed),
		slog.Int("added", added),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return removed, added, nil
}

// Clear deletes every item.
func (ix *Indexer) Clear(ctx context.Context) error {
	start := time.Now()
	err := ix.store.Clear(ctx)
	ix.metrics.ObserveIndexOp("clear", "", 0, time.Since(start), err)
	if err != nil {
		return err
	}
	ix.metrics.SetIndexedItems(nil)
	ix.logger.Info("index_cleared")
	return nil
}

// Stats returns per-source counts and their total.
func (ix *Indexer) Stats(ctx context.Context) (*Stats, error) {
	counts, err := ix.store.SourceCounts(ctx)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	ix.metrics.SetIndexedItems(counts)
	return &Stats{Sources: counts, Total: total}, nil
}

// validateItems rejects the whole batch on the first invalid item.
func validateItems(items []*media.Item) error {
	for i, it := range items {
		if it == nil {
			return mderrors.New(mderrors.ErrCodeInvalidItem, fmt.Sprintf("item %d is nil", i), nil)
		}
		if err := it.Validate(); err != nil {
			var me *mderrors.Error
			if errors.As(err, &me) {
				return me.WithDetail("index", fmt.Sprint(i))
			}
			return err
		}
	}
	return nil
}

// sourceIDs returns the distinct sources of items, sorted.
func sourceIDs(items []*media.Item) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, it := range items {
		if _, ok := seen[it.SourceID]; ok {
			continue
		}
		seen[it.SourceID] = struct{}{}
		ids = append(ids, it.SourceID)
	}
	sort.Strings(ids)
	return ids
}

// singleSource returns the only source of items, or "" when they span
// several.
func singleSource(items []*media.Item) string {
	ids := sourceIDs(items)
	if len(ids) == 1 {
		return ids[0]
	}
	return ""
}
