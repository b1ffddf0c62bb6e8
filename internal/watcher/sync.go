package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sort"

	"github.com/Aman-CERP/mediadex/internal/catalog"
	"github.com/Aman-CERP/mediadex/internal/media"
)

// SourceIndexer is the part of the indexer a CatalogSync drives.
type SourceIndexer interface {
	ReplaceSource(ctx context.Context, sourceID string, items []*media.Item) (removed, added int, err error)
	RemoveSource(ctx context.Context, sourceID string) (int, error)
}

// SyncAction is what a CatalogSync did for one source.
type SyncAction string

const (
	SyncReplaced SyncAction = "replaced"
	SyncRemoved  SyncAction = "removed"
	SyncFailed   SyncAction = "failed"
)

// SyncResult reports one source of a batch.
type SyncResult struct {
	SourceID string
	Action   SyncAction
	Removed  int
	Added    int
	Err      error
}

// CatalogSync applies watcher batches to the index: a source whose item
// file exists is replaced wholesale, one whose file is gone is removed.
// A file that fails to load leaves the indexed source untouched.
type CatalogSync struct {
	dir     string
	indexer SourceIndexer
	logger  *slog.Logger
}

// NewCatalogSync creates a sync over the catalog directory dir.
func NewCatalogSync(dir string, indexer SourceIndexer, logger *slog.Logger) *CatalogSync {
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogSync{dir: dir, indexer: indexer, logger: logger}
}

// Apply handles every source touched by batch, in source id order.
func (s *CatalogSync) Apply(ctx context.Context, batch []FileEvent) []SyncResult {
	seen := make(map[string]struct{})
	var ids []string
	for _, ev := range batch {
		id, ok := catalog.SourceFromPath(ev.Path)
		if !ok {
			continue
		}
		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	results := make([]SyncResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, s.syncSource(ctx, id))
	}
	return results
}

func (s *CatalogSync) syncSource(ctx context.Context, id string) SyncResult {
	res := SyncResult{SourceID: id}

	if _, err := os.Stat(catalog.ItemFile(s.dir, id)); errors.Is(err, fs.ErrNotExist) {
		res.Action = SyncRemoved
		res.Removed, res.Err = s.indexer.RemoveSource(ctx, id)
		return s.report(res)
	}

	items, err := catalog.LoadSource(s.dir, id)
	if err != nil {
		res.Err = err
		return s.report(res)
	}
	res.Action = SyncReplaced
	res.Removed, res.Added, res.Err = s.indexer.ReplaceSource(ctx, id, items)
	return s.report(res)
}

func (s *CatalogSync) report(res SyncResult) SyncResult {
	if res.Err != nil {
		res.Action = SyncFailed
		s.logger.Error("catalog_sync_failed",
			slog.String("source", res.SourceID),
			slog.String("error", res.Err.Error()))
		return res
	}
	s.logger.Info("catalog_source_synced",
		slog.String("source", res.SourceID),
		slog.String("action", string(res.Action)),
		slog.Int("removed", res.Removed),
		slog.Int("added", res.Added))
	return res
}
