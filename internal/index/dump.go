package index

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/media"
	"github.com/Aman-CERP/mediadex/internal/store"
)

// DumpItem is one element of a flat JSON dump.
type DumpItem struct {
	ID            string   `json:"id"`
	SourceID      string   `json:"source_id"`
	Name          string   `json:"name"`
	CanonicalName string   `json:"canonical_name"`
	Path          string   `json:"path"`
	Format        string   `json:"format"`
	Style         string   `json:"style,omitempty"`
	Tags          []string `json:"tags"`
	Description   string   `json:"description"`
}

// DumpVariant is one style variant inside a DumpGroup.
type DumpVariant struct {
	ID     string `json:"id"`
	Style  string `json:"style,omitempty"`
	Path   string `json:"path"`
	Format string `json:"format"`
}

// DumpGroup is one element of a grouped JSON dump. Tags and description
// come from the group's first variant.
type DumpGroup struct {
	CanonicalName string        `json:"canonical_name"`
	SourceID      string        `json:"source_id"`
	Tags          []string      `json:"tags"`
	Description   string        `json:"description"`
	Variants      []DumpVariant `json:"variants"`
}

// ItemDump is the flat document ExportJSON writes.
type ItemDump struct {
	Items []DumpItem `json:"items"`
	Count int        `json:"count"`
}

// GroupDump is the grouped document ExportJSON writes.
type GroupDump struct {
	Groups []DumpGroup `json:"groups"`
	Count  int         `json:"count"`
}

// ExportJSON writes the whole index to w as one JSON document, ordered by
// source, canonical name then style. Grouped output collapses variants by
// group key. Returns the number of items, or of groups when grouped.
func (ix *Indexer) ExportJSON(ctx context.Context, w io.Writer, grouped bool) (int, error) {
	items, err := ix.store.SearchByName(ctx, store.NameRequest{})
	if err != nil {
		return 0, err
	}

	var doc any
	var count int
	if grouped {
		groups := dumpGroups(items)
		doc, count = GroupDump{Groups: groups, Count: len(groups)}, len(groups)
	} else {
		flat := make([]DumpItem, 0, len(items))
		for _, it := range items {
			flat = append(flat, DumpItem{
				ID:            it.ID(),
				SourceID:      it.SourceID,
				Name:          it.Name,
				CanonicalName: it.Canonical(),
				Path:          it.Path,
				Format:        it.Format,
				Style:         it.Style,
				Tags:          nonNilTags(it.Tags),
				Description:   it.Description,
			})
		}
		doc, count = ItemDump{Items: flat, Count: len(flat)}, len(flat)
	}

	if err := json.NewEncoder(w).Encode(doc); err != nil {
		return 0, mderrors.New(mderrors.ErrCodeExportWrite, "failed to write index dump", err)
	}
	ix.logger.Info("index_dump_written",
		slog.Bool("grouped", grouped),
		slog.Int("count", count))
	return count, nil
}

func dumpGroups(items []*media.Item) []DumpGroup {
	groups := []DumpGroup{}
	index := make(map[string]int)
	for _, it := range items {
		key := it.GroupKey()
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, DumpGroup{
				CanonicalName: it.Canonical(),
				SourceID:      it.SourceID,
				Tags:          nonNilTags(it.Tags),
				Description:   it.Description,
			})
		}
		groups[i].Variants = append(groups[i].Variants, DumpVariant{
			ID:     it.ID(),
			Style:  it.Style,
			Path:   it.Path,
			Format: it.Format,
		})
	}
	return groups
}

func nonNilTags(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
