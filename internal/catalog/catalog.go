// Package catalog reads the inputs produced by external source sync: one
// JSON item file per source, YAML source descriptions and an optional
// thumbnail map.
//
// Layout:
//
//	<catalog dir>/<source>.json       []media.Item
//	<configs dir>/<source>.yaml       export.SourceMeta
//	<thumbnails file>                 {"<item id>": "<url>"}
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/export"
	"github.com/Aman-CERP/mediadex/internal/media"
)

// ItemFileExt is the extension of per-source item files.
const ItemFileExt = ".json"

// SourceFromPath returns the source id a catalog file path belongs to, or
// false when the path is not an item file. Hidden files are ignored.
func SourceFromPath(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") || filepath.Ext(base) != ItemFileExt {
		return "", false
	}
	id := strings.TrimSuffix(base, ItemFileExt)
	if id == "" {
		return "", false
	}
	return id, true
}

// ItemFile returns the item file of a source inside dir.
func ItemFile(dir, sourceID string) string {
	return filepath.Join(dir, sourceID+ItemFileExt)
}

// SourceIDs lists the sources with an item file in dir, sorted.
// A missing directory has no sources.
func SourceIDs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, invalid(dir, "failed to list catalog", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, ok := SourceFromPath(e.Name()); ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// LoadSource reads the item file of one source. Items without a source id
// take the file's; items naming another source are rejected, as is any
// item failing validation.
func LoadSource(dir, sourceID string) ([]*media.Item, error) {
	path := ItemFile(dir, sourceID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, invalid(path, "failed to read item file", err)
	}

	var items []*media.Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, invalid(path, "failed to parse item file", err)
	}

	out := items[:0]
	for i, it := range items {
		if it == nil {
			continue
		}
		if it.SourceID == "" {
			it.SourceID = sourceID
		}
		if it.SourceID != sourceID {
			return nil, invalid(path, fmt.Sprintf("item %d belongs to source %q", i, it.SourceID), nil)
		}
		if err := it.Validate(); err != nil {
			return nil, invalid(path, fmt.Sprintf("item %d is invalid", i), err)
		}
		out = append(out, it)
	}
	return out, nil
}

// LoadAll reads every item file in dir, keyed by source id.
func LoadAll(dir string) (map[string][]*media.Item, error) {
	ids, err := SourceIDs(dir)
	if err != nil {
		return nil, err
	}
	all := make(map[string][]*media.Item, len(ids))
	for _, id := range ids {
		items, err := LoadSource(dir, id)
		if err != nil {
			return nil, err
		}
		all[id] = items
	}
	return all, nil
}

// Flatten concatenates per-source items in source id order.
func Flatten(bySource map[string][]*media.Item) []*media.Item {
	ids := make([]string, 0, len(bySource))
	n := 0
	for id, items := range bySource {
		ids = append(ids, id)
		n += len(items)
	}
	sort.Strings(ids)
	out := make([]*media.Item, 0, n)
	for _, id := range ids {
		out = append(out, bySource[id]...)
	}
	return out
}

// LoadSourceConfigs reads every *.yaml and *.yml file in dir. A file without
// an id uses its file stem. A missing directory yields an empty map.
func LoadSourceConfigs(dir string) (export.SourceMetaMap, error) {
	metas := export.SourceMetaMap{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return metas, nil
		}
		return nil, invalid(dir, "failed to list source configs", err)
	}

	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, invalid(path, "failed to read source config", err)
		}
		var meta export.SourceMeta
		if err := yaml.Unmarshal(data, &meta); err != nil {
			return nil, invalid(path, "failed to parse source config", err)
		}
		if meta.ID == "" {
			meta.ID = strings.TrimSuffix(e.Name(), ext)
		}
		if _, dup := metas[meta.ID]; dup {
			return nil, invalid(path, fmt.Sprintf("duplicate source id %q", meta.ID), nil)
		}
		metas[meta.ID] = &meta
	}
	return metas, nil
}

// LoadThumbnails reads the item id to thumbnail URL map. An empty path
// yields nil.
func LoadThumbnails(path string) (export.ThumbnailMap, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, invalid(path, "failed to read thumbnail map", err)
	}
	var thumbs export.ThumbnailMap
	if err := json.Unmarshal(data, &thumbs); err != nil {
		return nil, invalid(path, "failed to parse thumbnail map", err)
	}
	return thumbs, nil
}

func invalid(path, msg string, cause error) error {
	return mderrors.New(mderrors.ErrCodeCatalogInvalid, msg, cause).WithDetail("path", path)
}

// IsItemFile reports whether a file name is a source item file.
func IsItemFile(name string) bool {
	_, ok := SourceFromPath(name)
	return ok
}
