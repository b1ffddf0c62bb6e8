package export

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
)

// writeShards writes one file per manifest entry on a fixed pool of
// b.opts.Workers goroutines. Each worker owns whole prefixes, so no two
// workers touch the same bucket or file.
func (b *Builder) writeShards(ctx context.Context, searchDir string, manifest []ManifestEntry, buckets map[string][]Record) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Workers)

	for _, entry := range manifest {
		prefix := entry.Prefix
		records := buckets[prefix]
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return writeJSON(filepath.Join(searchDir, shardFile(prefix)), records, true)
		})
	}
	return g.Wait()
}

// removeStaleShards deletes shard files from an earlier export whose prefix
// is not in manifest. Other files are left alone.
func removeStaleShards(searchDir string, manifest []ManifestEntry) (int, error) {
	keep := make(map[string]struct{}, len(manifest))
	for _, e := range manifest {
		keep[shardFile(e.Prefix)] = struct{}{}
	}

	entries, err := os.ReadDir(searchDir)
	if err != nil {
		return 0, mderrors.ExportError(searchDir, err)
	}
	removed := 0
	for _, de := range entries {
		name := de.Name()
		if de.IsDir() || name == ManifestFile || !strings.HasSuffix(name, ".json") {
			continue
		}
		if _, ok := keep[name]; ok {
			continue
		}
		path := filepath.Join(searchDir, name)
		if err := os.Remove(path); err != nil {
			return removed, mderrors.ExportError(path, err)
		}
		removed++
	}
	return removed, nil
}

// writeJSON writes v to path through a temporary file and rename, so a
// reader never sees a half-written file. Shards are compact; side indexes
// are indented.
func writeJSON(path string, v any, compact bool) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if !compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return mderrors.ExportError(path, err)
	}
	data := bytes.TrimRight(buf.Bytes(), "\n")

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return mderrors.ExportError(path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return mderrors.ExportError(path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return mderrors.ExportError(path, err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		_ = os.Remove(tmpName)
		return mderrors.ExportError(path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return mderrors.ExportError(path, err)
	}
	return nil
}

// readJSON decodes a file written by writeJSON.
func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return mderrors.New(mderrors.ErrCodeExportRead, "failed to decode "+path, err).
			WithDetail("path", path)
	}
	return nil
}
