package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	bleveunicode "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/media"
)

const (
	// MediaAnalyzerName splits on Unicode word boundaries and lowercases.
	MediaAnalyzerName = "media_text"

	fieldSourceID  = "source_id"
	fieldGroupKey  = "group_key"
	fieldFormat    = "format"
	fieldStyle     = "style"
	fieldTagsRaw   = "tags_raw"
	fieldRecord    = "record"
	textFieldCount = 5
)

// textFields are searched by prefix, matching the SQLite FTS columns.
var textFields = [textFieldCount]string{"name", "canonical_name", "tags", "description", "metadata"}

// BleveItemStore implements ItemStore on a Bleve v2 index. The item record
// is a stored field of the same document that carries the searchable text,
// so one batch updates both.
type BleveItemStore struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	opts   Options
	closed bool
	writes atomic.Uint64
}

var _ ItemStore = (*BleveItemStore)(nil)

// bleveDocument is the indexed form of a media item.
type bleveDocument struct {
	SourceID      string `json:"source_id"`
	GroupKey      string `json:"group_key"`
	Format        string `json:"format"`
	Style         string `json:"style"`
	TagsRaw       string `json:"tags_raw"`
	Name          string `json:"name"`
	CanonicalName string `json:"canonical_name"`
	Tags          string `json:"tags"`
	Description   string `json:"description"`
	Metadata      string `json:"metadata"`
	Record        string `json:"record"`
}

// validateIndexIntegrity checks a Bleve index directory before opening.
func validateIndexIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing (corrupted index)")
	}
	if err != nil {
		return fmt.Errorf("cannot stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty (corrupted)")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]any
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

// isCorruptionError checks if an error indicates Bleve index corruption.
func isCorruptionError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "unexpected end of JSON") ||
		strings.Contains(errStr, "error parsing mapping JSON") ||
		strings.Contains(errStr, "failed to load segment") ||
		strings.Contains(errStr, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// NewBleveItemStore opens or creates a Bleve index at path.
// An empty path creates an in-memory index.
func NewBleveItemStore(path string, opts Options) (*BleveItemStore, error) {
	log := opts.logger()

	indexMapping, err := createMediaMapping()
	if err != nil {
		return nil, mderrors.InternalError("failed to create index mapping", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, mderrors.New(mderrors.ErrCodeStorageUnavailable,
				"failed to create index directory", err).WithDetail("path", dir)
		}

		if validErr := validateIndexIntegrity(path); validErr != nil {
			log.Warn("bleve_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, mderrors.New(mderrors.ErrCodeCorruptIndex,
					"index corrupted and cannot be removed", removeErr).WithDetail("path", path)
			}
			log.Info("bleve_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isCorruptionError(err) {
			log.Warn("bleve_index_open_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, mderrors.New(mderrors.ErrCodeCorruptIndex,
					"index corrupted and cannot be removed", removeErr).WithDetail("path", path)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, mderrors.New(mderrors.ErrCodeStorageUnavailable, "failed to open index", err).
			WithDetail("path", path)
	}

	return &BleveItemStore{index: idx, path: path, opts: opts}, nil
}

// createMediaMapping maps filter fields as keywords, searchable fields
// through MediaAnalyzerName, and the record as stored-only.
func createMediaMapping() (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	err := indexMapping.AddCustomAnalyzer(MediaAnalyzerName, map[string]any{
		"type":          custom.Name,
		"tokenizer":     bleveunicode.Name,
		"token_filters": []string{lowercase.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}

	doc := bleve.NewDocumentStaticMapping()

	for _, name := range []string{fieldSourceID, fieldGroupKey, fieldFormat, fieldStyle, fieldTagsRaw} {
		kw := bleve.NewKeywordFieldMapping()
		kw.Store = false
		kw.IncludeInAll = false
		doc.AddFieldMappingsAt(name, kw)
	}

	for _, name := range textFields {
		text := bleve.NewTextFieldMapping()
		text.Analyzer = MediaAnalyzerName
		text.Store = false
		text.IncludeInAll = false
		doc.AddFieldMappingsAt(name, text)
	}

	record := bleve.NewTextFieldMapping()
	record.Index = false
	record.Store = true
	record.IncludeInAll = false
	record.IncludeTermVectors = false
	doc.AddFieldMappingsAt(fieldRecord, record)

	indexMapping.DefaultMapping = doc
	indexMapping.DefaultAnalyzer = MediaAnalyzerName
	return indexMapping, nil
}

func toBleveDocument(it *media.Item) (bleveDocument, error) {
	record, err := json.Marshal(it)
	if err != nil {
		return bleveDocument{}, fmt.Errorf("encode item %s: %w", it.ID(), err)
	}
	tags := it.TagString()
	return bleveDocument{
		SourceID:      it.SourceID,
		GroupKey:      it.GroupKey(),
		Format:        it.Format,
		Style:         it.Style,
		TagsRaw:       strings.ToLower(tags),
		Name:          it.Name,
		CanonicalName: it.Canonical(),
		Tags:          tags,
		Description:   it.Description,
		Metadata:      it.Metadata.SearchText(),
		Record:        string(record),
	}, nil
}

func (b *BleveItemStore) Upsert(ctx context.Context, items []*media.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, errClosed()
	}

	batch := b.index.NewBatch()
	if err := addToBatch(batch, items); err != nil {
		return 0, mderrors.StorageFailure("upsert", err)
	}
	if err := b.apply(batch); err != nil {
		return 0, mderrors.StorageFailure("upsert", err)
	}
	return len(items), nil
}

func (b *BleveItemStore) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, errClosed()
	}

	ids, err := b.idsFor(ctx, termQuery(fieldSourceID, sourceID))
	if err != nil {
		return 0, mderrors.StorageFailure("delete_source", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.apply(batch); err != nil {
		return 0, mderrors.StorageFailure("delete_source", err)
	}
	return len(ids), nil
}

// ReplaceSource applies deletes and inserts in a single batch. Ids present in
// both the old and new set are overwritten rather than deleted.
func (b *BleveItemStore) ReplaceSource(ctx context.Context, sourceID string, items []*media.Item) (int, int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, 0, errClosed()
	}

	old, err := b.idsFor(ctx, termQuery(fieldSourceID, sourceID))
	if err != nil {
		return 0, 0, mderrors.StorageFailure("replace_source", err)
	}

	keep := make(map[string]struct{}, len(items))
	for _, it := range items {
		keep[it.ID()] = struct{}{}
	}

	batch := b.index.NewBatch()
	for _, id := range old {
		if _, ok := keep[id]; !ok {
			batch.Delete(id)
		}
	}
	if err := addToBatch(batch, items); err != nil {
		return 0, 0, mderrors.StorageFailure("replace_source", err)
	}
	if batch.Size() > 0 {
		if err := b.apply(batch); err != nil {
			return 0, 0, mderrors.StorageFailure("replace_source", err)
		}
	}
	return len(old), len(items), nil
}

func (b *BleveItemStore) Clear(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed()
	}

	ids, err := b.idsFor(ctx, bleve.NewMatchAllQuery())
	if err != nil {
		return mderrors.StorageFailure("clear", err)
	}
	if len(ids) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.apply(batch); err != nil {
		return mderrors.StorageFailure("clear", err)
	}
	return nil
}

func (b *BleveItemStore) apply(batch *bleve.Batch) error {
	if err := b.index.Batch(batch); err != nil {
		return err
	}
	b.writes.Add(1)
	return nil
}

func addToBatch(batch *bleve.Batch, items []*media.Item) error {
	for _, it := range items {
		doc, err := toBleveDocument(it)
		if err != nil {
			return err
		}
		if err := batch.Index(it.ID(), doc); err != nil {
			return fmt.Errorf("index item %s: %w", it.ID(), err)
		}
	}
	return nil
}

// Search ORs a prefix query per term and searchable field, then ANDs the
// filters. Hits are sorted by score descending and document id ascending.
func (b *BleveItemStore) Search(ctx context.Context, req SearchRequest) ([]*ScoredItem, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errClosed()
	}

	terms := QueryTerms(req.Query)
	if len(terms) == 0 {
		return []*ScoredItem{}, nil
	}

	textQueries := make([]query.Query, 0, len(terms)*textFieldCount)
	for _, term := range terms {
		for _, field := range textFields {
			pq := bleve.NewPrefixQuery(term)
			pq.SetField(field)
			textQueries = append(textQueries, pq)
		}
	}
	conj := []query.Query{bleve.NewDisjunctionQuery(textQueries...)}
	conj = append(conj, filterQueries(req.Filter)...)

	size := req.Limit
	if size <= 0 {
		count, err := b.index.DocCount()
		if err != nil {
			return nil, mderrors.StorageFailure("search", err)
		}
		size = int(count)
	}

	sr := bleve.NewSearchRequestOptions(bleve.NewConjunctionQuery(conj...), size, max(req.Offset, 0), false)
	sr.Fields = []string{fieldRecord}
	sr.SortBy([]string{"-_score", "_id"})

	res, err := b.index.SearchInContext(ctx, sr)
	if err != nil {
		return nil, mderrors.StorageFailure("search", err)
	}

	results := make([]*ScoredItem, 0, len(res.Hits))
	for _, hit := range res.Hits {
		it, err := hitRecord(hit.Fields)
		if err != nil {
			return nil, mderrors.StorageFailure("search", err)
		}
		results = append(results, &ScoredItem{Item: it, Score: hit.Score})
	}
	return results, nil
}

func filterQueries(f Filter) []query.Query {
	var out []query.Query
	if f.SourceID != "" {
		out = append(out, termQuery(fieldSourceID, f.SourceID))
	}
	if len(f.Tags) > 0 {
		qs := make([]query.Query, len(f.Tags))
		for i, tag := range f.Tags {
			wq := bleve.NewWildcardQuery(wildcardContains(tag))
			wq.SetField(fieldTagsRaw)
			qs[i] = wq
		}
		out = append(out, bleve.NewDisjunctionQuery(qs...))
	}
	if len(f.Formats) > 0 {
		out = append(out, anyTerm(fieldFormat, f.Formats))
	}
	if len(f.Styles) > 0 {
		out = append(out, anyTerm(fieldStyle, f.Styles))
	}
	return out
}

func termQuery(field, value string) query.Query {
	tq := bleve.NewTermQuery(value)
	tq.SetField(field)
	return tq
}

func anyTerm(field string, values []string) query.Query {
	qs := make([]query.Query, len(values))
	for i, v := range values {
		qs[i] = termQuery(field, v)
	}
	return bleve.NewDisjunctionQuery(qs...)
}

func (b *BleveItemStore) SearchByName(ctx context.Context, req NameRequest) ([]*media.Item, error) {
	items, err := b.all(ctx, "search_by_name", req.SourceID)
	if err != nil {
		return nil, err
	}
	return selectByName(items, req), nil
}

func (b *BleveItemStore) Get(ctx context.Context, id string) (*media.Item, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errClosed()
	}

	items, err := b.records(ctx, bleve.NewDocIDQuery([]string{id}))
	if err != nil {
		return nil, mderrors.StorageFailure("get", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func (b *BleveItemStore) Variants(ctx context.Context, sourceID, canonicalName string) ([]*media.Item, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errClosed()
	}

	items, err := b.records(ctx, termQuery(fieldGroupKey, media.GroupKey(sourceID, canonicalName)))
	if err != nil {
		return nil, mderrors.StorageFailure("variants", err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Style != items[j].Style {
			return items[i].Style < items[j].Style
		}
		return items[i].ID() < items[j].ID()
	})
	return items, nil
}

func (b *BleveItemStore) Sources(ctx context.Context) ([]string, error) {
	counts, err := b.SourceCounts(ctx)
	if err != nil {
		return nil, err
	}
	sources := make([]string, 0, len(counts))
	for s := range counts {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	return sources, nil
}

func (b *BleveItemStore) Styles(ctx context.Context, sourceID string) ([]string, error) {
	items, err := b.all(ctx, "styles", sourceID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	styles := []string{}
	for _, it := range items {
		if it.Style == "" {
			continue
		}
		if _, ok := seen[it.Style]; ok {
			continue
		}
		seen[it.Style] = struct{}{}
		styles = append(styles, it.Style)
	}
	sort.Strings(styles)
	return styles, nil
}

func (b *BleveItemStore) Count(ctx context.Context, sourceID string, grouped bool) (int, error) {
	if !grouped {
		if sourceID == "" {
			b.mu.RLock()
			defer b.mu.RUnlock()
			if b.closed {
				return 0, errClosed()
			}
			n, err := b.index.DocCount()
			if err != nil {
				return 0, mderrors.StorageFailure("count", err)
			}
			return int(n), nil
		}
		counts, err := b.SourceCounts(ctx)
		if err != nil {
			return 0, err
		}
		return counts[sourceID], nil
	}

	items, err := b.all(ctx, "count", sourceID)
	if err != nil {
		return 0, err
	}
	groups := make(map[string]struct{})
	for _, it := range items {
		groups[it.GroupKey()] = struct{}{}
	}
	return len(groups), nil
}

func (b *BleveItemStore) SourceCounts(ctx context.Context) (map[string]int, error) {
	items, err := b.all(ctx, "source_counts", "")
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, it := range items {
		counts[it.SourceID]++
	}
	return counts, nil
}

func (b *BleveItemStore) RecordIDs(ctx context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errClosed()
	}

	ids, err := b.idsFor(ctx, bleve.NewMatchAllQuery())
	if err != nil {
		return nil, mderrors.StorageFailure("record_ids", err)
	}
	sort.Strings(ids)
	return ids, nil
}

// TextIDs equals RecordIDs: the record is a field of the indexed document.
func (b *BleveItemStore) TextIDs(ctx context.Context) ([]string, error) {
	return b.RecordIDs(ctx)
}

// RebuildText re-indexes every stored record.
func (b *BleveItemStore) RebuildText(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errClosed()
	}

	items, err := b.records(ctx, bleve.NewMatchAllQuery())
	if err != nil {
		return mderrors.StorageFailure("rebuild_text", err)
	}
	if len(items) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	if err := addToBatch(batch, items); err != nil {
		return mderrors.StorageFailure("rebuild_text", err)
	}
	if err := b.apply(batch); err != nil {
		return mderrors.StorageFailure("rebuild_text", err)
	}
	return nil
}

func (b *BleveItemStore) Generation(ctx context.Context) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return 0, errClosed()
	}
	return b.writes.Load(), nil
}

// Close closes the index. Idempotent.
func (b *BleveItemStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// all returns every stored item, optionally restricted to a source.
func (b *BleveItemStore) all(ctx context.Context, op, sourceID string) ([]*media.Item, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errClosed()
	}

	var q query.Query = bleve.NewMatchAllQuery()
	if sourceID != "" {
		q = termQuery(fieldSourceID, sourceID)
	}
	items, err := b.records(ctx, q)
	if err != nil {
		return nil, mderrors.StorageFailure(op, err)
	}
	return items, nil
}

// records returns the decoded record of every document matching q.
// The caller holds b.mu.
func (b *BleveItemStore) records(ctx context.Context, q query.Query) ([]*media.Item, error) {
	res, err := b.searchAll(ctx, q, []string{fieldRecord})
	if err != nil {
		return nil, err
	}
	items := make([]*media.Item, 0, len(res.Hits))
	for _, hit := range res.Hits {
		it, err := hitRecord(hit.Fields)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, nil
}

// idsFor returns the ids of every document matching q. The caller holds b.mu.
func (b *BleveItemStore) idsFor(ctx context.Context, q query.Query) ([]string, error) {
	res, err := b.searchAll(ctx, q, nil)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(res.Hits))
	for i, hit := range res.Hits {
		ids[i] = hit.ID
	}
	return ids, nil
}

func (b *BleveItemStore) searchAll(ctx context.Context, q query.Query, fields []string) (*bleve.SearchResult, error) {
	count, err := b.index.DocCount()
	if err != nil {
		return nil, err
	}
	if count == 0 {
		return &bleve.SearchResult{}, nil
	}
	req := bleve.NewSearchRequestOptions(q, int(count), 0, false)
	req.Fields = fields
	req.SortBy([]string{"_id"})
	return b.index.SearchInContext(ctx, req)
}

func hitRecord(fields map[string]any) (*media.Item, error) {
	raw, ok := fields[fieldRecord].(string)
	if !ok {
		return nil, fmt.Errorf("hit has no stored record")
	}
	return decodeRecord(raw)
}
