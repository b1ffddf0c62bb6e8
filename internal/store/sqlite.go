package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/media"
)

// SQLiteItemStore implements ItemStore on SQLite with an FTS5 external-content
// table. Triggers on media_items maintain media_fts inside the same
// statement, so the record store and text index cannot diverge.
type SQLiteItemStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	opts   Options
	closed bool
	writes atomic.Uint64
}

var _ ItemStore = (*SQLiteItemStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS media_items (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	id TEXT UNIQUE NOT NULL,
	source_id TEXT NOT NULL,
	name TEXT NOT NULL,
	canonical_name TEXT NOT NULL,
	path TEXT NOT NULL,
	format TEXT NOT NULL,
	style TEXT,
	tags TEXT NOT NULL DEFAULT '', -- lowercased on write
	description TEXT NOT NULL DEFAULT '',
	metadata TEXT NOT NULL DEFAULT '',
	record TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_media_source ON media_items(source_id);
CREATE INDEX IF NOT EXISTS idx_media_format ON media_items(format);
CREATE INDEX IF NOT EXISTS idx_media_canonical ON media_items(source_id, canonical_name);
CREATE INDEX IF NOT EXISTS idx_media_style ON media_items(style);

CREATE VIRTUAL TABLE IF NOT EXISTS media_fts USING fts5(
	name,
	canonical_name,
	tags,
	description,
	metadata,
	content='media_items',
	content_rowid='seq',
	tokenize='unicode61'
);

CREATE TRIGGER IF NOT EXISTS media_ai AFTER INSERT ON media_items BEGIN
	INSERT INTO media_fts(rowid, name, canonical_name, tags, description, metadata)
	VALUES (new.seq, new.name, new.canonical_name, new.tags, new.description, new.metadata);
END;

CREATE TRIGGER IF NOT EXISTS media_ad AFTER DELETE ON media_items BEGIN
	INSERT INTO media_fts(media_fts, rowid, name, canonical_name, tags, description, metadata)
	VALUES ('delete', old.seq, old.name, old.canonical_name, old.tags, old.description, old.metadata);
END;

CREATE TRIGGER IF NOT EXISTS media_au AFTER UPDATE ON media_items BEGIN
	INSERT INTO media_fts(media_fts, rowid, name, canonical_name, tags, description, metadata)
	VALUES ('delete', old.seq, old.name, old.canonical_name, old.tags, old.description, old.metadata);
	INSERT INTO media_fts(rowid, name, canonical_name, tags, description, metadata)
	VALUES (new.seq, new.name, new.canonical_name, new.tags, new.description, new.metadata);
END;

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// ON CONFLICT DO UPDATE keeps the row and fires media_au. INSERT OR REPLACE
// would delete without firing media_ad unless recursive triggers are on.
const sqliteUpsert = `
INSERT INTO media_items (id, source_id, name, canonical_name, path, format, style, tags, description, metadata, record)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	source_id = excluded.source_id,
	name = excluded.name,
	canonical_name = excluded.canonical_name,
	path = excluded.path,
	format = excluded.format,
	style = excluded.style,
	tags = excluded.tags,
	description = excluded.description,
	metadata = excluded.metadata,
	record = excluded.record
`

// validateSQLiteIntegrity checks an existing database file before opening.
// Returns nil if the file is absent or valid.
func validateSQLiteIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", path+"?mode=ro")
	if err != nil {
		return fmt.Errorf("cannot open for validation: %w", err)
	}
	defer db.Close()

	var result string
	if err := db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("database corrupted: %s", result)
	}

	var count int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master
		WHERE name IN ('media_items', 'media_fts')`).Scan(&count)
	if err != nil {
		return fmt.Errorf("cannot query schema: %w", err)
	}
	if count != 2 {
		return fmt.Errorf("media tables missing")
	}
	return nil
}

// NewSQLiteItemStore opens or creates the index database at path.
// An empty path creates an in-memory store.
func NewSQLiteItemStore(path string, opts Options) (*SQLiteItemStore, error) {
	log := opts.logger()

	dsn := ":memory:"
	if path != "" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, mderrors.New(mderrors.ErrCodeStorageUnavailable,
				"failed to create index directory", err).WithDetail("path", dir)
		}

		if validErr := validateSQLiteIntegrity(path); validErr != nil {
			log.Warn("sqlite_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))

			if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
				return nil, mderrors.New(mderrors.ErrCodeCorruptIndex,
					"index corrupted and cannot be removed", removeErr).
					WithDetail("path", path).
					WithDetail("validation", validErr.Error())
			}
			_ = os.Remove(path + "-wal")
			_ = os.Remove(path + "-shm")

			log.Info("sqlite_index_cleared",
				slog.String("path", path),
				slog.String("reason", "corruption detected, please reindex"))
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, mderrors.New(mderrors.ErrCodeStorageUnavailable, "failed to open index", err).
			WithDetail("path", path)
	}

	// One connection: a single writer and, for :memory:, a single database.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	cacheMB := opts.CacheSizeMB
	if cacheMB <= 0 {
		cacheMB = DefaultOptions().CacheSizeMB
	}
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		fmt.Sprintf("PRAGMA cache_size = -%d", cacheMB*1024),
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, mderrors.New(mderrors.ErrCodeStorageUnavailable, "failed to set pragma", err).
				WithDetail("pragma", pragma)
		}
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, mderrors.New(mderrors.ErrCodeStorageUnavailable, "failed to initialize schema", err)
	}

	return &SQLiteItemStore{db: db, path: path, opts: opts}, nil
}

// Path returns the database file path, or "" for an in-memory store.
func (s *SQLiteItemStore) Path() string {
	return s.path
}

func (s *SQLiteItemStore) Upsert(ctx context.Context, items []*media.Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed()
	}

	err := s.inTx(ctx, "upsert", func(tx *sql.Tx) error {
		return upsertTx(ctx, tx, items)
	})
	if err != nil {
		return 0, err
	}
	return len(items), nil
}

func (s *SQLiteItemStore) DeleteSource(ctx context.Context, sourceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errClosed()
	}

	var removed int
	err := s.inTx(ctx, "delete_source", func(tx *sql.Tx) error {
		n, err := deleteSourceTx(ctx, tx, sourceID)
		removed = n
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *SQLiteItemStore) ReplaceSource(ctx context.Context, sourceID string, items []*media.Item) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, 0, errClosed()
	}

	var removed int
	err := s.inTx(ctx, "replace_source", func(tx *sql.Tx) error {
		n, err := deleteSourceTx(ctx, tx, sourceID)
		if err != nil {
			return err
		}
		removed = n
		return upsertTx(ctx, tx, items)
	})
	if err != nil {
		return 0, 0, err
	}
	return removed, len(items), nil
}

func (s *SQLiteItemStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}

	return s.inTx(ctx, "clear", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM media_items`)
		return err
	})
}

// inTx runs fn in a transaction and bumps the write counter on commit.
func (s *SQLiteItemStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return mderrors.StorageFailure(op, err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return mderrors.StorageFailure(op, err)
	}
	if err := tx.Commit(); err != nil {
		return mderrors.StorageFailure(op, err)
	}
	s.writes.Add(1)
	return nil
}

func upsertTx(ctx context.Context, tx *sql.Tx, items []*media.Item) error {
	if len(items) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, sqliteUpsert)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, it := range items {
		record, err := json.Marshal(it)
		if err != nil {
			return fmt.Errorf("encode item %s: %w", it.ID(), err)
		}
		var style sql.NullString
		if it.Style != "" {
			style = sql.NullString{String: it.Style, Valid: true}
		}
		_, err = stmt.ExecContext(ctx,
			it.ID(), it.SourceID, it.Name, it.Canonical(), it.Path, it.Format, style,
			strings.ToLower(it.TagString()), it.Description, it.Metadata.SearchText(), string(record))
		if err != nil {
			return fmt.Errorf("upsert item %s: %w", it.ID(), err)
		}
	}
	return nil
}

func deleteSourceTx(ctx context.Context, tx *sql.Tx, sourceID string) (int, error) {
	res, err := tx.ExecContext(ctx, `DELETE FROM media_items WHERE source_id = ?`, sourceID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Search returns items matching any query term as a prefix, ranked by bm25.
func (s *SQLiteItemStore) Search(ctx context.Context, req SearchRequest) ([]*ScoredItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	match := ftsMatchExpr(QueryTerms(req.Query))
	if match == "" {
		return []*ScoredItem{}, nil
	}

	var sb strings.Builder
	sb.WriteString(`SELECT m.record, bm25(media_fts) AS score
		FROM media_fts
		JOIN media_items m ON media_fts.rowid = m.seq
		WHERE media_fts MATCH ?`)
	args := []any{match}

	f := req.Filter
	if f.SourceID != "" {
		sb.WriteString(` AND m.source_id = ?`)
		args = append(args, f.SourceID)
	}
	if len(f.Tags) > 0 {
		conds := make([]string, len(f.Tags))
		for i, tag := range f.Tags {
			conds[i] = `m.tags LIKE ? ESCAPE '\'`
			args = append(args, likeContains(tag))
		}
		sb.WriteString(` AND (` + strings.Join(conds, " OR ") + `)`)
	}
	if len(f.Formats) > 0 {
		sb.WriteString(` AND m.format IN (` + placeholders(len(f.Formats)) + `)`)
		for _, v := range f.Formats {
			args = append(args, v)
		}
	}
	if len(f.Styles) > 0 {
		sb.WriteString(` AND m.style IN (` + placeholders(len(f.Styles)) + `)`)
		for _, v := range f.Styles {
			args = append(args, v)
		}
	}

	// bm25() is negative with lower meaning better.
	sb.WriteString(` ORDER BY score, m.id LIMIT ? OFFSET ?`)
	limit := req.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, max(req.Offset, 0))

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, mderrors.StorageFailure("search", err)
	}
	defer rows.Close()

	results := []*ScoredItem{}
	for rows.Next() {
		var record string
		var score float64
		if err := rows.Scan(&record, &score); err != nil {
			return nil, mderrors.StorageFailure("search", err)
		}
		it, err := decodeRecord(record)
		if err != nil {
			return nil, mderrors.StorageFailure("search", err)
		}
		results = append(results, &ScoredItem{Item: it, Score: -score})
	}
	if err := rows.Err(); err != nil {
		return nil, mderrors.StorageFailure("search", err)
	}
	return results, nil
}

// SearchByName narrows by source and style in SQL. An ASCII name is also
// narrowed there since LIKE folds ASCII case; matching is finished in Go.
func (s *SQLiteItemStore) SearchByName(ctx context.Context, req NameRequest) ([]*media.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	var sb strings.Builder
	sb.WriteString(`SELECT record FROM media_items WHERE 1 = 1`)
	var args []any
	if name := strings.TrimSpace(req.Name); name != "" && isASCII(name) {
		sb.WriteString(` AND canonical_name LIKE ? ESCAPE '\'`)
		args = append(args, likeContains(name))
	}
	if req.SourceID != "" {
		sb.WriteString(` AND source_id = ?`)
		args = append(args, req.SourceID)
	}
	if req.Style != "" {
		sb.WriteString(` AND style = ?`)
		args = append(args, req.Style)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, mderrors.StorageFailure("search_by_name", err)
	}
	defer rows.Close()

	var items []*media.Item
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, mderrors.StorageFailure("search_by_name", err)
		}
		it, err := decodeRecord(record)
		if err != nil {
			return nil, mderrors.StorageFailure("search_by_name", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, mderrors.StorageFailure("search_by_name", err)
	}
	return selectByName(items, req), nil
}

func (s *SQLiteItemStore) Get(ctx context.Context, id string) (*media.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	var record string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM media_items WHERE id = ?`, id).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, mderrors.StorageFailure("get", err)
	}
	it, err := decodeRecord(record)
	if err != nil {
		return nil, mderrors.StorageFailure("get", err)
	}
	return it, nil
}

func (s *SQLiteItemStore) Variants(ctx context.Context, sourceID, canonicalName string) ([]*media.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	rows, err := s.db.QueryContext(ctx, `SELECT record FROM media_items
		WHERE source_id = ? AND canonical_name = ?
		ORDER BY COALESCE(style, ''), id`, sourceID, canonicalName)
	if err != nil {
		return nil, mderrors.StorageFailure("variants", err)
	}
	defer rows.Close()

	var items []*media.Item
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, mderrors.StorageFailure("variants", err)
		}
		it, err := decodeRecord(record)
		if err != nil {
			return nil, mderrors.StorageFailure("variants", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, mderrors.StorageFailure("variants", err)
	}
	return items, nil
}

func (s *SQLiteItemStore) Sources(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, "sources", `SELECT DISTINCT source_id FROM media_items ORDER BY source_id`)
}

func (s *SQLiteItemStore) Styles(ctx context.Context, sourceID string) ([]string, error) {
	if sourceID != "" {
		return s.queryStrings(ctx, "styles", `SELECT DISTINCT style FROM media_items
			WHERE source_id = ? AND style IS NOT NULL AND style <> ''
			ORDER BY style`, sourceID)
	}
	return s.queryStrings(ctx, "styles", `SELECT DISTINCT style FROM media_items
		WHERE style IS NOT NULL AND style <> ''
		ORDER BY style`)
}

func (s *SQLiteItemStore) Count(ctx context.Context, sourceID string, grouped bool) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed()
	}

	var query string
	var args []any
	switch {
	case grouped && sourceID != "":
		query = `SELECT COUNT(DISTINCT canonical_name) FROM media_items WHERE source_id = ?`
		args = append(args, sourceID)
	case grouped:
		query = `SELECT COUNT(DISTINCT source_id || ':' || canonical_name) FROM media_items`
	case sourceID != "":
		query = `SELECT COUNT(*) FROM media_items WHERE source_id = ?`
		args = append(args, sourceID)
	default:
		query = `SELECT COUNT(*) FROM media_items`
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, mderrors.StorageFailure("count", err)
	}
	return n, nil
}

func (s *SQLiteItemStore) SourceCounts(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	rows, err := s.db.QueryContext(ctx, `SELECT source_id, COUNT(*) FROM media_items GROUP BY source_id`)
	if err != nil {
		return nil, mderrors.StorageFailure("source_counts", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var source string
		var n int
		if err := rows.Scan(&source, &n); err != nil {
			return nil, mderrors.StorageFailure("source_counts", err)
		}
		counts[source] = n
	}
	if err := rows.Err(); err != nil {
		return nil, mderrors.StorageFailure("source_counts", err)
	}
	return counts, nil
}

func (s *SQLiteItemStore) RecordIDs(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, "record_ids", `SELECT id FROM media_items ORDER BY id`)
}

// TextIDs reads the FTS5 docsize shadow table, which holds one row per
// indexed document.
func (s *SQLiteItemStore) TextIDs(ctx context.Context) ([]string, error) {
	return s.queryStrings(ctx, "text_ids", `SELECT COALESCE(m.id, 'rowid:' || d.id) AS doc
		FROM media_fts_docsize d
		LEFT JOIN media_items m ON m.seq = d.id
		ORDER BY doc`)
}

func (s *SQLiteItemStore) RebuildText(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed()
	}

	return s.inTx(ctx, "rebuild_text", func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `INSERT INTO media_fts(media_fts) VALUES ('rebuild')`)
		return err
	})
}

// Generation combines this handle's commit count with SQLite's data_version,
// which moves when another connection commits to the same file.
func (s *SQLiteItemStore) Generation(ctx context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, errClosed()
	}

	var version int64
	if err := s.db.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&version); err != nil {
		return 0, mderrors.StorageFailure("generation", err)
	}
	return s.writes.Load() + uint64(version), nil
}

// Close checkpoints the WAL and closes the database. Idempotent.
func (s *SQLiteItemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if s.db != nil {
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteItemStore) queryStrings(ctx context.Context, op, query string, args ...any) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, errClosed()
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mderrors.StorageFailure(op, err)
	}
	defer rows.Close()

	out := []string{}
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, mderrors.StorageFailure(op, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, mderrors.StorageFailure(op, err)
	}
	return out, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func decodeRecord(record string) (*media.Item, error) {
	var it media.Item
	if err := json.Unmarshal([]byte(record), &it); err != nil {
		return nil, fmt.Errorf("decode record: %w", err)
	}
	return &it, nil
}
