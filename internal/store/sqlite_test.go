package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/media"
)

func TestSQLiteItemStore_PersistsAcrossReopen(t *testing.T) {
	// Given: a file-backed store with one item
	path := filepath.Join(t.TempDir(), "media.db")
	s, err := NewSQLiteItemStore(path, DefaultOptions())
	require.NoError(t, err)
	it := flagDE()
	_, err = s.Upsert(context.Background(), []*media.Item{it})
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// When: reopening
	s, err = NewSQLiteItemStore(path, DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	// Then: the item and its text entry survive
	res, err := s.Search(context.Background(), SearchRequest{Query: "germ"})
	require.NoError(t, err)
	assert.Equal(t, []string{it.ID()}, ids(res))
	assert.Equal(t, path, s.Path())
}

func TestSQLiteItemStore_CorruptFileIsCleared(t *testing.T) {
	// Given: garbage where the database should be
	path := filepath.Join(t.TempDir(), "media.db")
	require.NoError(t, os.WriteFile(path, []byte("definitely not sqlite"), 0644))

	// When: opening
	s, err := NewSQLiteItemStore(path, DefaultOptions())

	// Then: the file is replaced with an empty, working index
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	n, err := s.Count(context.Background(), "", false)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteItemStore_TextIndexRepair(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteItemStore("", DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	it := icon("arrow", "outline")
	_, err = s.Upsert(ctx, []*media.Item{it})
	require.NoError(t, err)

	// Given: a text entry removed behind the triggers' back
	_, err = s.db.Exec(`INSERT INTO media_fts(media_fts, rowid, name, canonical_name, tags, description, metadata)
		SELECT 'delete', seq, name, canonical_name, tags, description, metadata FROM media_items`)
	require.NoError(t, err)

	textIDs, err := s.TextIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, textIDs)

	// When: rebuilding
	require.NoError(t, s.RebuildText(ctx))

	// Then: the record is searchable again
	textIDs, err = s.TextIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{it.ID()}, textIDs)
	res, err := s.Search(ctx, SearchRequest{Query: "arrow"})
	require.NoError(t, err)
	assert.Len(t, res, 1)
}

func TestSQLiteItemStore_SearchSurfacesDatabaseErrors(t *testing.T) {
	// Given: a store whose text index table is gone
	s, err := NewSQLiteItemStore(filepath.Join(t.TempDir(), "media.db"), DefaultOptions())
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	_, err = s.Upsert(context.Background(), []*media.Item{flagDE()})
	require.NoError(t, err)
	_, err = s.db.Exec(`DROP TRIGGER media_ai; DROP TRIGGER media_ad; DROP TRIGGER media_au; DROP TABLE media_fts`)
	require.NoError(t, err)

	// When: searching
	res, err := s.Search(context.Background(), SearchRequest{Query: "germ"})

	// Then: the failure is reported instead of an empty result
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, mderrors.ErrCodeStorageFailure, mderrors.GetCode(err))
}

func TestQueryTerms(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"arrow", []string{"arrow"}},
		{"Arrow-Right  home", []string{"arrow", "right", "home"}},
		{"arrow arrow", []string{"arrow"}},
		{`"quoted" (paren) NEAR/2`, []string{"quoted", "paren", "near", "2"}},
		{"   ", nil},
		{"*", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, QueryTerms(tt.query))
		})
	}
}

func TestFTSMatchExpr(t *testing.T) {
	assert.Equal(t, "", ftsMatchExpr(nil))
	assert.Equal(t, `"arr"*`, ftsMatchExpr([]string{"arr"}))
	assert.Equal(t, `"arr"* OR "ho"*`, ftsMatchExpr([]string{"arr", "ho"}))
}

func TestPatternEscaping(t *testing.T) {
	assert.Equal(t, `%50\%\_off%`, likeContains("50%_OFF"))
	assert.Equal(t, "*a?b*", wildcardContains("A*b"))
}
