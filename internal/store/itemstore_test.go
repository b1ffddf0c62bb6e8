package store

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mderrors "github.com/Aman-CERP/mediadex/internal/errors"
	"github.com/Aman-CERP/mediadex/internal/media"
)

// ============================================================================
// Behavior shared by every ItemStore backend. Each test runs once per backend
// against an in-memory store.
// ============================================================================

var backends = []Backend{BackendSQLite, BackendBleve}

func eachBackend(t *testing.T, fn func(t *testing.T, s ItemStore)) {
	t.Helper()
	for _, b := range backends {
		t.Run(string(b), func(t *testing.T) {
			s, err := Open("", b, DefaultOptions())
			require.NoError(t, err)
			defer func() { _ = s.Close() }()
			fn(t, s)
		})
	}
}

func icon(name, style string, tags ...string) *media.Item {
	return &media.Item{
		SourceID: "icons",
		Path:     style + "/" + name + ".svg",
		Name:     name,
		Format:   "svg",
		Style:    style,
		Tags:     tags,
	}
}

func flagDE() *media.Item {
	return &media.Item{
		SourceID: "flags",
		Path:     "de.svg",
		Name:     "flag: Germany",
		Format:   "svg",
		Tags:     []string{"flag", "de", "germany"},
		License:  &media.License{SPDX: "MIT"},
	}
}

func ids(results []*ScoredItem) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Item.ID()
	}
	return out
}

func TestItemStore_UpsertAndGet(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()

		// Given: an item with metadata and a license
		it := flagDE()
		it.Metadata = media.Metadata{Kind: media.KindEmoji, Markdown: "de", Aliases: []string{"germany"}}

		// When: upserting and reading it back
		n, err := s.Upsert(ctx, []*media.Item{it})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := s.Get(ctx, it.ID())
		require.NoError(t, err)

		// Then: the record round-trips
		require.NotNil(t, got)
		assert.Equal(t, it.Name, got.Name)
		assert.Equal(t, it.Tags, got.Tags)
		assert.Equal(t, "MIT", got.LicenseID())
		assert.Equal(t, "de", got.Metadata.Markdown)
	})
}

func TestItemStore_Get_MissingIsNil(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		got, err := s.Get(context.Background(), "0000000000000000")
		require.NoError(t, err)
		assert.Nil(t, got)
	})
}

// Idempotent reindex
func TestItemStore_Upsert_Idempotent(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()
		items := []*media.Item{icon("arrow-right", "outline"), icon("arrow-right", "solid")}

		_, err := s.Upsert(ctx, items)
		require.NoError(t, err)
		before, err := s.Get(ctx, items[0].ID())
		require.NoError(t, err)

		// When: indexing the same items again
		_, err = s.Upsert(ctx, items)
		require.NoError(t, err)

		// Then: count and record are unchanged
		n, err := s.Count(ctx, "icons", false)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		after, err := s.Get(ctx, items[0].ID())
		require.NoError(t, err)
		assert.Equal(t, before, after)

		// And: the text index still holds exactly one entry per record
		textIDs, err := s.TextIDs(ctx)
		require.NoError(t, err)
		recordIDs, err := s.RecordIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, recordIDs, textIDs)
	})
}

func TestItemStore_Upsert_OverwritesFields(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()
		it := icon("arrow", "outline", "direction")
		_, err := s.Upsert(ctx, []*media.Item{it})
		require.NoError(t, err)

		// When: the same id is written with new tags
		updated := icon("arrow", "outline", "pointer")
		_, err = s.Upsert(ctx, []*media.Item{updated})
		require.NoError(t, err)

		// Then: search sees the new tags only
		res, err := s.Search(ctx, SearchRequest{Query: "pointer"})
		require.NoError(t, err)
		assert.Equal(t, []string{it.ID()}, ids(res))

		res, err = s.Search(ctx, SearchRequest{Query: "direction"})
		require.NoError(t, err)
		assert.Empty(t, res)
	})
}

func TestItemStore_Search_PrefixOR(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()
		arrow := icon("arrow-right", "outline")
		home := icon("home", "outline", "house")
		_, err := s.Upsert(ctx, []*media.Item{arrow, home, flagDE()})
		require.NoError(t, err)

		// When: a prefix of one term
		res, err := s.Search(ctx, SearchRequest{Query: "arr"})
		require.NoError(t, err)
		assert.Equal(t, []string{arrow.ID()}, ids(res))
		assert.Greater(t, res[0].Score, 0.0)

		// When: two terms matching different items
		res, err = s.Search(ctx, SearchRequest{Query: "arr hou"})
		require.NoError(t, err)
		got := ids(res)
		sort.Strings(got)
		want := []string{arrow.ID(), home.ID()}
		sort.Strings(want)
		assert.Equal(t, want, got)
	})
}

func TestItemStore_Search_EmptyQuery(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()
		_, err := s.Upsert(ctx, []*media.Item{icon("arrow", "outline")})
		require.NoError(t, err)

		for _, q := range []string{"", "   ", "--", "*"} {
			res, err := s.Search(ctx, SearchRequest{Query: q})
			require.NoError(t, err, "query %q", q)
			assert.Empty(t, res, "query %q", q)
		}
	})
}

func TestItemStore_Search_SyntaxCharactersAreSanitized(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()
		arrow := icon("arrow", "outline")
		_, err := s.Upsert(ctx, []*media.Item{arrow})
		require.NoError(t, err)

		res, err := s.Search(ctx, SearchRequest{Query: `"arr" OR (NEAR`})
		require.NoError(t, err)
		assert.Equal(t, []string{arrow.ID()}, ids(res))
	})
}

func TestItemStore_Search_Filters(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()
		outline := icon("star", "outline", "favorite")
		solid := icon("star", "solid", "rating")
		png := &media.Item{SourceID: "stock", Path: "star.png", Name: "star", Format: "png", Tags: []string{"Night-Sky"}}
		fruit := &media.Item{SourceID: "stock", Path: "star-fruit.jpg", Name: "star fruit", Format: "jpg", Tags: []string{"ÄPFEL"}}
		_, err := s.Upsert(ctx, []*media.Item{outline, solid, png, fruit})
		require.NoError(t, err)

		tests := []struct {
			name   string
			filter Filter
			want   []string
		}{
			{"source", Filter{SourceID: "stock"}, []string{png.ID(), fruit.ID()}},
			{"unknown source", Filter{SourceID: "nope"}, nil},
			{"format", Filter{Formats: []string{"svg"}}, []string{outline.ID(), solid.ID()}},
			{"style", Filter{Styles: []string{"solid"}}, []string{solid.ID()}},
			{"tag substring", Filter{Tags: []string{"fav"}}, []string{outline.ID()}},
			{"tag case-insensitive", Filter{Tags: []string{"night"}}, []string{png.ID()}},
			{"tag case-insensitive beyond ASCII", Filter{Tags: []string{"äpfel"}}, []string{fruit.ID()}},
			{"tag filter upper-cased beyond ASCII", Filter{Tags: []string{"ÄPF"}}, []string{fruit.ID()}},
			{"tags OR", Filter{Tags: []string{"fav", "rat"}}, []string{outline.ID(), solid.ID()}},
			{"AND across filters", Filter{SourceID: "icons", Tags: []string{"rat"}, Styles: []string{"outline"}}, nil},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				res, err := s.Search(ctx, SearchRequest{Query: "star", Filter: tt.filter})
				require.NoError(t, err)
				got := ids(res)
				sort.Strings(got)
				want := append([]string(nil), tt.want...)
				sort.Strings(want)
				if len(want) == 0 {
					assert.Empty(t, got)
					return
				}
				assert.Equal(t, want, got)
			})
		}
	})
}

func TestItemStore_SearchByName(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()

		// Given: two styles of "arrow", an unrelated icon and a non-ASCII name
		outline := icon("Arrow", "outline")
		solid := icon("Arrow", "solid")
		barrow := &media.Item{SourceID: "stock", Path: "barrow.png", Name: "wheelbarrow", Format: "png"}
		bell := icon("bell", "outline")
		umlaut := &media.Item{SourceID: "stock", Path: "aepfel.png", Name: "ÄPFEL", Format: "png"}
		_, err := s.Upsert(ctx, []*media.Item{bell, solid, barrow, outline, umlaut})
		require.NoError(t, err)

		tests := []struct {
			name string
			req  NameRequest
			want []string
		}{
			{"substring, any case", NameRequest{Name: "ROW"}, []string{outline.ID(), solid.ID(), barrow.ID()}},
			{"source", NameRequest{Name: "row", SourceID: "stock"}, []string{barrow.ID()}},
			{"style", NameRequest{Name: "row", Style: "solid"}, []string{solid.ID()}},
			{"limit", NameRequest{Name: "row", Limit: 1}, []string{outline.ID()}},
			{"beyond ASCII", NameRequest{Name: "äpf"}, []string{umlaut.ID()}},
			{"no match", NameRequest{Name: "zebra"}, nil},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				// When: searching by name
				got, err := s.SearchByName(ctx, tt.req)
				require.NoError(t, err)

				// Then: matches come back ordered by source, name and style
				var gotIDs []string
				for _, it := range got {
					gotIDs = append(gotIDs, it.ID())
				}
				assert.Equal(t, tt.want, gotIDs)
			})
		}

		// And: an empty name selects every item
		all, err := s.SearchByName(ctx, NameRequest{})
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})
}

func TestItemStore_Search_DeterministicOrderAndPagination(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()

		// Given: items with identical searchable text, so scores tie
		var items []*media.Item
		for _, style := range []string{"a", "b", "c", "d", "e"} {
			items = append(items, icon("circle", style))
		}
		_, err := s.Upsert(ctx, items)
		require.NoError(t, err)

		// When: searching repeatedly
		first, err := s.Search(ctx, SearchRequest{Query: "circle"})
		require.NoError(t, err)
		second, err := s.Search(ctx, SearchRequest{Query: "circle"})
		require.NoError(t, err)

		// Then: ties are broken by id ascending, stable across calls
		all := ids(first)
		assert.Equal(t, all, ids(second))
		assert.True(t, sort.StringsAreSorted(all))

		// And: offset/limit slice the same order
		page, err := s.Search(ctx, SearchRequest{Query: "circle", Limit: 2, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, all[1:3], ids(page))
	})
}

// Source isolation and scenario 3
func TestItemStore_DeleteSource_Isolated(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()
		_, err := s.Upsert(ctx, []*media.Item{icon("arrow-right", "outline"), icon("arrow-right", "solid"), flagDE()})
		require.NoError(t, err)

		removed, err := s.DeleteSource(ctx, "icons")
		require.NoError(t, err)
		assert.Equal(t, 2, removed)

		n, err := s.Count(ctx, "icons", false)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		n, err = s.Count(ctx, "flags", false)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		res, err := s.Search(ctx, SearchRequest{Query: "arrow"})
		require.NoError(t, err)
		assert.Empty(t, res)

		removed, err = s.DeleteSource(ctx, "icons")
		require.NoError(t, err)
		assert.Equal(t, 0, removed)
	})
}

func TestItemStore_ReplaceSource(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()
		keep := icon("arrow", "outline")
		gone := icon("trash", "outline")
		_, err := s.Upsert(ctx, []*media.Item{keep, gone, flagDE()})
		require.NoError(t, err)

		// When: the rescanned source no longer has "trash" but has a new item
		added := icon("plus", "outline")
		removed, n, err := s.ReplaceSource(ctx, "icons", []*media.Item{keep, added})
		require.NoError(t, err)

		// Then: removed counts the old items, added the new ones
		assert.Equal(t, 2, removed)
		assert.Equal(t, 2, n)

		got, err := s.Get(ctx, gone.ID())
		require.NoError(t, err)
		assert.Nil(t, got)

		counts, err := s.SourceCounts(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"icons": 2, "flags": 1}, counts)
	})
}

func TestItemStore_Clear(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()
		_, err := s.Upsert(ctx, []*media.Item{icon("arrow", "outline"), flagDE()})
		require.NoError(t, err)

		require.NoError(t, s.Clear(ctx))

		n, err := s.Count(ctx, "", false)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		sources, err := s.Sources(ctx)
		require.NoError(t, err)
		assert.Empty(t, sources)
	})
}

func TestItemStore_LookupOperations(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()
		_, err := s.Upsert(ctx, []*media.Item{
			icon("arrow", "solid"),
			icon("arrow", "outline"),
			icon("home", "outline"),
			icon("dot", ""),
			flagDE(),
		})
		require.NoError(t, err)

		variants, err := s.Variants(ctx, "icons", "arrow")
		require.NoError(t, err)
		require.Len(t, variants, 2)
		assert.Equal(t, "outline", variants[0].Style)
		assert.Equal(t, "solid", variants[1].Style)

		none, err := s.Variants(ctx, "icons", "missing")
		require.NoError(t, err)
		assert.Empty(t, none)

		sources, err := s.Sources(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"flags", "icons"}, sources)

		styles, err := s.Styles(ctx, "")
		require.NoError(t, err)
		assert.Equal(t, []string{"outline", "solid"}, styles)
		styles, err = s.Styles(ctx, "flags")
		require.NoError(t, err)
		assert.Empty(t, styles)

		n, err := s.Count(ctx, "", false)
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		n, err = s.Count(ctx, "", true)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
		n, err = s.Count(ctx, "icons", true)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})
}

func TestItemStore_GenerationAdvancesOnWrite(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()
		g0, err := s.Generation(ctx)
		require.NoError(t, err)

		_, err = s.Upsert(ctx, []*media.Item{icon("arrow", "outline")})
		require.NoError(t, err)
		g1, err := s.Generation(ctx)
		require.NoError(t, err)
		assert.Greater(t, g1, g0)

		// Reads leave it alone
		_, err = s.Search(ctx, SearchRequest{Query: "arrow"})
		require.NoError(t, err)
		g2, err := s.Generation(ctx)
		require.NoError(t, err)
		assert.Equal(t, g1, g2)
	})
}

func TestItemStore_ClosedStoreFails(t *testing.T) {
	for _, b := range backends {
		t.Run(string(b), func(t *testing.T) {
			s, err := Open("", b, DefaultOptions())
			require.NoError(t, err)
			require.NoError(t, s.Close())
			require.NoError(t, s.Close(), "Close is idempotent")

			_, err = s.Search(context.Background(), SearchRequest{Query: "x"})
			assert.Equal(t, mderrors.ErrCodeStoreClosed, mderrors.GetCode(err))
			_, err = s.Upsert(context.Background(), []*media.Item{icon("a", "")})
			assert.ErrorIs(t, err, mderrors.ErrStoreClosed)
		})
	}
}

func TestItemStore_ReadersDuringReplaceSeeOneSide(t *testing.T) {
	eachBackend(t, func(t *testing.T, s ItemStore) {
		ctx := context.Background()

		// Given: two disjoint versions of the same source
		before := []*media.Item{icon("old1", "x"), icon("old2", "x"), icon("old3", "x")}
		after := []*media.Item{icon("new1", "y"), icon("new2", "y"), icon("new3", "y"), icon("new4", "y"), icon("new5", "y")}
		oldIDs, newIDs := map[string]bool{}, map[string]bool{}
		for _, it := range before {
			oldIDs[it.ID()] = true
		}
		for _, it := range after {
			newIDs[it.ID()] = true
		}
		_, err := s.Upsert(ctx, before)
		require.NoError(t, err)

		// When: the source flips between versions while readers query it
		type observation struct {
			count int
			ids   []string
		}
		seen := make(chan observation, 400)
		var wg sync.WaitGroup
		for range 4 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 25 {
					n, err := s.Count(ctx, "icons", false)
					if err != nil {
						continue
					}
					res, err := s.Search(ctx, SearchRequest{Query: "old new", Filter: Filter{SourceID: "icons"}})
					if err != nil {
						continue
					}
					seen <- observation{count: n, ids: ids(res)}
				}
			}()
		}
		for i := range 10 {
			next := after
			if i%2 == 1 {
				next = before
			}
			_, _, err := s.ReplaceSource(ctx, "icons", next)
			require.NoError(t, err)
		}
		wg.Wait()
		close(seen)

		// Then: every read saw the whole old or the whole new source
		for obs := range seen {
			assert.Contains(t, []int{len(before), len(after)}, obs.count)
			if len(obs.ids) == 0 {
				continue
			}
			side := oldIDs
			if newIDs[obs.ids[0]] {
				side = newIDs
			}
			assert.Len(t, obs.ids, len(side), "partial search result %v", obs.ids)
			for _, id := range obs.ids {
				assert.True(t, side[id], "search mixed versions: %v", obs.ids)
			}
		}
	})
}
