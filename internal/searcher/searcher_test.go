package searcher

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contactsearch/internal/cache"
	"github.com/dshills/contactsearch/internal/fulltext"
	"github.com/dshills/contactsearch/internal/logger"
	"github.com/dshills/contactsearch/internal/storage"
	"github.com/dshills/contactsearch/pkg/types"
)

// fakeIndex returns canned results truncated to the requested limit
type fakeIndex struct {
	results []types.SearchResult
	mode    fulltext.Mode
	panics  bool

	calls     int
	lastLimit int
	updated   []int64
	removed   []int64
	rebuilds  int
	optimized int
}

func (f *fakeIndex) Search(_ context.Context, _ string, _ []types.EntityType, limit int) ([]types.SearchResult, fulltext.Mode) {
	f.calls++
	f.lastLimit = limit
	if f.panics {
		panic("index corrupted")
	}
	out := copyResults(f.results[:min(len(f.results), limit)])
	return out, f.mode
}

func (f *fakeIndex) UpdateIndex(_ context.Context, _ types.EntityType, id int64) error {
	f.updated = append(f.updated, id)
	return nil
}

func (f *fakeIndex) RemoveFromIndex(_ context.Context, _ types.EntityType, id int64) error {
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeIndex) RebuildIndex(context.Context) error {
	f.rebuilds++
	return nil
}

func (f *fakeIndex) OptimizeIndex(context.Context) error {
	f.optimized++
	return nil
}

func (f *fakeIndex) GetIndexStats(context.Context) fulltext.Stats {
	return fulltext.Stats{Available: f.mode == fulltext.ModeFTS, Counts: map[types.EntityType]int64{}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Logger = logger.Discard()
	return cfg
}

func newCache(contacts ...types.Contact) *cache.ContactCache {
	c := cache.New(cache.Config{Logger: logger.Discard()})
	c.WarmCache(contacts)
	return c
}

func contactHit(id int64, title string, fields ...string) types.SearchResult {
	return types.SearchResult{
		EntityType:     types.EntityContact,
		EntityID:       id,
		Title:          title,
		RelevanceScore: 1.0,
		MatchedFields:  fields,
	}
}

func titles(results []types.SearchResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Title
	}
	return out
}

func TestSearchEmptyQuery(t *testing.T) {
	ctx := context.Background()
	s := New(newCache(types.Contact{ID: 1, Name: "Alice"}), &fakeIndex{}, testConfig())

	for _, q := range []string{"", "   "} {
		resp := s.Search(ctx, SearchRequest{Query: q})
		require.NotNil(t, resp)
		assert.Equal(t, 0, resp.Total)
		assert.NotNil(t, resp.Results)
		assert.Empty(t, resp.Results)
		assert.NotNil(t, resp.Suggestions)
		assert.Empty(t, resp.Suggestions)
		assert.Equal(t, SearchStats{}, resp.Stats)
	}
	assert.Empty(t, s.History())
}

func TestSearchNoSourcesAvailable(t *testing.T) {
	ctx := context.Background()
	s := New(newCache(), &fakeIndex{mode: fulltext.ModeNone}, testConfig())

	resp := s.Search(ctx, SearchRequest{Query: "alice"})
	assert.Equal(t, 0, resp.Total)
	assert.Empty(t, resp.Results)
	assert.Equal(t, []string{}, resp.Suggestions)
	assert.False(t, resp.Stats.CacheUsed)
	assert.False(t, resp.Stats.FTSUsed)
}

func TestSearchNilSources(t *testing.T) {
	s := New(nil, nil, testConfig())

	resp := s.Search(context.Background(), SearchRequest{Query: "alice"})
	assert.Equal(t, 0, resp.Total)
	assert.Empty(t, resp.Results)
	assert.Len(t, s.History(), 1)
}

func TestSearchMergesAndDeduplicates(t *testing.T) {
	ctx := context.Background()
	c := newCache(types.Contact{ID: 1, Name: "Alice Johnson", Email: "alice@example.com"})
	ix := &fakeIndex{
		mode: fulltext.ModeFTS,
		results: []types.SearchResult{
			{EntityType: types.EntityContact, EntityID: 1, Title: "Alice Johnson", RelevanceScore: 3.2},
			{EntityType: types.EntityNote, EntityID: 7, Title: "Alice birthday", RelevanceScore: 1.5},
		},
	}
	s := New(c, ix, testConfig())

	resp := s.Search(ctx, SearchRequest{Query: "alice"})
	assert.Equal(t, 2, resp.Total)
	require.Len(t, resp.Results["contacts"], 1)
	require.Len(t, resp.Results["notes"], 1)

	contact := resp.Results["contacts"][0]
	assert.Equal(t, "cache", contact.Metadata["source"])
	assert.Equal(t, 1.0, contact.RelevanceScore)
	assert.Equal(t, "alice@example.com", contact.Subtitle)
	assert.ElementsMatch(t, []string{"name", "email"}, contact.MatchedFields)

	assert.True(t, resp.Stats.CacheUsed)
	assert.True(t, resp.Stats.FTSUsed)
	assert.False(t, resp.Stats.FallbackUsed)
	assert.Equal(t, 1, resp.Stats.CacheResults)
	assert.Equal(t, 2, resp.Stats.IndexResults)

	// Cache takes half the budget, the index the rest
	assert.Equal(t, 19, ix.lastLimit)
}

func TestSearchRankingByTier(t *testing.T) {
	ix := &fakeIndex{
		mode: fulltext.ModeFTS,
		results: []types.SearchResult{
			contactHit(1, "Joanna"),
			contactHit(2, "Annabel"),
			contactHit(3, "Ann"),
		},
	}
	s := New(nil, ix, testConfig())

	resp := s.Search(context.Background(), SearchRequest{Query: "ANN"})
	got := resp.Results["contacts"]
	require.Len(t, got, 3)
	assert.Equal(t, []string{"Ann", "Annabel", "Joanna"}, titles(got))
	assert.Equal(t, types.TierExact, got[0].Tier)
	assert.Equal(t, types.TierPrefix, got[1].Tier)
	assert.Equal(t, types.TierContains, got[2].Tier)
	assert.InDelta(t, 1.3, got[0].Metadata["composite_score"], 1e-9)
}

func TestSearchSkipContactCache(t *testing.T) {
	c := newCache(types.Contact{ID: 1, Name: "Alice"})
	ix := &fakeIndex{mode: fulltext.ModeFTS}
	s := New(c, ix, testConfig())

	resp := s.Search(context.Background(), SearchRequest{Query: "alice", SkipContactCache: true})
	assert.False(t, resp.Stats.CacheUsed)
	assert.Equal(t, 20, ix.lastLimit)

	// Contacts out of scope also skips the cache
	resp = s.Search(context.Background(), SearchRequest{Query: "alice", EntityTypes: []types.EntityType{types.EntityNote}})
	assert.False(t, resp.Stats.CacheUsed)
}

func TestSearchPaging(t *testing.T) {
	ix := &fakeIndex{mode: fulltext.ModeFTS}
	for i := range 5 {
		ix.results = append(ix.results, types.SearchResult{
			EntityType:     types.EntityNote,
			EntityID:       int64(i + 1),
			Title:          fmt.Sprintf("note %c", 'a'+i),
			RelevanceScore: 1.0,
		})
	}
	s := New(nil, ix, testConfig())

	resp := s.Search(context.Background(), SearchRequest{Query: "note", Limit: 2, Offset: 2})
	assert.Equal(t, 4, ix.lastLimit)
	assert.Equal(t, 4, resp.Total)
	assert.Equal(t, []string{"note c", "note d"}, titles(resp.Results["notes"]))

	resp = s.Search(context.Background(), SearchRequest{Query: "note", Limit: 2, Offset: 10})
	assert.Empty(t, resp.Results)
}

func TestSearchLimitClamped(t *testing.T) {
	ix := &fakeIndex{mode: fulltext.ModeFTS}
	cfg := testConfig()
	cfg.MaxLimit = 50
	s := New(nil, ix, cfg)

	s.Search(context.Background(), SearchRequest{Query: "x", Limit: 500})
	assert.Equal(t, 50, ix.lastLimit)
}

func TestSearchSourceFailureIsIsolated(t *testing.T) {
	c := newCache(types.Contact{ID: 1, Name: "Alice"})
	ix := &fakeIndex{mode: fulltext.ModeFTS, panics: true}
	s := New(c, ix, testConfig())

	resp := s.Search(context.Background(), SearchRequest{Query: "alice"})
	assert.Equal(t, 1, resp.Total)
	assert.True(t, resp.Stats.CacheUsed)
	assert.False(t, resp.Stats.FTSUsed)
	assert.Equal(t, 0, resp.Stats.IndexResults)
}

func TestSearchSuggestionsWithResults(t *testing.T) {
	ix := &fakeIndex{
		mode: fulltext.ModeFTS,
		results: []types.SearchResult{
			contactHit(1, "Alice", "name", "email"),
			{EntityType: types.EntityNote, EntityID: 2, Title: "Alice notes", RelevanceScore: 1.0},
		},
	}
	s := New(nil, ix, testConfig())

	resp := s.Search(context.Background(), SearchRequest{Query: "alice"})
	assert.ElementsMatch(t, []string{"contacts:alice", "notes:alice", "email:alice"}, resp.Suggestions)

	resp = s.Search(context.Background(), SearchRequest{Query: "alice", SkipSuggestions: true})
	assert.Empty(t, resp.Suggestions)
}

func TestSearchSuggestionsWithoutResults(t *testing.T) {
	s := New(nil, &fakeIndex{}, testConfig())
	ctx := context.Background()

	resp := s.Search(ctx, SearchRequest{Query: "alice marie jones"})
	assert.Equal(t, []string{"alice", "alice marie"}, resp.Suggestions)

	s.Search(ctx, SearchRequest{Query: "acme corp dinner"})
	resp = s.Search(ctx, SearchRequest{Query: "acme corp"})
	assert.Equal(t, []string{"acme", "acme corp dinner"}, resp.Suggestions)
}

func TestSearchSuggestionsCapped(t *testing.T) {
	s := New(nil, &fakeIndex{}, testConfig())
	ctx := context.Background()

	for _, q := range []string{"bob one", "bob two", "bob three", "bob four", "bob five"} {
		s.Search(ctx, SearchRequest{Query: q})
	}
	resp := s.Search(ctx, SearchRequest{Query: "bob"})
	// Single token yields nothing itself; at most three popular matches
	assert.Len(t, resp.Suggestions, 3)
	for _, sg := range resp.Suggestions {
		assert.Contains(t, sg, "bob")
		assert.NotEqual(t, "bob", sg)
	}
}

func TestHistoryAndPopularityCaps(t *testing.T) {
	cfg := testConfig()
	cfg.MaxHistory = 3
	cfg.MaxPopular = 4
	s := New(nil, nil, cfg)

	for _, q := range []string{"a", "A", "a", "b", "b", "c", "d", "e"} {
		s.Search(context.Background(), SearchRequest{Query: q})
	}

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, "e", history[2].Query)
	assert.Equal(t, []string{"e", "d", "c"}, s.RecentQueries())

	assert.Equal(t, map[string]int{"a": 3, "b": 2, "c": 1}, s.PopularQueries())
}

func TestAutocompleteQueryField(t *testing.T) {
	s := New(nil, nil, testConfig())
	ctx := context.Background()
	for range 3 {
		s.Search(ctx, SearchRequest{Query: "jane"})
	}
	for range 5 {
		s.Search(ctx, SearchRequest{Query: "john"})
	}
	s.Search(ctx, SearchRequest{Query: "bob"})

	got := s.Autocomplete("j", "query", 0)
	require.Len(t, got, 2)
	assert.Equal(t, "john", got[0].Text)
	assert.Equal(t, "jane", got[1].Text)
	assert.Equal(t, "query", got[0].Field)
	assert.Nil(t, got[0].EntityID)

	assert.Len(t, s.Autocomplete("j", "query", 1), 1)
}

func TestAutocompleteContactFields(t *testing.T) {
	c := newCache(
		types.Contact{ID: 1, Name: "John Doe", Email: "jd@example.com", Phone: "555-0100"},
		types.Contact{ID: 2, Name: "John Smith"},
		types.Contact{ID: 3, Name: "Johnny Appleseed"},
	)
	s := New(c, nil, testConfig())

	got := s.Autocomplete("joh", "name", 10)
	require.Len(t, got, 3)
	byText := make(map[string]int64)
	for _, item := range got {
		require.NotNil(t, item.EntityID)
		assert.Equal(t, types.EntityContact, item.EntityType)
		assert.Equal(t, "name", item.Field)
		byText[item.Text] = *item.EntityID
	}
	assert.Equal(t, map[string]int64{"John Doe": 1, "John Smith": 2, "Johnny Appleseed": 3}, byText)

	phone := s.Autocomplete("555", "phone", 10)
	require.Len(t, phone, 1)
	assert.Equal(t, "phone", phone[0].Field)

	assert.Empty(t, s.Autocomplete("joh", "company", 10))
	assert.Empty(t, s.Autocomplete("", "name", 10))
}

func TestGetSuggestions(t *testing.T) {
	s := New(nil, nil, testConfig())
	ctx := context.Background()
	for _, q := range []string{"john smith", "mary jones", "john"} {
		s.Search(ctx, SearchRequest{Query: q})
	}

	assert.Equal(t, []string{"john smith"}, s.GetSuggestions("john"))
	assert.Equal(t, []string{"smith", "john", "john smith"}, s.GetSuggestions("smith john"))
	assert.Equal(t, []string{}, s.GetSuggestions(""))
	assert.Equal(t, []string{}, s.GetSuggestions("zzz"))
}

func TestResponseMemo(t *testing.T) {
	ix := &fakeIndex{mode: fulltext.ModeFTS, results: []types.SearchResult{contactHit(1, "Alice")}}
	s := New(nil, ix, testConfig())
	ctx := context.Background()

	first := s.Search(ctx, SearchRequest{Query: "alice"})
	second := s.Search(ctx, SearchRequest{Query: "Alice"})
	assert.Equal(t, 1, ix.calls)
	assert.False(t, first.Stats.ResponseCached)
	assert.True(t, second.Stats.ResponseCached)
	assert.Equal(t, first.Total, second.Total)

	// Mutating a response does not leak into the memo
	second.Results["contacts"][0].Title = "changed"
	third := s.Search(ctx, SearchRequest{Query: "alice"})
	assert.Equal(t, "Alice", third.Results["contacts"][0].Title)

	require.NoError(t, s.RebuildIndex(ctx))
	s.Search(ctx, SearchRequest{Query: "alice"})
	assert.Equal(t, 2, ix.calls)

	require.NoError(t, s.IndexEntity(ctx, types.EntityContact, 1))
	s.Search(ctx, SearchRequest{Query: "alice"})
	assert.Equal(t, 3, ix.calls)
	assert.Equal(t, []int64{1}, ix.updated)

	require.NoError(t, s.RemoveEntity(ctx, types.EntityContact, 1))
	s.Search(ctx, SearchRequest{Query: "alice"})
	assert.Equal(t, 4, ix.calls)
	assert.Equal(t, []int64{1}, ix.removed)

	// History records memoised searches too
	assert.Len(t, s.History(), 6)
}

func TestResponseMemoTouchesCache(t *testing.T) {
	c := cache.New(cache.Config{MaxSize: 2, Logger: logger.Discard()})
	c.WarmCache([]types.Contact{
		{ID: 1, Name: "Alice Jones"},
		{ID: 2, Name: "Bob Stone"},
		{ID: 3, Name: "Carol White"},
	})
	s := New(c, nil, testConfig())
	ctx := context.Background()

	s.Search(ctx, SearchRequest{Query: "alice"})
	_, _ = c.GetContact(2)

	// A memoised search still promotes Alice, so loading Carol evicts Bob
	resp := s.Search(ctx, SearchRequest{Query: "alice"})
	require.True(t, resp.Stats.ResponseCached)
	_, _ = c.GetContact(3)

	hits := c.Stats().Hits
	_, ok := c.GetContact(1)
	require.True(t, ok)
	assert.Equal(t, hits+1, c.Stats().Hits, "alice should still be in the LRU")
}

func TestAutocompleteNamesInTrieOrder(t *testing.T) {
	s := New(newCache(
		types.Contact{ID: 1, Name: "John Doe"},
		types.Contact{ID: 2, Name: "John Smith"},
		types.Contact{ID: 3, Name: "Johnny Appleseed"},
		types.Contact{ID: 4, Name: "Alice Jones"},
	), nil, testConfig())

	items := s.Autocomplete("joh", "name", 10)
	require.Len(t, items, 3)
	for i, want := range []string{"John Doe", "John Smith", "Johnny Appleseed"} {
		assert.Equal(t, want, items[i].Text)
		require.NotNil(t, items[i].EntityID)
		assert.Equal(t, int64(i+1), *items[i].EntityID)
		assert.Equal(t, types.EntityContact, items[i].EntityType)
		assert.Equal(t, "name", items[i].Field)
	}
}

func TestResponseMemoDisabled(t *testing.T) {
	ix := &fakeIndex{mode: fulltext.ModeFTS}
	cfg := testConfig()
	cfg.ResponseCacheSize = 0
	s := New(nil, ix, cfg)

	s.Search(context.Background(), SearchRequest{Query: "alice"})
	s.Search(context.Background(), SearchRequest{Query: "alice"})
	assert.Equal(t, 2, ix.calls)
}

func TestResponseMemoExpires(t *testing.T) {
	m := newResponseMemo(4, time.Millisecond)
	key := computeQueryHash("q", nil, 10, false)
	m.put(key, &gathered{results: []types.SearchResult{contactHit(1, "A")}})

	_, ok := m.get(key)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	_, ok = m.get(key)
	assert.False(t, ok)
	assert.Equal(t, 0, m.len())
}

func TestComputeQueryHash(t *testing.T) {
	base := computeQueryHash("alice", types.AllEntityTypes, 20, false)
	assert.Equal(t, base, computeQueryHash("ALICE", types.AllEntityTypes, 20, false))
	assert.NotEqual(t, base, computeQueryHash("alice", []types.EntityType{types.EntityNote}, 20, false))
	assert.NotEqual(t, base, computeQueryHash("alice", types.AllEntityTypes, 40, false))
	assert.NotEqual(t, base, computeQueryHash("alice", types.AllEntityTypes, 20, true))
}

func TestDelegations(t *testing.T) {
	ctx := context.Background()
	c := newCache()
	ix := &fakeIndex{mode: fulltext.ModeFTS}
	s := New(c, ix, testConfig())

	s.WarmCache([]types.Contact{{ID: 1, Name: "Alice"}, {ID: 2, Name: "Bob"}})
	assert.Equal(t, 2, c.Stats().TotalContacts)

	require.NoError(t, s.OptimizeIndex(ctx))
	require.NoError(t, s.RebuildIndex(ctx))
	assert.Equal(t, 1, ix.optimized)
	assert.Equal(t, 1, ix.rebuilds)

	s.Search(ctx, SearchRequest{Query: "alice"})
	s.ClearCache()
	assert.Equal(t, 0, c.Stats().TotalContacts)
	assert.Len(t, s.History(), 1)

	s.ClearHistory()
	assert.Empty(t, s.History())
	assert.Empty(t, s.PopularQueries())

	noIndex := New(c, nil, testConfig())
	assert.ErrorIs(t, noIndex.RebuildIndex(ctx), fulltext.ErrIndexUnavailable)
	assert.ErrorIs(t, noIndex.OptimizeIndex(ctx), fulltext.ErrIndexUnavailable)
	assert.ErrorIs(t, noIndex.IndexEntity(ctx, types.EntityNote, 1), fulltext.ErrIndexUnavailable)
	assert.ErrorIs(t, noIndex.RemoveEntity(ctx, types.EntityNote, 1), fulltext.ErrIndexUnavailable)
}

func TestGetStats(t *testing.T) {
	ctx := context.Background()
	c := newCache(types.Contact{ID: 1, Name: "Alice"})
	ix := &fakeIndex{mode: fulltext.ModeFTS, results: []types.SearchResult{contactHit(2, "Alicia")}}
	s := New(c, ix, testConfig())

	s.Search(ctx, SearchRequest{Query: "ali"})
	s.Search(ctx, SearchRequest{Query: "ali"})
	s.Search(ctx, SearchRequest{Query: "bob"})

	st := s.GetStats(ctx)
	require.NotNil(t, st.Cache)
	require.NotNil(t, st.Index)
	assert.Equal(t, 1, st.Cache.TotalContacts)
	assert.True(t, st.Index.Available)
	assert.Equal(t, int64(3), st.Search.TotalSearches)
	assert.Equal(t, int64(2), st.Search.CacheHits)
	assert.Equal(t, int64(3), st.Search.IndexSearches)
	assert.Equal(t, int64(1), st.Search.ResponseMemoHits)
	assert.GreaterOrEqual(t, st.Search.AvgResponseMS, 0.0)
	assert.Equal(t, 3, st.HistorySize)
	assert.Equal(t, 2, st.PopularQueries)
	assert.Equal(t, 2, st.MemoEntries)

	bare := New(nil, nil, testConfig()).GetStats(ctx)
	assert.Nil(t, bare.Cache)
	assert.Nil(t, bare.Index)
}

func setupStore(t *testing.T, dropFTS bool) *storage.SQLiteStorage {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:", storage.WithLogger(logger.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	if dropFTS {
		for _, name := range storage.FullTextTables {
			_, err := store.DB().ExecContext(context.Background(), "DROP TABLE IF EXISTS "+name)
			require.NoError(t, err)
		}
	}
	return store
}

func TestSearchEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t, false)

	alice := &storage.Contact{Name: "Alice Johnson", Email: "alice@example.com"}
	require.NoError(t, store.CreateContact(ctx, alice))
	note := &storage.Note{ContactID: &alice.ID, Title: "Alice lunch", Content: "Tacos on Friday"}
	require.NoError(t, store.CreateNote(ctx, note))

	ix := fulltext.New(store.DB(), fulltext.Config{Logger: logger.Discard()})
	s := New(newCache(), ix, testConfig())
	require.NoError(t, s.RebuildIndex(ctx))
	require.NoError(t, s.WarmFromStore(ctx, store))

	resp := s.Search(ctx, SearchRequest{Query: "alice"})
	require.Len(t, resp.Results["contacts"], 1)
	require.Len(t, resp.Results["notes"], 1)
	assert.Equal(t, alice.ID, resp.Results["contacts"][0].EntityID)
	assert.Equal(t, note.ID, resp.Results["notes"][0].EntityID)
	assert.True(t, resp.Stats.CacheUsed)
	assert.True(t, resp.Stats.FTSUsed)
	assert.Contains(t, resp.Suggestions, "contacts:alice")
}

func TestSearchEndToEndIndexUnavailable(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t, true)
	ix := fulltext.New(store.DB(), fulltext.Config{Logger: logger.Discard()})
	s := New(newCache(), ix, testConfig())

	resp := s.Search(ctx, SearchRequest{Query: "alice"})
	assert.Equal(t, 0, resp.Total)
	assert.Empty(t, resp.Results)
	assert.Equal(t, []string{}, resp.Suggestions)
	assert.False(t, resp.Stats.CacheUsed)
	assert.False(t, resp.Stats.FTSUsed)
	assert.True(t, resp.Stats.FallbackUsed)
}
