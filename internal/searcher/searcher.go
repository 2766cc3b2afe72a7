package searcher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/contactsearch/internal/autocomplete"
	"github.com/dshills/contactsearch/internal/cache"
	"github.com/dshills/contactsearch/internal/fulltext"
	"github.com/dshills/contactsearch/internal/logger"
	"github.com/dshills/contactsearch/pkg/types"
)

// ContactSource is the in-memory contact cache consulted first
type ContactSource interface {
	Search(query string, limit int) []cache.CachedContact
	Touch(ids []int64)
	Autocomplete(prefix string, field cache.Field) []types.Suggestion
	WarmCache(records []types.Contact)
	Clear()
	Stats() cache.Stats
}

// IndexSource is the persistent full-text index
type IndexSource interface {
	Search(ctx context.Context, query string, entityTypes []types.EntityType, limit int) ([]types.SearchResult, fulltext.Mode)
	UpdateIndex(ctx context.Context, et types.EntityType, id int64) error
	RemoveFromIndex(ctx context.Context, et types.EntityType, id int64) error
	RebuildIndex(ctx context.Context) error
	OptimizeIndex(ctx context.Context) error
	GetIndexStats(ctx context.Context) fulltext.Stats
}

// ContactLister loads every stored contact for cache warming
type ContactLister interface {
	ListContacts(ctx context.Context) ([]types.Contact, error)
}

// Config contains configuration for the search orchestrator
type Config struct {
	DefaultLimit      int           // Results per search when unset (default: 20)
	MaxLimit          int           // Upper clamp for Limit (default: 100)
	MaxHistory        int           // Recorded queries kept (default: 100)
	MaxPopular        int           // Distinct popularity keys kept (default: 1000)
	ResponseCacheSize int           // Memoised searches; 0 disables (default: 256)
	ResponseCacheTTL  time.Duration // Memo lifetime; 0 disables (default: 30s)
	Logger            *log.Logger
}

// DefaultConfig returns the default orchestrator configuration
func DefaultConfig() Config {
	return Config{
		DefaultLimit:      20,
		MaxLimit:          100,
		MaxHistory:        100,
		MaxPopular:        1000,
		ResponseCacheSize: 256,
		ResponseCacheTTL:  30 * time.Second,
	}
}

// SearchRequest contains parameters for a unified search
type SearchRequest struct {
	Query            string
	EntityTypes      []types.EntityType // All types when empty
	Limit            int
	Offset           int
	SkipSuggestions  bool
	SkipContactCache bool // Query the index only
}

// SearchStats reports which sources served a search
type SearchStats struct {
	CacheUsed      bool    `json:"cache_used"`
	FTSUsed        bool    `json:"fts_used"`
	FallbackUsed   bool    `json:"fallback_used"`
	ResponseCached bool    `json:"response_cached"`
	CacheResults   int     `json:"cache_results"`
	IndexResults   int     `json:"index_results"`
	DurationMS     float64 `json:"duration_ms"`
}

// SearchResponse is the grouped result of a unified search
type SearchResponse struct {
	Query       string                          `json:"query"`
	Results     map[string][]types.SearchResult `json:"results"`
	Total       int                             `json:"total"`
	Suggestions []string                        `json:"suggestions"`
	Stats       SearchStats                     `json:"stats"`
}

// AutocompleteItem is one orchestrator autocomplete completion
type AutocompleteItem struct {
	Text       string           `json:"text"`
	EntityType types.EntityType `json:"entity_type,omitempty"`
	EntityID   *int64           `json:"entity_id,omitempty"`
	Field      string           `json:"field"`
}

// Metrics are rolling counters over every non-empty search
type Metrics struct {
	TotalSearches    int64   `json:"total_searches"`
	AvgResponseMS    float64 `json:"avg_response_ms"`
	CacheHits        int64   `json:"cache_hits"`
	IndexSearches    int64   `json:"index_searches"`
	ResponseMemoHits int64   `json:"response_memo_hits"`
}

// Stats aggregates the state of every component
type Stats struct {
	Cache          *cache.Stats    `json:"cache,omitempty"`
	Index          *fulltext.Stats `json:"index,omitempty"`
	Search         Metrics         `json:"search"`
	HistorySize    int             `json:"history_size"`
	PopularQueries int             `json:"popular_queries"`
	MemoEntries    int             `json:"memo_entries"`
}

// Searcher coordinates the contact cache and the full-text index behind one
// search, autocomplete and suggestion surface
type Searcher struct {
	cache  ContactSource
	index  IndexSource
	cfg    Config
	logger *log.Logger
	memo   *responseMemo

	mu      sync.Mutex // guards log and metrics
	log     *queryLog
	metrics Metrics
}

// New creates a Searcher. Either source may be nil; searches then skip it.
func New(contacts ContactSource, index IndexSource, cfg Config) *Searcher {
	defaults := DefaultConfig()
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = defaults.DefaultLimit
	}
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = defaults.MaxLimit
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = defaults.MaxHistory
	}
	if cfg.MaxPopular <= 0 {
		cfg.MaxPopular = defaults.MaxPopular
	}

	return &Searcher{
		cache:  contacts,
		index:  index,
		cfg:    cfg,
		logger: logger.OrDefault(cfg.Logger, "searcher"),
		memo:   newResponseMemo(cfg.ResponseCacheSize, cfg.ResponseCacheTTL),
		log:    newQueryLog(cfg.MaxHistory, cfg.MaxPopular),
	}
}

var _ autocomplete.HistorySource = (*Searcher)(nil)

func emptyResponse(query string) *SearchResponse {
	return &SearchResponse{
		Query:       query,
		Results:     map[string][]types.SearchResult{},
		Suggestions: []string{},
	}
}

// Search runs a unified search across the cache and the index. It never
// fails: a source that errors contributes no results.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) *SearchResponse {
	startTime := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return emptyResponse(req.Query)
	}
	s.validateRequest(&req)

	s.mu.Lock()
	s.log.record(query, startTime)
	s.mu.Unlock()

	lowered := strings.ToLower(query)
	budget := req.Offset + req.Limit

	key := computeQueryHash(lowered, req.EntityTypes, budget, req.SkipContactCache)
	g, memoHit := s.memo.get(key)
	if !memoHit {
		g = s.gather(ctx, query, lowered, req, budget)
		s.memo.put(key, g)
	} else if s.cache != nil && len(g.cacheIDs) > 0 {
		s.cache.Touch(g.cacheIDs)
	}

	resp := &SearchResponse{
		Query:       req.Query,
		Total:       len(g.results),
		Suggestions: []string{},
		Stats: SearchStats{
			CacheUsed:      g.cacheUsed,
			FTSUsed:        g.ftsUsed,
			FallbackUsed:   g.fallbackUsed,
			ResponseCached: memoHit,
			CacheResults:   g.cacheCount,
			IndexResults:   g.indexCount,
		},
	}

	page := g.results
	if req.Offset >= len(page) {
		page = nil
	} else {
		page = page[req.Offset:min(len(page), req.Offset+req.Limit)]
	}
	resp.Results = groupResults(page)

	if !req.SkipSuggestions {
		resp.Suggestions = s.searchSuggestions(lowered, g.results)
	}

	elapsed := time.Since(startTime)
	resp.Stats.DurationMS = float64(elapsed.Microseconds()) / 1000
	s.recordMetrics(g, memoHit, elapsed)

	s.logger.Debug("search completed",
		"query", query,
		"total", resp.Total,
		"cache", g.cacheCount,
		"index", g.indexCount,
		"memo", memoHit,
		"duration", elapsed)

	return resp
}

// validateRequest applies defaults and clamps paging
func (s *Searcher) validateRequest(req *SearchRequest) {
	if req.Limit <= 0 {
		req.Limit = s.cfg.DefaultLimit
	}
	if req.Limit > s.cfg.MaxLimit {
		req.Limit = s.cfg.MaxLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	if len(req.EntityTypes) == 0 {
		req.EntityTypes = types.AllEntityTypes
		return
	}
	valid := make([]types.EntityType, 0, len(req.EntityTypes))
	for _, et := range req.EntityTypes {
		if et.Valid() {
			valid = append(valid, et)
		}
	}
	req.EntityTypes = valid
}

// gather queries both sources, merges and ranks
func (s *Searcher) gather(ctx context.Context, query, lowered string, req SearchRequest, budget int) *gathered {
	g := &gathered{}

	var cached []types.SearchResult
	if s.cache != nil && !req.SkipContactCache && containsEntity(req.EntityTypes, types.EntityContact) {
		if hits := s.searchCache(query, budget/2); len(hits) > 0 {
			cached = make([]types.SearchResult, 0, len(hits))
			g.cacheIDs = make([]int64, 0, len(hits))
			for _, c := range hits {
				cached = append(cached, contactResult(c, lowered))
				g.cacheIDs = append(g.cacheIDs, c.ID)
			}
		}
	}
	g.cacheCount = len(cached)
	g.cacheUsed = g.cacheCount > 0

	var indexed []types.SearchResult
	if s.index != nil && len(req.EntityTypes) > 0 {
		if remaining := budget - len(cached); remaining > 0 {
			var mode fulltext.Mode
			indexed, mode = s.searchIndex(ctx, query, req.EntityTypes, remaining)
			g.ftsUsed = mode == fulltext.ModeFTS
			g.fallbackUsed = mode == fulltext.ModeFallback
		}
	}
	g.indexCount = len(indexed)

	g.results = mergeResults(cached, indexed)
	rankResults(g.results, lowered)
	return g
}

func (s *Searcher) searchCache(query string, limit int) (hits []cache.CachedContact) {
	if limit <= 0 {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("contact cache search failed", "query", query, "error", r)
			hits = nil
		}
	}()
	return s.cache.Search(query, limit)
}

func (s *Searcher) searchIndex(ctx context.Context, query string, ets []types.EntityType, limit int) (results []types.SearchResult, mode fulltext.Mode) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("full-text search failed", "query", query, "error", r)
			results, mode = nil, fulltext.ModeNone
		}
	}()
	return s.index.Search(ctx, query, ets, limit)
}

// searchSuggestions proposes refinements for a query given its ranked results
func (s *Searcher) searchSuggestions(query string, results []types.SearchResult) []string {
	set := newSuggestionSet(query)

	if len(results) > 0 {
		buckets := make([]string, 0, len(types.AllEntityTypes))
		seen := make(map[string]bool)
		for _, r := range results {
			if b := r.EntityType.Bucket(); !seen[b] {
				seen[b] = true
				buckets = append(buckets, b)
			}
		}
		if len(buckets) > 1 {
			for _, b := range buckets {
				set.add(b + ":" + query)
			}
		}

		fields := make(map[string]bool)
		for _, r := range results[:min(len(results), suggestionTopResults)] {
			for _, f := range r.MatchedFields {
				fields[f] = true
			}
		}
		for _, f := range []string{"email", "phone"} {
			if fields[f] {
				set.add(f + ":" + query)
			}
		}
	} else if tokens := strings.Fields(query); len(tokens) > 0 {
		set.add(tokens[0])
		set.add(strings.Join(tokens[:len(tokens)-1], " "))
	}

	s.mu.Lock()
	popular := s.log.rankedPopular(query)
	s.mu.Unlock()

	added := 0
	for _, q := range popular {
		if added == maxPopularSuggestions || set.full() {
			break
		}
		before := len(set.items)
		set.add(q)
		if len(set.items) > before {
			added++
		}
	}
	return set.list()
}

func (s *Searcher) recordMetrics(g *gathered, memoHit bool, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := &s.metrics
	m.TotalSearches++
	ms := float64(elapsed.Microseconds()) / 1000
	m.AvgResponseMS += (ms - m.AvgResponseMS) / float64(m.TotalSearches)
	if g.cacheUsed {
		m.CacheHits++
	}
	if g.ftsUsed || g.fallbackUsed {
		m.IndexSearches++
	}
	if memoHit {
		m.ResponseMemoHits++
	}
}

// Autocomplete completes prefix for a contact field (name, email, phone) or
// for past queries (field "query")
func (s *Searcher) Autocomplete(prefix, field string, limit int) []AutocompleteItem {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return []AutocompleteItem{}
	}
	if limit <= 0 {
		limit = 10
	}
	field = strings.ToLower(field)

	if field == "query" {
		s.mu.Lock()
		matches := s.log.popularWithPrefix(strings.ToLower(prefix))
		s.mu.Unlock()

		items := make([]AutocompleteItem, 0, min(len(matches), limit))
		for _, q := range matches[:min(len(matches), limit)] {
			items = append(items, AutocompleteItem{Text: q, Field: field})
		}
		return items
	}

	f, ok := cache.ParseField(field)
	if !ok || s.cache == nil {
		return []AutocompleteItem{}
	}
	suggestions := s.cacheAutocomplete(prefix, f)

	items := make([]AutocompleteItem, 0, min(len(suggestions), limit))
	for _, sg := range suggestions[:min(len(suggestions), limit)] {
		items = append(items, AutocompleteItem{
			Text:       sg.Text,
			EntityType: types.EntityContact,
			EntityID:   sg.EntityID,
			Field:      string(f),
		})
	}
	return items
}

func (s *Searcher) cacheAutocomplete(prefix string, f cache.Field) (out []types.Suggestion) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn("contact cache autocomplete failed", "prefix", prefix, "error", r)
			out = nil
		}
	}()
	return s.cache.Autocomplete(prefix, f)
}

// GetSuggestions returns related past queries and word-level variations of query
func (s *Searcher) GetSuggestions(query string) []string {
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{}
	}
	lowered := strings.ToLower(query)
	set := newSuggestionSet(lowered)

	s.mu.Lock()
	recent := s.log.recentQueries()
	s.mu.Unlock()

	for _, q := range recent {
		if strings.Contains(strings.ToLower(q), lowered) {
			set.add(q)
		}
	}

	tokens := strings.Fields(lowered)
	if len(tokens) > 1 {
		for _, tok := range tokens {
			set.add(tok)
		}
	}
	if len(tokens) == 2 {
		set.add(tokens[1] + " " + tokens[0])
	}
	return set.list()
}

// RecentQueries returns recorded queries newest first
func (s *Searcher) RecentQueries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log.recentQueries()
}

// PopularQueries returns a copy of the popularity counts
func (s *Searcher) PopularQueries() map[string]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(s.log.popularity))
	for q, n := range s.log.popularity {
		out[q] = n
	}
	return out
}

// History returns recorded searches oldest first
func (s *Searcher) History() []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]HistoryEntry(nil), s.log.history...)
}

// WarmCache bulk-loads records into the contact cache
func (s *Searcher) WarmCache(records []types.Contact) {
	if s.cache == nil {
		return
	}
	s.cache.WarmCache(records)
	s.memo.purge()
}

// WarmFromStore loads every stored contact into the cache
func (s *Searcher) WarmFromStore(ctx context.Context, store ContactLister) error {
	records, err := store.ListContacts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list contacts: %w", err)
	}
	s.WarmCache(records)
	return nil
}

// IndexEntity refreshes one entity in the index after a write
func (s *Searcher) IndexEntity(ctx context.Context, et types.EntityType, id int64) error {
	if s.index == nil {
		return fulltext.ErrIndexUnavailable
	}
	defer s.memo.purge()
	return s.index.UpdateIndex(ctx, et, id)
}

// RemoveEntity drops one deleted entity from the index
func (s *Searcher) RemoveEntity(ctx context.Context, et types.EntityType, id int64) error {
	if s.index == nil {
		return fulltext.ErrIndexUnavailable
	}
	defer s.memo.purge()
	return s.index.RemoveFromIndex(ctx, et, id)
}

// RebuildIndex repopulates every full-text table
func (s *Searcher) RebuildIndex(ctx context.Context) error {
	if s.index == nil {
		return fulltext.ErrIndexUnavailable
	}
	defer s.memo.purge()
	return s.index.RebuildIndex(ctx)
}

// OptimizeIndex merges index segments
func (s *Searcher) OptimizeIndex(ctx context.Context) error {
	if s.index == nil {
		return fulltext.ErrIndexUnavailable
	}
	return s.index.OptimizeIndex(ctx)
}

// ClearCache empties the contact cache and memoised responses. History is kept.
func (s *Searcher) ClearCache() {
	if s.cache != nil {
		s.cache.Clear()
	}
	s.memo.purge()
}

// ClearHistory drops recorded queries and popularity counts
func (s *Searcher) ClearHistory() {
	s.mu.Lock()
	s.log.reset()
	s.mu.Unlock()
}

// GetStats reports cache, index and search statistics
func (s *Searcher) GetStats(ctx context.Context) Stats {
	var st Stats
	if s.cache != nil {
		cs := s.cache.Stats()
		st.Cache = &cs
	}
	if s.index != nil {
		is := s.index.GetIndexStats(ctx)
		st.Index = &is
	}

	s.mu.Lock()
	st.Search = s.metrics
	st.HistorySize = len(s.log.history)
	st.PopularQueries = len(s.log.popularity)
	s.mu.Unlock()

	st.MemoEntries = s.memo.len()
	return st
}

func containsEntity(list []types.EntityType, et types.EntityType) bool {
	for _, v := range list {
		if v == et {
			return true
		}
	}
	return false
}
