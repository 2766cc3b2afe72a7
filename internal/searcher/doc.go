// Package searcher implements unified contact search over an in-memory
// contact cache and a persistent full-text index.
//
// A search queries the cache first (contacts only, up to half the budget)
// and the index for the remainder. Results are merged with cache entries
// winning duplicates, then ranked by a composite score:
//
//	composite = 0.5*relevance + tier/200 (+0.3 exact title, +0.2 title prefix)
//
// where tier is 100/80/60/40/20 for exact, prefix, contains, fuzzy and
// partial title matches. Ranked results are grouped into buckets named
// after entity types (contacts, notes, tags, relationships).
//
// # Basic Usage
//
//	s := searcher.New(contactCache, indexer, searcher.DefaultConfig())
//
//	resp := s.Search(ctx, searcher.SearchRequest{Query: "alice", Limit: 20})
//	for bucket, results := range resp.Results {
//	    fmt.Printf("%s: %d\n", bucket, len(results))
//	}
//
// Search never returns an error. A source that fails or is unavailable
// contributes no results, and the response's Stats block reports which
// sources were used.
//
// # History
//
// Every non-empty query is recorded into bounded history and a
// case-insensitive popularity map. These feed search suggestions,
// Autocomplete on the "query" field and GetSuggestions. Searcher also
// satisfies autocomplete.HistorySource.
//
// # Caching
//
// Ranked results are memoised per query for a short TTL. The memo is
// purged whenever the cache is warmed or cleared and whenever the index is
// rebuilt or updated through IndexEntity or RemoveEntity.
package searcher
