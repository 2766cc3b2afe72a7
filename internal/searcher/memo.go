package searcher

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/contactsearch/pkg/types"
)

// gathered is the expensive part of a search: ranked results from both
// sources and how they were obtained
type gathered struct {
	results      []types.SearchResult
	cacheUsed    bool
	ftsUsed      bool
	fallbackUsed bool
	cacheCount   int
	indexCount   int
	cacheIDs     []int64 // Cache hits in search order, touched again on a memo hit
}

// memoEntry is a cached gathered result with an expiration time
type memoEntry struct {
	value     *gathered
	expiresAt time.Time
}

// responseMemo caches ranked results per query for a short TTL. History,
// suggestions and paging are recomputed on every call, and the contact
// cache is touched for the memoised hits so LRU order follows use.
type responseMemo struct {
	mu    sync.RWMutex
	cache *lru.Cache[[32]byte, *memoEntry]
	ttl   time.Duration
}

func newResponseMemo(size int, ttl time.Duration) *responseMemo {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	cache, err := lru.New[[32]byte, *memoEntry](size)
	if err != nil {
		// Only fails for non-positive sizes, ruled out above
		panic(fmt.Sprintf("failed to create LRU cache: %v", err))
	}
	return &responseMemo{cache: cache, ttl: ttl}
}

// get returns a copy of the cached value for key, dropping it when expired
func (m *responseMemo) get(key [32]byte) (*gathered, bool) {
	if m == nil {
		return nil, false
	}
	now := time.Now()

	m.mu.RLock()
	entry, found := m.cache.Get(key)
	if !found {
		m.mu.RUnlock()
		return nil, false
	}
	if now.After(entry.expiresAt) {
		m.mu.RUnlock()

		m.mu.Lock()
		m.cache.Remove(key)
		m.mu.Unlock()
		return nil, false
	}
	value := copyGathered(entry.value)
	m.mu.RUnlock()

	return value, true
}

func (m *responseMemo) put(key [32]byte, value *gathered) {
	if m == nil {
		return
	}
	entry := &memoEntry{
		value:     copyGathered(value),
		expiresAt: time.Now().Add(m.ttl),
	}
	m.mu.Lock()
	m.cache.Add(key, entry)
	m.mu.Unlock()
}

// purge drops every entry; called whenever cache or index contents change
func (m *responseMemo) purge() {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.cache.Purge()
	m.mu.Unlock()
}

func (m *responseMemo) len() int {
	if m == nil {
		return 0
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cache.Len()
}

// copyGathered deep-copies results so callers can page and mutate freely
func copyGathered(src *gathered) *gathered {
	if src == nil {
		return nil
	}
	dst := *src
	dst.results = copyResults(src.results)
	dst.cacheIDs = append([]int64(nil), src.cacheIDs...)
	return &dst
}

func copyResults(src []types.SearchResult) []types.SearchResult {
	dst := make([]types.SearchResult, len(src))
	for i, r := range src {
		dst[i] = r
		dst[i].MatchedFields = append([]string(nil), r.MatchedFields...)
		if r.Metadata != nil {
			meta := make(map[string]any, len(r.Metadata))
			for k, v := range r.Metadata {
				meta[k] = v
			}
			dst[i].Metadata = meta
		}
	}
	return dst
}

// computeQueryHash derives the memo key from everything that shapes the
// gathered results
func computeQueryHash(query string, entityTypes []types.EntityType, budget int, skipContactCache bool) [32]byte {
	var data strings.Builder
	data.WriteString(strings.ToLower(query))
	data.WriteString("|")
	for _, et := range entityTypes {
		data.WriteString(string(et))
		data.WriteString(",")
	}
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%d", budget))
	data.WriteString("|")
	data.WriteString(fmt.Sprintf("%t", skipContactCache))

	return sha256.Sum256([]byte(data.String()))
}
