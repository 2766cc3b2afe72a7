package searcher

import (
	"sort"
	"strings"
	"time"
)

const (
	maxSuggestions        = 5
	maxPopularSuggestions = 3
	suggestionTopResults  = 5

	// popularRetain is the share of popularity entries kept after pruning
	popularRetain = 0.75
)

// HistoryEntry is one recorded search
type HistoryEntry struct {
	Query     string    `json:"query"`
	Timestamp time.Time `json:"timestamp"`
}

// queryLog holds bounded search history and per-query popularity counts.
// Callers hold Searcher.mu.
type queryLog struct {
	maxHistory int
	maxPopular int

	history    []HistoryEntry // oldest first
	popularity map[string]int // lowercased query -> count
}

func newQueryLog(maxHistory, maxPopular int) *queryLog {
	return &queryLog{
		maxHistory: maxHistory,
		maxPopular: maxPopular,
		popularity: make(map[string]int),
	}
}

func (l *queryLog) record(query string, at time.Time) {
	l.history = append(l.history, HistoryEntry{Query: query, Timestamp: at})
	if over := len(l.history) - l.maxHistory; over > 0 {
		l.history = append([]HistoryEntry(nil), l.history[over:]...)
	}

	l.popularity[strings.ToLower(query)]++
	if len(l.popularity) > l.maxPopular {
		l.prunePopular()
	}
}

// prunePopular keeps the highest-count entries, ties broken by key
func (l *queryLog) prunePopular() {
	keep := int(float64(l.maxPopular) * popularRetain)
	if keep < 1 {
		keep = 1
	}
	ranked := l.rankedPopular("")
	if len(ranked) <= keep {
		return
	}
	pruned := make(map[string]int, keep)
	for _, q := range ranked[:keep] {
		pruned[q] = l.popularity[q]
	}
	l.popularity = pruned
}

// rankedPopular returns popularity keys containing substr (all keys when
// substr is empty), most popular first
func (l *queryLog) rankedPopular(substr string) []string {
	keys := make([]string, 0, len(l.popularity))
	for q := range l.popularity {
		if strings.Contains(q, substr) {
			keys = append(keys, q)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		ci, cj := l.popularity[keys[i]], l.popularity[keys[j]]
		if ci != cj {
			return ci > cj
		}
		return keys[i] < keys[j]
	})
	return keys
}

// popularWithPrefix returns popularity keys starting with prefix, most
// popular first
func (l *queryLog) popularWithPrefix(prefix string) []string {
	var out []string
	for _, q := range l.rankedPopular(prefix) {
		if strings.HasPrefix(q, prefix) {
			out = append(out, q)
		}
	}
	return out
}

// recentQueries returns recorded queries newest first
func (l *queryLog) recentQueries() []string {
	out := make([]string, 0, len(l.history))
	for i := len(l.history) - 1; i >= 0; i-- {
		out = append(out, l.history[i].Query)
	}
	return out
}

func (l *queryLog) reset() {
	l.history = nil
	l.popularity = make(map[string]int)
}

// suggestionSet collects distinct suggestions, skipping the query itself
type suggestionSet struct {
	query string
	seen  map[string]struct{}
	items []string
}

func newSuggestionSet(query string) *suggestionSet {
	return &suggestionSet{query: strings.ToLower(query), seen: make(map[string]struct{})}
}

func (s *suggestionSet) add(text string) {
	text = strings.TrimSpace(text)
	key := strings.ToLower(text)
	if text == "" || key == s.query || s.full() {
		return
	}
	if _, ok := s.seen[key]; ok {
		return
	}
	s.seen[key] = struct{}{}
	s.items = append(s.items, text)
}

func (s *suggestionSet) full() bool {
	return len(s.items) >= maxSuggestions
}

func (s *suggestionSet) list() []string {
	if s.items == nil {
		return []string{}
	}
	return s.items
}
