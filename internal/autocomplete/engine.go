// Package autocomplete produces ranked as-you-type suggestions from several
// independent sources: the contact cache tries, recent and popular queries,
// and caller-supplied item lists matched exactly or fuzzily.
//
// Each source is best-effort. A source that panics is logged and skipped, and
// the remaining sources still contribute.
package autocomplete

import (
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/contactsearch/internal/cache"
	"github.com/dshills/contactsearch/internal/logger"
	"github.com/dshills/contactsearch/pkg/types"
)

// Config contains configuration for the autocomplete engine
type Config struct {
	MinQueryLength int     // Shorter queries return nothing (default: 1)
	MaxSuggestions int     // Result truncation (default: 10)
	FuzzyEnabled   bool    // Score item lists with FuzzyMatch (default: true)
	FuzzyThreshold float64 // Minimum fuzzy score kept (default: 0.6)

	// DebounceInterval is advisory; callers invoking the engine per keystroke
	// are expected to debounce
	DebounceInterval time.Duration

	DefaultField string // Item field matched when Context.Field is empty (default: "name")
	Logger       *log.Logger
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		MinQueryLength:   1,
		MaxSuggestions:   10,
		FuzzyEnabled:     true,
		FuzzyThreshold:   0.6,
		DebounceInterval: 150 * time.Millisecond,
		DefaultField:     "name",
	}
}

// CacheSource answers trie-backed prefix queries. *cache.ContactCache
// implements it.
type CacheSource interface {
	Autocomplete(prefix string, field cache.Field) []types.Suggestion
}

// HistorySource exposes past queries
type HistorySource interface {
	// RecentQueries returns recorded queries, newest first
	RecentQueries() []string
	// PopularQueries returns lowercased queries and how often they were run
	PopularQueries() map[string]int
}

// Item is one entry of a caller-supplied candidate list
type Item struct {
	ID       *int64
	Fields   map[string]string
	Metadata map[string]any
}

// Context narrows a single suggestion request
type Context struct {
	Field          string // Field to complete; empty uses Config.DefaultField
	IncludeHistory bool
	IncludePopular bool
	Items          []Item

	// Selected values are dropped from the results (case-insensitive)
	Selected []string
	// Exclude drops suggestions pointing at these entity ids
	Exclude []int64
}

// Engine gathers, filters and ranks suggestions
type Engine struct {
	cfg     Config
	cache   CacheSource
	history HistorySource
	logger  *log.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithCache attaches a trie-backed source
func WithCache(c CacheSource) Option {
	return func(e *Engine) { e.cache = c }
}

// WithHistory attaches a source of recent and popular queries
func WithHistory(h HistorySource) Option {
	return func(e *Engine) { e.history = h }
}

// New creates an engine
func New(cfg Config, opts ...Option) *Engine {
	defaults := DefaultConfig()
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = defaults.MinQueryLength
	}
	if cfg.MaxSuggestions <= 0 {
		cfg.MaxSuggestions = defaults.MaxSuggestions
	}
	if cfg.FuzzyThreshold <= 0 {
		cfg.FuzzyThreshold = defaults.FuzzyThreshold
	}
	if cfg.DefaultField == "" {
		cfg.DefaultField = defaults.DefaultField
	}

	e := &Engine{
		cfg:    cfg,
		logger: logger.OrDefault(cfg.Logger, "autocomplete"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the effective configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// GetSuggestions returns ranked suggestions for query
func (e *Engine) GetSuggestions(query string, actx Context) []types.Suggestion {
	query = strings.TrimSpace(query)
	if query == "" || len([]rune(query)) < e.cfg.MinQueryLength {
		return []types.Suggestion{}
	}

	field := actx.Field
	if field == "" {
		field = e.cfg.DefaultField
	}

	var suggestions []types.Suggestion
	gather := func(source types.SuggestionSource, fn func() []types.Suggestion) {
		defer func() {
			if r := recover(); r != nil {
				e.logger.Warn("suggestion source failed", "source", source, "error", r)
			}
		}()
		suggestions = append(suggestions, fn()...)
	}

	if e.cache != nil {
		if f, ok := cache.ParseField(field); ok {
			gather(types.SourceCache, func() []types.Suggestion {
				return e.cache.Autocomplete(query, f)
			})
		}
	}
	if e.history != nil && actx.IncludeHistory {
		gather(types.SourceHistory, func() []types.Suggestion {
			return historySuggestions(e.history.RecentQueries(), query)
		})
	}
	if e.history != nil && actx.IncludePopular {
		gather(types.SourcePopular, func() []types.Suggestion {
			return popularSuggestions(e.history.PopularQueries(), query)
		})
	}
	if len(actx.Items) > 0 {
		gather(types.SourceDatabase, func() []types.Suggestion {
			return e.itemSuggestions(actx.Items, field, query)
		})
	}

	suggestions = FilterSuggestions(suggestions, actx)
	return RankSuggestions(suggestions, e.cfg.MaxSuggestions)
}

func historySuggestions(recent []string, query string) []types.Suggestion {
	lq := strings.ToLower(query)
	out := make([]types.Suggestion, 0)
	for _, q := range recent {
		if strings.Contains(strings.ToLower(q), lq) {
			out = append(out, types.Suggestion{Text: q, Source: types.SourceHistory, Score: 0.8})
		}
	}
	return out
}

func popularSuggestions(popular map[string]int, query string) []types.Suggestion {
	lq := strings.ToLower(query)
	keys := make([]string, 0, len(popular))
	for q := range popular {
		if strings.Contains(strings.ToLower(q), lq) {
			keys = append(keys, q)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if popular[keys[i]] != popular[keys[j]] {
			return popular[keys[i]] > popular[keys[j]]
		}
		return keys[i] < keys[j]
	})

	out := make([]types.Suggestion, 0, len(keys))
	for _, q := range keys {
		count := popular[q]
		out = append(out, types.Suggestion{
			Text:     q,
			Source:   types.SourcePopular,
			Score:    0.7 + 0.01*float64(count),
			Metadata: map[string]any{"count": count},
		})
	}
	return out
}

func (e *Engine) itemSuggestions(items []Item, field, query string) []types.Suggestion {
	lq := strings.ToLower(query)
	out := make([]types.Suggestion, 0)
	for _, item := range items {
		value := item.Fields[field]
		if value == "" {
			continue
		}
		lv := strings.ToLower(value)

		var score float64
		switch {
		case e.cfg.FuzzyEnabled:
			score = FuzzyMatch(lq, lv)
			if score < e.cfg.FuzzyThreshold {
				continue
			}
		case strings.HasPrefix(lv, lq):
			score = 0.9
			if lv == lq {
				score = 1.0
			}
		case strings.Contains(lv, lq):
			score = 0.7
		default:
			continue
		}

		meta := map[string]any{"field": field}
		for k, v := range item.Metadata {
			meta[k] = v
		}
		out = append(out, types.Suggestion{
			Text:     value,
			Source:   types.SourceDatabase,
			Score:    score,
			EntityID: item.ID,
			Metadata: meta,
		})
	}
	return out
}

// FilterSuggestions drops suggestions whose text matches an already selected
// value or whose entity id is excluded
func FilterSuggestions(suggestions []types.Suggestion, actx Context) []types.Suggestion {
	selected := make(map[string]struct{}, len(actx.Selected))
	for _, s := range actx.Selected {
		selected[strings.ToLower(s)] = struct{}{}
	}
	excluded := make(map[int64]struct{}, len(actx.Exclude))
	for _, id := range actx.Exclude {
		excluded[id] = struct{}{}
	}

	out := make([]types.Suggestion, 0, len(suggestions))
	for _, s := range suggestions {
		if _, ok := selected[strings.ToLower(s.Text)]; ok {
			continue
		}
		if s.EntityID != nil {
			if _, ok := excluded[*s.EntityID]; ok {
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

// RankSuggestions orders suggestions by score times source priority,
// highest first, keeps the best copy of each text (case-insensitive) and
// truncates to limit. A non-positive limit keeps everything.
func RankSuggestions(suggestions []types.Suggestion, limit int) []types.Suggestion {
	ranked := make([]types.Suggestion, len(suggestions))
	copy(ranked, suggestions)
	sort.SliceStable(ranked, func(i, j int) bool {
		return weighted(ranked[i]) > weighted(ranked[j])
	})

	seen := make(map[string]struct{}, len(ranked))
	out := make([]types.Suggestion, 0, len(ranked))
	for _, s := range ranked {
		key := strings.ToLower(s.Text)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

func weighted(s types.Suggestion) float64 {
	return s.Score * s.Source.Priority()
}
