// Package cache holds contacts in memory for low-latency search and
// as-you-type completion.
//
// ContactCache keeps two views of the same records: an unbounded,
// insertion-ordered backing map holding every contact ever added, and a
// bounded LRU of recently touched contacts used for hit/miss accounting.
// Three prefix tries (name, email, phone) answer autocomplete queries in
// O(prefix) time.
//
// Trie entries are never purged. Updating a contact adds keys for its new
// values but leaves the old ones; removing a contact leaves its keys in place.
// Lookups resolve ids against the backing map, so removed contacts disappear
// from results while a renamed contact is still reachable through its old
// name prefix.
package cache

import (
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	lru "github.com/hashicorp/golang-lru/v2"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/dshills/contactsearch/internal/logger"
	"github.com/dshills/contactsearch/pkg/types"
)

// Field selects which trie an autocomplete query runs against
type Field string

const (
	FieldName  Field = "name"
	FieldEmail Field = "email"
	FieldPhone Field = "phone"
)

// ParseField returns the Field for s and whether it names a trie-backed field
func ParseField(s string) (Field, bool) {
	switch f := Field(strings.ToLower(s)); f {
	case FieldName, FieldEmail, FieldPhone:
		return f, true
	}
	return "", false
}

const (
	// promoteLimit bounds how many search results are pushed into the LRU
	promoteLimit = 10

	defaultSearchLimit = 10
)

// Config contains configuration for the contact cache
type Config struct {
	MaxSize                int // LRU capacity (default: 1000)
	MaxAutocompleteResults int // Autocomplete truncation (default: 10)
	Logger                 *log.Logger
}

// DefaultConfig returns the default cache configuration
func DefaultConfig() Config {
	return Config{
		MaxSize:                1000,
		MaxAutocompleteResults: 10,
	}
}

// Stats is a snapshot of cache counters
type Stats struct {
	Hits                int64         `json:"hits"`
	Misses              int64         `json:"misses"`
	Evictions           int64         `json:"evictions"`
	AutocompleteQueries int64         `json:"autocomplete_queries"`
	Size                int           `json:"size"` // Entries in the LRU
	Capacity            int           `json:"capacity"`
	TotalContacts       int           `json:"total_contacts"` // Entries in the backing map
	HitRate             float64       `json:"hit_rate"`
	LastWarm            time.Time     `json:"last_warm"`
	LastWarmDuration    time.Duration `json:"last_warm_duration_ns"`
}

// ContactCache is a bounded LRU of contacts backed by an unbounded map and
// indexed by prefix tries
type ContactCache struct {
	mu     sync.Mutex
	cfg    Config
	logger *log.Logger

	lru      *lru.Cache[int64, *CachedContact]
	contacts *orderedmap.OrderedMap[int64, *CachedContact]

	names  *prefixIndex
	emails *prefixIndex
	phones *prefixIndex

	hits                int64
	misses              int64
	evictions           int64
	autocompleteQueries int64
	lastWarm            time.Time
	lastWarmDuration    time.Duration
}

// New creates a contact cache
func New(cfg Config) *ContactCache {
	defaults := DefaultConfig()
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = defaults.MaxSize
	}
	if cfg.MaxAutocompleteResults <= 0 {
		cfg.MaxAutocompleteResults = defaults.MaxAutocompleteResults
	}

	c := &ContactCache{
		cfg:    cfg,
		logger: logger.OrDefault(cfg.Logger, "cache"),
	}
	c.reset()
	return c
}

func (c *ContactCache) reset() {
	l, err := lru.New[int64, *CachedContact](c.cfg.MaxSize)
	if err != nil {
		// Only fails for non-positive sizes, which New rules out
		panic(err)
	}
	c.lru = l
	c.contacts = orderedmap.New[int64, *CachedContact]()
	c.names = newPrefixIndex(false)
	c.emails = newPrefixIndex(false)
	c.phones = newPrefixIndex(true)
}

// AddContact inserts or replaces a contact
func (c *ContactCache) AddContact(contact types.Contact) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(contact)
}

func (c *ContactCache) addLocked(contact types.Contact) {
	cc := newCachedContact(contact)
	c.contacts.Set(cc.ID, cc)
	c.promote(cc)
	c.index(cc)
}

// promote pushes cc to the most-recent end of the LRU
func (c *ContactCache) promote(cc *CachedContact) {
	if c.lru.Add(cc.ID, cc) {
		c.evictions++
	}
}

func (c *ContactCache) index(cc *CachedContact) {
	name := strings.ToLower(strings.TrimSpace(cc.Name))
	c.names.insert(name, cc.ID)
	c.names.insert(lastFirst(name), cc.ID)
	for _, tok := range strings.Fields(name) {
		c.names.insert(tok, cc.ID)
	}

	email := strings.ToLower(strings.TrimSpace(cc.Email))
	c.emails.insert(email, cc.ID)
	c.emails.insert(emailLocalPart(email), cc.ID)

	c.phones.insert(digitsOnly(cc.Phone), cc.ID)
}

// GetContact returns the contact with id. LRU hits count as hits; contacts
// found only in the backing map count as misses and are promoted.
func (c *ContactCache) GetContact(id int64) (CachedContact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cc, ok := c.lru.Get(id); ok {
		c.hits++
		cc.LastAccessed = time.Now()
		return *cc, true
	}

	cc, ok := c.contacts.Get(id)
	if !ok {
		return CachedContact{}, false
	}
	c.misses++
	cc.LastAccessed = time.Now()
	c.promote(cc)
	return *cc, true
}

// Search returns contacts matching query. Exact name and email trie hits come
// first; remaining slots are filled by a substring scan over keywords in
// backing-map insertion order.
func (c *ContactCache) Search(query string, limit int) []CachedContact {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []CachedContact{}
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[int64]bool)
	found := make([]*CachedContact, 0, limit)
	collect := func(ids []int64) {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			if cc, ok := c.contacts.Get(id); ok {
				seen[id] = true
				found = append(found, cc)
			}
		}
	}

	collect(c.names.exact(query))
	collect(c.emails.exact(query))

	if len(found) < limit {
		for pair := c.contacts.Oldest(); pair != nil && len(found) < limit; pair = pair.Next() {
			if seen[pair.Key] {
				continue
			}
			if pair.Value.matches(query) {
				seen[pair.Key] = true
				found = append(found, pair.Value)
			}
		}
	}

	if len(found) > limit {
		found = found[:limit]
	}

	now := time.Now()
	results := make([]CachedContact, len(found))
	for i, cc := range found {
		cc.LastAccessed = now
		if i < promoteLimit {
			c.promote(cc)
		}
		results[i] = *cc
	}
	return results
}

// Autocomplete returns distinct display values of the selected field whose
// trie key starts with prefix
func (c *ContactCache) Autocomplete(prefix string, field Field) []types.Suggestion {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.autocompleteQueries++

	prefix = strings.ToLower(strings.TrimSpace(prefix))
	var idx *prefixIndex
	switch field {
	case FieldName:
		idx = c.names
	case FieldEmail:
		idx = c.emails
	case FieldPhone:
		idx = c.phones
		prefix = digitsOnly(prefix)
	default:
		return []types.Suggestion{}
	}
	if prefix == "" {
		return []types.Suggestion{}
	}

	seenText := make(map[string]bool)
	suggestions := make([]types.Suggestion, 0, c.cfg.MaxAutocompleteResults)
	for _, id := range idx.withPrefix(prefix) {
		cc, ok := c.contacts.Get(id)
		if !ok {
			continue
		}
		text := displayValue(cc, field)
		if text == "" || seenText[text] {
			continue
		}
		seenText[text] = true

		score := 0.9
		if strings.EqualFold(text, prefix) {
			score = 1.0
		}
		entityID := cc.ID
		suggestions = append(suggestions, types.Suggestion{
			Text:     text,
			Source:   types.SourceCache,
			Score:    score,
			EntityID: &entityID,
			Metadata: map[string]any{
				"field":       string(field),
				"entity_type": string(types.EntityContact),
			},
		})
		if len(suggestions) >= c.cfg.MaxAutocompleteResults {
			break
		}
	}
	return suggestions
}

func displayValue(cc *CachedContact, field Field) string {
	switch field {
	case FieldEmail:
		return cc.Email
	case FieldPhone:
		return cc.Phone
	default:
		return cc.Name
	}
}

// WarmCache bulk-loads records and records how long it took
func (c *ContactCache) WarmCache(records []types.Contact) {
	start := time.Now()

	c.mu.Lock()
	for _, r := range records {
		c.addLocked(r)
	}
	c.lastWarm = time.Now()
	c.lastWarmDuration = time.Since(start)
	duration := c.lastWarmDuration
	c.mu.Unlock()

	c.logger.Info("cache warmed", "contacts", len(records), "duration", duration)
}

// ContactUpdate holds the fields to change; nil fields are left alone
type ContactUpdate struct {
	Name  *string
	Email *string
	Phone *string
	Tags  []string // nil leaves tags unchanged; an empty slice clears them
}

// UpdateContact applies upd to the cached contact and re-indexes it. Trie
// keys derived from the old values are kept.
func (c *ContactCache) UpdateContact(id int64, upd ContactUpdate) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	cc, ok := c.contacts.Get(id)
	if !ok {
		return false
	}

	if upd.Name != nil {
		cc.Name = *upd.Name
	}
	if upd.Email != nil {
		cc.Email = *upd.Email
	}
	if upd.Phone != nil {
		cc.Phone = *upd.Phone
	}
	if upd.Tags != nil {
		cc.Tags = append([]string(nil), upd.Tags...)
	}
	cc.LastAccessed = time.Now()
	cc.regenerateKeywords()
	c.index(cc)
	return true
}

// Touch applies the access side effects of a Search that returned ids, in
// order: access times are refreshed and the first results promoted. Hit and
// miss counters are unchanged.
func (c *ContactCache) Touch(ids []int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for i, id := range ids {
		cc, ok := c.contacts.Get(id)
		if !ok {
			continue
		}
		cc.LastAccessed = now
		if i < promoteLimit {
			c.promote(cc)
		}
	}
}

// RemoveContact drops a contact from the LRU and the backing map. Its trie
// keys are left in place.
func (c *ContactCache) RemoveContact(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(id)
	_, present := c.contacts.Delete(id)
	return present
}

// Clear drops every contact and trie entry. Counters are kept.
func (c *ContactCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

// Len returns the number of contacts in the backing map
func (c *ContactCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.contacts.Len()
}

// Stats returns a snapshot of the cache counters
func (c *ContactCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:                c.hits,
		Misses:              c.misses,
		Evictions:           c.evictions,
		AutocompleteQueries: c.autocompleteQueries,
		Size:                c.lru.Len(),
		Capacity:            c.cfg.MaxSize,
		TotalContacts:       c.contacts.Len(),
		LastWarm:            c.lastWarm,
		LastWarmDuration:    c.lastWarmDuration,
	}
	if total := s.Hits + s.Misses; total > 0 {
		s.HitRate = float64(s.Hits) / float64(total)
	}
	return s
}
