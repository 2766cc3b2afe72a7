package types

// Highlight marker pair wrapped around matched terms in snippets
const (
	HighlightStart = "<b>"
	HighlightEnd   = "</b>"
)

// PriorityTier is a coarse ranking bucket used as a tie-breaker above raw relevance
type PriorityTier int

const (
	TierPartial PriorityTier = iota
	TierFuzzy
	TierContains
	TierPrefix
	TierExact
)

// Value maps the tier onto the 100/80/60/40/20 scale used by composite ranking
func (p PriorityTier) Value() float64 {
	switch p {
	case TierExact:
		return 100
	case TierPrefix:
		return 80
	case TierContains:
		return 60
	case TierFuzzy:
		return 40
	default:
		return 20
	}
}

// MarshalText renders the tier by name in JSON output
func (p PriorityTier) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p PriorityTier) String() string {
	switch p {
	case TierExact:
		return "exact"
	case TierPrefix:
		return "prefix"
	case TierContains:
		return "contains"
	case TierFuzzy:
		return "fuzzy"
	default:
		return "partial"
	}
}

// SearchResult represents a single search hit from any source
type SearchResult struct {
	// Identification
	EntityType EntityType `json:"entity_type"`
	EntityID   int64      `json:"entity_id"`

	// Display
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
	Snippet  string `json:"snippet,omitempty"` // May contain highlight markers

	// Scoring
	RelevanceScore float64      `json:"relevance_score"` // Non-negative, larger is better
	Tier           PriorityTier `json:"tier"`
	MatchedFields  []string     `json:"matched_fields"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Key returns the (entity type, id) pair used for deduplication
func (sr *SearchResult) Key() ResultKey {
	return ResultKey{EntityType: sr.EntityType, EntityID: sr.EntityID}
}

// ResultKey identifies a result across sources
type ResultKey struct {
	EntityType EntityType
	EntityID   int64
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.EntityID == 0 {
		return ErrInvalidEntityID
	}

	if !sr.EntityType.Valid() {
		return ErrUnknownEntityType
	}

	if sr.RelevanceScore < 0 {
		return ErrInvalidRelevanceScore
	}

	return nil
}
