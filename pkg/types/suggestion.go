package types

// SuggestionSource records where a suggestion came from
type SuggestionSource string

const (
	SourceCache    SuggestionSource = "cache"
	SourceDatabase SuggestionSource = "database"
	SourceHistory  SuggestionSource = "history"
	SourcePopular  SuggestionSource = "popular"
)

// Priority is the multiplier applied to a suggestion's score when ranking
func (s SuggestionSource) Priority() float64 {
	switch s {
	case SourceCache:
		return 1.2
	case SourceHistory:
		return 1.1
	case SourcePopular:
		return 1.05
	default:
		return 1.0
	}
}

// Suggestion is a single autocomplete candidate
type Suggestion struct {
	Text     string           `json:"text"`
	Source   SuggestionSource `json:"source"`
	Score    float64          `json:"score"`
	EntityID *int64           `json:"entity_id,omitempty"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}
