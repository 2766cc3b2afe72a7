package searcher

import (
	"sort"
	"strings"

	"github.com/dshills/contactsearch/internal/autocomplete"
	"github.com/dshills/contactsearch/internal/cache"
	"github.com/dshills/contactsearch/pkg/types"
)

const (
	relevanceWeight  = 0.5
	tierDivisor      = 200.0
	exactTitleBonus  = 0.3
	titlePrefixBonus = 0.2
	fuzzyTierRatio   = 0.6
)

// assignTier buckets a result by how its title relates to the lowercased query
func assignTier(title, query string) types.PriorityTier {
	t := strings.ToLower(strings.TrimSpace(title))
	switch {
	case t == "":
		return types.TierPartial
	case t == query:
		return types.TierExact
	case strings.HasPrefix(t, query):
		return types.TierPrefix
	}
	for _, word := range strings.Fields(t) {
		if strings.HasPrefix(word, query) {
			return types.TierPrefix
		}
	}
	switch {
	case strings.Contains(t, query):
		return types.TierContains
	case autocomplete.Ratio(t, query) >= fuzzyTierRatio:
		return types.TierFuzzy
	}
	return types.TierPartial
}

// compositeScore blends relevance, tier and title bonuses
func compositeScore(r types.SearchResult, query string) float64 {
	score := relevanceWeight*r.RelevanceScore + r.Tier.Value()/tierDivisor
	title := strings.ToLower(r.Title)
	switch {
	case title == query:
		score += exactTitleBonus
	case strings.HasPrefix(title, query):
		score += titlePrefixBonus
	}
	return score
}

// mergeResults concatenates cache and index results, keeping the first
// occurrence of each (entity type, id) so cache results win
func mergeResults(cached, indexed []types.SearchResult) []types.SearchResult {
	seen := make(map[types.ResultKey]struct{}, len(cached)+len(indexed))
	merged := make([]types.SearchResult, 0, len(cached)+len(indexed))
	for _, batch := range [][]types.SearchResult{cached, indexed} {
		for _, r := range batch {
			key := r.Key()
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			merged = append(merged, r)
		}
	}
	return merged
}

// rankResults assigns tiers and composite scores, then sorts descending.
// Equal scores keep merge order.
func rankResults(results []types.SearchResult, query string) {
	scores := make([]float64, len(results))
	for i := range results {
		r := &results[i]
		r.Tier = assignTier(r.Title, query)
		scores[i] = compositeScore(*r, query)
		if r.Metadata == nil {
			r.Metadata = make(map[string]any, 1)
		}
		r.Metadata["composite_score"] = scores[i]
	}
	sort.SliceStable(results, func(i, j int) bool {
		return composite(results[i]) > composite(results[j])
	})
}

func composite(r types.SearchResult) float64 {
	v, _ := r.Metadata["composite_score"].(float64)
	return v
}

// groupResults buckets results by entity type, dropping empty buckets
func groupResults(results []types.SearchResult) map[string][]types.SearchResult {
	groups := make(map[string][]types.SearchResult)
	for _, r := range results {
		b := r.EntityType.Bucket()
		groups[b] = append(groups[b], r)
	}
	return groups
}

// contactResult converts a cache hit into a search result with flat relevance
func contactResult(c cache.CachedContact, query string) types.SearchResult {
	subtitle := c.Email
	if subtitle == "" {
		subtitle = c.Phone
	}

	matched := make([]string, 0, 4)
	for _, f := range []struct{ field, value string }{
		{"name", c.Name}, {"email", c.Email}, {"phone", c.Phone},
	} {
		if strings.Contains(strings.ToLower(f.value), query) {
			matched = append(matched, f.field)
		}
	}
	for _, tag := range c.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			matched = append(matched, "tags")
			break
		}
	}

	return types.SearchResult{
		EntityType:     types.EntityContact,
		EntityID:       c.ID,
		Title:          c.Name,
		Subtitle:       subtitle,
		RelevanceScore: 1.0,
		MatchedFields:  matched,
		Metadata: map[string]any{
			"source": "cache",
			"email":  c.Email,
			"phone":  c.Phone,
			"tags":   append([]string(nil), c.Tags...),
		},
	}
}
