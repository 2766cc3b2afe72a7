// Package types provides shared type definitions for the contact search engine.
//
// This package defines the value types that flow between the contact cache,
// the full-text indexer, the unified searcher and the autocomplete engine.
//
// # Entities
//
// Every searchable record is identified by an EntityType and an integer ID:
//
//	types.EntityContact       // "contact"
//	types.EntityNote          // "note"
//	types.EntityTag           // "tag"
//	types.EntityRelationship  // "relationship"
//
// The pair (EntityType, EntityID) is the deduplication key of a search response.
//
// # Search Results
//
// SearchResult carries a normalized relevance score where larger is always
// better. Full-text scores are negated at the index boundary, so no consumer
// ever sees the engine's native "more negative is better" convention:
//
//	result := types.SearchResult{
//	    EntityType:     types.EntityContact,
//	    EntityID:       42,
//	    Title:          "John Doe",
//	    Snippet:        "<b>John</b> Doe",
//	    RelevanceScore: 3.2,
//	    MatchedFields:  []string{"name"},
//	}
//
// Snippets mark matches with HighlightStart/HighlightEnd. The presence of the
// marker pair is what decides whether a column counts as a matched field.
//
// # Suggestions
//
// Suggestion is produced per autocomplete call and never persisted. Its Source
// records where it came from and drives source-priority ranking:
//
//	types.SourceCache     // in-memory contact tries
//	types.SourceDatabase  // injected item lists
//	types.SourceHistory   // recent queries
//	types.SourcePopular   // frequent queries
package types
