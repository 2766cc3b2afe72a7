package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/contactsearch/internal/config"
	"github.com/dshills/contactsearch/internal/storage"
)

// setupServer creates a server over a temp database holding two contacts,
// a note and a tag, with the full-text index rebuilt
func setupServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()

	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "data", "contacts.db")

	s, err := NewServer(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	store := s.storage
	alice := &storage.Contact{Name: "Alice Johnson", Email: "alice@example.com", Phone: "555-0100", Company: "Acme"}
	bob := &storage.Contact{Name: "Bob Stone", Email: "bob@stone.io"}
	require.NoError(t, store.CreateContact(ctx, alice))
	require.NoError(t, store.CreateContact(ctx, bob))
	require.NoError(t, store.CreateNote(ctx, &storage.Note{ContactID: &bob.ID, Title: "Alice intro", Content: "Met at the conference"}))
	tag := &storage.Tag{Name: "investors"}
	require.NoError(t, store.CreateTag(ctx, tag))
	require.NoError(t, store.TagContact(ctx, alice.ID, tag.ID))

	_, err = s.handleRebuildIndex(ctx, callRequest("rebuild_index", nil))
	require.NoError(t, err)
	_, err = s.handleWarmCache(ctx, callRequest("warm_cache", nil))
	require.NoError(t, err)
	return s
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Name = name
	if args != nil {
		req.Params.Arguments = args
	}
	return req
}

// decode unmarshals the single text content of a tool result
func decode(t *testing.T, result *mcp.CallToolResult) map[string]interface{} {
	t.Helper()
	require.NotNil(t, result)
	require.Len(t, result.Content, 1)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(text.Text), &out))
	return out
}

func requireMCPError(t *testing.T, err error, code int) {
	t.Helper()
	var mcpErr *MCPError
	require.True(t, errors.As(err, &mcpErr), "expected MCPError, got %v", err)
	assert.Equal(t, code, mcpErr.Code)
}

func TestNewServer(t *testing.T) {
	s := setupServer(t)

	assert.NotNil(t, s.mcp, "MCP server should be initialized")
	assert.NotNil(t, s.storage, "Storage should be initialized")
	assert.NotNil(t, s.indexer, "Indexer should be initialized")
	assert.NotNil(t, s.searcher, "Searcher should be initialized")
	assert.NotNil(t, s.engine, "Autocomplete engine should be initialized")
	assert.Same(t, s.searcher, s.Searcher())
	assert.Equal(t, 2, s.cache.Len())
}

func TestHandleSearchContacts(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	result, err := s.handleSearchContacts(ctx, callRequest("search_contacts", map[string]interface{}{
		"query": "alice",
	}))
	require.NoError(t, err)
	out := decode(t, result)

	assert.Equal(t, "alice", out["query"])
	results, ok := out["results"].(map[string]interface{})
	require.True(t, ok)
	contacts, ok := results["contacts"].([]interface{})
	require.True(t, ok)
	require.Len(t, contacts, 1)
	first := contacts[0].(map[string]interface{})
	assert.Equal(t, "Alice Johnson", first["title"])
	assert.Equal(t, "prefix", first["tier"])
	assert.Contains(t, results, "notes")

	stats := out["stats"].(map[string]interface{})
	assert.Equal(t, true, stats["cache_used"])
	assert.Equal(t, true, stats["fts_used"])
	assert.NotEmpty(t, out["suggestions"])
}

func TestHandleSearchContactsOptions(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	result, err := s.handleSearchContacts(ctx, callRequest("search_contacts", map[string]interface{}{
		"query":               "alice",
		"entity_types":        []interface{}{"notes"},
		"include_suggestions": false,
		"use_cache":           false,
		"limit":               float64(5),
	}))
	require.NoError(t, err)
	out := decode(t, result)

	results := out["results"].(map[string]interface{})
	assert.NotContains(t, results, "contacts")
	assert.Contains(t, results, "notes")
	assert.Empty(t, out["suggestions"])
	assert.Equal(t, false, out["stats"].(map[string]interface{})["cache_used"])
}

func TestHandleSearchContactsValidation(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"limit too large", map[string]interface{}{"query": "a", "limit": float64(500)}, ErrorCodeInvalidParams},
		{"negative offset", map[string]interface{}{"query": "a", "offset": float64(-1)}, ErrorCodeInvalidParams},
		{"unknown entity", map[string]interface{}{"query": "a", "entity_types": []interface{}{"widgets"}}, ErrorCodeInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.handleSearchContacts(ctx, callRequest("search_contacts", tt.args))
			requireMCPError(t, err, tt.code)
		})
	}

	var req mcp.CallToolRequest
	req.Params.Arguments = "not a map"
	_, err := s.handleSearchContacts(ctx, req)
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleSearchContactsEmptyQuery(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	for _, args := range []map[string]interface{}{
		{},
		{"query": ""},
		{"query": "   "},
	} {
		result, err := s.handleSearchContacts(ctx, callRequest("search_contacts", args))
		require.NoError(t, err)
		out := decode(t, result)
		assert.Equal(t, float64(0), out["total"])
		assert.Empty(t, out["results"])
		assert.Empty(t, out["suggestions"])
		stats := out["stats"].(map[string]interface{})
		assert.Equal(t, false, stats["cache_used"])
		assert.Equal(t, false, stats["fts_used"])
	}
	assert.Empty(t, s.searcher.History(), "empty queries are not recorded")
}

func TestHandleAutocomplete(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	result, err := s.handleAutocomplete(ctx, callRequest("autocomplete", map[string]interface{}{
		"prefix": "ali",
	}))
	require.NoError(t, err)
	out := decode(t, result)
	completions := out["completions"].([]interface{})
	require.Len(t, completions, 1)
	item := completions[0].(map[string]interface{})
	assert.Equal(t, "Alice Johnson", item["text"])
	assert.Equal(t, "contact", item["entity_type"])
	assert.Equal(t, "name", item["field"])

	// Past queries complete through the query field
	for range 2 {
		_, err = s.handleSearchContacts(ctx, callRequest("search_contacts", map[string]interface{}{"query": "bob"}))
		require.NoError(t, err)
	}
	result, err = s.handleAutocomplete(ctx, callRequest("autocomplete", map[string]interface{}{
		"prefix": "bo",
		"field":  "query",
	}))
	require.NoError(t, err)
	completions = decode(t, result)["completions"].([]interface{})
	require.Len(t, completions, 1)
	assert.Equal(t, "bob", completions[0].(map[string]interface{})["text"])

	// Unknown fields and missing prefixes complete to nothing
	result, err = s.handleAutocomplete(ctx, callRequest("autocomplete", map[string]interface{}{"prefix": "al", "field": "company"}))
	require.NoError(t, err)
	completions = decode(t, result)["completions"].([]interface{})
	assert.Empty(t, completions)

	result, err = s.handleAutocomplete(ctx, callRequest("autocomplete", nil))
	require.NoError(t, err)
	completions = decode(t, result)["completions"].([]interface{})
	assert.Empty(t, completions)

	_, err = s.handleAutocomplete(ctx, callRequest("autocomplete", map[string]interface{}{"prefix": "a", "limit": float64(0)}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleSuggest(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	result, err := s.handleSuggest(ctx, callRequest("suggest", map[string]interface{}{
		"query": "acmee",
		"field": "company",
		"items": []interface{}{
			map[string]interface{}{"id": float64(1), "fields": map[string]interface{}{"company": "Acme"}},
			map[string]interface{}{"id": float64(2), "fields": map[string]interface{}{"company": "Initech"}},
		},
	}))
	require.NoError(t, err)
	body := decode(t, result)
	assert.Equal(t, float64(150), body["debounce_ms"])
	suggestions := body["suggestions"].([]interface{})
	require.Len(t, suggestions, 1)
	first := suggestions[0].(map[string]interface{})
	assert.Equal(t, "Acme", first["text"])
	assert.Equal(t, "database", first["source"])

	// Cache suggestions with exclusions
	result, err = s.handleSuggest(ctx, callRequest("suggest", map[string]interface{}{
		"query":    "b",
		"selected": []interface{}{"bob stone"},
	}))
	require.NoError(t, err)
	assert.Empty(t, decode(t, result)["suggestions"])
}

func TestHandleGetSuggestions(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	_, err := s.handleSearchContacts(ctx, callRequest("search_contacts", map[string]interface{}{"query": "alice johnson"}))
	require.NoError(t, err)

	result, err := s.handleGetSuggestions(ctx, callRequest("get_suggestions", map[string]interface{}{"query": "alice"}))
	require.NoError(t, err)
	suggestions := decode(t, result)["suggestions"].([]interface{})
	assert.Equal(t, []interface{}{"alice johnson"}, suggestions)

	result, err = s.handleGetSuggestions(ctx, callRequest("get_suggestions", nil))
	require.NoError(t, err)
	assert.Empty(t, decode(t, result)["suggestions"])
}

func TestHandleIndexEntity(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	carol := &storage.Contact{Name: "Carol Zephyr"}
	require.NoError(t, s.storage.CreateContact(ctx, carol))

	search := func() map[string]interface{} {
		result, err := s.handleSearchContacts(ctx, callRequest("search_contacts", map[string]interface{}{
			"query":     "zephyr",
			"use_cache": false,
		}))
		require.NoError(t, err)
		return decode(t, result)["results"].(map[string]interface{})
	}
	assert.Empty(t, search())

	_, err := s.handleIndexEntity(ctx, callRequest("index_entity", map[string]interface{}{
		"entity_type": "contact",
		"id":          float64(carol.ID),
	}))
	require.NoError(t, err)
	assert.Contains(t, search(), "contacts")
	assert.Equal(t, 3, s.cache.Len())

	_, err = s.handleIndexEntity(ctx, callRequest("index_entity", map[string]interface{}{
		"entity_type": "contact",
		"id":          float64(carol.ID),
		"deleted":     true,
	}))
	require.NoError(t, err)
	assert.Empty(t, search())
	assert.Equal(t, 2, s.cache.Len())

	_, err = s.handleIndexEntity(ctx, callRequest("index_entity", map[string]interface{}{
		"entity_type": "relationship",
		"id":          float64(1),
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)

	_, err = s.handleIndexEntity(ctx, callRequest("index_entity", map[string]interface{}{
		"entity_type": "contact",
	}))
	requireMCPError(t, err, ErrorCodeInvalidParams)
}

func TestHandleIndexEntityWithoutFullText(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.Database.Path = filepath.Join(t.TempDir(), "contacts.db")

	s, err := NewServer(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	alice := &storage.Contact{Name: "Alice Johnson", Email: "alice@example.com"}
	require.NoError(t, s.storage.CreateContact(ctx, alice))
	for _, name := range storage.FullTextTables {
		_, err := s.storage.DB().ExecContext(ctx, "DROP TABLE IF EXISTS "+name)
		require.NoError(t, err)
	}
	_, err = s.handleWarmCache(ctx, callRequest("warm_cache", nil))
	require.NoError(t, err)
	require.Equal(t, 1, s.cache.Len())

	titles := func(query string) []string {
		result, err := s.handleSearchContacts(ctx, callRequest("search_contacts", map[string]interface{}{"query": query}))
		require.NoError(t, err)
		var out []string
		for _, r := range decode(t, result)["results"].(map[string]interface{})["contacts"].([]interface{}) {
			out = append(out, r.(map[string]interface{})["title"].(string))
		}
		return out
	}

	// Rename: the index write fails but the cache follows the store
	require.NoError(t, s.storage.UpdateContact(ctx, &storage.Contact{ID: alice.ID, Name: "Zed Renamed", Email: "zed@example.com"}))
	_, err = s.handleIndexEntity(ctx, callRequest("index_entity", map[string]interface{}{
		"entity_type": "contact",
		"id":          float64(alice.ID),
	}))
	requireMCPError(t, err, ErrorCodeIndexUnavailable)

	cached, ok := s.cache.GetContact(alice.ID)
	require.True(t, ok)
	assert.Equal(t, "Zed Renamed", cached.Name)
	assert.Equal(t, []string{"Zed Renamed"}, titles("zed"))

	// Delete: the contact leaves the cache
	require.NoError(t, s.storage.DeleteContact(ctx, alice.ID))
	_, err = s.handleIndexEntity(ctx, callRequest("index_entity", map[string]interface{}{
		"entity_type": "contact",
		"id":          float64(alice.ID),
		"deleted":     true,
	}))
	requireMCPError(t, err, ErrorCodeIndexUnavailable)
	assert.Equal(t, 0, s.cache.Len())

	result, err := s.handleSearchContacts(ctx, callRequest("search_contacts", map[string]interface{}{"query": "zed"}))
	require.NoError(t, err)
	assert.Empty(t, decode(t, result)["results"])
}

func TestHandleMaintenance(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	result, err := s.handleRebuildIndex(ctx, callRequest("rebuild_index", nil))
	require.NoError(t, err)
	out := decode(t, result)
	assert.Equal(t, true, out["rebuilt"])
	counts := out["counts"].(map[string]interface{})
	assert.Equal(t, float64(2), counts["contact"])
	assert.Equal(t, float64(1), counts["note"])
	assert.Equal(t, float64(1), counts["tag"])

	result, err = s.handleOptimizeIndex(ctx, callRequest("optimize_index", nil))
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, result)["optimized"])

	result, err = s.handleClearCache(ctx, callRequest("clear_cache", nil))
	require.NoError(t, err)
	assert.Equal(t, true, decode(t, result)["cleared"])
	assert.Equal(t, 0, s.cache.Len())

	result, err = s.handleWarmCache(ctx, callRequest("warm_cache", nil))
	require.NoError(t, err)
	assert.Equal(t, float64(2), decode(t, result)["contacts"])
}

func TestHandleGetStats(t *testing.T) {
	s := setupServer(t)
	ctx := context.Background()

	_, err := s.handleSearchContacts(ctx, callRequest("search_contacts", map[string]interface{}{"query": "alice"}))
	require.NoError(t, err)

	result, err := s.handleGetStats(ctx, callRequest("get_stats", nil))
	require.NoError(t, err)
	out := decode(t, result)

	search := out["search"].(map[string]interface{})
	assert.Equal(t, float64(1), search["total_searches"])
	assert.Equal(t, float64(1), out["history_size"])
	assert.Contains(t, out, "cache")
	assert.Contains(t, out, "index")
}
