package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/contactsearch/internal/autocomplete"
	"github.com/dshills/contactsearch/internal/cache"
	"github.com/dshills/contactsearch/internal/fulltext"
	"github.com/dshills/contactsearch/internal/searcher"
	"github.com/dshills/contactsearch/internal/storage"
	"github.com/dshills/contactsearch/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams    = -32602 // Invalid method parameters
	ErrorCodeInternalError    = -32603 // Internal JSON-RPC error
	ErrorCodeIndexUnavailable = -32001 // Full-text tables are missing
	ErrorCodeMaintenance      = -32002 // Rebuild or optimize already running
)

const maxAutocompleteLimit = 50

// handleSearchContacts handles the search_contacts tool invocation
func (s *Server) handleSearchContacts(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	// An empty query yields the empty response rather than an error
	query := getStringDefault(args, "query", "")

	limit := getIntDefault(args, "limit", 20)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}
	offset := getIntDefault(args, "offset", 0)
	if offset < 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "offset cannot be negative", map[string]interface{}{
			"param": "offset",
			"value": offset,
		})
	}

	var entityTypes []types.EntityType
	for _, raw := range getStringSlice(args, "entity_types") {
		et, err := types.ParseEntityType(raw)
		if err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "invalid entity type", map[string]interface{}{
				"param":   "entity_types",
				"value":   raw,
				"allowed": entityTypeEnum,
			})
		}
		entityTypes = append(entityTypes, et)
	}

	resp := s.searcher.Search(ctx, searcher.SearchRequest{
		Query:            query,
		EntityTypes:      entityTypes,
		Limit:            limit,
		Offset:           offset,
		SkipSuggestions:  !getBoolDefault(args, "include_suggestions", true),
		SkipContactCache: !getBoolDefault(args, "use_cache", true),
	})
	return mcp.NewToolResultText(formatJSON(resp)), nil
}

// handleAutocomplete handles the autocomplete tool invocation
func (s *Server) handleAutocomplete(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	// Empty prefixes and unknown fields complete to nothing
	prefix := getStringDefault(args, "prefix", "")
	field := strings.ToLower(getStringDefault(args, "field", "name"))

	limit := getIntDefault(args, "limit", 10)
	if limit < 1 || limit > maxAutocompleteLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxAutocompleteLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	items := s.searcher.Autocomplete(prefix, field, limit)
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"prefix":      prefix,
		"field":       field,
		"completions": items,
	})), nil
}

// handleSuggest handles the suggest tool invocation
func (s *Server) handleSuggest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query := getStringDefault(args, "query", "")

	actx := autocomplete.Context{
		Field:          getStringDefault(args, "field", ""),
		IncludeHistory: getBoolDefault(args, "include_history", false),
		IncludePopular: getBoolDefault(args, "include_popular", false),
		Selected:       getStringSlice(args, "selected"),
		Exclude:        getInt64Slice(args, "exclude_ids"),
		Items:          getItems(args, "items"),
	}

	suggestions := s.engine.GetSuggestions(query, actx)
	// Debouncing is the caller's job; the configured interval is advertised
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":       query,
		"suggestions": suggestions,
		"debounce_ms": s.engine.Config().DebounceInterval.Milliseconds(),
	})), nil
}

// handleGetSuggestions handles the get_suggestions tool invocation
func (s *Server) handleGetSuggestions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	query := getStringDefault(args, "query", "")

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"query":       query,
		"suggestions": s.searcher.GetSuggestions(query),
	})), nil
}

// handleIndexEntity handles the index_entity tool invocation
func (s *Server) handleIndexEntity(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := arguments(request)
	if err != nil {
		return nil, err
	}

	et, err := types.ParseEntityType(getStringDefault(args, "entity_type", ""))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid entity_type", map[string]interface{}{
			"param":   "entity_type",
			"allowed": []string{"contact", "note", "tag"},
		})
	}
	id := getIntDefault(args, "id", 0)
	if id <= 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "id must be a positive integer", map[string]interface{}{
			"param": "id",
			"value": id,
		})
	}

	deleted := getBoolDefault(args, "deleted", false)

	// The cache serves contacts even when the index is unavailable, so it is
	// synced before the index is touched
	if et == types.EntityContact {
		s.syncCachedContact(ctx, int64(id), deleted)
	}

	if deleted {
		if err := s.searcher.RemoveEntity(ctx, et, int64(id)); err != nil {
			return nil, indexError("index removal failed", err)
		}
	} else if err := s.searcher.IndexEntity(ctx, et, int64(id)); err != nil {
		return nil, indexError("index update failed", err)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"indexed":     !deleted,
		"removed":     deleted,
		"entity_type": et,
		"id":          id,
	})), nil
}

// syncCachedContact mirrors a contact write into the cache. Tags are left as
// cached since the contact row does not carry them.
func (s *Server) syncCachedContact(ctx context.Context, id int64, deleted bool) {
	if deleted {
		s.cache.RemoveContact(id)
		return
	}
	c, err := s.storage.GetContact(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		s.cache.RemoveContact(id)
		return
	}
	if err != nil {
		s.logger.Warn("failed to reload contact", "id", id, "error", err)
		return
	}
	if s.cache.UpdateContact(id, cache.ContactUpdate{Name: &c.Name, Email: &c.Email, Phone: &c.Phone}) {
		return
	}
	s.cache.AddContact(types.Contact{ID: c.ID, Name: c.Name, Email: c.Email, Phone: c.Phone, Company: c.Company})
}

// handleWarmCache handles the warm_cache tool invocation
func (s *Server) handleWarmCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	if err := s.searcher.WarmFromStore(ctx, s.storage); err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "cache warm failed", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"warmed":      true,
		"contacts":    s.cache.Len(),
		"duration_ms": time.Since(start).Milliseconds(),
	})), nil
}

// handleClearCache handles the clear_cache tool invocation
func (s *Server) handleClearCache(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.searcher.ClearCache()
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"cleared": true,
	})), nil
}

// handleRebuildIndex handles the rebuild_index tool invocation
func (s *Server) handleRebuildIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start := time.Now()
	if err := s.searcher.RebuildIndex(ctx); err != nil {
		return nil, indexError("index rebuild failed", err)
	}
	stats := s.indexer.GetIndexStats(ctx)
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"rebuilt":     true,
		"counts":      stats.Counts,
		"duration_ms": time.Since(start).Milliseconds(),
	})), nil
}

// handleOptimizeIndex handles the optimize_index tool invocation
func (s *Server) handleOptimizeIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.searcher.OptimizeIndex(ctx); err != nil {
		return nil, indexError("index optimize failed", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"optimized": true,
	})), nil
}

// handleGetStats handles the get_stats tool invocation
func (s *Server) handleGetStats(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(formatJSON(s.searcher.GetStats(ctx))), nil
}

// Helper functions

// arguments extracts the argument map; a call without arguments yields an empty map
func arguments(request mcp.CallToolRequest) (map[string]interface{}, error) {
	if request.Params.Arguments == nil {
		return map[string]interface{}{}, nil
	}
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	return args, nil
}

// indexError maps index maintenance failures to MCP errors
func indexError(message string, err error) error {
	code := ErrorCodeInternalError
	switch {
	case errors.Is(err, fulltext.ErrIndexUnavailable):
		code = ErrorCodeIndexUnavailable
	case errors.Is(err, fulltext.ErrUnknownEntityType):
		code = ErrorCodeInvalidParams
	case errors.Is(err, fulltext.ErrMaintenanceInProgress):
		code = ErrorCodeMaintenance
	}
	return newMCPError(code, message, map[string]interface{}{
		"error": err.Error(),
	})
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts an array of strings, skipping non-string elements
func getStringSlice(args map[string]interface{}, key string) []string {
	switch raw := args[key].(type) {
	case []string:
		return raw
	case []interface{}:
		out := make([]string, 0, len(raw))
		for _, v := range raw {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// getInt64Slice extracts an array of integers, skipping non-numeric elements
func getInt64Slice(args map[string]interface{}, key string) []int64 {
	switch raw := args[key].(type) {
	case []int64:
		return raw
	case []interface{}:
		out := make([]int64, 0, len(raw))
		for _, v := range raw {
			switch n := v.(type) {
			case float64:
				out = append(out, int64(n))
			case int:
				out = append(out, int64(n))
			}
		}
		return out
	}
	return nil
}

// getItems extracts autocomplete items given as {"id": n, "fields": {...}}
func getItems(args map[string]interface{}, key string) []autocomplete.Item {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	items := make([]autocomplete.Item, 0, len(raw))
	for _, v := range raw {
		obj, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		item := autocomplete.Item{Fields: map[string]string{}}
		if id, ok := obj["id"].(float64); ok {
			n := int64(id)
			item.ID = &n
		}
		if fields, ok := obj["fields"].(map[string]interface{}); ok {
			for k, fv := range fields {
				if s, ok := fv.(string); ok {
					item.Fields[k] = s
				}
			}
		}
		items = append(items, item)
	}
	return items
}
