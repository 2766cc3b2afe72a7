package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var entityTypeEnum = []string{"contact", "note", "tag", "relationship"}

// searchContactsTool returns the tool definition for search_contacts
func searchContactsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "search_contacts",
		Description: "Search contacts, notes, tags and relationships. Results are ranked and grouped by entity type.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search text; a single word matches as a prefix, several words match any of them",
				},
				"entity_types": map[string]interface{}{
					"type":        "array",
					"description": "Entity types to search (default: all)",
					"items": map[string]interface{}{
						"type": "string",
						"enum": entityTypeEnum,
					},
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
				"offset": map[string]interface{}{
					"type":        "integer",
					"description": "Number of ranked results to skip",
					"default":     0,
					"minimum":     0,
				},
				"include_suggestions": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, propose refined queries alongside the results",
					"default":     true,
				},
				"use_cache": map[string]interface{}{
					"type":        "boolean",
					"description": "If false, skip the in-memory contact cache and query the index only",
					"default":     true,
				},
			},
			Required: []string{"query"},
		},
	}
}

// autocompleteTool returns the tool definition for autocomplete
func autocompleteTool() mcp.Tool {
	return mcp.Tool{
		Name:        "autocomplete",
		Description: "Complete a prefix against contact names, emails, phone numbers or past queries",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"prefix": map[string]interface{}{
					"type":        "string",
					"description": "Text typed so far",
				},
				"field": map[string]interface{}{
					"type":        "string",
					"description": "Field to complete",
					"enum":        []string{"name", "email", "phone", "query"},
					"default":     "name",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of completions (1-50)",
					"default":     10,
					"minimum":     1,
					"maximum":     50,
				},
			},
			Required: []string{"prefix"},
		},
	}
}

// suggestTool returns the tool definition for suggest
func suggestTool() mcp.Tool {
	return mcp.Tool{
		Name:        "suggest",
		Description: "Ranked as-you-type suggestions from the contact cache, search history and popular queries, with optional fuzzy matching over supplied items",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Text typed so far",
				},
				"field": map[string]interface{}{
					"type":        "string",
					"description": "Contact field for cache suggestions and item matching",
					"default":     "name",
				},
				"include_history": map[string]interface{}{
					"type":        "boolean",
					"description": "Include recent queries containing the text",
					"default":     false,
				},
				"include_popular": map[string]interface{}{
					"type":        "boolean",
					"description": "Include popular queries containing the text",
					"default":     false,
				},
				"selected": map[string]interface{}{
					"type":        "array",
					"description": "Values already chosen; matching suggestions are dropped",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
				"exclude_ids": map[string]interface{}{
					"type":        "array",
					"description": "Entity ids to leave out",
					"items": map[string]interface{}{
						"type": "integer",
					},
				},
				"items": map[string]interface{}{
					"type":        "array",
					"description": "Extra candidates matched against the field, e.g. company names",
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"id": map[string]interface{}{
								"type": "integer",
							},
							"fields": map[string]interface{}{
								"type": "object",
								"additionalProperties": map[string]interface{}{
									"type": "string",
								},
							},
						},
					},
				},
			},
			Required: []string{"query"},
		},
	}
}

// getSuggestionsTool returns the tool definition for get_suggestions
func getSuggestionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_suggestions",
		Description: "Related past queries and word-level variations of a query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Query to find related searches for",
				},
			},
			Required: []string{"query"},
		},
	}
}

// indexEntityTool returns the tool definition for index_entity
func indexEntityTool() mcp.Tool {
	return mcp.Tool{
		Name:        "index_entity",
		Description: "Refresh one entity in the full-text index after it was created, changed or deleted",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"entity_type": map[string]interface{}{
					"type":        "string",
					"description": "Entity type",
					"enum":        []string{"contact", "note", "tag"},
				},
				"id": map[string]interface{}{
					"type":        "integer",
					"description": "Entity id",
				},
				"deleted": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, the entity was deleted and is dropped from the index",
					"default":     false,
				},
			},
			Required: []string{"entity_type", "id"},
		},
	}
}

// noArgsTool returns a tool definition without parameters
func noArgsTool(name, description string) mcp.Tool {
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

func warmCacheTool() mcp.Tool {
	return noArgsTool("warm_cache", "Reload every stored contact into the in-memory cache")
}

func clearCacheTool() mcp.Tool {
	return noArgsTool("clear_cache", "Empty the in-memory contact cache and memoised search results")
}

func rebuildIndexTool() mcp.Tool {
	return noArgsTool("rebuild_index", "Rebuild every full-text table from the base tables")
}

func optimizeIndexTool() mcp.Tool {
	return noArgsTool("optimize_index", "Merge full-text index segments")
}

func getStatsTool() mcp.Tool {
	return noArgsTool("get_stats", "Cache, index and search statistics")
}
