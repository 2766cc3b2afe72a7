// Package mcp implements the Model Context Protocol (MCP) server for contactsearch.
//
// The server exposes the search engine to MCP clients over stdio:
//   - search_contacts: ranked, grouped search across contacts, notes, tags and relationships
//   - autocomplete: prefix completion on name, email, phone or past queries
//   - suggest: fuzzy, multi-source as-you-type suggestions
//   - get_suggestions: related past queries and word variations
//   - index_entity: refresh one entity in the full-text index
//   - warm_cache, clear_cache, rebuild_index, optimize_index, get_stats: maintenance
//
// # Basic Usage
//
// The server is started via the serve command:
//
//	contactsearch serve --config ~/.config/contactsearch/config.toml
//
// Logs go to stderr; stdout is reserved for the protocol.
//
// # Tool: search_contacts
//
//	Request:
//	{
//	  "name": "search_contacts",
//	  "arguments": {
//	    "query": "alice",
//	    "entity_types": ["contact", "note"],
//	    "limit": 20
//	  }
//	}
//
//	Response:
//	{
//	  "query": "alice",
//	  "results": {
//	    "contacts": [{"entity_type": "contact", "entity_id": 1, "title": "Alice Johnson", "tier": "exact", ...}]
//	  },
//	  "total": 1,
//	  "suggestions": ["alice johnson"],
//	  "stats": {"cache_used": true, "fts_used": true, "duration_ms": 2}
//	}
//
// # Error Handling
//
// Empty queries and unknown autocomplete fields produce empty results.
// Out-of-range arguments and failures are returned as tool errors carrying a
// JSON-RPC style code:
//   - -32602: Invalid params
//   - -32603: Internal error
//   - -32001: Full-text index unavailable
//   - -32002: Index maintenance already in progress
package mcp
