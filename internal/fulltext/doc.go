// Package fulltext provides ranked full-text retrieval over contacts, notes
// and tags using SQLite FTS5.
//
// # Tables
//
// Each entity type has a standalone FTS5 table whose rowid is the entity id.
// Rows hold denormalised text so a single MATCH can reach related records:
//
//	contacts_fts(name, email, phone, company, notes, tags)
//	notes_fts(title, content, contacts)
//	tags_fts(name, contacts)
//
// The tables are written only by this package: UpdateIndex after a single
// create or update, RemoveFromIndex after a delete, RebuildIndex after bulk
// changes.
//
// # Scoring
//
// bm25() returns lower-is-better scores. The indexer negates them so every
// SearchResult.RelevanceScore is non-negative and larger is better.
//
// # Availability
//
// The first call to Available, Search or any maintenance method probes every
// table once. When the probe fails (for example the SQLite build lacks FTS5
// and the optional migration was skipped) Search switches permanently to a
// LIKE substring match over contact name, email and phone with a flat score of
// 1.0, and maintenance methods return ErrIndexUnavailable.
//
// Only one RebuildIndex or OptimizeIndex runs at a time; an overlapping call
// returns ErrMaintenanceInProgress.
package fulltext
