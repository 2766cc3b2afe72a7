// Package storage provides SQLite-based persistence for the contact store.
//
// The storage layer manages:
//   - Contacts (name, email, phone, company)
//   - Notes, optionally linked to a contact
//   - Tags and the contact_tags association
//   - Relationships between contacts
//   - The FTS5 virtual tables read by the fulltext indexer
//
// # Database Schema
//
// Tables:
//   - contacts, notes, tags, contact_tags, relationships: base tables
//   - contacts_fts, notes_fts, tags_fts: FTS5 tables keyed by the entity id
//
// The full-text tables carry denormalised text (a contact's note bodies and
// tag names, for example) and are populated by the fulltext package rather
// than by triggers.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("~/.contactsearch/contacts.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	c := &storage.Contact{Name: "John Doe", Email: "john@example.com"}
//	if err := store.CreateContact(ctx, c); err != nil {
//	    return err
//	}
//
// # Migrations
//
// Migrations are ordered by semantic version and recorded in schema_version.
// The full-text migration is optional: when the SQLite build lacks FTS5 it is
// skipped with a warning and search falls back to LIKE queries.
//
// # Build Modes
//
// The default build uses modernc.org/sqlite (pure Go, FTS5 included). Build
// with -tags "sqlite_cgo,fts5" to use github.com/mattn/go-sqlite3 instead.
package storage
