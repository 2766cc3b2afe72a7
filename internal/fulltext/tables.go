package fulltext

import (
	"github.com/dshills/contactsearch/pkg/types"
)

// ftsTable describes one FTS5 virtual table and how to derive its rows from
// the base tables
type ftsTable struct {
	entity  types.EntityType
	name    string
	columns []string

	// populate selects (rowid, columns...) from the base tables; idColumn
	// restricts it to a single entity
	populate string
	idColumn string
}

var contactsTable = ftsTable{
	entity:  types.EntityContact,
	name:    "contacts_fts",
	columns: []string{"name", "email", "phone", "company", "notes", "tags"},
	populate: `
		INSERT INTO contacts_fts (rowid, name, email, phone, company, notes, tags)
		SELECT c.id, c.name, COALESCE(c.email, ''), COALESCE(c.phone, ''), COALESCE(c.company, ''),
		       COALESCE((SELECT group_concat(n.content, ' ') FROM notes n WHERE n.contact_id = c.id), ''),
		       COALESCE((SELECT group_concat(t.name, ' ')
		                 FROM contact_tags ct JOIN tags t ON t.id = ct.tag_id
		                 WHERE ct.contact_id = c.id), '')
		FROM contacts c
	`,
	idColumn: "c.id",
}

var notesTable = ftsTable{
	entity:  types.EntityNote,
	name:    "notes_fts",
	columns: []string{"title", "content", "contacts"},
	populate: `
		INSERT INTO notes_fts (rowid, title, content, contacts)
		SELECT n.id, COALESCE(n.title, ''), n.content, COALESCE(c.name, '')
		FROM notes n
		LEFT JOIN contacts c ON c.id = n.contact_id
	`,
	idColumn: "n.id",
}

var tagsTable = ftsTable{
	entity:  types.EntityTag,
	name:    "tags_fts",
	columns: []string{"name", "contacts"},
	populate: `
		INSERT INTO tags_fts (rowid, name, contacts)
		SELECT t.id, t.name,
		       COALESCE((SELECT group_concat(c.name, ' ')
		                 FROM contact_tags ct JOIN contacts c ON c.id = ct.contact_id
		                 WHERE ct.tag_id = t.id), '')
		FROM tags t
	`,
	idColumn: "t.id",
}

// indexedTables lists the virtual tables in entity order. Relationships have
// no full-text table.
var indexedTables = []ftsTable{contactsTable, notesTable, tagsTable}

func tableFor(et types.EntityType) (ftsTable, bool) {
	for _, t := range indexedTables {
		if t.entity == et {
			return t, true
		}
	}
	return ftsTable{}, false
}

func (t ftsTable) populateOne() string {
	return t.populate + " WHERE " + t.idColumn + " = ?"
}

func (t ftsTable) deleteOne() string {
	return "DELETE FROM " + t.name + " WHERE rowid = ?"
}
