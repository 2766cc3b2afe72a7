package storage

import (
	"context"
	"database/sql"
	"time"

	"github.com/dshills/contactsearch/pkg/types"
)

// Storage defines the interface for persisting contacts, notes, tags and relationships
type Storage interface {
	// Contact operations
	CreateContact(ctx context.Context, contact *Contact) error
	UpdateContact(ctx context.Context, contact *Contact) error
	GetContact(ctx context.Context, contactID int64) (*Contact, error)
	DeleteContact(ctx context.Context, contactID int64) error
	ListContacts(ctx context.Context) ([]types.Contact, error)

	// Note operations
	CreateNote(ctx context.Context, note *Note) error
	GetNote(ctx context.Context, noteID int64) (*Note, error)

	// Tag operations
	CreateTag(ctx context.Context, tag *Tag) error
	TagContact(ctx context.Context, contactID, tagID int64) error

	// Relationship operations
	CreateRelationship(ctx context.Context, rel *Relationship) error

	// Database operations
	DB() *sql.DB
	Close() error
}

// Querier is implemented by both *sql.DB and *sql.Tx
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// Contact represents a person in the address book
type Contact struct {
	ID        int64
	Name      string
	Email     string
	Phone     string
	Company   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Note represents a free-text note, optionally linked to a contact
type Note struct {
	ID        int64
	ContactID *int64 // Nullable
	Title     string
	Content   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Tag represents a label that can be attached to contacts
type Tag struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Relationship links two contacts
type Relationship struct {
	ID               int64
	ContactID        int64
	RelatedContactID int64
	RelationshipType string
	Notes            string
	CreatedAt        time.Time
}

// ToTypesContact converts a storage Contact to types.Contact
func (c *Contact) ToTypesContact(tags []string) types.Contact {
	return types.Contact{
		ID:      c.ID,
		Name:    c.Name,
		Email:   c.Email,
		Phone:   c.Phone,
		Company: c.Company,
		Tags:    tags,
	}
}
