package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dshills/contactsearch/internal/logger"
	"github.com/dshills/contactsearch/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db     *sql.DB
	logger *log.Logger
}

// Option configures a SQLiteStorage
type Option func(*SQLiteStorage)

// WithLogger sets the logger used for migration warnings
func WithLogger(l *log.Logger) Option {
	return func(s *SQLiteStorage) {
		s.logger = l
	}
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Single writer; also keeps ":memory:" databases on one connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string, opts ...Option) (*SQLiteStorage, error) {
	s := &SQLiteStorage{}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logger.OrDefault(s.logger, "storage")

	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db, s.logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	s.db = db
	return s, nil
}

// DB exposes the underlying handle for the full-text indexer
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Contact operations

func (s *SQLiteStorage) CreateContact(ctx context.Context, contact *Contact) error {
	query := `
		INSERT INTO contacts (name, email, phone, company, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		contact.Name, nullString(contact.Email), nullString(contact.Phone),
		nullString(contact.Company), now, now)
	if err != nil {
		return fmt.Errorf("failed to create contact: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	contact.ID = id
	contact.CreatedAt = now
	contact.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) UpdateContact(ctx context.Context, contact *Contact) error {
	query := `
		UPDATE contacts
		SET name = ?, email = ?, phone = ?, company = ?, updated_at = ?
		WHERE id = ?
	`
	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		contact.Name, nullString(contact.Email), nullString(contact.Phone),
		nullString(contact.Company), now, contact.ID)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	contact.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) GetContact(ctx context.Context, contactID int64) (*Contact, error) {
	query := `
		SELECT id, name, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(company, ''),
		       created_at, updated_at
		FROM contacts
		WHERE id = ?
	`
	var contact Contact
	err := s.db.QueryRowContext(ctx, query, contactID).Scan(
		&contact.ID, &contact.Name, &contact.Email, &contact.Phone, &contact.Company,
		&contact.CreatedAt, &contact.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &contact, nil
}

func (s *SQLiteStorage) DeleteContact(ctx context.Context, contactID int64) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM contacts WHERE id = ?", contactID)
	return err
}

// ListContacts returns every contact with its tag names, in id order
func (s *SQLiteStorage) ListContacts(ctx context.Context) ([]types.Contact, error) {
	query := `
		SELECT c.id, c.name, COALESCE(c.email, ''), COALESCE(c.phone, ''), COALESCE(c.company, ''),
		       COALESCE((SELECT group_concat(t.name, char(31))
		                 FROM contact_tags ct JOIN tags t ON t.id = ct.tag_id
		                 WHERE ct.contact_id = c.id), '')
		FROM contacts c
		ORDER BY c.id
	`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	contacts := make([]types.Contact, 0)
	for rows.Next() {
		var c types.Contact
		var tags string
		if err := rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.Company, &tags); err != nil {
			return nil, err
		}
		if tags != "" {
			c.Tags = strings.Split(tags, "\x1f")
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// Note operations

func (s *SQLiteStorage) CreateNote(ctx context.Context, note *Note) error {
	query := `
		INSERT INTO notes (contact_id, title, content, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		note.ContactID, nullString(note.Title), note.Content, now, now)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	note.ID = id
	note.CreatedAt = now
	note.UpdatedAt = now
	return nil
}

func (s *SQLiteStorage) GetNote(ctx context.Context, noteID int64) (*Note, error) {
	query := `
		SELECT id, contact_id, COALESCE(title, ''), content, created_at, updated_at
		FROM notes
		WHERE id = ?
	`
	var note Note
	var contactID sql.NullInt64
	err := s.db.QueryRowContext(ctx, query, noteID).Scan(
		&note.ID, &contactID, &note.Title, &note.Content, &note.CreatedAt, &note.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if contactID.Valid {
		id := contactID.Int64
		note.ContactID = &id
	}
	return &note, nil
}

// Tag operations

func (s *SQLiteStorage) CreateTag(ctx context.Context, tag *Tag) error {
	now := time.Now()
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO tags (name, created_at) VALUES (?, ?)", tag.Name, now)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create tag: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	tag.ID = id
	tag.CreatedAt = now
	return nil
}

func (s *SQLiteStorage) TagContact(ctx context.Context, contactID, tagID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO contact_tags (contact_id, tag_id) VALUES (?, ?)", contactID, tagID)
	if err != nil {
		return fmt.Errorf("failed to tag contact: %w", err)
	}
	return nil
}

// Relationship operations

func (s *SQLiteStorage) CreateRelationship(ctx context.Context, rel *Relationship) error {
	query := `
		INSERT INTO relationships (contact_id, related_contact_id, relationship_type, notes, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := s.db.ExecContext(ctx, query,
		rel.ContactID, rel.RelatedContactID, rel.RelationshipType, nullString(rel.Notes), now)
	if err != nil {
		return fmt.Errorf("failed to create relationship: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	rel.ID = id
	rel.CreatedAt = now
	return nil
}

// nullString stores empty optional columns as NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
