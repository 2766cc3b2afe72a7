package fulltext

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/contactsearch/internal/logger"
	"github.com/dshills/contactsearch/internal/storage"
	"github.com/dshills/contactsearch/pkg/types"
)

var (
	// ErrIndexUnavailable is returned by maintenance operations when the
	// FTS5 tables could not be queried at probe time
	ErrIndexUnavailable = errors.New("full-text index unavailable")
	// ErrUnknownEntityType is returned for entity types without a full-text table
	ErrUnknownEntityType = errors.New("entity type is not full-text indexed")
	// ErrMaintenanceInProgress is returned when a rebuild or optimize is
	// requested while another one is running
	ErrMaintenanceInProgress = errors.New("index maintenance already in progress")
)

// Mode reports which retrieval path a search took
type Mode string

const (
	ModeNone     Mode = ""
	ModeFTS      Mode = "fts"
	ModeFallback Mode = "fallback"
)

const (
	defaultLimit    = 20
	previewLength   = 100
	snippetTokens   = 12
	snippetEllipsis = "..."
)

// Config contains configuration for the indexer
type Config struct {
	Logger *log.Logger
}

// Indexer runs ranked full-text queries against the FTS5 tables and keeps
// them in step with the base tables
type Indexer struct {
	db     *sql.DB
	logger *log.Logger

	maintenance maintenanceLock

	mu          sync.Mutex
	probed      bool
	available   bool
	lastUpdated time.Time
}

// New creates an indexer over db. The availability probe runs on first use.
func New(db *sql.DB, cfg Config) *Indexer {
	return &Indexer{
		db:     db,
		logger: logger.OrDefault(cfg.Logger, "fulltext"),
	}
}

// Available reports whether the FTS5 tables are usable. The first call probes
// every table; the result is kept for the lifetime of the indexer. The probe
// ignores cancellation of ctx so a canceled request cannot latch the fallback.
func (ix *Indexer) Available(ctx context.Context) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if ix.probed {
		return ix.available
	}
	ix.probed = true
	ix.available = true

	probeCtx := context.WithoutCancel(ctx)
	for _, t := range indexedTables {
		rows, err := ix.db.QueryContext(probeCtx, "SELECT 1 FROM "+t.name+" LIMIT 1")
		if err != nil {
			ix.available = false
			ix.logger.Warn("full-text index unavailable, using LIKE fallback", "table", t.name, "error", err)
			break
		}
		_ = rows.Close()
	}
	return ix.available
}

// Search runs query against the requested entity types. The limit applies per
// entity type. Failures of individual entity queries are logged and that
// entity contributes nothing.
func (ix *Indexer) Search(ctx context.Context, query string, entityTypes []types.EntityType, limit int) ([]types.SearchResult, Mode) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []types.SearchResult{}, ModeNone
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if len(entityTypes) == 0 {
		entityTypes = types.AllEntityTypes
	}

	if !ix.Available(ctx) {
		if !containsEntity(entityTypes, types.EntityContact) {
			return []types.SearchResult{}, ModeNone
		}
		results, err := ix.searchFallback(ctx, query, limit)
		if err != nil {
			ix.logger.Warn("fallback search failed", "entity", types.EntityContact, "error", err)
			return []types.SearchResult{}, ModeFallback
		}
		return results, ModeFallback
	}

	ftsQuery := prepareQuery(query)
	if ftsQuery == "" {
		return []types.SearchResult{}, ModeNone
	}

	var tables []ftsTable
	for _, et := range entityTypes {
		if t, ok := tableFor(et); ok {
			tables = append(tables, t)
		}
	}
	if len(tables) == 0 {
		return []types.SearchResult{}, ModeNone
	}

	// The group isolates per-entity failures; the single-connection pool
	// serialises the queries themselves
	slots := make([][]types.SearchResult, len(tables))
	var g errgroup.Group
	for i, t := range tables {
		g.Go(func() error {
			res, err := ix.searchTable(ctx, t, ftsQuery, limit)
			if err != nil {
				ix.logger.Warn("full-text query failed", "entity", t.entity, "error", err)
				return nil
			}
			slots[i] = res
			return nil
		})
	}
	_ = g.Wait()

	results := make([]types.SearchResult, 0)
	for _, s := range slots {
		results = append(results, s...)
	}
	return results, ModeFTS
}

func (ix *Indexer) searchTable(ctx context.Context, t ftsTable, ftsQuery string, limit int) ([]types.SearchResult, error) {
	switch t.entity {
	case types.EntityContact:
		return ix.searchContacts(ctx, ftsQuery, limit)
	case types.EntityNote:
		return ix.searchNotes(ctx, ftsQuery, limit)
	case types.EntityTag:
		return ix.searchTags(ctx, ftsQuery, limit)
	}
	return nil, ErrUnknownEntityType
}

// snippetColumns renders one snippet() call per column of t
func snippetColumns(t ftsTable) string {
	cols := make([]string, len(t.columns))
	for i := range t.columns {
		cols[i] = fmt.Sprintf("snippet(%s, %d, '%s', '%s', '%s', %d)",
			t.name, i, types.HighlightStart, types.HighlightEnd, snippetEllipsis, snippetTokens)
	}
	return strings.Join(cols, ", ")
}

// highlights picks the display snippet and the matched fields from the
// per-column snippets
func highlights(t ftsTable, snippets []string) (string, []string) {
	var display string
	matched := make([]string, 0, len(t.columns))
	for i, s := range snippets {
		if !strings.Contains(s, types.HighlightStart) {
			continue
		}
		matched = append(matched, t.columns[i])
		if display == "" {
			display = s
		}
	}
	return display, matched
}

// relevance flips bm25's lower-is-better score
func relevance(bm25 float64) float64 {
	return math.Max(0, -bm25)
}

func (ix *Indexer) searchContacts(ctx context.Context, ftsQuery string, limit int) ([]types.SearchResult, error) {
	t := contactsTable
	query := `
		SELECT c.id, c.name, COALESCE(c.email, ''), COALESCE(c.phone, ''), COALESCE(c.company, ''),
		       bm25(contacts_fts) AS score, ` + snippetColumns(t) + `
		FROM contacts_fts
		JOIN contacts c ON c.id = contacts_fts.rowid
		WHERE contacts_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := ix.db.QueryContext(ctx, query, ftsQuery, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.SearchResult, 0)
	for rows.Next() {
		var (
			id                          int64
			name, email, phone, company string
			score                       float64
		)
		snippets := make([]string, len(t.columns))
		dest := []any{&id, &name, &email, &phone, &company, &score}
		for i := range snippets {
			dest = append(dest, &snippets[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		snippet, matched := highlights(t, snippets)
		subtitle := email
		if subtitle == "" {
			subtitle = phone
		}
		results = append(results, types.SearchResult{
			EntityType:     types.EntityContact,
			EntityID:       id,
			Title:          name,
			Subtitle:       subtitle,
			Snippet:        snippet,
			RelevanceScore: relevance(score),
			MatchedFields:  matched,
			Metadata: map[string]any{
				"email":   email,
				"phone":   phone,
				"company": company,
			},
		})
	}
	return results, rows.Err()
}

func (ix *Indexer) searchNotes(ctx context.Context, ftsQuery string, limit int) ([]types.SearchResult, error) {
	t := notesTable
	query := `
		SELECT n.id, COALESCE(n.title, ''), n.content, n.contact_id, COALESCE(c.name, ''),
		       bm25(notes_fts) AS score, ` + snippetColumns(t) + `
		FROM notes_fts
		JOIN notes n ON n.id = notes_fts.rowid
		LEFT JOIN contacts c ON c.id = n.contact_id
		WHERE notes_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := ix.db.QueryContext(ctx, query, ftsQuery, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.SearchResult, 0)
	for rows.Next() {
		var (
			id                          int64
			title, content, contactName string
			contactID                   sql.NullInt64
			score                       float64
		)
		snippets := make([]string, len(t.columns))
		dest := []any{&id, &title, &content, &contactID, &contactName, &score}
		for i := range snippets {
			dest = append(dest, &snippets[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		snippet, matched := highlights(t, snippets)
		if title == "" {
			title = preview(strings.SplitN(content, "\n", 2)[0], 50)
		}
		meta := map[string]any{
			"preview": preview(content, previewLength),
		}
		if contactID.Valid {
			meta["contact_id"] = contactID.Int64
		}
		results = append(results, types.SearchResult{
			EntityType:     types.EntityNote,
			EntityID:       id,
			Title:          title,
			Subtitle:       contactName,
			Snippet:        snippet,
			RelevanceScore: relevance(score),
			MatchedFields:  matched,
			Metadata:       meta,
		})
	}
	return results, rows.Err()
}

func (ix *Indexer) searchTags(ctx context.Context, ftsQuery string, limit int) ([]types.SearchResult, error) {
	t := tagsTable
	query := `
		SELECT t.id, t.name,
		       (SELECT COUNT(*) FROM contact_tags ct WHERE ct.tag_id = t.id),
		       bm25(tags_fts) AS score, ` + snippetColumns(t) + `
		FROM tags_fts
		JOIN tags t ON t.id = tags_fts.rowid
		WHERE tags_fts MATCH ?
		ORDER BY score
		LIMIT ?
	`
	rows, err := ix.db.QueryContext(ctx, query, ftsQuery, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.SearchResult, 0)
	for rows.Next() {
		var (
			id    int64
			name  string
			count int64
			score float64
		)
		snippets := make([]string, len(t.columns))
		dest := []any{&id, &name, &count, &score}
		for i := range snippets {
			dest = append(dest, &snippets[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		snippet, matched := highlights(t, snippets)
		results = append(results, types.SearchResult{
			EntityType:     types.EntityTag,
			EntityID:       id,
			Title:          name,
			Subtitle:       contactCount(count),
			Snippet:        snippet,
			RelevanceScore: relevance(score),
			MatchedFields:  matched,
			Metadata: map[string]any{
				"contact_count": count,
			},
		})
	}
	return results, rows.Err()
}

func contactCount(n int64) string {
	if n == 1 {
		return "1 contact"
	}
	return fmt.Sprintf("%d contacts", n)
}

// searchFallback substring-matches contact name, email and phone. Every hit
// scores 1.0.
func (ix *Indexer) searchFallback(ctx context.Context, query string, limit int) ([]types.SearchResult, error) {
	pattern := "%" + escapeLikePattern(query) + "%"
	rows, err := ix.db.QueryContext(ctx, `
		SELECT id, name, COALESCE(email, ''), COALESCE(phone, '')
		FROM contacts
		WHERE name LIKE ? ESCAPE '\'
		   OR email LIKE ? ESCAPE '\'
		   OR phone LIKE ? ESCAPE '\'
		ORDER BY id
		LIMIT ?
	`, pattern, pattern, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	lower := strings.ToLower(query)
	results := make([]types.SearchResult, 0)
	for rows.Next() {
		var (
			id                 int64
			name, email, phone string
		)
		if err := rows.Scan(&id, &name, &email, &phone); err != nil {
			return nil, err
		}

		matched := make([]string, 0, 3)
		for _, f := range []struct{ field, value string }{
			{"name", name}, {"email", email}, {"phone", phone},
		} {
			if strings.Contains(strings.ToLower(f.value), lower) {
				matched = append(matched, f.field)
			}
		}
		subtitle := email
		if subtitle == "" {
			subtitle = phone
		}
		results = append(results, types.SearchResult{
			EntityType:     types.EntityContact,
			EntityID:       id,
			Title:          name,
			Subtitle:       subtitle,
			RelevanceScore: 1.0,
			MatchedFields:  matched,
			Metadata: map[string]any{
				"email": email,
				"phone": phone,
			},
		})
	}
	return results, rows.Err()
}

func containsEntity(list []types.EntityType, et types.EntityType) bool {
	for _, e := range list {
		if e == et {
			return true
		}
	}
	return false
}

// UpdateIndex re-derives one entity's row from the base tables. Any failure
// rolls the change back.
func (ix *Indexer) UpdateIndex(ctx context.Context, et types.EntityType, id int64) error {
	t, err := ix.tableForWrite(ctx, et)
	if err != nil {
		return err
	}

	err = ix.withTx(ctx, func(q storage.Querier) error {
		if _, err := q.ExecContext(ctx, t.deleteOne(), id); err != nil {
			return fmt.Errorf("failed to delete %s %d from index: %w", et, id, err)
		}
		if _, err := q.ExecContext(ctx, t.populateOne(), id); err != nil {
			return fmt.Errorf("failed to index %s %d: %w", et, id, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	ix.touch()
	return nil
}

// RemoveFromIndex deletes one entity's row
func (ix *Indexer) RemoveFromIndex(ctx context.Context, et types.EntityType, id int64) error {
	t, err := ix.tableForWrite(ctx, et)
	if err != nil {
		return err
	}
	if _, err := ix.db.ExecContext(ctx, t.deleteOne(), id); err != nil {
		return fmt.Errorf("failed to delete %s %d from index: %w", et, id, err)
	}
	ix.touch()
	return nil
}

// RebuildIndex wipes and repopulates every full-text table in one transaction
func (ix *Indexer) RebuildIndex(ctx context.Context) error {
	if !ix.Available(ctx) {
		return ErrIndexUnavailable
	}
	if !ix.maintenance.tryAcquire() {
		return ErrMaintenanceInProgress
	}
	defer ix.maintenance.release()

	start := time.Now()
	err := ix.withTx(ctx, func(q storage.Querier) error {
		for _, t := range indexedTables {
			if _, err := q.ExecContext(ctx, "DELETE FROM "+t.name); err != nil {
				return fmt.Errorf("failed to clear %s: %w", t.name, err)
			}
			if _, err := q.ExecContext(ctx, t.populate); err != nil {
				return fmt.Errorf("failed to populate %s: %w", t.name, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	ix.touch()
	ix.logger.Info("full-text index rebuilt", "duration", time.Since(start))
	return nil
}

// OptimizeIndex merges the b-tree segments of every full-text table
func (ix *Indexer) OptimizeIndex(ctx context.Context) error {
	if !ix.Available(ctx) {
		return ErrIndexUnavailable
	}
	if !ix.maintenance.tryAcquire() {
		return ErrMaintenanceInProgress
	}
	defer ix.maintenance.release()

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range indexedTables {
		g.Go(func() error {
			stmt := fmt.Sprintf("INSERT INTO %s(%s) VALUES('optimize')", t.name, t.name)
			if _, err := ix.db.ExecContext(gctx, stmt); err != nil {
				return fmt.Errorf("failed to optimize %s: %w", t.name, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Stats describes the state of the full-text index
type Stats struct {
	Available          bool                       `json:"available"`
	MaintenanceRunning bool                       `json:"maintenance_running"`
	LastUpdated        time.Time                  `json:"last_updated"`
	Counts             map[types.EntityType]int64 `json:"counts"`
}

// GetIndexStats returns availability, the last write time and per-entity row
// counts. Counts are zero when the index is unavailable.
func (ix *Indexer) GetIndexStats(ctx context.Context) Stats {
	stats := Stats{
		Available:          ix.Available(ctx),
		MaintenanceRunning: ix.maintenance.held(),
		Counts:             make(map[types.EntityType]int64, len(indexedTables)),
	}
	ix.mu.Lock()
	stats.LastUpdated = ix.lastUpdated
	ix.mu.Unlock()

	counts := make([]int64, len(indexedTables))
	if stats.Available {
		var g errgroup.Group
		for i, t := range indexedTables {
			g.Go(func() error {
				err := ix.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+t.name).Scan(&counts[i])
				if err != nil {
					ix.logger.Warn("failed to count index rows", "entity", t.entity, "error", err)
					counts[i] = 0
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	for i, t := range indexedTables {
		stats.Counts[t.entity] = counts[i]
	}
	return stats
}

func (ix *Indexer) tableForWrite(ctx context.Context, et types.EntityType) (ftsTable, error) {
	t, ok := tableFor(et)
	if !ok {
		return ftsTable{}, fmt.Errorf("%w: %s", ErrUnknownEntityType, et)
	}
	if !ix.Available(ctx) {
		return ftsTable{}, ErrIndexUnavailable
	}
	return t, nil
}

// withTx runs fn inside a transaction, rolling back on error
func (ix *Indexer) withTx(ctx context.Context, fn func(q storage.Querier) error) error {
	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			ix.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (ix *Indexer) touch() {
	ix.mu.Lock()
	ix.lastUpdated = time.Now()
	ix.mu.Unlock()
}
