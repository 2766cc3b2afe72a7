package mcp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/contactsearch/internal/autocomplete"
	"github.com/dshills/contactsearch/internal/cache"
	"github.com/dshills/contactsearch/internal/config"
	"github.com/dshills/contactsearch/internal/fulltext"
	"github.com/dshills/contactsearch/internal/logger"
	"github.com/dshills/contactsearch/internal/searcher"
	"github.com/dshills/contactsearch/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "contactsearch"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	storage  storage.Storage
	cache    *cache.ContactCache
	indexer  *fulltext.Indexer
	searcher *searcher.Searcher
	engine   *autocomplete.Engine
	logger   *log.Logger
}

// NewServer opens the database named by cfg, warms the contact cache from it
// and registers every tool
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	lg := logger.New("mcp")

	if dir := filepath.Dir(cfg.Database.Path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path, storage.WithLogger(logger.New("storage")))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	s, err := newServer(ctx, store, cfg, lg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

// newServer wires components over an open store
func newServer(ctx context.Context, store storage.Storage, cfg *config.Config, lg *log.Logger) (*Server, error) {
	contacts := cache.New(cfg.CacheConfig(logger.New("cache")))
	idx := fulltext.New(store.DB(), fulltext.Config{Logger: logger.New("fulltext")})
	srch := searcher.New(contacts, idx, cfg.SearcherConfig(logger.New("searcher")))
	engine := autocomplete.New(
		cfg.AutocompleteConfig(logger.New("autocomplete")),
		autocomplete.WithCache(contacts),
		autocomplete.WithHistory(srch),
	)

	if err := srch.WarmFromStore(ctx, store); err != nil {
		return nil, fmt.Errorf("failed to warm contact cache: %w", err)
	}

	s := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion),
		storage:  store,
		cache:    contacts,
		indexer:  idx,
		searcher: srch,
		engine:   engine,
		logger:   lg,
	}

	// Register tools
	if err := s.registerTools(); err != nil {
		return nil, fmt.Errorf("failed to register tools: %w", err)
	}

	return s, nil
}

// Searcher returns the orchestrator backing the tools
func (s *Server) Searcher() *searcher.Searcher {
	return s.searcher
}

// Close releases the database
func (s *Server) Close() error {
	return s.storage.Close()
}

// Serve starts the MCP server on stdio and blocks until shutdown
func (s *Server) Serve(ctx context.Context) error {
	defer func() { _ = s.storage.Close() }()
	s.logger.Info("serving on stdio", "contacts", s.cache.Len())
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() error {
	s.mcp.AddTool(searchContactsTool(), s.handleSearchContacts)
	s.mcp.AddTool(autocompleteTool(), s.handleAutocomplete)
	s.mcp.AddTool(suggestTool(), s.handleSuggest)
	s.mcp.AddTool(getSuggestionsTool(), s.handleGetSuggestions)
	s.mcp.AddTool(indexEntityTool(), s.handleIndexEntity)

	s.mcp.AddTool(warmCacheTool(), s.handleWarmCache)
	s.mcp.AddTool(clearCacheTool(), s.handleClearCache)
	s.mcp.AddTool(rebuildIndexTool(), s.handleRebuildIndex)
	s.mcp.AddTool(optimizeIndexTool(), s.handleOptimizeIndex)
	s.mcp.AddTool(getStatsTool(), s.handleGetStats)

	return nil
}
