// Package config loads contactsearch settings from built-in defaults, an
// optional TOML file and environment overrides, in that order.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/charmbracelet/log"

	"github.com/dshills/contactsearch/internal/autocomplete"
	"github.com/dshills/contactsearch/internal/cache"
	"github.com/dshills/contactsearch/internal/logger"
	"github.com/dshills/contactsearch/internal/searcher"
)

const (
	// EnvDBPath overrides database.path
	EnvDBPath = "CONTACTSEARCH_DB_PATH"
	// EnvLogLevel overrides log.level
	EnvLogLevel = "CONTACTSEARCH_LOG_LEVEL"

	appDir = "contactsearch"
)

// Config holds the entire config structure
type Config struct {
	Database     DatabaseConfig     `toml:"database"`
	Log          LogConfig          `toml:"log"`
	Cache        CacheConfig        `toml:"cache"`
	Search       SearchConfig       `toml:"search"`
	Autocomplete AutocompleteConfig `toml:"autocomplete"`
}

// DatabaseConfig locates the SQLite database
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// LogConfig sets the global log level
type LogConfig struct {
	Level string `toml:"level"`
}

// CacheConfig sizes the contact cache
type CacheConfig struct {
	MaxSize                int `toml:"max_size"`
	MaxAutocompleteResults int `toml:"max_autocomplete_results"`
}

// SearchConfig tunes the unified searcher
type SearchConfig struct {
	DefaultLimit       int `toml:"default_limit"`
	MaxLimit           int `toml:"max_limit"`
	MaxHistory         int `toml:"max_history"`
	MaxPopular         int `toml:"max_popular"`
	ResponseCacheSize  int `toml:"response_cache_size"`
	ResponseCacheTTLMS int `toml:"response_cache_ttl_ms"`
}

// AutocompleteConfig tunes the autocomplete engine
type AutocompleteConfig struct {
	MinQueryLength int     `toml:"min_query_length"`
	MaxSuggestions int     `toml:"max_suggestions"`
	FuzzyEnabled   bool    `toml:"fuzzy_enabled"`
	FuzzyThreshold float64 `toml:"fuzzy_threshold"`
	DebounceMS     int     `toml:"debounce_ms"`
	DefaultField   string  `toml:"default_field"`
}

// DefaultConfig returns a Config with default values
func DefaultConfig() *Config {
	cc := cache.DefaultConfig()
	sc := searcher.DefaultConfig()
	ac := autocomplete.DefaultConfig()

	return &Config{
		Database: DatabaseConfig{Path: defaultDBPath()},
		Log:      LogConfig{Level: "info"},
		Cache: CacheConfig{
			MaxSize:                cc.MaxSize,
			MaxAutocompleteResults: cc.MaxAutocompleteResults,
		},
		Search: SearchConfig{
			DefaultLimit:       sc.DefaultLimit,
			MaxLimit:           sc.MaxLimit,
			MaxHistory:         sc.MaxHistory,
			MaxPopular:         sc.MaxPopular,
			ResponseCacheSize:  sc.ResponseCacheSize,
			ResponseCacheTTLMS: int(sc.ResponseCacheTTL / time.Millisecond),
		},
		Autocomplete: AutocompleteConfig{
			MinQueryLength: ac.MinQueryLength,
			MaxSuggestions: ac.MaxSuggestions,
			FuzzyEnabled:   ac.FuzzyEnabled,
			FuzzyThreshold: ac.FuzzyThreshold,
			DebounceMS:     int(ac.DebounceInterval / time.Millisecond),
			DefaultField:   ac.DefaultField,
		},
	}
}

func defaultDBPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "contacts.db")
	}
	return filepath.Join(home, "."+appDir, "contacts.db")
}

// DefaultPath returns [UserConfigDir]/contactsearch/config.toml, or "" when
// the config directory cannot be determined
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, appDir, "config.toml")
}

// Load merges defaults < TOML file at path < environment. A missing or
// unparsable file is logged and the defaults are kept; Load never fails.
func Load(path string, lg *log.Logger) *Config {
	lg = logger.OrDefault(lg, "config")
	cfg := DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			lg.Debug("config file not found, using defaults", "path", path)
		} else {
			parsed := DefaultConfig()
			meta, err := toml.DecodeFile(path, parsed)
			if err != nil {
				lg.Warn("failed to parse config, using defaults", "path", path, "error", err)
			} else {
				cfg = parsed
				for _, key := range meta.Undecoded() {
					lg.Warn("unknown config key ignored", "key", key.String(), "path", path)
				}
				lg.Debug("loaded config", "path", path)
			}
		}
	}

	applyEnv(cfg)
	cfg.normalize()
	return cfg
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvDBPath)); v != "" {
		cfg.Database.Path = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Log.Level = v
	}
}

// normalize expands ~ in the database path
func (c *Config) normalize() {
	if rest, ok := strings.CutPrefix(c.Database.Path, "~"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			c.Database.Path = filepath.Join(home, rest)
		}
	}
}

// Save writes cfg as TOML to path, creating parent directories
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// CacheConfig converts to the contact cache configuration
func (c *Config) CacheConfig(lg *log.Logger) cache.Config {
	return cache.Config{
		MaxSize:                c.Cache.MaxSize,
		MaxAutocompleteResults: c.Cache.MaxAutocompleteResults,
		Logger:                 lg,
	}
}

// SearcherConfig converts to the searcher configuration
func (c *Config) SearcherConfig(lg *log.Logger) searcher.Config {
	return searcher.Config{
		DefaultLimit:      c.Search.DefaultLimit,
		MaxLimit:          c.Search.MaxLimit,
		MaxHistory:        c.Search.MaxHistory,
		MaxPopular:        c.Search.MaxPopular,
		ResponseCacheSize: c.Search.ResponseCacheSize,
		ResponseCacheTTL:  time.Duration(c.Search.ResponseCacheTTLMS) * time.Millisecond,
		Logger:            lg,
	}
}

// AutocompleteConfig converts to the autocomplete engine configuration
func (c *Config) AutocompleteConfig(lg *log.Logger) autocomplete.Config {
	return autocomplete.Config{
		MinQueryLength:   c.Autocomplete.MinQueryLength,
		MaxSuggestions:   c.Autocomplete.MaxSuggestions,
		FuzzyEnabled:     c.Autocomplete.FuzzyEnabled,
		FuzzyThreshold:   c.Autocomplete.FuzzyThreshold,
		DebounceInterval: time.Duration(c.Autocomplete.DebounceMS) * time.Millisecond,
		DefaultField:     c.Autocomplete.DefaultField,
		Logger:           lg,
	}
}
