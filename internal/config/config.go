// Package config provides configuration loading and structs for the yomu engine and server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Term weighting schemes accepted by search.weighting.
const (
	// WeightingDocument treats every vectorized text as its own one-document corpus.
	WeightingDocument = "document"
	// WeightingCorpus recomputes inverse document frequency over the client's chunks at query time.
	WeightingCorpus = "corpus"
)

// SQL drivers accepted by storage.driver.
const (
	// DriverSQLite3 is github.com/mattn/go-sqlite3 (cgo).
	DriverSQLite3 = "sqlite3"
	// DriverSQLite is modernc.org/sqlite (pure Go).
	DriverSQLite = "sqlite"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Index   IndexConfig   `yaml:"index"`
	Search  SearchConfig  `yaml:"search"`
	Ingest  IngestConfig  `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig selects the SQL driver and database file.
type StorageConfig struct {
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
}

// IndexConfig holds chunking and indexing settings.
type IndexConfig struct {
	// ChunkSize is the target chunk length in characters.
	ChunkSize int `yaml:"chunk_size"`
	// Workers bounds how many files a directory import indexes at once.
	Workers int `yaml:"workers"`
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	DefaultLimit int    `yaml:"default_limit"`
	MaxLimit     int    `yaml:"max_limit"`
	Weighting    string `yaml:"weighting"`
}

// IngestConfig holds settings for file-backed documents.
// Root is laid out as <root>/<client id>/<files>.
type IngestConfig struct {
	Root       string   `yaml:"root"`
	Extensions []string `yaml:"extensions"`
	Watch      *bool    `yaml:"watch"`
}

// WatchOrDefault returns whether to watch Root for changes; defaults to true when unset.
func (c *IngestConfig) WatchOrDefault() bool {
	if c.Watch != nil {
		return *c.Watch
	}
	return true
}

// Load reads and parses the config file at path, applies a sibling .env file and
// YOMU_* environment overrides, applies defaults, and expands paths.
// Returns an error if the file cannot be read or parsed, or if a value is invalid.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := LoadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Ingest.Root != "" {
		cfg.Ingest.Root = expandPath(cfg.Ingest.Root, configDir)
	}

	return &cfg, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg with YOMU_* environment variables that are set.
func ApplyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("YOMU_DATABASE_PATH"); ok && v != "" {
		cfg.Storage.DatabasePath = v
	}
	if v, ok := os.LookupEnv("YOMU_STORAGE_DRIVER"); ok && v != "" {
		cfg.Storage.Driver = v
	}
	if v, ok := os.LookupEnv("YOMU_INGEST_ROOT"); ok && v != "" {
		cfg.Ingest.Root = v
	}
	if v, ok := os.LookupEnv("YOMU_DEBUG"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = b
		}
	}
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite3, DriverSQLite:
	default:
		return fmt.Errorf("unknown storage driver %q (supported: %s, %s)", c.Storage.Driver, DriverSQLite3, DriverSQLite)
	}
	switch c.Search.Weighting {
	case WeightingDocument, WeightingCorpus:
	default:
		return fmt.Errorf("unknown search weighting %q (supported: %s, %s)", c.Search.Weighting, WeightingDocument, WeightingCorpus)
	}
	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("search.default_limit (%d) exceeds search.max_limit (%d)", c.Search.DefaultLimit, c.Search.MaxLimit)
	}
	return nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. ":memory:" is left alone.
func expandPath(path string, configDir string) string {
	if path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
