// Package config provides configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigDir is the directory name for canon configuration.
	DefaultConfigDir = ".canon"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultDBFile is the default SQLite database file name.
	DefaultDBFile = "canon.db"
)

// Config holds static infrastructure configuration (read-only after init).
type Config struct {
	LLM      LLMConfig      `yaml:"llm,omitempty"`
	Embedder EmbedderConfig `yaml:"embedder,omitempty"`
	Qdrant   QdrantConfig   `yaml:"qdrant,omitempty"`
	Graph    GraphConfig    `yaml:"graph,omitempty"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty"`
	Engine   EngineConfig   `yaml:"engine,omitempty"`
}

// LLMConfig holds configuration for the LLM provider.
type LLMConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// EmbedderConfig holds configuration for the embedding provider.
type EmbedderConfig struct {
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	APIKey   string `yaml:"api_key,omitempty"`
}

// QdrantConfig holds configuration for the Qdrant vector database.
type QdrantConfig struct {
	Host       string `yaml:"host,omitempty"`
	Port       int    `yaml:"port,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
}

// GraphConfig holds configuration for the graph datastore.
type GraphConfig struct {
	URI      string `yaml:"uri,omitempty"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// SQLiteConfig holds configuration for the SQLite relational database.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database.
	Path string `yaml:"path,omitempty"`
}

// EngineConfig holds curation engine tunables.
type EngineConfig struct {
	// AutoMatchThreshold is the 0-100 match score above which a preview
	// member is pre-selected.
	AutoMatchThreshold int `yaml:"auto_match_threshold,omitempty"`
	// SnapshotTTLHours bounds how long a snapshot stays restorable.
	SnapshotTTLHours int `yaml:"snapshot_ttl_hours,omitempty"`
	// MinOccurrences is the default bootstrap occurrence threshold.
	MinOccurrences int `yaml:"min_occurrences,omitempty"`
	// MinConfidence is the default bootstrap confidence threshold.
	MinConfidence float64 `yaml:"min_confidence,omitempty"`
}

// SnapshotTTL returns the configured snapshot TTL as a duration.
func (e EngineConfig) SnapshotTTL() time.Duration {
	return time.Duration(e.SnapshotTTLHours) * time.Hour
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		},
		Embedder: EmbedderConfig{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "canon_concepts",
		},
		Graph: GraphConfig{
			URI: "bolt://localhost:7687",
		},
		Engine: EngineConfig{
			AutoMatchThreshold: 90,
			SnapshotTTLHours:   24,
			MinOccurrences:     3,
			MinConfidence:      0.7,
		},
	}
}

// Load loads configuration from the .canon directory in the given path.
func Load(basePath string) (*Config, error) {
	configFile := filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'canon init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.LLM.APIKey == "" {
			c.LLM.APIKey = key
		}
		if c.Embedder.APIKey == "" {
			c.Embedder.APIKey = key
		}
	}
	if key := os.Getenv("QDRANT_API_KEY"); key != "" {
		if c.Qdrant.APIKey == "" {
			c.Qdrant.APIKey = key
		}
	}
	if pass := os.Getenv("CANON_GRAPH_PASSWORD"); pass != "" {
		if c.Graph.Password == "" {
			c.Graph.Password = pass
		}
	}
}

// ConfigDir returns the path to the .canon config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// SQLitePath returns the SQLite database path under the config dir.
func SQLitePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultDBFile)
}

// Exists checks if a canon config exists in the given path.
func Exists(basePath string) bool {
	_, err := os.Stat(ConfigFilePath(basePath))
	return err == nil
}
