// Package config provides configuration loading and structs for the semdex core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug    bool           `yaml:"debug"`
	Project  ProjectConfig  `yaml:"project"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Backend  BackendConfig  `yaml:"backend"`
	Index    IndexConfig    `yaml:"index"`
	Exclude  ExcludeConfig  `yaml:"exclude"`
	Pipeline PipelineConfig `yaml:"pipeline"`
}

// ProjectConfig identifies the project tree being indexed.
type ProjectConfig struct {
	Root string `yaml:"root"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds the path of the persistent vector index.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// BackendConfig holds embedding-backend endpoints and timeouts.
type BackendConfig struct {
	PrimaryURL   string `yaml:"primary_url"`
	SecondaryURL string `yaml:"secondary_url"`
	Model        string `yaml:"model"`
	// ProbeTimeoutMs bounds the reachability probe against the primary host.
	ProbeTimeoutMs int `yaml:"probe_timeout_ms"`
	// FailoverTimeoutMs bounds the probe against the secondary host; the
	// secondary is typically further away, so this is longer.
	FailoverTimeoutMs int `yaml:"failover_timeout_ms"`
	EmbedTimeoutMs    int `yaml:"embed_timeout_ms"`
	// CostConstrained refuses failover to the secondary host, for metered
	// or otherwise expensive networks.
	CostConstrained bool `yaml:"cost_constrained"`
	CacheSize       int  `yaml:"cache_size"`
}

// IndexConfig holds index-eligibility and resynchronization settings.
type IndexConfig struct {
	// EligibilityGlobs restricts which cataloged files are embedded
	// (e.g. ["*.go", "*.md"]). Empty means every text file is eligible.
	EligibilityGlobs []string `yaml:"eligibility_globs"`
	// BinaryExtensions are cataloged despite failing the text sniff
	// (raster images and similar); they are never embedded.
	BinaryExtensions []string `yaml:"binary_extensions"`
	// ResyncIntervalSec is the period of the background resynchronization
	// loop; 0 disables it.
	ResyncIntervalSec int `yaml:"resync_interval_sec"`
	SnippetLength     int `yaml:"snippet_length"`
}

// ExcludeConfig holds the catalog exclusion policy. Name/glob lists and the
// regular-expression pattern are mutually exclusive modes: setting Pattern
// together with Globs is a validation error.
type ExcludeConfig struct {
	Dirs  []string `yaml:"dirs"`
	Files []string `yaml:"files"`
	Globs []string `yaml:"globs"`
	// Pattern is a single regular expression matched against the
	// slash-separated relative path.
	Pattern string `yaml:"pattern"`
	// UseGitignore also applies patterns from the project's .gitignore.
	UseGitignore bool `yaml:"use_gitignore"`
}

// PipelineConfig holds reactive input settings.
type PipelineConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed, or if the exclusion
// policy mixes glob and regexp modes.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	if cfg.Project.Root != "" {
		cfg.Project.Root = expandPath(cfg.Project.Root, configDir)
	}

	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Exclude.Pattern != "" && len(c.Exclude.Globs) > 0 {
		return fmt.Errorf("exclude.pattern and exclude.globs are mutually exclusive")
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
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
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
