// Package config loads bento settings from YAML with environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all bento configuration.
type Config struct {
	// DataDir holds the SQLite file, the file backend and uploads.
	DataDir string `yaml:"data_dir"`

	Storage  StorageConfig  `yaml:"storage"`
	Metadata MetadataConfig `yaml:"metadata"`
	Orphans  OrphanConfig   `yaml:"orphans"`
	MCP      MCPConfig      `yaml:"mcp"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// StorageConfig selects the durable key-value backend.
type StorageConfig struct {
	Driver     string `yaml:"driver"` // sqlite, mysql, postgres, mongodb, file, memory
	DSN        string `yaml:"dsn"`
	// DSNSecret names a keychain entry holding the DSN. It is used when DSN is empty.
	DSNSecret  string `yaml:"dsn_secret"`
	Database   string `yaml:"database"`   // mongodb only
	Collection string `yaml:"collection"` // mongodb only
}

// MetadataConfig configures link metadata fetching.
type MetadataConfig struct {
	// Endpoint, when set, is a remote service queried as <endpoint>?url=<u>.
	// Empty means pages are fetched and parsed directly.
	Endpoint     string `yaml:"endpoint"`
	Timeout      string `yaml:"timeout"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
	UserAgent    string `yaml:"user_agent"`
}

// OrphanConfig configures reclamation of cells that lost their content.
type OrphanConfig struct {
	Grace    string `yaml:"grace"`
	Schedule string `yaml:"schedule"` // cron spec
}

// MCPConfig configures the agent-facing tool server.
type MCPConfig struct {
	RequireApproval bool   `yaml:"require_approval"`
	ApprovalTimeout string `yaml:"approval_timeout"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
	File   string `yaml:"file"`
}

// ValidDrivers lists the supported storage drivers.
var ValidDrivers = []string{"sqlite", "mysql", "postgres", "mongodb", "file", "memory"}

// DefaultDataDir returns ~/.bento, or ./.bento when the home directory is unknown.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".bento"
	}
	return filepath.Join(home, ".bento")
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Storage: StorageConfig{
			Driver:     "sqlite",
			Database:   "bento",
			Collection: "kv",
		},
		Metadata: MetadataConfig{
			Timeout:      "10s",
			MaxBodyBytes: 1 << 20,
			UserAgent:    "bento-link-preview/1.0",
		},
		Orphans: OrphanConfig{
			Grace:    "30s",
			Schedule: "@every 30s",
		},
		MCP: MCPConfig{
			RequireApproval: false,
			ApprovalTimeout: "5m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults; environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("BENTO_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("BENTO_STORAGE_DRIVER"); v != "" {
		c.Storage.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("BENTO_STORAGE_DSN"); v != "" {
		c.Storage.DSN = v
	}
	if v := os.Getenv("BENTO_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("BENTO_METADATA_ENDPOINT"); v != "" {
		c.Metadata.Endpoint = v
	}
}

// Validate checks values the rest of the program relies on.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is empty")
	}
	valid := false
	for _, d := range ValidDrivers {
		if c.Storage.Driver == d {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid storage driver: %s (valid: %v)", c.Storage.Driver, ValidDrivers)
	}
	if (c.Storage.Driver == "mysql" || c.Storage.Driver == "postgres" || c.Storage.Driver == "mongodb") && c.Storage.DSN == "" && c.Storage.DSNSecret == "" {
		return fmt.Errorf("storage driver %s requires a dsn", c.Storage.Driver)
	}
	for name, v := range map[string]string{
		"metadata.timeout":     c.Metadata.Timeout,
		"orphans.grace":        c.Orphans.Grace,
		"mcp.approval_timeout": c.MCP.ApprovalTimeout,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	return nil
}

// DBPath returns the SQLite file used by the default backend.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "bento.db")
}

// UploadDir returns where uploaded images are stored.
func (c *Config) UploadDir() string {
	return filepath.Join(c.DataDir, "uploads")
}

// GetMetadataTimeout returns the link metadata timeout as a duration.
func (c *Config) GetMetadataTimeout() time.Duration {
	return parseDuration(c.Metadata.Timeout, 10*time.Second)
}

// GetOrphanGrace returns how long a cell may lack content before it is reclaimed.
func (c *Config) GetOrphanGrace() time.Duration {
	return parseDuration(c.Orphans.Grace, 30*time.Second)
}

// GetApprovalTimeout returns how long a destructive MCP call waits for approval.
func (c *Config) GetApprovalTimeout() time.Duration {
	return parseDuration(c.MCP.ApprovalTimeout, 5*time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
