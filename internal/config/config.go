// Package config loads the tokenledger daemon's configuration, following
// the teacher's internal/node config pattern: a YAML file under the data
// directory, created with defaults on first run, overridable by flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// StoreBackend selects which store.Store implementation the daemon wires
// up.
type StoreBackend string

const (
	BackendSQLite StoreBackend = "sqlite"
	BackendMemory StoreBackend = "memory"
)

// Config holds all configuration for the tokenledger daemon.
type Config struct {
	// Storage settings.
	Storage StorageConfig `yaml:"storage"`

	// Hold governs the bounds HOLD lifecycle operations obey.
	Hold HoldConfig `yaml:"hold"`

	// Workers governs the expiry/retention worker cadence.
	Workers WorkersConfig `yaml:"workers"`

	// Logging settings.
	Logging LoggingConfig `yaml:"logging"`
}

// StorageConfig holds storage backend settings.
type StorageConfig struct {
	Backend  StoreBackend `yaml:"backend"`
	DataDir  string       `yaml:"data_dir"`
	FileName string       `yaml:"file_name"`
}

// HoldConfig bounds the expiresAfter window writers accept (§4.5).
type HoldConfig struct {
	MinExpiresAfter time.Duration `yaml:"min_expires_after"`
	MaxExpiresAfter time.Duration `yaml:"max_expires_after"`
	MaxTotalExtend  time.Duration `yaml:"max_total_extend"`
}

// WorkersConfig controls the expiry and retention worker tickers.
type WorkersConfig struct {
	ExpiryInterval         time.Duration `yaml:"expiry_interval"`
	ExpiryBatchSize        int           `yaml:"expiry_batch_size"`
	ExpiredForSeconds      int64         `yaml:"expired_for_seconds"`
	RetentionInterval      time.Duration `yaml:"retention_interval"`
	RetentionOlderThanDays int           `yaml:"retention_older_than_days"`
	RetentionLimit         int           `yaml:"retention_limit"`
	RetentionArchive       bool          `yaml:"retention_archive"`
	RetentionDryRun        bool          `yaml:"retention_dry_run"`
	RetentionMaxSeconds    int           `yaml:"retention_max_seconds"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend:  BackendSQLite,
			DataDir:  "~/.tokenledger",
			FileName: "ledger.db",
		},
		Hold: HoldConfig{
			MinExpiresAfter: 300 * time.Second,
			MaxExpiresAfter: 3600 * time.Second,
			MaxTotalExtend:  7200 * time.Second,
		},
		Workers: WorkersConfig{
			ExpiryInterval:         2 * time.Minute,
			ExpiryBatchSize:        100,
			ExpiredForSeconds:      0,
			RetentionInterval:      24 * time.Hour,
			RetentionOlderThanDays: 730,
			RetentionLimit:         1000,
			RetentionArchive:       true,
			RetentionDryRun:        true,
			RetentionMaxSeconds:    25,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// ConfigFileName is the default config file name.
const ConfigFileName = "config.yaml"

// Load reads configuration from dataDir/config.yaml, creating it with
// defaults on first run.
func Load(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir
		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte("# Token ledger daemon configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
