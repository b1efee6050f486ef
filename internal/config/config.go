// Package config provides configuration management.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"billing-trust/core/policy"
	"billing-trust/internal/errors"
	"billing-trust/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version"`

	// Server contains HTTP server settings
	Server ServerConfig `json:"server"`

	// Store contains billing store settings
	Store StoreConfig `json:"store"`

	// Cache contains snapshot cache settings
	Cache CacheConfig `json:"cache"`

	// PolicyFile is the path to the HCL governance policy file
	PolicyFile string `json:"policy_file,omitempty"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Addr is the listen address
	Addr string `json:"addr"`
}

// StoreConfig contains billing store settings
type StoreConfig struct {
	// DatabasePath is the path to the SQLite billing database
	DatabasePath string `json:"database_path"`
}

// CacheConfig contains snapshot cache settings
type CacheConfig struct {
	// TTLSeconds is how long a computed snapshot stays fresh
	TTLSeconds int `json:"ttl_seconds"`
}

// Default returns a default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dbPath := filepath.Join(homeDir, ".billing-trust", "billing.db")

	return &Config{
		Version: "1.0",
		Server: ServerConfig{
			Addr: ":8080",
		},
		Store: StoreConfig{
			DatabasePath: dbPath,
		},
		Cache: CacheConfig{
			TTLSeconds: 300,
		},
		Logging: logging.DefaultConfig(),
	}
}

// Load loads configuration from a file, falling back to defaults when the
// file does not exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, errors.Wrap(errors.TypeConfig, "read config file", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, errors.Wrap(errors.TypeConfig, "parse config file", err)
	}

	return config, nil
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// LoadPolicy loads the governance policy from an HCL file. A missing path
// or file yields the built-in default rule set.
func LoadPolicy(path string) (*policy.Policy, error) {
	if path == "" {
		return policy.Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return policy.Default(), nil
	}

	var p policy.Policy
	if err := hclsimple.DecodeFile(path, nil, &p); err != nil {
		return nil, errors.Wrap(errors.TypeConfig, "parse policy file", err)
	}
	p.Normalize()
	return &p, nil
}
