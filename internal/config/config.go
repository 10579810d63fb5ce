// Copyright Contributors to the ingestctl project

// Package config loads the static process configuration: the HTTP bind
// address, persistence backend selection, and GitHub App credentials
// for the webhook provider. Task definitions themselves are runtime
// state owned by internal/store, not process config.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StoreBackend selects the persistence implementation behind
// internal/store.Store.
type StoreBackend string

const (
	StoreBackendMemory  StoreBackend = "memory"
	StoreBackendBitcask StoreBackend = "bitcask"
)

// GitHubAppConfig carries the credentials needed to mint installation
// tokens via ghinstallation. A zero AppID means no GitHub webhook
// provider is registered, so webhook tasks for git-crawler sources
// cannot register a new subscription.
type GitHubAppConfig struct {
	AppID          int64  `yaml:"appId"`
	InstallationID int64  `yaml:"installationId"`
	PrivateKeyPath string `yaml:"privateKeyPath"`
}

// Config is the top-level process configuration.
type Config struct {
	Address string `yaml:"address"`

	Store struct {
		Backend StoreBackend `yaml:"backend"`
		Path    string       `yaml:"path"`
	} `yaml:"store"`

	GitHubApp GitHubAppConfig `yaml:"githubApp"`

	LogDevelopment bool   `yaml:"logDevelopment"`
	LogLevel       string `yaml:"logLevel"`
}

// Default returns the configuration used when no file is supplied:
// in-memory store, development logging.
func Default() *Config {
	c := &Config{
		Address:        ":8080",
		LogDevelopment: true,
	}
	c.Store.Backend = StoreBackendMemory
	return c
}

// Load reads and parses a YAML config file, starting from Default() so
// a partial file only overrides what it sets.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks cross-field invariants that yaml.Unmarshal cannot.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case StoreBackendMemory, StoreBackendBitcask:
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Store.Backend == StoreBackendBitcask && c.Store.Path == "" {
		return fmt.Errorf("config: store.path is required for the bitcask backend")
	}
	return nil
}
