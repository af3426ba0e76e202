package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config describes one capcache peer: the node URI it advertises, the
// datasets it resolves against and the addresses it serves on.
type Config struct {
	NodeURI        string         `json:"node_uri"`
	ListenAddress  string         `json:"listen_address"`
	MetricsAddress string         `json:"metrics_address,omitempty"`
	SystemDBPath   string         `json:"system_db_path,omitempty"`
	UserDBPath     string         `json:"user_db_path,omitempty"`
	HashAlgorithm  string         `json:"hash_algorithm,omitempty"` // wire label, e.g. "sha-1"
	Identity       IdentityConfig `json:"identity,omitempty"`
	Features       []string       `json:"features,omitempty"`
}

// IdentityConfig is the identity the local peer advertises.
type IdentityConfig struct {
	Category string `json:"category"`
	Type     string `json:"type"`
	Name     string `json:"name,omitempty"`
}

// LoadConfig reads a JSON config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// LoadFromEnv builds a config from CAPCACHE_* environment variables with
// sensible defaults.
func LoadFromEnv() *Config {
	cfg := &Config{
		NodeURI:        getEnv("CAPCACHE_NODE_URI", ""),
		ListenAddress:  getEnv("CAPCACHE_LISTEN_ADDRESS", ":7395"),
		MetricsAddress: getEnv("CAPCACHE_METRICS_ADDRESS", ""),
		SystemDBPath:   getEnv("CAPCACHE_SYSTEM_DB", ""),
		UserDBPath:     getEnv("CAPCACHE_USER_DB", ""),
		HashAlgorithm:  getEnv("CAPCACHE_HASH", ""),
		Identity: IdentityConfig{
			Category: getEnv("CAPCACHE_IDENTITY_CATEGORY", "client"),
			Type:     getEnv("CAPCACHE_IDENTITY_TYPE", "bot"),
			Name:     getEnv("CAPCACHE_IDENTITY_NAME", ""),
		},
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.NodeURI == "" {
		c.NodeURI = "https://capcache.example/"
	}
	if c.ListenAddress == "" {
		c.ListenAddress = ":7395"
	}
	if c.HashAlgorithm == "" {
		c.HashAlgorithm = "sha-1"
	}
	if c.Identity.Category == "" {
		c.Identity.Category = "client"
	}
	if c.Identity.Type == "" {
		c.Identity.Type = "bot"
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
