// Package config provides configuration loading and management for wafermap.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Backend names for the store selection.
const (
	BackendLocal  = "local"
	BackendNATS   = "nats"
	BackendGossip = "gossip"
	BackendMemory = "memory"
)

// Config represents the complete wafermap configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	NATS    NATSConfig    `yaml:"nats"`
	Gossip  GossipConfig  `yaml:"gossip"`
	Local   LocalConfig   `yaml:"local"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// StoreConfig selects the backing store variant. The variants are
// interchangeable; nothing else in the system branches on the choice.
type StoreConfig struct {
	// Backend is one of local, nats, gossip, memory.
	Backend string `yaml:"backend"`
}

// NATSConfig configures the hosted document store variant.
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to run an embedded server
	Embedded bool `yaml:"embedded"`
	// Bucket overrides the default KV bucket name
	Bucket string `yaml:"bucket"`
}

// GossipConfig configures the peer-to-peer store variant.
type GossipConfig struct {
	// NodeID identifies this node on the mesh (generated when empty)
	NodeID string `yaml:"node_id"`
	// Bind is the publisher endpoint, e.g. tcp://*:5757
	Bind string `yaml:"bind"`
	// Peers are the publisher endpoints of the other nodes
	Peers []string `yaml:"peers"`
}

// LocalConfig configures the persisted snapshot variant.
type LocalConfig struct {
	// Path is the snapshot file location
	Path string `yaml:"path"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics (empty = disabled)
	Addr string `yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults: the local persisted
// store under the user's home, no metrics endpoint.
func DefaultConfig() *Config {
	snapshot := "wafermap-entries.json"
	if home, err := os.UserHomeDir(); err == nil {
		snapshot = filepath.Join(home, ".local", "share", "wafermap", "entries.json")
	}
	return &Config{
		Store: StoreConfig{Backend: BackendLocal},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		Gossip: GossipConfig{
			Bind: "tcp://*:5757",
		},
		Local:   LocalConfig{Path: snapshot},
		Metrics: MetricsConfig{},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendLocal:
		if c.Local.Path == "" {
			return fmt.Errorf("local.path is required for the local backend")
		}
	case BackendNATS:
		if c.NATS.URL == "" && !c.NATS.Embedded {
			return fmt.Errorf("nats.url is required when nats.embedded is false")
		}
	case BackendGossip:
		if c.Gossip.Bind == "" {
			return fmt.Errorf("gossip.bind is required for the gossip backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("store.backend must be one of local, nats, gossip, memory (got %q)", c.Store.Backend)
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return config, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Merge merges another config into this one (other takes precedence for
// non-zero values).
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Store.Backend != "" {
		c.Store.Backend = other.Store.Backend
	}

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Embedded {
		c.NATS.Embedded = true
	}
	if other.NATS.Bucket != "" {
		c.NATS.Bucket = other.NATS.Bucket
	}

	if other.Gossip.NodeID != "" {
		c.Gossip.NodeID = other.Gossip.NodeID
	}
	if other.Gossip.Bind != "" {
		c.Gossip.Bind = other.Gossip.Bind
	}
	if len(other.Gossip.Peers) > 0 {
		c.Gossip.Peers = other.Gossip.Peers
	}

	if other.Local.Path != "" {
		c.Local.Path = other.Local.Path
	}

	if other.Metrics.Addr != "" {
		c.Metrics.Addr = other.Metrics.Addr
	}
}
