package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/FranchuFranchu/kelili/dht"
	"github.com/FranchuFranchu/kelili/storage"
)

// Config is the node configuration file.
type Config struct {
	Node       Node       `toml:"node" yaml:"node"`
	DHT        DHT        `toml:"dht" yaml:"dht"`
	Simulation Simulation `toml:"simulation" yaml:"simulation"`
	Gateway    Gateway    `toml:"gateway" yaml:"gateway"`
	Telemetry  Telemetry  `toml:"telemetry" yaml:"telemetry"`
	Logging    Logging    `toml:"logging" yaml:"logging"`
}

// Node identifies the deployment.
type Node struct {
	Name        string `toml:"Name" yaml:"name"`
	Environment string `toml:"Environment" yaml:"environment"`
}

// DHT tunes every peer of the overlay.
type DHT struct {
	K               int    `toml:"K" yaml:"k"`
	Alpha           int    `toml:"Alpha" yaml:"alpha"`
	TTL             int    `toml:"TTL" yaml:"ttl"`
	QueueSize       int    `toml:"QueueSize" yaml:"queue_size"`
	SendTimeoutMs   int    `toml:"SendTimeoutMs" yaml:"send_timeout_ms"`
	LookupTimeoutMs int    `toml:"LookupTimeoutMs" yaml:"lookup_timeout_ms"`
	SweepIntervalMs int    `toml:"SweepIntervalMs" yaml:"sweep_interval_ms"`
	MaxRounds       int    `toml:"MaxRounds" yaml:"max_rounds"`
	Hash            string `toml:"Hash" yaml:"hash"`
	StoreBackend    string `toml:"StoreBackend" yaml:"store_backend"`
}

// Simulation describes the in-process overlay the daemon runs.
type Simulation struct {
	Peers    int    `toml:"Peers" yaml:"peers"`
	Seed     uint64 `toml:"Seed" yaml:"seed"`
	Topology string `toml:"Topology" yaml:"topology"`
}

// Gateway configures the HTTP surface.
type Gateway struct {
	ListenAddress     string  `toml:"ListenAddress" yaml:"listen"`
	AuthSecret        string  `toml:"AuthSecret" yaml:"auth_secret"`
	Issuer            string  `toml:"Issuer" yaml:"issuer"`
	Audience          string  `toml:"Audience" yaml:"audience"`
	RequestsPerMinute float64 `toml:"RequestsPerMinute" yaml:"requests_per_minute"`
	Burst             int     `toml:"Burst" yaml:"burst"`
}

// Telemetry configures OTLP export.
type Telemetry struct {
	Endpoint string `toml:"Endpoint" yaml:"endpoint"`
	Insecure bool   `toml:"Insecure" yaml:"insecure"`
	Metrics  bool   `toml:"Metrics" yaml:"metrics"`
	Traces   bool   `toml:"Traces" yaml:"traces"`
}

// Logging configures the process logger.
type Logging struct {
	Level      string `toml:"Level" yaml:"level"`
	File       string `toml:"File" yaml:"file"`
	MaxSizeMB  int    `toml:"MaxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `toml:"MaxBackups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"MaxAgeDays" yaml:"max_age_days"`
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	def := dht.DefaultConfig()
	return &Config{
		Node: Node{Name: "kelili", Environment: "local"},
		DHT: DHT{
			K:               def.K,
			Alpha:           def.Alpha,
			TTL:             def.TTL,
			QueueSize:       def.QueueSize,
			SendTimeoutMs:   int(def.SendTimeout / time.Millisecond),
			LookupTimeoutMs: int(def.LookupTimeout / time.Millisecond),
			SweepIntervalMs: int(def.SweepInterval / time.Millisecond),
			MaxRounds:       def.MaxRounds,
			Hash:            dht.HashBlake2s,
			StoreBackend:    storage.BackendMemory,
		},
		Simulation: Simulation{Peers: 16, Topology: "mesh"},
		Gateway: Gateway{
			ListenAddress:     ":8480",
			Issuer:            "kelili",
			Audience:          "kelili-gateway",
			RequestsPerMinute: 600,
			Burst:             60,
		},
		Logging: Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// Load loads the configuration from the given path. A missing file is created
// with defaults. Files ending in .yaml or .yml are read as YAML, anything else
// as TOML.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	if isYAML(path) {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	} else {
		meta, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
		}
	}

	cfg.normalize()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.Node.Name = strings.TrimSpace(cfg.Node.Name)
	if cfg.Node.Name == "" {
		cfg.Node.Name = "kelili"
	}
	cfg.DHT.Hash = strings.ToLower(strings.TrimSpace(cfg.DHT.Hash))
	cfg.DHT.StoreBackend = strings.ToLower(strings.TrimSpace(cfg.DHT.StoreBackend))
	cfg.Simulation.Topology = strings.ToLower(strings.TrimSpace(cfg.Simulation.Topology))
	cfg.Gateway.ListenAddress = strings.TrimSpace(cfg.Gateway.ListenAddress)
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
}

// PeerConfig converts the DHT section into peer settings.
func (cfg *Config) PeerConfig() dht.Config {
	return dht.Config{
		K:             cfg.DHT.K,
		Alpha:         cfg.DHT.Alpha,
		TTL:           cfg.DHT.TTL,
		QueueSize:     cfg.DHT.QueueSize,
		SendTimeout:   time.Duration(cfg.DHT.SendTimeoutMs) * time.Millisecond,
		LookupTimeout: time.Duration(cfg.DHT.LookupTimeoutMs) * time.Millisecond,
		SweepInterval: time.Duration(cfg.DHT.SweepIntervalMs) * time.Millisecond,
		MaxRounds:     cfg.DHT.MaxRounds,
	}
}

// Hasher resolves the configured content hash.
func (cfg *Config) Hasher() (dht.Hasher, error) {
	return dht.HasherByName(cfg.DHT.Hash)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if isYAML(path) {
		enc := yaml.NewEncoder(f)
		defer enc.Close()
		return enc.Encode(cfg)
	}
	return toml.NewEncoder(f).Encode(cfg)
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
