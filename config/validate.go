package config

import (
	"fmt"

	"github.com/FranchuFranchu/kelili/dht"
	"github.com/FranchuFranchu/kelili/simnet"
	"github.com/FranchuFranchu/kelili/storage"
)

// Validate rejects configurations the node cannot run with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	d := cfg.DHT
	if d.K < 1 {
		return fmt.Errorf("dht: K must be at least 1")
	}
	if d.Alpha < 1 {
		return fmt.Errorf("dht: Alpha must be at least 1")
	}
	if d.TTL < 1 {
		return fmt.Errorf("dht: TTL must be at least 1")
	}
	if d.QueueSize < 1 {
		return fmt.Errorf("dht: QueueSize must be at least 1")
	}
	if d.SendTimeoutMs < 0 || d.LookupTimeoutMs < 0 || d.SweepIntervalMs < 0 {
		return fmt.Errorf("dht: timeouts must not be negative")
	}
	if d.MaxRounds < 0 {
		return fmt.Errorf("dht: MaxRounds must not be negative")
	}
	if _, err := dht.HasherByName(d.Hash); err != nil {
		return err
	}
	switch d.StoreBackend {
	case "", storage.BackendMemory, storage.BackendLevelDB:
	default:
		return fmt.Errorf("dht: unknown StoreBackend %q", d.StoreBackend)
	}

	if cfg.Simulation.Peers < 1 {
		return fmt.Errorf("simulation: Peers must be at least 1")
	}
	switch cfg.Simulation.Topology {
	case "", simnet.TopologyMesh, simnet.TopologyRing:
	default:
		return fmt.Errorf("simulation: unknown Topology %q", cfg.Simulation.Topology)
	}

	if cfg.Gateway.RequestsPerMinute < 0 || cfg.Gateway.Burst < 0 {
		return fmt.Errorf("gateway: rate limits must not be negative")
	}
	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging: unknown Level %q", cfg.Logging.Level)
	}
	return nil
}
