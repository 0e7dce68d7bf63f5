// Package config loads plumCore's YAML configuration document into a
// typed tree mirroring spec.md §6's configuration knobs table, with
// defaults matching the sample values there. Command-line entry
// points layer pflag overrides on top of a loaded Config themselves;
// this package only owns the YAML-to-struct step.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/plumcore/plumcore/rmac/sched"
)

// NodeConfig identifies this node and the keying material it uses.
type NodeConfig struct {
	ID              uint32 `yaml:"id"`
	UniverseKeyFile string `yaml:"universe_key_file"`
	RootShortIDSeed string `yaml:"root_short_id_seed"` // hex-encoded
}

// NBUSConfig mirrors spec.md §6's NBUS_* knobs.
type NBUSConfig struct {
	ChannelMTU        int `yaml:"channel_mtu"`
	AdvTime           int `yaml:"adv_time"`
	SwitchMaxChannels int `yaml:"switch_max_channels"`
	SwitchMaxPorts    int `yaml:"switch_max_ports"`
	SwitchIQSize      int `yaml:"switch_iq_size"`
	SwitchMaxLifetime int `yaml:"switch_max_lifetime"`
}

// RMACConfig mirrors spec.md §6's RMAC_* knobs plus the runtime sizing
// knobs rmac.Config needs that the distilled spec leaves as "sample
// defaults" (pool/queue sizing).
type RMACConfig struct {
	Enabled          bool   `yaml:"enabled"`
	RadioSyncSize    int    `yaml:"radio_sync_size"`
	UniverseKeyMax   int    `yaml:"universe_key_max"`
	Algorithm        string `yaml:"algorithm"` // "immediate-rx" | "csma" | "hash"
	NeighborCapacity int    `yaml:"neighbor_capacity"`
	NeighborMaxAge   int    `yaml:"neighbor_max_age"`
	PoolSize         int    `yaml:"pool_size"`
	PoolCapacity     int    `yaml:"pool_capacity"`
	RXQueueDepth     int    `yaml:"rx_queue_depth"`
}

// CBORConfig mirrors spec.md §6's CBOR_RPC_* knobs.
type CBORConfig struct {
	ReqSize  int `yaml:"req_size"`
	RespSize int `yaml:"resp_size"`
}

// PortConfig names one CAN bus port to wire at startup; Kind selects
// the adapters/ constructor ("socketcan" or "canpty").
type PortConfig struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Device string `yaml:"device"`
}

// Config is the full typed configuration tree.
type Config struct {
	LogLevel string       `yaml:"log_level"`
	Node     NodeConfig   `yaml:"node"`
	NBUS     NBUSConfig   `yaml:"nbus"`
	RMAC     RMACConfig   `yaml:"rmac"`
	CBOR     CBORConfig   `yaml:"cbor"`
	Ports    []PortConfig `yaml:"ports"`
}

// Defaults returns a Config populated with spec.md §6's sample
// values, the same "reasonable default, explicit override" policy the
// teacher's own config loader applies.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		NBUS: NBUSConfig{
			ChannelMTU:        512,
			AdvTime:           2,
			SwitchMaxChannels: 256,
			SwitchMaxPorts:    4,
			SwitchIQSize:      128,
			SwitchMaxLifetime: 10,
		},
		RMAC: RMACConfig{
			Enabled:          true,
			RadioSyncSize:    4,
			UniverseKeyMax:   32,
			Algorithm:        "immediate-rx",
			NeighborCapacity: 32,
			NeighborMaxAge:   30,
			PoolSize:         16,
			PoolCapacity:     256,
			RXQueueDepth:     16,
		},
		CBOR: CBORConfig{
			ReqSize:  256,
			RespSize: 256,
		},
	}
}

// Load reads the YAML document at path and merges it onto Defaults():
// any key the document omits keeps its default value.
func Load(path string) (Config, error) {
	cfg := Defaults()

	buf, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return cfg, nil
}

// SchedAlgorithm translates the configured algorithm name to a
// sched.Algorithm value.
func (c Config) SchedAlgorithm() (sched.Algorithm, error) {
	switch c.RMAC.Algorithm {
	case "immediate-rx", "":
		return sched.ImmediateRX, nil
	case "csma":
		return sched.CSMA, nil
	case "hash":
		return sched.Hash, nil
	default:
		return 0, fmt.Errorf("config: unknown rmac algorithm %q", c.RMAC.Algorithm)
	}
}
