// Package config loads SNRR configuration from YAML with environment
// variable overrides, mirroring the load-then-override shape used
// throughout the rest of this codebase's configuration layer.
package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// Layer is one bit of the selected-layers bitmask.
type Layer uint8

const (
	LayerOnion Layer = 1 << iota
	LayerLokinet
	LayerNativeLokinet
	LayerDirect
)

// LayerSet is the bitmask of enabled overlay transports.
type LayerSet uint8

// Has reports whether l is enabled in the set.
func (s LayerSet) Has(l Layer) bool { return s&LayerSet(l) != 0 }

// Count returns how many layers are enabled.
func (s LayerSet) Count() int {
	n := 0
	for _, l := range []Layer{LayerOnion, LayerLokinet, LayerNativeLokinet, LayerDirect} {
		if s.Has(l) {
			n++
		}
	}
	return n
}

func (s LayerSet) String() string {
	var names []string
	if s.Has(LayerOnion) {
		names = append(names, "onion")
	}
	if s.Has(LayerLokinet) {
		names = append(names, "lokinet")
	}
	if s.Has(LayerNativeLokinet) {
		names = append(names, "native_lokinet")
	}
	if s.Has(LayerDirect) {
		names = append(names, "direct")
	}
	return strings.Join(names, "+")
}

// DefaultLayerSet is {onion}.
const DefaultLayerSet = LayerSet(LayerOnion)

// Config is the root SNRR configuration document.
type Config struct {
	Network NetworkConfig `yaml:"network"`
	HTTP    HTTPConfig    `yaml:"http"`
	Retry   RetryConfig   `yaml:"retry"`
	Upload  UploadConfig  `yaml:"upload"`
}

// NetworkConfig selects which overlay layers are active and whether the
// client is talking to the testnet.
type NetworkConfig struct {
	SelectedLayers []string `yaml:"selected_layers"`
	Testnet        bool     `yaml:"testnet"`
}

// Layers resolves the configured layer names into a bitmask, defaulting
// to {onion} when the list is empty or unrecognized names are skipped.
func (n NetworkConfig) Layers() LayerSet {
	if len(n.SelectedLayers) == 0 {
		return DefaultLayerSet
	}
	var set LayerSet
	for _, name := range n.SelectedLayers {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "onion":
			set |= LayerSet(LayerOnion)
		case "lokinet":
			set |= LayerSet(LayerLokinet)
		case "native_lokinet":
			set |= LayerSet(LayerNativeLokinet)
		case "direct":
			set |= LayerSet(LayerDirect)
		}
	}
	if set == 0 {
		return DefaultLayerSet
	}
	return set
}

// HTTPConfig holds per-call transport timeouts.
type HTTPConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// RetryConfig holds retry budgets for the RPC surface and the pool/swarm
// fetch paths, which are tuned independently.
type RetryConfig struct {
	MaxRetries       int `yaml:"max_retries"`
	MaxPoolSwarmTries int `yaml:"max_pool_swarm_retries"`
}

// UploadConfig bounds file upload size for the store RPC.
type UploadConfig struct {
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`
}

// Defaults returns the baseline configuration used when no file is
// provided.
func Defaults() *Config {
	return &Config{
		Network: NetworkConfig{SelectedLayers: []string{"onion"}, Testnet: false},
		HTTP:    HTTPConfig{TimeoutSeconds: 20},
		Retry:   RetryConfig{MaxRetries: 8, MaxPoolSwarmTries: 4},
		Upload:  UploadConfig{MaxFileSizeBytes: 10 * 1024 * 1024},
	}
}

// Load reads a YAML config file from path, falling back to Defaults()
// for any field absent from the document, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return applyEnvOverrides(cfg), nil
			}
			return nil, err
		}
		defer f.Close()

		decoder := yaml.NewDecoder(f)
		if err := decoder.Decode(cfg); err != nil {
			return nil, err
		}
	}
	return applyEnvOverrides(cfg), nil
}

// applyEnvOverrides mirrors the rest of this codebase's environment
// override convention: explicit env vars win over file/default values.
func applyEnvOverrides(c *Config) *Config {
	if v := os.Getenv("SNRR_TESTNET"); v != "" {
		c.Network.Testnet = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("SNRR_SELECTED_LAYERS"); v != "" {
		c.Network.SelectedLayers = strings.Split(v, ",")
	}
	if v := os.Getenv("SNRR_HTTP_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.HTTP.TimeoutSeconds = n
		}
	}
	if v := os.Getenv("SNRR_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Retry.MaxRetries = n
		}
	}
	return c
}
