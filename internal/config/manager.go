package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// overlaySet holds a named set of field overrides layered on top of the
// base Config, the same master-plus-overlay shape as this codebase's
// tenant configuration manager.
type overlaySet struct {
	Networks map[string]Config `yaml:"networks"`
}

// Manager resolves a base configuration plus an optional named network
// overlay (e.g. "testnet") without re-reading files on every call.
type Manager struct {
	mu       sync.RWMutex
	base     *Config
	overlays map[string]Config
}

// NewManager loads the base config from basePath and, if overlaysPath
// exists, a map of named overlays from it. A missing overlays file is
// not an error — the manager simply has no named overlays.
func NewManager(basePath, overlaysPath string) (*Manager, error) {
	base, err := Load(basePath)
	if err != nil {
		return nil, err
	}

	m := &Manager{base: base, overlays: map[string]Config{}}

	if overlaysPath == "" {
		return m, nil
	}
	f, err := os.Open(overlaysPath)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, err
	}
	defer f.Close()

	var set overlaySet
	if err := yaml.NewDecoder(f).Decode(&set); err != nil {
		return nil, err
	}
	m.overlays = set.Networks
	return m, nil
}

// For returns the effective config for a named network overlay
// ("mainnet", "testnet", ...). An unknown name returns the base config.
func (m *Manager) For(network string) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	overlay, ok := m.overlays[network]
	if !ok {
		cfg := *m.base
		return &cfg
	}
	merged := *m.base
	if len(overlay.Network.SelectedLayers) > 0 {
		merged.Network.SelectedLayers = overlay.Network.SelectedLayers
	}
	merged.Network.Testnet = overlay.Network.Testnet
	if overlay.HTTP.TimeoutSeconds > 0 {
		merged.HTTP.TimeoutSeconds = overlay.HTTP.TimeoutSeconds
	}
	if overlay.Retry.MaxRetries > 0 {
		merged.Retry.MaxRetries = overlay.Retry.MaxRetries
	}
	if overlay.Retry.MaxPoolSwarmTries > 0 {
		merged.Retry.MaxPoolSwarmTries = overlay.Retry.MaxPoolSwarmTries
	}
	if overlay.Upload.MaxFileSizeBytes > 0 {
		merged.Upload.MaxFileSizeBytes = overlay.Upload.MaxFileSizeBytes
	}
	return &merged
}

// Base returns the unmodified base configuration.
func (m *Manager) Base() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfg := *m.base
	return &cfg
}
