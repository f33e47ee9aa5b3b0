package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// LAYER SET RESOLUTION
// ============================================================================

func TestNetworkConfig_Layers_DefaultsToOnionWhenEmpty(t *testing.T) {
	n := NetworkConfig{}
	assert.Equal(t, DefaultLayerSet, n.Layers())
}

func TestNetworkConfig_Layers_DefaultsToOnionWhenAllNamesUnrecognized(t *testing.T) {
	n := NetworkConfig{SelectedLayers: []string{"bogus", "also-bogus"}}
	assert.Equal(t, DefaultLayerSet, n.Layers())
}

func TestNetworkConfig_Layers_ParsesKnownNamesCaseInsensitively(t *testing.T) {
	n := NetworkConfig{SelectedLayers: []string{"Onion", " DIRECT "}}
	set := n.Layers()
	assert.True(t, set.Has(LayerOnion))
	assert.True(t, set.Has(LayerDirect))
	assert.False(t, set.Has(LayerLokinet))
	assert.Equal(t, 2, set.Count())
}

func TestLayerSet_String(t *testing.T) {
	set := LayerSet(LayerOnion) | LayerSet(LayerDirect)
	assert.Equal(t, "onion+direct", set.String())
}

// ============================================================================
// LOAD / DEFAULTS / ENV OVERRIDES
// ============================================================================

func TestLoad_MissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults().Network.Testnet, cfg.Network.Testnet)
	assert.Equal(t, Defaults().HTTP.TimeoutSeconds, cfg.HTTP.TimeoutSeconds)
}

func TestLoad_ReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snrr.yaml")
	contents := "network:\n  testnet: true\n  selected_layers: [\"direct\"]\nhttp:\n  timeout_seconds: 5\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Network.Testnet)
	assert.Equal(t, []string{"direct"}, cfg.Network.SelectedLayers)
	assert.Equal(t, 5, cfg.HTTP.TimeoutSeconds)
}

func TestLoad_EnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snrr.yaml")
	require.NoError(t, os.WriteFile(path, []byte("network:\n  testnet: false\n"), 0o600))

	t.Setenv("SNRR_TESTNET", "true")
	t.Setenv("SNRR_SELECTED_LAYERS", "onion,lokinet")
	t.Setenv("SNRR_HTTP_TIMEOUT_SECONDS", "42")
	t.Setenv("SNRR_MAX_RETRIES", "3")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.Network.Testnet)
	assert.Equal(t, []string{"onion", "lokinet"}, cfg.Network.SelectedLayers)
	assert.Equal(t, 42, cfg.HTTP.TimeoutSeconds)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
}
