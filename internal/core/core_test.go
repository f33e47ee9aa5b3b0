package core

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/session-network/snrr/internal/config"
	"github.com/session-network/snrr/internal/persistence"
	"github.com/session-network/snrr/internal/persistence/memstore"
	"github.com/session-network/snrr/internal/signer"
)

func newTestDeps(t *testing.T) Dependencies {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	var x [32]byte
	x[0] = 0x11
	return Dependencies{
		Keys: signer.KeyPair{Ed25519Public: pub, Ed25519Private: priv, X25519Public: x},
	}
}

func TestNew_DefaultsToConfiguredLayersWhenNothingPersisted(t *testing.T) {
	store := memstore.New()
	cfg := config.Defaults()

	c := New(cfg, store, newTestDeps(t))

	assert.Equal(t, cfg.Network.Layers(), c.Dispatcher.Layers())
}

func TestSetLayers_PersistsSelectionAndNextNewReloadsIt(t *testing.T) {
	store := memstore.New()
	cfg := config.Defaults()

	c := New(cfg, store, newTestDeps(t))
	want := config.LayerSet(config.LayerDirect)

	require.NoError(t, c.SetLayers(want))
	assert.Equal(t, want, c.Dispatcher.Layers())

	raw, ok, err := store.Get(context.Background(), persistence.KeySelectedLayers)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, raw)

	reopened := New(cfg, store, newTestDeps(t))
	assert.Equal(t, want, reopened.Dispatcher.Layers(),
		"a fresh Context built against the same store must resume with the persisted layer selection")
}
