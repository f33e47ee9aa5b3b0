// Package core wires together every other SNRR component into a
// single coordinating struct: pool, swarm, accountant, dispatcher,
// signer, persistence, and config live behind one Context instead of
// referencing each other directly, so the cyclic pool/swarm/accountant
// relationship never has to exist as object references.
package core

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/session-network/snrr/internal/accountant"
	"github.com/session-network/snrr/internal/config"
	"github.com/session-network/snrr/internal/dispatcher"
	"github.com/session-network/snrr/internal/persistence"
	"github.com/session-network/snrr/internal/rpc"
	"github.com/session-network/snrr/internal/signer"
	"github.com/session-network/snrr/internal/snodepool"
	"github.com/session-network/snrr/internal/swarm"
	"github.com/session-network/snrr/internal/transport"
	"github.com/session-network/snrr/internal/transport/direct"
	"github.com/session-network/snrr/internal/transport/httpengine"
	"github.com/session-network/snrr/internal/transport/lokinet"
	"github.com/session-network/snrr/internal/transport/nativelokinet"
	"github.com/session-network/snrr/internal/transport/onion"
)

// Context is the single coordinating struct a caller constructs once
// per account session.
type Context struct {
	Config     *config.Config
	Store      persistence.Store
	Engine     *httpengine.Engine
	Pool       *snodepool.Pool
	Swarm      *swarm.Resolver
	Accountant *accountant.Accountant
	Dispatcher *dispatcher.Dispatcher
	Signer     *signer.Signer
	RPC        *rpc.Client
}

// Dependencies are the injected collaborators Context cannot build
// itself: the onion Sealer (symmetric wire crypto, an explicit
// non-goal of this module) and the Lokinet Context (the real cgo
// bindings, normally supplied by the host application).
type Dependencies struct {
	Sealer  onion.Sealer
	Lokinet lokinet.Context
	Keys    signer.KeyPair
}

// New builds a fully wired Context from cfg, store, and deps. It starts
// with the layer set persisted in store, or the configured one when
// none was persisted, but does not perform any network I/O —
// callers invoke Pool.EnsureReady / RPC operations explicitly.
func New(cfg *config.Config, store persistence.Store, deps Dependencies) *Context {
	engine := httpengine.New()

	selected := loadSelectedLayers(store, cfg.Network.Layers())

	dispatch := dispatcher.New(nil, selected) // layers wired in below, dispatch needed by pool first

	pool := snodepool.New(store, engine, dispatch, cfg.Network.Testnet)

	layers := map[config.Layer]transport.Layer{
		config.LayerOnion:         onion.New(engine, deps.Sealer, pool),
		config.LayerDirect:        direct.New(engine),
		config.LayerNativeLokinet: nativelokinet.New(engine),
	}
	if deps.Lokinet != nil {
		layers[config.LayerLokinet] = lokinet.New(engine, deps.Lokinet)
	}
	dispatch.SetLayersMap(layers)

	if deps.Lokinet != nil {
		dispatch.OnLayerChange(func(old, newSet config.LayerSet) error {
			if old.Has(config.LayerLokinet) && !newSet.Has(config.LayerLokinet) {
				return deps.Lokinet.Stop()
			}
			if !old.Has(config.LayerLokinet) && newSet.Has(config.LayerLokinet) {
				return deps.Lokinet.Start(context.Background())
			}
			return nil
		})
	}

	swarmResolver := swarm.New(store, dispatch, pool)
	acct := accountant.New(context.Background(), store)
	sgn := signer.New(deps.Keys, cfg.Network.Testnet)

	timeout := time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second
	rpcClient := rpc.New(dispatch, pool, swarmResolver, sgn, acct, store, cfg.Retry.MaxRetries, timeout)

	return &Context{
		Config:     cfg,
		Store:      store,
		Engine:     engine,
		Pool:       pool,
		Swarm:      swarmResolver,
		Accountant: acct,
		Dispatcher: dispatch,
		Signer:     sgn,
		RPC:        rpcClient,
	}
}

// Bootstrap ensures the snode pool is ready, logging and returning any
// failure from the underlying refresh.
func (c *Context) Bootstrap(ctx context.Context) error {
	_, err := c.Pool.EnsureReady(ctx)
	if err != nil {
		slog.Error("snrr: core: pool bootstrap failed", "err", err)
	}
	return err
}

// SetLayers changes the active transport layer set, cancelling
// in-flight requests and tearing down/starting Lokinet synchronously,
// then persists the new selection so the next launch resumes with it.
func (c *Context) SetLayers(layers config.LayerSet) error {
	if err := c.Dispatcher.SetLayers(layers); err != nil {
		return err
	}
	data, err := json.Marshal(layers)
	if err != nil {
		return err
	}
	return c.Store.Put(context.Background(), persistence.KeySelectedLayers, data)
}

// loadSelectedLayers returns the persisted layer selection, falling
// back to the configured default when nothing has been persisted yet.
func loadSelectedLayers(store persistence.Store, fallback config.LayerSet) config.LayerSet {
	raw, ok, err := store.Get(context.Background(), persistence.KeySelectedLayers)
	if err != nil || !ok {
		return fallback
	}
	var layers config.LayerSet
	if err := json.Unmarshal(raw, &layers); err != nil {
		return fallback
	}
	return layers
}
