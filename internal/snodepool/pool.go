// Package snodepool implements the cached set of known service
// nodes, its bootstrap-from-seeds and refresh-from-peers discovery
// paths, and the minimum-pool-size/2-hour refresh invariants.
package snodepool

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/session-network/snrr/internal/config"
	"github.com/session-network/snrr/internal/model"
	"github.com/session-network/snrr/internal/persistence"
	"github.com/session-network/snrr/internal/snrrerr"
	"github.com/session-network/snrr/internal/transport"
	"github.com/session-network/snrr/internal/transport/httpengine"
)

// MinPool is the minimum pool size required for ready() to report true.
const MinPool = 12

// bootstrapMinAgreed is the minimum bootstrap set size required before
// adoption via the peer path.
const bootstrapMinAgreed = 24

// maxPoolSize caps the adopted pool at 256 entries.
const maxPoolSize = 256

// refreshInterval is the mandatory refresh cadence.
const refreshInterval = 2 * time.Hour

// peerSampleSize is how many random pool snodes refresh_from_peers
// queries before intersecting their responses.
const peerSampleSize = 3

// Dispatcher is the subset of dispatcher.Dispatcher the pool needs to
// query existing peers for a fresh node list, kept as a narrow
// interface so snodepool never imports the dispatcher package directly
// (only the concrete *dispatcher.Dispatcher satisfies it, avoiding a
// build-time cycle since dispatcher never imports snodepool either).
type Dispatcher interface {
	Dispatch(ctx context.Context, method, endpoint string, headers map[string]string, body []byte, dest transport.Destination, timeout time.Duration) (transport.Info, []byte, error)
}

// Pool is the snode-pool cache: the set of known service nodes a
// client can choose from for any operation.
type Pool struct {
	store   persistence.Store
	engine  *httpengine.Engine
	dispatch Dispatcher
	testnet bool

	mu           sync.RWMutex
	snodes       []model.Snode
	lastRefresh  time.Time

	refreshMu  sync.Mutex
	refreshing bool
}

// New builds a Pool backed by store for persistence and engine for the
// seed-node HTTP calls. dispatch is used for refresh_from_peers, which
// goes through the overlay layers like any other authenticated traffic
// would once a pool exists.
func New(store persistence.Store, engine *httpengine.Engine, dispatch Dispatcher, testnet bool) *Pool {
	p := &Pool{store: store, engine: engine, dispatch: dispatch, testnet: testnet}
	p.loadFromStore(context.Background())
	return p
}

type persistedPool struct {
	Snodes      []wireSnode `json:"snodes"`
	LastRefresh int64       `json:"last_refresh_ms"`
}

type wireSnode struct {
	IP            string `json:"public_ip"`
	Port          uint16 `json:"storage_port"`
	PubkeyEd25519 string `json:"pubkey_ed25519"`
	PubkeyX25519  string `json:"pubkey_x25519"`
}

func (p *Pool) loadFromStore(ctx context.Context) {
	raw, ok, err := p.store.Get(ctx, persistence.KeySnodePool)
	if err != nil || !ok {
		return
	}
	var pp persistedPool
	if err := json.Unmarshal(raw, &pp); err != nil {
		slog.Warn("snrr: snodepool: discarding unreadable persisted pool", "err", err)
		return
	}
	p.mu.Lock()
	p.snodes = decodeTolerant(pp.Snodes)
	p.lastRefresh = time.UnixMilli(pp.LastRefresh)
	p.mu.Unlock()
}

func (p *Pool) persist(ctx context.Context, snodes []model.Snode, when time.Time) error {
	pp := persistedPool{Snodes: encodeSnodes(snodes), LastRefresh: when.UnixMilli()}
	data, err := json.Marshal(pp)
	if err != nil {
		return snrrerr.Wrap(snrrerr.KindInvalidJSON, err)
	}
	// Atomic replace: a single Tx op, never a partial mutation of the
	// persisted pool.
	return p.store.Tx(ctx, []persistence.Op{{Key: persistence.KeySnodePool, Value: data}})
}

// Snapshot returns a copy of the currently cached pool.
func (p *Pool) Snapshot() []model.Snode {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.Snode, len(p.snodes))
	copy(out, p.snodes)
	return out
}

// LastRefresh returns the timestamp of the last successful refresh.
func (p *Pool) LastRefresh() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastRefresh
}

func (p *Pool) ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.snodes) >= MinPool && time.Since(p.lastRefresh) < refreshInterval
}

// EnsureReady returns the cached pool if it is large enough and fresh
// enough, otherwise triggers a refresh and returns the result.
func (p *Pool) EnsureReady(ctx context.Context) ([]model.Snode, error) {
	if p.ready() {
		return p.Snapshot(), nil
	}
	if err := p.Refresh(ctx); err != nil {
		return nil, err
	}
	return p.Snapshot(), nil
}

// Refresh runs bootstrap_from_seeds when the pool is below MinPool,
// otherwise refresh_from_peers with a fallback to seeds on failure. A
// concurrent call deduplicates into the same in-flight refresh.
func (p *Pool) Refresh(ctx context.Context) error {
	p.refreshMu.Lock()
	if p.refreshing {
		p.refreshMu.Unlock()
		return p.waitForRefresh(ctx)
	}
	p.refreshing = true
	p.refreshMu.Unlock()

	defer func() {
		p.refreshMu.Lock()
		p.refreshing = false
		p.refreshMu.Unlock()
	}()

	p.mu.RLock()
	small := len(p.snodes) < MinPool
	p.mu.RUnlock()

	if small {
		return p.bootstrapFromSeeds(ctx)
	}
	if err := p.refreshFromPeers(ctx); err != nil {
		slog.Warn("snrr: snodepool: refresh_from_peers failed, falling back to seeds", "err", err)
		return p.bootstrapFromSeeds(ctx)
	}
	return nil
}

// waitForRefresh blocks until the in-flight refresh started by another
// caller completes, by polling the refreshing flag. The poll interval
// is short since the only use is coalescing concurrent callers within
// the same process.
func (p *Pool) waitForRefresh(ctx context.Context) error {
	ticker := time.NewTicker(25 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return snrrerr.Wrap(snrrerr.KindCancelled, ctx.Err())
		case <-ticker.C:
			p.refreshMu.Lock()
			done := !p.refreshing
			p.refreshMu.Unlock()
			if done {
				return nil
			}
		}
	}
}

type seedRPCRequest struct {
	Endpoint string         `json:"endpoint"`
	Params   seedRPCParams  `json:"params"`
}

type seedRPCParams struct {
	ActiveOnly bool            `json:"active_only"`
	Limit      int             `json:"limit"`
	Fields     seedRPCFields   `json:"fields"`
}

type seedRPCFields struct {
	PublicIP      bool `json:"public_ip"`
	StoragePort   bool `json:"storage_port"`
	PubkeyEd25519 bool `json:"pubkey_ed25519"`
	PubkeyX25519  bool `json:"pubkey_x25519"`
}

type seedRPCResponse struct {
	Result struct {
		ServiceNodeStates []wireSnode `json:"service_node_states"`
	} `json:"result"`
}

// bootstrapFromSeeds picks one seed URL uniformly at random and POSTs
// get_n_service_nodes, decoding tolerantly.
func (p *Pool) bootstrapFromSeeds(ctx context.Context) error {
	seeds := Seeds(p.testnet)
	seed, err := randomChoice(seeds)
	if err != nil {
		return err
	}

	reqBody := seedRPCRequest{
		Endpoint: "get_n_service_nodes",
		Params: seedRPCParams{
			ActiveOnly: true,
			Limit:      maxPoolSize,
			Fields: seedRPCFields{
				PublicIP: true, StoragePort: true, PubkeyEd25519: true, PubkeyX25519: true,
			},
		},
	}
	data, err := httpengine.EncodeJSON(reqBody)
	if err != nil {
		return err
	}

	_, respBody, err := p.engine.Execute(ctx, "POST", seed, map[string]string{"Content-Type": "application/json"}, data, 20*time.Second)
	if err != nil {
		return fmt.Errorf("snodepool: bootstrap from seed %s: %w", seed, err)
	}

	var parsed seedRPCResponse
	if err := httpengine.DecodeJSON(respBody, &parsed); err != nil {
		return err
	}

	snodes := decodeTolerant(parsed.Result.ServiceNodeStates)
	if len(snodes) > maxPoolSize {
		snodes = snodes[:maxPoolSize]
	}

	now := time.Now()
	if err := p.persist(ctx, snodes, now); err != nil {
		return err
	}
	p.mu.Lock()
	p.snodes = snodes
	p.lastRefresh = now
	p.mu.Unlock()

	slog.Info("snrr: snodepool: bootstrapped from seed", "seed", seed, "count", len(snodes))
	return nil
}

// refreshFromPeers queries 3 random pool snodes for the full node list
// and adopts the intersection, requiring more than bootstrapMinAgreed
// entries.
func (p *Pool) refreshFromPeers(ctx context.Context) error {
	current := p.Snapshot()
	if len(current) < peerSampleSize {
		return snrrerr.New(snrrerr.KindNotReady, "not enough snodes in pool to sample peers")
	}

	sample, err := randomSample(current, peerSampleSize)
	if err != nil {
		return err
	}

	var sets [][]model.Snode
	for _, peer := range sample {
		nodes, err := p.queryPeerForNodes(ctx, peer)
		if err != nil {
			return fmt.Errorf("snodepool: peer query %s: %w", peer.Key(), err)
		}
		sets = append(sets, nodes)
	}

	intersection := intersectSnodes(sets)
	if len(intersection) <= bootstrapMinAgreed {
		return snrrerr.New(snrrerr.KindInconsistentSnodePools, "peer refresh intersection too small")
	}
	if len(intersection) > maxPoolSize {
		intersection = intersection[:maxPoolSize]
	}

	now := time.Now()
	if err := p.persist(ctx, intersection, now); err != nil {
		return err
	}
	p.mu.Lock()
	p.snodes = intersection
	p.lastRefresh = now
	p.mu.Unlock()

	slog.Info("snrr: snodepool: refreshed from peers", "count", len(intersection))
	return nil
}

func (p *Pool) queryPeerForNodes(ctx context.Context, peer model.Snode) ([]model.Snode, error) {
	reqBody := seedRPCRequest{
		Endpoint: "get_n_service_nodes",
		Params: seedRPCParams{
			ActiveOnly: true,
			Limit:      maxPoolSize,
			Fields: seedRPCFields{
				PublicIP: true, StoragePort: true, PubkeyEd25519: true, PubkeyX25519: true,
			},
		},
	}
	data, err := httpengine.EncodeJSON(reqBody)
	if err != nil {
		return nil, err
	}

	dest := transport.Destination{Snode: &peer}
	_, body, err := p.dispatch.Dispatch(ctx, "POST", "/json_rpc", map[string]string{"Content-Type": "application/json"}, data, dest, 20*time.Second)
	if err != nil {
		return nil, err
	}

	var parsed seedRPCResponse
	if err := httpengine.DecodeJSON(body, &parsed); err != nil {
		return nil, err
	}
	return decodeTolerant(parsed.Result.ServiceNodeStates), nil
}

// Drop removes snode from the pool and persists the change. If the
// pool falls below MinPool, it triggers a background refresh.
func (p *Pool) Drop(ctx context.Context, snode model.Snode) error {
	p.mu.Lock()
	filtered := make([]model.Snode, 0, len(p.snodes))
	for _, s := range p.snodes {
		if !s.Equal(snode) {
			filtered = append(filtered, s)
		}
	}
	p.snodes = filtered
	below := len(filtered) < MinPool
	last := p.lastRefresh
	p.mu.Unlock()

	if err := p.persist(ctx, filtered, last); err != nil {
		return err
	}

	if below {
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := p.Refresh(bgCtx); err != nil {
				slog.Warn("snrr: snodepool: background refresh after drop failed", "err", err)
			}
		}()
	}
	return nil
}

// Clear empties the in-memory and persisted pool.
func (p *Pool) Clear(ctx context.Context) error {
	p.mu.Lock()
	p.snodes = nil
	p.lastRefresh = time.Time{}
	p.mu.Unlock()
	return p.store.Delete(ctx, persistence.KeySnodePool)
}

// RandomSnodes returns n distinct snodes chosen uniformly at random,
// satisfying onion.GuardSource for guard-node selection.
func (p *Pool) RandomSnodes(n int) ([]model.Snode, error) {
	current := p.Snapshot()
	if len(current) < n {
		return nil, snrrerr.New(snrrerr.KindNotReady, "pool too small for requested sample")
	}
	return randomSample(current, n)
}

func decodeTolerant(in []wireSnode) []model.Snode {
	out := make([]model.Snode, 0, len(in))
	for _, w := range in {
		ed, ok1 := model.DecodeHexKey32(w.PubkeyEd25519)
		x, ok2 := model.DecodeHexKey32(w.PubkeyX25519)
		if !ok1 || !ok2 || w.IP == "" || w.Port == 0 {
			continue
		}
		out = append(out, model.Snode{IP: w.IP, Port: w.Port, Ed25519PubKey: ed, X25519PubKey: x})
	}
	return out
}

func encodeSnodes(in []model.Snode) []wireSnode {
	out := make([]wireSnode, 0, len(in))
	for _, s := range in {
		out = append(out, wireSnode{IP: s.IP, Port: s.Port, PubkeyEd25519: s.Ed25519Hex(), PubkeyX25519: s.X25519Hex()})
	}
	return out
}

func intersectSnodes(sets [][]model.Snode) []model.Snode {
	if len(sets) == 0 {
		return nil
	}
	counts := make(map[string]model.Snode)
	seen := make(map[string]int)
	for _, set := range sets {
		local := make(map[string]bool)
		for _, s := range set {
			if local[s.Key()] {
				continue
			}
			local[s.Key()] = true
			counts[s.Key()] = s
			seen[s.Key()]++
		}
	}
	var out []model.Snode
	for key, n := range seen {
		if n == len(sets) {
			out = append(out, counts[key])
		}
	}
	return out
}

func randomChoice(items []string) (string, error) {
	if len(items) == 0 {
		return "", snrrerr.New(snrrerr.KindNotReady, "no seed nodes configured")
	}
	idx, err := secureIntn(len(items))
	if err != nil {
		return "", err
	}
	return items[idx], nil
}

// randomSample returns n distinct elements of in, chosen uniformly at
// random via a Fisher-Yates partial shuffle backed by crypto/rand.
func randomSample(in []model.Snode, n int) ([]model.Snode, error) {
	pool := make([]model.Snode, len(in))
	copy(pool, in)
	if n > len(pool) {
		n = len(pool)
	}
	for i := 0; i < n; i++ {
		j, err := secureIntn(len(pool) - i)
		if err != nil {
			return nil, err
		}
		j += i
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:n], nil
}

func secureIntn(n int) (int, error) {
	if n <= 0 {
		return 0, snrrerr.New(snrrerr.KindGeneric, "secureIntn: n must be positive")
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, snrrerr.Wrap(snrrerr.KindGeneric, err)
	}
	return int(v.Int64()), nil
}
