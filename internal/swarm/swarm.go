// Package swarm implements the per-account swarm resolver, caching
// each account's storage swarm and refetching via get_swarm when the
// cache is too small or explicitly invalidated.
package swarm

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/session-network/snrr/internal/account"
	"github.com/session-network/snrr/internal/model"
	"github.com/session-network/snrr/internal/persistence"
	"github.com/session-network/snrr/internal/snrrerr"
	"github.com/session-network/snrr/internal/transport"
	"github.com/session-network/snrr/internal/transport/httpengine"
)

// MinSwarm is the minimum cached swarm size before swarm_for refetches.
const MinSwarm = 3

// TargetSnodeCount is how many snodes target_snodes returns. "All
// target snodes" has no fixed number in the protocol; this module
// treats it as a tunable send-fanout count, not a hard protocol rule.
const TargetSnodeCount = 2

// Dispatcher is the narrow send surface swarm needs to reach a pool
// snode for get_swarm, mirroring snodepool.Dispatcher so this package
// never imports internal/dispatcher directly.
type Dispatcher interface {
	Dispatch(ctx context.Context, method, endpoint string, headers map[string]string, body []byte, dest transport.Destination, timeout time.Duration) (transport.Info, []byte, error)
}

// PoolSource supplies a random snode to query get_swarm against.
type PoolSource interface {
	RandomSnodes(n int) ([]model.Snode, error)
}

// Resolver is the swarm cache: the set of snodes responsible for a
// given account's data.
type Resolver struct {
	store    persistence.Store
	dispatch Dispatcher
	pool     PoolSource

	mu     sync.Mutex
	cache  map[account.ID][]model.Snode
	inFlight map[account.ID]chan struct{}
}

// New builds a Resolver.
func New(store persistence.Store, dispatch Dispatcher, pool PoolSource) *Resolver {
	return &Resolver{
		store:    store,
		dispatch: dispatch,
		pool:     pool,
		cache:    make(map[account.ID][]model.Snode),
		inFlight: make(map[account.ID]chan struct{}),
	}
}

// legacy and current get_swarm response shapes. Both are accepted and
// unknown fields in either are ignored.
type swarmResponseCurrent struct {
	Snodes []wireSnodeCurrent `json:"snodes"`
}

type wireSnodeCurrent struct {
	IP            string `json:"ip"`
	Port          uint16 `json:"port_http"`
	PubkeyEd25519 string `json:"pubkey_ed25519"`
	PubkeyX25519  string `json:"pubkey_x25519"`
}

type swarmResponseLegacy struct {
	Snodes []wireSnodeLegacy `json:"snodes"`
}

type wireSnodeLegacy struct {
	IP            string `json:"public_ip"`
	Port          uint16 `json:"storage_port"`
	PubkeyEd25519 string `json:"pubkey_ed25519"`
	PubkeyX25519  string `json:"pubkey_x25519"`
}

// SwarmFor returns the cached swarm for account if it has at least
// MinSwarm entries, otherwise fetches via get_swarm against a random
// pool snode. Concurrent callers for the same account coalesce into a
// single fetch.
func (r *Resolver) SwarmFor(ctx context.Context, acct account.ID) ([]model.Snode, error) {
	r.mu.Lock()
	if cached, ok := r.cache[acct]; ok && len(cached) >= MinSwarm {
		out := make([]model.Snode, len(cached))
		copy(out, cached)
		r.mu.Unlock()
		return out, nil
	}
	if wait, ok := r.inFlight[acct]; ok {
		r.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, snrrerr.Wrap(snrrerr.KindCancelled, ctx.Err())
		}
		return r.cachedOrEmpty(acct), nil
	}
	done := make(chan struct{})
	r.inFlight[acct] = done
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.inFlight, acct)
		r.mu.Unlock()
		close(done)
	}()

	snodes, err := r.fetch(ctx, acct)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[acct] = snodes
	r.mu.Unlock()

	if err := r.persist(ctx, acct, snodes); err != nil {
		return nil, err
	}
	return snodes, nil
}

func (r *Resolver) cachedOrEmpty(acct account.ID) []model.Snode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.Snode(nil), r.cache[acct]...)
}

func (r *Resolver) fetch(ctx context.Context, acct account.ID) ([]model.Snode, error) {
	target, err := r.pool.RandomSnodes(1)
	if err != nil {
		return nil, err
	}

	reqBody := map[string]interface{}{
		"method": "get_swarm",
		"params": map[string]string{"pubkey": acct.String()},
	}
	data, err := httpengine.EncodeJSON(reqBody)
	if err != nil {
		return nil, err
	}

	dest := transport.Destination{Snode: &target[0]}
	_, body, err := r.dispatch.Dispatch(ctx, "POST", "/storage_rpc/v1", map[string]string{"Content-Type": "application/json"}, data, dest, 20*time.Second)
	if err != nil {
		return nil, fmt.Errorf("swarm: get_swarm for %s: %w", acct, err)
	}

	return parseSwarmResponse(body)
}

func parseSwarmResponse(body []byte) ([]model.Snode, error) {
	var current swarmResponseCurrent
	if err := json.Unmarshal(body, &current); err == nil && len(current.Snodes) > 0 {
		if snodes := decodeCurrent(current.Snodes); len(snodes) > 0 {
			return snodes, nil
		}
	}

	var legacy swarmResponseLegacy
	if err := json.Unmarshal(body, &legacy); err == nil && len(legacy.Snodes) > 0 {
		return decodeLegacy(legacy.Snodes), nil
	}

	return nil, snrrerr.New(snrrerr.KindInvalidJSON, "get_swarm response matched neither known shape")
}

func decodeCurrent(in []wireSnodeCurrent) []model.Snode {
	out := make([]model.Snode, 0, len(in))
	for _, w := range in {
		ed, ok1 := model.DecodeHexKey32(w.PubkeyEd25519)
		x, ok2 := model.DecodeHexKey32(w.PubkeyX25519)
		if !ok1 || !ok2 || w.IP == "" {
			continue
		}
		out = append(out, model.Snode{IP: w.IP, Port: w.Port, Ed25519PubKey: ed, X25519PubKey: x})
	}
	return out
}

func decodeLegacy(in []wireSnodeLegacy) []model.Snode {
	out := make([]model.Snode, 0, len(in))
	for _, w := range in {
		ed, ok1 := model.DecodeHexKey32(w.PubkeyEd25519)
		x, ok2 := model.DecodeHexKey32(w.PubkeyX25519)
		if !ok1 || !ok2 || w.IP == "" {
			continue
		}
		out = append(out, model.Snode{IP: w.IP, Port: w.Port, Ed25519PubKey: ed, X25519PubKey: x})
	}
	return out
}

func (r *Resolver) persist(ctx context.Context, acct account.ID, snodes []model.Snode) error {
	data, err := json.Marshal(encodeSwarm(snodes))
	if err != nil {
		return snrrerr.Wrap(snrrerr.KindInvalidJSON, err)
	}
	return r.store.Put(ctx, persistence.SwarmKey(acct.String()), data)
}

func encodeSwarm(in []model.Snode) []wireSnodeCurrent {
	out := make([]wireSnodeCurrent, 0, len(in))
	for _, s := range in {
		out = append(out, wireSnodeCurrent{IP: s.IP, Port: s.Port, PubkeyEd25519: s.Ed25519Hex(), PubkeyX25519: s.X25519Hex()})
	}
	return out
}

// TargetSnodes returns TargetSnodeCount snodes chosen uniformly at
// random from the account's swarm, using a cryptographically secure
// RNG.
func (r *Resolver) TargetSnodes(ctx context.Context, acct account.ID) ([]model.Snode, error) {
	swarm, err := r.SwarmFor(ctx, acct)
	if err != nil {
		return nil, err
	}
	return shuffleTake(swarm, TargetSnodeCount)
}

// DropFromSwarm removes snode from the cached and persisted swarm for
// account.
func (r *Resolver) DropFromSwarm(ctx context.Context, acct account.ID, snode model.Snode) error {
	r.mu.Lock()
	filtered := make([]model.Snode, 0, len(r.cache[acct]))
	for _, s := range r.cache[acct] {
		if !s.Equal(snode) {
			filtered = append(filtered, s)
		}
	}
	r.cache[acct] = filtered
	r.mu.Unlock()

	return r.persist(ctx, acct, filtered)
}

// Invalidate empties the cached set for account so the next SwarmFor
// call refetches.
func (r *Resolver) Invalidate(ctx context.Context, acct account.ID) error {
	r.mu.Lock()
	delete(r.cache, acct)
	r.mu.Unlock()
	return r.store.Delete(ctx, persistence.SwarmKey(acct.String()))
}

// ReplaceSwarm overwrites the cached and persisted swarm for account,
// used when a 421 response carries an authoritative replacement set.
func (r *Resolver) ReplaceSwarm(ctx context.Context, acct account.ID, snodes []model.Snode) error {
	r.mu.Lock()
	r.cache[acct] = snodes
	r.mu.Unlock()
	return r.persist(ctx, acct, snodes)
}

func shuffleTake(in []model.Snode, n int) ([]model.Snode, error) {
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
