// Package accountant implements per-snode failure counters, the
// 421/406 status rules, and the clock-offset/fork-counter singletons
// that track how trustworthy each snode's recent responses have been.
// It never reaches into the snode pool or swarm resolver directly —
// it models pool/swarm/failure-counts as independent maps and returns a
// Decision describing what the caller (internal/rpc) should apply to
// those other components, avoiding a cyclic dependency.
package accountant

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/session-network/snrr/internal/metrics"
	"github.com/session-network/snrr/internal/model"
	"github.com/session-network/snrr/internal/persistence"
	"github.com/session-network/snrr/internal/snrrerr"
)

// dropThreshold is the number of consecutive non-2xx responses from a
// snode before it is dropped from pool and swarm.
const dropThreshold = 3

// Decision tells the caller which side effects to apply after Record.
// Fields are zero-valued when no action is needed.
type Decision struct {
	DropFromPool    bool
	DropFromSwarm   bool
	InvalidateSwarm bool
	ReplaceSwarm    []model.Snode // non-nil only on a 421 carrying a swarm body
	NonRetryable    bool
}

// Accountant is the process-wide (per core.Context) failure tracker. It
// is safe for concurrent use.
type Accountant struct {
	store persistence.Store

	mu       sync.Mutex
	failures map[string]int

	clockOffsetMs int64
	hardfork      int64
	softfork      int64
}

// New builds an Accountant, loading the last persisted clock offset and
// fork counters from store so they survive process restarts.
func New(ctx context.Context, store persistence.Store) *Accountant {
	return &Accountant{
		store:         store,
		failures:      make(map[string]int),
		clockOffsetMs: loadInt64(ctx, store, persistence.KeyClockOffsetMs),
		hardfork:      loadInt64(ctx, store, persistence.KeyHardfork),
		softfork:      loadInt64(ctx, store, persistence.KeySoftfork),
	}
}

func loadInt64(ctx context.Context, store persistence.Store, key string) int64 {
	raw, ok, err := store.Get(ctx, key)
	if err != nil || !ok {
		return 0
	}
	var v int64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	return v
}

func encodeInt64(v int64) []byte {
	data, _ := json.Marshal(v)
	return data
}

type successBody struct {
	T  *int64 `json:"t"`
	HF []int64 `json:"hf"`
}

type swarmBody struct {
	Snodes []wireSnode `json:"snodes"`
}

type wireSnode struct {
	IP            string `json:"public_ip"`
	Port          uint16 `json:"storage_port"`
	PubkeyEd25519 string `json:"pubkey_ed25519"`
	PubkeyX25519  string `json:"pubkey_x25519"`
}

// Record applies the status-code decision table for a single transport
// response from snode and returns the side effects the caller must
// apply. nowMs is the local clock at receipt, used to compute the new
// clock offset from a response's "t" field.
func (a *Accountant) Record(nowMs int64, snode model.Snode, err error, body []byte) Decision {
	key := snode.Key()

	if err == nil {
		a.mu.Lock()
		delete(a.failures, key)
		a.mu.Unlock()
		a.applySuccessBody(nowMs, body)
		return Decision{}
	}

	var se *snrrerr.Error
	if !errors.As(err, &se) || se.Kind != snrrerr.KindHTTPStatus {
		// Pure transport failures (timeout, cancelled, not-ready) are
		// not scored against the snode's failure count; they are
		// handled entirely by the RPC retry loop.
		return Decision{}
	}

	switch se.Status {
	case 406:
		metrics.Default.RecordDrop("406_nonretryable")
		return Decision{NonRetryable: true}
	case 421:
		var sb swarmBody
		nodes := []model.Snode{}
		if jsonErr := json.Unmarshal(se.Body, &sb); jsonErr == nil && len(sb.Snodes) > 0 {
			nodes = decodeSnodes(sb.Snodes)
		}
		if len(nodes) > 0 {
			metrics.Default.RecordDrop("421_replace")
			return Decision{ReplaceSwarm: nodes, NonRetryable: true}
		}
		metrics.Default.RecordDrop("421_invalidate")
		return Decision{InvalidateSwarm: true, NonRetryable: true}
	case 404, 500, 502, 503:
		return a.recordFailure(key)
	default:
		return a.recordFailure(key)
	}
}

func (a *Accountant) recordFailure(key string) Decision {
	metrics.Default.RecordFailure(key)

	a.mu.Lock()
	a.failures[key]++
	n := a.failures[key]
	if n >= dropThreshold {
		a.failures[key] = 0
	}
	a.mu.Unlock()

	if n >= dropThreshold {
		metrics.Default.RecordDrop("pool_threshold")
		return Decision{DropFromPool: true, DropFromSwarm: true}
	}
	return Decision{}
}

func (a *Accountant) applySuccessBody(nowMs int64, body []byte) {
	if len(body) == 0 {
		return
	}
	var sb successBody
	if err := json.Unmarshal(body, &sb); err != nil {
		return
	}
	if sb.T != nil {
		a.mu.Lock()
		a.clockOffsetMs = *sb.T - nowMs
		offset := a.clockOffsetMs
		a.mu.Unlock()
		a.persist(persistence.KeyClockOffsetMs, encodeInt64(offset))
	}
	if len(sb.HF) >= 2 {
		a.applyForkRule(sb.HF[0], sb.HF[1])
	}
}

// applyForkRule upgrades the stored hardfork/softfork counters:
// hardfork and softfork never decrease, and a hardfork increase resets
// softfork to the server-reported value atomically.
func (a *Accountant) applyForkRule(hf, sf int64) {
	a.mu.Lock()
	changed := false
	if hf > a.hardfork {
		a.hardfork = hf
		a.softfork = sf
		changed = true
	} else if hf == a.hardfork && sf > a.softfork {
		a.softfork = sf
		changed = true
	}
	hardfork, softfork := a.hardfork, a.softfork
	a.mu.Unlock()

	if changed {
		a.persistTx([]persistence.Op{
			{Key: persistence.KeyHardfork, Value: encodeInt64(hardfork)},
			{Key: persistence.KeySoftfork, Value: encodeInt64(softfork)},
		})
	}
}

// persist writes a single scalar, best-effort: a failed write only
// means the in-memory value won't survive a restart, never a
// correctness problem for the current process.
func (a *Accountant) persist(key string, value []byte) {
	if a.store == nil {
		return
	}
	_ = a.store.Put(context.Background(), key, value)
}

func (a *Accountant) persistTx(ops []persistence.Op) {
	if a.store == nil {
		return
	}
	_ = a.store.Tx(context.Background(), ops)
}

// ClockOffsetMs returns the current server/local clock offset.
func (a *Accountant) ClockOffsetMs() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.clockOffsetMs
}

// Fork returns the current (hardfork, softfork) pair.
func (a *Accountant) Fork() (int64, int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.hardfork, a.softfork
}

// FailureCount returns the current failure count for a snode, for
// diagnostics and tests.
func (a *Accountant) FailureCount(snode model.Snode) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.failures[snode.Key()]
}

// Reset clears a snode's failure count. Pool refreshes and bootstraps
// do not call it.
func (a *Accountant) Reset(snode model.Snode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.failures, snode.Key())
}

func decodeSnodes(in []wireSnode) []model.Snode {
	out := make([]model.Snode, 0, len(in))
	for _, w := range in {
		sn, ok := decodeOne(w)
		if ok {
			out = append(out, sn)
		}
	}
	return out
}

func decodeOne(w wireSnode) (model.Snode, bool) {
	ed, ok1 := model.DecodeHexKey32(w.PubkeyEd25519)
	x, ok2 := model.DecodeHexKey32(w.PubkeyX25519)
	if !ok1 || !ok2 {
		return model.Snode{}, false
	}
	return model.Snode{IP: w.IP, Port: w.Port, Ed25519PubKey: ed, X25519PubKey: x}, true
}
