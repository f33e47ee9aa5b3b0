// Package onion implements the onion-routing overlay. The actual
// per-hop symmetric wire cryptography is out of scope and is
// represented here by the injected Sealer collaborator; this package
// owns everything else:
// path construction/pooling/teardown, wire framing for v3 (snode
// storage RPC) and v4 (server endpoints), and delivery over the shared
// HTTP engine.
package onion

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/session-network/snrr/internal/model"
	"github.com/session-network/snrr/internal/snrrerr"
	"github.com/session-network/snrr/internal/transport"
	"github.com/session-network/snrr/internal/transport/httpengine"
)

// WireVersion selects the request/response framing. v3 is used for
// snode storage RPC; v4 for server endpoints and frames both request
// and response as JSON arrays.
type WireVersion int

const (
	V3 WireVersion = 3
	V4 WireVersion = 4
)

// ResponseKey is the per-request symmetric key the destination was told
// to encrypt its reply with; opaque outside the Sealer.
type ResponseKey []byte

// Path is a guard followed by zero or more relay hops.
type Path struct {
	Guard model.Snode
	Hops  []model.Snode
}

// Sealer performs the onion layer's symmetric wire cryptography. The
// real implementation derives per-hop keys from each hop's x25519
// pubkey; it is never reimplemented in this repository.
type Sealer interface {
	// Seal wraps payload in nested layers addressed through path to
	// dest, returning the blob to POST to the guard and the key the
	// destination will encrypt its response with.
	Seal(path Path, dest transport.Destination, method, endpoint string, payload []byte, version WireVersion) ([]byte, ResponseKey, error)

	// Unseal decrypts a guard response sealed with key.
	Unseal(sealed []byte, key ResponseKey, version WireVersion) ([]byte, error)
}

// GuardSource supplies random snodes to build new paths from; normally
// backed by the snode pool (internal/snodepool), injected here to avoid
// a package cycle.
type GuardSource interface {
	RandomSnodes(n int) ([]model.Snode, error)
}

const (
	minPoolPaths  = 2
	hopsPerPath   = 2 // guard + 1 relay before the destination
	pathBuildTime = 0 // paths are built synchronously on demand
)

// pathPool maintains a small set of live onion paths, building more
// lazily and tearing down any path that a hop failure implicates.
type pathPool struct {
	mu    sync.Mutex
	paths []Path
}

func (p *pathPool) acquire(guards GuardSource) (Path, error) {
	p.mu.Lock()
	if len(p.paths) > 0 {
		path := p.paths[len(p.paths)-1]
		p.paths = p.paths[:len(p.paths)-1]
		p.mu.Unlock()
		return path, nil
	}
	p.mu.Unlock()
	return buildPath(guards)
}

func (p *pathPool) release(path Path) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.paths) < minPoolPaths*2 {
		p.paths = append(p.paths, path)
	}
}

// teardown drops a path entirely rather than returning it to the pool;
// called when a hop in it failed.
func (p *pathPool) teardown(Path) {
	// Intentionally a no-op beyond not calling release: the failed path
	// is simply not returned to p.paths, so it is garbage collected.
}

func (p *pathPool) ensureMinimum(guards GuardSource) error {
	p.mu.Lock()
	need := minPoolPaths - len(p.paths)
	p.mu.Unlock()
	for i := 0; i < need; i++ {
		path, err := buildPath(guards)
		if err != nil {
			return err
		}
		p.release(path)
	}
	return nil
}

func buildPath(guards GuardSource) (Path, error) {
	nodes, err := guards.RandomSnodes(hopsPerPath)
	if err != nil {
		return Path{}, snrrerr.Wrap(snrrerr.KindNotReady, err)
	}
	if len(nodes) < hopsPerPath {
		return Path{}, snrrerr.New(snrrerr.KindInsufficientSnodes, "not enough snodes to build an onion path")
	}
	return Path{Guard: nodes[0], Hops: nodes[1:]}, nil
}

// Layer is the onion transport.Layer implementation.
type Layer struct {
	engine *httpengine.Engine
	sealer Sealer
	guards GuardSource
	pool   pathPool
}

// New builds an onion Layer. sealer performs the actual wire crypto;
// guards supplies snodes to build paths from.
func New(engine *httpengine.Engine, sealer Sealer, guards GuardSource) *Layer {
	return &Layer{engine: engine, sealer: sealer, guards: guards}
}

func (l *Layer) Name() string { return "onion" }

// version picks v3 for snode destinations and v4 for servers.
func version(dest transport.Destination) WireVersion {
	if dest.IsServer() {
		return V4
	}
	return V3
}

func (l *Layer) Send(ctx context.Context, method, endpoint string, headers map[string]string, body []byte, dest transport.Destination, timeout time.Duration) (transport.Info, []byte, error) {
	start := time.Now()

	if err := l.pool.ensureMinimum(l.guards); err != nil {
		return transport.Info{Layer: l.Name()}, nil, err
	}
	path, err := l.pool.acquire(l.guards)
	if err != nil {
		return transport.Info{Layer: l.Name()}, nil, err
	}

	ver := version(dest)
	sealed, respKey, err := l.sealer.Seal(path, dest, method, endpoint, body, ver)
	if err != nil {
		l.pool.teardown(path)
		return transport.Info{Layer: l.Name()}, nil, snrrerr.Wrap(snrrerr.KindSigningFailed, err)
	}

	guardURL := guardHTTPSURL(path.Guard)
	status, _, raw, err := l.engine.Execute(ctx, "POST", guardURL, map[string]string{"Content-Type": "application/octet-stream"}, sealed, timeout)
	if err != nil {
		l.pool.teardown(path)
		return transport.Info{Layer: l.Name(), Code: status}, nil, err
	}

	plain, err := l.sealer.Unseal(raw, respKey, ver)
	if err != nil {
		l.pool.teardown(path)
		return transport.Info{Layer: l.Name(), Code: status}, nil, snrrerr.Wrap(snrrerr.KindDecryptionFailed, err)
	}

	l.pool.release(path)

	code := innerStatusCode(plain, ver)
	info := transport.Info{Layer: l.Name(), Code: code, Duration: time.Since(start)}
	if code < 200 || code >= 300 {
		return info, plain, snrrerr.HTTPStatus(code, plain)
	}
	return info, plain, nil
}

// innerStatusCode extracts the destination's real status code from the
// unsealed reply. v4 frames the reply as a [status, body] JSON array.
// v3 carries the destination's status inline as a top-level "status"
// field alongside the rest of the response body; a response with no
// such field (an older or bare-success snode reply) falls back to 200
// so existing callers that never set it keep working.
func innerStatusCode(plain []byte, ver WireVersion) int {
	if ver == V4 {
		var frame []json.RawMessage
		if err := json.Unmarshal(plain, &frame); err != nil || len(frame) == 0 {
			return 200
		}
		var code int
		if err := json.Unmarshal(frame[0], &code); err == nil {
			return code
		}
		return 200
	}

	var withStatus struct {
		Status int `json:"status"`
	}
	if err := json.Unmarshal(plain, &withStatus); err == nil && withStatus.Status != 0 {
		return withStatus.Status
	}
	return 200
}

func guardHTTPSURL(guard model.Snode) string {
	return "https://" + guard.IP + ":" + strconv.Itoa(int(guard.Port)) + "/onion_req/v2"
}
