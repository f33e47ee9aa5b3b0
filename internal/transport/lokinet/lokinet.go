// Package lokinet implements the Lokinet overlay: a local libLokinet
// context resolves .loki/.snode hostnames to a
// loopback ip:port, and the transport then issues plain HTTP(S) to
// that address (the tunnel itself does the encryption).
package lokinet

import (
	"context"
	"strings"
	"time"

	"github.com/session-network/snrr/internal/model"
	"github.com/session-network/snrr/internal/snrrerr"
	"github.com/session-network/snrr/internal/transport"
	"github.com/session-network/snrr/internal/transport/httpengine"
)

// Context abstracts the libLokinet context lifecycle so production code
// can wrap the real cgo bindings while tests inject a fake. At most one
// Context exists per process; Start must be idempotent.
type Context interface {
	// Start brings the context up if it isn't already running.
	Start(ctx context.Context) error

	// Status reports readiness: 0 means published and ready to resolve;
	// -1/-3 mean "not yet ready, poll"; any other value is an error.
	Status() int

	// Resolve maps a .loki/.snode hostname to a loopback ip:port.
	Resolve(ctx context.Context, hostname string) (string, error)

	// Stop tears the context down; must be synchronous so
	// the dispatcher can rely on it completing before layers are
	// re-enabled.
	Stop() error
}

// communityHosts maps a fixed community server hostname to its Lokinet
// address and port via a compiled-in host map. Defined in
// communities.go.

// Layer is the Lokinet transport.Layer implementation.
type Layer struct {
	engine *httpengine.Engine
	loki   Context
}

// New builds a Lokinet Layer over an already-constructed Context; the
// caller is responsible for Start/Stop lifecycle (the dispatcher owns
// that, since layer-set changes must tear the context down
// synchronously).
func New(engine *httpengine.Engine, loki Context) *Layer {
	return &Layer{engine: engine, loki: loki}
}

func (l *Layer) Name() string { return "lokinet" }

func (l *Layer) Send(ctx context.Context, method, endpoint string, headers map[string]string, body []byte, dest transport.Destination, timeout time.Duration) (transport.Info, []byte, error) {
	status := l.loki.Status()
	if status != 0 {
		return transport.Info{Layer: l.Name()}, nil, snrrerr.New(snrrerr.KindNotReady, "lokinet context not yet published")
	}

	var hostname, scheme string
	if dest.IsServer() {
		addr, ok := communityHosts[dest.Host]
		if !ok {
			return transport.Info{Layer: l.Name()}, nil, snrrerr.New(snrrerr.KindInvalidURL, "no lokinet mapping for host "+dest.Host)
		}
		hostname = addr.lokiAddress
		scheme = "http" // tunnel already encrypts
	} else {
		hostname = snodeHostname(*dest.Snode)
		scheme = "https" // self-signed cert accepted for snode hostnames
	}

	loopback, err := l.loki.Resolve(ctx, hostname)
	if err != nil {
		return transport.Info{Layer: l.Name()}, nil, snrrerr.Wrap(snrrerr.KindNotReady, err)
	}

	url := scheme + "://" + loopback + "/" + strings.TrimPrefix(endpoint, "/")
	engine := l.engine
	if scheme == "https" {
		engine = insecureEngine()
	}

	start := time.Now()
	code, _, data, err := engine.Execute(ctx, method, url, headers, body, timeout)
	info := transport.Info{Layer: l.Name(), Code: code, Duration: time.Since(start)}
	return info, data, err
}

// zbase32Alphabet is Zooko's human-friendlier base32 alphabet: no
// stdlib codec implements it, only the RFC 4648 one.
const zbase32Alphabet = "ybndrfg8ejkmcpqxot1uwisza345h769"

// encodeBase32Z encodes data 5 bits at a time, most significant bit
// first, same bit grouping as RFC 4648 base32 but through the zbase32
// alphabet and without padding.
func encodeBase32Z(data []byte) string {
	var sb strings.Builder
	var buf uint32
	bits := 0
	for _, b := range data {
		buf = (buf << 8) | uint32(b)
		bits += 8
		for bits >= 5 {
			bits -= 5
			sb.WriteByte(zbase32Alphabet[(buf>>uint(bits))&0x1f])
		}
	}
	if bits > 0 {
		sb.WriteByte(zbase32Alphabet[(buf<<uint(5-bits))&0x1f])
	}
	return sb.String()
}

// snodeHostname derives a snode's .snode hostname by base32z-encoding
// its ed25519 key.
func snodeHostname(s model.Snode) string {
	return encodeBase32Z(s.Ed25519PubKey[:]) + ".snode"
}

// SnodeHostname exposes the hostname derivation for the native-Lokinet
// overlay, which resolves hostnames itself via the OS stack instead of
// a local libLokinet Context.
func SnodeHostname(s model.Snode) string { return snodeHostname(s) }
