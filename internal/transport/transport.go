// Package transport defines the shared contract every overlay
// (internal/transport/onion, lokinet, nativelokinet, direct) implements,
// and the HTTP-level plumbing (internal/transport/httpengine) they all
// sit on. The four overlays are modeled as a closed sum behind one
// interface, selected by the dispatcher's bitmask rather than held as a
// heterogeneous collection.
package transport

import (
	"context"
	"time"

	"github.com/session-network/snrr/internal/model"
)

// Destination is either a storage service node or a named server
// endpoint (community/ONS/file server).
type Destination struct {
	Snode *model.Snode

	// Server fields, populated when Snode is nil.
	Host      string
	Target    string
	X25519PK  [32]byte
	Scheme    string
	Port      uint16
}

// IsServer reports whether this destination addresses a server rather
// than a snode.
func (d Destination) IsServer() bool { return d.Snode == nil }

// Info carries the result metadata common to every overlay. Code may be
// synthetic (0) for overlays that hide the real HTTP status.
type Info struct {
	Code     int
	Layer    string
	Duration time.Duration
}

// Layer is the contract every overlay transport implements. It never
// retries — retry policy lives in internal/rpc, one layer up.
type Layer interface {
	// Name identifies the layer for stats and configuration lookups.
	Name() string

	// Send delivers body to endpoint at dest and returns the response.
	// Implementations must honor ctx cancellation by closing the
	// underlying socket/tunnel handle promptly.
	Send(ctx context.Context, method, endpoint string, headers map[string]string, body []byte, dest Destination, timeout time.Duration) (Info, []byte, error)
}
