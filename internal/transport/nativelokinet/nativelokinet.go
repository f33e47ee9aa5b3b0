// Package nativelokinet implements the native-Lokinet overlay: the
// same .loki/.snode hostname derivation as
// internal/transport/lokinet, but handed straight to the operating
// system's TCP stack on the assumption that Lokinet is running at the
// router level, so no local context needs starting.
package nativelokinet

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/session-network/snrr/internal/snrrerr"
	"github.com/session-network/snrr/internal/transport"
	"github.com/session-network/snrr/internal/transport/httpengine"
	"github.com/session-network/snrr/internal/transport/lokinet"
)

// Layer is the native-Lokinet transport.Layer implementation.
type Layer struct {
	engine *httpengine.Engine
}

// New builds a native-Lokinet Layer.
func New(engine *httpengine.Engine) *Layer {
	return &Layer{engine: engine}
}

func (l *Layer) Name() string { return "native_lokinet" }

func (l *Layer) Send(ctx context.Context, method, endpoint string, headers map[string]string, body []byte, dest transport.Destination, timeout time.Duration) (transport.Info, []byte, error) {
	var hostAndPort, scheme string
	if dest.IsServer() {
		addr, ok := lokinet.CommunityHost(dest.Host)
		if !ok {
			return transport.Info{Layer: l.Name()}, nil, snrrerr.New(snrrerr.KindInvalidURL, "no lokinet mapping for host "+dest.Host)
		}
		hostAndPort = addr
		scheme = "http"
	} else {
		hostAndPort = lokinet.SnodeHostname(*dest.Snode) + ":" + strconv.Itoa(int(dest.Snode.Port))
		scheme = "https"
	}

	url := scheme + "://" + hostAndPort + "/" + strings.TrimPrefix(endpoint, "/")
	start := time.Now()
	code, _, data, err := l.engine.Execute(ctx, method, url, headers, body, timeout)
	info := transport.Info{Layer: l.Name(), Code: code, Duration: time.Since(start)}
	return info, data, err
}
