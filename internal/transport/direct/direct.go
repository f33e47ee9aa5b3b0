// Package direct implements the Direct overlay: plain HTTP(S) straight
// to the snode or server, used for diagnostics and layer comparison.
// No anonymization is performed.
package direct

import (
	"strconv"
	"strings"
	"time"

	"context"

	"github.com/session-network/snrr/internal/transport"
	"github.com/session-network/snrr/internal/transport/httpengine"
)

// Layer is the Direct transport.Layer implementation.
type Layer struct {
	engine *httpengine.Engine
}

// New builds a Direct Layer.
func New(engine *httpengine.Engine) *Layer {
	return &Layer{engine: engine}
}

func (l *Layer) Name() string { return "direct" }

func (l *Layer) Send(ctx context.Context, method, endpoint string, headers map[string]string, body []byte, dest transport.Destination, timeout time.Duration) (transport.Info, []byte, error) {
	var url string
	if dest.IsServer() {
		scheme := dest.Scheme
		if scheme == "" {
			scheme = "https"
		}
		url = scheme + "://" + dest.Host + ":" + strconv.Itoa(int(dest.Port)) + "/" + strings.TrimPrefix(endpoint, "/")
	} else {
		url = "https://" + dest.Snode.IP + ":" + strconv.Itoa(int(dest.Snode.Port)) + "/" + strings.TrimPrefix(endpoint, "/")
	}

	start := time.Now()
	code, _, data, err := l.engine.Execute(ctx, method, url, headers, body, timeout)
	info := transport.Info{Layer: l.Name(), Code: code, Duration: time.Since(start)}
	return info, data, err
}
