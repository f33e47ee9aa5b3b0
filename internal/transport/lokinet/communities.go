package lokinet

import (
	"crypto/tls"
	"net/http"
	"strconv"
	"sync"

	"github.com/session-network/snrr/internal/transport/httpengine"
)

func portString(p uint16) string { return strconv.Itoa(int(p)) }

type communityAddr struct {
	lokiAddress string
	port        uint16
}

// communityHosts is the compiled-in community-server-to-Lokinet-address
// map. Entries absent from this table return
// InvalidUrl under the Lokinet layer rather than silently falling back
// to clearnet.
var communityHosts = map[string]communityAddr{
	"open.getsession.org":     {lokiAddress: "7y6ofw8qmxxibfq1d49qm74x6r3senh4n3dgkt4s7xpdeu4ef9io.loki", port: 80},
	"chat.oxen.network":       {lokiAddress: "chatugyx8rjhf669134nwxhhbn4w9fbkz8kbdb1wizs6h1ub1y1y.loki", port: 80},
}

// CommunityHost resolves a community hostname to its "host:port"
// Lokinet address, for use by overlays that do their own name
// resolution (internal/transport/nativelokinet).
func CommunityHost(host string) (string, bool) {
	addr, ok := communityHosts[host]
	if !ok {
		return "", false
	}
	return addr.lokiAddress + ":" + portString(addr.port), true
}

var (
	insecureOnce   sync.Once
	insecureClient *httpengine.Engine
)

// insecureEngine returns a shared HTTP engine configured to accept the
// self-signed certificates snode .snode hostnames present — the
// Lokinet tunnel itself already authenticates the peer.
func insecureEngine() *httpengine.Engine {
	insecureOnce.Do(func() {
		insecureClient = httpengine.NewWithClient(&http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // #nosec G402 -- onion-equivalent channel is the Lokinet tunnel, not TLS
			},
		})
	})
	return insecureClient
}
