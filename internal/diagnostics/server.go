// Package diagnostics implements a localhost-only HTTP surface for
// inspecting pool/swarm/dispatcher/accountant state and Prometheus
// metrics, grounded on this codebase's gorilla/mux-based API server
// wiring but bound to 127.0.0.1 only — this is a developer/debug
// surface, never part of the SNRR's network-facing behavior.
package diagnostics

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/session-network/snrr/internal/account"
	"github.com/session-network/snrr/internal/core"
	"github.com/session-network/snrr/internal/model"
)

// Server exposes the diagnostics endpoints over HTTP.
type Server struct {
	httpServer *http.Server
	ctx        *core.Context
}

// New builds a Server bound to 127.0.0.1:port.
func New(ctx *core.Context, port int) *Server {
	s := &Server{ctx: ctx}

	r := mux.NewRouter()
	r.HandleFunc("/pool", s.handlePool).Methods(http.MethodGet)
	r.HandleFunc("/swarm/{account}", s.handleSwarm).Methods(http.MethodGet)
	r.HandleFunc("/dispatcher/stats", s.handleDispatcherStats).Methods(http.MethodGet)
	r.HandleFunc("/accountant/failures", s.handleAccountant).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:              localAddr(port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func localAddr(port int) string {
	return "127.0.0.1:" + itoa(port)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ListenAndServe blocks serving the diagnostics surface until ctx is
// cancelled, at which point the server shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() { errCh <- s.httpServer.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handlePool(w http.ResponseWriter, r *http.Request) {
	snapshot := s.ctx.Pool.Snapshot()
	writeJSON(w, map[string]interface{}{
		"count":             len(snapshot),
		"last_pool_refresh": s.ctx.Pool.LastRefresh(),
		"snodes":            snodeKeys(snapshot),
	})
}

func (s *Server) handleSwarm(w http.ResponseWriter, r *http.Request) {
	acctRaw := mux.Vars(r)["account"]
	acct := account.Parse(acctRaw, s.ctx.Config.Network.Testnet)
	snodes, err := s.ctx.Swarm.SwarmFor(r.Context(), acct)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"account": acct.String(), "snodes": snodeKeys(snodes)})
}

func (s *Server) handleDispatcherStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.ctx.Dispatcher.RecentStats())
}

func (s *Server) handleAccountant(w http.ResponseWriter, r *http.Request) {
	hf, sf := s.ctx.Accountant.Fork()
	writeJSON(w, map[string]interface{}{
		"clock_offset_ms": s.ctx.Accountant.ClockOffsetMs(),
		"hardfork":        hf,
		"softfork":        sf,
	})
}

func snodeKeys(in []model.Snode) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = s.Key()
	}
	return out
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
