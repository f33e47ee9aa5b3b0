// Package rpc implements the single caller-facing entry points for
// every snode operation, each retrying up to MaxRetries times and
// applying the failure accountant's Decision between attempts.
package rpc

import (
	"context"
	"log/slog"
	"time"

	"github.com/session-network/snrr/internal/account"
	"github.com/session-network/snrr/internal/accountant"
	"github.com/session-network/snrr/internal/model"
	"github.com/session-network/snrr/internal/persistence"
	"github.com/session-network/snrr/internal/signer"
	"github.com/session-network/snrr/internal/transport"
)

// Dispatcher is the send surface the RPC layer issues every request
// through.
type Dispatcher interface {
	Dispatch(ctx context.Context, method, endpoint string, headers map[string]string, body []byte, dest transport.Destination, timeout time.Duration) (transport.Info, []byte, error)
}

// Pool is the subset of snodepool.Pool the RPC layer needs: a random
// snode when no swarm applies, and the ability to drop a bad one.
type Pool interface {
	RandomSnodes(n int) ([]model.Snode, error)
	Drop(ctx context.Context, snode model.Snode) error
}

// Swarm is the subset of swarm.Resolver the RPC layer depends on.
type Swarm interface {
	SwarmFor(ctx context.Context, acct account.ID) ([]model.Snode, error)
	TargetSnodes(ctx context.Context, acct account.ID) ([]model.Snode, error)
	DropFromSwarm(ctx context.Context, acct account.ID, snode model.Snode) error
	Invalidate(ctx context.Context, acct account.ID) error
	ReplaceSwarm(ctx context.Context, acct account.ID, snodes []model.Snode) error
}

// Accountant is the subset of accountant.Accountant the RPC layer uses.
type Accountant interface {
	Record(nowMs int64, snode model.Snode, err error, body []byte) accountant.Decision
	ClockOffsetMs() int64
}

// Client wires together the dispatcher, pool, swarm resolver, signer,
// failure accountant, and persistence layer into the RPC surface
// callers use for every snode operation. It holds no retry state
// itself — retries are per-call, driven by withRetry.
type Client struct {
	dispatch   Dispatcher
	pool       Pool
	swarm      Swarm
	signer     *signer.Signer
	accountant Accountant
	store      persistence.Store
	maxRetries int
	timeout    time.Duration
}

// New builds a Client.
func New(dispatch Dispatcher, pool Pool, sw Swarm, sgn *signer.Signer, acc Accountant, store persistence.Store, maxRetries int, timeout time.Duration) *Client {
	if maxRetries <= 0 {
		maxRetries = MaxRetries
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &Client{dispatch: dispatch, pool: pool, swarm: sw, signer: sgn, accountant: acc, store: store, maxRetries: maxRetries, timeout: timeout}
}

// applyDecision applies the side effects the accountant asked for after
// recording one transport response. Errors from the side-effect calls
// themselves are logged, not returned: the caller's original RPC
// result is unaffected by a failed housekeeping write.
func (c *Client) applyDecision(ctx context.Context, acct *account.ID, snode model.Snode, d accountant.Decision) {
	if d.DropFromPool {
		if err := c.pool.Drop(ctx, snode); err != nil {
			slog.Warn("snrr: rpc: drop from pool failed", "snode", snode.Key(), "err", err)
		}
	}
	if acct == nil {
		return
	}
	if d.DropFromSwarm {
		if err := c.swarm.DropFromSwarm(ctx, *acct, snode); err != nil {
			slog.Warn("snrr: rpc: drop from swarm failed", "account", acct.String(), "err", err)
		}
	}
	if len(d.ReplaceSwarm) > 0 {
		if err := c.swarm.ReplaceSwarm(ctx, *acct, d.ReplaceSwarm); err != nil {
			slog.Warn("snrr: rpc: replace swarm failed", "account", acct.String(), "err", err)
		}
	}
	if d.InvalidateSwarm {
		if err := c.swarm.Invalidate(ctx, *acct); err != nil {
			slog.Warn("snrr: rpc: invalidate swarm failed", "account", acct.String(), "err", err)
		}
	}
}

// send is the shared single-attempt send: build headers, dispatch, and
// return the raw body (dispatcher.Dispatch already surfaces HttpStatus
// errors carrying the body for the accountant to inspect).
func (c *Client) send(ctx context.Context, snode model.Snode, endpoint string, payload []byte) ([]byte, error) {
	dest := transport.Destination{Snode: &snode}
	_, body, err := c.dispatch.Dispatch(ctx, "POST", endpoint, map[string]string{"Content-Type": "application/json"}, payload, dest, c.timeout)
	return body, err
}

func (c *Client) randomSnode() (model.Snode, error) {
	snodes, err := c.pool.RandomSnodes(1)
	if err != nil {
		return model.Snode{}, err
	}
	return snodes[0], nil
}

/// nowPlusOffset returns the signer timestamp basis: local clock plus
// the accountant's live offset.
func (c *Client) nowPlusOffset() (nowMs, offsetMs int64) {
	return time.Now().UnixMilli(), c.accountant.ClockOffsetMs()
}
