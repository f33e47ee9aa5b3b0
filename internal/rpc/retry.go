package rpc

import (
	"context"
	"time"

	"github.com/session-network/snrr/internal/account"
	"github.com/session-network/snrr/internal/model"
	"github.com/session-network/snrr/internal/snrrerr"
)

// MaxRetries is the default retry budget for RPC operations.
const MaxRetries = 8

// attempt is one try against a chosen snode: it issues the request and
// reports the snode actually used (the chooser may pick a new one on
// each retry), the raw response body, and any error.
type attempt func(ctx context.Context) (snode model.Snode, body []byte, err error)

// withRetry runs try up to maxRetries+1 times, applying the failure
// accountant's Decision after every attempt and stopping early on a
// non-retryable error.
func (c *Client) withRetry(ctx context.Context, acct *account.ID, maxRetries int, try attempt) ([]byte, error) {
	var lastErr error
	for i := 0; i <= maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return nil, snrrerr.Wrap(snrrerr.KindCancelled, err)
		}

		snode, body, err := try(ctx)
		nowMs := time.Now().UnixMilli()
		decision := c.accountant.Record(nowMs, snode, err, body)

		c.applyDecision(ctx, acct, snode, decision)

		if err == nil {
			return body, nil
		}
		lastErr = err

		if decision.NonRetryable || !snrrerr.Retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}
