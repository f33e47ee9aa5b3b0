// Package httpengine implements a typed HTTP verb surface with
// cancellation, timeouts, and JSON coding, and nothing else — no
// retries, no overlay knowledge. Every transport layer that eventually
// speaks plain HTTP(S) (lokinet, native-lokinet, direct, and onion's
// guard POST) goes through this engine, matching the single shared
// *http.Client wrapper this codebase uses for outbound calls
// (cf. internal/infra's connection setup pattern: one configured
// client, explicit context deadlines per call).
package httpengine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/session-network/snrr/internal/snrrerr"
)

// Engine executes raw HTTP requests. It is safe for concurrent use.
type Engine struct {
	client *http.Client
}

// New builds an Engine with connection pooling sized for fan-out to
// many distinct snode hosts.
func New() *Engine {
	return &Engine{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        256,
				MaxIdleConnsPerHost: 8,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// NewWithClient allows tests (and the lokinet/TLS-skip-verify transport)
// to inject a preconfigured *http.Client.
func NewWithClient(c *http.Client) *Engine { return &Engine{client: c} }

// Execute issues method against url with the given headers/body and
// enforces timeout via a derived context, returning the status, header
// map, and raw body bytes.
func (e *Engine) Execute(ctx context.Context, method, url string, headers map[string]string, body []byte, timeout time.Duration) (int, http.Header, []byte, error) {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, nil, snrrerr.New(snrrerr.KindInvalidURL, err.Error())
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return 0, nil, nil, snrrerr.New(snrrerr.KindTimeout, "http request timed out")
		}
		if errors.Is(ctx.Err(), context.Canceled) {
			return 0, nil, nil, snrrerr.New(snrrerr.KindCancelled, "http request cancelled")
		}
		return 0, nil, nil, snrrerr.Wrap(snrrerr.KindTimeout, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, resp.Header, nil, snrrerr.Wrap(snrrerr.KindInvalidJSON, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, resp.Header, data, snrrerr.HTTPStatus(resp.StatusCode, data)
	}

	return resp.StatusCode, resp.Header, data, nil
}

// EncodeJSON marshals v, surfacing marshal failures as KindInvalidJSON.
func EncodeJSON(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, snrrerr.Wrap(snrrerr.KindInvalidJSON, err)
	}
	return data, nil
}

// DecodeJSON unmarshals data into v, tolerating unknown fields (the
// caller's struct simply omits them) but surfacing structural failures.
func DecodeJSON(data []byte, v interface{}) error {
	if err := json.Unmarshal(data, v); err != nil {
		return snrrerr.Wrap(snrrerr.KindInvalidJSON, err)
	}
	return nil
}
