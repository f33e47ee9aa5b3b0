package direct

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/session-network/snrr/internal/model"
	"github.com/session-network/snrr/internal/transport"
	"github.com/session-network/snrr/internal/transport/httpengine"
)

func TestSend_ServerDestination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage_rpc/v1", r.URL.Path)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"t":1}`))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	l := New(httpengine.New())
	dest := transport.Destination{Host: u.Hostname(), Port: uint16(port), Scheme: "http"}

	info, body, err := l.Send(context.Background(), "GET", "/storage_rpc/v1", nil, nil, dest, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, info.Code)
	assert.Equal(t, "direct", info.Layer)
	assert.JSONEq(t, `{"t":1}`, string(body))
}

func TestSend_SnodeDestinationBuildsHTTPSURL(t *testing.T) {
	l := New(httpengine.New())
	snode := model.Snode{IP: "10.0.0.9", Port: 22021}
	dest := transport.Destination{Snode: &snode}

	// No server is listening; this exercises URL construction and
	// confirms the call fails as a connection error, not a malformed URL.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, _, err := l.Send(ctx, "GET", "/x", nil, nil, dest, 20*time.Millisecond)
	require.Error(t, err)
}
