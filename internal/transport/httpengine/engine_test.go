package httpengine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/session-network/snrr/internal/snrrerr"
)

func TestExecute_SuccessReturnsBodyAndStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	e := New()
	code, _, body, err := e.Execute(context.Background(), "GET", srv.URL, nil, nil, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 200, code)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestExecute_NonSuccessReturnsHTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"swarm unreachable"}`))
	}))
	defer srv.Close()

	e := New()
	code, _, body, err := e.Execute(context.Background(), "GET", srv.URL, nil, nil, time.Second)
	assert.Equal(t, 502, code)
	assert.JSONEq(t, `{"error":"swarm unreachable"}`, string(body))
	require.Error(t, err)
	assert.True(t, snrrerr.Is(err, snrrerr.KindHTTPStatus))
}

func TestExecute_TimeoutSurfacesKindTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	e := New()
	_, _, _, err := e.Execute(context.Background(), "GET", srv.URL, nil, nil, 5*time.Millisecond)
	require.Error(t, err)
	assert.True(t, snrrerr.Is(err, snrrerr.KindTimeout))
}

func TestExecute_CancelledContextSurfacesKindCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	e := New()

	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, _, _, err := e.Execute(ctx, "GET", srv.URL, nil, nil, time.Second)
	require.Error(t, err)
	assert.True(t, snrrerr.Is(err, snrrerr.KindCancelled))
}

func TestEncodeDecodeJSON_RoundTrip(t *testing.T) {
	data, err := EncodeJSON(map[string]int{"a": 1})
	require.NoError(t, err)

	var out map[string]int
	require.NoError(t, DecodeJSON(data, &out))
	assert.Equal(t, 1, out["a"])
}
