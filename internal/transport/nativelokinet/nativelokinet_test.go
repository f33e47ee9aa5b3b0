package nativelokinet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/session-network/snrr/internal/model"
	"github.com/session-network/snrr/internal/snrrerr"
	"github.com/session-network/snrr/internal/transport"
	"github.com/session-network/snrr/internal/transport/httpengine"
)

func TestSend_UnknownCommunityHostIsInvalidURL(t *testing.T) {
	l := New(httpengine.New())
	dest := transport.Destination{Host: "unknown.example.org"}

	_, _, err := l.Send(context.Background(), "POST", "/x", nil, nil, dest, time.Second)
	require.Error(t, err)
	assert.True(t, snrrerr.Is(err, snrrerr.KindInvalidURL))
}

func TestSend_SnodeDestinationUsesSnodeHostnameAndHTTPS(t *testing.T) {
	l := New(httpengine.New())
	var ed [32]byte
	ed[0] = 0xCD
	snode := model.Snode{Ed25519PubKey: ed, Port: 22021}
	dest := transport.Destination{Snode: &snode}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// No TLS endpoint actually exists at the derived .snode hostname in a
	// test environment, so this only exercises URL construction reaching
	// as far as a network-layer failure rather than an invalid-URL error.
	_, _, err := l.Send(ctx, "GET", "/x", nil, nil, dest, 20*time.Millisecond)
	require.Error(t, err)
	assert.False(t, snrrerr.Is(err, snrrerr.KindInvalidURL))
}
