package swarm

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/session-network/snrr/internal/account"
	"github.com/session-network/snrr/internal/model"
	"github.com/session-network/snrr/internal/persistence/memstore"
	"github.com/session-network/snrr/internal/transport"
)

// ============================================================================
// RESPONSE SHAPE TOLERANCE TESTS
// ============================================================================

func hex32(c byte) string {
	out := make([]byte, 64)
	for i := range out {
		out[i] = c
	}
	return string(out)
}

func TestParseSwarmResponse_AcceptsCurrentShape(t *testing.T) {
	body := []byte(`{"snodes":[{"ip":"10.0.0.1","port_http":22021,"pubkey_ed25519":"` + hex32('a') + `","pubkey_x25519":"` + hex32('b') + `"}]}`)

	snodes, err := parseSwarmResponse(body)
	require.NoError(t, err)
	require.Len(t, snodes, 1)
	assert.Equal(t, "10.0.0.1", snodes[0].IP)
}

func TestParseSwarmResponse_AcceptsLegacyShape(t *testing.T) {
	body := []byte(`{"snodes":[{"public_ip":"10.0.0.2","storage_port":22022,"pubkey_ed25519":"` + hex32('a') + `","pubkey_x25519":"` + hex32('b') + `"}]}`)

	snodes, err := parseSwarmResponse(body)
	require.NoError(t, err)
	require.Len(t, snodes, 1)
	assert.Equal(t, "10.0.0.2", snodes[0].IP)
}

func TestParseSwarmResponse_ToleratesUnknownFields(t *testing.T) {
	body := []byte(`{"snodes":[{"ip":"10.0.0.1","port_http":22021,"pubkey_ed25519":"` + hex32('a') + `","pubkey_x25519":"` + hex32('b') + `","future_field":"ignored"}],"extra":"ignored"}`)

	snodes, err := parseSwarmResponse(body)
	require.NoError(t, err)
	require.Len(t, snodes, 1)
}

func TestParseSwarmResponse_RejectsNeitherShape(t *testing.T) {
	_, err := parseSwarmResponse([]byte(`{"nodes":[]}`))
	assert.Error(t, err)
}

// ============================================================================
// TARGET SELECTION TESTS
// ============================================================================

func TestShuffleTake_ReturnsDistinctSubset(t *testing.T) {
	in := []model.Snode{
		{IP: "1"}, {IP: "2"}, {IP: "3"}, {IP: "4"}, {IP: "5"},
	}
	out, err := shuffleTake(in, TargetSnodeCount)
	require.NoError(t, err)
	require.Len(t, out, TargetSnodeCount)
	assert.NotEqual(t, out[0].IP, out[1].IP)
}

func TestShuffleTake_ClampsWhenSwarmIsSmall(t *testing.T) {
	in := []model.Snode{{IP: "only"}}
	out, err := shuffleTake(in, TargetSnodeCount)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

// ============================================================================
// MIN_SWARM GATING
// ============================================================================

type fakeDispatcher struct {
	body []byte
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, method, endpoint string, headers map[string]string, body []byte, dest transport.Destination, timeout time.Duration) (transport.Info, []byte, error) {
	return transport.Info{Code: 200}, f.body, nil
}

type fakePool struct {
	snode model.Snode
}

func (f *fakePool) RandomSnodes(n int) ([]model.Snode, error) {
	out := make([]model.Snode, n)
	for i := range out {
		out[i] = f.snode
	}
	return out, nil
}

func TestSwarmFor_RefetchesBelowMinSwarm(t *testing.T) {
	body := []byte(`{"snodes":[{"ip":"10.0.0.1","port_http":1,"pubkey_ed25519":"` + hex32('a') + `","pubkey_x25519":"` + hex32('b') + `"},` +
		`{"ip":"10.0.0.2","port_http":1,"pubkey_ed25519":"` + hex32('c') + `","pubkey_x25519":"` + hex32('d') + `"},` +
		`{"ip":"10.0.0.3","port_http":1,"pubkey_ed25519":"` + hex32('e') + `","pubkey_x25519":"` + hex32('f') + `"}]}`)
	dispatch := &fakeDispatcher{body: body}
	pool := &fakePool{snode: model.Snode{IP: "seed"}}
	r := New(memstore.New(), dispatch, pool)

	acct := account.ID("05aa")
	r.cache[acct] = []model.Snode{{IP: "stale-1"}, {IP: "stale-2"}}

	out, err := r.SwarmFor(context.Background(), acct)
	require.NoError(t, err)
	assert.Len(t, out, 3, "a cached swarm below MinSwarm must trigger a refetch")
	assert.Equal(t, "10.0.0.1", out[0].IP)
}

func TestSwarmFor_UsesCacheAtOrAboveMinSwarm(t *testing.T) {
	dispatch := &fakeDispatcher{body: []byte(`{"snodes":[]}`)}
	pool := &fakePool{snode: model.Snode{IP: "seed"}}
	r := New(memstore.New(), dispatch, pool)

	acct := account.ID("05aa")
	r.cache[acct] = []model.Snode{{IP: "1"}, {IP: "2"}, {IP: "3"}}

	out, err := r.SwarmFor(context.Background(), acct)
	require.NoError(t, err)
	assert.Len(t, out, MinSwarm, "a cached swarm already at MinSwarm must not refetch")
}
