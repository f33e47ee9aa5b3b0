package rpc

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/session-network/snrr/internal/account"
	"github.com/session-network/snrr/internal/accountant"
	"github.com/session-network/snrr/internal/model"
	"github.com/session-network/snrr/internal/persistence/memstore"
	"github.com/session-network/snrr/internal/rpc/wire"
	"github.com/session-network/snrr/internal/signer"
	"github.com/session-network/snrr/internal/transport"
)

// ============================================================================
// TEST COLLABORATORS
// ============================================================================

type recordingDispatcher struct {
	lastBody []byte
	response []byte
	err      error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, method, endpoint string, headers map[string]string, body []byte, dest transport.Destination, timeout time.Duration) (transport.Info, []byte, error) {
	d.lastBody = body
	return transport.Info{Code: 200}, d.response, d.err
}

type fakePool struct {
	snodes []model.Snode
}

func (p *fakePool) RandomSnodes(n int) ([]model.Snode, error) {
	if len(p.snodes) == 0 {
		return nil, nil
	}
	out := make([]model.Snode, n)
	for i := range out {
		out[i] = p.snodes[i%len(p.snodes)]
	}
	return out, nil
}

func (p *fakePool) Drop(ctx context.Context, snode model.Snode) error { return nil }

type fakeSwarm struct {
	snodes []model.Snode
}

func (s *fakeSwarm) SwarmFor(ctx context.Context, acct account.ID) ([]model.Snode, error) {
	return s.snodes, nil
}
func (s *fakeSwarm) TargetSnodes(ctx context.Context, acct account.ID) ([]model.Snode, error) {
	return s.snodes, nil
}
func (s *fakeSwarm) DropFromSwarm(ctx context.Context, acct account.ID, snode model.Snode) error {
	return nil
}
func (s *fakeSwarm) Invalidate(ctx context.Context, acct account.ID) error { return nil }
func (s *fakeSwarm) ReplaceSwarm(ctx context.Context, acct account.ID, snodes []model.Snode) error {
	s.snodes = snodes
	return nil
}

type noopAccountant struct{}

func (noopAccountant) Record(nowMs int64, snode model.Snode, err error, body []byte) accountant.Decision {
	return accountant.Decision{}
}
func (noopAccountant) ClockOffsetMs() int64 { return 0 }

func newTestSnode(tag byte) model.Snode {
	var ed, x [32]byte
	ed[0], x[0] = tag, tag
	return model.Snode{IP: "10.0.0.1", Port: 1, Ed25519PubKey: ed, X25519PubKey: x}
}

func newTestSigner(t *testing.T) *signer.Signer {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	var x [32]byte
	x[0] = 0xAB
	return signer.New(signer.KeyPair{Ed25519Public: pub, Ed25519Private: priv, X25519Public: x}, false)
}

// ============================================================================
// GET MESSAGES: NAMESPACE 0 IS UNAUTHENTICATED
// ============================================================================

func TestGetMessages_PublicNamespaceOmitsSignature(t *testing.T) {
	batchResp, err := json.Marshal([]wire.BatchResultEntry{
		{Code: 200, Body: json.RawMessage(`{"messages":[]}`)},
		{Code: 200, Body: json.RawMessage(`{"messages":[]}`)},
	})
	require.NoError(t, err)

	dispatch := &recordingDispatcher{response: batchResp}
	sgn := newTestSigner(t)
	c := New(dispatch, &fakePool{}, &fakeSwarm{}, sgn, noopAccountant{}, memstore.New(), 1, time.Second)

	acct := account.ID("05aa")
	snode := newTestSnode('a')

	_, err = c.GetMessages(context.Background(), acct, []int64{0, -10}, snode)
	require.NoError(t, err)

	var envelope struct {
		Params struct {
			Requests []wire.BatchRequest `json:"requests"`
		} `json:"params"`
	}
	require.NoError(t, json.Unmarshal(dispatch.lastBody, &envelope))
	require.Len(t, envelope.Params.Requests, 2)

	raw, err := json.Marshal(envelope.Params.Requests[0].Params)
	require.NoError(t, err)
	var ns0 map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &ns0))
	_, hasSignature := ns0["signature"]
	assert.False(t, hasSignature, "namespace 0 retrieve must not carry a signature")
	assert.Equal(t, sgn.AccountID(), ns0["pubkey"])

	raw, err = json.Marshal(envelope.Params.Requests[1].Params)
	require.NoError(t, err)
	var nsAuth map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &nsAuth))
	_, hasSignature = nsAuth["signature"]
	assert.True(t, hasSignature, "a non-public namespace retrieve must carry a signature")
}

// ============================================================================
// DELETE MESSAGES: CONFIRMATION KEY RESOLUTION AND REQUESTED-HASH CHECK
// ============================================================================

func TestDeleteMessages_ValidatesAgainstRealSnodeKey(t *testing.T) {
	sgn := newTestSigner(t)
	snodePub, snodePriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var ed, x [32]byte
	copy(ed[:], snodePub)
	x[0] = 0x42
	snode := model.Snode{IP: "10.0.0.2", Port: 1, Ed25519PubKey: ed, X25519PubKey: x}

	requested := []string{"hash-1", "hash-2"}
	canonical := "hash-1hash-2"
	sig := ed25519.Sign(snodePriv, []byte(canonical))

	deleteResp, err := json.Marshal(wire.DeleteResult{
		Swarm: map[string]wire.DeleteSwarmEntry{
			snode.X25519Hex(): {Deleted: requested, Signature: hex.EncodeToString(sig)},
		},
	})
	require.NoError(t, err)

	dispatch := &recordingDispatcher{response: deleteResp}
	c := New(dispatch, &fakePool{}, &fakeSwarm{snodes: []model.Snode{snode}}, sgn, noopAccountant{}, memstore.New(), 1, time.Second)

	results, err := c.DeleteMessages(context.Background(), account.ID("05aa"), requested)
	require.NoError(t, err)
	assert.True(t, results[snode.X25519Hex()], "a confirmation signed by the snode's real ed25519 key must validate")
}

func TestDeleteMessages_RejectsConfirmationOutsideRequestedHashes(t *testing.T) {
	sgn := newTestSigner(t)
	snodePub, snodePriv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var ed, x [32]byte
	copy(ed[:], snodePub)
	x[0] = 0x43
	snode := model.Snode{IP: "10.0.0.3", Port: 1, Ed25519PubKey: ed, X25519PubKey: x}

	requested := []string{"hash-1"}
	claimed := []string{"hash-1", "unrelated-hash"}
	sig := ed25519.Sign(snodePriv, []byte("hash-1unrelated-hash"))

	deleteResp, err := json.Marshal(wire.DeleteResult{
		Swarm: map[string]wire.DeleteSwarmEntry{
			snode.X25519Hex(): {Deleted: claimed, Signature: hex.EncodeToString(sig)},
		},
	})
	require.NoError(t, err)

	dispatch := &recordingDispatcher{response: deleteResp}
	c := New(dispatch, &fakePool{}, &fakeSwarm{snodes: []model.Snode{snode}}, sgn, noopAccountant{}, memstore.New(), 1, time.Second)

	results, err := c.DeleteMessages(context.Background(), account.ID("05aa"), requested)
	require.NoError(t, err)
	assert.False(t, results[snode.X25519Hex()], "a confirmation claiming deletion outside the request must be rejected")
}
