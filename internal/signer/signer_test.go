package signer

import (
	"crypto/ed25519"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// REQUEST SIGNING TESTS
// ============================================================================

func newTestSigner(t *testing.T) *Signer {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	var x25519 [32]byte
	copy(x25519[:], pub)
	return New(KeyPair{Ed25519Public: pub, Ed25519Private: priv, X25519Public: x25519}, false)
}

func TestSigner_StoreCanonicalStringVerifies(t *testing.T) {
	s := newTestSigner(t)

	auth, err := s.Store(0, 1_700_000_000_000, 0)
	require.NoError(t, err)

	msg := []byte("store" + "0" + "1700000000000")
	sig, err := hex.DecodeString(auth.Signature)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(s.keys.Ed25519Public, msg, sig))
}

func TestSigner_RetrieveCanonicalStringVerifies(t *testing.T) {
	s := newTestSigner(t)

	auth, err := s.Retrieve(5, 1_700_000_000_000, 50)
	require.NoError(t, err)

	msg := []byte("retrieve" + "5" + "1700000000050")
	sig, err := hex.DecodeString(auth.Signature)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(s.keys.Ed25519Public, msg, sig))
}

func TestSigner_DeleteSignsConcatenatedHashesInOrder(t *testing.T) {
	s := newTestSigner(t)
	hashes := []string{"hashA", "hashB", "hashC"}

	auth, err := s.Delete(hashes, 1000, 0)
	require.NoError(t, err)

	msg := []byte("delete" + "hashAhashBhashC")
	sig, err := hex.DecodeString(auth.Signature)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(s.keys.Ed25519Public, msg, sig))
}

func TestSigner_TimestampAppliesClockOffset(t *testing.T) {
	s := newTestSigner(t)

	auth, err := s.Retrieve(0, 10_000, 250)
	require.NoError(t, err)
	assert.Equal(t, int64(10_250), auth.Timestamp)
}

func TestSigner_MissingKeyPairFails(t *testing.T) {
	s := New(KeyPair{}, false)
	_, err := s.Store(0, 1000, 0)
	assert.Error(t, err)
}

// ============================================================================
// RESPONSE VALIDATION TESTS
// ============================================================================

func TestValidateBulk_AcceptsValidSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	canonical := []byte("hash1hash2")
	sig := ed25519.Sign(priv, canonical)

	results, err := ValidateBulk([]SignedResult{
		{SnodeX25519Hex: "snode1", SnodeEd25519: pub, Canonical: canonical, SignatureHex: hex.EncodeToString(sig)},
	})
	require.NoError(t, err)
	assert.True(t, results["snode1"])
}

func TestValidateBulk_RejectsTamperedSignature(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	sig := ed25519.Sign(priv, []byte("original"))

	results, err := ValidateBulk([]SignedResult{
		{SnodeX25519Hex: "snode1", SnodeEd25519: pub, Canonical: []byte("tampered"), SignatureHex: hex.EncodeToString(sig)},
	})
	require.NoError(t, err)
	assert.False(t, results["snode1"])
}

func TestValidateBulk_MalformedHexErrors(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	_, err = ValidateBulk([]SignedResult{
		{SnodeX25519Hex: "snode1", SnodeEd25519: pub, Canonical: []byte("x"), SignatureHex: "not-hex!!"},
	})
	assert.Error(t, err)
}

func TestHashONSName_Deterministic(t *testing.T) {
	h1, err := HashONSName("alice.loki")
	require.NoError(t, err)
	h2, err := HashONSName("alice.loki")
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	h3, err := HashONSName("bob.loki")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}
