package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"

	"github.com/session-network/snrr/internal/snrrerr"
)

// SignedResult is one snode's signed confirmation in a bulk response
// (delete / delete_all / delete_all_before).
type SignedResult struct {
	SnodeX25519Hex string
	SnodeEd25519   ed25519.PublicKey
	Canonical      []byte // the exact bytes the snode is expected to have signed
	SignatureHex   string
}

// ValidateBulk verifies each entry's signature against its canonical
// message and returns a per-snode outcome map. A
// structurally malformed signature (bad hex) is treated as a
// cryptographic inconsistency and returns an error rather than being
// silently folded into a false result.
func ValidateBulk(results []SignedResult) (map[string]bool, error) {
	out := make(map[string]bool, len(results))
	for _, r := range results {
		sig, err := hex.DecodeString(r.SignatureHex)
		if err != nil {
			return nil, snrrerr.Wrap(snrrerr.KindValidationFailed, err)
		}
		if len(r.SnodeEd25519) != ed25519.PublicKeySize {
			return nil, snrrerr.New(snrrerr.KindValidationFailed, "malformed snode ed25519 key")
		}
		out[r.SnodeX25519Hex] = ed25519.Verify(r.SnodeEd25519, r.Canonical, sig)
	}
	return out, nil
}

// HashONSName hashes a lowercased ONS name with BLAKE2b and
// base64-encodes it, the lookup key used by ons_resolve.
func HashONSName(name string) (string, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return "", snrrerr.Wrap(snrrerr.KindHashingFailed, err)
	}
	if _, err := h.Write([]byte(name)); err != nil {
		return "", snrrerr.Wrap(snrrerr.KindHashingFailed, err)
	}
	return base64.StdEncoding.EncodeToString(h.Sum(nil)), nil
}
