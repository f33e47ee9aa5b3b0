// Package model holds the plain data types shared across the SNRR:
// Snode, the message envelope the storage RPCs move, and the cursor
// used to page retrieval. None of these types carry behavior beyond
// simple invariants — they are value objects passed between components.
package model

import "encoding/hex"

// DecodeHexKey32 hex-decodes a 32-byte key, used by every wire decoder
// that skips malformed entries instead of failing a whole batch.
func DecodeHexKey32(hexStr string) ([32]byte, bool) {
	var out [32]byte
	raw, err := hex.DecodeString(hexStr)
	if err != nil || len(raw) != 32 {
		return out, false
	}
	copy(out[:], raw)
	return out, true
}

// Snode identifies a single service node. Identity is the ed25519 key;
// equality and hashing use all four fields because the pool stores
// distinct endpoints even when two entries happen to share an IP (e.g.
// during a port migration).
type Snode struct {
	IP            string
	Port          uint16
	Ed25519PubKey [32]byte
	X25519PubKey  [32]byte
}

// Key returns a stable map/set key for a Snode.
func (s Snode) Key() string {
	return s.IP + ":" + itoa(s.Port) + ":" + hex.EncodeToString(s.Ed25519PubKey[:]) + ":" + hex.EncodeToString(s.X25519PubKey[:])
}

// Equal reports whether two snodes describe the same endpoint and
// identity, comparing all four fields.
func (s Snode) Equal(o Snode) bool {
	return s.IP == o.IP && s.Port == o.Port &&
		s.Ed25519PubKey == o.Ed25519PubKey && s.X25519PubKey == o.X25519PubKey
}

// Ed25519Hex returns the hex-encoded ed25519 public key, the form used
// in wire responses and persistence keys.
func (s Snode) Ed25519Hex() string { return hex.EncodeToString(s.Ed25519PubKey[:]) }

// X25519Hex returns the hex-encoded x25519 public key.
func (s Snode) X25519Hex() string { return hex.EncodeToString(s.X25519PubKey[:]) }

func itoa(p uint16) string {
	if p == 0 {
		return "0"
	}
	var buf [5]byte
	i := len(buf)
	for p > 0 {
		i--
		buf[i] = byte('0' + p%10)
		p /= 10
	}
	return string(buf[i:])
}

// ReceivedMessage is a single stored ciphertext blob returned by a
// retrieve call.
type ReceivedMessage struct {
	Hash         string
	Ciphertext   []byte
	TimestampMs  int64
	ExpirationMs int64
	Namespace    int64
}

// LastHash is the pagination cursor for (account, namespace, snode),
// pruned once its ExpirationMs has passed.
type LastHash struct {
	Hash         string
	ExpirationMs int64
}

// Expired reports whether the cursor should be pruned at nowMs.
func (c LastHash) Expired(nowMs int64) bool {
	return c.ExpirationMs > 0 && c.ExpirationMs < nowMs
}
