// Package signer implements Ed25519 signing of authenticated RPC
// bodies and validation of the signed results snodes return. The
// canonical strings below must match
// the wire format the snode swarm actually verifies against — no
// flexibility is intentional here.
package signer

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"strconv"

	"github.com/session-network/snrr/internal/account"
	"github.com/session-network/snrr/internal/snrrerr"
)

// KeyPair is the account's long-term Ed25519 signing identity plus its
// corresponding x25519 storage identity, the two keys every
// authenticated request body carries.
type KeyPair struct {
	Ed25519Public  ed25519.PublicKey
	Ed25519Private ed25519.PrivateKey
	X25519Public   [32]byte // the account's storage pubkey, hex-encoded as AccountID
}

// AuthFields is the set of fields an authenticated request body must
// carry.
type AuthFields struct {
	Pubkey        string `json:"pubkey"`
	PubkeyEd25519 string `json:"pubkey_ed25519"`
	Timestamp     int64  `json:"timestamp"`
	Signature     string `json:"signature"`
	Subkey        string `json:"subkey,omitempty"`
}

// Signer produces AuthFields for each authenticated endpoint. nowMs and
// offsetMs let callers inject the accountant's live clock offset
// (timestamp = local_now_ms + clock_offset_ms) without
// this package importing the clock state.
type Signer struct {
	keys    KeyPair
	testnet bool
}

// New builds a Signer for a single account keypair.
func New(keys KeyPair, testnet bool) *Signer {
	return &Signer{keys: keys, testnet: testnet}
}

func (s *Signer) accountID() account.ID {
	return account.Parse(hex.EncodeToString(s.keys.X25519Public[:]), s.testnet)
}

// AccountID returns the bare account pubkey used by unauthenticated
// requests, such as a legacy retrieve against the public namespace.
func (s *Signer) AccountID() string {
	return string(s.accountID())
}

func (s *Signer) sign(msg []byte) (string, error) {
	if len(s.keys.Ed25519Private) == 0 {
		return "", snrrerr.New(snrrerr.KindNoKeyPair, "no ed25519 private key configured")
	}
	sig := ed25519.Sign(s.keys.Ed25519Private, msg)
	return hex.EncodeToString(sig), nil
}

func (s *Signer) fields(nowMs, offsetMs int64, sig string) AuthFields {
	return AuthFields{
		Pubkey:        string(s.accountID()),
		PubkeyEd25519: hex.EncodeToString(s.keys.Ed25519Public),
		Timestamp:     nowMs + offsetMs,
		Signature:     sig,
	}
}

// Store signs `"store" || namespace_decimal || timestamp_decimal`.
func (s *Signer) Store(namespace int64, nowMs, offsetMs int64) (AuthFields, error) {
	ts := nowMs + offsetMs
	msg := []byte("store" + strconv.FormatInt(namespace, 10) + strconv.FormatInt(ts, 10))
	sig, err := s.sign(msg)
	if err != nil {
		return AuthFields{}, err
	}
	return s.fields(nowMs, offsetMs, sig), nil
}

// Retrieve signs `"retrieve" || namespace_decimal || timestamp_decimal`.
func (s *Signer) Retrieve(namespace int64, nowMs, offsetMs int64) (AuthFields, error) {
	ts := nowMs + offsetMs
	msg := []byte("retrieve" + strconv.FormatInt(namespace, 10) + strconv.FormatInt(ts, 10))
	sig, err := s.sign(msg)
	if err != nil {
		return AuthFields{}, err
	}
	return s.fields(nowMs, offsetMs, sig), nil
}

// Delete signs `"delete" || concat(hashes_in_request_order)`.
func (s *Signer) Delete(hashes []string, nowMs, offsetMs int64) (AuthFields, error) {
	msg := []byte("delete" + concat(hashes))
	sig, err := s.sign(msg)
	if err != nil {
		return AuthFields{}, err
	}
	f := s.fields(nowMs, offsetMs, sig)
	return f, nil
}

// Expire signs `"expire" || expiry_decimal || concat(hashes)`.
func (s *Signer) Expire(hashes []string, expiryMs, nowMs, offsetMs int64) (AuthFields, error) {
	msg := []byte("expire" + strconv.FormatInt(expiryMs, 10) + concat(hashes))
	sig, err := s.sign(msg)
	if err != nil {
		return AuthFields{}, err
	}
	return s.fields(nowMs, offsetMs, sig), nil
}

// RevokeSubkey signs `"revoke_subkey" || subkey_bytes`.
func (s *Signer) RevokeSubkey(subkey []byte, nowMs, offsetMs int64) (AuthFields, error) {
	msg := append([]byte("revoke_subkey"), subkey...)
	sig, err := s.sign(msg)
	if err != nil {
		return AuthFields{}, err
	}
	f := s.fields(nowMs, offsetMs, sig)
	f.Subkey = hex.EncodeToString(subkey)
	return f, nil
}

// DeleteAllCanonical builds the `"delete_all" || namespace_decimal? ||
// timestamp_decimal` message both the request signature and each
// swarm member's confirmation are signed over, so callers validating
// the bulk response reconstruct exactly what was signed.
func DeleteAllCanonical(namespace *int64, serverTimestampMs int64) []byte {
	msg := []byte("delete_all")
	if namespace != nil {
		msg = append(msg, []byte(strconv.FormatInt(*namespace, 10))...)
	}
	msg = append(msg, []byte(strconv.FormatInt(serverTimestampMs, 10))...)
	return msg
}

// DeleteAll signs `"delete_all" || namespace_decimal? || timestamp_decimal`,
// binding the deletion to the server-reported timestamp.
func (s *Signer) DeleteAll(namespace *int64, serverTimestampMs int64) (AuthFields, error) {
	msg := DeleteAllCanonical(namespace, serverTimestampMs)
	sig, err := s.sign(msg)
	if err != nil {
		return AuthFields{}, err
	}
	return AuthFields{
		Pubkey:        string(s.accountID()),
		PubkeyEd25519: hex.EncodeToString(s.keys.Ed25519Public),
		Timestamp:     serverTimestampMs,
		Signature:     sig,
	}, nil
}

func concat(hashes []string) string {
	total := 0
	for _, h := range hashes {
		total += len(h)
	}
	buf := make([]byte, 0, total)
	for _, h := range hashes {
		buf = append(buf, h...)
	}
	return string(buf)
}

// uint64LE encodes v as 8 little-endian bytes. Nothing in this package
// calls it: the canonical strings above and ValidateBulk use decimal
// strings and raw bytes only.
func uint64LE(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}
