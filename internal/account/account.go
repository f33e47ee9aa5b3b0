// Package account centralizes the one non-obvious rule repeated across
// the signer and RPC surface: testnet accounts carry a one-byte hex
// prefix that must be stripped before the key is used as a wire pubkey.
// Implementing that in one place avoids four call sites quietly
// disagreeing about it.
package account

import "strings"

// ID is an account's long-term x25519 identity, hex-encoded.
type ID string

// Parse normalizes a raw hex pubkey string for wire use: on testnet the
// leading byte-pair prefix (e.g. "05") is stripped if present and the
// remaining 64 hex characters (32 bytes) are kept; on mainnet the value
// is returned unchanged.
func Parse(raw string, testnet bool) ID {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if !testnet {
		return ID(raw)
	}
	if len(raw) == 66 {
		return ID(raw[2:])
	}
	return ID(raw)
}

// String returns the hex string form.
func (a ID) String() string { return string(a) }
