// Package wire holds the plain request/response DTOs for the snode
// JSON-RPC surface, decoded tolerantly: unknown fields are
// simply not mapped to a struct field, and optional fields use pointers
// so "absent" is distinguishable from "zero".
package wire

import "encoding/json"

// Envelope is the outer shape of every snode JSON-RPC call.
type Envelope struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// GetSwarmParams requests the swarm for an account.
type GetSwarmParams struct {
	Pubkey string `json:"pubkey"`
}

// RetrieveParams covers both the legacy and authenticated retrieve
// shapes; authenticated fields are omitted when empty.
type RetrieveParams struct {
	Pubkey        string `json:"pubkey"`
	Namespace     *int64 `json:"namespace,omitempty"`
	LastHash      string `json:"last_hash,omitempty"`
	PubkeyEd25519 string `json:"pubkey_ed25519,omitempty"`
	Timestamp     int64  `json:"timestamp,omitempty"`
	Signature     string `json:"signature,omitempty"`
	Subkey        string `json:"subkey,omitempty"`
}

// RetrieveResult is the retrieve response body.
type RetrieveResult struct {
	Messages []RetrievedMessage `json:"messages"`
}

// RetrievedMessage is one stored message entry.
type RetrievedMessage struct {
	Hash       string `json:"hash"`
	Data       string `json:"data"`
	Timestamp  int64  `json:"timestamp"`
	Expiration int64  `json:"expiration"`
}

// StoreParams is the store request body.
type StoreParams struct {
	Pubkey    string `json:"pubkey"`
	Data      string `json:"data"`
	TTL       int64  `json:"ttl"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
	Namespace *int64 `json:"namespace,omitempty"`
}

// StoreResult is the store response body: snode_pk -> per-snode result.
type StoreResult struct {
	Swarm map[string]StoreSwarmEntry `json:"swarm"`
}

// StoreSwarmEntry is one snode's signed store confirmation.
type StoreSwarmEntry struct {
	Hash      string `json:"hash"`
	Signature string `json:"signature"`
}

// DeleteParams is the delete request body.
type DeleteParams struct {
	Pubkey        string   `json:"pubkey"`
	Messages      []string `json:"messages"`
	PubkeyEd25519 string   `json:"pubkey_ed25519"`
	Signature     string   `json:"signature"`
}

// DeleteResult is the delete response body.
type DeleteResult struct {
	Swarm map[string]DeleteSwarmEntry `json:"swarm"`
}

// DeleteSwarmEntry is one snode's signed deletion confirmation.
type DeleteSwarmEntry struct {
	Deleted   []string `json:"deleted"`
	Signature string   `json:"signature"`
}

// ExpireParams is the expire request body.
type ExpireParams struct {
	Pubkey        string   `json:"pubkey"`
	Messages      []string `json:"messages"`
	Expiry        int64    `json:"expiry"`
	PubkeyEd25519 string   `json:"pubkey_ed25519"`
	Signature     string   `json:"signature"`
	Subkey        string   `json:"subkey,omitempty"`
}

// ExpireResult is the expire response body.
type ExpireResult struct {
	Swarm map[string]ExpireSwarmEntry `json:"swarm"`
}

// ExpireSwarmEntry is one snode's signed expiry confirmation.
type ExpireSwarmEntry struct {
	Updated   []string `json:"updated"`
	Expiry    int64    `json:"expiry"`
	Signature string   `json:"signature"`
}

// RevokeSubkeyParams is the revoke_subkey request body.
type RevokeSubkeyParams struct {
	Pubkey        string `json:"pubkey"`
	RevokeSubkey  string `json:"revoke_subkey"`
	PubkeyEd25519 string `json:"pubkey_ed25519"`
	Signature     string `json:"signature"`
}

// RevokeSubkeyResult is the per-snode signed confirmation.
type RevokeSubkeyResult struct {
	Signature string `json:"signature"`
}

// DeleteAllParams is the delete_all / delete_all_before request body.
type DeleteAllParams struct {
	Pubkey        string `json:"pubkey"`
	Namespace     *int64 `json:"namespace,omitempty"`
	BeforeMs      *int64 `json:"before,omitempty"`
	PubkeyEd25519 string `json:"pubkey_ed25519"`
	Timestamp     int64  `json:"timestamp"`
	Signature     string `json:"signature"`
}

// DeleteAllResult is the delete_all response body.
type DeleteAllResult struct {
	Swarm map[string]DeleteAllSwarmEntry `json:"swarm"`
}

// DeleteAllSwarmEntry is one snode's signed confirmation.
type DeleteAllSwarmEntry struct {
	Deleted   bool   `json:"deleted"`
	Signature string `json:"signature"`
}

// GetInfoResult is the get_info response body.
type GetInfoResult struct {
	Timestamp int64   `json:"timestamp"`
	HF        []int64 `json:"hf,omitempty"`
}

// OnsResolveParams requests the registered session id for a hashed name.
type OnsResolveParams struct {
	Type      int    `json:"type"`
	NameHash  string `json:"name_hash"`
}

// OnsResolveResult carries the encrypted/ciphertext session id value
// the caller must decode; decoding to a plain session id is out of
// this module's scope (message-content cryptography is handled elsewhere).
type OnsResolveResult struct {
	Result OnsResolveInner `json:"result"`
}

// OnsResolveInner is the nested oxend_request payload.
type OnsResolveInner struct {
	Status     string `json:"status"`
	Encrypted  string `json:"encrypted_value"`
	Nonce      string `json:"nonce,omitempty"`
}

// BatchRequest is one sub-request inside a batch call.
type BatchRequest struct {
	Method string      `json:"method"`
	Params interface{} `json:"params"`
}

// BatchParams is the batch request body.
type BatchParams struct {
	Requests []BatchRequest `json:"requests"`
}

// BatchResultEntry is one ordered sub-response.
type BatchResultEntry struct {
	Code int             `json:"code"`
	Body json.RawMessage `json:"body"`
}
