package rpc

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/session-network/snrr/internal/account"
	"github.com/session-network/snrr/internal/model"
	"github.com/session-network/snrr/internal/persistence"
	"github.com/session-network/snrr/internal/rpc/wire"
	"github.com/session-network/snrr/internal/signer"
	"github.com/session-network/snrr/internal/snrrerr"
	"github.com/session-network/snrr/internal/transport/httpengine"
)

// publicNamespace is the only namespace a retrieve may address without
// authentication; every other namespace requires the signed form.
const publicNamespace = int64(0)

// NamespaceResult bundles one namespace's retrieved messages with the
// hash of the last one, or the error its sub-request failed with.
type NamespaceResult struct {
	Messages []model.ReceivedMessage
	LastHash string
	Err      error
}

// GetMessages issues a single batch RPC covering every namespace,
// per-namespace last-hash cursors persisted from the previous call, and
// zips sub-responses back to their namespace by index. A sub-request
// failure degrades only its own namespace.
func (c *Client) GetMessages(ctx context.Context, acct account.ID, namespaces []int64, snode model.Snode) (map[int64]NamespaceResult, error) {
	reqs := make([]wire.BatchRequest, 0, len(namespaces))
	for _, ns := range namespaces {
		ns := ns
		cursor := c.loadLastHash(ctx, acct, ns, snode)

		var params wire.RetrieveParams
		if ns == publicNamespace {
			// Namespace 0 is public: the legacy retrieve form needs no
			// signature, just the bare account pubkey.
			params = wire.RetrieveParams{Pubkey: c.signer.AccountID(), Namespace: &ns, LastHash: cursor}
		} else {
			nowMs, offsetMs := c.nowPlusOffset()
			auth, err := c.signer.Retrieve(ns, nowMs, offsetMs)
			if err != nil {
				return nil, err
			}
			params = wire.RetrieveParams{
				Pubkey: auth.Pubkey, Namespace: &ns, LastHash: cursor,
				PubkeyEd25519: auth.PubkeyEd25519, Timestamp: auth.Timestamp, Signature: auth.Signature,
			}
		}
		reqs = append(reqs, wire.BatchRequest{Method: "retrieve", Params: params})
	}

	payload, err := httpengine.EncodeJSON(wire.Envelope{Method: "batch", Params: wire.BatchParams{Requests: reqs}})
	if err != nil {
		return nil, err
	}

	body, err := c.withRetry(ctx, &acct, c.maxRetries, func(ctx context.Context) (model.Snode, []byte, error) {
		b, err := c.send(ctx, snode, "/storage_rpc/v1", payload)
		return snode, b, err
	})
	if err != nil {
		return nil, err
	}

	var entries []wire.BatchResultEntry
	if err := httpengine.DecodeJSON(body, &entries); err != nil {
		return nil, err
	}
	if len(entries) != len(namespaces) {
		return nil, snrrerr.New(snrrerr.KindInvalidJSON, "batch response length mismatch")
	}

	out := make(map[int64]NamespaceResult, len(namespaces))
	for i, ns := range namespaces {
		entry := entries[i]
		if entry.Code < 200 || entry.Code >= 300 {
			out[ns] = NamespaceResult{Err: snrrerr.HTTPStatus(entry.Code, entry.Body)}
			continue
		}
		var rr wire.RetrieveResult
		if err := json.Unmarshal(entry.Body, &rr); err != nil {
			out[ns] = NamespaceResult{Err: snrrerr.Wrap(snrrerr.KindInvalidJSON, err)}
			continue
		}
		msgs := make([]model.ReceivedMessage, 0, len(rr.Messages))
		var lastHash string
		for _, m := range rr.Messages {
			data, decErr := decodeBase64(m.Data)
			if decErr != nil {
				continue
			}
			msgs = append(msgs, model.ReceivedMessage{
				Hash: m.Hash, Ciphertext: data, TimestampMs: m.Timestamp, ExpirationMs: m.Expiration, Namespace: ns,
			})
			lastHash = m.Hash
		}
		if lastHash != "" {
			c.saveLastHash(ctx, acct, ns, snode, lastHash, 0)
		}
		out[ns] = NamespaceResult{Messages: msgs, LastHash: lastHash}
	}
	return out, nil
}

// SendMessage fans the store call out to target_snodes(account) and
// returns each snode's result independently.
func (c *Client) SendMessage(ctx context.Context, acct account.ID, ciphertext []byte, ttlMs int64, namespace *int64) (map[string]wire.StoreSwarmEntry, error) {
	targets, err := c.swarm.TargetSnodes(ctx, acct)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, snrrerr.New(snrrerr.KindInsufficientSnodes, "no target snodes available")
	}

	results := make(map[string]wire.StoreSwarmEntry)
	var firstErr error
	for _, target := range targets {
		ns := int64(0)
		if namespace != nil {
			ns = *namespace
		}
		nowMs, offsetMs := c.nowPlusOffset()
		auth, err := c.signer.Store(ns, nowMs, offsetMs)
		if err != nil {
			return nil, err
		}
		payload, err := httpengine.EncodeJSON(wire.Envelope{Method: "store", Params: wire.StoreParams{
			Pubkey: auth.Pubkey, Data: encodeBase64(ciphertext), TTL: ttlMs, Timestamp: auth.Timestamp,
			Signature: auth.Signature, Namespace: namespace,
		}})
		if err != nil {
			return nil, err
		}

		body, err := c.withRetry(ctx, &acct, c.maxRetries, func(ctx context.Context) (model.Snode, []byte, error) {
			b, err := c.send(ctx, target, "/storage_rpc/v1", payload)
			return target, b, err
		})
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		var sr wire.StoreResult
		if err := json.Unmarshal(body, &sr); err != nil {
			if firstErr == nil {
				firstErr = snrrerr.Wrap(snrrerr.KindInvalidJSON, err)
			}
			continue
		}
		for k, v := range sr.Swarm {
			results[k] = v
		}
	}
	if len(results) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

// DeleteMessages is retried across one random swarm snode per attempt.
func (c *Client) DeleteMessages(ctx context.Context, acct account.ID, hashes []string) (map[string]bool, error) {
	targets, err := c.swarm.SwarmFor(ctx, acct)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, snrrerr.New(snrrerr.KindInsufficientSnodes, "no swarm snodes available")
	}

	nowMs, offsetMs := c.nowPlusOffset()
	auth, err := c.signer.Delete(hashes, nowMs, offsetMs)
	if err != nil {
		return nil, err
	}
	payload, err := httpengine.EncodeJSON(wire.Envelope{Method: "delete", Params: wire.DeleteParams{
		Pubkey: auth.Pubkey, Messages: hashes, PubkeyEd25519: auth.PubkeyEd25519, Signature: auth.Signature,
	}})
	if err != nil {
		return nil, err
	}

	idx := rand.IntN(len(targets))
	body, err := c.withRetry(ctx, &acct, c.maxRetries, func(ctx context.Context) (model.Snode, []byte, error) {
		snode := targets[idx%len(targets)]
		idx++
		b, err := c.send(ctx, snode, "/storage_rpc/v1", payload)
		return snode, b, err
	})
	if err != nil {
		return nil, err
	}

	var dr wire.DeleteResult
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, snrrerr.Wrap(snrrerr.KindInvalidJSON, err)
	}

	confirmations, rejected := buildDeleteConfirmations(dr, hashes, targets)
	verified, err := signer.ValidateBulk(confirmations)
	if err != nil {
		return nil, err
	}
	for snodeX25519Hex, ok := range rejected {
		verified[snodeX25519Hex] = ok
	}
	return verified, nil
}

// buildDeleteConfirmations resolves each confirming snode's real
// Ed25519 key from the swarm it was dispatched against (the response
// only identifies snodes by X25519 key) and rejects any entry that
// claims to have deleted a hash outside what was requested, so a
// malicious snode can't get a signature check to vouch for an
// unrelated deletion. Rejected entries are reported false directly,
// never passed to signature validation.
func buildDeleteConfirmations(dr wire.DeleteResult, requested []string, swarm []model.Snode) ([]signer.SignedResult, map[string]bool) {
	requestedSet := make(map[string]struct{}, len(requested))
	for _, h := range requested {
		requestedSet[h] = struct{}{}
	}
	edByX25519 := make(map[string]ed25519.PublicKey, len(swarm))
	for _, s := range swarm {
		key := append(ed25519.PublicKey(nil), s.Ed25519PubKey[:]...)
		edByX25519[s.X25519Hex()] = key
	}

	out := make([]signer.SignedResult, 0, len(dr.Swarm))
	rejected := make(map[string]bool)
	for snodeX25519Hex, entry := range dr.Swarm {
		ed, ok := edByX25519[snodeX25519Hex]
		if !ok {
			continue
		}
		if !allRequested(entry.Deleted, requestedSet) {
			rejected[snodeX25519Hex] = false
			continue
		}
		out = append(out, signer.SignedResult{
			SnodeX25519Hex: snodeX25519Hex,
			SnodeEd25519:   ed,
			Canonical:      []byte(concatStrings(entry.Deleted)),
			SignatureHex:   entry.Signature,
		})
	}
	return out, rejected
}

func allRequested(deleted []string, requested map[string]struct{}) bool {
	for _, h := range deleted {
		if _, ok := requested[h]; !ok {
			return false
		}
	}
	return true
}

// UpdateExpiry signs and submits an expire call against one random
// swarm snode.
func (c *Client) UpdateExpiry(ctx context.Context, acct account.ID, hashes []string, newExpiryMs int64) (map[string]wire.ExpireSwarmEntry, error) {
	targets, err := c.swarm.SwarmFor(ctx, acct)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, snrrerr.New(snrrerr.KindInsufficientSnodes, "no swarm snodes available")
	}

	nowMs, offsetMs := c.nowPlusOffset()
	auth, err := c.signer.Expire(hashes, newExpiryMs, nowMs, offsetMs)
	if err != nil {
		return nil, err
	}
	payload, err := httpengine.EncodeJSON(wire.Envelope{Method: "expire", Params: wire.ExpireParams{
		Pubkey: auth.Pubkey, Messages: hashes, Expiry: newExpiryMs,
		PubkeyEd25519: auth.PubkeyEd25519, Signature: auth.Signature, Subkey: auth.Subkey,
	}})
	if err != nil {
		return nil, err
	}

	idx := rand.IntN(len(targets))
	body, err := c.withRetry(ctx, &acct, c.maxRetries, func(ctx context.Context) (model.Snode, []byte, error) {
		snode := targets[idx%len(targets)]
		idx++
		b, err := c.send(ctx, snode, "/storage_rpc/v1", payload)
		return snode, b, err
	})
	if err != nil {
		return nil, err
	}

	var er wire.ExpireResult
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, snrrerr.Wrap(snrrerr.KindInvalidJSON, err)
	}
	return er.Swarm, nil
}

// RevokeSubkey signs and submits a revoke_subkey call against one
// random swarm snode.
func (c *Client) RevokeSubkey(ctx context.Context, acct account.ID, subkey []byte) error {
	targets, err := c.swarm.SwarmFor(ctx, acct)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		return snrrerr.New(snrrerr.KindInsufficientSnodes, "no swarm snodes available")
	}

	nowMs, offsetMs := c.nowPlusOffset()
	auth, err := c.signer.RevokeSubkey(subkey, nowMs, offsetMs)
	if err != nil {
		return err
	}
	payload, err := httpengine.EncodeJSON(wire.Envelope{Method: "revoke_subkey", Params: wire.RevokeSubkeyParams{
		Pubkey: auth.Pubkey, RevokeSubkey: auth.Subkey, PubkeyEd25519: auth.PubkeyEd25519, Signature: auth.Signature,
	}})
	if err != nil {
		return err
	}

	idx := rand.IntN(len(targets))
	_, err = c.withRetry(ctx, &acct, c.maxRetries, func(ctx context.Context) (model.Snode, []byte, error) {
		snode := targets[idx%len(targets)]
		idx++
		b, err := c.send(ctx, snode, "/storage_rpc/v1", payload)
		return snode, b, err
	})
	return err
}

// DeleteAll first calls get_info on the chosen snode to obtain a server
// timestamp, then signs and submits the deletion bound to that
// timestamp.
func (c *Client) DeleteAll(ctx context.Context, acct account.ID, namespace *int64, beforeMs *int64) (map[string]wire.DeleteAllSwarmEntry, error) {
	targets, err := c.swarm.SwarmFor(ctx, acct)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, snrrerr.New(snrrerr.KindInsufficientSnodes, "no swarm snodes available")
	}
	chosen := targets[0]

	serverTimestampMs, err := c.GetInfo(ctx, chosen)
	if err != nil {
		return nil, err
	}

	auth, err := c.signer.DeleteAll(namespace, serverTimestampMs)
	if err != nil {
		return nil, err
	}

	method := "delete_all"
	if beforeMs != nil {
		method = "delete_all_before"
	}
	payload, err := httpengine.EncodeJSON(wire.Envelope{Method: method, Params: wire.DeleteAllParams{
		Pubkey: auth.Pubkey, Namespace: namespace, BeforeMs: beforeMs,
		PubkeyEd25519: auth.PubkeyEd25519, Timestamp: auth.Timestamp, Signature: auth.Signature,
	}})
	if err != nil {
		return nil, err
	}

	idx := 0
	body, err := c.withRetry(ctx, &acct, c.maxRetries, func(ctx context.Context) (model.Snode, []byte, error) {
		snode := targets[idx%len(targets)]
		idx++
		b, err := c.send(ctx, snode, "/storage_rpc/v1", payload)
		return snode, b, err
	})
	if err != nil {
		return nil, err
	}

	var dr wire.DeleteAllResult
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, snrrerr.Wrap(snrrerr.KindInvalidJSON, err)
	}

	canonical := signer.DeleteAllCanonical(namespace, serverTimestampMs)
	edByX25519 := make(map[string]ed25519.PublicKey, len(targets))
	for _, s := range targets {
		edByX25519[s.X25519Hex()] = append(ed25519.PublicKey(nil), s.Ed25519PubKey[:]...)
	}
	confirmations := make([]signer.SignedResult, 0, len(dr.Swarm))
	for snodeX25519Hex, entry := range dr.Swarm {
		ed, ok := edByX25519[snodeX25519Hex]
		if !ok || !entry.Deleted {
			continue
		}
		confirmations = append(confirmations, signer.SignedResult{
			SnodeX25519Hex: snodeX25519Hex,
			SnodeEd25519:   ed,
			Canonical:      canonical,
			SignatureHex:   entry.Signature,
		})
	}
	verified, err := signer.ValidateBulk(confirmations)
	if err != nil {
		return nil, err
	}
	for snodeX25519Hex, entry := range dr.Swarm {
		if !verified[snodeX25519Hex] {
			entry.Deleted = false
			dr.Swarm[snodeX25519Hex] = entry
		}
	}
	return dr.Swarm, nil
}

// ResolveONS hashes the lowercased name, queries three distinct random
// snodes, and fails unless all three return the same encrypted_value
// (unanimity, not majority). It returns that encrypted value as
// received; it does not decrypt it to a session id.
func (c *Client) ResolveONS(ctx context.Context, name string) (string, error) {
	nameHash, err := signer.HashONSName(lower(name))
	if err != nil {
		return "", err
	}

	snodes, err := c.pool.RandomSnodes(3)
	if err != nil {
		return "", err
	}

	payload, err := httpengine.EncodeJSON(wire.Envelope{Method: "oxend_request", Params: map[string]interface{}{
		"endpoint": "ons_resolve",
		"params":   wire.OnsResolveParams{Type: 0, NameHash: nameHash},
	}})
	if err != nil {
		return "", err
	}

	var results []string
	for _, snode := range snodes {
		body, err := c.withRetry(ctx, nil, c.maxRetries, func(ctx context.Context) (model.Snode, []byte, error) {
			b, err := c.send(ctx, snode, "/storage_rpc/v1", payload)
			return snode, b, err
		})
		if err != nil {
			return "", err
		}
		var or wire.OnsResolveResult
		if err := json.Unmarshal(body, &or); err != nil {
			return "", snrrerr.Wrap(snrrerr.KindInvalidJSON, err)
		}
		results = append(results, or.Result.Encrypted)
	}

	if len(results) != 3 {
		return "", snrrerr.New(snrrerr.KindInsufficientSnodes, "ons_resolve did not reach three snodes")
	}
	if results[0] != results[1] || results[1] != results[2] {
		return "", snrrerr.New(snrrerr.KindInconsistentSnodePools, "ons_resolve results disagree across snodes")
	}
	return results[0], nil
}

// GetSwarm is a thin pass-through to the swarm resolver, kept on the
// RPC surface alongside the mutating operations.
func (c *Client) GetSwarm(ctx context.Context, acct account.ID) ([]model.Snode, error) {
	return c.swarm.SwarmFor(ctx, acct)
}

// GetInfo fetches a snode's server timestamp, updating clock offset and
// fork counters as a side effect of the accounting pass.
func (c *Client) GetInfo(ctx context.Context, snode model.Snode) (int64, error) {
	payload, err := httpengine.EncodeJSON(wire.Envelope{Method: "info", Params: map[string]interface{}{}})
	if err != nil {
		return 0, err
	}
	body, err := c.withRetry(ctx, nil, c.maxRetries, func(ctx context.Context) (model.Snode, []byte, error) {
		b, err := c.send(ctx, snode, "/storage_rpc/v1", payload)
		return snode, b, err
	})
	if err != nil {
		return 0, err
	}
	var gi wire.GetInfoResult
	if err := json.Unmarshal(body, &gi); err != nil {
		return 0, snrrerr.Wrap(snrrerr.KindInvalidJSON, err)
	}
	return gi.Timestamp, nil
}

func (c *Client) loadLastHash(ctx context.Context, acct account.ID, ns int64, snode model.Snode) string {
	raw, ok, err := c.store.Get(ctx, persistence.LastHashKey(acct.String(), fmt.Sprint(ns), snode.Key()))
	if err != nil || !ok {
		return ""
	}
	var lh model.LastHash
	if err := json.Unmarshal(raw, &lh); err != nil {
		return ""
	}
	if lh.Expired(nowMsPure()) {
		return ""
	}
	return lh.Hash
}

func (c *Client) saveLastHash(ctx context.Context, acct account.ID, ns int64, snode model.Snode, hash string, expirationMs int64) {
	lh := model.LastHash{Hash: hash, ExpirationMs: expirationMs}
	data, err := json.Marshal(lh)
	if err != nil {
		return
	}
	_ = c.store.Put(ctx, persistence.LastHashKey(acct.String(), fmt.Sprint(ns), snode.Key()), data)
}

func concatStrings(in []string) string {
	total := 0
	for _, s := range in {
		total += len(s)
	}
	buf := make([]byte, 0, total)
	for _, s := range in {
		buf = append(buf, s...)
	}
	return string(buf)
}

func lower(s string) string {
	out := []byte(s)
	for i, b := range out {
		if b >= 'A' && b <= 'Z' {
			out[i] = b + ('a' - 'A')
		}
	}
	return string(out)
}

func decodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, snrrerr.Wrap(snrrerr.KindInvalidJSON, err)
	}
	return data, nil
}

func encodeBase64(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

func nowMsPure() int64 {
	return time.Now().UnixMilli()
}
