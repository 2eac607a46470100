// Package receipt implements the two-party signed record of a single
// inference: construction, canonical serialization, signing, and
// verification. The canonical payload is the linchpin of cross-party
// signatures: it must be byte-identical regardless of struct field order
// or serialization path.
package receipt

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"glyph/internal/identity"
)

// Receipt is the immutable, two-party signed record of one inference.
type Receipt struct {
	GatewayPubkey string `json:"gateway_pubkey"`
	NodePubkey    string `json:"node_pubkey"`
	SessionID     string `json:"session_id"`
	Route         string `json:"route"`
	InputTokens   int64  `json:"input_tokens"`
	OutputTokens  int64  `json:"output_tokens"`
	WallTimeMS    int64  `json:"wall_time_ms"`
	CreatedAt     int64  `json:"created_at"`

	GatewaySig string `json:"gateway_sig,omitempty"`
	NodeSig    string `json:"node_sig,omitempty"`
}

// New constructs a receipt with all non-signature fields filled in.
// created_at is set to the current wall-clock second.
func New(gatewayPubkey, nodePubkey, sessionID, route string, inputTokens, outputTokens, wallTimeMS int64) *Receipt {
	return &Receipt{
		GatewayPubkey: gatewayPubkey,
		NodePubkey:    nodePubkey,
		SessionID:     sessionID,
		Route:         route,
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		WallTimeMS:    wallTimeMS,
		CreatedAt:     time.Now().Unix(),
	}
}

// CanonicalPayload produces the deterministic byte form of every field
// except the two signatures: keys sorted, no insignificant whitespace,
// numeric types preserved. Encoding a map[string]interface{} relies on
// encoding/json always emitting object keys in sorted order, which is
// guaranteed by the standard library regardless of how the receipt's
// fields were originally populated.
func (r *Receipt) CanonicalPayload() []byte {
	m := map[string]interface{}{
		"gateway_pubkey": r.GatewayPubkey,
		"node_pubkey":    r.NodePubkey,
		"session_id":     r.SessionID,
		"route":          r.Route,
		"input_tokens":   r.InputTokens,
		"output_tokens":  r.OutputTokens,
		"wall_time_ms":   r.WallTimeMS,
		"created_at":     r.CreatedAt,
	}
	b, err := json.Marshal(m)
	if err != nil {
		// Every field above is a plain string or int64; Marshal cannot fail.
		panic(fmt.Sprintf("receipt: canonical payload marshal: %v", err))
	}
	return b
}

// ReceiptID computes the SHA-256 hash of the canonical payload, hex-encoded.
func (r *Receipt) ReceiptID() string {
	sum := sha256.Sum256(r.CanonicalPayload())
	return hex.EncodeToString(sum[:])
}

// SignGateway attaches the gateway's signature over the canonical payload.
func (r *Receipt) SignGateway(priv ed25519.PrivateKey) {
	r.GatewaySig = identity.Sign(priv, r.CanonicalPayload())
}

// SignNode attaches the node's countersignature over the canonical payload.
func (r *Receipt) SignNode(priv ed25519.PrivateKey) {
	r.NodeSig = identity.Sign(priv, r.CanonicalPayload())
}

// Verify requires both signatures to be present and valid over the
// canonical payload under their respective pubkeys.
func (r *Receipt) Verify() bool {
	if r.GatewaySig == "" || r.NodeSig == "" {
		return false
	}
	payload := r.CanonicalPayload()
	if !identity.Verify(r.GatewayPubkey, payload, r.GatewaySig) {
		return false
	}
	return identity.Verify(r.NodePubkey, payload, r.NodeSig)
}
