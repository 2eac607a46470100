// Package dispatch implements the gateway's /inference pipeline:
// round-robin node selection, node call, pricing and debit-before-commit,
// receipt construction and countersignature round-trip, ledger commit,
// and best-effort fan-out.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"glyph/internal/glypherr"
	"glyph/internal/identity"
	"glyph/internal/ledger"
	"glyph/internal/pricing"
	"glyph/internal/receipt"
	"glyph/internal/registry"
	"glyph/internal/replication"
)

// Timeouts for the two node round-trips.
const (
	GenerateTimeout    = 60 * time.Second
	CountersignTimeout = 30 * time.Second
)

// Request is the client-facing /inference request body.
type Request struct {
	Prompt       string  `json:"prompt"`
	MaxNewTokens int     `json:"max_new_tokens,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	UserPubkey   string  `json:"user_pubkey,omitempty"`
}

// Response is the client-facing /inference response body.
type Response struct {
	Text string `json:"text"`
}

// generateRequest is posted to a node's /generate.
type generateRequest struct {
	Prompt       string  `json:"prompt"`
	MaxNewTokens int     `json:"max_new_tokens"`
	Temperature  float64 `json:"temperature"`
}

// generateResult is a node's /generate response.
type generateResult struct {
	Text         string `json:"text"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	WallTimeMS   int64  `json:"wall_time_ms"`
}

// signReceiptResponse is a node's /sign_receipt response.
type signReceiptResponse struct {
	NodeSig string `json:"node_sig"`
}

// Dispatcher wires the registry, ledger, pricing, identity, and
// replication fan-out together into the full inference pipeline.
type Dispatcher struct {
	registry *registry.Registry
	ledger   *ledger.Ledger
	pricer   *pricing.Quoter
	id       *identity.Identity
	peers    *replication.Peers
	gossip   *replication.Gossiper
	dhtPub   *replication.DHTPublisher
	client   *http.Client
	log      *logrus.Logger
}

// New builds a Dispatcher.
func New(
	reg *registry.Registry,
	l *ledger.Ledger,
	pricer *pricing.Quoter,
	id *identity.Identity,
	peers *replication.Peers,
	gossip *replication.Gossiper,
	dhtPub *replication.DHTPublisher,
	log *logrus.Logger,
) *Dispatcher {
	if log == nil {
		log = logrus.New()
	}
	return &Dispatcher{
		registry: reg,
		ledger:   l,
		pricer:   pricer,
		id:       id,
		peers:    peers,
		gossip:   gossip,
		dhtPub:   dhtPub,
		client:   &http.Client{},
		log:      log,
	}
}

// Infer runs the full /inference pipeline.
func (d *Dispatcher) Infer(ctx context.Context, req Request) (*Response, error) {
	node, err := d.registry.Next()
	if err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()

	maxNewTokens := req.MaxNewTokens
	if maxNewTokens == 0 {
		maxNewTokens = 256
	}
	temperature := req.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	gen, err := d.callGenerate(ctx, node.URL, generateRequest{
		Prompt:       req.Prompt,
		MaxNewTokens: maxNewTokens,
		Temperature:  temperature,
	})
	if err != nil {
		return nil, glypherr.Wrap(glypherr.KindUpstreamNodeError, "node generate failed", err)
	}

	if req.UserPubkey != "" {
		quote := d.pricer.Quote(gen.InputTokens, gen.OutputTokens, gen.WallTimeMS)
		if err := d.ledger.Debit(req.UserPubkey, quote.MilliGlyph, "inference", sessionID); err != nil {
			if err == glypherr.ErrInsufficientBalance {
				return nil, glypherr.ErrInsufficientBalance
			}
			return nil, fmt.Errorf("dispatch: debit: %w", err)
		}
	}

	r := receipt.New(d.id.PublicKeyB64(), node.Pubkey, sessionID, "/inference", gen.InputTokens, gen.OutputTokens, gen.WallTimeMS)
	r.SignGateway(d.id.Private)

	nodeSig, err := d.callSignReceipt(ctx, node.URL, r)
	if err != nil {
		return nil, glypherr.Wrap(glypherr.KindBadCountersignature, "countersign round-trip failed", err)
	}
	r.NodeSig = nodeSig
	if !r.Verify() {
		return nil, glypherr.ErrBadCountersignature
	}

	if _, err := d.ledger.Add(r); err != nil {
		return nil, fmt.Errorf("dispatch: ledger add: %w", err)
	}

	d.fanOut(ctx, r)

	return &Response{Text: gen.Text}, nil
}

func (d *Dispatcher) callGenerate(ctx context.Context, nodeURL string, body generateRequest) (*generateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, GenerateTimeout)
	defer cancel()

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, nodeURL+"/generate", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("node returned status %d", resp.StatusCode)
	}

	var out generateResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode generate response: %w", err)
	}
	return &out, nil
}

func (d *Dispatcher) callSignReceipt(ctx context.Context, nodeURL string, r *receipt.Receipt) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, CountersignTimeout)
	defer cancel()

	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("marshal receipt for countersign: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, nodeURL+"/sign_receipt", bytes.NewReader(raw))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("node returned status %d", resp.StatusCode)
	}

	var out signReceiptResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode sign_receipt response: %w", err)
	}
	return out.NodeSig, nil
}

// fanOut performs the three best-effort publishes that follow a committed
// receipt: price ask, DHT receipt head, and peer gossip. None may block
// the client response or propagate an error.
func (d *Dispatcher) fanOut(_ context.Context, r *receipt.Receipt) {
	// Detached from the inbound request context: these publishes must
	// outlive the HTTP response that triggered them.
	bg := context.Background()
	go func() {
		defer func() { recover() }()
		d.pricer.PublishAsk(d.id.PublicKeyB64(), pricing.BaseRate, time.Now())
	}()
	go func() {
		defer func() { recover() }()
		d.dhtPub.PublishReceipt(r)
	}()
	go func() {
		defer func() { recover() }()
		d.gossip.BroadcastReceipt(bg, d.peers.List(), r)
	}()
}
