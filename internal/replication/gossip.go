package replication

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"glyph/internal/ledger"
	"glyph/internal/receipt"
)

// GossipTimeout bounds every outbound peer gossip call.
const GossipTimeout = 5 * time.Second

// Gossiper sends and accepts receipt and mint-proposal gossip between
// gateways.
type Gossiper struct {
	ledger *ledger.Ledger
	client *http.Client
	log    *logrus.Logger
}

// NewGossiper builds a Gossiper bound to a ledger for accept-side writes.
func NewGossiper(l *ledger.Ledger, log *logrus.Logger) *Gossiper {
	if log == nil {
		log = logrus.New()
	}
	return &Gossiper{
		ledger: l,
		client: &http.Client{Timeout: GossipTimeout},
		log:    log,
	}
}

// BroadcastReceipt fans a receipt out to every peer's /gossip/receipts,
// best-effort: failures are logged, never returned.
func (g *Gossiper) BroadcastReceipt(ctx context.Context, peers []string, r *receipt.Receipt) {
	if len(peers) == 0 {
		return
	}
	body, err := json.Marshal([]*receipt.Receipt{r})
	if err != nil {
		g.log.WithError(err).Warn("replication: marshal receipt for gossip")
		return
	}
	for _, peer := range peers {
		go g.post(ctx, peer+"/gossip/receipts", body)
	}
}

func (g *Gossiper) post(ctx context.Context, url string, body []byte) {
	ctx, cancel := context.WithTimeout(ctx, GossipTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		g.log.WithError(err).WithField("url", url).Warn("replication: build gossip request")
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		g.log.WithError(err).WithField("url", url).Warn("replication: gossip to peer")
		return
	}
	resp.Body.Close()
}

// AcceptReceipts implements the accept side of /gossip/receipts: verify
// each receipt's signatures, then ledger.Add; invalid entries are dropped
// silently. Returns the count of receipts newly added to the ledger, so
// re-gossiping a known receipt never inflates the accepted total.
func (g *Gossiper) AcceptReceipts(receipts []*receipt.Receipt) int {
	accepted := 0
	for _, r := range receipts {
		if r == nil || !r.Verify() {
			continue
		}
		added, err := g.ledger.Add(r)
		if err != nil {
			g.log.WithError(err).WithField("receipt_id", r.ReceiptID()).Debug("replication: rejected gossiped receipt")
			continue
		}
		if added {
			accepted++
		}
	}
	return accepted
}

// MintProposal is one pending mint proposal, exchanged over
// /mint/propose_psbt and /gossip/mint_proposals.
type MintProposal struct {
	ID              string   `json:"id"`
	EpochID         string   `json:"epoch_id"`
	EpochRoot       string   `json:"epoch_root"`
	PSBTBase64      string   `json:"psbt_base64"`
	ProposerPubkey  string   `json:"proposer_pubkey"`
	SignerPubkeys   []string `json:"signer_pubkeys,omitempty"`
	Signatures      []string `json:"signatures,omitempty"`
}

// BroadcastMintProposal fans a proposal out to every peer's
// /gossip/mint_proposals, best-effort like BroadcastReceipt.
func (g *Gossiper) BroadcastMintProposal(ctx context.Context, peers []string, p *MintProposal) {
	if len(peers) == 0 {
		return
	}
	body, err := json.Marshal([]*MintProposal{p})
	if err != nil {
		g.log.WithError(err).Warn("replication: marshal mint proposal for gossip")
		return
	}
	for _, peer := range peers {
		go g.post(ctx, peer+"/gossip/mint_proposals", body)
	}
}

// AcceptMintProposals implements the accept side of
// /gossip/mint_proposals: a proposal is accepted only if its epoch_id
// exists locally and its epoch_root matches the local snapshot's root;
// duplicates by id are ignored against the supplied existing set.
func (g *Gossiper) AcceptMintProposals(existing map[string]*MintProposal, proposals []*MintProposal) int {
	accepted := 0
	for _, p := range proposals {
		if p == nil || p.ID == "" {
			continue
		}
		if _, dup := existing[p.ID]; dup {
			continue
		}
		snap, err := g.ledger.GetEpoch(p.EpochID)
		if err != nil {
			continue
		}
		if snap.Root != p.EpochRoot {
			continue
		}
		existing[p.ID] = p
		accepted++
	}
	return accepted
}
