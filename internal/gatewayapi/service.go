// Package gatewayapi exposes the gateway's full HTTP surface over the
// dispatch, pricing, ledger, epoch, quorum, minter, and replication
// components, layered as controllers over a transport-neutral service.
package gatewayapi

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"glyph/internal/dispatch"
	"glyph/internal/epoch"
	"glyph/internal/glypherr"
	"glyph/internal/identity"
	"glyph/internal/ledger"
	"glyph/internal/minter"
	"glyph/internal/payout"
	"glyph/internal/pricing"
	"glyph/internal/quorum"
	"glyph/internal/receipt"
	"glyph/internal/registry"
	"glyph/internal/replication"
)

// Service holds every gateway dependency a handler needs and exposes one
// method per HTTP operation, independent of HTTP framing.
type Service struct {
	ID         *identity.Identity
	Registry   *registry.Registry
	Ledger     *ledger.Ledger
	Pricer     *pricing.Quoter
	Dispatcher *dispatch.Dispatcher
	Epoch      *epoch.Engine
	Quorum     *quorum.Checker
	Minter     *minter.Glue
	Peers      *replication.Peers
	Gossip     *replication.Gossiper
	DHT        *replication.DHTPublisher
	Proposals  *replication.ProposalStore
	Log        *logrus.Logger
}

// Register implements POST /register.
func (s *Service) Register(publicName, nodeURL, nodePubkey string) {
	s.Registry.Register(nodePubkey, publicName, nodeURL)
}

// AddPeer implements POST /add_peer.
func (s *Service) AddPeer(url string) []string {
	return s.Peers.Add(url)
}

// ListPeers implements GET /peers.
func (s *Service) ListPeers() []string {
	return s.Peers.List()
}

// Quote implements POST /price/quote.
func (s *Service) Quote(inputTokens, outputTokens, wallTimeMS int64) pricing.Quote {
	return s.Pricer.Quote(inputTokens, outputTokens, wallTimeMS)
}

// SetEthAddress implements POST /set_eth_address.
func (s *Service) SetEthAddress(nodePubkey, ethAddress string) error {
	return s.Ledger.SetNodeAddress(nodePubkey, ethAddress)
}

// Infer implements POST /inference.
func (s *Service) Infer(ctx context.Context, req dispatch.Request) (*dispatch.Response, error) {
	return s.Dispatcher.Infer(ctx, req)
}

// Receipts implements GET /receipts.
func (s *Service) Receipts() ([]ledger.Row, error) {
	return s.Ledger.List()
}

// PullReceipts implements GET /pull/receipts.
func (s *Service) PullReceipts(since int64, limit int) ([]ledger.Row, error) {
	return s.Ledger.ListSince(since, limit)
}

// NodeView is one entry of GET /nodes.
type NodeView struct {
	Pubkey        string `json:"node_pubkey"`
	Name          string `json:"name"`
	URL           string `json:"url"`
	HasEthAddress bool   `json:"has_eth_address"`
	EthAddress    string `json:"eth_address,omitempty"`
}

// Nodes implements GET /nodes.
func (s *Service) Nodes() ([]NodeView, error) {
	addrs, err := s.Ledger.AllNodeAddresses()
	if err != nil {
		return nil, err
	}
	var out []NodeView
	for _, n := range s.Registry.List() {
		addr, ok := addrs[n.Pubkey]
		out = append(out, NodeView{
			Pubkey:        n.Pubkey,
			Name:          n.Name,
			URL:           n.URL,
			HasEthAddress: ok,
			EthAddress:    addr,
		})
	}
	return out, nil
}

// SettleEpoch implements POST /epoch/settle.
func (s *Service) SettleEpoch(plan epoch.Plan) (*ledger.Snapshot, error) {
	return s.Epoch.Settle(plan)
}

// SignEpoch implements POST /epoch/sign.
func (s *Service) SignEpoch(epochID, validatorPubkey, signature string) (map[string]string, int, error) {
	return s.Epoch.Sign(epochID, validatorPubkey, signature)
}

// EpochStatus implements GET /epoch/status/{id}.
func (s *Service) EpochStatus(epochID string) (*ledger.Snapshot, map[string]string, int, error) {
	return s.Epoch.Status(epochID)
}

// GossipReceipts implements POST /gossip/receipts.
func (s *Service) GossipReceipts(receipts []*receipt.Receipt) int {
	return s.Gossip.AcceptReceipts(receipts)
}

// AddValidator implements POST /validators/add.
func (s *Service) AddValidator(pubkey string, weight float64) ([]ledger.Validator, error) {
	if err := s.Ledger.AddValidator(pubkey, weight); err != nil {
		return nil, err
	}
	return s.Ledger.ListValidators()
}

// RemoveValidator implements POST /validators/remove.
func (s *Service) RemoveValidator(pubkey string) ([]ledger.Validator, error) {
	if err := s.Ledger.RemoveValidator(pubkey); err != nil {
		return nil, err
	}
	return s.Ledger.ListValidators()
}

// ValidateQuality implements POST /validate/quality.
func (s *Service) ValidateQuality(receiptID, nodePubkey string, score float64) error {
	if score < 0 || score > 1 {
		return glypherr.ErrOutOfRange
	}
	return s.Ledger.RecordQuality(receiptID, nodePubkey, score)
}

// TokenConfig is the shape served and accepted by GET/POST /config/token.
type TokenConfig struct {
	TokenAddress string `json:"token_address"`
	Network      string `json:"network"`
	RPCURL       string `json:"rpc_url,omitempty"`
}

// GetTokenConfig implements GET /config/token.
func (s *Service) GetTokenConfig() (TokenConfig, error) {
	var cfg TokenConfig
	addr, _, err := s.Ledger.GetSetting("token_address")
	if err != nil {
		return cfg, err
	}
	network, _, err := s.Ledger.GetSetting("token_network")
	if err != nil {
		return cfg, err
	}
	rpc, _, err := s.Ledger.GetSetting("rpc_url")
	if err != nil {
		return cfg, err
	}
	cfg.TokenAddress = addr
	cfg.Network = network
	cfg.RPCURL = rpc
	return cfg, nil
}

// SetTokenConfig implements POST /config/token.
func (s *Service) SetTokenConfig(cfg TokenConfig) error {
	if !payout.ValidAddress(cfg.TokenAddress) {
		return glypherr.ErrInvalidAddress
	}
	if err := s.Ledger.SetSetting("token_address", cfg.TokenAddress); err != nil {
		return err
	}
	if err := s.Ledger.SetSetting("token_network", cfg.Network); err != nil {
		return err
	}
	if cfg.RPCURL != "" {
		if err := s.Ledger.SetSetting("rpc_url", cfg.RPCURL); err != nil {
			return err
		}
	}
	return nil
}

// MintPreview implements POST /mint/preview.
func (s *Service) MintPreview(epochID string) ([]minter.Payee, error) {
	return s.Minter.Preview(epochID)
}

// MintAnchor implements POST /mint/anchor.
func (s *Service) MintAnchor(epochID, txid string) error {
	return s.Minter.Anchor(epochID, txid)
}

// MintExecute implements POST /mint/execute. A real (non-dry-run)
// execute requires the epoch to be mint-eligible: threshold-many distinct
// valid validator signatures must already be recorded.
func (s *Service) MintExecute(ctx context.Context, epochID string, dryRun bool) (string, error) {
	if !dryRun {
		eligible, count, threshold, err := s.Quorum.Eligible(epochID)
		if err != nil {
			return "", err
		}
		if !eligible {
			return "", fmt.Errorf("mint: epoch %s not mint-eligible: %d/%d validator signatures", epochID, count, threshold)
		}
	}
	return s.Minter.Execute(ctx, epochID, dryRun)
}

// TokenSupply implements GET /token/supply, a read-only passthrough to
// the external minter collaborator.
func (s *Service) TokenSupply(ctx context.Context) (string, error) {
	return s.Minter.TokenSupply(ctx)
}

// ProposePSBT implements POST /mint/propose_psbt.
func (s *Service) ProposePSBT(epochID, epochRoot, psbtBase64, proposerPubkey string, nextID string) (*replication.MintProposal, error) {
	snap, err := s.Ledger.GetEpoch(epochID)
	if err != nil {
		return nil, err
	}
	if snap.Root != epochRoot {
		return nil, glypherr.New(glypherr.KindBadSignature, "epoch_root does not match local snapshot")
	}
	p := &replication.MintProposal{
		EpochID:        epochID,
		EpochRoot:      epochRoot,
		PSBTBase64:     psbtBase64,
		ProposerPubkey: proposerPubkey,
	}
	s.Proposals.Put(p, nextID)
	go s.Gossip.BroadcastMintProposal(context.Background(), s.Peers.List(), p)
	return p, nil
}

// SubmitSignature implements POST /mint/submit_signature.
func (s *Service) SubmitSignature(proposalID, signerPubkey, signature string) (int, error) {
	return s.Proposals.AddSignature(proposalID, signerPubkey, signature)
}

// MintProposals implements GET /mint/proposals.
func (s *Service) MintProposals() []*replication.MintProposal {
	return s.Proposals.List()
}

// GossipMintProposals implements POST /gossip/mint_proposals.
func (s *Service) GossipMintProposals(proposals []*replication.MintProposal) int {
	existing := s.Proposals.Snapshot()
	accepted := s.Gossip.AcceptMintProposals(existing, proposals)
	s.Proposals.Merge(existing)
	return accepted
}
