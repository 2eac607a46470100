package gatewayapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"glyph/internal/dispatch"
	"glyph/internal/epoch"
	"glyph/internal/glypherr"
	"glyph/internal/ledger"
	"glyph/internal/receipt"
	"glyph/internal/replication"
)

// Controller adapts Service methods onto net/http handlers.
type Controller struct {
	svc *Service
}

// NewController builds a Controller.
func NewController(svc *Service) *Controller {
	return &Controller{svc: svc}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := glypherr.HTTPStatus(glypherr.KindOf(err))
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// Register handles POST /register.
func (c *Controller) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PublicName string `json:"public_name"`
		NodeURL    string `json:"node_url"`
		NodePubkey string `json:"node_pubkey"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	c.svc.Register(req.PublicName, req.NodeURL, req.NodePubkey)
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// AddPeer handles POST /add_peer?url=.
func (c *Controller) AddPeer(w http.ResponseWriter, r *http.Request) {
	url := r.URL.Query().Get("url")
	peers := c.svc.AddPeer(url)
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "peers": peers})
}

// ListPeers handles GET /peers.
func (c *Controller) ListPeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.svc.ListPeers())
}

// PriceQuote handles POST /price/quote.
func (c *Controller) PriceQuote(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InputTokens  int64 `json:"input_tokens"`
		OutputTokens int64 `json:"output_tokens"`
		WallTimeMS   int64 `json:"wall_time_ms"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, c.svc.Quote(req.InputTokens, req.OutputTokens, req.WallTimeMS))
}

// SetEthAddress handles POST /set_eth_address.
func (c *Controller) SetEthAddress(w http.ResponseWriter, r *http.Request) {
	var req struct {
		NodePubkey string `json:"node_pubkey"`
		EthAddress string `json:"eth_address"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := c.svc.SetEthAddress(req.NodePubkey, req.EthAddress); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// Inference handles POST /inference.
func (c *Controller) Inference(w http.ResponseWriter, r *http.Request) {
	var req dispatch.Request
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	resp, err := c.svc.Infer(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Receipts handles GET /receipts.
func (c *Controller) Receipts(w http.ResponseWriter, r *http.Request) {
	rows, err := c.svc.Receipts()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceipts(rows))
}

// PullReceipts handles GET /pull/receipts?since=&limit=200.
func (c *Controller) PullReceipts(w http.ResponseWriter, r *http.Request) {
	since := queryInt64(r, "since", 0)
	limit := int(queryInt64(r, "limit", 200))
	rows, err := c.svc.PullReceipts(since, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceipts(rows))
}

func toReceipts(rows []ledger.Row) []*receipt.Receipt {
	out := make([]*receipt.Receipt, 0, len(rows))
	for _, row := range rows {
		r := row.Receipt
		out = append(out, &r)
	}
	return out
}

// Nodes handles GET /nodes.
func (c *Controller) Nodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := c.svc.Nodes()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

// EpochSettle handles POST /epoch/settle.
func (c *Controller) EpochSettle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TokenTicker string `json:"token_ticker"`
		TotalAmount int64  `json:"total_amount"`
		StartTime   int64  `json:"start_time,omitempty"`
		EndTime     int64  `json:"end_time,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	snap, err := c.svc.SettleEpoch(epoch.Plan{
		TokenTicker: req.TokenTicker,
		TotalAmount: req.TotalAmount,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	if err != nil {
		if err == glypherr.ErrEmptyEpoch {
			writeJSON(w, http.StatusOK, map[string]string{"error": "no receipts"})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// EpochSign handles POST /epoch/sign.
func (c *Controller) EpochSign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EpochID         string `json:"epoch_id"`
		ValidatorPubkey string `json:"validator_pubkey"`
		Signature       string `json:"signature"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	sigs, threshold, err := c.svc.SignEpoch(req.EpochID, req.ValidatorPubkey, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "signatures": sigs, "quorum": threshold})
}

// EpochStatus handles GET /epoch/status/{id}.
func (c *Controller) EpochStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	snap, sigs, threshold, err := c.svc.EpochStatus(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"snapshot": snap, "signatures": sigs, "quorum": threshold})
}

// GossipReceipts handles POST /gossip/receipts.
func (c *Controller) GossipReceipts(w http.ResponseWriter, r *http.Request) {
	var receipts []*receipt.Receipt
	if err := decodeJSON(r, &receipts); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	accepted := c.svc.GossipReceipts(receipts)
	writeJSON(w, http.StatusOK, map[string]int{"accepted": accepted})
}

// AddValidator handles POST /validators/add.
func (c *Controller) AddValidator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pubkey string  `json:"pubkey"`
		Weight float64 `json:"weight,omitempty"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	validators, err := c.svc.AddValidator(req.Pubkey, req.Weight)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "validators": validators})
}

// RemoveValidator handles POST /validators/remove.
func (c *Controller) RemoveValidator(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pubkey string `json:"pubkey"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	validators, err := c.svc.RemoveValidator(req.Pubkey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "validators": validators})
}

// ValidateQuality handles POST /validate/quality.
func (c *Controller) ValidateQuality(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ReceiptID  string  `json:"receipt_id"`
		NodePubkey string  `json:"node_pubkey"`
		Score      float64 `json:"score"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := c.svc.ValidateQuality(req.ReceiptID, req.NodePubkey, req.Score); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// ConfigToken handles GET and POST /config/token.
func (c *Controller) ConfigToken(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		cfg, err := c.svc.GetTokenConfig()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
		return
	}
	var cfg TokenConfig
	if err := decodeJSON(r, &cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := c.svc.SetTokenConfig(cfg); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// MintPreview handles POST /mint/preview.
func (c *Controller) MintPreview(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EpochID string `json:"epoch_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	payees, err := c.svc.MintPreview(req.EpochID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payees)
}

// MintAnchor handles POST /mint/anchor.
func (c *Controller) MintAnchor(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EpochID string `json:"epoch_id"`
		TxID    string `json:"txid"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := c.svc.MintAnchor(req.EpochID, req.TxID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// MintExecute handles POST /mint/execute.
func (c *Controller) MintExecute(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EpochID string `json:"epoch_id"`
		DryRun  bool   `json:"dry_run"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	txid, err := c.svc.MintExecute(r.Context(), req.EpochID, req.DryRun)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"txid": txid})
}

// TokenSupply handles GET /token/supply.
func (c *Controller) TokenSupply(w http.ResponseWriter, r *http.Request) {
	supply, err := c.svc.TokenSupply(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"total_supply": supply})
}

// ProposePSBT handles POST /mint/propose_psbt.
func (c *Controller) ProposePSBT(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EpochID        string `json:"epoch_id"`
		EpochRoot      string `json:"epoch_root"`
		PSBTBase64     string `json:"psbt_base64"`
		ProposerPubkey string `json:"proposer_pubkey"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	p, err := c.svc.ProposePSBT(req.EpochID, req.EpochRoot, req.PSBTBase64, req.ProposerPubkey, uuid.NewString())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "proposal_id": p.ID})
}

// SubmitSignature handles POST /mint/submit_signature.
func (c *Controller) SubmitSignature(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProposalID   string `json:"proposal_id"`
		SignerPubkey string `json:"signer_pubkey"`
		Signature    string `json:"signature"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	n, err := c.svc.SubmitSignature(req.ProposalID, req.SignerPubkey, req.Signature)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "num_signatures": n})
}

// MintProposals handles GET /mint/proposals.
func (c *Controller) MintProposals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, c.svc.MintProposals())
}

// GossipMintProposals handles POST /gossip/mint_proposals.
func (c *Controller) GossipMintProposals(w http.ResponseWriter, r *http.Request) {
	var proposals []*replication.MintProposal
	if err := decodeJSON(r, &proposals); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	accepted := c.svc.GossipMintProposals(proposals)
	writeJSON(w, http.StatusOK, map[string]int{"accepted": accepted})
}

func queryInt64(r *http.Request, key string, fallback int64) int64 {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fallback
	}
	return v
}
