// Package minter implements the gateway-side glue around an external
// minter collaborator: selecting payouts from a stored epoch snapshot,
// recording the on-chain anchor transaction id, and delegating
// preview/execute calls to the external signer.
package minter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"glyph/internal/glypherr"
	"glyph/internal/ledger"
)

// ExecuteTimeout bounds the call to the external minter.
const ExecuteTimeout = 30 * time.Second

// Payee is one strictly-positive payout entry selected for minting.
type Payee struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// Glue wires the ledger's epoch state machine to an external minter
// endpoint over HTTP.
type Glue struct {
	ledger    *ledger.Ledger
	minterURL string
	client    *http.Client
	log       *logrus.Logger
}

// New builds a Glue. minterURL may be empty if execute() is never called.
func New(l *ledger.Ledger, minterURL string, log *logrus.Logger) *Glue {
	if log == nil {
		log = logrus.New()
	}
	return &Glue{
		ledger:    l,
		minterURL: minterURL,
		client:    &http.Client{Timeout: ExecuteTimeout},
		log:       log,
	}
}

// SelectPayouts returns every payout with a strictly-positive amount from
// the snapshot identified by epochID.
func (g *Glue) SelectPayouts(epochID string) ([]Payee, error) {
	snap, err := g.ledger.GetEpoch(epochID)
	if err != nil {
		return nil, err
	}
	var out []Payee
	for _, p := range snap.Payouts {
		if p.Amount <= 0 {
			continue
		}
		out = append(out, Payee{Address: p.EthAddress, Amount: p.Amount})
	}
	return out, nil
}

// Preview returns the payout selection without mutating any state; it is
// the read-only counterpart to Execute.
func (g *Glue) Preview(epochID string) ([]Payee, error) {
	return g.SelectPayouts(epochID)
}

// Anchor requires the snapshot to already exist; it records the external
// mint transaction id and finalizes the epoch. Epoch transitions are
// monotonic: Created -> Signed -> Anchored -> Finalized, never backward.
func (g *Glue) Anchor(epochID, txid string) error {
	if _, err := g.ledger.GetEpoch(epochID); err != nil {
		return err
	}
	return g.ledger.SetAnchor(epochID, txid)
}

// executeResponse is the shape the external minter collaborator returns.
type executeResponse struct {
	TxID string `json:"txid"`
}

// Execute delegates to the external minter collaborator and, on success,
// calls Anchor. dryRun is forwarded so the collaborator can simulate
// without broadcasting.
func (g *Glue) Execute(ctx context.Context, epochID string, dryRun bool) (string, error) {
	if g.minterURL == "" {
		return "", glypherr.Wrap(glypherr.KindNotFound, "no minter configured", nil)
	}
	payouts, err := g.SelectPayouts(epochID)
	if err != nil {
		return "", err
	}
	reqBody, err := json.Marshal(map[string]interface{}{
		"epoch_id": epochID,
		"payouts":  payouts,
		"dry_run":  dryRun,
	})
	if err != nil {
		return "", fmt.Errorf("minter: marshal execute request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.minterURL+"/mint/execute", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("minter: build execute request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("minter: call external minter: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("minter: external minter returned status %d", resp.StatusCode)
	}

	var out executeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("minter: decode execute response: %w", err)
	}

	if dryRun {
		return out.TxID, nil
	}
	if err := g.Anchor(epochID, out.TxID); err != nil {
		return "", fmt.Errorf("minter: anchor after execute: %w", err)
	}
	return out.TxID, nil
}

// tokenSupplyResponse is the shape the external minter collaborator
// returns for a supply query.
type tokenSupplyResponse struct {
	TotalSupply string `json:"total_supply"`
}

// TokenSupply delegates to the external minter collaborator's read-only
// supply query.
func (g *Glue) TokenSupply(ctx context.Context) (string, error) {
	if g.minterURL == "" {
		return "", glypherr.Wrap(glypherr.KindNotFound, "no minter configured", nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.minterURL+"/token/supply", nil)
	if err != nil {
		return "", fmt.Errorf("minter: build supply request: %w", err)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("minter: call external minter: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return "", fmt.Errorf("minter: external minter returned status %d", resp.StatusCode)
	}
	var out tokenSupplyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("minter: decode supply response: %w", err)
	}
	return out.TotalSupply, nil
}
