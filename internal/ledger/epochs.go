package ledger

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"glyph/internal/glypherr"
)

// Payout is one node's share of an epoch's total_amount.
type Payout struct {
	NodePubkey string `json:"node_pubkey"`
	EthAddress string `json:"eth_address"`
	Amount     int64  `json:"amount"`
}

// Snapshot is a signed, periodic reward snapshot for one epoch window.
type Snapshot struct {
	EpochID     string   `json:"epoch_id"`
	CreatedAt   int64    `json:"created_at"`
	StartTime   int64    `json:"start_time"`
	EndTime     int64    `json:"end_time"`
	TokenTicker string   `json:"token_ticker"`
	TotalAmount int64    `json:"total_amount"`
	Payouts     []Payout `json:"payouts"`

	Root       string `json:"root"`
	GatewaySig string `json:"gateway_sig"`

	AnchorTxID string `json:"anchor_txid,omitempty"`
	Finalized  bool   `json:"finalized"`
}

// SaveEpoch upserts a snapshot, keyed by its epoch_id. The stored field
// name is token_ticker everywhere, on both the write and read paths.
func (l *Ledger) SaveEpoch(id string, snap *Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("ledger: marshal epoch %s: %w", id, err)
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEpochs).Put([]byte(id), raw)
	})
}

// GetEpoch returns the stored snapshot for id.
func (l *Ledger) GetEpoch(id string) (*Snapshot, error) {
	var snap Snapshot
	found := false
	err := l.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketEpochs).Get([]byte(id))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &snap)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, glypherr.ErrNotFound
	}
	return &snap, nil
}

// SetAnchor records the external mint transaction id for an epoch and
// finalizes it. Requires the snapshot to already exist.
func (l *Ledger) SetAnchor(id, txid string) error {
	return l.mutateEpoch(id, func(s *Snapshot) {
		s.AnchorTxID = txid
		s.Finalized = true
	})
}

// SetFinalized marks an epoch finalized without setting an anchor (used
// when finalization is driven independently of minting).
func (l *Ledger) SetFinalized(id string) error {
	return l.mutateEpoch(id, func(s *Snapshot) {
		s.Finalized = true
	})
}

// IsFinalized reports whether an epoch has been finalized.
func (l *Ledger) IsFinalized(id string) (bool, error) {
	snap, err := l.GetEpoch(id)
	if err != nil {
		return false, err
	}
	return snap.Finalized, nil
}

func (l *Ledger) mutateEpoch(id string, fn func(*Snapshot)) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEpochs)
		raw := b.Get([]byte(id))
		if raw == nil {
			return glypherr.ErrNotFound
		}
		var snap Snapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return err
		}
		fn(&snap)
		out, err := json.Marshal(&snap)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), out)
	})
}
