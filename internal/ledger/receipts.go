package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"glyph/internal/receipt"
)

// Row is a ledger receipt row: the signed receipt plus the hash-chain
// fields that make the log tamper-evident.
type Row struct {
	Receipt     receipt.Receipt `json:"receipt"`
	PrevHash    string          `json:"prev_hash"`
	PayloadHash string          `json:"payload_hash"`
	ChainHash   string          `json:"chain_hash"`
	Seq         uint64          `json:"seq"`
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func chainOf(prevHash, payloadHash string) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write([]byte(payloadHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Add verifies the receipt's signatures and appends it to the hash chain.
// Re-adding an already-seen receipt_id is a no-op; the returned bool
// reports whether a new row was inserted.
func (l *Ledger) Add(r *receipt.Receipt) (bool, error) {
	if !r.Verify() {
		return false, fmt.Errorf("ledger: add: %w", errInvalidReceiptSignature)
	}
	payloadHash := r.ReceiptID()

	added := false
	err := l.db.Update(func(tx *bolt.Tx) error {
		byID := tx.Bucket(bucketReceiptsByID)
		if byID.Get([]byte(payloadHash)) != nil {
			return nil // idempotent
		}

		meta := tx.Bucket(bucketMeta)
		head := string(meta.Get([]byte(keyChainHead)))

		order := tx.Bucket(bucketReceiptsOrder)
		seq, err := order.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		seq-- // NextSequence is 1-based; rows are numbered from 0

		row := Row{
			Receipt:     *r,
			PrevHash:    head,
			PayloadHash: payloadHash,
			ChainHash:   chainOf(head, payloadHash),
			Seq:         seq,
		}
		raw, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("marshal row: %w", err)
		}
		if err := order.Put(seqKey(seq), raw); err != nil {
			return err
		}
		if err := byID.Put([]byte(payloadHash), seqKey(seq)); err != nil {
			return err
		}
		added = true
		return meta.Put([]byte(keyChainHead), []byte(row.ChainHash))
	})
	return added, err
}

// List returns every receipt row in insertion order.
func (l *Ledger) List() ([]Row, error) {
	var rows []Row
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketReceiptsOrder).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var row Row
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			rows = append(rows, row)
		}
		return nil
	})
	return rows, err
}

// ListSince returns up to limit receipt rows with created_at >= ts, in
// insertion order. limit <= 0 means unlimited.
func (l *Ledger) ListSince(ts int64, limit int) ([]Row, error) {
	var rows []Row
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketReceiptsOrder).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var row Row
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			if row.Receipt.CreatedAt < ts {
				continue
			}
			rows = append(rows, row)
			if limit > 0 && len(rows) >= limit {
				break
			}
		}
		return nil
	})
	return rows, err
}

// GetChainHead returns the current chain head hash (empty string if the
// ledger has no receipts yet).
func (l *Ledger) GetChainHead() (string, error) {
	var head string
	err := l.db.View(func(tx *bolt.Tx) error {
		head = string(tx.Bucket(bucketMeta).Get([]byte(keyChainHead)))
		return nil
	})
	return head, err
}

// VerifyChain recomputes every chain_hash in insertion order, returning
// false at the first mismatch.
func (l *Ledger) VerifyChain() (bool, error) {
	ok := true
	err := l.db.View(func(tx *bolt.Tx) error {
		prev := ""
		c := tx.Bucket(bucketReceiptsOrder).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var row Row
			if err := json.Unmarshal(v, &row); err != nil {
				return err
			}
			if row.PrevHash != prev {
				ok = false
				return nil
			}
			want := chainOf(prev, row.PayloadHash)
			if row.ChainHash != want {
				ok = false
				return nil
			}
			prev = row.ChainHash
		}
		return nil
	})
	return ok, err
}

var errInvalidReceiptSignature = fmt.Errorf("invalid receipt signature")
