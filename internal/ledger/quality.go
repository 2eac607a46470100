package ledger

import (
	"strconv"

	bolt "go.etcd.io/bbolt"
)

// DefaultQuality is applied when a receipt has no recorded quality score.
const DefaultQuality = 0.8

// RecordQuality stores a quality score in [0,1] for a receipt. The node
// pubkey is accepted for wire-shape parity but the store is keyed by
// receipt_id alone.
func (l *Ledger) RecordQuality(receiptID, _nodePubkey string, score float64) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketQuality).Put([]byte(receiptID), []byte(strconv.FormatFloat(score, 'f', -1, 64)))
	})
}

// GetQuality returns the recorded score for a receipt, or DefaultQuality if
// unobserved.
func (l *Ledger) GetQuality(receiptID string) (float64, error) {
	score := DefaultQuality
	err := l.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketQuality).Get([]byte(receiptID))
		if raw == nil {
			return nil
		}
		v, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return err
		}
		score = v
		return nil
	})
	return score, err
}
