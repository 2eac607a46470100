package ledger

import (
	"encoding/json"
	"strconv"

	bolt "go.etcd.io/bbolt"
)

// Validator is a persisted validator entry.
type Validator struct {
	Pubkey string  `json:"pubkey"`
	Weight float64 `json:"weight"`
}

// AddValidator registers or updates a validator with the given weight
// (default 1.0 when weight is 0, the caller's zero value; other values,
// negative ones included, are stored as given).
func (l *Ledger) AddValidator(pubkey string, weight float64) error {
	if weight == 0 {
		weight = 1.0
	}
	v := Validator{Pubkey: pubkey, Weight: weight}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketValidators).Put([]byte(pubkey), raw)
	})
}

// RemoveValidator deletes a validator from the set.
func (l *Ledger) RemoveValidator(pubkey string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketValidators).Delete([]byte(pubkey))
	})
}

// ListValidators returns every registered validator.
func (l *Ledger) ListValidators() ([]Validator, error) {
	var out []Validator
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketValidators).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var val Validator
			if err := json.Unmarshal(v, &val); err != nil {
				return err
			}
			out = append(out, val)
		}
		return nil
	})
	return out, err
}

// IsValidator reports whether pubkey is a registered validator.
func (l *Ledger) IsValidator(pubkey string) (bool, error) {
	var ok bool
	err := l.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketValidators).Get([]byte(pubkey)) != nil
		return nil
	})
	return ok, err
}

// SetQuorumThreshold persists the minimum count of distinct valid validator
// signatures required for an epoch to be mint-eligible.
func (l *Ledger) SetQuorumThreshold(t int) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte(keyQuorumThreshold), []byte(strconv.Itoa(t)))
	})
}

// GetQuorumThreshold returns the current threshold, defaulting to 1 if
// never set.
func (l *Ledger) GetQuorumThreshold() (int, error) {
	var t int = 1
	err := l.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSettings).Get([]byte(keyQuorumThreshold))
		if raw == nil {
			return nil
		}
		n, err := strconv.Atoi(string(raw))
		if err != nil {
			return err
		}
		t = n
		return nil
	})
	return t, err
}

// epochSigKey joins an epoch id and validator pubkey into a single bucket
// key so signatures for the same epoch sort contiguously.
func epochSigKey(epochID, validatorPubkey string) []byte {
	return []byte(epochID + "\x00" + validatorPubkey)
}

// RecordEpochSignature upserts (epoch_id, validator_pubkey) -> signature.
// Duplicate submissions from the same validator overwrite (last wins).
func (l *Ledger) RecordEpochSignature(epochID, validatorPubkey, signature string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEpochSigs).Put(epochSigKey(epochID, validatorPubkey), []byte(signature))
	})
}

// EpochSignatures returns every (validator_pubkey -> signature) pair
// recorded for an epoch.
func (l *Ledger) EpochSignatures(epochID string) (map[string]string, error) {
	out := make(map[string]string)
	prefix := []byte(epochID + "\x00")
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketEpochSigs).Cursor()
		for k, v := c.Seek(prefix); k != nil && hasPrefix(k, prefix); k, v = c.Next() {
			validator := string(k[len(prefix):])
			out[validator] = string(v)
		}
		return nil
	})
	return out, err
}
