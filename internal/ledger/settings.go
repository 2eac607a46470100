package ledger

import bolt "go.etcd.io/bbolt"

// SetSetting stores an opaque string setting (token_address, token_network,
// rpc_url, and friends).
func (l *Ledger) SetSetting(key, value string) error {
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSettings).Put([]byte("kv/"+key), []byte(value))
	})
}

// GetSetting returns a stored setting and whether it was present.
func (l *Ledger) GetSetting(key string) (string, bool, error) {
	var val string
	var ok bool
	err := l.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSettings).Get([]byte("kv/" + key))
		if raw != nil {
			val = string(raw)
			ok = true
		}
		return nil
	})
	return val, ok, err
}
