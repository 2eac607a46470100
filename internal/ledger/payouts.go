package ledger

import (
	bolt "go.etcd.io/bbolt"

	"glyph/internal/glypherr"
	"glyph/internal/payout"
)

// SetNodeAddress validates addr as 0x+40-hex and upserts the node's payout
// address.
func (l *Ledger) SetNodeAddress(nodePubkey, addr string) error {
	if !payout.ValidAddress(addr) {
		return glypherr.ErrInvalidAddress
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPayoutAddrs).Put([]byte(nodePubkey), []byte(addr))
	})
}

// GetNodeAddress returns the registered payout address for a node, and
// whether one is registered.
func (l *Ledger) GetNodeAddress(nodePubkey string) (string, bool, error) {
	var addr string
	var ok bool
	err := l.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPayoutAddrs).Get([]byte(nodePubkey))
		if v != nil {
			addr = string(v)
			ok = true
		}
		return nil
	})
	return addr, ok, err
}

// AllNodeAddresses returns every registered node_pubkey -> eth_address pair.
func (l *Ledger) AllNodeAddresses() (map[string]string, error) {
	out := make(map[string]string)
	err := l.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketPayoutAddrs).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			out[string(k)] = string(v)
		}
		return nil
	})
	return out, err
}
