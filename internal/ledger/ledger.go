// Package ledger is the gateway's durable, single-writer store: the
// hash-chained receipt log, account balances, the node payout-address
// registry, epoch snapshots, the validator set, epoch signatures, quality
// scores, and opaque settings.
//
// Everything backs onto a single bbolt file with one bucket per concern.
// Each mutating operation runs in a single Update transaction; reads run
// under View snapshots and may proceed concurrently with writes.
package ledger

import (
	"fmt"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketReceiptsByID  = []byte("receipts_by_id")
	bucketReceiptsOrder = []byte("receipts_order")
	bucketMeta          = []byte("meta")
	bucketAccounts      = []byte("accounts")
	bucketAccountLog    = []byte("account_log")
	bucketPayoutAddrs   = []byte("payout_addrs")
	bucketEpochs        = []byte("epochs")
	bucketValidators    = []byte("validators")
	bucketEpochSigs     = []byte("epoch_sigs")
	bucketQuality       = []byte("quality")
	bucketSettings      = []byte("settings")
)

var allBuckets = [][]byte{
	bucketReceiptsByID, bucketReceiptsOrder, bucketMeta, bucketAccounts,
	bucketAccountLog, bucketPayoutAddrs, bucketEpochs, bucketValidators,
	bucketEpochSigs, bucketQuality, bucketSettings,
}

const keyChainHead = "chain_head"
const keyQuorumThreshold = "quorum_threshold"

// Ledger is the gateway's single-writer durable store.
type Ledger struct {
	db  *bolt.DB
	log *logrus.Logger
}

// Open opens (creating if absent) the bbolt file at path and ensures every
// bucket the gateway needs exists.
func Open(path string, log *logrus.Logger) (*Ledger, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("ledger: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	log.WithField("path", path).Info("ledger: opened")
	return &Ledger{db: db, log: log}, nil
}

// Close releases the underlying database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}
