package replication

import (
	"encoding/json"

	"github.com/sirupsen/logrus"

	"glyph/internal/dht"
	"glyph/internal/receipt"
)

// DHTPublisher publishes receipts and fetches the gossiped receipt head
// from the DHT's "receipts"/"head" key.
type DHTPublisher struct {
	store *dht.Store
	log   *logrus.Logger
}

// NewDHTPublisher builds a DHTPublisher. store may be nil to disable all
// DHT interaction.
func NewDHTPublisher(store *dht.Store, log *logrus.Logger) *DHTPublisher {
	if log == nil {
		log = logrus.New()
	}
	return &DHTPublisher{store: store, log: log}
}

// receiptHeadSize bounds how many recent receipts the "head" subkey
// carries, keeping the gossiped payload small.
const receiptHeadSize = 50

// PublishReceipt best-effort appends r to the DHT's recent-receipts head,
// refreshing its TTL. Fetches the current head, prepends, truncates, and
// republishes: a coarse approximation of "recent receipts" good enough
// for a best-effort convergence hint.
func (d *DHTPublisher) PublishReceipt(r *receipt.Receipt) {
	if d.store == nil {
		return
	}
	head := d.FetchHead()
	head = append([]*receipt.Receipt{r}, head...)
	if len(head) > receiptHeadSize {
		head = head[:receiptHeadSize]
	}
	raw, err := json.Marshal(head)
	if err != nil {
		d.log.WithError(err).Warn("replication: marshal receipt head for DHT publish")
		return
	}
	d.store.Publish(dht.KeyReceipts, dht.SubkeyHead, raw, dht.DefaultTTL)
}

// FetchHead returns the current recent-receipts head from the DHT, or nil
// if absent/expired/malformed.
func (d *DHTPublisher) FetchHead() []*receipt.Receipt {
	if d.store == nil {
		return nil
	}
	raw, ok := d.store.Fetch(dht.KeyReceipts, dht.SubkeyHead)
	if !ok {
		return nil
	}
	var head []*receipt.Receipt
	if err := json.Unmarshal(raw, &head); err != nil {
		d.log.WithError(err).Debug("replication: malformed receipt head in DHT")
		return nil
	}
	return head
}
