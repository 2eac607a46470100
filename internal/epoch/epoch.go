// Package epoch implements the settlement engine: aggregating weighted
// ledger contributions over a window into a signed, periodic reward
// snapshot, collecting validator signatures against it, and reporting
// status.
package epoch

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"glyph/internal/dht"
	"glyph/internal/glypherr"
	"glyph/internal/identity"
	"glyph/internal/ledger"
)

// Plan is the caller-supplied settlement request.
type Plan struct {
	TokenTicker string
	TotalAmount int64
	StartTime   int64 // 0 means "beginning of time"
	EndTime     int64 // 0 means "now"
}

// Engine settles epochs against a ledger and identity, and publishes the
// resulting snapshot to the DHT best-effort.
type Engine struct {
	ledger *ledger.Ledger
	id     *identity.Identity
	store  *dht.Store
	log    *logrus.Logger
	now    func() time.Time
}

// New builds an Engine. store may be nil to disable DHT publishing.
func New(l *ledger.Ledger, id *identity.Identity, store *dht.Store, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{ledger: l, id: id, store: store, log: log, now: time.Now}
}

// CanonicalSnapshot serializes everything but root/gateway_sig, the way
// receipt.CanonicalPayload serializes everything but the two signatures:
// via a plain map so encoding/json's sorted-key guarantee gives byte-
// identical output regardless of field order.
func CanonicalSnapshot(s *ledger.Snapshot) []byte {
	m := map[string]interface{}{
		"epoch_id":     s.EpochID,
		"created_at":   s.CreatedAt,
		"start_time":   s.StartTime,
		"end_time":     s.EndTime,
		"token_ticker": s.TokenTicker,
		"total_amount": s.TotalAmount,
		"payouts":      s.Payouts,
	}
	b, err := json.Marshal(m)
	if err != nil {
		panic(fmt.Sprintf("epoch: canonical snapshot marshal: %v", err))
	}
	return b
}

// Settle aggregates the window's weighted contributions into a signed,
// persisted snapshot and publishes it to the DHT best-effort.
func (e *Engine) Settle(plan Plan) (*ledger.Snapshot, error) {
	start := plan.StartTime
	end := plan.EndTime
	if end == 0 {
		end = e.now().Unix()
	}

	contribs, err := e.ledger.AggregateWeighted(start, end)
	if err != nil {
		return nil, fmt.Errorf("epoch: aggregate: %w", err)
	}
	if len(contribs) == 0 {
		return nil, glypherr.ErrEmptyEpoch
	}

	addrMap, err := e.ledger.AllNodeAddresses()
	if err != nil {
		return nil, fmt.Errorf("epoch: load addresses: %w", err)
	}

	var totalWeight float64
	for _, w := range contribs {
		totalWeight += w
	}

	var payouts []ledger.Payout
	if totalWeight > 0 {
		// Deterministic iteration order keeps root computation stable across
		// calls for the same underlying data.
		for _, pk := range sortedKeys(contribs) {
			addr, ok := addrMap[pk]
			if !ok {
				continue // unaddressed nodes are skipped, their weight stays in the denominator
			}
			w := contribs[pk]
			amount := int64(float64(plan.TotalAmount) * w / totalWeight)
			if amount < 0 {
				amount = 0
			}
			payouts = append(payouts, ledger.Payout{NodePubkey: pk, EthAddress: addr, Amount: amount})
		}
	}

	epochID := fmt.Sprintf("%d-%d-%s", start, end, plan.TokenTicker)
	snap := &ledger.Snapshot{
		EpochID:     epochID,
		CreatedAt:   e.now().Unix(),
		StartTime:   start,
		EndTime:     end,
		TokenTicker: plan.TokenTicker,
		TotalAmount: plan.TotalAmount,
		Payouts:     payouts,
	}

	payload := CanonicalSnapshot(snap)
	rootSum := sha256.Sum256(payload)
	snap.Root = hex.EncodeToString(rootSum[:])
	snap.GatewaySig = identity.Sign(e.id.Private, payload)

	if err := e.ledger.SaveEpoch(epochID, snap); err != nil {
		return nil, fmt.Errorf("epoch: save: %w", err)
	}

	e.publishBestEffort(snap)
	return snap, nil
}

func (e *Engine) publishBestEffort(snap *ledger.Snapshot) {
	if e.store == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		e.log.WithError(err).Warn("epoch: marshal snapshot for DHT publish")
		return
	}
	e.store.Publish(dht.KeyEpochs, snap.EpochID, raw, dht.DefaultTTL)
}

// Sign records a validator's countersignature over an epoch snapshot.
// The signer must be a registered validator and the signature must verify
// against the snapshot's canonical payload.
func (e *Engine) Sign(epochID, validatorPubkey, signature string) (map[string]string, int, error) {
	snap, err := e.ledger.GetEpoch(epochID)
	if err != nil {
		return nil, 0, err
	}
	isValidator, err := e.ledger.IsValidator(validatorPubkey)
	if err != nil {
		return nil, 0, err
	}
	if !isValidator {
		return nil, 0, glypherr.ErrForbidden
	}
	if !identity.Verify(validatorPubkey, CanonicalSnapshot(snap), signature) {
		return nil, 0, glypherr.ErrBadSignature
	}
	if err := e.ledger.RecordEpochSignature(epochID, validatorPubkey, signature); err != nil {
		return nil, 0, err
	}
	sigs, err := e.ledger.EpochSignatures(epochID)
	if err != nil {
		return nil, 0, err
	}
	threshold, err := e.ledger.GetQuorumThreshold()
	if err != nil {
		return nil, 0, err
	}
	return sigs, threshold, nil
}

// Status returns an epoch's snapshot, its collected signatures, and the
// current quorum threshold.
func (e *Engine) Status(epochID string) (*ledger.Snapshot, map[string]string, int, error) {
	snap, err := e.ledger.GetEpoch(epochID)
	if err != nil {
		return nil, nil, 0, err
	}
	sigs, err := e.ledger.EpochSignatures(epochID)
	if err != nil {
		return nil, nil, 0, err
	}
	threshold, err := e.ledger.GetQuorumThreshold()
	if err != nil {
		return nil, nil, 0, err
	}
	return snap, sigs, threshold, nil
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
