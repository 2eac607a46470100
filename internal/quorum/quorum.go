// Package quorum answers the single question the minter glue needs: is an
// epoch eligible for minting? An epoch is eligible once the count of
// distinct valid validator signatures reaches the configured threshold;
// validator weights are persisted but reserved for a future weighted
// variant, never summed here.
package quorum

import "glyph/internal/ledger"

// Checker evaluates mint-eligibility for epochs against a ledger's quorum
// threshold and recorded epoch signatures. The validator set is not read
// here; signatures are checked against it when epoch.Engine.Sign records
// them.
type Checker struct {
	ledger *ledger.Ledger
}

// New builds a Checker.
func New(l *ledger.Ledger) *Checker {
	return &Checker{ledger: l}
}

// Eligible reports whether epochID currently has enough distinct valid
// signatures to be mint-eligible, along with the current count and
// threshold.
func (c *Checker) Eligible(epochID string) (eligible bool, count int, threshold int, err error) {
	sigs, err := c.ledger.EpochSignatures(epochID)
	if err != nil {
		return false, 0, 0, err
	}
	threshold, err = c.ledger.GetQuorumThreshold()
	if err != nil {
		return false, 0, 0, err
	}
	count = len(sigs)
	return count >= threshold, count, threshold, nil
}
