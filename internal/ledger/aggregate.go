package ledger

// AggregateWeighted sums output_tokens * quality for every node over the
// half-open window [start, end), used by the epoch engine to build a
// payout vector. Receipts without a recorded quality contribute
// DefaultQuality.
func (l *Ledger) AggregateWeighted(start, end int64) (map[string]float64, error) {
	rows, err := l.List()
	if err != nil {
		return nil, err
	}
	contribs := make(map[string]float64)
	for _, row := range rows {
		ts := row.Receipt.CreatedAt
		if ts < start || ts >= end {
			continue
		}
		q, err := l.GetQuality(row.PayloadHash)
		if err != nil {
			return nil, err
		}
		contribs[row.Receipt.NodePubkey] += float64(row.Receipt.OutputTokens) * q
	}
	return contribs, nil
}
