// Package pricing quotes mGLYPH (milli-GLYPH) cost for an inference call,
// blending a fixed floor rate with the median of DHT-advertised asks.
package pricing

import (
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"glyph/internal/dht"
)

// BaseRate is the fallback mGLYPH-per-1000-tokens rate used when no DHT
// asks are available or none parse.
const BaseRate = 100

// Quote is the result of a price lookup.
type Quote struct {
	MilliGlyph      int64 `json:"milli_glyph"`
	MilliGlyphPer1k int64 `json:"milli_glyph_per_1k"`
}

// Ask is the wire shape published under the "prices" DHT key.
type Ask struct {
	MilliGlyphPer1k int64 `json:"milli_glyph_per_1k"`
	Timestamp       int64 `json:"timestamp"`
}

// Quoter computes quotes from a DHT price-ask namespace.
type Quoter struct {
	store *dht.Store
	log   *zap.SugaredLogger
}

// New builds a Quoter. store may be nil, in which case every quote falls
// back to BaseRate.
func New(store *dht.Store, log *zap.SugaredLogger) *Quoter {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Quoter{store: store, log: log}
}

// Quote prices a request. The rate is median(asks) when the DHT holds
// any parseable ask, BaseRate otherwise; cost is computed with floor
// integer division on each term independently.
func (q *Quoter) Quote(inputTokens, outputTokens int64, wallTimeMs int64) Quote {
	rate := q.medianRate()
	if wallTimeMs < 0 {
		wallTimeMs = 0
	}
	cost := (inputTokens*rate)/1000 + (outputTokens*rate)/1000 + wallTimeMs/1000
	return Quote{MilliGlyph: cost, MilliGlyphPer1k: rate}
}

func (q *Quoter) medianRate() int64 {
	if q.store == nil || !q.store.Available() {
		return BaseRate
	}
	raw := q.store.FetchAll(dht.KeyPrices)
	if len(raw) == 0 {
		return BaseRate
	}
	rates := make([]int64, 0, len(raw))
	for publisher, v := range raw {
		var ask Ask
		if err := json.Unmarshal(v, &ask); err != nil {
			q.log.Debugw("dropping malformed price ask", "publisher", publisher, "error", err)
			continue
		}
		if ask.MilliGlyphPer1k <= 0 {
			continue
		}
		rates = append(rates, ask.MilliGlyphPer1k)
	}
	if len(rates) == 0 {
		q.log.Warnw("no usable DHT price asks, falling back to base rate", "base_rate", BaseRate)
		return BaseRate
	}
	return median(rates)
}

func median(rates []int64) int64 {
	sort.Slice(rates, func(i, j int) bool { return rates[i] < rates[j] })
	n := len(rates)
	if n%2 == 1 {
		return rates[n/2]
	}
	return (rates[n/2-1] + rates[n/2]) / 2
}

// PublishAsk advertises this publisher's own per-1k rate, refreshing its
// DHT TTL. Best-effort: errors are impossible by construction (in-process
// store) but this mirrors the shape callers use for other DHT publishes.
func (q *Quoter) PublishAsk(publisherPubkey string, milliGlyphPer1k int64, now time.Time) {
	if q.store == nil {
		return
	}
	raw, err := json.Marshal(Ask{MilliGlyphPer1k: milliGlyphPer1k, Timestamp: now.Unix()})
	if err != nil {
		q.log.Debugw("failed to marshal price ask", "error", err)
		return
	}
	q.store.Publish(dht.KeyPrices, publisherPubkey, raw, dht.DefaultTTL)
}
