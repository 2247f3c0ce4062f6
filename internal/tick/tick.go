// Package tick defines the normalized tick shape produced by every source
// normalizer and consumed by the timeframe aggregators.
package tick

import "time"

// Tick is a single normalized observation. It is immutable after
// construction — normalizers build one and hand it off by value.
type Tick struct {
	Timestamp time.Time // absolute instant, UTC
	Symbol    string
	Price     float64
	Size      float64 // optional; 0 when the source carries no size
	HasSize   bool
	Source    string // e.g. "polygon", "accuweather", "bloomberg", "binance"
}
