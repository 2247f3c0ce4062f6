package normalize

import (
	"encoding/json"
	"time"

	"github.com/sawpanic/marketdata-ingest/internal/tick"
)

// SubSession normalizes subscription-session market-data events (the
// vendor client or its mock fallback). Price is the first non-null field
// among LAST_TRADE, LAST_PRICE, BID, ASK; size comes from VOLUME.
type SubSession struct {
	Source string
}

type subSessionEvent struct {
	Security  string   `json:"security"`
	Timestamp int64    `json:"timestamp"` // epoch millis
	LastTrade *float64 `json:"LAST_TRADE"`
	LastPrice *float64 `json:"LAST_PRICE"`
	Bid       *float64 `json:"BID"`
	Ask       *float64 `json:"ASK"`
	Volume    *float64 `json:"VOLUME"`
}

func (n SubSession) Normalize(raw []byte) (tick.Tick, bool, error) {
	var ev subSessionEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return tick.Tick{}, false, err
	}
	if ev.Security == "" || ev.Timestamp == 0 {
		return tick.Tick{}, false, nil
	}

	price, ok := firstNonNil(ev.LastTrade, ev.LastPrice, ev.Bid, ev.Ask)
	if !ok {
		return tick.Tick{}, false, nil
	}

	t := tick.Tick{
		Timestamp: time.UnixMilli(ev.Timestamp).UTC(),
		Symbol:    ev.Security,
		Price:     price,
		Source:    n.Source,
	}
	if ev.Volume != nil {
		t.Size = *ev.Volume
		t.HasSize = true
	}
	return t, true, nil
}

func firstNonNil(fields ...*float64) (float64, bool) {
	for _, f := range fields {
		if f != nil {
			return *f, true
		}
	}
	return 0, false
}
