package normalize

import (
	"encoding/json"
	"time"

	"github.com/sawpanic/marketdata-ingest/internal/tick"
)

// EquitiesTrade normalizes the streaming-equities-trade channel. Only
// event kind "T" (trade) yields a tick; status events ("status", "subscribed",
// and similar) are left for the connector to log, not forwarded here.
type EquitiesTrade struct {
	Source string
}

type equitiesEvent struct {
	EventType string  `json:"ev"`
	Symbol    string  `json:"sym"`
	Price     float64 `json:"p"`
	Size      float64 `json:"s"`
	Timestamp int64   `json:"t"` // epoch millis
}

func (n EquitiesTrade) Normalize(raw []byte) (tick.Tick, bool, error) {
	var ev equitiesEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return tick.Tick{}, false, err
	}

	if ev.EventType != "T" {
		return tick.Tick{}, false, nil
	}
	if ev.Symbol == "" || ev.Price == 0 || ev.Timestamp == 0 {
		return tick.Tick{}, false, nil
	}

	return tick.Tick{
		Timestamp: time.UnixMilli(ev.Timestamp).UTC(),
		Symbol:    ev.Symbol,
		Price:     ev.Price,
		Size:      ev.Size,
		HasSize:   ev.Size > 0,
		Source:    n.Source,
	}, true, nil
}
