package normalize

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/sawpanic/marketdata-ingest/internal/tick"
)

// CryptoTrade normalizes the multiplexed streaming-crypto-trade channel
// (trade / aggTrade events), grounded on the binance stream envelope shape
// `{ stream, data }`.
type CryptoTrade struct {
	Source string // e.g. "binance"
}

type cryptoEnvelope struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

type cryptoTradeEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

func (n CryptoTrade) Normalize(raw []byte) (tick.Tick, bool, error) {
	payload := raw
	var env cryptoEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		payload = env.Data
	}

	var ev cryptoTradeEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return tick.Tick{}, false, err
	}

	switch ev.EventType {
	case "trade", "aggTrade":
	default:
		return tick.Tick{}, false, nil
	}

	if ev.Symbol == "" || ev.Price == "" {
		return tick.Tick{}, false, nil
	}

	price, err := strconv.ParseFloat(ev.Price, 64)
	if err != nil {
		return tick.Tick{}, false, nil
	}

	ts := ev.TradeTime
	if ts == 0 {
		ts = ev.EventTime
	}
	if ts == 0 {
		return tick.Tick{}, false, nil
	}

	t := tick.Tick{
		Timestamp: time.UnixMilli(ts).UTC(),
		Symbol:    ev.Symbol,
		Price:     price,
		Source:    n.Source,
	}
	if ev.Quantity != "" {
		if qty, err := strconv.ParseFloat(ev.Quantity, 64); err == nil {
			t.Size = qty
			t.HasSize = true
		}
	}
	return t, true, nil
}
