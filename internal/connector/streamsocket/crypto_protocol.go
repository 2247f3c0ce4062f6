package streamsocket

import (
	"encoding/json"
	"strings"
	"sync/atomic"
)

// CryptoProtocol implements Protocol for the multiplexed streaming-crypto
// channel: the initial subscription is encoded in the dial URL
// (`?streams=<symbol>@<kind>/...`), and dynamic (un)subscription uses
// SUBSCRIBE/UNSUBSCRIBE control frames carrying a client-chosen
// monotonically increasing integer id.
type CryptoProtocol struct {
	StreamKind string // e.g. "trade", "aggTrade"

	nextID atomic.Int64
}

func (p *CryptoProtocol) BuildURL(baseURL string, symbols []string) string {
	if len(symbols) == 0 {
		return baseURL
	}
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@" + p.StreamKind
	}
	return baseURL + "?streams=" + strings.Join(streams, "/")
}

func (p *CryptoProtocol) RequiresAuth() bool            { return false }
func (p *CryptoProtocol) AuthFrame(apiKey string) []byte { return nil }
func (p *CryptoProtocol) IsAuthSuccess(raw []byte) bool  { return true }

func (p *CryptoProtocol) SubscribeFrames(symbols []string) [][]byte {
	return nil // already encoded in the dial URL
}

func (p *CryptoProtocol) AddSymbolFrame(symbol string) []byte {
	return p.controlFrame("SUBSCRIBE", symbol)
}

func (p *CryptoProtocol) RemoveSymbolFrame(symbol string) []byte {
	return p.controlFrame("UNSUBSCRIBE", symbol)
}

func (p *CryptoProtocol) controlFrame(method, symbol string) []byte {
	id := p.nextID.Add(1)
	stream := strings.ToLower(symbol) + "@" + p.StreamKind
	b, _ := json.Marshal(map[string]any{
		"method": method,
		"params": []string{stream},
		"id":     id,
	})
	return b
}

func (p *CryptoProtocol) IsStatusMessage(raw []byte) bool {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	_, hasResult := m["result"]
	_, hasID := m["id"]
	return hasResult && hasID
}

func (p *CryptoProtocol) IsPing(raw []byte) bool {
	return false // gorilla/websocket surfaces protocol-level pings via its own handler, not as text frames
}

func (p *CryptoProtocol) PongFrame(raw []byte) []byte { return nil }

var _ Protocol = (*CryptoProtocol)(nil)
