package streamsocket

import (
	"encoding/json"
	"strings"
)

// EquitiesProtocol implements Protocol for the streaming-equities-trade
// channel: a fixed endpoint, an auth frame with the API key, then a
// subscribe frame listing "T.<SYMBOL>" channels.
type EquitiesProtocol struct{}

func (EquitiesProtocol) BuildURL(baseURL string, symbols []string) string {
	return baseURL
}

func (EquitiesProtocol) RequiresAuth() bool { return true }

func (EquitiesProtocol) AuthFrame(apiKey string) []byte {
	b, _ := json.Marshal(map[string]string{"action": "auth", "params": apiKey})
	return b
}

func (EquitiesProtocol) IsAuthSuccess(raw []byte) bool {
	var events []map[string]any
	if err := json.Unmarshal(raw, &events); err != nil {
		var single map[string]any
		if err := json.Unmarshal(raw, &single); err != nil {
			return false
		}
		events = []map[string]any{single}
	}
	for _, ev := range events {
		if status, _ := ev["status"].(string); status == "auth_success" {
			return true
		}
	}
	return false
}

func (EquitiesProtocol) SubscribeFrames(symbols []string) [][]byte {
	if len(symbols) == 0 {
		return nil
	}
	channels := make([]string, len(symbols))
	for i, s := range symbols {
		channels[i] = "T." + s
	}
	b, _ := json.Marshal(map[string]string{
		"action": "subscribe",
		"params": strings.Join(channels, ","),
	})
	return [][]byte{b}
}

func (EquitiesProtocol) AddSymbolFrame(symbol string) []byte {
	b, _ := json.Marshal(map[string]string{"action": "subscribe", "params": "T." + symbol})
	return b
}

func (EquitiesProtocol) RemoveSymbolFrame(symbol string) []byte {
	b, _ := json.Marshal(map[string]string{"action": "unsubscribe", "params": "T." + symbol})
	return b
}

func (EquitiesProtocol) IsStatusMessage(raw []byte) bool {
	var events []map[string]any
	if err := json.Unmarshal(raw, &events); err != nil {
		var single map[string]any
		if err := json.Unmarshal(raw, &single); err != nil {
			return false
		}
		events = []map[string]any{single}
	}
	for _, ev := range events {
		if ev["ev"] == "status" {
			return true
		}
	}
	return false
}

func (EquitiesProtocol) IsPing(raw []byte) bool {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return false
	}
	return m["ev"] == "ping" || m["action"] == "ping"
}

func (EquitiesProtocol) PongFrame(raw []byte) []byte {
	b, _ := json.Marshal(map[string]string{"action": "pong"})
	return b
}

var _ Protocol = EquitiesProtocol{}
