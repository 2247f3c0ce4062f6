package subsession

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
)

// MockClient substitutes for the vendor subscription-session client when
// it isn't available in the runtime environment. It emits a synthetic
// event for each subscribed security at a fixed cadence, with a price
// that drifts deterministically so tests can assert on it without
// randomness.
type MockClient struct {
	cadence time.Duration

	mu       sync.Mutex
	nextID   atomic.Int64
	securities map[int64]string

	events chan Event
	cancel context.CancelFunc
}

// NewMockClient constructs a mock emitting one event per subscribed
// security every cadence.
func NewMockClient(cadence time.Duration) *MockClient {
	return &MockClient{
		cadence:    cadence,
		securities: make(map[int64]string),
		events:     make(chan Event, 64),
	}
}

func (m *MockClient) Open(ctx context.Context) (<-chan Event, error) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	go m.emitLoop(runCtx)
	return m.events, nil
}

func (m *MockClient) Subscribe(ctx context.Context, security string) (int64, error) {
	id := m.nextID.Add(1)
	m.mu.Lock()
	m.securities[id] = security
	m.mu.Unlock()
	return id, nil
}

func (m *MockClient) Unsubscribe(ctx context.Context, correlationID int64) error {
	m.mu.Lock()
	delete(m.securities, correlationID)
	m.mu.Unlock()
	return nil
}

func (m *MockClient) Close(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	return nil
}

func (m *MockClient) emitLoop(ctx context.Context) {
	ticker := time.NewTicker(m.cadence)
	defer ticker.Stop()

	var tick int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick++
			m.emitOnce(tick)
		}
	}
}

func (m *MockClient) emitOnce(tick int64) {
	m.mu.Lock()
	ids := make([]int64, 0, len(m.securities))
	secs := make([]string, 0, len(m.securities))
	for id, sec := range m.securities {
		ids = append(ids, id)
		secs = append(secs, sec)
	}
	m.mu.Unlock()

	now := time.Now().UnixMilli()
	for i, id := range ids {
		price := 100.0 + float64(tick%10)
		payload, _ := json.Marshal(struct {
			Security  string  `json:"security"`
			Timestamp int64   `json:"timestamp"`
			LastTrade float64 `json:"LAST_TRADE"`
			Volume    float64 `json:"VOLUME"`
		}{
			Security:  secs[i],
			Timestamp: now,
			LastTrade: price,
			Volume:    1,
		})
		select {
		case m.events <- Event{CorrelationID: id, Raw: payload}:
		default:
			// Drop if the dispatch loop is behind; the mock never
			// blocks the emit ticker.
		}
	}
}
