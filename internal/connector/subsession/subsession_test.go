package subsession

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketdata-ingest/internal/tick"
	"github.com/sawpanic/marketdata-ingest/internal/tick/normalize"
)

type fakeSink struct {
	mu    sync.Mutex
	ticks []tick.Tick
}

func (s *fakeSink) AddTick(t tick.Tick) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks = append(s.ticks, t)
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ticks)
}

func TestConnector_MockClientEmitsForSubscribedSecurities(t *testing.T) {
	sink := &fakeSink{}
	c := New(Config{
		Name:        "sub-test",
		Securities:  []string{"IBM"},
		MockCadence: 10 * time.Millisecond,
		Sink:        sink,
		Normalizer:  normalize.SubSession{Source: "mock-vendor"},
	}, zerolog.Nop())

	require.NoError(t, c.Init(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	require.Eventually(t, func() bool { return sink.count() >= 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, c.Shutdown(context.Background()))
}

// manualClient lets the test drive events directly to exercise
// correlation-id mapping without timing dependencies.
type manualClient struct {
	events chan Event
	subs   map[int64]string
	nextID int64
}

func newManualClient() *manualClient {
	return &manualClient{events: make(chan Event, 8), subs: make(map[int64]string)}
}

func (m *manualClient) Open(ctx context.Context) (<-chan Event, error) { return m.events, nil }

func (m *manualClient) Subscribe(ctx context.Context, security string) (int64, error) {
	m.nextID++
	m.subs[m.nextID] = security
	return m.nextID, nil
}

func (m *manualClient) Unsubscribe(ctx context.Context, id int64) error {
	delete(m.subs, id)
	return nil
}

func (m *manualClient) Close(ctx context.Context) error { return nil }

func TestConnector_UnknownCorrelationIDIsDropped(t *testing.T) {
	sink := &fakeSink{}
	client := newManualClient()

	c := New(Config{
		Name:       "sub-test",
		Securities: []string{"AAPL"},
		Client:     client,
		Sink:       sink,
		Normalizer: normalize.SubSession{Source: "vendor"},
	}, zerolog.Nop())

	require.NoError(t, c.Init(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	client.events <- Event{CorrelationID: 999, Raw: []byte(`{"security":"AAPL","timestamp":1,"LAST_TRADE":1.0}`)}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.count())

	client.events <- Event{CorrelationID: 1, Raw: []byte(`{"security":"AAPL","timestamp":1,"LAST_TRADE":1.0}`)}
	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestConnector_RemoveSecurityStopsFurtherDelivery(t *testing.T) {
	sink := &fakeSink{}
	client := newManualClient()

	c := New(Config{
		Name:       "sub-test",
		Securities: []string{"AAPL"},
		Client:     client,
		Sink:       sink,
		Normalizer: normalize.SubSession{Source: "vendor"},
	}, zerolog.Nop())

	require.NoError(t, c.Init(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	require.NoError(t, c.RemoveSecurity(ctx, "AAPL"))
	client.events <- Event{CorrelationID: 1, Raw: []byte(`{"security":"AAPL","timestamp":1,"LAST_TRADE":1.0}`)}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
}
