package pollingrest

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketdata-ingest/infra/limits"
	"github.com/sawpanic/marketdata-ingest/internal/tick"
)

type fakeFetcher struct {
	calls    atomic.Int64
	response func(call int64) ([]byte, http.Header, int, error)
}

func (f *fakeFetcher) Fetch(ctx context.Context) ([]byte, http.Header, int, error) {
	n := f.calls.Add(1)
	return f.response(n)
}

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

type fakeNormalizer struct{}

func (fakeNormalizer) Normalize(raw []byte) (tick.Tick, bool, error) {
	if len(raw) == 0 {
		return tick.Tick{}, false, nil
	}
	return tick.Tick{Timestamp: time.Now(), Symbol: "WEATHER", Price: 21.5, Source: "fake"}, true, nil
}

func TestConnector_SuccessfulTickFeedsSinkAndHealth(t *testing.T) {
	fetcher := &fakeFetcher{response: func(call int64) ([]byte, http.Header, int, error) {
		return []byte(`ok`), http.Header{}, http.StatusOK, nil
	}}
	sink := &fakeSink{}

	c := New(Config{
		Name:        "weather-test",
		Fetcher:     fetcher,
		Sink:        sink,
		Normalizer:  fakeNormalizer{},
		Interval:    time.Hour, // long enough that only the immediate tick fires
		RateLimiter: limits.NewTokenBucket(1000),
	}, zerolog.Nop())

	require.NoError(t, c.Init(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	health := c.Health()
	assert.True(t, health.HasLastMessage)
	assert.Equal(t, int64(0), health.ErrorCount)
}

func TestConnector_RateLimitedRespectsRetryAfter(t *testing.T) {
	fetcher := &fakeFetcher{response: func(call int64) ([]byte, http.Header, int, error) {
		if call == 1 {
			h := http.Header{}
			h.Set("Retry-After", "0")
			return nil, h, http.StatusTooManyRequests, nil
		}
		return []byte(`ok`), http.Header{}, http.StatusOK, nil
	}}
	sink := &fakeSink{}

	c := New(Config{
		Name:        "weather-test",
		Fetcher:     fetcher,
		Sink:        sink,
		Normalizer:  fakeNormalizer{},
		Interval:    time.Hour,
		RetryDelay:  time.Millisecond,
		RateLimiter: limits.NewTokenBucket(1000),
	}, zerolog.Nop())

	require.NoError(t, c.Init(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, fetcher.calls.Load(), int64(2))
}

func TestConnector_FailuresDoNotShortenNextCadence(t *testing.T) {
	fetcher := &fakeFetcher{response: func(call int64) ([]byte, http.Header, int, error) {
		return nil, http.Header{}, http.StatusInternalServerError, nil
	}}
	sink := &fakeSink{}

	c := New(Config{
		Name:        "weather-test",
		Fetcher:     fetcher,
		Sink:        sink,
		Normalizer:  fakeNormalizer{},
		Interval:    50 * time.Millisecond,
		MaxRetries:  1,
		RetryDelay:  time.Millisecond,
		RateLimiter: limits.NewTokenBucket(1000),
	}, zerolog.Nop())

	require.NoError(t, c.Init(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, c.Connect(ctx))

	time.Sleep(120 * time.Millisecond)
	assert.Equal(t, 0, sink.count())
	assert.GreaterOrEqual(t, c.Health().ErrorCount, int64(2))
}

func TestConnector_RateLimiterThrottlesOutboundFetches(t *testing.T) {
	fetcher := &fakeFetcher{response: func(call int64) ([]byte, http.Header, int, error) {
		return []byte(`ok`), http.Header{}, http.StatusOK, nil
	}}
	sink := &fakeSink{}

	// Burst of 1 at a very slow refill rate: the first tick consumes the
	// only token immediately, a ctx cancelled before the bucket refills
	// means no second Fetch call ever happens.
	c := New(Config{
		Name:        "weather-test",
		Fetcher:     fetcher,
		Sink:        sink,
		Normalizer:  fakeNormalizer{},
		Interval:    10 * time.Millisecond,
		RateLimiter: limits.NewTokenBucket(0.01),
	}, zerolog.Nop())

	require.NoError(t, c.Init(context.Background()))
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, c.Connect(ctx))

	require.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	cancel()
	require.NoError(t, c.Shutdown(context.Background()))

	assert.Equal(t, int64(1), fetcher.calls.Load())
}
