// Package pollingrest implements the polling-REST Connector variant used
// by the weather source: a fixed-cadence HTTP GET, per-tick bounded
// retries, and rate-limit header propagation into the health snapshot.
package pollingrest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/marketdata-ingest/infra/limits"
	"github.com/sawpanic/marketdata-ingest/internal/connector"
	"github.com/sawpanic/marketdata-ingest/internal/tick"
	"github.com/sawpanic/marketdata-ingest/internal/tick/normalize"
)

// TickSink is satisfied by aggregate.OHLCAggregator and
// aggregate.UnivariateAggregator.
type TickSink interface {
	AddTick(t tick.Tick)
}

// Fetcher performs one vendor request and returns the raw response body
// alongside its headers, so rate-limit parsing stays in the connector.
type Fetcher interface {
	Fetch(ctx context.Context) (body []byte, headers http.Header, statusCode int, err error)
}

// HTTPFetcher is the default Fetcher: a single GET against URL.
type HTTPFetcher struct {
	Client *http.Client
	URL    string
}

func (f HTTPFetcher) Fetch(ctx context.Context) ([]byte, http.Header, int, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.Header, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}
	return body, resp.Header, resp.StatusCode, nil
}

// Config configures one polling-REST connector instance.
type Config struct {
	Name        string
	Fetcher     Fetcher
	Sink        TickSink
	Normalizer  normalize.Normalizer
	Interval    time.Duration // default 5m
	MaxRetries  int           // default 3
	RetryDelay  time.Duration // default 5s
	RateLimiter *limits.TokenBucket
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Minute
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	if c.RateLimiter == nil {
		c.RateLimiter = limits.NewTokenBucket(2)
	}
	return c
}

// Connector implements connector.Connector for a polling-REST source.
type Connector struct {
	connector.HealthCounters

	cfg    Config
	log    zerolog.Logger
	cancel context.CancelFunc
	stopped chan struct{}
}

// New constructs a polling-REST connector. Call Init then Connect.
func New(cfg Config, log zerolog.Logger) *Connector {
	cfg = cfg.withDefaults()
	return &Connector{
		cfg:     cfg,
		log:     log.With().Str("component", "connector.pollingrest").Str("name", cfg.Name).Logger(),
		stopped: make(chan struct{}),
	}
}

var _ connector.Connector = (*Connector)(nil)

// Init validates configuration.
func (c *Connector) Init(ctx context.Context) error {
	if c.cfg.Fetcher == nil {
		return fmt.Errorf("%s: fetcher required", c.cfg.Name)
	}
	if c.cfg.Normalizer == nil {
		return fmt.Errorf("%s: normalizer required", c.cfg.Name)
	}
	if c.cfg.Sink == nil {
		return fmt.Errorf("%s: sink required", c.cfg.Name)
	}
	return nil
}

// Connect starts the background polling loop and returns immediately.
func (c *Connector) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.HealthCounters.MarkStarted()
	c.HealthCounters.SetStatus(connector.StatusConnected)
	go c.pollLoop(runCtx)
	return nil
}

// Shutdown cancels the polling loop and waits for the in-flight tick (if
// any) to observe cancellation.
func (c *Connector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	select {
	case <-c.stopped:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(5 * time.Second):
	}
	return nil
}

// Health returns a fresh connectivity snapshot.
func (c *Connector) Health() connector.Health {
	return c.HealthCounters.Snapshot()
}

// pollLoop fires one tick immediately, then every cfg.Interval, until
// ctx is cancelled. Per-tick failures never shorten or skip the next
// scheduled tick: the cadence is fixed regardless of outcome.
func (c *Connector) pollLoop(ctx context.Context) {
	defer close(c.stopped)

	for {
		c.runTick(ctx)

		select {
		case <-ctx.Done():
			c.HealthCounters.SetStatus(connector.StatusDisconnected)
			return
		case <-time.After(c.cfg.Interval):
		}
	}
}

func (c *Connector) runTick(ctx context.Context) {
	var lastErr error
	nextDelay := c.cfg.RetryDelay

	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if !sleepInterruptible(ctx, nextDelay) {
				return
			}
		}

		if err := c.cfg.RateLimiter.Wait(ctx); err != nil {
			return // ctx cancelled while queued for a token
		}

		body, headers, status, err := c.cfg.Fetcher.Fetch(ctx)
		if err != nil {
			lastErr = err
			c.HealthCounters.IncError()
			continue
		}

		c.HealthCounters.SetRateLimit(limits.ReadRateLimitHeaders(headers))

		if status == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited: status %d", status)
			c.HealthCounters.IncError()
			if delay, ok := limits.RetryAfter(headers); ok {
				nextDelay = delay
			}
			continue
		}
		if status < 200 || status >= 300 {
			lastErr = fmt.Errorf("unexpected status %d", status)
			c.HealthCounters.IncError()
			continue
		}

		t, ok, err := c.cfg.Normalizer.Normalize(body)
		if err != nil {
			lastErr = err
			c.HealthCounters.IncError()
			continue
		}
		if !ok {
			return
		}

		c.cfg.Sink.AddTick(t)
		c.HealthCounters.MarkMessage(time.Now())
		c.HealthCounters.SetStatus(connector.StatusConnected)
		return
	}

	if lastErr != nil {
		c.log.Warn().Err(lastErr).Msg("polling tick failed after retries, will try again at next cadence")
		c.HealthCounters.SetStatus(connector.StatusError)
	}
}

func sleepInterruptible(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
