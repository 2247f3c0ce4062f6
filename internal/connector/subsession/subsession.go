// Package subsession implements the subscription-session Connector
// variant: open a session, then a market-data service, then issue
// per-security subscriptions each carrying a monotonically increasing
// correlation id; inbound events carry the id back, which this package
// maps to the subscribed security. When the vendor client is
// unavailable, a deterministic mock emits synthetic ticks on a fixed
// cadence so the rest of the pipeline can still be exercised.
package subsession

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/marketdata-ingest/internal/connector"
	"github.com/sawpanic/marketdata-ingest/internal/tick"
	"github.com/sawpanic/marketdata-ingest/internal/tick/normalize"
)

// TickSink is satisfied by aggregate.OHLCAggregator and
// aggregate.UnivariateAggregator.
type TickSink interface {
	AddTick(t tick.Tick)
}

// Event is one inbound market-data event, keyed by the correlation id
// the Client's Subscribe call returned.
type Event struct {
	CorrelationID int64
	Raw           []byte
}

// Client abstracts the vendor subscription-session client so a mock can
// substitute for it when the real library isn't available. A Client
// implementation owns its own session and market-data-service handles
// internally; this package only deals in correlation ids and events.
type Client interface {
	// Open establishes the session and market-data service. Events is a
	// channel the client sends inbound events to until Close is called;
	// the connector never closes it itself.
	Open(ctx context.Context) (events <-chan Event, err error)
	// Subscribe issues a subscription for security, returning the
	// correlation id the client assigned to it.
	Subscribe(ctx context.Context, security string) (correlationID int64, err error)
	// Unsubscribe cancels a previously issued subscription.
	Unsubscribe(ctx context.Context, correlationID int64) error
	// Close tears down the session.
	Close(ctx context.Context) error
}

// Config configures one subscription-session connector instance.
type Config struct {
	Name       string
	Securities []string
	Client     Client // if nil, a MockClient is constructed with MockCadence
	MockCadence time.Duration // default 5s, only used when Client is nil
	Sink       TickSink
	Normalizer normalize.Normalizer
}

func (c Config) withDefaults() Config {
	if c.MockCadence <= 0 {
		c.MockCadence = 5 * time.Second
	}
	return c
}

// Connector implements connector.Connector for the subscription-session
// source.
type Connector struct {
	connector.HealthCounters

	cfg Config
	log zerolog.Logger

	mu            sync.Mutex
	client        Client
	securityByID  map[int64]string
	cancel        context.CancelFunc
	stopped       chan struct{}
}

// New constructs a subscription-session connector. Call Init then
// Connect.
func New(cfg Config, log zerolog.Logger) *Connector {
	cfg = cfg.withDefaults()
	return &Connector{
		cfg:          cfg,
		log:          log.With().Str("component", "connector.subsession").Str("name", cfg.Name).Logger(),
		securityByID: make(map[int64]string),
		stopped:      make(chan struct{}),
	}
}

var _ connector.Connector = (*Connector)(nil)

// Init validates configuration and falls back to a MockClient when no
// vendor Client was supplied — the in-process "load vendor library if
// available, otherwise substitute a mock" decision lives at the call
// site that constructs Config, not here; Init only fills the default.
func (c *Connector) Init(ctx context.Context) error {
	if c.cfg.Sink == nil {
		return fmt.Errorf("%s: sink required", c.cfg.Name)
	}
	if c.cfg.Normalizer == nil {
		return fmt.Errorf("%s: normalizer required", c.cfg.Name)
	}
	if c.cfg.Client == nil {
		c.log.Warn().Msg("vendor subscription-session client unavailable, using mock")
		c.client = NewMockClient(c.cfg.MockCadence)
	} else {
		c.client = c.cfg.Client
	}
	return nil
}

// Connect opens the session, issues the initial subscriptions, and
// starts the background event-dispatch loop.
func (c *Connector) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	events, err := c.client.Open(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("%s: open session: %w", c.cfg.Name, err)
	}

	for _, sec := range c.cfg.Securities {
		if err := c.subscribeLocked(runCtx, sec); err != nil {
			c.log.Warn().Err(err).Str("security", sec).Msg("initial subscribe failed")
		}
	}

	c.HealthCounters.MarkStarted()
	c.HealthCounters.SetStatus(connector.StatusConnected)
	go c.dispatchLoop(runCtx, events)
	return nil
}

// AddSecurity issues a new subscription on the live session.
func (c *Connector) AddSecurity(ctx context.Context, security string) error {
	return c.subscribeLocked(ctx, security)
}

// RemoveSecurity cancels a subscription for security, if subscribed.
func (c *Connector) RemoveSecurity(ctx context.Context, security string) error {
	c.mu.Lock()
	var id int64
	found := false
	for candidateID, sec := range c.securityByID {
		if sec == security {
			id, found = candidateID, true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return nil
	}

	if err := c.client.Unsubscribe(ctx, id); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.securityByID, id)
	c.mu.Unlock()
	return nil
}

func (c *Connector) subscribeLocked(ctx context.Context, security string) error {
	id, err := c.client.Subscribe(ctx, security)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.securityByID[id] = security
	c.mu.Unlock()
	return nil
}

func (c *Connector) dispatchLoop(ctx context.Context, events <-chan Event) {
	defer close(c.stopped)
	for {
		select {
		case <-ctx.Done():
			c.HealthCounters.SetStatus(connector.StatusDisconnected)
			return
		case ev, ok := <-events:
			if !ok {
				c.HealthCounters.SetStatus(connector.StatusDisconnected)
				return
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Connector) handleEvent(ev Event) {
	c.mu.Lock()
	_, known := c.securityByID[ev.CorrelationID]
	c.mu.Unlock()
	if !known {
		c.log.Debug().Int64("correlation_id", ev.CorrelationID).Msg("event for unknown correlation id, dropping")
		return
	}

	c.HealthCounters.MarkMessage(time.Now())

	t, ok, err := c.cfg.Normalizer.Normalize(ev.Raw)
	if err != nil {
		c.HealthCounters.IncError()
		c.log.Warn().Err(err).Msg("normalize failed")
		return
	}
	if !ok {
		return
	}
	c.cfg.Sink.AddTick(t)
}

// Shutdown is idempotent: closes the vendor session and waits for the
// dispatch loop to exit.
func (c *Connector) Shutdown(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.client != nil {
		_ = c.client.Close(ctx)
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
