// Package streamsocket implements the streaming-socket Connector variant
// shared by the equities and crypto upstream sources: a persistent
// bidirectional connection with authentication (equities), subscription,
// heartbeats, exponential-backoff reconnection, and optional gap
// backfill on disconnect.
package streamsocket

import (
	"context"
	"encoding/json"
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

// Config configures one streaming-socket connector instance.
type Config struct {
	Name                 string
	BaseURL              string
	Symbols              []string
	APIKey               string
	HeartbeatInterval     time.Duration // default 30s
	MaxReconnectAttempts  int           // default 10
	BackoffBase           time.Duration // default 1s, capped at 60s
	Sink                  TickSink
	Normalizer            normalize.Normalizer
	Protocol              Protocol
	Dialer                Dialer // default DefaultDialer
	Backfill              *BackfillConfig
	// OnReconnect, if set, fires once per successful connect that follows
	// a prior disconnect (never on the initial connect).
	OnReconnect func()
}

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.MaxReconnectAttempts <= 0 {
		c.MaxReconnectAttempts = 10
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 1 * time.Second
	}
	if c.Dialer == nil {
		c.Dialer = DefaultDialer
	}
	return c
}

// Connector implements connector.Connector for a streaming socket source.
type Connector struct {
	connector.HealthCounters

	cfg Config
	log zerolog.Logger

	mu      sync.Mutex
	symbols []string
	conn    frameConn

	cancel context.CancelFunc
	stopped chan struct{}
}

// New constructs a streaming-socket connector. Call Init then Connect.
func New(cfg Config, log zerolog.Logger) *Connector {
	cfg = cfg.withDefaults()
	return &Connector{
		cfg:     cfg,
		log:     log.With().Str("component", "connector.streamsocket").Str("name", cfg.Name).Logger(),
		symbols: append([]string(nil), cfg.Symbols...),
		stopped: make(chan struct{}),
	}
}

var _ connector.Connector = (*Connector)(nil)

// Init validates configuration. It opens nothing.
func (c *Connector) Init(ctx context.Context) error {
	if c.cfg.BaseURL == "" {
		return fmt.Errorf("%s: base URL required", c.cfg.Name)
	}
	if c.cfg.Protocol == nil {
		return fmt.Errorf("%s: protocol required", c.cfg.Name)
	}
	if c.cfg.Protocol.RequiresAuth() && c.cfg.APIKey == "" {
		return fmt.Errorf("%s: API key required for authenticated protocol", c.cfg.Name)
	}
	return nil
}

// Connect starts the background connect/read/reconnect loop and returns
// immediately; Health() reflects progress.
func (c *Connector) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	c.HealthCounters.MarkStarted()
	go c.runLoop(runCtx)
	return nil
}

// Shutdown is idempotent: stops the reconnect loop and closes any open
// connection, returning once cleanup completes.
func (c *Connector) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	cancel := c.cancel
	conn := c.conn
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close()
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

// AddSymbol subscribes to an additional symbol on the live connection. A
// safe no-op if not currently connected.
func (c *Connector) AddSymbol(symbol string) {
	c.mu.Lock()
	c.symbols = append(c.symbols, symbol)
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if frame := c.cfg.Protocol.AddSymbolFrame(symbol); frame != nil {
		_ = conn.WriteMessage(1, frame) // websocket.TextMessage
	}
}

// RemoveSymbol unsubscribes a symbol on the live connection. A safe
// no-op if not currently connected.
func (c *Connector) RemoveSymbol(symbol string) {
	c.mu.Lock()
	for i, s := range c.symbols {
		if s == symbol {
			c.symbols = append(c.symbols[:i], c.symbols[i+1:]...)
			break
		}
	}
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if frame := c.cfg.Protocol.RemoveSymbolFrame(symbol); frame != nil {
		_ = conn.WriteMessage(1, frame)
	}
}

const textMessage = 1 // websocket.TextMessage, avoided as an import-only dependency in this file

func (c *Connector) runLoop(ctx context.Context) {
	defer close(c.stopped)

	attempt := 0
	var lastDisconnect time.Time
	hasDisconnected := false

	for {
		select {
		case <-ctx.Done():
			c.HealthCounters.SetStatus(connector.StatusDisconnected)
			return
		default:
		}

		if attempt > 0 {
			delay := backoffDelay(c.cfg.BackoffBase, attempt)
			c.log.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("reconnecting after backoff")
			if !sleepInterruptible(ctx, delay) {
				return
			}
		}

		if hasDisconnected && c.cfg.Backfill != nil {
			c.maybeBackfill(ctx, lastDisconnect)
		}

		conn, err := c.connectOnce(ctx)
		if err != nil {
			c.HealthCounters.IncError()
			c.HealthCounters.SetStatus(connector.StatusError)
			attempt++
			if attempt > c.cfg.MaxReconnectAttempts {
				c.log.Error().Int("attempts", attempt).Msg("max reconnect attempts exceeded, giving up")
				return
			}
			continue
		}

		if hasDisconnected && c.cfg.OnReconnect != nil {
			c.cfg.OnReconnect()
		}

		attempt = 0 // reset on successful connect
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.HealthCounters.SetStatus(connector.StatusConnected)

		err = c.readAndHeartbeat(ctx, conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()

		lastDisconnect = time.Now()
		hasDisconnected = true

		if ctx.Err() != nil {
			return
		}
		c.HealthCounters.SetStatus(connector.StatusDisconnected)
		if err != nil {
			c.HealthCounters.IncError()
			c.log.Warn().Err(err).Msg("connection lost")
		}
		attempt++
	}
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	delay := base * time.Duration(1<<uint(attempt-1))
	const cap = 60 * time.Second
	if delay > cap {
		delay = cap
	}
	return delay
}

func (c *Connector) connectOnce(ctx context.Context) (frameConn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	c.mu.Lock()
	symbols := append([]string(nil), c.symbols...)
	c.mu.Unlock()

	url := c.cfg.Protocol.BuildURL(c.cfg.BaseURL, symbols)
	conn, err := c.cfg.Dialer(dialCtx, url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	if c.cfg.Protocol.RequiresAuth() {
		if frame := c.cfg.Protocol.AuthFrame(c.cfg.APIKey); frame != nil {
			if err := conn.WriteMessage(textMessage, frame); err != nil {
				conn.Close()
				return nil, fmt.Errorf("send auth frame: %w", err)
			}
		}
		if err := c.awaitAuthSuccess(dialCtx, conn); err != nil {
			conn.Close()
			return nil, err
		}
	}

	for _, frame := range c.cfg.Protocol.SubscribeFrames(symbols) {
		if err := conn.WriteMessage(textMessage, frame); err != nil {
			conn.Close()
			return nil, fmt.Errorf("send subscribe frame: %w", err)
		}
	}

	return conn, nil
}

func (c *Connector) awaitAuthSuccess(ctx context.Context, conn frameConn) error {
	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("await auth success: %w", err)
		}
		if c.cfg.Protocol.IsAuthSuccess(msg) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// readAndHeartbeat runs the frame-read loop for one live connection,
// alongside a heartbeat goroutine that pings on cfg.HeartbeatInterval
// and force-closes the connection if no frame has arrived for more than
// 3x that interval.
func (c *Connector) readAndHeartbeat(ctx context.Context, conn frameConn) error {
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()

	go c.heartbeatLoop(heartbeatCtx, conn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.HealthCounters.MarkMessage(time.Now())
		c.dispatchFrame(msg)
	}
}

func (c *Connector) heartbeatLoop(ctx context.Context, conn frameConn) {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := c.HealthCounters.Snapshot()
			if snap.HasLastMessage && time.Since(snap.LastMessageTime) > 3*c.cfg.HeartbeatInterval {
				c.log.Warn().Msg("no frames received within 3x heartbeat interval, forcing reconnect")
				conn.Close()
				return
			}
			if err := conn.WriteControl(9 /* websocket.PingMessage */, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

// dispatchFrame decodes one inbound frame, which may contain one or many
// messages, and routes each to the normalizer (or logs it as a status
// message / responds to a ping).
func (c *Connector) dispatchFrame(raw []byte) {
	if c.cfg.Protocol.IsPing(raw) {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if pong := c.cfg.Protocol.PongFrame(raw); conn != nil && pong != nil {
			_ = conn.WriteMessage(textMessage, pong)
		}
		return
	}

	var batch []json.RawMessage
	if err := json.Unmarshal(raw, &batch); err != nil {
		batch = []json.RawMessage{raw}
	}

	for _, msg := range batch {
		if c.cfg.Protocol.IsStatusMessage(msg) {
			c.log.Debug().Msg("status message received")
			continue
		}

		t, ok, err := c.cfg.Normalizer.Normalize(msg)
		if err != nil {
			c.HealthCounters.IncError()
			c.log.Warn().Err(err).Msg("normalize failed")
			continue
		}
		if !ok {
			continue
		}
		c.cfg.Sink.AddTick(t)
	}
}

func (c *Connector) maybeBackfill(ctx context.Context, disconnectedAt time.Time) {
	snap := c.HealthCounters.Snapshot()
	if !snap.HasLastMessage {
		return
	}
	cfg := c.cfg.Backfill.withDefaults()
	gap := disconnectedAt.Sub(snap.LastMessageTime)
	if gap <= cfg.GapThreshold {
		return
	}

	c.mu.Lock()
	symbols := append([]string(nil), c.symbols...)
	c.mu.Unlock()

	for _, symbol := range symbols {
		c.runBackfill(ctx, symbol, snap.LastMessageTime, disconnectedAt)
	}
}
