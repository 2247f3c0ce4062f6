// Package connector defines the polymorphic ingestion-adapter contract
// every upstream source implements, and the health snapshot all variants
// expose.
package connector

import (
	"context"
	"sync"
	"time"

	"github.com/sawpanic/marketdata-ingest/infra/limits"
)

// Status is the coarse connectivity state of a Connector.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnected
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	default:
		return "disconnected"
	}
}

// Health is a point-in-time snapshot. It is re-read each time, never
// stored by the caller.
type Health struct {
	Status          Status
	LastMessageTime time.Time
	HasLastMessage  bool
	ErrorCount      int64
	StartedAt       time.Time
	RateLimit       limits.RateLimitInfo
}

// Uptime returns how long the connector has been running.
func (h Health) Uptime() time.Duration {
	if h.StartedAt.IsZero() {
		return 0
	}
	return time.Since(h.StartedAt)
}

// Connector is the uniform lifecycle every ingestion adapter exposes,
// regardless of whether it streams over a socket, polls REST, or runs a
// subscription session.
type Connector interface {
	// Init validates configuration and prepares internal state. It does
	// not open any connection.
	Init(ctx context.Context) error
	// Connect opens the upstream connection (or starts the polling loop)
	// and begins feeding ticks to the configured aggregator. It returns
	// once the initial connection attempt completes; ongoing I/O runs in
	// background goroutines owned by the connector.
	Connect(ctx context.Context) error
	// Health returns a fresh snapshot of connectivity state.
	Health() Health
	// Shutdown stops all timers, closes any underlying connection, and
	// must be idempotent and safe to call even if Connect never
	// succeeded.
	Shutdown(ctx context.Context) error
}

// HealthCounters is the shared atomic/mutex-guarded state every connector
// variant embeds to answer Health() without touching the I/O goroutine.
type HealthCounters struct {
	mu              sync.Mutex
	status          Status
	lastMessageTime time.Time
	hasLastMessage  bool
	errorCount      int64
	startedAt       time.Time
	rateLimit       limits.RateLimitInfo
}

func (h *HealthCounters) MarkStarted() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.startedAt = time.Now()
}

func (h *HealthCounters) SetStatus(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = s
}

func (h *HealthCounters) MarkMessage(t time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastMessageTime = t
	h.hasLastMessage = true
}

func (h *HealthCounters) IncError() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errorCount++
}

func (h *HealthCounters) SetRateLimit(info limits.RateLimitInfo) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.rateLimit = info
}

func (h *HealthCounters) Snapshot() Health {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Health{
		Status:          h.status,
		LastMessageTime: h.lastMessageTime,
		HasLastMessage:  h.hasLastMessage,
		ErrorCount:      h.errorCount,
		StartedAt:       h.startedAt,
		RateLimit:       h.rateLimit,
	}
}
