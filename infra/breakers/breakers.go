// Package breakers wraps sony/gobreaker with the trip policy this
// ingestion pipeline uses for causal-API dispatch POSTs. Connector REST
// polls and gap-backfill requests do not go through a breaker.
package breakers

import (
	"context"
	"time"

	cb "github.com/sony/gobreaker"
)

// Breaker wraps one named circuit.
type Breaker struct{ cb *cb.CircuitBreaker }

// New creates a breaker that trips after 3 consecutive failures, or after
// a failure rate above 5% once at least 20 requests have been observed in
// the rolling interval.
func New(name string) *Breaker {
	st := cb.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = 60 * time.Second
	st.ReadyToTrip = func(counts cb.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		total := counts.Requests
		if total < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(total) > 0.05
	}
	return &Breaker{cb: cb.NewCircuitBreaker(st)}
}

// Execute runs fn under the breaker. ctx is honored only insofar as fn
// itself is cancellable — gobreaker has no native context support.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// State reports the breaker's current state name, for health snapshots.
func (b *Breaker) State() string {
	return b.cb.State().String()
}
