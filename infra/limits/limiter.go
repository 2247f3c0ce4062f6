// Package limits holds the rate-limiting building blocks shared by the
// polling-REST connector and the streaming connectors' gap-backfill
// requests: a token-bucket limiter and vendor rate-limit header parsing.
package limits

import (
	"context"

	"golang.org/x/time/rate"
)

// TokenBucket wraps golang.org/x/time/rate with the construction style
// cryptorun's derivatives providers use (requests-per-second, defaulted
// conservatively below the vendor's documented ceiling).
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket creates a limiter allowing rps requests per second with a
// burst of one — callers Wait() before every outbound call.
func NewTokenBucket(rps float64) *TokenBucket {
	if rps <= 0 {
		rps = 1
	}
	return &TokenBucket{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// Wait blocks until a token is available or ctx is done, so shutdown can
// interrupt a queued request.
func (t *TokenBucket) Wait(ctx context.Context) error {
	return t.limiter.Wait(ctx)
}
