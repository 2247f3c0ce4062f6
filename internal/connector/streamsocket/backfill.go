package streamsocket

import (
	"context"
	"errors"
	"time"

	"github.com/sawpanic/marketdata-ingest/infra/limits"
	"github.com/sawpanic/marketdata-ingest/internal/ingest/errs"
	"github.com/sawpanic/marketdata-ingest/internal/tick"
)

// RateLimitedError wraps errs.ErrRateLimited with the vendor's requested
// retry delay, parsed from a Retry-After header by the fetcher.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string { return "backfill request rate limited" }
func (e *RateLimitedError) Unwrap() error { return errs.ErrRateLimited }

// BackfillFetcher fetches one page of historical trades in [from, to],
// ascending. It is the minimum vendor-specific wire detail this pipeline
// needs — pagination, gap-threshold, and retry orchestration live in the
// connector, not here.
type BackfillFetcher interface {
	FetchPage(ctx context.Context, symbol string, from, to time.Time) ([]tick.Tick, error)
}

// BackfillConfig enables equities gap detection on disconnect.
type BackfillConfig struct {
	Fetcher      BackfillFetcher
	GapThreshold time.Duration // default 60s
	PageLimit    int           // default 50000
	MaxRetries   int           // default 3, for non-rate-limit failures
	RetryBase    time.Duration // default 1s
	RateLimiter  *limits.TokenBucket
}

func (c BackfillConfig) withDefaults() BackfillConfig {
	if c.GapThreshold <= 0 {
		c.GapThreshold = 60 * time.Second
	}
	if c.PageLimit <= 0 {
		c.PageLimit = 50000
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 1 * time.Second
	}
	if c.RateLimiter == nil {
		c.RateLimiter = limits.NewTokenBucket(5)
	}
	return c
}

// runBackfill paginates from..to, normalizing and replaying every tick
// into sink in ascending timestamp order, before the caller resumes
// normal streaming. It stops once a page returns fewer than PageLimit
// results (end-of-range) or ctx is done.
func (c *Connector) runBackfill(ctx context.Context, symbol string, from, to time.Time) {
	cfg := c.cfg.Backfill.withDefaults()
	c.log.Info().Time("from", from).Time("to", to).Msg("gap detected, starting backfill")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		ticks, err := c.fetchPageWithRetry(ctx, cfg, symbol, from, to)
		if err != nil {
			c.log.Warn().Err(err).Msg("backfill page failed, abandoning gap fill")
			return
		}

		for _, t := range ticks {
			c.cfg.Sink.AddTick(t)
		}
		c.HealthCounters.MarkMessage(time.Now())

		if len(ticks) < cfg.PageLimit {
			c.log.Info().Int("ticks", len(ticks)).Msg("backfill complete")
			return
		}

		// Advance the lower bound past the last observed timestamp so the
		// next page doesn't re-fetch the same rows.
		last := ticks[len(ticks)-1].Timestamp
		if !last.After(from) {
			// Fetcher returned no forward progress; stop rather than loop forever.
			return
		}
		from = last.Add(time.Millisecond)
	}
}

func (c *Connector) fetchPageWithRetry(ctx context.Context, cfg BackfillConfig, symbol string, from, to time.Time) ([]tick.Tick, error) {
	attempt := 0
	for {
		if err := cfg.RateLimiter.Wait(ctx); err != nil {
			return nil, err
		}

		ticks, err := cfg.Fetcher.FetchPage(ctx, symbol, from, to)
		if err == nil {
			return ticks, nil
		}

		var rl *RateLimitedError
		if errors.As(err, &rl) {
			delay := rl.RetryAfter
			if delay <= 0 {
				delay = 5 * time.Second
			}
			if !sleepInterruptible(ctx, delay) {
				return nil, ctx.Err()
			}
			continue // rate-limit retries are not bounded by MaxRetries
		}

		attempt++
		if attempt > cfg.MaxRetries {
			return nil, err
		}
		delay := cfg.RetryBase * time.Duration(1<<uint(attempt-1))
		if !sleepInterruptible(ctx, delay) {
			return nil, ctx.Err()
		}
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
