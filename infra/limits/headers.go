package limits

import (
	"net/http"
	"strconv"
	"time"
)

// RateLimitInfo mirrors the optional rate-limit-info field of the
// Connector Health Snapshot (spec.md §3).
type RateLimitInfo struct {
	Remaining int
	Reset     time.Time
	Valid     bool
}

// ReadRateLimitHeaders extracts the generic RateLimit-Remaining /
// RateLimit-Reset headers (spec.md §4.4.2), falling back to a documented
// vendor-specific header pair when the generic ones are absent — e.g.
// Binance's X-MBX-USED-WEIGHT-1M, grounded on cryptorun's
// ReadBinanceWeight.
func ReadRateLimitHeaders(h http.Header) RateLimitInfo {
	if remaining := h.Get("RateLimit-Remaining"); remaining != "" {
		info := RateLimitInfo{Valid: true}
		if n, err := strconv.Atoi(remaining); err == nil {
			info.Remaining = n
		}
		if resetStr := h.Get("RateLimit-Reset"); resetStr != "" {
			if secs, err := strconv.Atoi(resetStr); err == nil {
				info.Reset = time.Now().Add(time.Duration(secs) * time.Second)
			}
		}
		return info
	}

	if weight := h.Get("X-MBX-USED-WEIGHT-1M"); weight != "" {
		if used, err := strconv.Atoi(weight); err == nil {
			const vendorLimitPerMinute = 1200
			return RateLimitInfo{
				Remaining: vendorLimitPerMinute - used,
				Reset:     time.Now().Add(time.Minute),
				Valid:     true,
			}
		}
	}

	return RateLimitInfo{}
}

// RetryAfter parses the standard Retry-After header as a duration. It
// supports only the delay-seconds form (vendors in this pipeline never
// send an HTTP-date form).
func RetryAfter(h http.Header) (time.Duration, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
