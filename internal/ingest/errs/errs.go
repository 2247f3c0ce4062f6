// Package errs defines the sentinel error kinds shared across the ingestion
// pipeline so callers can classify failures with errors.Is instead of
// string matching.
package errs

import "errors"

var (
	// ErrTransientNetwork covers connection drops, read errors, and HTTP 5xx
	// responses. Always recoverable via reconnect or retry with backoff.
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrRateLimited is returned when a vendor responds with HTTP 429 or an
	// equivalent documented rate-limit signal.
	ErrRateLimited = errors.New("rate limited")

	// ErrInvalidMessage names the invalid-message error kind. The
	// normalizers do not return it: a message missing required fields or
	// of an unrecognized event kind is reported as ok=false with a nil
	// error.
	ErrInvalidMessage = errors.New("invalid message")

	// ErrConfig covers missing required environment variables and malformed
	// timeframe labels. Fatal at startup only.
	ErrConfig = errors.New("configuration error")
)
