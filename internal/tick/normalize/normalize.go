// Package normalize holds one Normalizer implementation per upstream
// source. Each converts a vendor-specific raw message into the common
// tick.Tick shape, or reports that the message should be skipped.
package normalize

import "github.com/sawpanic/marketdata-ingest/internal/tick"

// Normalizer decodes a single raw vendor message.
//
// ok is false when the message should be silently dropped: required
// fields are missing, or the message is not a recognized event kind.
// err is only set for malformed input (e.g. invalid JSON) — a condition
// distinct from "not a tick we care about".
type Normalizer interface {
	Normalize(raw []byte) (t tick.Tick, ok bool, err error)
}
