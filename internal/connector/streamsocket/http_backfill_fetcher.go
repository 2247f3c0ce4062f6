package streamsocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sawpanic/marketdata-ingest/infra/limits"
	"github.com/sawpanic/marketdata-ingest/internal/tick"
	"github.com/sawpanic/marketdata-ingest/internal/tick/normalize"
)

// HTTPBackfillFetcher is the default equities BackfillFetcher: a single
// GET against a historical-trades REST endpoint returning a JSON array
// of the same per-trade shape the streaming channel emits, reusing the
// streaming normalizer to decode each element.
type HTTPBackfillFetcher struct {
	Client     *http.Client
	URL        string // e.g. https://api.example.test/v2/trades
	APIKey     string
	Normalizer normalize.Normalizer
}

func (f HTTPBackfillFetcher) FetchPage(ctx context.Context, symbol string, from, to time.Time) ([]tick.Tick, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("from", from.UTC().Format(time.RFC3339))
	q.Set("to", to.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build backfill request: %w", err)
	}
	if f.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+f.APIKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do backfill request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		delay, _ := limits.RetryAfter(resp.Header)
		return nil, &RateLimitedError{RetryAfter: delay}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backfill request: non-2xx status %d", resp.StatusCode)
	}

	var rawRows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rawRows); err != nil {
		return nil, fmt.Errorf("decode backfill response: %w", err)
	}

	ticks := make([]tick.Tick, 0, len(rawRows))
	for _, raw := range rawRows {
		t, ok, err := f.Normalizer.Normalize(raw)
		if err != nil {
			return nil, fmt.Errorf("normalize backfill row: %w", err)
		}
		if ok {
			ticks = append(ticks, t)
		}
	}
	return ticks, nil
}

var _ BackfillFetcher = HTTPBackfillFetcher{}
