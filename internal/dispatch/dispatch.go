// Package dispatch implements the Causal API Dispatcher: it serializes a
// full rolling buffer into a fixed-row CSV payload, posts it to the
// remote causal-intelligence service under a circuit breaker, and
// parses the chain-detection response.
package dispatch

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/marketdata-ingest/infra/breakers"
	"github.com/sawpanic/marketdata-ingest/internal/buffer"
)

// Row is implemented by aggregate.Candle and aggregate.Sample: a
// finalized record that knows its own window time and numeric CSV
// columns.
type Row interface {
	buffer.Record
	CSVFields() []string
}

// Buffer is the read side of buffer.Ring[T] the dispatcher needs.
type Buffer[T Row] interface {
	GetLast(n int) []T
	Size() int
}

// Result is the parsed causal-intelligence response, stamped with a
// local receipt time.
type Result struct {
	Datetime      time.Time
	ChainDetected int
	ReceivedAt    time.Time
}

type wireResponse struct {
	Datetime      string `json:"datetime"`
	ChainDetected int    `json:"chain_detected"`
}

// Config configures one dispatcher instance for a single (symbol,
// timeframe) buffer.
type Config struct {
	URL              string
	APIKey           string // optional; sent as "Authorization: Bearer <key>" when non-empty
	Header           string // CSV header line, e.g. "datetime,open,high,low,close"
	TimeframeSeconds int64
	RowCount         int // default 5000
	HTTPClient       *http.Client
	Breaker          *breakers.Breaker
	// OnOutcome, if set, fires once per Send call with a label describing
	// what happened: "sent", "skipped" (buffer not yet full), or "error"
	// (serialize/POST/parse failure).
	OnOutcome func(outcome string)
}

func (c Config) withDefaults() Config {
	if c.RowCount <= 0 {
		c.RowCount = 5000
	}
	if c.HTTPClient == nil {
		c.HTTPClient = http.DefaultClient
	}
	if c.Breaker == nil {
		c.Breaker = breakers.New("causal-api")
	}
	return c
}

// Dispatcher sends one timeframe buffer's contents to the causal API on
// a configured cadence.
type Dispatcher[T Row] struct {
	cfg            Config
	timeframeLabel string
	buf            Buffer[T]
	log            zerolog.Logger
}

// Runner erases T so the Supervisor can hold dispatchers for both the
// OHLC and univariate variants in one slice.
type Runner interface {
	RunOnce(ctx context.Context) error
}

// New constructs a dispatcher for one buffer.
func New[T Row](cfg Config, timeframeLabel string, buf Buffer[T], log zerolog.Logger) *Dispatcher[T] {
	cfg = cfg.withDefaults()
	return &Dispatcher[T]{
		cfg:            cfg,
		timeframeLabel: timeframeLabel,
		buf:            buf,
		log:            log.With().Str("component", "dispatch").Str("timeframe", timeframeLabel).Logger(),
	}
}

// Send implements the Causal API Dispatcher contract: send(buffer,
// timeframe-label) -> response | none. It returns (nil, nil) whenever
// the buffer doesn't yet hold enough rows, or the POST/response parse
// fails — those are logged, not propagated, since dispatch failures
// never affect other timeframes or connectors.
func (d *Dispatcher[T]) Send(ctx context.Context) (*Result, error) {
	need := d.cfg.RowCount - 1
	if d.buf.Size() < need {
		d.recordOutcome("skipped")
		return nil, nil
	}

	rows := d.buf.GetLast(need)
	body, err := d.buildCSV(rows)
	if err != nil {
		d.log.Warn().Err(err).Msg("failed to serialize dispatch payload")
		d.recordOutcome("error")
		return nil, nil
	}

	var respBody []byte
	err = d.cfg.Breaker.Execute(ctx, func(ctx context.Context) error {
		var postErr error
		respBody, postErr = d.post(ctx, body)
		return postErr
	})
	if err != nil {
		d.log.Warn().Err(err).Msg("causal API dispatch failed")
		d.recordOutcome("error")
		return nil, nil
	}

	var wire wireResponse
	if err := json.Unmarshal(respBody, &wire); err != nil {
		d.log.Warn().Err(err).Msg("failed to parse causal API response")
		d.recordOutcome("error")
		return nil, nil
	}
	dt, err := time.Parse(time.RFC3339, wire.Datetime)
	if err != nil {
		d.log.Warn().Err(err).Str("datetime", wire.Datetime).Msg("causal API returned unparsable datetime")
		d.recordOutcome("error")
		return nil, nil
	}

	d.recordOutcome("sent")
	return &Result{
		Datetime:      dt,
		ChainDetected: wire.ChainDetected,
		ReceivedAt:    time.Now(),
	}, nil
}

func (d *Dispatcher[T]) recordOutcome(outcome string) {
	if d.cfg.OnOutcome != nil {
		d.cfg.OnOutcome(outcome)
	}
}

// RunOnce sends the buffer and logs the outcome, satisfying Runner for
// Supervisor-driven scheduling. Send logs every failure, a POST cut
// short by context cancellation included, and returns a nil error, so
// RunOnce returns nil in practice.
func (d *Dispatcher[T]) RunOnce(ctx context.Context) error {
	res, err := d.Send(ctx)
	if err != nil {
		return err
	}
	if res != nil {
		d.log.Info().Int("chain_detected", res.ChainDetected).Msg("causal API dispatch complete")
	}
	return nil
}

// buildCSV writes the header, the data rows in chronological order, and
// the zero-valued placeholder row whose datetime is the next theoretical
// window start after the last data row.
func (d *Dispatcher[T]) buildCSV(rows []T) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(strings.Split(d.cfg.Header, ",")); err != nil {
		return nil, err
	}

	var lastTime time.Time
	numFields := 0
	for _, r := range rows {
		lastTime = r.WindowTime()
		fields := r.CSVFields()
		numFields = len(fields)
		record := append([]string{lastTime.UTC().Format(time.RFC3339)}, fields...)
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	if len(rows) == 0 {
		numFields = len(strings.Split(d.cfg.Header, ",")) - 1
	}

	placeholderTime := lastTime.Add(time.Duration(d.cfg.TimeframeSeconds) * time.Second)
	placeholder := make([]string, 0, numFields+1)
	placeholder = append(placeholder, placeholderTime.UTC().Format(time.RFC3339))
	for i := 0; i < numFields; i++ {
		placeholder = append(placeholder, "0")
	}
	if err := w.Write(placeholder); err != nil {
		return nil, err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (d *Dispatcher[T]) post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "text/csv")
	if d.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	}

	resp, err := d.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("non-2xx status %d", resp.StatusCode)
	}
	return respBody, nil
}
