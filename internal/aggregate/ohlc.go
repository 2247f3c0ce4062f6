package aggregate

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/marketdata-ingest/internal/buffer"
	"github.com/sawpanic/marketdata-ingest/internal/tick"
)

// Candle is a finalized OHLC window. low <= min(open,close) <= max(open,close) <= high.
type Candle struct {
	Datetime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// WindowTime satisfies buffer.Record.
func (c Candle) WindowTime() time.Time { return c.Datetime }

// CSVFields renders the numeric columns of the Causal API dispatch row
// format: datetime,open,high,low,close.
func (c Candle) CSVFields() []string {
	return []string{
		strconv.FormatFloat(c.Open, 'f', -1, 64),
		strconv.FormatFloat(c.High, 'f', -1, 64),
		strconv.FormatFloat(c.Low, 'f', -1, 64),
		strconv.FormatFloat(c.Close, 'f', -1, 64),
	}
}

// CandleListener is invoked synchronously after a candle is pushed to its
// buffer. Listeners must not call back into the aggregator that invoked
// them — finalization runs in the middle of AddTick or ForceFinalizeAll,
// which are not re-entrant.
type CandleListener func(c Candle, timeframeLabel string)

type ohlcInProgress struct {
	windowStart int64
	open        float64
	high        float64
	low         float64
	close       float64
	volume      float64
	ticks       int
}

// OHLCAggregator folds ticks for a single symbol into per-timeframe OHLC
// candles. It exclusively owns its buffers and in-progress candles; only
// the ingest goroutine touches AddTick, so no locking is needed there.
// Buffers themselves are internally synchronized for the dispatcher's
// concurrent reads.
type OHLCAggregator struct {
	symbol  string
	network Network
	log     zerolog.Logger

	mu          sync.Mutex // guards listeners only; AddTick is single-writer
	listeners   []CandleListener
	buffers     map[string]*buffer.Ring[Candle]
	inProgress  map[string]*ohlcInProgress // keyed by timeframe label
}

// NewOHLCAggregator constructs an aggregator for one symbol across the
// given timeframe network. The network must already be Validate()'d.
func NewOHLCAggregator(symbol string, network Network, log zerolog.Logger) *OHLCAggregator {
	buffers := make(map[string]*buffer.Ring[Candle], len(network))
	for _, tf := range network {
		buffers[tf.Label] = buffer.New[Candle](tf.BufferCapacity)
	}
	return &OHLCAggregator{
		symbol:     symbol,
		network:    network,
		log:        log.With().Str("component", "aggregate.ohlc").Str("symbol", symbol).Logger(),
		buffers:    buffers,
		inProgress: make(map[string]*ohlcInProgress, len(network)),
	}
}

// OnComplete registers a finalize listener.
func (a *OHLCAggregator) OnComplete(l CandleListener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// Buffer returns the rolling buffer for a timeframe label, for the
// dispatcher to read.
func (a *OHLCAggregator) Buffer(label string) *buffer.Ring[Candle] {
	return a.buffers[label]
}

// AddTick folds one tick into every configured timeframe. Ticks for a
// symbol other than the aggregator's configured symbol are dropped
// silently.
func (a *OHLCAggregator) AddTick(t tick.Tick) {
	if t.Symbol != a.symbol {
		return
	}

	size := 0.0
	if t.HasSize {
		size = t.Size
	}
	epoch := t.Timestamp.Unix()

	for _, tf := range a.network {
		windowStart := tf.windowStartUnix(epoch)
		cur, exists := a.inProgress[tf.Label]

		if exists && cur.windowStart == windowStart {
			cur.high = max(cur.high, t.Price)
			cur.low = min(cur.low, t.Price)
			cur.close = t.Price
			cur.volume += size
			cur.ticks++
			continue
		}

		// Either no in-progress candle yet, or the tick belongs to a
		// different window (later, or earlier — both are treated as a
		// new window per spec.md's accepted out-of-order design).
		if exists {
			a.finalize(tf.Label, cur)
		}
		a.inProgress[tf.Label] = &ohlcInProgress{
			windowStart: windowStart,
			open:        t.Price,
			high:        t.Price,
			low:         t.Price,
			close:       t.Price,
			volume:      size,
			ticks:       1,
		}
	}
}

// ForceFinalizeAll finalizes every in-progress candle and clears the
// in-progress map. Idempotent: calling it again with nothing in progress
// is a no-op.
func (a *OHLCAggregator) ForceFinalizeAll() {
	for label, cur := range a.inProgress {
		a.finalize(label, cur)
	}
	a.inProgress = make(map[string]*ohlcInProgress, len(a.network))
}

func (a *OHLCAggregator) finalize(label string, cur *ohlcInProgress) {
	c := Candle{
		Datetime: time.Unix(cur.windowStart, 0).UTC(),
		Open:     cur.open,
		High:     cur.high,
		Low:      cur.low,
		Close:    cur.close,
		Volume:   cur.volume,
	}
	a.buffers[label].Push(c)

	a.mu.Lock()
	listeners := append([]CandleListener(nil), a.listeners...)
	a.mu.Unlock()
	for _, l := range listeners {
		l(c, label)
	}
}
