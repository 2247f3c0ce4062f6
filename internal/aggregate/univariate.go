package aggregate

import (
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/marketdata-ingest/internal/buffer"
	"github.com/sawpanic/marketdata-ingest/internal/tick"
)

// Sample is a finalized univariate record: last-observation-carried-
// forward value within an aligned window.
type Sample struct {
	Datetime time.Time
	Value    float64
}

// WindowTime satisfies buffer.Record.
func (s Sample) WindowTime() time.Time { return s.Datetime }

// CSVFields renders the numeric column of the univariate Causal API
// dispatch row format: datetime,value.
func (s Sample) CSVFields() []string {
	return []string{strconv.FormatFloat(s.Value, 'f', -1, 64)}
}

// SampleListener is invoked synchronously after a sample is pushed.
type SampleListener func(s Sample, timeframeLabel string)

type univariateInProgress struct {
	windowStart int64
	value       float64
	sum         float64
	count       int
}

// UnivariateAggregator mirrors OHLCAggregator's structure but finalizes a
// single last-observed value per window rather than an OHLC quad. sum and
// count are tracked for a possible future mean-of-window mode; the
// finalized value is always the latest observation.
type UnivariateAggregator struct {
	symbol  string
	network Network
	log     zerolog.Logger

	mu         sync.Mutex
	listeners  []SampleListener
	buffers    map[string]*buffer.Ring[Sample]
	inProgress map[string]*univariateInProgress
}

// NewUnivariateAggregator constructs an aggregator for one symbol across
// the given timeframe network.
func NewUnivariateAggregator(symbol string, network Network, log zerolog.Logger) *UnivariateAggregator {
	buffers := make(map[string]*buffer.Ring[Sample], len(network))
	for _, tf := range network {
		buffers[tf.Label] = buffer.New[Sample](tf.BufferCapacity)
	}
	return &UnivariateAggregator{
		symbol:     symbol,
		network:    network,
		log:        log.With().Str("component", "aggregate.univariate").Str("symbol", symbol).Logger(),
		buffers:    buffers,
		inProgress: make(map[string]*univariateInProgress, len(network)),
	}
}

// OnComplete registers a finalize listener.
func (a *UnivariateAggregator) OnComplete(l SampleListener) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listeners = append(a.listeners, l)
}

// Buffer returns the rolling buffer for a timeframe label.
func (a *UnivariateAggregator) Buffer(label string) *buffer.Ring[Sample] {
	return a.buffers[label]
}

// AddTick folds one tick into every configured timeframe.
func (a *UnivariateAggregator) AddTick(t tick.Tick) {
	if t.Symbol != a.symbol {
		return
	}
	epoch := t.Timestamp.Unix()

	for _, tf := range a.network {
		windowStart := tf.windowStartUnix(epoch)
		cur, exists := a.inProgress[tf.Label]

		if exists && cur.windowStart == windowStart {
			cur.value = t.Price
			cur.sum += t.Price
			cur.count++
			continue
		}

		if exists {
			a.finalize(tf.Label, cur)
		}
		a.inProgress[tf.Label] = &univariateInProgress{
			windowStart: windowStart,
			value:       t.Price,
			sum:         t.Price,
			count:       1,
		}
	}
}

// ForceFinalizeAll finalizes every in-progress sample and clears the
// in-progress map.
func (a *UnivariateAggregator) ForceFinalizeAll() {
	for label, cur := range a.inProgress {
		a.finalize(label, cur)
	}
	a.inProgress = make(map[string]*univariateInProgress, len(a.network))
}

func (a *UnivariateAggregator) finalize(label string, cur *univariateInProgress) {
	s := Sample{
		Datetime: time.Unix(cur.windowStart, 0).UTC(),
		Value:    cur.value,
	}
	a.buffers[label].Push(s)

	a.mu.Lock()
	listeners := append([]SampleListener(nil), a.listeners...)
	a.mu.Unlock()
	for _, l := range listeners {
		l(s, label)
	}
}
