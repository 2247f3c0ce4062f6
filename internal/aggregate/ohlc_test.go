package aggregate

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketdata-ingest/internal/tick"
)

func mkTick(symbol string, ts time.Time, price, size float64, hasSize bool) tick.Tick {
	return tick.Tick{Timestamp: ts, Symbol: symbol, Price: price, Size: size, HasSize: hasSize, Source: "test"}
}

func TestOHLCAggregator_OneSecondWindow(t *testing.T) {
	net := Network{{Seconds: 1, Label: "1s", BufferCapacity: 10}}
	a := NewOHLCAggregator("BTCUSDT", net, zerolog.Nop())

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	a.AddTick(mkTick("BTCUSDT", base, 100, 1, true))
	a.AddTick(mkTick("BTCUSDT", base.Add(300*time.Millisecond), 101, 2, true))
	a.AddTick(mkTick("BTCUSDT", base.Add(700*time.Millisecond), 99, 1, true))
	a.AddTick(mkTick("BTCUSDT", base.Add(900*time.Millisecond), 100, 1, true))
	a.AddTick(mkTick("BTCUSDT", base.Add(1200*time.Millisecond), 105, 1, true))

	buf := a.Buffer("1s")
	require.Equal(t, 1, buf.Size())

	c := buf.GetLast(1)[0]
	assert.Equal(t, base, c.Datetime)
	assert.Equal(t, 100.0, c.Open)
	assert.Equal(t, 101.0, c.High)
	assert.Equal(t, 99.0, c.Low)
	assert.Equal(t, 100.0, c.Close)
	assert.Equal(t, 5.0, c.Volume)
}

func TestOHLCAggregator_MultiTimeframeFanOut(t *testing.T) {
	net := Network{
		{Seconds: 1, Label: "1s", BufferCapacity: 10},
		{Seconds: 5, Label: "5s", BufferCapacity: 10},
	}
	a := NewOHLCAggregator("BTCUSDT", net, zerolog.Nop())

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC) // aligned to both 1s and 5s
	a.AddTick(mkTick("BTCUSDT", base, 100, 0, false))

	assert.Equal(t, 0, a.Buffer("1s").Size())
	assert.Equal(t, 0, a.Buffer("5s").Size())

	a.AddTick(mkTick("BTCUSDT", base.Add(6*time.Second), 101, 0, false))

	require.Equal(t, 1, a.Buffer("1s").Size())
	require.Equal(t, 1, a.Buffer("5s").Size())
	assert.Equal(t, base, a.Buffer("1s").GetLast(1)[0].Datetime)
	assert.Equal(t, base, a.Buffer("5s").GetLast(1)[0].Datetime)
}

func TestOHLCAggregator_DropsTicksForOtherSymbols(t *testing.T) {
	net := Network{{Seconds: 1, Label: "1s", BufferCapacity: 10}}
	a := NewOHLCAggregator("BTCUSDT", net, zerolog.Nop())

	a.AddTick(mkTick("ETHUSDT", time.Now(), 100, 0, false))
	assert.Nil(t, a.inProgress["1s"])
}

func TestOHLCAggregator_ForceFinalizeAllIsIdempotent(t *testing.T) {
	net := Network{{Seconds: 1, Label: "1s", BufferCapacity: 10}}
	a := NewOHLCAggregator("BTCUSDT", net, zerolog.Nop())

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	a.AddTick(mkTick("BTCUSDT", base, 100, 0, false))

	a.ForceFinalizeAll()
	require.Equal(t, 1, a.Buffer("1s").Size())

	a.ForceFinalizeAll()
	assert.Equal(t, 1, a.Buffer("1s").Size())
}

func TestOHLCAggregator_BufferEvictsAtCapacity(t *testing.T) {
	net := Network{{Seconds: 1, Label: "1s", BufferCapacity: 2}}
	a := NewOHLCAggregator("BTCUSDT", net, zerolog.Nop())

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		a.AddTick(mkTick("BTCUSDT", base.Add(time.Duration(i)*time.Second), 100+float64(i), 0, false))
	}
	a.ForceFinalizeAll()

	buf := a.Buffer("1s")
	assert.Equal(t, 2, buf.Size())
	assert.True(t, buf.IsFull())
}

func TestOHLCAggregator_ListenerInvokedOnFinalize(t *testing.T) {
	net := Network{{Seconds: 1, Label: "1s", BufferCapacity: 10}}
	a := NewOHLCAggregator("BTCUSDT", net, zerolog.Nop())

	var got []Candle
	a.OnComplete(func(c Candle, label string) {
		got = append(got, c)
	})

	base := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	a.AddTick(mkTick("BTCUSDT", base, 100, 0, false))
	a.AddTick(mkTick("BTCUSDT", base.Add(2*time.Second), 105, 0, false))

	require.Len(t, got, 1)
	assert.Equal(t, 100.0, got[0].Open)
}
