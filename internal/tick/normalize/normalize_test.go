package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCryptoTrade_EnvelopeAndKinds(t *testing.T) {
	n := CryptoTrade{Source: "binance"}

	raw := []byte(`{"stream":"btcusdt@trade","data":{"e":"trade","E":1700000000500,"s":"BTCUSDT","p":"100.5","q":"2","T":1700000000000}}`)
	tk, ok, err := n.Normalize(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "BTCUSDT", tk.Symbol)
	assert.Equal(t, 100.5, tk.Price)
	assert.True(t, tk.HasSize)
	assert.Equal(t, 2.0, tk.Size)
	assert.Equal(t, int64(1700000000000), tk.Timestamp.UnixMilli())

	raw = []byte(`{"e":"aggTrade","s":"ETHUSDT","p":"10","q":"1","T":1700000001000}`)
	tk, ok, err = n.Normalize(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ETHUSDT", tk.Symbol)

	raw = []byte(`{"e":"kline","s":"ETHUSDT"}`)
	_, ok, err = n.Normalize(raw)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCryptoTrade_NormalizingTwiceIsEqual(t *testing.T) {
	n := CryptoTrade{Source: "binance"}
	raw := []byte(`{"e":"trade","s":"BTCUSDT","p":"100.5","q":"2","T":1700000000000}`)

	a, _, err := n.Normalize(raw)
	require.NoError(t, err)
	b, _, err := n.Normalize(raw)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEquitiesTrade_IgnoresStatusEvents(t *testing.T) {
	n := EquitiesTrade{Source: "polygon"}

	tk, ok, err := n.Normalize([]byte(`{"ev":"T","sym":"AAPL","p":150.2,"s":100,"t":1700000000000}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "AAPL", tk.Symbol)

	_, ok, err = n.Normalize([]byte(`{"ev":"status","message":"connected"}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWeather_UsesFirstElement(t *testing.T) {
	n := Weather{Source: "accuweather", Symbol: "STATION1"}

	raw := []byte(`[{"epochTime":1700000000,"Temperature":{"Metric":{"Value":21.5}},"RelativeHumidity":60},{"epochTime":1700003600,"Temperature":{"Metric":{"Value":22}}}]`)
	tk, ok, err := n.Normalize(raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 21.5, tk.Price)
	assert.Equal(t, 60.0, tk.Size)
	assert.True(t, tk.HasSize)
}

func TestSubSession_PriceFallbackOrder(t *testing.T) {
	n := SubSession{Source: "bloomberg"}

	tk, ok, err := n.Normalize([]byte(`{"security":"IBM US Equity","timestamp":1700000000000,"BID":99.5,"ASK":100.5,"VOLUME":500}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 99.5, tk.Price) // BID wins over ASK
	assert.Equal(t, 500.0, tk.Size)

	tk, ok, err = n.Normalize([]byte(`{"security":"IBM US Equity","timestamp":1700000000000,"LAST_TRADE":101.1,"BID":99.5}`))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 101.1, tk.Price) // LAST_TRADE wins

	_, ok, err = n.Normalize([]byte(`{"security":"IBM US Equity","timestamp":1700000000000}`))
	require.NoError(t, err)
	assert.False(t, ok) // no price field present
}
