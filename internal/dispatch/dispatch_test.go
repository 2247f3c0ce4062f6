package dispatch

import (
	"context"
	"encoding/csv"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/marketdata-ingest/internal/aggregate"
)

type fakeBuffer[T Row] struct {
	rows []T
}

func (f fakeBuffer[T]) GetLast(n int) []T {
	if n > len(f.rows) {
		n = len(f.rows)
	}
	return f.rows[len(f.rows)-n:]
}

func (f fakeBuffer[T]) Size() int { return len(f.rows) }

func makeCandles(n int, start time.Time, step time.Duration) []aggregate.Candle {
	out := make([]aggregate.Candle, n)
	for i := 0; i < n; i++ {
		out[i] = aggregate.Candle{
			Datetime: start.Add(time.Duration(i) * step),
			Open:     100, High: 101, Low: 99, Close: 100,
		}
	}
	return out
}

func TestDispatcher_ReturnsNoneBelowThreshold(t *testing.T) {
	buf := fakeBuffer[aggregate.Candle]{rows: makeCandles(10, time.Now(), time.Minute)}
	d := New[aggregate.Candle](Config{
		URL:              "http://unused.test",
		Header:           "datetime,open,high,low,close",
		TimeframeSeconds: 60,
		RowCount:         5000,
	}, "1m", buf, zerolog.Nop())

	res, err := d.Send(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestDispatcher_SendsExactRowCountPlusPlaceholder(t *testing.T) {
	start := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	rows := makeCandles(5000, start, time.Minute)
	buf := fakeBuffer[aggregate.Candle]{rows: rows}

	var capturedBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/csv", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		capturedBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"datetime":"2025-01-01T10:00:00Z","chain_detected":1}`))
	}))
	defer srv.Close()

	d := New[aggregate.Candle](Config{
		URL:              srv.URL,
		APIKey:           "secret",
		Header:           "datetime,open,high,low,close",
		TimeframeSeconds: 60,
		RowCount:         5000,
	}, "1m", buf, zerolog.Nop())

	res, err := d.Send(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 1, res.ChainDetected)

	lines := strings.Split(strings.TrimRight(capturedBody, "\n"), "\n")
	assert.Len(t, lines, 5001) // header + 4999 data rows + placeholder

	r := csv.NewReader(strings.NewReader(capturedBody))
	records, err := r.ReadAll()
	require.NoError(t, err)
	last := records[len(records)-1]
	secondToLast := records[len(records)-2]

	assert.Equal(t, []string{"0", "0", "0", "0"}, last[1:])

	lastDataTime, err := time.Parse(time.RFC3339, secondToLast[0])
	require.NoError(t, err)
	placeholderTime, err := time.Parse(time.RFC3339, last[0])
	require.NoError(t, err)
	assert.Equal(t, lastDataTime.Add(time.Minute), placeholderTime)
}

func TestDispatcher_NonSuccessStatusReturnsNone(t *testing.T) {
	rows := makeCandles(5000, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Minute)
	buf := fakeBuffer[aggregate.Candle]{rows: rows}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New[aggregate.Candle](Config{
		URL:              srv.URL,
		Header:           "datetime,open,high,low,close",
		TimeframeSeconds: 60,
		RowCount:         5000,
	}, "1m", buf, zerolog.Nop())

	res, err := d.Send(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestDispatcher_UnivariateHeaderMatchesSampleFields(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rows := make([]aggregate.Sample, 5000)
	for i := range rows {
		rows[i] = aggregate.Sample{Datetime: start.Add(time.Duration(i) * time.Minute), Value: 21.5}
	}
	buf := fakeBuffer[aggregate.Sample]{rows: rows}

	var capturedBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		capturedBody = string(body)
		w.Write([]byte(`{"datetime":"2025-01-01T10:00:00Z","chain_detected":0}`))
	}))
	defer srv.Close()

	d := New[aggregate.Sample](Config{
		URL:              srv.URL,
		Header:           "datetime,value",
		TimeframeSeconds: 60,
		RowCount:         5000,
	}, "1m", buf, zerolog.Nop())

	_, err := d.Send(context.Background())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(capturedBody, "\n"), "\n")
	assert.Equal(t, "datetime,value", lines[0])
	assert.True(t, strings.HasSuffix(lines[len(lines)-1], ",0"))
}
