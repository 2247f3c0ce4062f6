package normalize

import (
	"encoding/json"
	"time"

	"github.com/sawpanic/marketdata-ingest/internal/tick"
)

// Weather normalizes the polling-weather REST response. The endpoint
// returns a JSON array; only the first element is used.
type Weather struct {
	Source string
	Symbol string // observation station / location identifier
}

type weatherObservation struct {
	EpochTime       int64  `json:"epochTime"`
	LocalObsDateTime string `json:"localObservationDateTime"`
	Temperature     struct {
		Metric struct {
			Value float64 `json:"Value"`
		} `json:"Metric"`
	} `json:"Temperature"`
	RelativeHumidity float64 `json:"RelativeHumidity"`
}

func (n Weather) Normalize(raw []byte) (tick.Tick, bool, error) {
	var observations []weatherObservation
	if err := json.Unmarshal(raw, &observations); err != nil {
		return tick.Tick{}, false, err
	}
	if len(observations) == 0 {
		return tick.Tick{}, false, nil
	}

	obs := observations[0]
	if obs.EpochTime == 0 {
		return tick.Tick{}, false, nil
	}

	t := tick.Tick{
		Timestamp: time.Unix(obs.EpochTime, 0).UTC(),
		Symbol:    n.Symbol,
		Price:     obs.Temperature.Metric.Value,
		Source:    n.Source,
	}
	if obs.RelativeHumidity > 0 {
		t.Size = obs.RelativeHumidity
		t.HasSize = true
	}
	return t, true, nil
}
