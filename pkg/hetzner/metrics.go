package hetzner

import (
	"encoding/json"
	"strconv"
	"time"
)

// Series names used by the traffic metrics endpoint.
const (
	SeriesTrafficOut = "traffic.0.out"
	SeriesTrafficIn  = "traffic.0.in"
)

type Metrics struct {
	Start      string                `json:"start"`
	End        string                `json:"end"`
	Step       float64               `json:"step"`
	TimeSeries map[string]TimeSeries `json:"time_series"`
}

type TimeSeries struct {
	Values []MetricPoint `json:"values"`
}

// MetricPoint is one [timestamp, value] pair. The API encodes the
// timestamp as unix seconds or an RFC3339 string depending on the
// endpoint, and the value as a string. Pairs that do not decode stay
// zero and are skipped during integration.
type MetricPoint struct {
	Time  time.Time
	Value string
}

func (p *MetricPoint) UnmarshalJSON(data []byte) error {
	*p = MetricPoint{}
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) < 2 {
		return nil
	}

	var unix float64
	if err := json.Unmarshal(pair[0], &unix); err == nil {
		sec := int64(unix)
		p.Time = time.Unix(sec, int64((unix-float64(sec))*1e9))
	} else {
		var stamp string
		if err := json.Unmarshal(pair[0], &stamp); err == nil {
			if t, err := time.Parse(time.RFC3339, stamp); err == nil {
				p.Time = t
			}
		}
	}

	var value string
	if err := json.Unmarshal(pair[1], &value); err == nil {
		p.Value = value
		return nil
	}
	var number float64
	if err := json.Unmarshal(pair[1], &number); err == nil {
		p.Value = strconv.FormatFloat(number, 'f', -1, 64)
	}
	return nil
}

func (p MetricPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{float64(p.Time.UnixNano()) / 1e9, p.Value})
}

// Integrate sums value×duration over consecutive point pairs, turning a
// rate series into a total. Pairs that failed to decode are skipped.
func Integrate(points []MetricPoint) float64 {
	if len(points) < 2 {
		return 0
	}
	total := 0.0
	for i := 0; i < len(points)-1; i++ {
		value, err := strconv.ParseFloat(points[i].Value, 64)
		if err != nil || points[i].Time.IsZero() || points[i+1].Time.IsZero() {
			continue
		}
		total += value * points[i+1].Time.Sub(points[i].Time).Seconds()
	}
	return total
}
