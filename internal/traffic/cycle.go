package traffic

import "github.com/shopspring/decimal"

// CyclePoint is one emitted sample of a server's billing cycle: the hour's
// own outbound usage, the cumulative usage since the last detected rebuild
// and the age of the current cycle in hours. TB figures are preformatted
// three-decimal strings.
type CyclePoint struct {
	Time          string `json:"time"`
	OutTBHour     string `json:"out_tb_h"`
	CycleOutCumTB string `json:"cycle_out_cum_tb"`
	CycleAgeHours int    `json:"cycle_age_h"`
	HourOfDay     *int   `json:"hour_of_day"`
}

// CycleSeries is one server's full cycle history across the series.
type CycleSeries struct {
	Name     string       `json:"name"`
	Points   []CyclePoint `json:"points"`
	Rebuilds []string     `json:"rebuilds"`
}

// CycleData is the response document: servers keyed by provider id.
type CycleData struct {
	Servers map[string]CycleSeries `json:"servers"`
}

// CycleOptions restricts and labels the computation. IncludeIDs, when
// non-nil, limits the working set to those ids (callers pass the currently
// existing fleet). NameOverrides wins over any name found in the series.
type CycleOptions struct {
	IncludeIDs    map[string]struct{}
	NameOverrides map[string]string
}

// ComputeCycleData walks the series chronologically and accumulates, per
// server id, cumulative outbound usage since the last counter reset. A
// reset is detected when both transition endpoints report outbound and the
// counter decreased; the cumulative and age zero before that hour's own
// delta is applied, and the hour is recorded as a rebuild. The hour delta
// follows the monotonic rule per id, so the reset hour itself contributes
// 0.000. The cumulative is requantized after every addition. Fewer than
// two buckets yields an empty result; ids with no emitted points are
// omitted.
func ComputeCycleData(series Series, opts CycleOptions) CycleData {
	result := CycleData{Servers: make(map[string]CycleSeries)}
	hours := series.SortedHours()
	if len(hours) < 2 {
		return result
	}

	ids := make(map[string]struct{})
	for _, snap := range series {
		for id := range snap {
			ids[id] = struct{}{}
		}
	}
	if opts.IncludeIDs != nil {
		for id := range ids {
			if _, ok := opts.IncludeIDs[id]; !ok {
				delete(ids, id)
			}
		}
	}

	for id := range ids {
		cum := decimal.Zero.Round(3)
		age := 0
		var points []CyclePoint
		var rebuilds []string
		name := ""
		if opts.NameOverrides != nil {
			name = opts.NameOverrides[id]
		}

		for i := 1; i < len(hours); i++ {
			prev := series[hours[i-1]]
			curr := series[hours[i]]
			prevReading, prevOK := prev[id]
			currReading, currOK := curr[id]
			if name == "" {
				if prevOK && prevReading.Name != "" {
					name = prevReading.Name
				} else if currOK && currReading.Name != "" {
					name = currReading.Name
				}
			}

			if prevOK && currOK &&
				prevReading.OutboundBytes != nil && currReading.OutboundBytes != nil &&
				*currReading.OutboundBytes < *prevReading.OutboundBytes {
				cum = decimal.Zero.Round(3)
				age = 0
				rebuilds = append(rebuilds, hours[i])
			}

			hourOut := decimal.Zero
			if out, ok := counterDelta(prevReading.OutboundBytes, currReading.OutboundBytes); ok {
				hourOut = out
			}
			cum = QuantizeTB(cum.Add(hourOut))
			points = append(points, CyclePoint{
				Time:          hours[i],
				OutTBHour:     TBString(QuantizeTB(hourOut)),
				CycleOutCumTB: TBString(cum),
				CycleAgeHours: age,
				HourOfDay:     HourOfDay(hours[i]),
			})
			age++
		}

		if len(points) == 0 {
			continue
		}
		if name == "" {
			name = id
		}
		result.Servers[id] = CycleSeries{Name: name, Points: points, Rebuilds: rebuilds}
	}
	return result
}
