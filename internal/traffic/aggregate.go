package traffic

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// HourDelta is one hour's usage for a server row in the hourly view. TB
// values are nil when no delta was computable for that transition.
type HourDelta struct {
	Hour string  `json:"hour"`
	TB   *string `json:"tb"`
	InTB *string `json:"in_tb"`
}

// ServerHours is one display name's row in the hourly view.
type ServerHours struct {
	Name   string      `json:"name"`
	Deltas []HourDelta `json:"deltas"`
}

// HourlyReport is the hourly view document. Rows are keyed by display
// name; Hours is the shared axis. A name first seen partway through the
// window gets entries from that transition onward.
type HourlyReport struct {
	Servers map[string]*ServerHours `json:"servers"`
	Hours   []string                `json:"hours"`
}

// BuildHourlyReport renders per-name deltas over the last `hours`
// transitions. Fewer than two buckets yields the empty document (no rows,
// no axis) rather than an error.
func BuildHourlyReport(series Series, hours int) HourlyReport {
	keys := series.SortedHours()
	if len(keys) > hours+1 {
		keys = keys[len(keys)-(hours+1):]
	}

	report := HourlyReport{Servers: make(map[string]*ServerHours)}
	for i := 1; i < len(keys); i++ {
		appendHourRow(report.Servers, series[keys[i-1]], series[keys[i]], keys[i])
	}
	if len(keys) > 1 {
		report.Hours = keys[1:]
	} else {
		report.Hours = []string{}
	}
	return report
}

// BuildHourlyReportForDate renders the hourly view for one calendar date.
// The transition into the date's first bucket pairs with the last bucket
// before it, so midnight usage is attributed correctly. A date with no
// buckets yields the empty document.
func BuildHourlyReportForDate(series Series, date string) HourlyReport {
	keys := series.SortedHours()
	report := HourlyReport{Servers: make(map[string]*ServerHours), Hours: []string{}}

	prevKey := make(map[string]string, len(keys))
	for i := 1; i < len(keys); i++ {
		prevKey[keys[i]] = keys[i-1]
	}

	for _, curr := range keys {
		if !strings.HasPrefix(curr, date) {
			continue
		}
		var prev Snapshot
		if pk, ok := prevKey[curr]; ok {
			prev = series[pk]
		}
		appendHourRow(report.Servers, prev, series[curr], curr)
		report.Hours = append(report.Hours, curr)
	}
	return report
}

// appendHourRow adds one transition to every row, creating rows for names
// first seen in this transition. Rows that predate a name's appearance in
// this hour's deltas still receive an entry with null values, keeping each
// row aligned with the axis from its first appearance onward.
func appendHourRow(rows map[string]*ServerHours, prev, curr Snapshot, hour string) {
	deltas := ComputeDeltas(prev, curr)
	for name := range deltas {
		if _, ok := rows[name]; !ok {
			rows[name] = &ServerHours{Name: name}
		}
	}
	for name, row := range rows {
		delta := deltas[name]
		var tb, inTB *string
		if delta.HasOutbound {
			v := TBString(QuantizeTB(delta.Outbound))
			tb = &v
		}
		if delta.HasInbound {
			v := TBString(QuantizeTB(delta.Inbound))
			inTB = &v
		}
		row.Deltas = append(row.Deltas, HourDelta{Hour: hour, TB: tb, InTB: inTB})
	}
}

// DayTotal is one calendar date's usage, either fleet-wide or for one
// server row.
type DayTotal struct {
	Date       string `json:"date"`
	OutboundTB string `json:"outbound_tb"`
	InboundTB  string `json:"inbound_tb"`
}

// ServerDays is one display name's per-day breakdown. The id mirrors the
// name because daily rows aggregate across rebuilt identifiers.
type ServerDays struct {
	ID   string     `json:"id"`
	Name string     `json:"name"`
	Days []DayTotal `json:"days"`
}

// DailyReport is the daily view document: the most recent 35 dates with
// data, fleet peaks and totals in both directions, and per-name rows over
// the same date window.
type DailyReport struct {
	Days    []DayTotal   `json:"days"`
	Peak    string       `json:"peak"`
	Total   string       `json:"total"`
	InPeak  string       `json:"in_peak"`
	InTotal string       `json:"in_total"`
	Servers []ServerDays `json:"servers"`
}

// BuildDailyReport attributes every transition's delta to the calendar
// date of the later bucket and rolls up per-date and per-(date, name)
// totals. Fewer than two buckets yields the explicit empty document.
func BuildDailyReport(series Series) DailyReport {
	report := DailyReport{
		Days:    []DayTotal{},
		Peak:    TBString(decimal.Zero),
		Total:   TBString(decimal.Zero),
		InPeak:  TBString(decimal.Zero),
		InTotal: TBString(decimal.Zero),
		Servers: []ServerDays{},
	}
	keys := series.SortedHours()
	if len(keys) < 2 {
		return report
	}

	dayOut := make(map[string]decimal.Decimal)
	dayIn := make(map[string]decimal.Decimal)
	serverOut := make(map[string]map[string]decimal.Decimal)
	serverIn := make(map[string]map[string]decimal.Decimal)

	for i := 1; i < len(keys); i++ {
		date := DateOfHour(keys[i])
		if date == "" {
			continue
		}
		for name, delta := range ComputeDeltas(series[keys[i-1]], series[keys[i]]) {
			if delta.HasOutbound {
				dayOut[date] = dayOut[date].Add(delta.Outbound)
				if serverOut[name] == nil {
					serverOut[name] = make(map[string]decimal.Decimal)
				}
				serverOut[name][date] = serverOut[name][date].Add(delta.Outbound)
			}
			if delta.HasInbound {
				dayIn[date] = dayIn[date].Add(delta.Inbound)
				if serverIn[name] == nil {
					serverIn[name] = make(map[string]decimal.Decimal)
				}
				serverIn[name][date] = serverIn[name][date].Add(delta.Inbound)
			}
		}
	}

	dates := make(map[string]struct{}, len(dayOut)+len(dayIn))
	for date := range dayOut {
		dates[date] = struct{}{}
	}
	for date := range dayIn {
		dates[date] = struct{}{}
	}
	window := make([]string, 0, len(dates))
	for date := range dates {
		window = append(window, date)
	}
	sort.Strings(window)
	if len(window) > 35 {
		window = window[len(window)-35:]
	}

	peak, total := decimal.Zero, decimal.Zero
	inPeak, inTotal := decimal.Zero, decimal.Zero
	for _, date := range window {
		out := QuantizeTB(dayOut[date])
		in := QuantizeTB(dayIn[date])
		report.Days = append(report.Days, DayTotal{
			Date:       date,
			OutboundTB: TBString(out),
			InboundTB:  TBString(in),
		})
		if out.GreaterThan(peak) {
			peak = out
		}
		if in.GreaterThan(inPeak) {
			inPeak = in
		}
		total = total.Add(out)
		inTotal = inTotal.Add(in)
	}
	report.Peak = TBString(QuantizeTB(peak))
	report.Total = TBString(QuantizeTB(total))
	report.InPeak = TBString(QuantizeTB(inPeak))
	report.InTotal = TBString(QuantizeTB(inTotal))

	names := make(map[string]struct{}, len(serverOut)+len(serverIn))
	for name := range serverOut {
		names[name] = struct{}{}
	}
	for name := range serverIn {
		names[name] = struct{}{}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	for _, name := range sorted {
		row := ServerDays{ID: name, Name: name}
		for _, date := range window {
			row.Days = append(row.Days, DayTotal{
				Date:       date,
				OutboundTB: TBString(QuantizeTB(serverOut[name][date])),
				InboundTB:  TBString(QuantizeTB(serverIn[name][date])),
			})
		}
		report.Servers = append(report.Servers, row)
	}
	return report
}

// TrackingTotals is the cumulative usage since an operator-chosen start
// point. Start is null only when the series is empty.
type TrackingTotals struct {
	Start      *string `json:"start"`
	OutboundTB string  `json:"outbound_tb"`
	InboundTB  string  `json:"inbound_tb"`
}

// ComputeTrackingTotals sums every computable delta from the first bucket
// at or after startOverride (the series start when override is empty)
// through the end of the series. An override beyond the last bucket
// deliberately yields zero totals labeled with that override instead of
// falling back to the whole series.
func ComputeTrackingTotals(series Series, startOverride string) TrackingTotals {
	keys := series.SortedHours()
	if len(keys) == 0 {
		return TrackingTotals{OutboundTB: TBString(decimal.Zero), InboundTB: TBString(decimal.Zero)}
	}

	startIdx := 0
	startLabel := keys[0]
	if startOverride != "" {
		startIdx = -1
		for i, key := range keys {
			if key >= startOverride {
				startIdx = i
				startLabel = startOverride
				break
			}
		}
		if startIdx < 0 {
			label := startOverride
			return TrackingTotals{
				Start:      &label,
				OutboundTB: TBString(decimal.Zero),
				InboundTB:  TBString(decimal.Zero),
			}
		}
	}

	totalOut, totalIn := decimal.Zero, decimal.Zero
	for i := startIdx + 1; i < len(keys); i++ {
		for _, delta := range ComputeDeltas(series[keys[i-1]], series[keys[i]]) {
			if delta.HasOutbound {
				totalOut = totalOut.Add(delta.Outbound)
			}
			if delta.HasInbound {
				totalIn = totalIn.Add(delta.Inbound)
			}
		}
	}
	return TrackingTotals{
		Start:      &startLabel,
		OutboundTB: TBString(QuantizeTB(totalOut)),
		InboundTB:  TBString(QuantizeTB(totalIn)),
	}
}
