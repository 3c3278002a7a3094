// Package traffic implements the accounting core of the bandwidth watchdog:
// an append-only hourly series of per-server counter snapshots and the pure
// derivations over it (monotonic-aware deltas, billing-cycle accumulation,
// hourly/daily/tracking aggregation and cross-rebuild merging by name).
//
// Provider ids are not stable across a rebuild; the display name is the
// stable identity signal. Every function in this package is a pure function
// of its inputs and safe to call from any goroutine.
package traffic

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// HourLayout is the bucket label format. Lexical order equals
// chronological order, which the walk functions rely on.
const HourLayout = "2006-01-02 15:00"

var (
	bytesPerTB = decimal.NewFromInt(1024).Pow(decimal.NewFromInt(4))
	bytesPerGB = decimal.NewFromInt(1024).Pow(decimal.NewFromInt(3))
)

// Reading is one server's cumulative lifetime counters at a point in time.
// A nil counter means "unknown", which is distinct from zero.
type Reading struct {
	Name          string   `json:"name"`
	OutboundBytes *float64 `json:"outbound_bytes"`
	InboundBytes  *float64 `json:"inbound_bytes"`
}

// UnmarshalJSON tolerates malformed counters: values that are not numbers
// (or numeric strings) decode as unknown rather than failing the load.
// Non-object input is still an error so containers can skip the entry.
func (r *Reading) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name          json.RawMessage `json:"name"`
		OutboundBytes json.RawMessage `json:"outbound_bytes"`
		InboundBytes  json.RawMessage `json:"inbound_bytes"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Name = looseString(raw.Name)
	r.OutboundBytes = looseFloat(raw.OutboundBytes)
	r.InboundBytes = looseFloat(raw.InboundBytes)
	return nil
}

func looseString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func looseFloat(raw json.RawMessage) *float64 {
	if len(raw) == 0 {
		return nil
	}
	// Decode through a pointer so an explicit null stays unknown
	// instead of collapsing to zero.
	var f *float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if parsed, perr := strconv.ParseFloat(s, 64); perr == nil {
			return &parsed
		}
	}
	return nil
}

// Snapshot maps provider server id to its reading at one instant.
type Snapshot map[string]Reading

// UnmarshalJSON drops entries whose value is not an object so one corrupt
// record cannot poison an hour bucket.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*s = Snapshot{}
		return nil
	}
	out := make(Snapshot, len(raw))
	for id, entry := range raw {
		var reading Reading
		if err := json.Unmarshal(entry, &reading); err != nil {
			continue
		}
		out[id] = reading
	}
	*s = out
	return nil
}

// Series maps hour bucket labels to snapshots. At most one snapshot exists
// per bucket and buckets are never overwritten once written.
type Series map[string]Snapshot

// SortedHours returns the bucket labels in chronological order.
func (s Series) SortedHours() []string {
	hours := make([]string, 0, len(s))
	for hour := range s {
		hours = append(hours, hour)
	}
	sort.Strings(hours)
	return hours
}

// Record inserts a snapshot for the given hour bucket. Recording into an
// existing bucket is a no-op, so repeated collection within one hour is
// idempotent. Reports whether the snapshot was stored.
func (s Series) Record(hour string, snap Snapshot) bool {
	if _, exists := s[hour]; exists {
		return false
	}
	s[hour] = snap
	return true
}

// HourKey buckets a wall-clock instant into its series label.
func HourKey(t time.Time) string {
	return t.Format(HourLayout)
}

// DateOfHour returns the calendar date part of a bucket label, or "" when
// the label has no date/hour separator.
func DateOfHour(hour string) string {
	for i := 0; i < len(hour); i++ {
		if hour[i] == ' ' {
			return hour[:i]
		}
	}
	return ""
}

// HourOfDay parses the hour-of-day component of a bucket label. Returns
// nil for labels that do not parse, mirroring the nullable field in
// emitted cycle points.
func HourOfDay(hour string) *int {
	t, err := time.Parse(HourLayout, hour)
	if err != nil {
		return nil
	}
	h := t.Hour()
	return &h
}

// ValidHourLabel reports whether a string is a well-formed bucket label.
func ValidHourLabel(hour string) bool {
	_, err := time.Parse(HourLayout, hour)
	return err == nil
}

// BytesToTB converts a raw byte count to TB (1 TB = 1024^4 bytes)
// quantized to three decimal places, ties rounding away from zero.
func BytesToTB(bytes float64) decimal.Decimal {
	return decimal.NewFromFloat(bytes).Div(bytesPerTB).Round(3)
}

// BytesToGB converts a raw byte count to GB at two decimal places. Used
// only for presenting configured limits, never for billing figures.
func BytesToGB(bytes float64) decimal.Decimal {
	return decimal.NewFromFloat(bytes).Div(bytesPerGB).Round(2)
}

// QuantizeTB re-rounds a running TB figure to three decimal places.
// Cumulative figures are requantized after every addition so drift stays
// bounded per step instead of accumulating silently.
func QuantizeTB(d decimal.Decimal) decimal.Decimal {
	return d.Round(3)
}

// TBString renders a TB figure with exactly three fractional digits, the
// form every persisted or reported figure uses.
func TBString(d decimal.Decimal) string {
	return d.StringFixed(3)
}
