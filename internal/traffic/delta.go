package traffic

import "github.com/shopspring/decimal"

// Delta is the usage derived for one display name across one hour
// transition. Counters are cumulative, so a delta exists only when both
// endpoints reported a value and the counter did not decrease; a decrease
// is the rebuild signal and withholds the delta entirely instead of
// producing a negative. Values are TB at three decimal places.
type Delta struct {
	Outbound    decimal.Decimal
	Inbound     decimal.Decimal
	HasOutbound bool
	HasInbound  bool
}

// ComputeDeltas derives per-name deltas between two adjacent snapshots.
// Readings are paired by provider id and the result is attributed to the
// display name (current name, else previous name, else the id). When two
// ids resolve to the same name within one transition their deltas sum.
// Every id present in curr yields an entry for its name, even when no
// delta is computable, so callers can tell "seen but unknown" from
// "absent".
func ComputeDeltas(prev, curr Snapshot) map[string]Delta {
	deltas := make(map[string]Delta, len(curr))
	for id, reading := range curr {
		prevReading := prev[id]
		name := reading.Name
		if name == "" {
			name = prevReading.Name
		}
		if name == "" {
			name = id
		}

		entry := deltas[name]
		if out, ok := counterDelta(prevReading.OutboundBytes, reading.OutboundBytes); ok {
			entry.Outbound = entry.Outbound.Add(out)
			entry.HasOutbound = true
		}
		if in, ok := counterDelta(prevReading.InboundBytes, reading.InboundBytes); ok {
			entry.Inbound = entry.Inbound.Add(in)
			entry.HasInbound = true
		}
		deltas[name] = entry
	}
	return deltas
}

// counterDelta applies the monotonic rule to one counter pair: both
// endpoints present and curr >= prev, else no delta.
func counterDelta(prev, curr *float64) (decimal.Decimal, bool) {
	if prev == nil || curr == nil || *curr < *prev {
		return decimal.Decimal{}, false
	}
	return BytesToTB(*curr - *prev), true
}
