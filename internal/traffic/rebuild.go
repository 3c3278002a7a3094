package traffic

// DetectLastRebuilds scans the series chronologically and records, per
// identifier, the most recent hour at which its outbound counter decreased
// relative to the previous reading seen for that identifier. Hours without
// a reading for an identifier are skipped, so a decrease is detected even
// across gaps. Identifiers that never reset are absent from the result.
func DetectLastRebuilds(series Series) map[string]string {
	last := make(map[string]string)
	prevOut := make(map[string]float64)
	for _, hour := range series.SortedHours() {
		for id, reading := range series[hour] {
			if reading.OutboundBytes == nil {
				continue
			}
			current := *reading.OutboundBytes
			if prev, seen := prevOut[id]; seen && current < prev {
				last[id] = hour
			}
			prevOut[id] = current
		}
	}
	return last
}
