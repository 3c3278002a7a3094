package traffic

// MergeSnapshotByName re-keys one hour's snapshot by display name, summing
// counters across identifiers that share a name at that hour. A nil
// counter is the identity: one-sided nil keeps the known side, both nil
// stays nil. This gives a name continuous usage across a rebuild that
// replaced its identifier mid-period. In practice at most one identifier
// per name is live in a given hour (the old server is deleted on rebuild);
// concurrently live same-named identifiers would sum into one entry.
func MergeSnapshotByName(snap Snapshot) Snapshot {
	merged := make(Snapshot, len(snap))
	for id, reading := range snap {
		name := reading.Name
		if name == "" {
			name = id
		}
		entry, ok := merged[name]
		if !ok {
			entry = Reading{Name: name}
		}
		entry.OutboundBytes = sumOptional(entry.OutboundBytes, reading.OutboundBytes)
		entry.InboundBytes = sumOptional(entry.InboundBytes, reading.InboundBytes)
		merged[name] = entry
	}
	return merged
}

// MergeSeriesByName applies MergeSnapshotByName to every hour bucket
// independently.
func MergeSeriesByName(series Series) Series {
	merged := make(Series, len(series))
	for hour, snap := range series {
		merged[hour] = MergeSnapshotByName(snap)
	}
	return merged
}

func sumOptional(a, b *float64) *float64 {
	if a == nil && b == nil {
		return nil
	}
	sum := 0.0
	if a != nil {
		sum += *a
	}
	if b != nil {
		sum += *b
	}
	return &sum
}
