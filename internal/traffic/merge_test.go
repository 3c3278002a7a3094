package traffic

import "testing"

func TestMergeSnapshotByNameAdditivity(t *testing.T) {
	t.Parallel()

	snap := Snapshot{
		"A": {Name: "srv", OutboundBytes: f64(100)},
		"B": {Name: "srv", InboundBytes: f64(50)},
	}

	merged := MergeSnapshotByName(snap)
	if len(merged) != 1 {
		t.Fatalf("merged rows = %d, want 1", len(merged))
	}
	row := merged["srv"]
	if row.OutboundBytes == nil || *row.OutboundBytes != 100 {
		t.Errorf("outbound = %v, want 100", row.OutboundBytes)
	}
	if row.InboundBytes == nil || *row.InboundBytes != 50 {
		t.Errorf("inbound = %v, want 50", row.InboundBytes)
	}
}

func TestMergeSnapshotByNameNilIdentity(t *testing.T) {
	t.Parallel()

	merged := MergeSnapshotByName(Snapshot{
		"A": {Name: "srv"},
		"B": {Name: "srv"},
	})
	row := merged["srv"]
	if row.OutboundBytes != nil || row.InboundBytes != nil {
		t.Errorf("both-nil counters must stay nil, got %+v", row)
	}
}

func TestMergeSnapshotByNameFallsBackToID(t *testing.T) {
	t.Parallel()

	merged := MergeSnapshotByName(Snapshot{
		"77": {OutboundBytes: f64(10)},
	})
	row, ok := merged["77"]
	if !ok {
		t.Fatalf("expected id-keyed row, got %v", merged)
	}
	if row.Name != "77" {
		t.Errorf("name = %q, want the id", row.Name)
	}
}

func TestMergeSeriesByName(t *testing.T) {
	t.Parallel()

	series := Series{
		"2024-01-01 00:00": {
			"1": {Name: "srv", OutboundBytes: f64(5)},
			"2": {Name: "srv", OutboundBytes: f64(7)},
		},
		"2024-01-01 01:00": {
			"2": {Name: "srv", OutboundBytes: f64(9)},
		},
	}

	merged := MergeSeriesByName(series)
	if got := *merged["2024-01-01 00:00"]["srv"].OutboundBytes; got != 12 {
		t.Errorf("hour 0 outbound = %v, want 12", got)
	}
	if got := *merged["2024-01-01 01:00"]["srv"].OutboundBytes; got != 9 {
		t.Errorf("hour 1 outbound = %v, want 9", got)
	}
}
