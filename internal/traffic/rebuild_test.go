package traffic

import "testing"

func TestDetectLastRebuilds(t *testing.T) {
	t.Parallel()

	series := Series{
		"2024-01-01 00:00": {"1": {Name: "srv", OutboundBytes: f64(5 * tbBytes)}},
		"2024-01-01 01:00": {"1": {Name: "srv", OutboundBytes: f64(tbBytes)}},
		"2024-01-01 02:00": {"1": {Name: "srv", OutboundBytes: f64(2 * tbBytes)}},
		"2024-01-01 03:00": {"1": {Name: "srv", OutboundBytes: f64(tbBytes / 2)}},
	}

	last := DetectLastRebuilds(series)
	if got := last["1"]; got != "2024-01-01 03:00" {
		t.Errorf("last rebuild = %q, want the most recent decrease", got)
	}
}

func TestDetectLastRebuildsSkipsMissingReadings(t *testing.T) {
	t.Parallel()

	// The decrease is only visible across the gap: 01:00 has no reading
	// for the id, so 02:00 compares against 00:00.
	series := Series{
		"2024-01-01 00:00": {"1": {Name: "srv", OutboundBytes: f64(5 * tbBytes)}},
		"2024-01-01 01:00": {"1": {Name: "srv"}},
		"2024-01-01 02:00": {"1": {Name: "srv", OutboundBytes: f64(tbBytes)}},
	}

	last := DetectLastRebuilds(series)
	if got := last["1"]; got != "2024-01-01 02:00" {
		t.Errorf("last rebuild = %q, want 2024-01-01 02:00", got)
	}
}

func TestDetectLastRebuildsOmitsStableServers(t *testing.T) {
	t.Parallel()

	series := Series{
		"2024-01-01 00:00": {"1": {Name: "srv", OutboundBytes: f64(0)}},
		"2024-01-01 01:00": {"1": {Name: "srv", OutboundBytes: f64(tbBytes)}},
	}

	if last := DetectLastRebuilds(series); len(last) != 0 {
		t.Errorf("monotonic counters must not report rebuilds, got %v", last)
	}
}
