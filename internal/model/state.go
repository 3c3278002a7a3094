package model

import (
	"github.com/xiaowoniu928/hetzner-web/internal/traffic"
)

// ReportState is the externally persisted accounting document: the
// append-only hourly snapshot series plus the manual-report baseline
// (the instant and readings of the last manual report, used to show
// interval growth between two report invocations).
type ReportState struct {
	Hourly   traffic.Series   `json:"hourly"`
	LastTime string           `json:"last_time,omitempty"`
	Servers  traffic.Snapshot `json:"servers,omitempty"`
}

// Normalize makes the maps usable after a zero-value or partial decode.
func (s *ReportState) Normalize() {
	if s.Hourly == nil {
		s.Hourly = traffic.Series{}
	}
	if s.Servers == nil {
		s.Servers = traffic.Snapshot{}
	}
}
