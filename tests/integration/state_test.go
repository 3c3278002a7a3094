//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/internal/traffic"
)

func floatPtr(v float64) *float64 { return &v }

func TestStateRepositoryMissingDocumentLoadsEmpty(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	state, err := suite.stateRepo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if state == nil || state.Hourly == nil {
		t.Fatal("expected a normalized empty state, got nil maps")
	}
	if len(state.Hourly) != 0 {
		t.Fatalf("expected an empty series, got %d buckets", len(state.Hourly))
	}
}

func TestStateRepositoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	in := &model.ReportState{
		Hourly: traffic.Series{
			"2024-01-01 00:00": traffic.Snapshot{
				"101": {Name: "srv-a", OutboundBytes: floatPtr(1024), InboundBytes: floatPtr(2048)},
			},
			"2024-01-01 01:00": traffic.Snapshot{
				"101": {Name: "srv-a", OutboundBytes: floatPtr(4096)},
			},
		},
		LastTime: "2024-01-01 01:05",
		Servers: traffic.Snapshot{
			"101": {Name: "srv-a", OutboundBytes: floatPtr(4096)},
		},
	}
	if err := suite.stateRepo.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := suite.stateRepo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out.Hourly) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(out.Hourly))
	}
	reading, ok := out.Hourly["2024-01-01 00:00"]["101"]
	if !ok {
		t.Fatal("bucket 2024-01-01 00:00 lost server 101")
	}
	if reading.Name != "srv-a" || reading.OutboundBytes == nil || *reading.OutboundBytes != 1024 {
		t.Fatalf("reading mangled on round trip: %+v", reading)
	}
	second := out.Hourly["2024-01-01 01:00"]["101"]
	if second.InboundBytes != nil {
		t.Fatalf("nil inbound counter became %v", *second.InboundBytes)
	}
	if out.LastTime != in.LastTime {
		t.Fatalf("last_time = %q, want %q", out.LastTime, in.LastTime)
	}
}

func TestStateRepositorySaveOverwritesDocument(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	first := &model.ReportState{
		Hourly: traffic.Series{
			"2024-02-01 00:00": traffic.Snapshot{"7": {Name: "old"}},
		},
	}
	if err := suite.stateRepo.Save(ctx, first); err != nil {
		t.Fatalf("Save first: %v", err)
	}

	second := &model.ReportState{
		Hourly: traffic.Series{
			"2024-02-01 00:00": traffic.Snapshot{"7": {Name: "old"}},
			"2024-02-01 01:00": traffic.Snapshot{"7": {Name: "old", OutboundBytes: floatPtr(10)}},
		},
	}
	if err := suite.stateRepo.Save(ctx, second); err != nil {
		t.Fatalf("Save second: %v", err)
	}

	out, err := suite.stateRepo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(out.Hourly) != 2 {
		t.Fatalf("expected the saved document to replace the row, got %d buckets", len(out.Hourly))
	}
}

func TestSettingsRepositoryRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	empty, err := suite.settingsRepo.Load(ctx)
	if err != nil {
		t.Fatalf("Load before save: %v", err)
	}
	if empty.Username != "" {
		t.Fatalf("expected zero settings before save, got %+v", empty)
	}

	in := &model.DashboardSettings{
		Username:      "operator",
		PasswordHash:  "$2a$10$abcdefghijklmnopqrstuv",
		TrackingStart: "2024-01-01 00:00",
	}
	if err := suite.settingsRepo.Save(ctx, in); err != nil {
		t.Fatalf("Save: %v", err)
	}

	out, err := suite.settingsRepo.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Username != in.Username || out.PasswordHash != in.PasswordHash || out.TrackingStart != in.TrackingStart {
		t.Fatalf("settings mangled on round trip: %+v", out)
	}
}
