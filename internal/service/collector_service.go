package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/event"
	"github.com/xiaowoniu928/hetzner-web/internal/metrics"
	"github.com/xiaowoniu928/hetzner-web/internal/repository"
	"github.com/xiaowoniu928/hetzner-web/internal/traffic"
)

// CollectorService samples the fleet's lifetime traffic counters and
// appends them to the hourly series. Buckets are idempotent: recording
// into an hour that already has a snapshot is a no-op, so the hourly
// job and the manual report can both fire inside the same hour without
// double-counting.
type CollectorService struct {
	cloud     CloudAPI
	stateRepo repository.StateRepository
	bus       *event.Bus
	logger    *zap.Logger

	nowFunc func() time.Time
}

func NewCollectorService(
	cloud CloudAPI,
	stateRepo repository.StateRepository,
	bus *event.Bus,
	logger *zap.Logger,
) *CollectorService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CollectorService{
		cloud:     cloud,
		stateRepo: stateRepo,
		bus:       bus,
		logger:    logger,
		nowFunc:   time.Now,
	}
}

// CollectSnapshot reads the live fleet and converts it into a snapshot
// keyed by decimal server id. Counters come from the per-server detail
// endpoint; when that fetch fails the reading keeps its name and
// unknown (nil) counters so the monotonic rule withholds the hour
// instead of fabricating a zero.
func (s *CollectorService) CollectSnapshot(ctx context.Context) (traffic.Snapshot, error) {
	servers, err := s.cloud.GetServers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list servers: %w", err)
	}

	snap := make(traffic.Snapshot, len(servers))
	for _, server := range servers {
		id := strconv.FormatInt(server.ID, 10)
		reading := traffic.Reading{Name: server.Name}
		if reading.Name == "" {
			reading.Name = id
		}

		detail, err := s.cloud.GetServer(ctx, server.ID)
		if err != nil || detail == nil {
			s.logger.Warn("server detail fetch failed",
				zap.String("server_id", id),
				zap.Error(err))
			snap[id] = reading
			continue
		}

		if detail.Name != "" {
			reading.Name = detail.Name
		}
		reading.OutboundBytes = detail.OutgoingTraffic
		reading.InboundBytes = detail.IngoingTraffic
		snap[id] = reading
	}
	return snap, nil
}

// RecordHourly appends the current counters under the current hour
// bucket. It reports whether a new bucket was written.
func (s *CollectorService) RecordHourly(ctx context.Context) (bool, error) {
	started := s.nowFunc()
	hour := traffic.HourKey(started)

	state, err := s.stateRepo.Load(ctx)
	if err != nil {
		return false, fmt.Errorf("load report state: %w", err)
	}
	if _, exists := state.Hourly[hour]; exists {
		return false, nil
	}

	snap, err := s.CollectSnapshot(ctx)
	if err != nil {
		return false, err
	}

	if !state.Hourly.Record(hour, snap) {
		return false, nil
	}
	if err := s.stateRepo.Save(ctx, state); err != nil {
		return false, fmt.Errorf("save report state: %w", err)
	}

	metrics.IncSnapshotRecorded()
	metrics.ObserveSnapshotDuration(s.nowFunc().Sub(started))
	metrics.SetTrackedServers(len(snap))
	if s.bus != nil {
		s.bus.Publish(event.EventSnapshotRecorded, event.SnapshotRecordedPayload{
			Hour:    hour,
			Servers: len(snap),
		})
	}

	s.logger.Info("hourly snapshot recorded",
		zap.String("hour", hour),
		zap.Int("servers", len(snap)))
	return true, nil
}
