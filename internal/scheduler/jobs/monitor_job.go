package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/repository"
)

// AlertRunner performs one traffic-limit pass over the fleet.
type AlertRunner interface {
	CheckOnce(ctx context.Context) error
}

// MonitorJob gates the limit monitor to the configured check interval.
// The cron ticks it every minute; a pass only runs once the interval
// since the previous pass has elapsed, so an operator edit to
// check_interval applies without a restart.
type MonitorJob struct {
	alerts     AlertRunner
	configRepo repository.WatchdogConfigRepository
	logger     *zap.Logger

	mu       sync.Mutex
	lastPass time.Time

	nowFunc func() time.Time
}

func NewMonitorJob(
	alerts AlertRunner,
	configRepo repository.WatchdogConfigRepository,
	logger *zap.Logger,
) *MonitorJob {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MonitorJob{
		alerts:     alerts,
		configRepo: configRepo,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

func (j *MonitorJob) Tick() {
	if j == nil || j.alerts == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	cfg, err := j.configRepo.Load(ctx)
	if err != nil {
		j.logger.Warn("monitor config load failed", zap.Error(err))
		return
	}
	if cfg.Traffic.LimitGB <= 0 {
		return
	}

	interval := time.Duration(cfg.Traffic.IntervalSeconds()) * time.Second
	now := j.nowFunc()

	j.mu.Lock()
	if !j.lastPass.IsZero() && now.Sub(j.lastPass) < interval {
		j.mu.Unlock()
		return
	}
	j.lastPass = now
	j.mu.Unlock()

	if err := j.alerts.CheckOnce(ctx); err != nil {
		j.logger.Warn("traffic monitor pass failed", zap.Error(err))
	}
}
