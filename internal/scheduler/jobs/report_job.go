package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/repository"
	"github.com/xiaowoniu928/hetzner-web/internal/service"
)

// ReportSource renders the daily traffic summary text.
type ReportSource interface {
	DailyReportText(ctx context.Context) (string, error)
}

// ReportJob sends the daily traffic report when the wall clock matches
// telegram.daily_report_time, at most once per calendar day.
type ReportJob struct {
	reports    ReportSource
	configRepo repository.WatchdogConfigRepository
	notifier   service.Notifier
	logger     *zap.Logger

	mu       sync.Mutex
	sentDate string

	nowFunc func() time.Time
}

func NewReportJob(
	reports ReportSource,
	configRepo repository.WatchdogConfigRepository,
	notifier service.Notifier,
	logger *zap.Logger,
) *ReportJob {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ReportJob{
		reports:    reports,
		configRepo: configRepo,
		notifier:   notifier,
		logger:     logger,
		nowFunc:    time.Now,
	}
}

func (j *ReportJob) Tick() {
	if j == nil || j.reports == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cfg, err := j.configRepo.Load(ctx)
	if err != nil {
		j.logger.Warn("report config load failed", zap.Error(err))
		return
	}
	at := strings.TrimSpace(cfg.Telegram.DailyReportTime)
	if at == "" || !cfg.Telegram.Ready() {
		return
	}

	now := j.nowFunc()
	if now.Format("15:04") != at {
		return
	}
	date := now.Format("2006-01-02")

	j.mu.Lock()
	if j.sentDate == date {
		j.mu.Unlock()
		return
	}
	j.mu.Unlock()

	text, err := j.reports.DailyReportText(ctx)
	if err != nil {
		j.logger.Warn("daily report build failed", zap.Error(err))
		return
	}
	if err := j.notifier.SendText(ctx, text); err != nil {
		j.logger.Warn("daily report delivery failed", zap.Error(err))
		return
	}

	j.mu.Lock()
	j.sentDate = date
	j.mu.Unlock()

	j.logger.Info("daily report sent", zap.String("date", date), zap.String("at", at))
}
