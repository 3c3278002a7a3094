package jobs

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/internal/repository"
	"github.com/xiaowoniu928/hetzner-web/internal/service"
)

// Provisioner runs the bulk fleet operations the schedule can trigger.
type Provisioner interface {
	DeleteAll(ctx context.Context) (deleted, skipped int, err error)
	CreateFromSnapshots(ctx context.Context) ([]service.CreatedServer, error)
}

// MaintenanceJob fires the operator's scheduled tasks (delete_all,
// create_from_snapshots) when the wall clock matches one of their
// configured times. Each action/time slot runs at most once per day;
// the registry is in-memory, so a restart inside the matching minute
// may rerun a slot, which both actions tolerate.
type MaintenanceJob struct {
	provision  Provisioner
	configRepo repository.WatchdogConfigRepository
	notifier   service.Notifier
	logger     *zap.Logger

	mu  sync.Mutex
	ran map[string]string

	nowFunc func() time.Time
}

func NewMaintenanceJob(
	provision Provisioner,
	configRepo repository.WatchdogConfigRepository,
	notifier service.Notifier,
	logger *zap.Logger,
) *MaintenanceJob {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &MaintenanceJob{
		provision:  provision,
		configRepo: configRepo,
		notifier:   notifier,
		logger:     logger,
		ran:        make(map[string]string),
		nowFunc:    time.Now,
	}
}

func (j *MaintenanceJob) Tick() {
	if j == nil || j.provision == nil {
		return
	}

	loadCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	cfg, err := j.configRepo.Load(loadCtx)
	cancel()
	if err != nil {
		j.logger.Warn("schedule config load failed", zap.Error(err))
		return
	}
	if !cfg.Scheduler.Enabled {
		return
	}

	now := j.nowFunc()
	hhmm := now.Format("15:04")
	date := now.Format("2006-01-02")

	for _, task := range cfg.Scheduler.NormalizedTasks() {
		for _, at := range task.Times {
			if strings.TrimSpace(at) != hhmm {
				continue
			}
			if !j.claimSlot(string(task.Action)+"@"+hhmm, date) {
				continue
			}
			j.runTask(task.Action)
		}
	}
}

// claimSlot marks an action/time slot as run for the given date. It
// returns false when the slot already ran today.
func (j *MaintenanceJob) claimSlot(key, date string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.ran[key] == date {
		return false
	}
	j.ran[key] = date
	return true
}

func (j *MaintenanceJob) runTask(action model.TaskAction) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	switch action {
	case model.TaskDeleteAll:
		deleted, skipped, err := j.provision.DeleteAll(ctx)
		if err != nil {
			j.logger.Error("scheduled deletion failed", zap.Error(err))
			notifyText(j.notifier, j.logger, "❌ Scheduled deletion failed: "+err.Error())
			return
		}
		j.logger.Info("scheduled deletion finished",
			zap.Int("deleted", deleted),
			zap.Int("skipped", skipped),
			zap.Duration("cost", time.Since(start)))
		notifyText(j.notifier, j.logger,
			fmt.Sprintf("🗑 Scheduled deletion finished: %d deleted, %d skipped", deleted, skipped))

	case model.TaskCreateFromSnapshots:
		created, err := j.provision.CreateFromSnapshots(ctx)
		if err != nil {
			j.logger.Error("scheduled creation failed", zap.Error(err))
			notifyText(j.notifier, j.logger, "❌ Scheduled creation failed: "+err.Error())
			return
		}
		j.logger.Info("scheduled creation finished",
			zap.Int("created", len(created)),
			zap.Duration("cost", time.Since(start)))
		notifyText(j.notifier, j.logger,
			fmt.Sprintf("🧩 Scheduled creation finished: %d server(s)", len(created)))

	default:
		j.logger.Warn("unknown scheduled task action", zap.String("action", string(action)))
	}
}
