package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	specHourlySnapshot = "0 0 * * * *"
	specMinuteTick     = "0 * * * * *"
)

// SnapshotTask records the hourly traffic snapshot.
type SnapshotTask interface {
	RecordHourly()
}

// MonitorTask runs one traffic-limit check when its interval is due.
type MonitorTask interface {
	Tick()
}

// ReportTask delivers the daily traffic report at its configured time.
type ReportTask interface {
	Tick()
}

// MaintenanceTask fires the operator's scheduled delete/create tasks.
type MaintenanceTask interface {
	Tick()
}

type Deps struct {
	SnapshotJob    SnapshotTask
	MonitorJob     MonitorTask
	ReportJob      ReportTask
	MaintenanceJob MaintenanceTask
}

// NewScheduler wires the watchdog cadence: the snapshot job at the top
// of every hour, everything else on a minute tick with the job itself
// deciding whether it is due. The caller starts and stops the cron.
func NewScheduler(deps Deps, logger *zap.Logger) *cron.Cron {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := cron.New(cron.WithSeconds(), cron.WithLocation(time.Local))

	if deps.SnapshotJob != nil {
		addFunc(c, specHourlySnapshot, "traffic.record_hourly", logger, deps.SnapshotJob.RecordHourly)
	}
	if deps.MonitorJob != nil {
		addFunc(c, specMinuteTick, "traffic.monitor", logger, deps.MonitorJob.Tick)
	}
	if deps.ReportJob != nil {
		addFunc(c, specMinuteTick, "report.daily", logger, deps.ReportJob.Tick)
	}
	if deps.MaintenanceJob != nil {
		addFunc(c, specMinuteTick, "tasks.scheduled", logger, deps.MaintenanceJob.Tick)
	}

	return c
}

func addFunc(c *cron.Cron, spec string, name string, logger *zap.Logger, fn func()) {
	if c == nil || fn == nil {
		return
	}

	if _, err := c.AddFunc(spec, func() {
		defer recoverJobPanic(name, logger)
		start := time.Now()
		fn()
		logger.Debug("scheduler job finished", zap.String("job", name), zap.Duration("cost", time.Since(start)))
	}); err != nil {
		logger.Error("register scheduler job failed",
			zap.String("job", name),
			zap.String("spec", spec),
			zap.Error(err),
		)
	}
}

func recoverJobPanic(jobName string, logger *zap.Logger) {
	if logger == nil {
		return
	}

	if recovered := recover(); recovered != nil {
		logger.Error("scheduler job panic recovered",
			zap.String("job", jobName),
			zap.Any("panic", recovered),
		)
	}
}
