package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SnapshotRecorder appends the current traffic counters to the hourly
// series, reporting whether a new bucket was written.
type SnapshotRecorder interface {
	RecordHourly(ctx context.Context) (bool, error)
}

// SnapshotJob drives the hourly accounting snapshot. A missed bucket
// loses an hour of usage history, so failures retry with backoff before
// giving up.
type SnapshotJob struct {
	collector SnapshotRecorder
	logger    *zap.Logger
}

func NewSnapshotJob(collector SnapshotRecorder, logger *zap.Logger) *SnapshotJob {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &SnapshotJob{
		collector: collector,
		logger:    logger,
	}
}

func (j *SnapshotJob) RecordHourly() {
	if j == nil || j.collector == nil {
		return
	}

	start := time.Now()

	var (
		recorded bool
		lastErr  error
	)

	backoff := 5 * time.Second
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		recorded, lastErr = j.collector.RecordHourly(ctx)
		cancel()

		if lastErr == nil {
			if recorded {
				j.logger.Info("hourly snapshot job finished",
					zap.Duration("cost", time.Since(start)))
			}
			return
		}

		if attempt < 3 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}

	j.logger.Error("hourly snapshot job failed",
		zap.Error(lastErr),
		zap.Duration("cost", time.Since(start)),
	)
}
