package jobs

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/xiaowoniu928/hetzner-web/internal/service"
)

// notifyText pushes a job outcome to the operator chat. An unconfigured
// Telegram section is normal and stays quiet.
func notifyText(notifier service.Notifier, logger *zap.Logger, text string) {
	if notifier == nil || text == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := notifier.SendText(ctx, text); err != nil &&
		!errors.Is(err, service.ErrTelegramNotConfigured) {
		logger.Warn("send job notification failed", zap.Error(err))
	}
}
