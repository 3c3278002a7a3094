package repository

import (
	"context"
	"errors"

	"github.com/xiaowoniu928/hetzner-web/internal/model"
)

var ErrNotFound = errors.New("not found")

// StateRepository persists the traffic accounting document.
//
// Load never fails because of missing or unreadable content: the
// watchdog recovers from a wiped state file by starting a fresh series,
// so drivers return an empty normalized state instead of an error.
// Writes are serialized inside the driver.
type StateRepository interface {
	Load(ctx context.Context) (*model.ReportState, error)
	Save(ctx context.Context, state *model.ReportState) error
}

// WatchdogConfigRepository persists the operator config document.
// Unlike the report state this document is required: Load fails when it
// is missing.
type WatchdogConfigRepository interface {
	Load(ctx context.Context) (*model.WatchdogConfig, error)
	Save(ctx context.Context, cfg *model.WatchdogConfig) error
}

// SettingsRepository persists dashboard credentials and the tracking
// window start. A missing document loads as zero settings.
type SettingsRepository interface {
	Load(ctx context.Context) (*model.DashboardSettings, error)
	Save(ctx context.Context, settings *model.DashboardSettings) error
}
