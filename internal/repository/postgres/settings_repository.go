package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/internal/repository"
)

type settingsRepository struct {
	pool *pgxpool.Pool
}

func NewSettingsRepository(pool *pgxpool.Pool) repository.SettingsRepository {
	return &settingsRepository{pool: pool}
}

var _ repository.SettingsRepository = (*settingsRepository)(nil)

func (r *settingsRepository) Load(ctx context.Context) (*model.DashboardSettings, error) {
	settings := &model.DashboardSettings{}
	err := loadDocument(ctx, r.pool, keyDashboardSettings, settings)
	if errors.Is(err, ErrNotFound) {
		return &model.DashboardSettings{}, nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

func (r *settingsRepository) Save(ctx context.Context, settings *model.DashboardSettings) error {
	if settings == nil {
		return fmt.Errorf("dashboard settings is nil")
	}
	return saveDocument(ctx, r.pool, keyDashboardSettings, settings)
}
