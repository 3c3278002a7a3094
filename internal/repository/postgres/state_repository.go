package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/internal/repository"
)

type stateRepository struct {
	pool *pgxpool.Pool
}

func NewStateRepository(pool *pgxpool.Pool) repository.StateRepository {
	return &stateRepository{pool: pool}
}

var _ repository.StateRepository = (*stateRepository)(nil)

func (r *stateRepository) Load(ctx context.Context) (*model.ReportState, error) {
	state := &model.ReportState{}
	switch err := loadDocument(ctx, r.pool, keyReportState, state); {
	case err == nil:
	case errors.Is(err, ErrNotFound), errors.Is(err, errDecode):
		// Missing or torn document: start a fresh series like the file
		// store does instead of wedging the collector.
		state = &model.ReportState{}
	default:
		return nil, err
	}
	state.Normalize()
	return state, nil
}

func (r *stateRepository) Save(ctx context.Context, state *model.ReportState) error {
	if state == nil {
		return fmt.Errorf("report state is nil")
	}
	return saveDocument(ctx, r.pool, keyReportState, state)
}
