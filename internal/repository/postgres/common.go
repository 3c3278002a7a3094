package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xiaowoniu928/hetzner-web/internal/repository"
)

var ErrNotFound = repository.ErrNotFound

// errDecode marks a stored document that no longer unmarshals. Callers
// that can recover (the report state) check for it with errors.Is.
var errDecode = errors.New("decode document")

// Documents live in one key/value table so the driver stays a drop-in
// replacement for the file store: whole-document load and save, no
// schema knowledge about the payload.
const schema = `
CREATE TABLE IF NOT EXISTS watchdog_state (
	key        text PRIMARY KEY,
	data       jsonb NOT NULL,
	updated_at timestamptz NOT NULL DEFAULT now()
)`

const (
	keyReportState       = "report_state"
	keyDashboardSettings = "dashboard_settings"
)

// EnsureSchema creates the document table. Run once at startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure watchdog_state table: %w", err)
	}
	return nil
}

func loadDocument(ctx context.Context, pool *pgxpool.Pool, key string, out any) error {
	var raw []byte
	err := pool.QueryRow(ctx, `SELECT data FROM watchdog_state WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("load document %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w %s: %v", errDecode, key, err)
	}
	return nil
}

func saveDocument(ctx context.Context, pool *pgxpool.Pool, key string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", key, err)
	}
	_, err = pool.Exec(ctx, `
		INSERT INTO watchdog_state (key, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		key, payload)
	if err != nil {
		return fmt.Errorf("save document %s: %w", key, err)
	}
	return nil
}
