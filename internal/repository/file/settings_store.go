package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/internal/repository"
)

// SettingsStore keeps the dashboard settings as web_config.json.
type SettingsStore struct {
	mu   sync.Mutex
	path string
}

func NewSettingsStore(path string) *SettingsStore {
	return &SettingsStore{path: path}
}

var _ repository.SettingsRepository = (*SettingsStore)(nil)

func (s *SettingsStore) Load(ctx context.Context) (*model.DashboardSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := &model.DashboardSettings{}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return nil, fmt.Errorf("read dashboard settings: %w", err)
	}
	if err := json.Unmarshal(raw, settings); err != nil {
		return nil, fmt.Errorf("decode dashboard settings: %w", err)
	}
	return settings, nil
}

func (s *SettingsStore) Save(ctx context.Context, settings *model.DashboardSettings) error {
	if settings == nil {
		return fmt.Errorf("dashboard settings is nil")
	}
	payload, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encode dashboard settings: %w", err)
	}
	payload = append(payload, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(s.path, payload); err != nil {
		return fmt.Errorf("write dashboard settings: %w", err)
	}
	return nil
}
