package file

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/xiaowoniu928/hetzner-web/internal/model"
	"github.com/xiaowoniu928/hetzner-web/internal/repository"
)

// ConfigStore reads and rewrites the operator's config.yaml.
type ConfigStore struct {
	mu   sync.Mutex
	path string
}

func NewConfigStore(path string) *ConfigStore {
	return &ConfigStore{path: path}
}

var _ repository.WatchdogConfigRepository = (*ConfigStore)(nil)

func (s *ConfigStore) Load(ctx context.Context) (*model.WatchdogConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("watchdog config %s: %w", s.path, repository.ErrNotFound)
		}
		return nil, fmt.Errorf("read watchdog config: %w", err)
	}
	cfg := &model.WatchdogConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("decode watchdog config: %w", err)
	}
	return cfg, nil
}

func (s *ConfigStore) Save(ctx context.Context, cfg *model.WatchdogConfig) error {
	if cfg == nil {
		return fmt.Errorf("watchdog config is nil")
	}
	payload, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode watchdog config: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(s.path, payload); err != nil {
		return fmt.Errorf("write watchdog config: %w", err)
	}
	return nil
}
