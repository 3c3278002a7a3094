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

// StateStore keeps the report state as a single JSON document on disk.
type StateStore struct {
	mu   sync.Mutex
	path string
}

func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

var _ repository.StateRepository = (*StateStore)(nil)

// Load returns an empty state when the file is missing or does not
// parse. A corrupt document starts a fresh series rather than wedging
// every caller.
func (s *StateStore) Load(ctx context.Context) (*model.ReportState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := &model.ReportState{}
	raw, err := os.ReadFile(s.path)
	if err == nil {
		if decodeErr := json.Unmarshal(raw, state); decodeErr != nil {
			state = &model.ReportState{}
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read report state: %w", err)
	}
	state.Normalize()
	return state, nil
}

func (s *StateStore) Save(ctx context.Context, state *model.ReportState) error {
	if state == nil {
		return fmt.Errorf("report state is nil")
	}
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode report state: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeAtomic(s.path, payload); err != nil {
		return fmt.Errorf("write report state: %w", err)
	}
	return nil
}
