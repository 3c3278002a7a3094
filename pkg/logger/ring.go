package logger

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultLogCapacity = 500

// Entry is one captured log line, trimmed to what the dashboard shows.
type Entry struct {
	ID      int64          `json:"id"`
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// LogStore keeps the most recent log entries in a fixed ring so the
// dashboard can show them without touching files.
type LogStore struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	next     int
	count    int
	seq      int64
}

func NewLogStore(capacity int) *LogStore {
	if capacity <= 0 {
		capacity = defaultLogCapacity
	}
	return &LogStore{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Wrap tees every record written through base into the store.
func (s *LogStore) Wrap(base *zap.Logger) *zap.Logger {
	if base == nil || s == nil {
		return base
	}
	return base.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return &captureCore{Core: core, store: s}
	}))
}

// Recent returns up to limit entries, newest first.
func (s *LogStore) Recent(limit int) []Entry {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > s.count {
		limit = s.count
	}
	out := make([]Entry, 0, limit)
	for i := 0; i < limit; i++ {
		idx := s.next - 1 - i
		if idx < 0 {
			idx += s.capacity
		}
		out = append(out, s.entries[idx])
	}
	return out
}

func (s *LogStore) add(entry zapcore.Entry, fields []zapcore.Field) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	s.entries[s.next] = Entry{
		ID:      s.seq,
		Time:    entry.Time.UTC(),
		Level:   entry.Level.String(),
		Message: entry.Message,
		Fields:  fieldsToMap(fields),
	}
	s.next = (s.next + 1) % s.capacity
	if s.count < s.capacity {
		s.count++
	}
}

func fieldsToMap(fields []zapcore.Field) map[string]any {
	if len(fields) == 0 {
		return nil
	}
	enc := zapcore.NewMapObjectEncoder()
	for _, field := range fields {
		field.AddTo(enc)
	}
	if len(enc.Fields) == 0 {
		return nil
	}
	out := make(map[string]any, len(enc.Fields))
	for k, v := range enc.Fields {
		out[k] = sanitizeValue(k, v)
	}
	return out
}

type captureCore struct {
	zapcore.Core
	store *LogStore
}

func (c *captureCore) With(fields []zapcore.Field) zapcore.Core {
	return &captureCore{Core: c.Core.With(fields), store: c.store}
}

func (c *captureCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Core.Check(entry, nil) == nil {
		return checked
	}
	return checked.AddCore(entry, c)
}

func (c *captureCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if c.store != nil {
		c.store.add(entry, fields)
	}
	return c.Core.Write(entry, fields)
}
