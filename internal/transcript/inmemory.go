package transcript

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore keeps transcripts for the process lifetime only. Used when
// no database is configured.
type InMemoryStore struct {
	mu    sync.RWMutex
	lines []Line
	usage map[string]UsageRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{usage: make(map[string]UsageRecord)}
}

func (s *InMemoryStore) SaveLine(_ context.Context, line Line) error {
	if line.ID == "" {
		line.ID = uuid.NewString()
	}
	if line.CreatedAt.IsZero() {
		line.CreatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lines = append(s.lines, line)
	return nil
}

func (s *InMemoryStore) SaveUsage(_ context.Context, record UsageRecord) error {
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage[record.CallID] = record
	return nil
}

func (s *InMemoryStore) RecentLines(_ context.Context, callID string, limit int) ([]Line, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Line, 0, limit)
	for _, line := range s.lines {
		if line.CallID == callID {
			matched = append(matched, line)
		}
	}
	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

func (s *InMemoryStore) Close() error { return nil }
