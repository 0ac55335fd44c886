package pending

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	content   string
	expiresAt time.Time
}

// MemoryStore is a process-local Store for tests and single-node setups.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[int64]memoryEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[int64]memoryEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) Put(ctx context.Context, telegramID int64, content string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[telegramID] = memoryEntry{content: content, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Pop(ctx context.Context, telegramID int64) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[telegramID]
	if !ok {
		return "", ErrNotFound
	}
	delete(s.entries, telegramID)
	if s.now().After(entry.expiresAt) {
		return "", ErrNotFound
	}
	return entry.content, nil
}
