package memory

import (
	"context"
	"sync"

	"github.com/mediaplan/medialib/pkg/medialib"
)

// DescriptionStore implements medialib.DescriptionStore in memory.
type DescriptionStore struct {
	mu      sync.RWMutex
	entries map[string]string
}

// NewDescriptionStore creates a new in-memory description store
func NewDescriptionStore() *DescriptionStore {
	return &DescriptionStore{entries: make(map[string]string)}
}

func (s *DescriptionStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	text, exists := s.entries[key]
	if !exists {
		return "", medialib.ErrDescriptionNotFound
	}
	return text, nil
}

func (s *DescriptionStore) Set(ctx context.Context, key, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = text
	return nil
}

func (s *DescriptionStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *DescriptionStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for key := range s.entries {
		keys = append(keys, key)
	}
	return keys, nil
}
