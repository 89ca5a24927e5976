package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jarvas-assistant/jarvas/memory"
)

// InMemoryStore implements memory.Store using in-process storage. Search
// ranks by keyword overlap between the query and the memory content; good
// enough for tests and single-user setups.
type InMemoryStore struct {
	mu       sync.RWMutex
	memories map[string][]*memory.Memory // keyed by user ID
}

// NewInMemoryStore creates a new in-memory memory store
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		memories: make(map[string][]*memory.Memory),
	}
}

// Add stores a memory under its user.
func (s *InMemoryStore) Add(_ context.Context, mem *memory.Memory) error {
	if mem == nil {
		return fmt.Errorf("memory cannot be nil")
	}
	if mem.UserID == "" {
		return fmt.Errorf("memory user ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.memories[mem.UserID] = append(s.memories[mem.UserID], mem)
	return nil
}

// Search returns up to limit memories ranked by keyword overlap with query,
// importance breaking ties.
func (s *InMemoryStore) Search(_ context.Context, userID, query string, limit int) ([]*memory.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	terms := tokenize(query)
	type scored struct {
		mem   *memory.Memory
		score int
	}
	var matches []scored
	for _, mem := range s.memories[userID] {
		score := overlap(terms, tokenize(mem.Content))
		if score > 0 {
			matches = append(matches, scored{mem: mem, score: score})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].mem.Importance > matches[j].mem.Importance
	})

	out := make([]*memory.Memory, 0, len(matches))
	for _, m := range matches {
		out = append(out, m.mem)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Recent returns the newest memories first.
func (s *InMemoryStore) Recent(_ context.Context, userID string, limit int) ([]*memory.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.memories[userID]
	out := make([]*memory.Memory, len(all))
	copy(out, all)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of memories stored for a user.
func (s *InMemoryStore) Count(userID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.memories[userID])
}

// Clear removes all memories for a user.
func (s *InMemoryStore) Clear(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memories, userID)
}

func tokenize(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()")
		if len(word) > 2 {
			out[word] = struct{}{}
		}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	n := 0
	for w := range a {
		if _, ok := b[w]; ok {
			n++
		}
	}
	return n
}
