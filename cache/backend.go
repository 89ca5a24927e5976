package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/jarvas-assistant/jarvas/errors"
)

// Backend stores opaque byte values under string keys with a TTL. The
// in-process implementation below is the default; cache/store provides a
// Redis-backed one for deployments with more than one process.
type Backend interface {
	// Get returns the value for key, or errors.ErrNotFound when the key is
	// absent or has expired.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	// DeletePrefix removes every key starting with prefix.
	DeletePrefix(ctx context.Context, prefix string) error
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryBackend is a process-local Backend. Expiry is checked at read time;
// there is no background sweeper.
type MemoryBackend struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   Clock
}

// NewMemoryBackend creates an in-process backend. A nil clock defaults to
// time.Now.
func NewMemoryBackend(clock Clock) *MemoryBackend {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryBackend{
		entries: make(map[string]memoryEntry),
		clock:   clock,
	}
}

func (m *MemoryBackend) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.entries[key]
	if !ok {
		return nil, errors.ErrNotFound
	}
	if m.clock().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, errors.ErrNotFound
	}
	return entry.value, nil
}

func (m *MemoryBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{value: value, expiresAt: m.clock().Add(ttl)}
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.entries, key)
	}
	return nil
}

func (m *MemoryBackend) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}
