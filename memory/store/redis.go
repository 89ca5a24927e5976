package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jarvas-assistant/jarvas/memory"
)

// RedisStore implements memory.Store using Redis. Each memory is a JSON
// value; a per-user set tracks the keys so retrieval stays user-scoped.
type RedisStore struct {
	client *redis.Client
	prefix string // Key prefix for namespacing
	ttl    time.Duration
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Addr     string        // Redis server address (e.g., "localhost:6379")
	Password string        // Redis password (if any)
	DB       int           // Redis database number
	Prefix   string        // Key prefix for namespacing
	TTL      time.Duration // Time-to-live for keys (0 means no expiration)
}

// NewRedisStore creates a new Redis-based memory store
func NewRedisStore(config *RedisConfig) *RedisStore {
	if config == nil {
		config = &RedisConfig{
			Addr:   "localhost:6379",
			Prefix: "jarvas:memory:",
			TTL:    0,
		}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	return &RedisStore{
		client: client,
		prefix: config.Prefix,
		ttl:    config.TTL,
	}
}

func (s *RedisStore) memKey(mem *memory.Memory) string {
	return fmt.Sprintf("%s%s:%s", s.prefix, mem.UserID, mem.ID)
}

func (s *RedisStore) setKey(userID string) string {
	return fmt.Sprintf("%s%s:set", s.prefix, userID)
}

// Add stores a memory in Redis.
func (s *RedisStore) Add(ctx context.Context, mem *memory.Memory) error {
	if mem == nil {
		return fmt.Errorf("memory cannot be nil")
	}
	if mem.UserID == "" {
		return fmt.Errorf("memory user ID cannot be empty")
	}

	data, err := json.Marshal(mem)
	if err != nil {
		return fmt.Errorf("failed to marshal memory: %w", err)
	}

	key := s.memKey(mem)
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store memory in Redis: %w", err)
	}
	if err := s.client.SAdd(ctx, s.setKey(mem.UserID), key).Err(); err != nil {
		return fmt.Errorf("failed to add memory key to set: %w", err)
	}
	return nil
}

// Search returns up to limit memories matching the query, best match first.
// Matching runs client-side over the user's entries; Redis holds at most a
// few hundred memories per user so a full scan is acceptable.
func (s *RedisStore) Search(ctx context.Context, userID, query string, limit int) ([]*memory.Memory, error) {
	all, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	terms := tokenize(query)
	type scored struct {
		mem   *memory.Memory
		score int
	}
	var matches []scored
	for _, mem := range all {
		if score := overlap(terms, tokenize(mem.Content)); score > 0 {
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
func (s *RedisStore) Recent(ctx context.Context, userID string, limit int) ([]*memory.Memory, error) {
	all, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (s *RedisStore) load(ctx context.Context, userID string) ([]*memory.Memory, error) {
	setKey := s.setKey(userID)
	keys, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get memory keys: %w", err)
	}
	if len(keys) == 0 {
		return []*memory.Memory{}, nil
	}

	memories := make([]*memory.Memory, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Result()
		if err != nil {
			if err == redis.Nil {
				// Key expired, remove from set
				s.client.SRem(ctx, setKey, key)
				continue
			}
			return nil, fmt.Errorf("failed to get memory: %w", err)
		}

		var mem memory.Memory
		if err := json.Unmarshal([]byte(data), &mem); err != nil {
			return nil, fmt.Errorf("failed to unmarshal memory: %w", err)
		}
		memories = append(memories, &mem)
	}
	return memories, nil
}

// Clear removes all memories for a user.
func (s *RedisStore) Clear(ctx context.Context, userID string) error {
	setKey := s.setKey(userID)
	keys, err := s.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get memory keys: %w", err)
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to delete memory keys: %w", err)
		}
	}
	if err := s.client.Del(ctx, setKey).Err(); err != nil {
		return fmt.Errorf("failed to delete memory set: %w", err)
	}
	return nil
}

// Count returns the number of memories stored for a user.
func (s *RedisStore) Count(ctx context.Context, userID string) (int, error) {
	count, err := s.client.SCard(ctx, s.setKey(userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count memories: %w", err)
	}
	return int(count), nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis connection is alive
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
