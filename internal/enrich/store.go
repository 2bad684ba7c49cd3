/**
 * @description
 * Enrichment cache storage. Entries are keyed (source, instrument) and carry
 * their fetch timestamp; freshness and staleness decisions live in the Cache
 * layer, not in the store, so the in-memory and Redis backends behave
 * identically.
 */
package enrich

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is one cached enrichment value.
type Entry struct {
	Data      json.RawMessage `json:"data"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Store persists cache entries.
type Store interface {
	Get(ctx context.Context, source, key string) (*Entry, error)
	Set(ctx context.Context, source, key string, entry Entry) error
}

// MemoryStore is the default in-process store.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]Entry{}}
}

func storeKey(source, key string) string {
	return source + ":" + key
}

func (s *MemoryStore) Get(ctx context.Context, source, key string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[storeKey(source, key)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *MemoryStore) Set(ctx context.Context, source, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[storeKey(source, key)] = entry
	return nil
}

// redisRetention bounds how long stale fallback values survive in Redis.
// Well past every source TTL; purely housekeeping.
const redisRetention = 7 * 24 * time.Hour

// RedisStore shares the enrichment cache across instances.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisStore(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client, prefix: "enrich"}
}

func (s *RedisStore) redisKey(source, key string) string {
	return s.prefix + ":" + source + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, source, key string) (*Entry, error) {
	raw, err := s.client.Get(ctx, s.redisKey(source, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func (s *RedisStore) Set(ctx context.Context, source, key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.redisKey(source, key), raw, redisRetention).Err()
}
