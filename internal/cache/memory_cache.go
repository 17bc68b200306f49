package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryCache keeps JSON-encoded values in process so both backends decode the same way.
type memoryCache struct {
	store *gocache.Cache
}

func NewMemoryCache(defaultTTL, cleanupInterval time.Duration) CacheService {
	return &memoryCache{store: gocache.New(defaultTTL, cleanupInterval)}
}

func (m *memoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.store.Set(key, data, ttl)
	return nil
}

func (m *memoryCache) Get(_ context.Context, key string, dest interface{}) error {
	v, ok := m.store.Get(key)
	if !ok {
		return ErrCacheMiss
	}
	data, ok := v.([]byte)
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(data, dest)
}

func (m *memoryCache) Delete(_ context.Context, key string) error {
	m.store.Delete(key)
	return nil
}

// DeletePattern matches keys with glob syntax, close to redis MATCH.
func (m *memoryCache) DeletePattern(_ context.Context, pattern string) error {
	for key := range m.store.Items() {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return fmt.Errorf("invalid cache pattern %s: %w", pattern, err)
		}
		if matched {
			m.store.Delete(key)
		}
	}
	return nil
}
