package cache

import (
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// memcache treats a zero expiration as "never expire"
const minExpiration = time.Second

// MemcacheService implements CacheService on a memcached server
type MemcacheService struct {
	client *memcache.Client
}

// NewMemcacheService creates a memcache service with a short client timeout
// so an unreachable server never stalls a scrape
func NewMemcacheService(serverAddr string) *MemcacheService {
	client := memcache.New(serverAddr)
	client.Timeout = 500 * time.Millisecond
	return &MemcacheService{client: client}
}

// Get returns memcache.ErrCacheMiss for absent keys
func (m *MemcacheService) Get(key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if err != nil {
		return nil, err
	}
	return item.Value, nil
}

// Set stores value for at least one second
func (m *MemcacheService) Set(key string, value []byte, expiration time.Duration) error {
	return m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: expirationSeconds(expiration),
	})
}

// Delete treats an absent key as already deleted
func (m *MemcacheService) Delete(key string) error {
	if err := m.client.Delete(key); err != nil && err != memcache.ErrCacheMiss {
		return err
	}
	return nil
}

// Ping checks that the memcache server answers
func (m *MemcacheService) Ping() error {
	return m.client.Ping()
}

func expirationSeconds(d time.Duration) int32 {
	if d < minExpiration {
		d = minExpiration
	}
	return int32((d + time.Second - 1) / time.Second)
}
