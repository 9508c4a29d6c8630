package cache

import (
	"strconv"
	"time"
)

// CacheService represents a generic cache service. Scrapers use it to remember
// that a marketplace throttled them.
type CacheService interface {
	// Get retrieves a value from the cache; a miss is reported as an error
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

// RateLimitKey is the cache key blocking requests to one marketplace
func RateLimitKey(marketplace string) string {
	return marketplace + "_rate_limited"
}

// IsBlocked reports whether marketplace is inside a rate limit block
func IsBlocked(c CacheService, marketplace string) bool {
	_, err := c.Get(RateLimitKey(marketplace))
	return err == nil
}

// Block stops requests to marketplace for d. The stored value is the block
// length in seconds.
func Block(c CacheService, marketplace string, d time.Duration) error {
	return c.Set(RateLimitKey(marketplace), []byte(strconv.Itoa(int(d/time.Second))), d)
}
