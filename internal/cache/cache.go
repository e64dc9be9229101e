package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/dpup/prefab/errors"
	"github.com/dpup/prefab/logging"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dpup/info.ersn.net/navigation/internal/lib/clock"
)

// DefaultMaxEntries bounds the in-memory cache when no size is given.
const DefaultMaxEntries = 1024

// Cache provides thread-safe in-memory caching with TTL. The number of
// entries is bounded; the least recently used entry is evicted first.
type Cache struct {
	entries *lru.Cache[string, *CacheEntry]
	clock   clock.Clock
}

// CacheEntry represents a cached item with metadata
type CacheEntry struct {
	Key       string        `json:"key"`
	Data      []byte        `json:"data"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	TTL       time.Duration `json:"ttl"`
	Source    string        `json:"source"`
}

// NewCache creates a new in-memory cache holding at most maxEntries items.
func NewCache(maxEntries int, c clock.Clock) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if c == nil {
		c = clock.Real{}
	}
	// lru.New only fails for a non-positive size.
	entries, _ := lru.New[string, *CacheEntry](maxEntries)
	return &Cache{entries: entries, clock: c}
}

// Set stores data in cache for ttl
func (c *Cache) Set(key string, data interface{}, ttl time.Duration, source string) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data for cache: %w", err)
	}

	now := c.clock.Now()
	c.entries.Add(key, &CacheEntry{
		Key:       key,
		Data:      jsonData,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		TTL:       ttl,
		Source:    source,
	})
	return nil
}

// Get retrieves data from cache if not stale
func (c *Cache) Get(key string, result interface{}) (bool, error) {
	entry, exists := c.entries.Get(key)
	if !exists || c.expired(entry) {
		return false, nil
	}

	if err := json.Unmarshal(entry.Data, result); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached data: %w", err)
	}
	return true, nil
}

// IsStale checks if cache entry is missing or past expiration
func (c *Cache) IsStale(key string) bool {
	entry, exists := c.entries.Peek(key)
	return !exists || c.expired(entry)
}

// GetWithMetadata retrieves data and cache metadata, even if stale
func (c *Cache) GetWithMetadata(key string, result interface{}) (*CacheEntry, bool, error) {
	entry, exists := c.entries.Peek(key)
	if !exists {
		return nil, false, nil
	}

	if result != nil {
		if err := json.Unmarshal(entry.Data, result); err != nil {
			return entry, true, fmt.Errorf("failed to unmarshal cached data: %w", err)
		}
	}
	return entry, true, nil
}

// Delete removes an entry from cache
func (c *Cache) Delete(key string) {
	c.entries.Remove(key)
}

// Keys returns all cache keys, oldest first
func (c *Cache) Keys() []string {
	return c.entries.Keys()
}

// Stats returns cache statistics
func (c *Cache) Stats() CacheStats {
	now := c.clock.Now()
	stats := CacheStats{}

	for _, entry := range c.entries.Values() {
		stats.TotalEntries++
		if now.After(entry.ExpiresAt) {
			stats.StaleEntries++
		} else {
			stats.FreshEntries++
		}

		if stats.OldestEntry.IsZero() || entry.CreatedAt.Before(stats.OldestEntry) {
			stats.OldestEntry = entry.CreatedAt
		}
		if entry.CreatedAt.After(stats.NewestEntry) {
			stats.NewestEntry = entry.CreatedAt
		}
	}
	return stats
}

// CleanupStale removes all stale entries from cache
func (c *Cache) CleanupStale() int {
	var removed int
	for _, key := range c.entries.Keys() {
		if entry, ok := c.entries.Peek(key); ok && c.expired(entry) {
			c.entries.Remove(key)
			removed++
		}
	}
	return removed
}

// StartPeriodicCleanup starts a goroutine that cleans up stale entries until
// ctx is done
func (c *Cache) StartPeriodicCleanup(ctx context.Context, interval time.Duration) {
	ctx = logging.EnsureLogger(ctx)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				err, _ := errors.ParseStack(debug.Stack())
				skipFrames := 3
				numFrames := 5
				logging.Errorw(ctx, "Cache cleanup: recovered from panic",
					"error", r, "error.stack_trace", err.MinimalStack(skipFrames, numFrames))
			}
		}()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := c.CleanupStale(); removed > 0 {
					logging.Debugw(ctx, "Cache cleanup: removed stale entries", "removed", removed)
				}
			}
		}
	}()
}

func (c *Cache) expired(entry *CacheEntry) bool {
	return c.clock.Now().After(entry.ExpiresAt)
}

// CacheStats provides cache usage statistics
type CacheStats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
	OldestEntry  time.Time
	NewestEntry  time.Time
}
