package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rtemis/reimbursement/core/fee"
)

// maxMemoryEntries bounds the number of reports a MemoryCache holds.
const maxMemoryEntries = 1000

type memoryEntry struct {
	report  fee.Report
	expires time.Time
}

// MemoryCache keeps the computed reports in process. Used when no redis is configured.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	max     int
	now     func() time.Time
}

var _ fee.ReportCache = (*MemoryCache)(nil)

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryCache{entries: make(map[string]memoryEntry), ttl: ttl, max: maxMemoryEntries, now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (fee.Report, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expires) {
		return fee.Report{}, false
	}
	return entry.report, true
}

// Set stores report under key. Expired entries are dropped first; when the cache is still full,
// the entry closest to expiry makes room.
func (c *MemoryCache) Set(_ context.Context, key string, report fee.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	delete(c.entries, key)
	c.purge(now)
	c.entries[key] = memoryEntry{report: report, expires: now.Add(c.ttl)}
}

// purge removes the expired entries, then the one closest to expiry while the cache is full.
func (c *MemoryCache) purge(now time.Time) {
	var (
		oldestKey string
		oldest    time.Time
	)
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
			continue
		}
		if oldestKey == "" || entry.expires.Before(oldest) {
			oldestKey, oldest = key, entry.expires
		}
	}
	if len(c.entries) >= c.max && oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *MemoryCache) InvalidateSchool(_ context.Context, schoolID string) {
	prefix := fee.CacheKeyPrefix(schoolID)

	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of stored reports. Expired ones count until the next purge.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
