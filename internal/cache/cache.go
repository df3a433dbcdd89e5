package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"wallquote/backend/internal/domain"
)

// ZoneCache memoises zone lookups. Implementations treat a miss as
// (nil, false, nil).
type ZoneCache interface {
	Get(ctx context.Context, key string) (*domain.ZoneQuote, bool, error)
	Set(ctx context.Context, key string, value *domain.ZoneQuote, ttl time.Duration) error
}

// ZoneKey normalises the lookup input so equivalent addresses share an entry.
// version is the zone table version; a reloaded table gets fresh keys.
func ZoneKey(version string, input string, steel bool) string {
	table := "numbered"
	if steel {
		table = "steel"
	}
	return "wallquote:zone:" + version + ":" + table + ":" + strings.Join(strings.Fields(strings.ToLower(input)), " ")
}

type NoopZoneCache struct{}

func (NoopZoneCache) Get(_ context.Context, _ string) (*domain.ZoneQuote, bool, error) {
	return nil, false, nil
}

func (NoopZoneCache) Set(_ context.Context, _ string, _ *domain.ZoneQuote, _ time.Duration) error {
	return nil
}

type memoryEntry struct {
	quote     domain.ZoneQuote
	expiresAt time.Time
}

// MemoryZoneCache is a process-local cache with per-entry expiry.
type MemoryZoneCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryZoneCache() *MemoryZoneCache {
	return &MemoryZoneCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryZoneCache) Get(_ context.Context, key string) (*domain.ZoneQuote, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	quote := entry.quote
	return &quote, true, nil
}

func (c *MemoryZoneCache) Set(_ context.Context, key string, value *domain.ZoneQuote, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{quote: *value}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}
