package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ReportCache stores rendered report payloads. Implementations must make
// InvalidateAll coarse: it drops every entry for the tenant regardless of
// report kind or date range.
type ReportCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	InvalidateAll(ctx context.Context, tenant string) error
}

// Key builds the cache key for one report variant. Tenant leads so coarse
// invalidation can address a tenant's whole keyspace.
func Key(tenant, kind, start, end string) string {
	return strings.Join([]string{tenant, kind, start, end}, "|")
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// Memory is the default in-process cache. Expired entries are evicted on
// read; there is no background sweeper.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	payload := make([]byte, len(entry.payload))
	copy(payload, entry.payload)
	return payload, true, nil
}

func (m *Memory) Set(_ context.Context, key string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(payload))
	copy(stored, payload)
	m.entries[key] = memoryEntry{payload: stored, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *Memory) InvalidateAll(_ context.Context, tenant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := tenant + "|"
	for key := range m.entries {
		if strings.HasPrefix(key, prefix) {
			delete(m.entries, key)
		}
	}
	return nil
}
