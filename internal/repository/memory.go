package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryThrottle is the single-process fallback used when redis is unavailable.
type MemoryThrottle struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

func NewMemoryThrottle() *MemoryThrottle {
	return &MemoryThrottle{entries: make(map[string]*rateLimitEntry)}
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

func (r *MemoryThrottle) CheckRateLimit(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{expiresAt: now.Add(window)}
		r.entries[key] = entry
	}
	entry.count++

	r.evictExpired(now)
	return entry.count <= limit, nil
}

func (r *MemoryThrottle) Reset(_ context.Context, key string) error {
	r.mu.Lock()
	delete(r.entries, key)
	r.mu.Unlock()
	return nil
}

// evictExpired drops stale windows once the map grows; callers hold mu.
func (r *MemoryThrottle) evictExpired(now time.Time) {
	if len(r.entries) < 1024 {
		return
	}
	for k, e := range r.entries {
		if now.After(e.expiresAt) {
			delete(r.entries, k)
		}
	}
}
