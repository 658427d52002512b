package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryCache реализует CacheRepo в памяти процесса с TTL.
// Используется когда Redis не настроен и в тестах.
type MemoryCache struct {
	mu         sync.RWMutex
	items      map[string]memoryItem
	defaultTTL time.Duration
	closed     atomic.Bool
	now        func() time.Time

	totalRequests int64
	cacheHits     int64
	cacheMisses   int64
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache создает кеш в памяти
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Second
	}
	return &MemoryCache{
		items:      make(map[string]memoryItem),
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	if m.closed.Load() {
		return nil, ErrCacheClosed
	}
	atomic.AddInt64(&m.totalRequests, 1)

	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()

	if !ok || m.now().After(item.expiresAt) {
		atomic.AddInt64(&m.cacheMisses, 1)
		if ok {
			m.mu.Lock()
			delete(m.items, key)
			m.mu.Unlock()
		}
		return nil, ErrCacheMiss
	}
	atomic.AddInt64(&m.cacheHits, 1)
	return append([]byte(nil), item.value...), nil
}

func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrCacheClosed
	}
	if key == "" {
		return ErrInvalidKey
	}
	if ttl <= 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	m.items[key] = memoryItem{value: append([]byte(nil), value...), expiresAt: m.now().Add(ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.RLock()
	item, ok := m.items[key]
	m.mu.RUnlock()
	return ok && !m.now().After(item.expiresAt), nil
}

func (m *MemoryCache) Close() error {
	m.closed.Store(true)
	m.mu.Lock()
	m.items = make(map[string]memoryItem)
	m.mu.Unlock()
	return nil
}

func (m *MemoryCache) GetMetrics() *CacheMetrics {
	hits := atomic.LoadInt64(&m.cacheHits)
	misses := atomic.LoadInt64(&m.cacheMisses)
	return &CacheMetrics{
		TotalRequests: atomic.LoadInt64(&m.totalRequests),
		CacheHits:     hits,
		CacheMisses:   misses,
		HitRatio:      hitRatio(hits, misses),
		LastUpdate:    time.Now(),
	}
}
