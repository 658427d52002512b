package cache

import (
	"context"
	"errors"
	"time"
)

// CacheRepo определяет интерфейс для кеширования блобов.
// Стоит перед постоянным хранилищем чанков: горячие чанки, которые фокус
// выгружает и тут же загружает обратно, читаются из кеша.
//
// Использование:
//
//	cache := NewRedisCache(config, logger)
//	data, err := cache.Get(ctx, "key")
//	err = cache.Set(ctx, "key", data, 30*time.Second)
type CacheRepo interface {
	// Get получает значение по ключу из кеша.
	// Возвращает ErrCacheMiss если ключ не найден.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set сохраняет значение в кеше с указанным TTL.
	// TTL = 0 означает TTL по умолчанию.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete удаляет ключ из кеша.
	Delete(ctx context.Context, key string) error

	// Exists проверяет существование ключа в кеше.
	Exists(ctx context.Context, key string) (bool, error)

	// Close закрывает соединение с кешем.
	Close() error

	// GetMetrics возвращает метрики кеша.
	GetMetrics() *CacheMetrics
}

// CacheMetrics содержит метрики производительности кеша.
type CacheMetrics struct {
	TotalRequests int64   `json:"total_requests"`
	CacheHits     int64   `json:"cache_hits"`
	CacheMisses   int64   `json:"cache_misses"`
	HitRatio      float64 `json:"hit_ratio"`

	AvgLatencyMs float64 `json:"avg_latency_ms"`
	MaxLatencyMs float64 `json:"max_latency_ms"`

	LastUpdate time.Time `json:"last_update"`
}

// CacheConfig содержит конфигурацию для кеша.
type CacheConfig struct {
	RedisURL      string `yaml:"redis_url"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	DefaultTTL time.Duration `yaml:"default_ttl"`
	MaxTTL     time.Duration `yaml:"max_ttl"`

	MaxConnections int           `yaml:"max_connections"`
	PoolTimeout    time.Duration `yaml:"pool_timeout"`
}

// Ошибки кеша
var (
	ErrCacheMiss   = errors.New("cache miss")
	ErrInvalidKey  = errors.New("invalid key")
	ErrCacheClosed = errors.New("cache closed")
)

// IsCacheMiss проверяет, является ли ошибка промахом кеша.
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// hitRatio доля попаданий
func hitRatio(hits, misses int64) float64 {
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}
