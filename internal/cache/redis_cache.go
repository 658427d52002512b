package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/annel0/voxel-stream/internal/logging"
	"github.com/go-redis/redis/v8"
)

// RedisCache реализует CacheRepo поверх Redis.
//
// Особенности:
// - Автоматические метрики (hit ratio, latency)
// - Ограничение TTL сверху
type RedisCache struct {
	client *redis.Client
	config *CacheConfig
	logger *logging.Logger

	totalRequests int64
	cacheHits     int64
	cacheMisses   int64

	// Статистика latency
	latencySum   int64 // в наносекундах
	latencyCount int64
	maxLatency   int64
}

// NewRedisCache создаёт новый Redis кеш.
//
// Параметры:
//
//	config - конфигурация Redis
//	logger - логгер компонента (может быть nil)
//
// Возвращает:
//
//	*RedisCache - готовый к использованию кеш
//	error - ошибка подключения или конфигурации
func NewRedisCache(config *CacheConfig, logger *logging.Logger) (*RedisCache, error) {
	if config == nil || config.RedisURL == "" {
		return nil, fmt.Errorf("%w: пустой адрес Redis", ErrInvalidKey)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	// Настройки по умолчанию
	if config.DefaultTTL == 0 {
		config.DefaultTTL = 30 * time.Second
	}
	if config.MaxTTL == 0 {
		config.MaxTTL = 1 * time.Hour
	}
	if config.MaxConnections == 0 {
		config.MaxConnections = 10
	}
	if config.PoolTimeout == 0 {
		config.PoolTimeout = 30 * time.Second
	}

	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		// Адрес вида host:port без схемы
		opts = &redis.Options{Addr: config.RedisURL}
	}
	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB != 0 {
		opts.DB = config.RedisDB
	}
	opts.PoolSize = config.MaxConnections
	opts.PoolTimeout = config.PoolTimeout
	opts.ReadTimeout = 5 * time.Second
	opts.WriteTimeout = 5 * time.Second

	rdb := redis.NewClient(opts)

	// Проверяем соединение
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("🧊 Redis кеш подключен: %s (TTL %v)", opts.Addr, config.DefaultTTL)
	return &RedisCache{client: rdb, config: config, logger: logger}, nil
}

// Get получает значение по ключу из Redis кеша.
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	defer r.recordLatency(start)

	atomic.AddInt64(&r.totalRequests, 1)

	val, err := r.client.Get(ctx, key).Bytes()
	if err == nil {
		atomic.AddInt64(&r.cacheHits, 1)
		return val, nil
	}

	atomic.AddInt64(&r.cacheMisses, 1)
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}

	r.logger.Error("Redis Get error for key %s: %v", key, err)
	return nil, fmt.Errorf("redis get error: %w", err)
}

// Set сохраняет значение в Redis кеше.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	defer r.recordLatency(start)

	if ttl <= 0 {
		ttl = r.config.DefaultTTL
	}
	if ttl > r.config.MaxTTL {
		ttl = r.config.MaxTTL
	}

	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		r.logger.Error("Redis Set error for key %s: %v", key, err)
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// Delete удаляет ключ из кеша.
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	start := time.Now()
	defer r.recordLatency(start)

	if err := r.client.Del(ctx, key).Err(); err != nil {
		r.logger.Error("Redis Delete error for key %s: %v", key, err)
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Exists проверяет существование ключа в кеше.
func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	defer r.recordLatency(start)

	count, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists error: %w", err)
	}
	return count > 0, nil
}

// Close закрывает соединение с Redis.
func (r *RedisCache) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Error closing Redis connection: %v", err)
		return err
	}
	r.logger.Info("Redis cache closed")
	return nil
}

// GetMetrics возвращает текущие метрики кеша.
func (r *RedisCache) GetMetrics() *CacheMetrics {
	hits := atomic.LoadInt64(&r.cacheHits)
	misses := atomic.LoadInt64(&r.cacheMisses)

	m := &CacheMetrics{
		TotalRequests: atomic.LoadInt64(&r.totalRequests),
		CacheHits:     hits,
		CacheMisses:   misses,
		HitRatio:      hitRatio(hits, misses),
		MaxLatencyMs:  float64(atomic.LoadInt64(&r.maxLatency)) / float64(time.Millisecond),
		LastUpdate:    time.Now(),
	}
	if n := atomic.LoadInt64(&r.latencyCount); n > 0 {
		m.AvgLatencyMs = float64(atomic.LoadInt64(&r.latencySum)) / float64(n) / float64(time.Millisecond)
	}
	return m
}

// recordLatency учитывает длительность операции
func (r *RedisCache) recordLatency(start time.Time) {
	latency := time.Since(start).Nanoseconds()
	atomic.AddInt64(&r.latencySum, latency)
	atomic.AddInt64(&r.latencyCount, 1)

	for {
		current := atomic.LoadInt64(&r.maxLatency)
		if latency <= current || atomic.CompareAndSwapInt64(&r.maxLatency, current, latency) {
			break
		}
	}
}
