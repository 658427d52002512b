package storage

import (
	"context"
	"time"

	"github.com/annel0/voxel-stream/internal/cache"
	"github.com/annel0/voxel-stream/internal/logging"
	"github.com/annel0/voxel-stream/internal/vec"
)

// CachedStore оборачивает ChunkStore кешем блобов (read-through, write-through).
// Ошибки кеша не мешают работе: источником истины остается внутреннее хранилище.
type CachedStore struct {
	inner  ChunkStore
	cache  cache.CacheRepo
	ttl    time.Duration
	logger *logging.Logger
}

// NewCachedStore создает хранилище с кешем перед inner
func NewCachedStore(inner ChunkStore, c cache.CacheRepo, ttl time.Duration, logger *logging.Logger) *CachedStore {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &CachedStore{inner: inner, cache: c, ttl: ttl, logger: logger}
}

func (s *CachedStore) Exists(ctx context.Context, seed int64, loc vec.Vec3) (bool, error) {
	if ok, err := s.cache.Exists(ctx, chunkKey(seed, loc)); err == nil && ok {
		return true, nil
	}
	return s.inner.Exists(ctx, seed, loc)
}

func (s *CachedStore) Load(ctx context.Context, seed int64, loc vec.Vec3) ([]byte, error) {
	key := chunkKey(seed, loc)
	blob, err := s.cache.Get(ctx, key)
	if err == nil {
		return blob, nil
	}
	if !cache.IsCacheMiss(err) {
		s.logger.Warn("⚠️ Кеш недоступен для %s: %v", key, err)
	}

	blob, err = s.inner.Load(ctx, seed, loc)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, blob, s.ttl); err != nil {
		s.logger.Debug("Не удалось положить %s в кеш: %v", key, err)
	}
	return blob, nil
}

func (s *CachedStore) Save(ctx context.Context, seed int64, loc vec.Vec3, blob []byte) error {
	if err := s.inner.Save(ctx, seed, loc, blob); err != nil {
		return err
	}
	key := chunkKey(seed, loc)
	if err := s.cache.Set(ctx, key, blob, s.ttl); err != nil {
		s.logger.Debug("Не удалось положить %s в кеш: %v", key, err)
		_ = s.cache.Delete(ctx, key)
	}
	return nil
}

func (s *CachedStore) Delete(ctx context.Context, seed int64, loc vec.Vec3) error {
	if err := s.cache.Delete(ctx, chunkKey(seed, loc)); err != nil {
		s.logger.Warn("⚠️ Не удалось удалить %v из кеша: %v", loc, err)
	}
	return s.inner.Delete(ctx, seed, loc)
}

// Close закрывает кеш и внутреннее хранилище
func (s *CachedStore) Close() error {
	cacheErr := s.cache.Close()
	if err := s.inner.Close(); err != nil {
		return err
	}
	return cacheErr
}
