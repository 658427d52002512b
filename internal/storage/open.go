package storage

import (
	"fmt"

	"github.com/annel0/voxel-stream/internal/cache"
	"github.com/annel0/voxel-stream/internal/config"
	"github.com/annel0/voxel-stream/internal/logging"
)

// Open собирает хранилище чанков из конфигурации: бэкенд плюс опциональный кеш.
// При недоступном Redis кеш заменяется кешем в памяти.
func Open(cfg *config.Config, logger *logging.Logger) (ChunkStore, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	backend, err := ParseBackend(cfg.Storage.Backend)
	if err != nil {
		return nil, err
	}

	var store ChunkStore
	switch backend {
	case BackendFile:
		store, err = NewFileStore(cfg.Level.SavePath)
	case BackendBadger:
		store, err = NewBadgerStore(cfg.Storage.BadgerPath)
	case BackendSQLite:
		store, err = NewSQLiteStore(cfg.Storage.SQLitePath)
	case BackendMaria:
		store, err = NewMariaStore(cfg.Storage.MariaDSN)
	case BackendMongo:
		store, err = NewMongoStore(MongoConfig{URI: cfg.Storage.MongoURI, Database: cfg.Storage.MongoDB})
	case BackendMemory:
		store = NewMemoryStore()
	}
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть хранилище %s: %w", backend, err)
	}
	logger.Info("💾 Хранилище чанков: %s", backend)

	if !cfg.Cache.Enabled {
		return store, nil
	}

	ttl := cfg.Cache.TTLDuration()
	var repo cache.CacheRepo
	if cfg.Cache.RedisURL != "" {
		rc, err := cache.NewRedisCache(&cache.CacheConfig{RedisURL: cfg.Cache.RedisURL, DefaultTTL: ttl}, logger.With("redis"))
		if err != nil {
			logger.Warn("⚠️ Redis недоступен, используем кеш в памяти: %v", err)
		} else {
			repo = rc
		}
	}
	if repo == nil {
		repo = cache.NewMemoryCache(ttl)
	}
	return NewCachedStore(store, repo, ttl, logger), nil
}
