// Package storage содержит кодек блобов чанков и хранилища, в которые уровень
// сохраняет выгружаемые чанки.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/annel0/voxel-stream/internal/vec"
)

// ErrChunkNotFound сохраненного блоба нет. Для загрузчика это сигнал перейти к генерации.
var ErrChunkNotFound = errors.New("сохраненный чанк не найден")

// ErrUnknownBackend неизвестное имя бэкенда в конфигурации
var ErrUnknownBackend = errors.New("неизвестный бэкенд хранилища чанков")

// ChunkStore хранилище блобов чанков, ключ = (сид уровня, координата чанка)
type ChunkStore interface {
	Exists(ctx context.Context, seed int64, loc vec.Vec3) (bool, error)
	Load(ctx context.Context, seed int64, loc vec.Vec3) ([]byte, error)
	Save(ctx context.Context, seed int64, loc vec.Vec3, blob []byte) error
	Delete(ctx context.Context, seed int64, loc vec.Vec3) error
	Close() error
}

// Backend имя реализации ChunkStore
type Backend string

const (
	BackendFile   Backend = "file"
	BackendBadger Backend = "badger"
	BackendSQLite Backend = "sqlite"
	BackendMaria  Backend = "maria"
	BackendMongo  Backend = "mongo"
	BackendMemory Backend = "memory"
)

// ParseBackend разбирает имя бэкенда из конфигурации
func ParseBackend(name string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(name)))
	switch b {
	case "":
		return BackendFile, nil
	case BackendFile, BackendBadger, BackendSQLite, BackendMaria, BackendMongo, BackendMemory:
		return b, nil
	case "mysql", "mariadb":
		return BackendMaria, nil
	case "mongodb":
		return BackendMongo, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// chunkKey общий текстовый ключ для key-value бэкендов
func chunkKey(seed int64, loc vec.Vec3) string {
	return fmt.Sprintf("chunk:%d:%d:%d:%d", seed, loc.X, loc.Y, loc.Z)
}
