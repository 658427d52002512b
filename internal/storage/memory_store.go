package storage

import (
	"context"
	"sync"

	"github.com/annel0/voxel-stream/internal/vec"
)

// MemoryStore реализует ChunkStore в памяти.
// Используется в тестах и для запуска без диска.
// ВНИМАНИЕ: Данные теряются при перезапуске сервера!
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore создает пустое хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Exists(ctx context.Context, seed int64, loc vec.Vec3) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[chunkKey(seed, loc)]
	return ok, nil
}

func (m *MemoryStore) Load(ctx context.Context, seed int64, loc vec.Vec3) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	blob, ok := m.blobs[chunkKey(seed, loc)]
	if !ok {
		return nil, ErrChunkNotFound
	}
	return append([]byte(nil), blob...), nil
}

func (m *MemoryStore) Save(ctx context.Context, seed int64, loc vec.Vec3, blob []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[chunkKey(seed, loc)] = append([]byte(nil), blob...)
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, seed int64, loc vec.Vec3) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, chunkKey(seed, loc))
	return nil
}

// Len число сохраненных блобов
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

func (m *MemoryStore) Close() error { return nil }
