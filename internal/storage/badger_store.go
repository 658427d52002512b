package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/annel0/voxel-stream/internal/vec"
	"github.com/dgraph-io/badger/v3"
)

// ErrStoreClosed хранилище уже закрыто
var ErrStoreClosed = errors.New("хранилище не готово")

// BadgerStore хранит блобы чанков в BadgerDB под ключами chunk:<seed>:<x>:<y>:<z>
type BadgerStore struct {
	db      *badger.DB
	dbPath  string
	mutex   sync.RWMutex
	isReady bool
}

// NewBadgerStore открывает базу в каталоге <dataPath>/chunks
func NewBadgerStore(dataPath string) (*BadgerStore, error) {
	dbPath := filepath.Join(dataPath, "chunks")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil // Отключаем логирование BadgerDB

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &BadgerStore{
		db:      db,
		dbPath:  dbPath,
		isReady: true,
	}, nil
}

func (bs *BadgerStore) Exists(ctx context.Context, seed int64, loc vec.Vec3) (bool, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return false, ErrStoreClosed
	}

	err := bs.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(chunkKey(seed, loc)))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return true, nil
}

func (bs *BadgerStore) Load(ctx context.Context, seed int64, loc vec.Vec3) ([]byte, error) {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return nil, ErrStoreClosed
	}

	var data []byte
	err := bs.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(chunkKey(seed, loc)))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return data, nil
}

func (bs *BadgerStore) Save(ctx context.Context, seed int64, loc vec.Vec3, blob []byte) error {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return ErrStoreClosed
	}

	err := bs.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(chunkKey(seed, loc)), blob)
	})
	if err != nil {
		return fmt.Errorf("ошибка сохранения в BadgerDB: %w", err)
	}
	return nil
}

func (bs *BadgerStore) Delete(ctx context.Context, seed int64, loc vec.Vec3) error {
	bs.mutex.RLock()
	defer bs.mutex.RUnlock()

	if !bs.isReady {
		return ErrStoreClosed
	}

	err := bs.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(chunkKey(seed, loc)))
	})
	if err != nil {
		return fmt.Errorf("ошибка удаления из BadgerDB: %w", err)
	}
	return nil
}

// Close закрывает хранилище данных
func (bs *BadgerStore) Close() error {
	bs.mutex.Lock()
	defer bs.mutex.Unlock()

	if !bs.isReady {
		return nil
	}

	bs.isReady = false
	return bs.db.Close()
}
