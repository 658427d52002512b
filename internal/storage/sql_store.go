package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/annel0/voxel-stream/internal/vec"
)

// sqlDialect запросы, которые отличаются между SQLite и MariaDB
type sqlDialect struct {
	name        string
	createTable string
	upsert      string
}

// sqlStore общая реализация ChunkStore поверх database/sql.
// Таблица chunk_blobs: (seed, x, y, z) -> data.
type sqlStore struct {
	db      *sql.DB
	dialect sqlDialect
}

func newSQLStore(db *sql.DB, dialect sqlDialect) (*sqlStore, error) {
	s := &sqlStore{db: db, dialect: dialect}
	if _, err := db.Exec(dialect.createTable); err != nil {
		return nil, fmt.Errorf("ошибка создания таблицы chunk_blobs (%s): %w", dialect.name, err)
	}
	return s, nil
}

func (s *sqlStore) Exists(ctx context.Context, seed int64, loc vec.Vec3) (bool, error) {
	query := `SELECT 1 FROM chunk_blobs WHERE seed = ? AND x = ? AND y = ? AND z = ?`

	var one int
	err := s.db.QueryRowContext(ctx, query, seed, loc.X, loc.Y, loc.Z).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("ошибка проверки чанка %v: %w", loc, err)
	}
	return true, nil
}

func (s *sqlStore) Load(ctx context.Context, seed int64, loc vec.Vec3) ([]byte, error) {
	query := `SELECT data FROM chunk_blobs WHERE seed = ? AND x = ? AND y = ? AND z = ?`

	var data []byte
	err := s.db.QueryRowContext(ctx, query, seed, loc.X, loc.Y, loc.Z).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrChunkNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки чанка %v: %w", loc, err)
	}
	return data, nil
}

func (s *sqlStore) Save(ctx context.Context, seed int64, loc vec.Vec3, blob []byte) error {
	_, err := s.db.ExecContext(ctx, s.dialect.upsert, seed, loc.X, loc.Y, loc.Z, blob)
	if err != nil {
		return fmt.Errorf("ошибка сохранения чанка %v: %w", loc, err)
	}
	return nil
}

func (s *sqlStore) Delete(ctx context.Context, seed int64, loc vec.Vec3) error {
	query := `DELETE FROM chunk_blobs WHERE seed = ? AND x = ? AND y = ? AND z = ?`

	if _, err := s.db.ExecContext(ctx, query, seed, loc.X, loc.Y, loc.Z); err != nil {
		return fmt.Errorf("ошибка удаления чанка %v: %w", loc, err)
	}
	return nil
}

// Count число сохраненных чанков сида
func (s *sqlStore) Count(ctx context.Context, seed int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunk_blobs WHERE seed = ?`, seed).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("ошибка подсчета чанков: %w", err)
	}
	return n, nil
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}
