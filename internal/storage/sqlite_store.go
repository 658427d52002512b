package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

var sqliteDialect = sqlDialect{
	name: "sqlite",
	createTable: `
		CREATE TABLE IF NOT EXISTS chunk_blobs (
			seed       INTEGER NOT NULL,
			x          INTEGER NOT NULL,
			y          INTEGER NOT NULL,
			z          INTEGER NOT NULL,
			data       BLOB    NOT NULL,
			updated_at TEXT    NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (seed, x, y, z)
		)
	`,
	upsert: `
		INSERT INTO chunk_blobs (seed, x, y, z, data)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (seed, x, y, z) DO UPDATE SET
			data = excluded.data,
			updated_at = CURRENT_TIMESTAMP
	`,
}

// SQLiteStore хранит блобы чанков в файле SQLite (чистый Go драйвер modernc)
type SQLiteStore struct {
	*sqlStore
}

// NewSQLiteStore открывает базу по пути path и создает таблицу
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("пустой путь к базе SQLite")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("не удалось создать каталог базы: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть SQLite: %w", err)
	}
	// Один писатель: SQLite сериализует запись, лишние соединения дают SQLITE_BUSY
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL;", "PRAGMA synchronous=NORMAL;"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("ошибка настройки SQLite: %w", err)
		}
	}

	s, err := newSQLStore(db, sqliteDialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{sqlStore: s}, nil
}
