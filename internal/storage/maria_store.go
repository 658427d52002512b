package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

var mariaDialect = sqlDialect{
	name: "mariadb",
	createTable: `
		CREATE TABLE IF NOT EXISTS chunk_blobs (
			seed       BIGINT      NOT NULL,
			x          INT         NOT NULL,
			y          INT         NOT NULL,
			z          INT         NOT NULL,
			data       MEDIUMBLOB  NOT NULL,
			updated_at TIMESTAMP   DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE   CURRENT_TIMESTAMP,
			PRIMARY KEY (seed, x, y, z)
		) ENGINE=InnoDB
	`,
	upsert: `
		INSERT INTO chunk_blobs (seed, x, y, z, data)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			data = VALUES(data),
			updated_at = CURRENT_TIMESTAMP
	`,
}

// MariaStore хранит блобы чанков в MariaDB/MySQL
type MariaStore struct {
	*sqlStore
}

// NewMariaStore подключается к базе и создает таблицу chunk_blobs.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func NewMariaStore(dsn string) (*MariaStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	// Проверяем соединение
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	s, err := newSQLStore(db, mariaDialect)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &MariaStore{sqlStore: s}, nil
}
