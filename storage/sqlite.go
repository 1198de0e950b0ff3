package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore keeps artifacts as blobs in a SQLite table.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database failed: %w", err)
	}
	db.SetMaxOpenConns(1)

	query := `
    CREATE TABLE IF NOT EXISTS artifacts (
        locator TEXT PRIMARY KEY,
        payload BLOB NOT NULL,
        updated_at INTEGER NOT NULL
    );`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables failed: %w", err)
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Write(locator string, payload []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO artifacts (locator, payload, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(locator) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		locator, payload, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("write artifact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Read(locator string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM artifacts WHERE locator = ?`, locator).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotExist, locator)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	return payload, nil
}

func (s *SQLiteStore) Exists(locator string) (bool, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM artifacts WHERE locator = ?`, locator).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLiteStore) LastModified(locator string) (time.Time, error) {
	var updatedAt int64
	err := s.db.QueryRow(`SELECT updated_at FROM artifacts WHERE locator = ?`, locator).Scan(&updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrNotExist, locator)
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, updatedAt), nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
