package sessions

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	waid    TEXT PRIMARY KEY,
	payload TEXT NOT NULL
);`

// SQLite stores sessions in a single-file database, surviving restarts
// without any external service.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	// The driver serializes writers itself; a single connection avoids
	// SQLITE_BUSY under concurrent webhook handlers.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init session db: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(waid string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRow(`SELECT payload FROM sessions WHERE waid = ?`, waid).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (s *SQLite) Save(waid string, payload []byte) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (waid, payload) VALUES (?, ?)
		 ON CONFLICT(waid) DO UPDATE SET payload = excluded.payload`,
		waid, payload)
	return err
}

func (s *SQLite) Clear(waid string) error {
	_, err := s.db.Exec(`DELETE FROM sessions WHERE waid = ?`, waid)
	return err
}

func (s *SQLite) Close() error { return s.db.Close() }
