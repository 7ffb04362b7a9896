package sessions

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres stores sessions in a shared database for deployments running
// more than one bot instance. The sessions table is created by the
// migrate command, not here.
type Postgres struct {
	db *sql.DB
}

// NewPostgres connects using a pgx DSN and verifies the connection.
func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session db: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping session db: %w", err)
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Load(waid string) ([]byte, error) {
	var payload []byte
	err := p.db.QueryRow(`SELECT payload FROM sessions WHERE waid = $1`, waid).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return payload, nil
}

func (p *Postgres) Save(waid string, payload []byte) error {
	_, err := p.db.Exec(
		`INSERT INTO sessions (waid, payload) VALUES ($1, $2)
		 ON CONFLICT (waid) DO UPDATE SET payload = EXCLUDED.payload`,
		waid, payload)
	return err
}

func (p *Postgres) Clear(waid string) error {
	_, err := p.db.Exec(`DELETE FROM sessions WHERE waid = $1`, waid)
	return err
}

func (p *Postgres) Close() error { return p.db.Close() }
