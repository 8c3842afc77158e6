package breaker

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS breaker_tokens (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	platform TEXT NOT NULL,
	state INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS breaker_tokens_platform ON breaker_tokens (platform, id);
`

// SqliteStore persists token queues so breaker state survives a worker
// restart within one scan.
type SqliteStore struct {
	db *sql.DB
}

func OpenSqlite(path string) (*SqliteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// the store is shared by every worker of a platform; serialize
	// through a single connection
	db.SetMaxOpenConns(1)
	_, err = db.Exec(schema)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init breaker store: %w", err)
	}
	return &SqliteStore{db: db}, nil
}

func (s *SqliteStore) Close() error {
	return s.db.Close()
}

// Queue returns the persistent token FIFO for one platform.
func (s *SqliteStore) Queue(platform string) Queue {
	return &sqliteQueue{db: s.db, platform: platform}
}

type sqliteQueue struct {
	db       *sql.DB
	platform string
}

func (q *sqliteQueue) Pop() (Token, bool, error) {
	tx, err := q.db.Begin()
	if err != nil {
		return Off, false, err
	}
	defer tx.Rollback()

	var id int64
	var state int
	err = tx.QueryRow(
		`SELECT id, state FROM breaker_tokens WHERE platform = ? ORDER BY id LIMIT 1`,
		q.platform,
	).Scan(&id, &state)
	if err == sql.ErrNoRows {
		return Off, false, nil
	}
	if err != nil {
		return Off, false, err
	}

	_, err = tx.Exec(`DELETE FROM breaker_tokens WHERE id = ?`, id)
	if err != nil {
		return Off, false, err
	}
	if err := tx.Commit(); err != nil {
		return Off, false, err
	}
	return Token(state), true, nil
}

func (q *sqliteQueue) Push(tokens ...Token) error {
	tx, err := q.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, tok := range tokens {
		_, err = tx.Exec(
			`INSERT INTO breaker_tokens (platform, state) VALUES (?, ?)`,
			q.platform, int(tok),
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (q *sqliteQueue) Len() (int, error) {
	var n int
	err := q.db.QueryRow(
		`SELECT COUNT(*) FROM breaker_tokens WHERE platform = ?`,
		q.platform,
	).Scan(&n)
	return n, err
}
