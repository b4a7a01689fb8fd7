package db_client

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(host, port, user, pass, database string) (*sql.DB, error) {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s",
		user, pass, host, port, database,
	)

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetConnMaxIdleTime(time.Minute)
	return db, db.Ping()
}

// EnsureSchema creates the account and room tables. The per-room chat log is
// provisioned separately, on first use of a room.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
		    username TEXT PRIMARY KEY,
		    password TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
		    session_id TEXT PRIMARY KEY,
		    username   TEXT NOT NULL,
		    expires    DOUBLE PRECISION NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rooms (
		    room_id TEXT PRIMARY KEY,
		    name    TEXT NOT NULL
		)`,
	}
	for _, q := range stmts {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
