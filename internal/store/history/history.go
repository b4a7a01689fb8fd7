package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
)

// Record is one persisted chat message. Payload holds the inline body for
// text/image/audio kinds; file messages carry only FileName.
type Record struct {
	Sender    string
	Kind      string
	Payload   string
	FileName  string
	Timestamp float64
}

// Store is the append-only per-room message log, backed by Postgres. The log
// table is provisioned lazily on the first append or read, so a fresh
// deployment needs no migration step before the hub starts.
type Store struct {
	db *sql.DB

	mu      sync.Mutex
	ensured bool
}

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) ensure(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	const create = `
	CREATE TABLE IF NOT EXISTS chat_messages (
	    id        BIGSERIAL PRIMARY KEY,
	    room_id   TEXT NOT NULL,
	    sender    TEXT NOT NULL,
	    kind      TEXT NOT NULL,
	    payload   TEXT NOT NULL DEFAULT '',
	    file_name TEXT NOT NULL DEFAULT '',
	    ts        DOUBLE PRECISION NOT NULL
	)`
	if _, err := s.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("ensure chat_messages: %w", err)
	}
	const index = `
	CREATE INDEX IF NOT EXISTS chat_messages_room_ts
	    ON chat_messages (room_id, ts)`
	if _, err := s.db.ExecContext(ctx, index); err != nil {
		return fmt.Errorf("ensure chat_messages index: %w", err)
	}
	s.ensured = true
	return nil
}

func (s *Store) Append(ctx context.Context, roomID string, rec Record) error {
	if err := s.ensure(ctx); err != nil {
		return err
	}
	const ins = `
	INSERT INTO chat_messages (room_id, sender, kind, payload, file_name, ts)
	     VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.db.ExecContext(ctx, ins,
		roomID, rec.Sender, rec.Kind, rec.Payload, rec.FileName, rec.Timestamp)
	return err
}

// ListOrdered returns the room's full log in ascending timestamp order.
func (s *Store) ListOrdered(ctx context.Context, roomID string) ([]Record, error) {
	if err := s.ensure(ctx); err != nil {
		return nil, err
	}
	const q = `
	SELECT sender, kind, payload, file_name, ts
	  FROM chat_messages
	 WHERE room_id = $1
	 ORDER BY ts ASC`
	rows, err := s.db.QueryContext(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Sender, &r.Kind, &r.Payload, &r.FileName, &r.Timestamp); err != nil {
			return nil, err
		}
		list = append(list, r)
	}
	return list, rows.Err()
}
