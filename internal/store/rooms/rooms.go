package rooms

import (
	"context"
	"database/sql"
	"errors"
)

var ErrRoomNotFound = errors.New("room not found")

// Store holds room metadata. Rooms spring into existence on first use, so a
// missing row is not an error for SetRoomName (upsert) and maps to
// ErrRoomNotFound for GetRoomName.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) GetRoomName(ctx context.Context, roomID string) (string, error) {
	const q = `SELECT name FROM rooms WHERE room_id = $1`
	var name string
	err := s.db.QueryRowContext(ctx, q, roomID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrRoomNotFound
	}
	if err != nil {
		return "", err
	}
	return name, nil
}

func (s *Store) SetRoomName(ctx context.Context, roomID, name string) error {
	const upsert = `
	INSERT INTO rooms (room_id, name) VALUES ($1, $2)
	ON CONFLICT (room_id) DO UPDATE SET name = EXCLUDED.name`
	_, err := s.db.ExecContext(ctx, upsert, roomID, name)
	return err
}
