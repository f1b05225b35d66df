package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kwonkwonn/chatting-sever/internal/crypto"
	"github.com/kwonkwonn/chatting-sever/internal/models"
)

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool and
// bootstraps the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	store := &PostgresStore{pool: pool}

	if err := store.initSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist. The unique index on
// messages hashes the body so arbitrarily long messages still fit a btree
// key; it is what makes redelivered inserts collapse into one row.
func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS messages (
		id BIGSERIAL PRIMARY KEY,
		room_id UUID NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL,
		body TEXT NOT NULL,
		ts BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_ts ON messages (room_id, ts);
	CREATE UNIQUE INDEX IF NOT EXISTS ux_messages_dedup
		ON messages (room_id, sender_id, ts, md5(body));
	`

	_, err := s.pool.Exec(ctx, schema)
	return err
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// CreateRoom creates a new room with a store-assigned id.
func (s *PostgresStore) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO rooms (id, name)
		VALUES ($1, $2)
		RETURNING id, name, created_at
	`, crypto.NewUUIDv7(), name).Scan(
		&room.ID,
		&room.Name,
		&room.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return room, nil
}

// GetRoom retrieves a room by ID.
func (s *PostgresStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room := &models.Room{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, created_at
		FROM rooms WHERE id = $1
	`, id).Scan(
		&room.ID,
		&room.Name,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return room, nil
}

// ListRooms retrieves every room, oldest first.
func (s *PostgresStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, created_at
		FROM rooms
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.CreatedAt); err != nil {
			return nil, err
		}
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// CountRooms returns the total number of rooms.
func (s *PostgresStore) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}

// InsertMessage writes one message row. A conflict on the dedup index means
// the row already exists and reports inserted=false without an error.
func (s *PostgresStore) InsertMessage(ctx context.Context, roomID uuid.UUID, senderID, body string, ts int64) (bool, error) {
	var id int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO messages (room_id, sender_id, body, ts)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (room_id, sender_id, ts, md5(body)) DO NOTHING
		RETURNING id
	`, roomID, senderID, body, ts).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// RecentMessages returns the newest limit messages for a room in ascending
// timestamp order, row id breaking ties.
func (s *PostgresStore) RecentMessages(ctx context.Context, roomID uuid.UUID, limit int64) ([]models.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, room_id, sender_id, body, ts, created_at
		FROM messages
		WHERE room_id = $1
		ORDER BY ts DESC, id DESC
		LIMIT $2
	`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		err := rows.Scan(
			&m.ID,
			&m.RoomID,
			&m.SenderID,
			&m.Body,
			&m.Timestamp,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reverseMessages(msgs)
	return msgs, nil
}

// CountMessages returns the total number of durable messages.
func (s *PostgresStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}

// reverseMessages flips a newest-first query result into ascending order.
func reverseMessages(msgs []models.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
