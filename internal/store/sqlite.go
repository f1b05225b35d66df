package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/kwonkwonn/chatting-sever/internal/crypto"
	"github.com/kwonkwonn/chatting-sever/internal/models"
)

// SQLiteStore handles SQLite database operations.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chat.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chat.db"
	}

	if dbPath != ":memory:" {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if dbPath == ":memory:" {
		// A memory database exists per connection; keep exactly one.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist. The UNIQUE constraint on
// messages is the dedup key for redelivered log entries.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		room_id TEXT NOT NULL REFERENCES rooms(id) ON DELETE CASCADE,
		sender_id TEXT NOT NULL,
		body TEXT NOT NULL,
		ts INTEGER NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (room_id, sender_id, ts, body)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_room_ts ON messages(room_id, ts);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateRoom creates a new room with a store-assigned id.
func (s *SQLiteStore) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	id := crypto.NewUUIDv7()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rooms (id, name)
		VALUES (?, ?)
	`, id.String(), name)
	if err != nil {
		return nil, err
	}

	return s.GetRoom(ctx, id)
}

// GetRoom retrieves a room by ID.
func (s *SQLiteStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	room := &models.Room{}
	var idStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, created_at
		FROM rooms WHERE id = ?
	`, id.String()).Scan(
		&idStr,
		&room.Name,
		&room.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	room.ID = uuid.MustParse(idStr)
	return room, nil
}

// ListRooms retrieves every room, oldest first.
func (s *SQLiteStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var idStr string
		if err := rows.Scan(&idStr, &room.Name, &room.CreatedAt); err != nil {
			return nil, err
		}
		room.ID = uuid.MustParse(idStr)
		rooms = append(rooms, room)
	}
	return rooms, rows.Err()
}

// CountRooms returns the total number of rooms.
func (s *SQLiteStore) CountRooms(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM rooms`).Scan(&count)
	return count, err
}

// InsertMessage writes one message row. A conflict on the dedup constraint
// reports inserted=false without an error.
func (s *SQLiteStore) InsertMessage(ctx context.Context, roomID uuid.UUID, senderID, body string, ts int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (room_id, sender_id, body, ts)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (room_id, sender_id, ts, body) DO NOTHING
	`, roomID.String(), senderID, body, ts)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RecentMessages returns the newest limit messages for a room in ascending
// timestamp order, row id breaking ties.
func (s *SQLiteStore) RecentMessages(ctx context.Context, roomID uuid.UUID, limit int64) ([]models.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, sender_id, body, ts, created_at
		FROM messages
		WHERE room_id = ?
		ORDER BY ts DESC, id DESC
		LIMIT ?
	`, roomID.String(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []models.Message
	for rows.Next() {
		var m models.Message
		var roomStr string
		err := rows.Scan(
			&m.ID,
			&roomStr,
			&m.SenderID,
			&m.Body,
			&m.Timestamp,
			&m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		m.RoomID = uuid.MustParse(roomStr)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	reverseMessages(msgs)
	return msgs, nil
}

// CountMessages returns the total number of durable messages.
func (s *SQLiteStore) CountMessages(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
