package store

import (
	"context"

	"github.com/google/uuid"

	"github.com/kwonkwonn/chatting-sever/internal/models"
)

// Store is the durable system of record for rooms and messages.
// PostgresStore, SQLiteStore and MemoryStore implement it.
type Store interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// Room operations
	CreateRoom(ctx context.Context, name string) (*models.Room, error)
	GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error)
	ListRooms(ctx context.Context) ([]models.Room, error)
	CountRooms(ctx context.Context) (int64, error)

	// Message operations. InsertMessage reports whether a row was written:
	// false means the same (room, sender, ts, body) tuple already exists, so
	// redelivered log entries collapse into a single row.
	InsertMessage(ctx context.Context, roomID uuid.UUID, senderID, body string, ts int64) (bool, error)
	RecentMessages(ctx context.Context, roomID uuid.UUID, limit int64) ([]models.Message, error)
	CountMessages(ctx context.Context) (int64, error)
}
