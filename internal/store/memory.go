package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kwonkwonn/chatting-sever/internal/crypto"
	"github.com/kwonkwonn/chatting-sever/internal/models"
)

// MemoryStore is an in-process Store used for development without a
// database and for tests. Semantics mirror the SQL stores, including the
// dedup behavior of InsertMessage.
type MemoryStore struct {
	mu     sync.RWMutex
	rooms  map[uuid.UUID]models.Room
	order  []uuid.UUID // creation order, for ListRooms
	msgs   map[uuid.UUID][]models.Message
	seen   map[string]struct{}
	nextID int64
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rooms: make(map[uuid.UUID]models.Room),
		msgs:  make(map[uuid.UUID][]models.Message),
		seen:  make(map[string]struct{}),
	}
}

// Close is a no-op.
func (s *MemoryStore) Close() {}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// CreateRoom creates a new room with a store-assigned id.
func (s *MemoryStore) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room := models.Room{ID: crypto.NewUUIDv7(), Name: name, CreatedAt: time.Now()}
	s.rooms[room.ID] = room
	s.order = append(s.order, room.ID)
	return &room, nil
}

// GetRoom retrieves a room by ID.
func (s *MemoryStore) GetRoom(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	room, ok := s.rooms[id]
	if !ok {
		return nil, nil
	}
	return &room, nil
}

// ListRooms retrieves every room, oldest first.
func (s *MemoryStore) ListRooms(ctx context.Context) ([]models.Room, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := make([]models.Room, 0, len(s.order))
	for _, id := range s.order {
		rooms = append(rooms, s.rooms[id])
	}
	return rooms, nil
}

// CountRooms returns the total number of rooms.
func (s *MemoryStore) CountRooms(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.rooms)), nil
}

// dedupKey is the natural identity of a message.
func dedupKey(roomID uuid.UUID, senderID, body string, ts int64) string {
	return fmt.Sprintf("%s|%s|%d|%s", roomID, senderID, ts, body)
}

// InsertMessage writes one message. A repeat of the same (room, sender, ts,
// body) tuple reports inserted=false without an error.
func (s *MemoryStore) InsertMessage(ctx context.Context, roomID uuid.UUID, senderID, body string, ts int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[roomID]; !ok {
		return false, fmt.Errorf("room %s not found", roomID)
	}

	key := dedupKey(roomID, senderID, body, ts)
	if _, ok := s.seen[key]; ok {
		return false, nil
	}
	s.seen[key] = struct{}{}

	s.nextID++
	s.msgs[roomID] = append(s.msgs[roomID], models.Message{
		ID:        s.nextID,
		RoomID:    roomID,
		SenderID:  senderID,
		Body:      body,
		Timestamp: ts,
		CreatedAt: time.Now(),
	})
	return true, nil
}

// RecentMessages returns the newest limit messages for a room in ascending
// timestamp order, row id breaking ties.
func (s *MemoryStore) RecentMessages(ctx context.Context, roomID uuid.UUID, limit int64) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.msgs[roomID]
	msgs := make([]models.Message, len(all))
	copy(msgs, all)
	sort.Slice(msgs, func(i, j int) bool {
		if msgs[i].Timestamp != msgs[j].Timestamp {
			return msgs[i].Timestamp < msgs[j].Timestamp
		}
		return msgs[i].ID < msgs[j].ID
	})

	if int64(len(msgs)) > limit {
		msgs = msgs[int64(len(msgs))-limit:]
	}
	return msgs, nil
}

// CountMessages returns the total number of stored messages.
func (s *MemoryStore) CountMessages(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64
	for _, m := range s.msgs {
		count += int64(len(m))
	}
	return count, nil
}
