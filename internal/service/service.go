// Package service wires the append log, the durable store and the room
// registry into the chat operations the transport layer exposes.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kwonkwonn/chatting-sever/internal/metrics"
	"github.com/kwonkwonn/chatting-sever/internal/models"
	"github.com/kwonkwonn/chatting-sever/internal/registry"
	"github.com/kwonkwonn/chatting-sever/internal/store"
	"github.com/kwonkwonn/chatting-sever/internal/stream"
)

const (
	// DefaultHistoryLimit is the history window served when a client does
	// not ask for a specific size.
	DefaultHistoryLimit = 50

	maxHistoryLimit = 200

	defaultGroup        = "db-persist-group"
	defaultMaxStreamLen = 50
)

// Config tunes the service.
type Config struct {
	Group        string // consumer group the persistence worker drains
	MaxStreamLen int64  // per-room log bound, also the restoration seed size
}

// Service exposes the chat operations: room management, message posting
// with fanout, history reads and startup restoration.
type Service struct {
	log      stream.Log
	store    store.Store
	registry *registry.Registry
	cfg      Config
	logger   zerolog.Logger
}

// New creates a service. Zero Config fields get defaults matching the
// worker's.
func New(log stream.Log, st store.Store, reg *registry.Registry, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Group == "" {
		cfg.Group = defaultGroup
	}
	if cfg.MaxStreamLen <= 0 {
		cfg.MaxStreamLen = defaultMaxStreamLen
	}
	return &Service{
		log:      log,
		store:    st,
		registry: reg,
		cfg:      cfg,
		logger:   logger,
	}
}

// CreateRoom stores a new room, makes it visible for fanout and prepares
// its log group so the worker can drain it from the first message.
func (s *Service) CreateRoom(ctx context.Context, name string) (*models.Room, error) {
	room, err := s.store.CreateRoom(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	s.registry.Add(*room)

	if err := s.log.EnsureGroup(ctx, room.ID.String(), s.cfg.Group); err != nil {
		// The worker re-ensures groups during discovery; the room stays usable.
		s.logger.Warn().Err(err).Str("room", room.ID.String()).Msg("consumer group setup deferred to worker")
	}
	return room, nil
}

// ListRooms returns all rooms and refreshes the registry's view of them.
func (s *Service) ListRooms(ctx context.Context) ([]models.Room, error) {
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	s.registry.SyncFromStore(rooms)
	return rooms, nil
}

// RoomExists consults the registry first and falls back to the store. A
// store hit is added to the registry so later lookups stay local.
func (s *Service) RoomExists(ctx context.Context, id uuid.UUID) (bool, error) {
	if s.registry.Has(id.String()) {
		return true, nil
	}
	room, err := s.store.GetRoom(ctx, id)
	if err != nil {
		return false, err
	}
	if room == nil {
		return false, nil
	}
	s.registry.Add(*room)
	return true, nil
}

// event is the fanout payload sent to connected clients.
type event struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Sender    string `json:"sender"`
	Body      string `json:"body"`
	Timestamp int64  `json:"ts"`
}

// PostMessage appends a message to the room's log and broadcasts it to
// connected clients. Fanout happens even when the append fails, so present
// listeners still see the message; the returned error then reports that
// durability was not secured.
func (s *Service) PostMessage(ctx context.Context, roomID uuid.UUID, senderID, body string) (string, error) {
	e := stream.Entry{SenderID: senderID, Body: body, Timestamp: time.Now().UnixMilli()}

	token, err := s.log.Append(ctx, roomID.String(), e)
	if err != nil {
		metrics.AppendFailures.Inc()
		s.logger.Error().Err(err).Str("room", roomID.String()).Msg("log append failed")
	} else {
		metrics.MessagesAppended.Inc()
	}

	payload, merr := json.Marshal(event{
		Type:      "message",
		ID:        token,
		Sender:    senderID,
		Body:      body,
		Timestamp: e.Timestamp,
	})
	if merr == nil {
		s.registry.Broadcast(roomID.String(), payload)
	}

	return token, err
}

// GetMessages returns up to limit messages in ascending timestamp order.
// The log is the primary source; when it is empty or unreachable the
// durable store serves the window instead.
func (s *Service) GetMessages(ctx context.Context, roomID uuid.UUID, limit int64) ([]models.ChatMessage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	id := roomID.String()
	n, err := s.log.Len(ctx, id)
	if err == nil && n > 0 {
		entries, rerr := s.log.ReadRange(ctx, id, limit)
		if rerr == nil {
			out := make([]models.ChatMessage, 0, len(entries))
			for i := len(entries) - 1; i >= 0; i-- { // newest-first to ascending
				e := entries[i]
				out = append(out, models.ChatMessage{
					ID:        e.Token,
					Sender:    e.SenderID,
					Body:      e.Body,
					Timestamp: e.Timestamp,
				})
			}
			return out, nil
		}
		err = rerr
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("room", id).Msg("log read failed, serving durable history")
	}

	msgs, serr := s.store.RecentMessages(ctx, roomID, limit)
	if serr != nil {
		return nil, fmt.Errorf("recent messages: %w", serr)
	}
	out := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, models.ChatMessage{
			Sender:    m.SenderID,
			Body:      m.Body,
			Timestamp: m.Timestamp,
		})
	}
	return out, nil
}

// Connect attaches a fanout client to a room.
func (s *Service) Connect(roomID uuid.UUID, c registry.Client) error {
	return s.registry.Register(roomID.String(), c)
}

// Disconnect detaches a fanout client from a room.
func (s *Service) Disconnect(roomID uuid.UUID, c registry.Client) {
	s.registry.Unregister(roomID.String(), c)
}

// Online reports how many clients are connected to a room.
func (s *Service) Online(roomID uuid.UUID) int {
	return s.registry.Online(roomID.String())
}

// Stats is the aggregate shape served by the stats endpoint.
type Stats struct {
	Rooms            int64 `json:"rooms"`
	Messages         int64 `json:"messages"`
	ConnectedClients int   `json:"connected_clients"`
}

// GetStats aggregates store counters and live connection counts.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	rooms, err := s.store.CountRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("count rooms: %w", err)
	}
	msgs, err := s.store.CountMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	return &Stats{
		Rooms:            rooms,
		Messages:         msgs,
		ConnectedClients: s.registry.TotalOnline(),
	}, nil
}
