// Package registry tracks which clients are connected to which room and
// fans broadcast payloads out to them. It is a purely in-memory view:
// the durable room list lives in the store, and the registry only ever
// mirrors a subset of it.
package registry

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/kwonkwonn/chatting-sever/internal/metrics"
	"github.com/kwonkwonn/chatting-sever/internal/models"
)

// ErrRoomNotFound is returned when registering into a room the registry
// does not know.
var ErrRoomNotFound = errors.New("registry: room not found")

// Client is a connected chat participant. Send must not block: ws clients
// buffer writes and report an error when the buffer is full or the
// connection is gone.
type Client interface {
	ID() string
	Send(data []byte) error
}

type room struct {
	name    string
	clients map[Client]struct{}
}

// Registry is the concurrent room membership map.
type Registry struct {
	mu     sync.RWMutex
	rooms  map[string]*room
	logger zerolog.Logger
}

// New returns an empty registry.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*room),
		logger: logger,
	}
}

// Add makes a single store room visible to the registry. Adding a known
// room only refreshes its name.
func (r *Registry) Add(rm models.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.add(rm)
}

// SyncFromStore merges the store's room list into the registry. The merge
// is additive: rooms are never removed here, so connected clients are never
// detached by a sync racing a registration.
func (r *Registry) SyncFromStore(rooms []models.Room) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rm := range rooms {
		r.add(rm)
	}
}

func (r *Registry) add(rm models.Room) {
	id := rm.ID.String()
	if existing, ok := r.rooms[id]; ok {
		existing.name = rm.Name
		return
	}
	r.rooms[id] = &room{name: rm.Name, clients: make(map[Client]struct{})}
}

// Has reports whether the registry knows a room.
func (r *Registry) Has(roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Register attaches a client to a room. Registering the same client twice
// is a no-op.
func (r *Registry) Register(roomID string, c Client) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	if _, ok := rm.clients[c]; ok {
		return nil
	}
	rm.clients[c] = struct{}{}
	metrics.ConnectedClients.Inc()
	r.logger.Debug().Str("room", roomID).Str("client", c.ID()).Msg("client joined")
	return nil
}

// Unregister detaches a client from a room. Unknown clients and rooms are
// ignored. The room itself stays registered; membership here never decides
// room existence.
func (r *Registry) Unregister(roomID string, c Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return
	}
	if _, ok := rm.clients[c]; !ok {
		return
	}
	delete(rm.clients, c)
	metrics.ConnectedClients.Dec()
	r.logger.Debug().Str("room", roomID).Str("client", c.ID()).Msg("client left")
}

// Online reports how many clients are connected to a room.
func (r *Registry) Online(roomID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rm, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	return len(rm.clients)
}

// TotalOnline reports how many clients are connected across all rooms.
func (r *Registry) TotalOnline() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, rm := range r.rooms {
		total += len(rm.clients)
	}
	return total
}

// Broadcast delivers data to every client currently in the room and returns
// the delivery count. The member set is snapshotted under the read lock and
// delivery happens outside it, so a failing client blocks neither siblings
// nor registration traffic. Each snapshotted client is sent to exactly once.
func (r *Registry) Broadcast(roomID string, data []byte) int {
	r.mu.RLock()
	rm, ok := r.rooms[roomID]
	if !ok {
		r.mu.RUnlock()
		return 0
	}
	clients := make([]Client, 0, len(rm.clients))
	for c := range rm.clients {
		clients = append(clients, c)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, c := range clients {
		if err := c.Send(data); err != nil {
			metrics.BroadcastFailures.Inc()
			r.logger.Debug().Err(err).Str("room", roomID).Str("client", c.ID()).Msg("broadcast delivery failed")
			continue
		}
		delivered++
	}
	metrics.BroadcastDeliveries.Add(float64(delivered))
	return delivered
}
