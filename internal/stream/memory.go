package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNoGroup is returned when reading through a consumer group that has not
// been created for the room.
var ErrNoGroup = errors.New("stream: no such consumer group")

// memEntry pairs an entry with its internal sequence number.
type memEntry struct {
	Entry
	seq int64
}

// pendingEntry tracks a delivered but not yet acknowledged entry.
type pendingEntry struct {
	consumer    string
	deliveredAt time.Time
	deliveries  int
}

type memGroup struct {
	lastDelivered int64                    // highest seq handed out as new
	pending       map[string]*pendingEntry // token -> claim state
}

type memRoom struct {
	entries []memEntry
	seq     int64
	groups  map[string]*memGroup
}

// MemoryLog is an in-process Log with the same claim, ack and trim semantics
// as RedisLog. It serves development without Redis and the tests.
type MemoryLog struct {
	mu           sync.Mutex
	rooms        map[string]*memRoom
	claimTimeout time.Duration
	now          func() time.Time
}

// NewMemoryLog returns an empty in-memory log. A zero claimTimeout makes
// unacknowledged entries immediately reclaimable; negative selects the
// default.
func NewMemoryLog(claimTimeout time.Duration) *MemoryLog {
	if claimTimeout < 0 {
		claimTimeout = defaultClaimTimeout
	}
	return &MemoryLog{
		rooms:        make(map[string]*memRoom),
		claimTimeout: claimTimeout,
		now:          time.Now,
	}
}

func (l *MemoryLog) room(roomID string) *memRoom {
	r, ok := l.rooms[roomID]
	if !ok {
		r = &memRoom{groups: make(map[string]*memGroup)}
		l.rooms[roomID] = r
	}
	return r
}

// Append adds an entry and returns its token.
func (l *MemoryLog) Append(ctx context.Context, roomID string, e Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if e.Timestamp == 0 {
		e.Timestamp = l.now().UnixMilli()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.room(roomID)
	r.seq++
	e.Token = fmt.Sprintf("%d-%d", e.Timestamp, r.seq)
	r.entries = append(r.entries, memEntry{Entry: e, seq: r.seq})
	return e.Token, nil
}

// ReadRange returns up to count entries, newest first.
func (l *MemoryLog) ReadRange(ctx context.Context, roomID string, count int64) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.rooms[roomID]
	if !ok {
		return nil, nil
	}

	n := int64(len(r.entries))
	if count > n {
		count = n
	}
	entries := make([]Entry, 0, count)
	for i := n - 1; i >= n-count; i-- {
		entries = append(entries, r.entries[i].Entry)
	}
	return entries, nil
}

// Len reports the number of entries in a room's log.
func (l *MemoryLog) Len(ctx context.Context, roomID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.rooms[roomID]
	if !ok {
		return 0, nil
	}
	return int64(len(r.entries)), nil
}

// EnsureGroup creates the consumer group at the log's tail. Recreating an
// existing group keeps its state.
func (l *MemoryLog) EnsureGroup(ctx context.Context, roomID, group string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r := l.room(roomID)
	if _, ok := r.groups[group]; ok {
		return nil
	}
	r.groups[group] = &memGroup{
		lastDelivered: r.seq,
		pending:       make(map[string]*pendingEntry),
	}
	return nil
}

// ReadGroup claims up to count entries for consumer: stale claims first,
// then entries never delivered to the group. block is ignored; the call
// never waits.
func (l *MemoryLog) ReadGroup(ctx context.Context, roomID, group, consumer string, count int64, block time.Duration) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.rooms[roomID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGroup, group)
	}
	g, ok := r.groups[group]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoGroup, group)
	}

	now := l.now()
	entries := make([]Entry, 0, count)

	for i := range r.entries {
		if int64(len(entries)) >= count {
			break
		}
		me := &r.entries[i]
		p, claimed := g.pending[me.Token]
		if !claimed || now.Sub(p.deliveredAt) < l.claimTimeout {
			continue
		}
		p.consumer = consumer
		p.deliveredAt = now
		p.deliveries++
		entries = append(entries, me.Entry)
	}

	for i := range r.entries {
		if int64(len(entries)) >= count {
			break
		}
		me := &r.entries[i]
		if me.seq <= g.lastDelivered {
			continue
		}
		g.pending[me.Token] = &pendingEntry{consumer: consumer, deliveredAt: now, deliveries: 1}
		g.lastDelivered = me.seq
		entries = append(entries, me.Entry)
	}

	return entries, nil
}

// Ack drops claimed entries from the group's pending set.
func (l *MemoryLog) Ack(ctx context.Context, roomID, group string, tokens ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.rooms[roomID]
	if !ok {
		return nil
	}
	g, ok := r.groups[group]
	if !ok {
		return nil
	}
	for _, token := range tokens {
		delete(g.pending, token)
	}
	return nil
}

// Trim drops the oldest entries down to maxLen, stopping at the first entry
// the group has not acknowledged.
func (l *MemoryLog) Trim(ctx context.Context, roomID, group string, maxLen int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.rooms[roomID]
	if !ok || int64(len(r.entries)) <= maxLen {
		return 0, nil
	}
	g, ok := r.groups[group]
	if !ok {
		return 0, nil
	}

	var removed int64
	for int64(len(r.entries)) > maxLen {
		head := r.entries[0]
		if head.seq > g.lastDelivered {
			break
		}
		if _, claimed := g.pending[head.Token]; claimed {
			break
		}
		r.entries = r.entries[1:]
		removed++
	}
	return removed, nil
}

// GroupLag reports how many entries have never been delivered to the group.
func (l *MemoryLog) GroupLag(roomID, group string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.rooms[roomID]
	if !ok {
		return 0
	}
	g, ok := r.groups[group]
	if !ok {
		return 0
	}
	var lag int64
	for _, me := range r.entries {
		if me.seq > g.lastDelivered {
			lag++
		}
	}
	return lag
}

// PendingCount reports how many delivered entries the group has not yet
// acknowledged for a room.
func (l *MemoryLog) PendingCount(roomID, group string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.rooms[roomID]
	if !ok {
		return 0
	}
	g, ok := r.groups[group]
	if !ok {
		return 0
	}
	return int64(len(g.pending))
}

// Ping always succeeds.
func (l *MemoryLog) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (l *MemoryLog) Close() error {
	return nil
}
