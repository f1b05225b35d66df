package stream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultClaimTimeout = 30 * time.Second

// Entry field names inside a stream record.
const (
	fieldSender = "sender"
	fieldBody   = "body"
	fieldTS     = "ts"
)

// RedisLog keeps each room's log in a Redis Stream.
type RedisLog struct {
	client       *redis.Client
	claimTimeout time.Duration
}

// NewRedisLog connects to Redis and returns a log. claimTimeout is the idle
// time after which another consumer may steal a claimed entry; zero or
// negative selects the default.
func NewRedisLog(ctx context.Context, redisURL string, claimTimeout time.Duration) (*RedisLog, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	if claimTimeout <= 0 {
		claimTimeout = defaultClaimTimeout
	}

	return &RedisLog{client: client, claimTimeout: claimTimeout}, nil
}

// Close closes the Redis connection.
func (l *RedisLog) Close() error {
	return l.client.Close()
}

// Ping checks the Redis connection.
func (l *RedisLog) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}

// streamKey returns the key for a room's message stream.
func streamKey(roomID string) string {
	return fmt.Sprintf("room:%s:stream", roomID)
}

// Append adds an entry to the room's stream and returns the stream id.
func (l *RedisLog) Append(ctx context.Context, roomID string, e Entry) (string, error) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}

	return l.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(roomID),
		Values: map[string]interface{}{
			fieldSender: e.SenderID,
			fieldBody:   e.Body,
			fieldTS:     strconv.FormatInt(e.Timestamp, 10),
		},
	}).Result()
}

// ReadRange returns up to count entries, newest first.
func (l *RedisLog) ReadRange(ctx context.Context, roomID string, count int64) ([]Entry, error) {
	msgs, err := l.client.XRevRangeN(ctx, streamKey(roomID), "+", "-", count).Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, entryFromMessage(m))
	}
	return entries, nil
}

// Len reports the stream length for a room.
func (l *RedisLog) Len(ctx context.Context, roomID string) (int64, error) {
	return l.client.XLen(ctx, streamKey(roomID)).Result()
}

// EnsureGroup creates the consumer group at the stream tail, creating the
// stream itself when missing. An already existing group is fine.
func (l *RedisLog) EnsureGroup(ctx context.Context, roomID, group string) error {
	err := l.client.XGroupCreateMkStream(ctx, streamKey(roomID), group, "$").Err()
	if err != nil && !isBusyGroup(err) {
		return err
	}
	return nil
}

// isBusyGroup reports whether err is Redis telling us the group exists.
func isBusyGroup(err error) bool {
	return err != nil && strings.Contains(err.Error(), "BUSYGROUP")
}

// ReadGroup claims up to count entries for consumer: stale pending entries
// first via XAUTOCLAIM, then undelivered ones via XREADGROUP. On a partial
// failure the already claimed entries are returned alongside the error; they
// stay pending either way.
func (l *RedisLog) ReadGroup(ctx context.Context, roomID, group, consumer string, count int64, block time.Duration) ([]Entry, error) {
	key := streamKey(roomID)

	claimed, _, err := l.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   key,
		Group:    group,
		Consumer: consumer,
		MinIdle:  l.claimTimeout,
		Start:    "0-0",
		Count:    count,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	entries := make([]Entry, 0, count)
	for _, m := range claimed {
		// Entries trimmed away while pending come back as tombstones.
		if len(m.Values) == 0 {
			continue
		}
		entries = append(entries, entryFromMessage(m))
	}

	remaining := count - int64(len(entries))
	if remaining <= 0 {
		return entries, nil
	}

	args := &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{key, ">"},
		Count:    remaining,
		Block:    -1, // negative means no BLOCK at all
	}
	if block > 0 {
		args.Block = block
	}

	streams, err := l.client.XReadGroup(ctx, args).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return entries, nil
		}
		return entries, err
	}

	for _, s := range streams {
		for _, m := range s.Messages {
			entries = append(entries, entryFromMessage(m))
		}
	}
	return entries, nil
}

// Ack acknowledges processed entries for the group.
func (l *RedisLog) Ack(ctx context.Context, roomID, group string, tokens ...string) error {
	if len(tokens) == 0 {
		return nil
	}
	return l.client.XAck(ctx, streamKey(roomID), group, tokens...).Err()
}

// Trim cuts the stream down to maxLen entries, stopping short of anything
// the group has not acknowledged: neither a pending entry nor one the group
// has never been delivered is ever dropped. Under a backlog the stream may
// therefore stay above maxLen until the worker catches up.
func (l *RedisLog) Trim(ctx context.Context, roomID, group string, maxLen int64) (int64, error) {
	key := streamKey(roomID)

	n, err := l.client.XLen(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if n <= maxLen {
		return 0, nil
	}

	// Oldest entry that must survive the length bound.
	head, err := l.client.XRangeN(ctx, key, "-", "+", n-maxLen+1).Result()
	if err != nil {
		return 0, err
	}
	if len(head) == 0 {
		return 0, nil
	}
	threshold := head[len(head)-1].ID

	groups, err := l.client.XInfoGroups(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	var info *redis.XInfoGroup
	for i := range groups {
		if groups[i].Name == group {
			info = &groups[i]
			break
		}
	}
	if info == nil {
		// No group means nothing has been consumed yet.
		return 0, nil
	}
	if info.LastDeliveredID != "" {
		threshold = minToken(threshold, nextToken(info.LastDeliveredID))
	}

	pending, err := l.client.XPending(ctx, key, group).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, err
	}
	if pending != nil && pending.Count > 0 && pending.Lower != "" {
		threshold = minToken(threshold, pending.Lower)
	}

	return l.client.XTrimMinID(ctx, key, threshold).Result()
}

// entryFromMessage converts a raw stream record. A missing or mangled ts
// field falls back to the millisecond prefix of the stream id.
func entryFromMessage(m redis.XMessage) Entry {
	e := Entry{Token: m.ID}
	if v, ok := m.Values[fieldSender]; ok {
		e.SenderID = fmt.Sprint(v)
	}
	if v, ok := m.Values[fieldBody]; ok {
		e.Body = fmt.Sprint(v)
	}
	if v, ok := m.Values[fieldTS]; ok {
		if ts, err := strconv.ParseInt(fmt.Sprint(v), 10, 64); err == nil {
			e.Timestamp = ts
		}
	}
	if e.Timestamp == 0 {
		e.Timestamp = tokenUnixMilli(m.ID)
	}
	return e
}
