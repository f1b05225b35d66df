// Package stream wraps the volatile append-only log that buffers chat
// messages per room. Every room maps to one log keyed by room id; entries
// are ordered by opaque, monotonically increasing tokens assigned at append
// time. A single consumer group per log hands entries to the persistence
// worker with claim/ack semantics: a claimed entry stays invisible to other
// consumers until acknowledged or until its claim sits idle past the claim
// timeout, after which any consumer may reclaim it.
package stream

import (
	"context"
	"strconv"
	"strings"
	"time"
)

// Entry is a single chat message held in the log.
type Entry struct {
	Token     string // ordering token assigned by the log, empty before append
	SenderID  string
	Body      string
	Timestamp int64 // Unix ms
}

// Log is the append log contract. RedisLog backs it with Redis Streams;
// MemoryLog keeps everything in process for development and tests.
type Log interface {
	// Append adds an entry to a room's log and returns its token.
	Append(ctx context.Context, roomID string, e Entry) (string, error)

	// ReadRange returns up to count entries, newest first.
	ReadRange(ctx context.Context, roomID string, count int64) ([]Entry, error)

	// Len reports the number of entries currently in a room's log.
	Len(ctx context.Context, roomID string) (int64, error)

	// EnsureGroup creates the consumer group positioned at the log's tail.
	// Creating a group that already exists is not an error.
	EnsureGroup(ctx context.Context, roomID, group string) error

	// ReadGroup claims up to count entries for the named consumer: first any
	// entries whose previous claim has been idle past the claim timeout, then
	// entries never delivered to the group. block <= 0 returns immediately
	// when nothing is available.
	ReadGroup(ctx context.Context, roomID, group, consumer string, count int64, block time.Duration) ([]Entry, error)

	// Ack marks claimed entries as fully processed so they are never
	// redelivered.
	Ack(ctx context.Context, roomID, group string, tokens ...string) error

	// Trim drops the oldest entries down to maxLen, but never an entry the
	// group has not acknowledged. Returns the number of entries removed.
	Trim(ctx context.Context, roomID, group string, maxLen int64) (int64, error)

	// Ping checks the backing log connection.
	Ping(ctx context.Context) error

	// Close releases the backing connection.
	Close() error
}

// parseToken splits a stream token of the form "<ms>-<seq>" into its parts.
func parseToken(token string) (ms, seq int64, ok bool) {
	i := strings.IndexByte(token, '-')
	if i < 0 {
		ms, err := strconv.ParseInt(token, 10, 64)
		return ms, 0, err == nil
	}
	ms, err := strconv.ParseInt(token[:i], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	seq, err = strconv.ParseInt(token[i+1:], 10, 64)
	if err != nil {
		return 0, 0, false
	}
	return ms, seq, true
}

// tokenLess reports whether token a orders strictly before token b.
func tokenLess(a, b string) bool {
	ams, aseq, aok := parseToken(a)
	bms, bseq, bok := parseToken(b)
	if !aok || !bok {
		return a < b
	}
	if ams != bms {
		return ams < bms
	}
	return aseq < bseq
}

// minToken returns the earlier of two tokens.
func minToken(a, b string) string {
	if tokenLess(b, a) {
		return b
	}
	return a
}

// nextToken returns the smallest token strictly greater than the given one.
func nextToken(token string) string {
	ms, seq, ok := parseToken(token)
	if !ok {
		return token
	}
	return strconv.FormatInt(ms, 10) + "-" + strconv.FormatInt(seq+1, 10)
}

// tokenUnixMilli extracts the millisecond part of a token. Used as a
// timestamp fallback for entries appended without a ts field.
func tokenUnixMilli(token string) int64 {
	ms, _, ok := parseToken(token)
	if !ok {
		return 0
	}
	return ms
}
