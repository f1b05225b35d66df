package stream

import (
	"context"
	"fmt"
	"testing"
	"time"
)

const testGroup = "db-persist-group"

func appendN(t *testing.T, l *MemoryLog, roomID string, n int) []string {
	t.Helper()
	ctx := context.Background()
	tokens := make([]string, 0, n)
	for i := 0; i < n; i++ {
		token, err := l.Append(ctx, roomID, Entry{
			SenderID:  "alice",
			Body:      fmt.Sprintf("msg-%d", i),
			Timestamp: int64(1000 + i),
		})
		if err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
		tokens = append(tokens, token)
	}
	return tokens
}

func TestMemoryLogAppendAndLen(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog(0)

	appendN(t, l, "r1", 3)

	n, err := l.Len(ctx, "r1")
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 3 {
		t.Errorf("Len = %d, want 3", n)
	}

	n, err = l.Len(ctx, "empty")
	if err != nil {
		t.Fatalf("Len(empty): %v", err)
	}
	if n != 0 {
		t.Errorf("Len(empty) = %d, want 0", n)
	}
}

func TestMemoryLogReadRangeNewestFirst(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog(0)

	appendN(t, l, "r1", 5)

	entries, err := l.ReadRange(ctx, "r1", 3)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	for i, want := range []string{"msg-4", "msg-3", "msg-2"} {
		if entries[i].Body != want {
			t.Errorf("entries[%d].Body = %q, want %q", i, entries[i].Body, want)
		}
	}

	entries, err = l.ReadRange(ctx, "r1", 50)
	if err != nil {
		t.Fatalf("ReadRange(50): %v", err)
	}
	if len(entries) != 5 {
		t.Errorf("got %d entries, want all 5", len(entries))
	}
}

func TestMemoryLogGroupStartsAtTail(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog(0)

	appendN(t, l, "r1", 3)
	if err := l.EnsureGroup(ctx, "r1", testGroup); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	// Idempotent re-create keeps the group state.
	if err := l.EnsureGroup(ctx, "r1", testGroup); err != nil {
		t.Fatalf("EnsureGroup again: %v", err)
	}

	_, err := l.Append(ctx, "r1", Entry{SenderID: "bob", Body: "after", Timestamp: 2000})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := l.ReadGroup(ctx, "r1", testGroup, "c1", 10, 0)
	if err != nil {
		t.Fatalf("ReadGroup: %v", err)
	}
	if len(entries) != 1 || entries[0].Body != "after" {
		t.Fatalf("got %+v, want only the entry appended after group creation", entries)
	}
}

func TestMemoryLogReadGroupWithoutGroup(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog(0)

	appendN(t, l, "r1", 1)
	if _, err := l.ReadGroup(ctx, "r1", testGroup, "c1", 10, 0); err == nil {
		t.Fatal("ReadGroup without group: got nil error")
	}
}

func TestMemoryLogClaimIsExclusive(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog(time.Hour)

	if err := l.EnsureGroup(ctx, "r1", testGroup); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	appendN(t, l, "r1", 4)

	first, err := l.ReadGroup(ctx, "r1", testGroup, "c1", 2, 0)
	if err != nil {
		t.Fatalf("ReadGroup c1: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("c1 claimed %d entries, want 2", len(first))
	}

	second, err := l.ReadGroup(ctx, "r1", testGroup, "c2", 10, 0)
	if err != nil {
		t.Fatalf("ReadGroup c2: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("c2 claimed %d entries, want the 2 undelivered ones", len(second))
	}
	for _, e := range second {
		for _, f := range first {
			if e.Token == f.Token {
				t.Errorf("entry %s delivered to both consumers while claim is fresh", e.Token)
			}
		}
	}
}

func TestMemoryLogAckStopsRedelivery(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog(0) // zero claim timeout: unacked entries reclaim instantly

	if err := l.EnsureGroup(ctx, "r1", testGroup); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	appendN(t, l, "r1", 2)

	entries, err := l.ReadGroup(ctx, "r1", testGroup, "c1", 10, 0)
	if err != nil {
		t.Fatalf("ReadGroup: %v", err)
	}
	tokens := make([]string, 0, len(entries))
	for _, e := range entries {
		tokens = append(tokens, e.Token)
	}
	if err := l.Ack(ctx, "r1", testGroup, tokens...); err != nil {
		t.Fatalf("Ack: %v", err)
	}

	if n := l.PendingCount("r1", testGroup); n != 0 {
		t.Errorf("PendingCount after ack = %d, want 0", n)
	}
	again, err := l.ReadGroup(ctx, "r1", testGroup, "c2", 10, 0)
	if err != nil {
		t.Fatalf("ReadGroup after ack: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("acked entries redelivered: %+v", again)
	}
}

func TestMemoryLogStaleClaimIsRedelivered(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog(0)

	if err := l.EnsureGroup(ctx, "r1", testGroup); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	appendN(t, l, "r1", 2)

	// c1 claims but never acks, simulating a crash mid-batch.
	first, err := l.ReadGroup(ctx, "r1", testGroup, "c1", 10, 0)
	if err != nil {
		t.Fatalf("ReadGroup c1: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("c1 claimed %d entries, want 2", len(first))
	}

	second, err := l.ReadGroup(ctx, "r1", testGroup, "c2", 10, 0)
	if err != nil {
		t.Fatalf("ReadGroup c2: %v", err)
	}
	if len(second) != 2 {
		t.Fatalf("c2 reclaimed %d entries, want 2", len(second))
	}
	for i := range second {
		if second[i].Token != first[i].Token {
			t.Errorf("reclaimed token[%d] = %s, want %s", i, second[i].Token, first[i].Token)
		}
	}
}

func TestMemoryLogTrimNeverDropsUnacked(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog(time.Hour)

	if err := l.EnsureGroup(ctx, "r1", testGroup); err != nil {
		t.Fatalf("EnsureGroup: %v", err)
	}
	appendN(t, l, "r1", 60)

	// Nothing consumed yet: nothing may be dropped.
	removed, err := l.Trim(ctx, "r1", testGroup, 50)
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if removed != 0 {
		t.Fatalf("Trim removed %d undelivered entries", removed)
	}

	entries, err := l.ReadGroup(ctx, "r1", testGroup, "c1", 10, 0)
	if err != nil {
		t.Fatalf("ReadGroup: %v", err)
	}
	tokens := make([]string, 0, len(entries))
	for _, e := range entries {
		tokens = append(tokens, e.Token)
	}

	// Claimed but unacked entries are still protected.
	removed, err = l.Trim(ctx, "r1", testGroup, 50)
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if removed != 0 {
		t.Fatalf("Trim removed %d entries that were pending", removed)
	}

	if err := l.Ack(ctx, "r1", testGroup, tokens...); err != nil {
		t.Fatalf("Ack: %v", err)
	}
	removed, err = l.Trim(ctx, "r1", testGroup, 50)
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if removed != 10 {
		t.Errorf("Trim removed %d, want the 10 acked entries", removed)
	}
	n, err := l.Len(ctx, "r1")
	if err != nil {
		t.Fatalf("Len: %v", err)
	}
	if n != 50 {
		t.Errorf("Len after trim = %d, want 50", n)
	}

	// The surviving head is the oldest unprocessed entry.
	all, err := l.ReadRange(ctx, "r1", 50)
	if err != nil {
		t.Fatalf("ReadRange: %v", err)
	}
	if oldest := all[len(all)-1]; oldest.Body != "msg-10" {
		t.Errorf("oldest surviving entry = %q, want msg-10", oldest.Body)
	}
}

func TestMemoryLogTrimWithoutGroup(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLog(0)

	appendN(t, l, "r1", 60)
	removed, err := l.Trim(ctx, "r1", testGroup, 50)
	if err != nil {
		t.Fatalf("Trim: %v", err)
	}
	if removed != 0 {
		t.Errorf("Trim removed %d entries with no consumer group", removed)
	}
}
