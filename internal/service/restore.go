package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kwonkwonn/chatting-sever/internal/metrics"
	"github.com/kwonkwonn/chatting-sever/internal/models"
	"github.com/kwonkwonn/chatting-sever/internal/stream"
)

// Restore reseeds each room's log from durable history at startup, so
// history reads work immediately after the log was wiped. A room that
// fails to restore is logged and skipped; its reads fall back to the store
// until the log recovers.
func (s *Service) Restore(ctx context.Context) error {
	start := time.Now()

	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		return fmt.Errorf("list rooms: %w", err)
	}

	restored := 0
	for _, room := range rooms {
		if err := s.restoreRoom(ctx, room); err != nil {
			s.logger.Error().Err(err).Str("room", room.ID.String()).Msg("room restore failed, reads fall back to the store")
			continue
		}
		restored++
	}
	s.registry.SyncFromStore(rooms)

	s.logger.Info().
		Int("rooms", restored).
		Dur("took", time.Since(start)).
		Msg("append log reseeded from durable history")
	return nil
}

// restoreRoom seeds one room with its newest durable messages in ascending
// order. The consumer group is created before seeding, so seeds flow to the
// worker once more and the store's dedup insert turns them into no-ops. A
// non-empty log is left untouched: reseeding it would double history.
func (s *Service) restoreRoom(ctx context.Context, room models.Room) error {
	id := room.ID.String()

	if err := s.log.EnsureGroup(ctx, id, s.cfg.Group); err != nil {
		return fmt.Errorf("ensure group: %w", err)
	}

	n, err := s.log.Len(ctx, id)
	if err != nil {
		return fmt.Errorf("len: %w", err)
	}
	if n > 0 {
		return nil
	}

	msgs, err := s.store.RecentMessages(ctx, room.ID, s.cfg.MaxStreamLen)
	if err != nil {
		return fmt.Errorf("recent messages: %w", err)
	}
	for _, m := range msgs {
		_, err := s.log.Append(ctx, id, stream.Entry{
			SenderID:  m.SenderID,
			Body:      m.Body,
			Timestamp: m.Timestamp,
		})
		if err != nil {
			return fmt.Errorf("append: %w", err)
		}
	}

	if len(msgs) > 0 {
		metrics.RoomsRestored.Inc()
		s.logger.Debug().Str("room", id).Int("entries", len(msgs)).Msg("room log reseeded")
	}
	return nil
}
