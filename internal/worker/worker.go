// Package worker drains the append log into the durable store. One worker
// runs per server instance. Several instances may share the consumer group;
// claims then split between them, and because a batch is written before it
// is acknowledged, anything lost mid-flight is redelivered and collapsed by
// the store's dedup constraint. Delivery to the store is at-least-once.
package worker

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/kwonkwonn/chatting-sever/internal/metrics"
	"github.com/kwonkwonn/chatting-sever/internal/models"
	"github.com/kwonkwonn/chatting-sever/internal/store"
	"github.com/kwonkwonn/chatting-sever/internal/stream"
)

// Defaults for Config fields left zero.
const (
	DefaultGroup         = "db-persist-group"
	DefaultPollInterval  = time.Second
	DefaultBatchSize     = 10
	DefaultMaxStreamLen  = 50
	DefaultShutdownGrace = 10 * time.Second
)

// Config tunes one persistence worker.
type Config struct {
	Group         string        // consumer group shared by all instances
	Consumer      string        // this instance's consumer name
	PollInterval  time.Duration // pause between cycles
	BatchSize     int64         // max entries claimed per room per cycle
	MaxStreamLen  int64         // log length target after trimming
	ShutdownGrace time.Duration // time to finish an in-flight batch on shutdown
}

func (c *Config) fillDefaults() {
	if c.Group == "" {
		c.Group = DefaultGroup
	}
	if c.Consumer == "" {
		host, _ := os.Hostname()
		if host == "" {
			host = "local"
		}
		c.Consumer = fmt.Sprintf("db-worker-%s-%s", host, ulid.Make())
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxStreamLen <= 0 {
		c.MaxStreamLen = DefaultMaxStreamLen
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = DefaultShutdownGrace
	}
}

// Worker polls every room's log, writes claimed entries to the store, acks
// them, and trims the log back to its bound.
type Worker struct {
	log    stream.Log
	store  store.Store
	cfg    Config
	logger zerolog.Logger
	known  map[string]struct{} // rooms whose consumer group is ensured
}

// New creates a worker. Zero Config fields get defaults; in particular the
// consumer name defaults to a unique per-process one, which is what makes
// claims attributable when instances share the group.
func New(log stream.Log, st store.Store, cfg Config, logger zerolog.Logger) *Worker {
	cfg.fillDefaults()
	return &Worker{
		log:    log,
		store:  st,
		cfg:    cfg,
		logger: logger,
		known:  make(map[string]struct{}),
	}
}

// Consumer returns the worker's consumer name within the group.
func (w *Worker) Consumer() string {
	return w.cfg.Consumer
}

// Run executes poll cycles until ctx is canceled. A batch already claimed
// when cancellation arrives still completes, bounded by the shutdown grace.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info().
		Str("group", w.cfg.Group).
		Str("consumer", w.cfg.Consumer).
		Dur("poll_interval", w.cfg.PollInterval).
		Int64("batch_size", w.cfg.BatchSize).
		Msg("persistence worker started")

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("persistence worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.cycle(ctx)
		}
	}
}

// Supervise keeps the worker running, restarting it with exponential
// backoff after a crash, until ctx is canceled.
func (w *Worker) Supervise(ctx context.Context) {
	backoff := time.Second
	for {
		err := w.runRecovering(ctx)
		if ctx.Err() != nil {
			return
		}
		metrics.WorkerRestarts.Inc()
		w.logger.Error().Err(err).Dur("backoff", backoff).Msg("persistence worker crashed, restarting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (w *Worker) runRecovering(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return w.Run(ctx)
}

// cycle discovers rooms from the store and persists one batch for each.
func (w *Worker) cycle(ctx context.Context) {
	start := time.Now()

	rooms, err := w.store.ListRooms(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("room discovery failed")
		return
	}

	current := make(map[string]struct{}, len(rooms))
	for _, rm := range rooms {
		id := rm.ID.String()
		current[id] = struct{}{}
		if _, ok := w.known[id]; ok {
			continue
		}
		if err := w.log.EnsureGroup(ctx, id, w.cfg.Group); err != nil {
			w.logger.Warn().Err(err).Str("room", id).Msg("consumer group setup failed")
			continue
		}
		w.known[id] = struct{}{}
	}
	for id := range w.known {
		if _, ok := current[id]; !ok {
			delete(w.known, id)
		}
	}

	for _, rm := range rooms {
		// Claim no new work once shutdown begins.
		if ctx.Err() != nil {
			return
		}
		if err := w.processRoom(ctx, rm); err != nil {
			metrics.WorkerRoomErrors.Inc()
			w.logger.Error().Err(err).Str("room", rm.ID.String()).Msg("room persistence failed")
		}
	}

	metrics.WorkerCycleDuration.Observe(time.Since(start).Seconds())
}

// processRoom claims one batch and pushes it through write, ack and trim.
// Trimming only happens in a cycle whose own acks succeeded, so the
// instance doing it knows everything beyond the bound is durable.
func (w *Worker) processRoom(ctx context.Context, rm models.Room) error {
	roomID := rm.ID.String()

	entries, err := w.log.ReadGroup(ctx, roomID, w.cfg.Group, w.cfg.Consumer, w.cfg.BatchSize, 0)
	if err != nil {
		if len(entries) == 0 {
			// The group can vanish underneath us, e.g. after a log flush.
			// Recreate it so the next cycle reads cleanly.
			_ = w.log.EnsureGroup(ctx, roomID, w.cfg.Group)
			return err
		}
		w.logger.Warn().Err(err).Str("room", roomID).Msg("partial claim, processing what was read")
	}
	if len(entries) == 0 {
		return nil
	}

	// Entries already claimed are carried to completion even when shutdown
	// starts. Whatever the grace period cuts off stays pending and is
	// reclaimed after the claim timeout.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.ShutdownGrace)
	defer cancel()

	acked, err := w.persistBatch(flushCtx, rm, entries)
	if err != nil {
		return err
	}
	if acked == 0 {
		return nil
	}

	removed, err := w.log.Trim(flushCtx, roomID, w.cfg.Group, w.cfg.MaxStreamLen)
	if err != nil {
		return fmt.Errorf("trim: %w", err)
	}
	if removed > 0 {
		metrics.EntriesTrimmed.Add(float64(removed))
		w.logger.Debug().Str("room", roomID).Int64("removed", removed).Msg("log trimmed")
	}
	return nil
}

// persistBatch writes entries in log order, then acks everything safely
// handled: stored rows, duplicates, and malformed entries dropped on
// purpose. A failed write leaves only that entry unacked for redelivery;
// the rest of the batch proceeds.
func (w *Worker) persistBatch(ctx context.Context, rm models.Room, entries []stream.Entry) (int, error) {
	roomID := rm.ID.String()
	toAck := make([]string, 0, len(entries))

	for _, e := range entries {
		if e.SenderID == "" || e.Body == "" {
			metrics.MessagesDropped.Inc()
			w.logger.Warn().Str("room", roomID).Str("token", e.Token).Msg("dropping malformed log entry")
			toAck = append(toAck, e.Token)
			continue
		}

		inserted, err := w.store.InsertMessage(ctx, rm.ID, e.SenderID, e.Body, e.Timestamp)
		if err != nil {
			w.logger.Warn().Err(err).Str("room", roomID).Str("token", e.Token).Msg("message write failed, entry stays claimable")
			continue
		}
		if inserted {
			metrics.MessagesPersisted.Inc()
		} else {
			metrics.MessagesDuplicate.Inc()
		}
		toAck = append(toAck, e.Token)
	}

	if len(toAck) == 0 {
		return 0, nil
	}
	if err := w.log.Ack(ctx, roomID, w.cfg.Group, toAck...); err != nil {
		return 0, fmt.Errorf("ack %d entries: %w", len(toAck), err)
	}
	metrics.MessagesAcked.Add(float64(len(toAck)))
	return len(toAck), nil
}
