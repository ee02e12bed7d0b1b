package worker

import (
	"context"
	"log/slog"
	"time"

	"storefront.chat/relay/common/logger"
	"storefront.chat/relay/internal/queue"
)

type ReclaimerConfig struct {
	MinIdle   time.Duration
	Interval  time.Duration
	BatchSize int64
}

// Reclaimer periodically takes over reply batches whose consumer died
// between XREADGROUP and XACK.
type Reclaimer struct {
	claimer StaleClaimer
	handle  func(ctx context.Context, msg queue.ReplyMessage)
	cfg     ReclaimerConfig

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func NewReclaimer(claimer StaleClaimer, handle func(ctx context.Context, msg queue.ReplyMessage), cfg ReclaimerConfig) *Reclaimer {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.MinIdle <= 0 {
		cfg.MinIdle = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Reclaimer{
		claimer:   claimer,
		handle:    handle,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Run blocks until Stop is called or ctx ends.
func (r *Reclaimer) Run(ctx context.Context) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "relay.worker.reclaimer",
	})

	defer close(r.stoppedCh)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	slog.InfoContext(ctx, "reclaimer started",
		"interval", r.cfg.Interval,
		"min_idle", r.cfg.MinIdle)

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			slog.InfoContext(ctx, "reclaimer stopping")
			return
		case <-ticker.C:
			r.ReclaimOnce(ctx)
		}
	}
}

func (r *Reclaimer) Stop() {
	close(r.stopCh)
	<-r.stoppedCh
}

// ReclaimOnce claims up to BatchSize stale entries and handles each. Returns
// how many were handed to the handler.
func (r *Reclaimer) ReclaimOnce(ctx context.Context) int {
	claimed, err := r.claimer.ClaimStale(ctx, r.cfg.MinIdle, r.cfg.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "reclaim cycle error", "error", err)
		return 0
	}
	if len(claimed) == 0 {
		return 0
	}

	slog.InfoContext(ctx, "reclaimed stale reply batches", "count", len(claimed))

	handled := 0
	for _, raw := range claimed {
		msg, err := queue.ParseMessage(raw)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse reclaimed entry, acknowledging to prevent loop",
				"error", err,
				"raw_message_id", raw.ID)
			_ = r.claimer.Ack(ctx, queue.ReplyMessage{ID: raw.ID, Raw: raw})
			continue
		}
		r.handle(ctx, msg)
		handled++
	}
	return handled
}
