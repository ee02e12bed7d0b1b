// Package smartdelay holds rapid-fire chat fragments for a short,
// content-dependent window and merges them into a single reply request.
//
// Every conversation key gets its own queue with at most one live timer.
// Short fragments (re)arm the timer, bounded by a maximum cumulative delay;
// direct questions and long statements flush immediately together with any
// fragments already pending. Stale timer callbacks are discarded through a
// per-queue generation counter.
package smartdelay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"storefront.chat/relay/common/logger"
)

var (
	ErrEmptyKey        = errors.New("conversation key is required")
	ErrSchedulerClosed = errors.New("scheduler is shut down")
)

type snapshot struct {
	cfg        Config
	classifier Classifier
}

type Option func(*Scheduler)

func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source used for receipt times and deadlines.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithObserver reports classifications and dispatches, e.g. to metrics.
func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observer = o
		}
	}
}

type Scheduler struct {
	current    atomic.Pointer[snapshot]
	registry   *registry
	dispatcher *Dispatcher
	logger     *slog.Logger
	observer   Observer
	now        func() time.Time

	// lifecycle is held for reading by Enqueue and timer dispatches, and for
	// writing only while Shutdown flips closed.
	lifecycle sync.RWMutex
	closed    bool
	inflight  sync.WaitGroup

	baseCtx context.Context
}

func New(cfg Config, generator ReplyGenerator, opts ...Option) (*Scheduler, error) {
	if generator == nil {
		return nil, fmt.Errorf("reply generator is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		registry: newRegistry(),
		logger:   slog.Default(),
		observer: nopObserver{},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.dispatcher = NewDispatcher(generator, s.logger)
	s.dispatcher.observer = s.observer
	s.baseCtx = logger.WithLogFields(context.Background(), logger.LogFields{
		Component: "relay.smartdelay.scheduler",
	})
	s.current.Store(newSnapshot(cfg))

	return s, nil
}

func newSnapshot(cfg Config) *snapshot {
	return &snapshot{cfg: cfg, classifier: NewClassifier(cfg)}
}

// Enqueue routes a fragment to its conversation queue and returns without
// waiting for any dispatch.
func (s *Scheduler) Enqueue(ctx context.Context, key string, f Fragment) (Classification, error) {
	if key == "" {
		return Classification{}, ErrEmptyKey
	}

	s.lifecycle.RLock()
	defer s.lifecycle.RUnlock()

	if s.closed {
		return Classification{}, ErrSchedulerClosed
	}

	snap := s.current.Load()
	classification := snap.classifier.Classify(f.Text)
	s.observer.FragmentClassified(classification.Category)
	if f.ReceivedAt.IsZero() {
		f.ReceivedAt = s.now()
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationKey: logger.Ptr(key),
		Category:        logger.Ptr(classification.Category.String()),
		Component:       "relay.smartdelay.scheduler",
	})

	for {
		q := s.registry.getOrCreate(key, s.newQueue)

		res, err := q.accept(f, classification, snap.cfg.MaxDelay, s.now())
		if errors.Is(err, errQueueRetired) {
			// Lost a race with a flush; the registry hands out a fresh queue next time.
			continue
		}

		if res.flushed != nil {
			s.registry.remove(key, q)
			reason := FlushImmediate
			if res.capped {
				reason = FlushMaxDelay
			}
			s.logger.DebugContext(ctx, "fragment closed batch",
				"reason", reason,
				"fragment_count", len(res.flushed))
			s.dispatchAsync(ctx, key, res.flushed, reason)
			return classification, nil
		}

		s.logger.DebugContext(ctx, "fragment queued",
			"delay_ms", classification.Delay.Milliseconds(),
			"deadline", res.deadline,
			"generation", res.generation)
		return classification, nil
	}
}

// FlushOne force-dispatches one conversation. Unknown or empty keys are a no-op.
func (s *Scheduler) FlushOne(ctx context.Context, key string) bool {
	q, ok := s.registry.get(key)
	if !ok {
		return false
	}

	fragments := s.take(q)
	if fragments == nil {
		return false
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationKey: logger.Ptr(key),
		Component:       "relay.smartdelay.scheduler",
	})
	s.logger.InfoContext(ctx, "conversation force flushed", "fragment_count", len(fragments))

	// The queue is already cleared, so the hand-off must outlive the caller.
	return s.dispatcher.dispatch(context.WithoutCancel(ctx), key, fragments, FlushManual)
}

// FlushAll force-dispatches every pending conversation and returns the number of batches handed off.
func (s *Scheduler) FlushAll(ctx context.Context) int {
	dispatchCtx := context.WithoutCancel(ctx)
	dispatched := 0
	for _, q := range s.registry.all() {
		fragments := s.take(q)
		if fragments == nil {
			continue
		}
		if s.dispatcher.dispatch(dispatchCtx, q.key, fragments, FlushManual) {
			dispatched++
		}
	}

	if dispatched > 0 {
		s.logger.InfoContext(ctx, "all conversations flushed", "dispatched", dispatched)
	}
	return dispatched
}

// UpdateConfig swaps the config snapshot. Timers already armed keep their deadline.
func (s *Scheduler) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.current.Store(newSnapshot(cfg))

	s.logger.InfoContext(s.baseCtx, "smart delay config updated",
		"short_fragment_ms", cfg.Delays.ShortFragment.Milliseconds(),
		"direct_question_ms", cfg.Delays.DirectQuestion.Milliseconds(),
		"long_statement_ms", cfg.Delays.LongStatement.Milliseconds(),
		"max_delay_ms", cfg.MaxDelay.Milliseconds(),
		"long_threshold", cfg.LongThreshold)
	return nil
}

func (s *Scheduler) Config() Config {
	return s.current.Load().cfg
}

func (s *Scheduler) Classify(text string) Classification {
	return s.current.Load().classifier.Classify(text)
}

// Stats lists conversations with pending fragments, ordered by key.
func (s *Scheduler) Stats() []QueueStats {
	stats := []QueueStats{}
	for _, q := range s.registry.all() {
		st := q.snapshot()
		if st.Pending == 0 {
			continue
		}
		stats = append(stats, st)
	}
	return stats
}

// Pending returns the number of conversations currently held in the registry.
func (s *Scheduler) Pending() int {
	return s.registry.len()
}

// Shutdown stops accepting fragments, flushes every queue and waits for
// in-flight hand-offs, bounded by ctx. Hand-offs still running when ctx ends
// are left to finish in the background.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.lifecycle.Lock()
	if s.closed {
		s.lifecycle.Unlock()
		return nil
	}
	s.closed = true
	s.lifecycle.Unlock()

	// Enqueue and fire check closed under the read lock, so no inflight.Add
	// can happen after this point except the ones below.
	flushed := 0
	for _, q := range s.registry.all() {
		fragments := s.take(q)
		if fragments == nil {
			continue
		}
		flushed++
		s.dispatchAsync(ctx, q.key, fragments, FlushManual)
	}

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.InfoContext(ctx, "smart delay scheduler stopped", "flushed", flushed)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for in-flight dispatches: %w", ctx.Err())
	}
}

func (s *Scheduler) newQueue(key string) *conversationQueue {
	return newConversationQueue(key, s.fire)
}

func (s *Scheduler) take(q *conversationQueue) []Fragment {
	fragments := q.forceFlush()
	s.registry.remove(q.key, q)
	return fragments
}

// fire runs on the timer goroutine. The dispatch itself happens outside the
// lifecycle lock so a slow generator cannot stall Shutdown or Enqueue.
func (s *Scheduler) fire(q *conversationQueue, generation uint64) {
	s.lifecycle.RLock()
	if s.closed {
		// Shutdown owns whatever is left.
		s.lifecycle.RUnlock()
		return
	}

	fragments, capped := q.fire(generation)
	if fragments == nil {
		s.lifecycle.RUnlock()
		s.logger.DebugContext(s.baseCtx, "stale timer ignored",
			"conversation_key", q.key,
			"generation", generation)
		return
	}
	s.registry.remove(q.key, q)
	s.inflight.Add(1)
	s.lifecycle.RUnlock()
	defer s.inflight.Done()

	reason := FlushTimer
	if capped {
		reason = FlushMaxDelay
	}
	s.dispatcher.dispatch(s.baseCtx, q.key, fragments, reason)
}

// dispatchAsync must be called with lifecycle held for reading, or by
// Shutdown after closed is set and before it waits.
func (s *Scheduler) dispatchAsync(ctx context.Context, key string, fragments []Fragment, reason FlushReason) {
	ctx = context.WithoutCancel(ctx)

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		s.dispatcher.dispatch(ctx, key, fragments, reason)
	}()
}
