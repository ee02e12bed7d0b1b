package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storefront.chat/relay/common/logger"
	"storefront.chat/relay/internal/queue"
)

type Config struct {
	MaxAttempts int
	// Retryable classifies a failed reply; nil treats every failure as retryable.
	Retryable func(ctx context.Context, err error) bool
}

type Worker struct {
	consumer Consumer
	replier  Replier
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, replier Replier, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Worker{
		consumer:  consumer,
		replier:   replier,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "relay.worker",
	})
	slog.InfoContext(ctx, "worker started", "max_attempts", w.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "stream read error", "error", err)
				select {
				case <-ctx.Done():
				case <-w.stopCh:
				case <-time.After(time.Second):
				}
			}
		}
	}
}

// Stop waits for the message in hand to finish.
func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		w.Handle(ctx, msg)
	}
	return nil
}

// Handle processes one entry and routes failures to requeue or DLQ. The
// reclaimer shares it for entries it takes over.
func (w *Worker) Handle(ctx context.Context, msg queue.ReplyMessage) {
	sp := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.process_reply",
		trace.WithSpanKind(trace.SpanKindConsumer))
	defer sp.End()
	sp.SetAttributes(
		attribute.String("conversation_key", msg.Batch.Key),
		attribute.Int64("batch_id", msg.Batch.ID),
		attribute.Int("attempt", msg.Attempt),
	)

	ctx = logger.WithLogFields(sp.Context(), logger.LogFields{
		ConversationKey: logger.Ptr(msg.Batch.Key),
		BatchID:         logger.Ptr(msg.Batch.ID),
		MessageID:       logger.Ptr(msg.ID),
		Attempt:         logger.Ptr(msg.Attempt),
	})

	if err := w.processMessageSafe(ctx, msg); err != nil {
		sp.Fail(err)
		slog.ErrorContext(ctx, "reply batch failed", "error", err)
		w.handleFailedMessage(ctx, msg, err)
	}
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.ReplyMessage) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in reply processing", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.processMessage(ctx, msg)
}

func (w *Worker) processMessage(ctx context.Context, msg queue.ReplyMessage) error {
	start := time.Now()
	slog.InfoContext(ctx, "processing reply batch", "fragment_count", msg.Batch.FragmentCount)

	result, err := w.replier.Reply(ctx, msg.Batch)
	if err != nil {
		return err
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// Left pending, the reclaimer may send this reply a second time.
		slog.WarnContext(ctx, "failed to ACK reply batch", "error", err)
	}

	slog.InfoContext(ctx, "reply batch processed",
		"skipped", result.Skipped,
		"handoff", result.Handoff,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.ReplyMessage, err error) {
	retryable := w.cfg.Retryable == nil || w.cfg.Retryable(ctx, err)

	if !retryable || msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "sending reply batch to DLQ",
			"retryable", retryable,
			"attempts", msg.Attempt)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing reply batch", "attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue reply batch", "error", requeueErr)
	}
}
