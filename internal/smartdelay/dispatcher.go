package smartdelay

import (
	"context"
	"log/slog"
	"strings"

	"storefront.chat/relay/common/id"
	"storefront.chat/relay/common/logger"
)

// ReplyGenerator receives each merged batch exactly once. The scheduler never
// retries or awaits anything beyond the call itself; an error is only logged.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, batch Batch) error
}

type ReplyGeneratorFunc func(ctx context.Context, batch Batch) error

func (f ReplyGeneratorFunc) GenerateReply(ctx context.Context, batch Batch) error {
	return f(ctx, batch)
}

type Dispatcher struct {
	generator ReplyGenerator
	logger    *slog.Logger
	observer  Observer
	newID     func() int64
}

func NewDispatcher(generator ReplyGenerator, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		generator: generator,
		logger:    log,
		observer:  nopObserver{},
		newID:     id.New,
	}
}

// Merge joins fragments in arrival order. Empty texts (attachment-only
// fragments) do not produce extra separators.
func Merge(key string, fragments []Fragment) Batch {
	batch := Batch{
		Key:           key,
		FragmentCount: len(fragments),
	}

	texts := make([]string, 0, len(fragments))
	for i, f := range fragments {
		if text := strings.TrimSpace(f.Text); text != "" {
			texts = append(texts, text)
		}
		batch.Attachments = append(batch.Attachments, f.Attachments...)
		if f.ID != "" {
			batch.FragmentIDs = append(batch.FragmentIDs, f.ID)
		}
		if i == 0 {
			batch.FirstReceivedAt = f.ReceivedAt
		}
		batch.LastReceivedAt = f.ReceivedAt
	}
	batch.Text = strings.Join(texts, " ")

	return batch
}

// Dispatch merges and hands off one batch. Returns false when there was nothing to send.
func (d *Dispatcher) Dispatch(ctx context.Context, key string, fragments []Fragment) bool {
	return d.dispatch(ctx, key, fragments, FlushManual)
}

func (d *Dispatcher) dispatch(ctx context.Context, key string, fragments []Fragment, reason FlushReason) bool {
	if len(fragments) == 0 {
		return false
	}

	batch := Merge(key, fragments)
	batch.ID = d.newID()

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationKey: logger.Ptr(key),
		BatchID:         logger.Ptr(batch.ID),
		Component:       "relay.smartdelay.dispatcher",
	})

	err := d.generator.GenerateReply(ctx, batch)
	d.observer.BatchDispatched(reason, batch, err)
	if err != nil {
		// The queue is already cleared; the batch is not buffered again.
		d.logger.ErrorContext(ctx, "reply generator failed, batch dropped",
			"error", err,
			"reason", reason,
			"fragment_count", batch.FragmentCount)
		return true
	}

	d.logger.InfoContext(ctx, "batch dispatched",
		"reason", reason,
		"fragment_count", batch.FragmentCount,
		"attachment_count", len(batch.Attachments),
		"text", logger.Truncate(batch.Text, 200))
	return true
}
