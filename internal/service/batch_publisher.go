package service

import (
	"context"
	"fmt"

	"storefront.chat/relay/common/logger"
	"storefront.chat/relay/internal/queue"
	"storefront.chat/relay/internal/smartdelay"
)

// BatchPublisher hands merged batches to the reply worker over the reply stream.
type BatchPublisher struct {
	producer queue.Producer
}

var _ smartdelay.ReplyGenerator = (*BatchPublisher)(nil)

func NewBatchPublisher(producer queue.Producer) *BatchPublisher {
	return &BatchPublisher{producer: producer}
}

func (p *BatchPublisher) GenerateReply(ctx context.Context, batch smartdelay.Batch) error {
	sp := logger.StartSpan(ctx, "smartdelay.publish_batch")
	defer sp.End()

	if err := p.producer.Enqueue(sp.Context(), queue.ReplyMessage{
		Batch:   batch,
		Attempt: 1,
		TraceID: logger.TraceIDFromContext(sp.Context()),
	}); err != nil {
		sp.Fail(err)
		return fmt.Errorf("publishing batch %d: %w", batch.ID, err)
	}
	return nil
}
