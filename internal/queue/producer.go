package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Producer interface {
	Enqueue(ctx context.Context, msg ReplyMessage) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, msg ReplyMessage) error {
	attempt := msg.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	values, err := messageValues(msg, attempt)
	if err != nil {
		return fmt.Errorf("enqueue reply batch: %w", err)
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: values,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue reply batch: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued reply batch",
		"batch_id", msg.Batch.ID,
		"conversation_key", msg.Batch.Key,
		"fragment_count", msg.Batch.FragmentCount,
		"attempt", attempt)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
