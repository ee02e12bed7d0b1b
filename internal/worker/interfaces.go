package worker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"storefront.chat/relay/internal/queue"
	"storefront.chat/relay/internal/service"
	"storefront.chat/relay/internal/smartdelay"
)

// Consumer abstracts the reply stream for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.ReplyMessage, error)
	Ack(ctx context.Context, msg queue.ReplyMessage) error
	Requeue(ctx context.Context, msg queue.ReplyMessage, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.ReplyMessage, errMsg string) error
}

// StaleClaimer hands over entries another consumer read but never acked.
type StaleClaimer interface {
	ClaimStale(ctx context.Context, minIdle time.Duration, count int64) ([]redis.XMessage, error)
	Ack(ctx context.Context, msg queue.ReplyMessage) error
}

// Replier turns one merged batch into a sent reply.
type Replier interface {
	Reply(ctx context.Context, batch smartdelay.Batch) (*service.ReplyResult, error)
}
