package service

import (
	"log/slog"

	"storefront.chat/relay/common/llm"
	"storefront.chat/relay/internal/store"
)

type Services struct {
	stores *store.Stores
	logger *slog.Logger
}

func NewServices(stores *store.Stores, logger *slog.Logger) *Services {
	return &Services{
		stores: stores,
		logger: logger,
	}
}

func (s *Services) MessageIngest(dedupe store.DedupeStore, scheduler Enqueuer) MessageIngestService {
	return NewMessageIngestService(s.stores.Companies(), dedupe, scheduler, s.logger)
}

func (s *Services) Reply(agent llm.AgentClient, sender Sender) ReplyService {
	return NewReplyService(s.stores.Companies(), agent, sender, s.logger)
}
