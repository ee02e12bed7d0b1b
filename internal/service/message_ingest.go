package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"storefront.chat/relay/common/logger"
	"storefront.chat/relay/internal/model"
	"storefront.chat/relay/internal/smartdelay"
	"storefront.chat/relay/internal/store"
)

type MessageIngestParams struct {
	PageID      string
	SenderID    string
	MessageID   string
	Text        string
	Attachments []smartdelay.Attachment
	ReceivedAt  time.Time
}

type MessageIngestResult struct {
	Key        model.ConversationKey
	Category   smartdelay.Category
	Delay      time.Duration
	Duplicated bool
	Skipped    bool
}

type MessageIngestService interface {
	Ingest(ctx context.Context, params MessageIngestParams) (*MessageIngestResult, error)
}

// Enqueuer is the part of the smart delay scheduler ingest needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, key string, f smartdelay.Fragment) (smartdelay.Classification, error)
}

var ErrCompanyNotFound = errors.New("company not found")

type messageIngestService struct {
	companies store.CompanyStore
	dedupe    store.DedupeStore
	scheduler Enqueuer
	logger    *slog.Logger
}

func NewMessageIngestService(companies store.CompanyStore, dedupe store.DedupeStore, scheduler Enqueuer, logger *slog.Logger) MessageIngestService {
	if logger == nil {
		logger = slog.Default()
	}
	return &messageIngestService{
		companies: companies,
		dedupe:    dedupe,
		scheduler: scheduler,
		logger:    logger,
	}
}

func (s *messageIngestService) Ingest(ctx context.Context, params MessageIngestParams) (*MessageIngestResult, error) {
	if params.PageID == "" || params.SenderID == "" || params.MessageID == "" {
		return nil, fmt.Errorf("page_id, sender_id, and message_id are required")
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		MessageID: logger.Ptr(params.MessageID),
		Component: "relay.service.message_ingest",
	})

	company, err := s.companies.GetByPageID(ctx, params.PageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("fetching company: %w", err)
	}

	key := model.ConversationKey{
		CompanyID: company.ID,
		Channel:   model.ChannelMessenger,
		SenderID:  params.SenderID,
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		CompanyID:       logger.Ptr(company.ID),
		ConversationKey: logger.Ptr(key.String()),
	})
	result := &MessageIngestResult{Key: key}

	if !company.AIEnabled {
		s.logger.DebugContext(ctx, "ai disabled for company, message skipped")
		result.Skipped = true
		return result, nil
	}
	if strings.TrimSpace(params.Text) == "" && len(params.Attachments) == 0 {
		result.Skipped = true
		return result, nil
	}

	first, err := s.dedupe.MarkSeen(ctx, params.MessageID)
	if err != nil {
		// Fail open on dedupe errors.
		s.logger.WarnContext(ctx, "dedupe check failed, continuing", "error", err)
		first = true
	}
	if !first {
		s.logger.InfoContext(ctx, "duplicate webhook delivery deduped")
		result.Duplicated = true
		return result, nil
	}

	classification, err := s.scheduler.Enqueue(ctx, key.String(), smartdelay.Fragment{
		ID:          params.MessageID,
		Text:        params.Text,
		Attachments: params.Attachments,
		ReceivedAt:  params.ReceivedAt,
	})
	if err != nil {
		// Let the redelivery through; the fragment never reached a queue.
		if ferr := s.dedupe.Forget(context.WithoutCancel(ctx), params.MessageID); ferr != nil {
			s.logger.WarnContext(ctx, "failed to release dedupe key", "error", ferr)
		}
		return nil, fmt.Errorf("scheduling message: %w", err)
	}

	result.Category = classification.Category
	result.Delay = classification.Delay
	return result, nil
}
