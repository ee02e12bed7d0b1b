package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"storefront.chat/relay/common/llm"
	"storefront.chat/relay/common/logger"
	"storefront.chat/relay/internal/messenger"
	"storefront.chat/relay/internal/model"
	"storefront.chat/relay/internal/smartdelay"
	"storefront.chat/relay/internal/store"
)

const (
	handoffToolName = "handoff_to_human"

	defaultSystemPrompt = `You are the customer assistant of an online shop chatting on Facebook Messenger.
Reply in the customer's language and dialect. Keep answers short and friendly.
The customer often sends a thought in several small messages; they arrive here joined into one.
If you cannot answer from what you know about the shop, or the customer asks for a person,
call the handoff_to_human tool instead of guessing.`

	handoffNotice = "Thanks for your message! A member of our team will get back to you shortly."
)

type handoffArgs struct {
	Reason string `json:"reason" jsonschema:"description=Short reason a human should take over"`
}

// Sender delivers replies to the customer's channel.
type Sender interface {
	SendText(ctx context.Context, pageAccessToken, recipientID, text string) error
	SendAction(ctx context.Context, pageAccessToken, recipientID string, action messenger.SenderAction) error
}

type ReplyResult struct {
	Skipped       bool
	Handoff       bool
	HandoffReason string
	Text          string
}

type ReplyService interface {
	Reply(ctx context.Context, batch smartdelay.Batch) (*ReplyResult, error)
}

type replyService struct {
	companies store.CompanyStore
	agent     llm.AgentClient
	sender    Sender
	logger    *slog.Logger
}

func NewReplyService(companies store.CompanyStore, agent llm.AgentClient, sender Sender, logger *slog.Logger) ReplyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &replyService{
		companies: companies,
		agent:     agent,
		sender:    sender,
		logger:    logger,
	}
}

func (s *replyService) Reply(ctx context.Context, batch smartdelay.Batch) (*ReplyResult, error) {
	key, err := model.ParseConversationKey(batch.Key)
	if err != nil {
		return nil, err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ConversationKey: logger.Ptr(batch.Key),
		CompanyID:       logger.Ptr(key.CompanyID),
		BatchID:         logger.Ptr(batch.ID),
		Component:       "relay.service.reply",
	})

	company, err := s.companies.GetByID(ctx, key.CompanyID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrCompanyNotFound
		}
		return nil, fmt.Errorf("fetching company: %w", err)
	}
	if !company.AIEnabled {
		s.logger.InfoContext(ctx, "ai disabled since batch was queued, reply skipped")
		return &ReplyResult{Skipped: true}, nil
	}

	prompt := customerTurn(batch)
	if prompt == "" {
		return &ReplyResult{Skipped: true}, nil
	}

	if err := s.sender.SendAction(ctx, company.PageAccessToken, key.SenderID, messenger.ActionTypingOn); err != nil {
		s.logger.WarnContext(ctx, "typing indicator failed", "error", err)
	}

	resp, err := s.agent.ChatWithTools(ctx, llm.AgentRequest{
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt(company)},
			{Role: llm.RoleUser, Content: prompt},
		},
		Tools: []llm.Tool{{
			Name:        handoffToolName,
			Description: "Hand the conversation over to a human member of the shop's team.",
			Parameters:  llm.SchemaFor[handoffArgs](),
		}},
	})
	if err != nil {
		return nil, fmt.Errorf("generating reply: %w", err)
	}

	result := &ReplyResult{Text: strings.TrimSpace(resp.Content)}
	if call, ok := resp.ToolCall(handoffToolName); ok {
		args, err := llm.ParseToolArguments[handoffArgs](call.Arguments)
		if err != nil {
			s.logger.WarnContext(ctx, "unreadable handoff arguments", "error", err)
		}
		result.Handoff = true
		result.HandoffReason = args.Reason
		result.Text = handoffNotice
	}
	if result.Text == "" {
		return nil, fmt.Errorf("generating reply: empty response (finish_reason=%s)", resp.FinishReason)
	}

	if err := s.sender.SendText(ctx, company.PageAccessToken, key.SenderID, result.Text); err != nil {
		return nil, fmt.Errorf("sending reply: %w", err)
	}

	s.logger.InfoContext(ctx, "reply sent",
		"handoff", result.Handoff,
		"handoff_reason", result.HandoffReason,
		"fragment_count", batch.FragmentCount,
		"prompt_tokens", resp.PromptTokens,
		"completion_tokens", resp.CompletionTokens)

	return result, nil
}

func systemPrompt(company *model.Company) string {
	var b strings.Builder
	b.WriteString(defaultSystemPrompt)
	b.WriteString("\n\nShop: ")
	b.WriteString(company.Name)
	if p := strings.TrimSpace(company.SystemPrompt); p != "" {
		b.WriteString("\n\n")
		b.WriteString(p)
	}
	return b.String()
}

// customerTurn renders the merged batch, noting attachments the model cannot see.
func customerTurn(batch smartdelay.Batch) string {
	lines := make([]string, 0, 1+len(batch.Attachments))
	if text := strings.TrimSpace(batch.Text); text != "" {
		lines = append(lines, text)
	}
	for _, a := range batch.Attachments {
		lines = append(lines, fmt.Sprintf("[customer sent %s: %s]", a.Type, a.URL))
	}
	return strings.Join(lines, "\n")
}

// IsRetryable decides whether the worker should requeue a failed batch.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrCompanyNotFound) || errors.Is(err, model.ErrInvalidConversationKey) {
		return false
	}

	var apiErr *messenger.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return llm.IsRetryable(ctx, err)
}
