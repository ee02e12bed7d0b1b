package webhook

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront.chat/relay/common/logger"
	"storefront.chat/relay/internal/messenger"
	"storefront.chat/relay/internal/service"
	"storefront.chat/relay/internal/smartdelay"
)

const maxWebhookBody = 1 << 20

type MessengerWebhookHandler struct {
	ingest      service.MessageIngestService
	appSecret   string
	verifyToken string
}

func NewMessengerWebhookHandler(ingest service.MessageIngestService, appSecret, verifyToken string) *MessengerWebhookHandler {
	return &MessengerWebhookHandler{
		ingest:      ingest,
		appSecret:   appSecret,
		verifyToken: verifyToken,
	}
}

// Verify answers the subscription handshake Facebook performs when the
// webhook URL is registered.
func (h *MessengerWebhookHandler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode != "subscribe" || token == "" || token != h.verifyToken {
		slog.WarnContext(c.Request.Context(), "messenger webhook verification rejected", "mode", mode)
		c.JSON(http.StatusForbidden, gin.H{"error": "verification failed"})
		return
	}

	c.String(http.StatusOK, challenge)
}

// HandleEvent acknowledges every authentic, well-formed delivery with 200 so
// Facebook does not redeliver; per-message failures are logged only.
func (h *MessengerWebhookHandler) HandleEvent(c *gin.Context) {
	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
		Component: "relay.http.webhook.messenger",
	})

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read request body"})
		return
	}

	if err := messenger.VerifySignature(h.appSecret, body, c.GetHeader(messenger.SignatureHeader)); err != nil {
		slog.WarnContext(ctx, "messenger webhook signature rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var event messenger.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	if event.Object != "page" {
		slog.InfoContext(ctx, "ignoring non-page webhook", "object", event.Object)
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	received, enqueued := 0, 0
	refused := false
	for _, entry := range event.Entry {
		for _, msg := range entry.Messaging {
			if !msg.IsCustomerMessage() {
				continue
			}
			received++

			result, err := h.ingest.Ingest(ctx, toIngestParams(entry.ID, msg))
			if err != nil {
				if errors.Is(err, service.ErrCompanyNotFound) {
					slog.WarnContext(ctx, "message for unknown page dropped", "page_id", entry.ID)
					continue
				}
				if errors.Is(err, smartdelay.ErrSchedulerClosed) {
					refused = true
				}
				slog.ErrorContext(ctx, "failed to ingest messenger message",
					"error", err,
					"page_id", entry.ID,
					"mid", msg.Message.MID)
				continue
			}
			if !result.Duplicated && !result.Skipped {
				enqueued++
			}
		}
	}

	slog.InfoContext(ctx, "messenger webhook processed",
		"entries", len(event.Entry),
		"received", received,
		"enqueued", enqueued)

	if refused {
		// Shutting down: ask Facebook to redeliver. Messages already enqueued
		// are deduped on the retry.
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "received": received, "enqueued": enqueued})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "received": received, "enqueued": enqueued})
}

func toIngestParams(pageID string, msg messenger.MessagingEvent) service.MessageIngestParams {
	params := service.MessageIngestParams{
		PageID:     pageID,
		SenderID:   msg.Sender.ID,
		MessageID:  msg.Message.MID,
		Text:       msg.Message.Text,
		ReceivedAt: msg.ReceivedAt(),
	}
	for _, a := range msg.Message.Attachments {
		params.Attachments = append(params.Attachments, smartdelay.Attachment{
			Type: a.Type,
			URL:  a.Payload.URL,
		})
	}
	return params
}
