package webhook_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"storefront.chat/relay/internal/http/handler/webhook"
	"storefront.chat/relay/internal/messenger"
	"storefront.chat/relay/internal/service"
	"storefront.chat/relay/internal/smartdelay"
)

const (
	appSecret   = "app-secret"
	verifyToken = "verify-me"
)

type fakeIngest struct {
	mu     sync.Mutex
	calls  []service.MessageIngestParams
	result func(p service.MessageIngestParams) (*service.MessageIngestResult, error)
}

func (f *fakeIngest) Ingest(ctx context.Context, params service.MessageIngestParams) (*service.MessageIngestResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, params)
	f.mu.Unlock()
	if f.result != nil {
		return f.result(params)
	}
	return &service.MessageIngestResult{}, nil
}

func pageEvent(events ...messenger.MessagingEvent) messenger.WebhookEvent {
	return messenger.WebhookEvent{
		Object: "page",
		Entry:  []messenger.Entry{{ID: "page-1", Time: 1700000000000, Messaging: events}},
	}
}

func textMessage(sender, mid, text string) messenger.MessagingEvent {
	return messenger.MessagingEvent{
		Sender:    messenger.Party{ID: sender},
		Recipient: messenger.Party{ID: "page-1"},
		Timestamp: 1700000000000,
		Message:   &messenger.Message{MID: mid, Text: text},
	}
}

var _ = Describe("MessengerWebhookHandler", func() {
	var (
		router *gin.Engine
		ingest *fakeIngest
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		ingest = &fakeIngest{}
		h := webhook.NewMessengerWebhookHandler(ingest, appSecret, verifyToken)
		router.GET("/webhooks/messenger", h.Verify)
		router.POST("/webhooks/messenger", h.HandleEvent)
	})

	post := func(body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/messenger", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		if signature != "" {
			req.Header.Set(messenger.SignatureHeader, signature)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	postSigned := func(event any) *httptest.ResponseRecorder {
		body, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())
		return post(body, messenger.SignatureHeaderValue(appSecret, body))
	}

	Describe("Verify", func() {
		It("echoes the challenge for the right token", func() {
			req := httptest.NewRequest(http.MethodGet,
				"/webhooks/messenger?hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=1158201444", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal("1158201444"))
		})

		It("rejects a wrong token", func() {
			req := httptest.NewRequest(http.MethodGet,
				"/webhooks/messenger?hub.mode=subscribe&hub.verify_token=nope&hub.challenge=1", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			Expect(w.Code).To(Equal(http.StatusForbidden))
		})
	})

	Describe("HandleEvent", func() {
		It("rejects unsigned and mis-signed deliveries", func() {
			body := []byte(`{"object":"page","entry":[]}`)
			Expect(post(body, "").Code).To(Equal(http.StatusUnauthorized))
			Expect(post(body, messenger.SignatureHeaderValue("other-secret", body)).Code).To(Equal(http.StatusUnauthorized))
			Expect(ingest.calls).To(BeEmpty())
		})

		It("rejects malformed JSON", func() {
			body := []byte(`{"object":`)
			Expect(post(body, messenger.SignatureHeaderValue(appSecret, body)).Code).To(Equal(http.StatusBadRequest))
		})

		It("ingests each customer message in order", func() {
			w := postSigned(pageEvent(
				textMessage("psid-1", "m1", "السلام عليكم"),
				textMessage("psid-1", "m2", "عايز أسأل"),
				textMessage("psid-1", "m3", "بكام الشحن؟"),
			))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(ingest.calls).To(HaveLen(3))
			Expect(ingest.calls[0].PageID).To(Equal("page-1"))
			Expect(ingest.calls[0].SenderID).To(Equal("psid-1"))
			Expect(ingest.calls[2].MessageID).To(Equal("m3"))
			Expect(ingest.calls[2].Text).To(Equal("بكام الشحن؟"))
			Expect(ingest.calls[0].ReceivedAt.UnixMilli()).To(Equal(int64(1700000000000)))
		})

		It("skips echoes and receipts", func() {
			echo := textMessage("page-1", "m-echo", "thanks!")
			echo.Message.IsEcho = true
			receipt := messenger.MessagingEvent{Sender: messenger.Party{ID: "psid-1"}}

			w := postSigned(pageEvent(echo, receipt, textMessage("psid-1", "m1", "hi")))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(ingest.calls).To(HaveLen(1))
			Expect(w.Body.String()).To(ContainSubstring(`"received":1`))
		})

		It("maps attachments onto the fragment", func() {
			msg := textMessage("psid-1", "m1", "")
			msg.Message.Attachments = []messenger.Attachment{{
				Type:    "image",
				Payload: messenger.AttachmentPayload{URL: "https://cdn.example/p.jpg"},
			}}

			postSigned(pageEvent(msg))

			Expect(ingest.calls).To(HaveLen(1))
			Expect(ingest.calls[0].Attachments).To(HaveLen(1))
			Expect(ingest.calls[0].Attachments[0].URL).To(Equal("https://cdn.example/p.jpg"))
		})

		It("still answers 200 when ingest fails", func() {
			ingest.result = func(p service.MessageIngestParams) (*service.MessageIngestResult, error) {
				if p.MessageID == "m1" {
					return nil, service.ErrCompanyNotFound
				}
				return nil, errors.New("redis: connection refused")
			}

			w := postSigned(pageEvent(textMessage("psid-1", "m1", "hi"), textMessage("psid-2", "m2", "yo")))

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(ingest.calls).To(HaveLen(2))
			Expect(w.Body.String()).To(ContainSubstring(`"enqueued":0`))
		})

		It("asks for redelivery while the scheduler is shutting down", func() {
			ingest.result = func(p service.MessageIngestParams) (*service.MessageIngestResult, error) {
				if p.MessageID == "m2" {
					return nil, fmt.Errorf("scheduling message: %w", smartdelay.ErrSchedulerClosed)
				}
				return &service.MessageIngestResult{}, nil
			}

			w := postSigned(pageEvent(textMessage("psid-1", "m1", "hi"), textMessage("psid-2", "m2", "yo")))

			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(ingest.calls).To(HaveLen(2))
			Expect(w.Body.String()).To(ContainSubstring(`"enqueued":1`))
		})

		It("acknowledges but ignores non-page objects", func() {
			w := postSigned(messenger.WebhookEvent{Object: "instagram"})
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(ingest.calls).To(BeEmpty())
		})
	})
})
