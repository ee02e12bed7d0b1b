package router_test

import (
	"context"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"storefront.chat/relay/internal/http/handler"
	"storefront.chat/relay/internal/http/handler/webhook"
	"storefront.chat/relay/internal/http/router"
	"storefront.chat/relay/internal/metrics"
	"storefront.chat/relay/internal/service"
	"storefront.chat/relay/internal/smartdelay"
)

type nopIngest struct{}

func (nopIngest) Ingest(context.Context, service.MessageIngestParams) (*service.MessageIngestResult, error) {
	return &service.MessageIngestResult{}, nil
}

var _ = Describe("SetupRoutes", func() {
	var (
		engine    *gin.Engine
		scheduler *smartdelay.Scheduler
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		engine = gin.New()

		var err error
		scheduler, err = smartdelay.New(smartdelay.DefaultConfig(),
			smartdelay.ReplyGeneratorFunc(func(context.Context, smartdelay.Batch) error { return nil }))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			_ = scheduler.Shutdown(context.Background())
		})

		router.SetupRoutes(engine, router.Handlers{
			Messenger:  webhook.NewMessengerWebhookHandler(nopIngest{}, "secret", "token"),
			SmartDelay: handler.NewSmartDelayHandler(scheduler),
		}, router.RouterConfig{
			AdminAPIKey: "admin-key",
			Metrics:     metrics.Handler(metrics.NewRegistry()),
		})
	})

	get := func(path string, headers map[string]string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		for k, v := range headers {
			req.Header.Set(k, v)
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	It("serves health and metrics without auth", func() {
		Expect(get("/health", nil).Code).To(Equal(http.StatusOK))
		Expect(get("/metrics", nil).Code).To(Equal(http.StatusOK))
	})

	It("guards the admin routes", func() {
		Expect(get("/admin/smart-delay/config", nil).Code).To(Equal(http.StatusUnauthorized))

		w := get("/admin/smart-delay/config", map[string]string{"X-Admin-API-Key": "admin-key"})
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"short_fragment_ms":3000`))
	})

	It("lists conversations held by the scheduler", func() {
		_, err := scheduler.Enqueue(context.Background(), "1:messenger:42", smartdelay.Fragment{Text: "hello"})
		Expect(err).NotTo(HaveOccurred())

		w := get("/admin/smart-delay/queues", map[string]string{"Authorization": "Bearer admin-key"})
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"key":"1:messenger:42"`))
	})

	It("exposes the messenger webhook", func() {
		w := get("/webhooks/messenger?hub.mode=subscribe&hub.verify_token=token&hub.challenge=abc", nil)
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(Equal("abc"))
	})
})
