package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"storefront.chat/relay/internal/http/handler"
	"storefront.chat/relay/internal/http/handler/webhook"
	"storefront.chat/relay/internal/http/middleware"
)

type RouterConfig struct {
	AdminAPIKey string
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type Handlers struct {
	Messenger  *webhook.MessengerWebhookHandler
	SmartDelay *handler.SmartDelayHandler
}

func SetupRoutes(router *gin.Engine, h Handlers, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Metrics != nil {
		router.GET("/metrics", gin.WrapH(cfg.Metrics))
	}

	WebhookRouter(router.Group("/webhooks"), h.Messenger)

	admin := router.Group("/admin")
	admin.Use(middleware.RequireAdminAPIKey(cfg.AdminAPIKey))
	SmartDelayRouter(admin.Group("/smart-delay"), h.SmartDelay)
}
