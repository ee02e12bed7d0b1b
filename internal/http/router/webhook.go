package router

import (
	"github.com/gin-gonic/gin"

	"storefront.chat/relay/internal/http/handler/webhook"
)

func WebhookRouter(rg *gin.RouterGroup, h *webhook.MessengerWebhookHandler) {
	rg.GET("/messenger", h.Verify)
	rg.POST("/messenger", h.HandleEvent)
}
