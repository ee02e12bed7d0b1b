package router

import (
	"github.com/gin-gonic/gin"

	"storefront.chat/relay/internal/http/handler"
)

func SmartDelayRouter(rg *gin.RouterGroup, h *handler.SmartDelayHandler) {
	rg.GET("/config", h.GetConfig)
	rg.PUT("/config", h.UpdateConfig)
	rg.POST("/classify", h.Classify)
	rg.GET("/queues", h.ListPending)
	rg.POST("/flush", h.FlushAll)
	rg.POST("/flush/:key", h.FlushOne)
}
