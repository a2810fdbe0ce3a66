package routers

import (
	"github.com/Rogerio-auto/livechat-monorepo-sub010/controllers/chat"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/controllers/infra"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/controllers/subscription"
	webhookhandlers "github.com/Rogerio-auto/livechat-monorepo-sub010/handlers/webhook"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/socket"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/utils"

	"github.com/gin-gonic/gin"
)

// Deps carries everything the route map needs.
type Deps struct {
	Webhooks      *webhookhandlers.Handler
	Chats         *chat.Controller
	Subscriptions *subscription.Controller
	Infra         *infra.Controller
	Hub           *socket.Hub

	// WebhookRateLimit is requests per minute per client IP on the
	// provider webhook endpoints.
	WebhookRateLimit int
	MediaDir         string
}

// MapRoutes wires the full HTTP surface.
func MapRoutes(router *gin.Engine, d Deps) {
	webhookhandlers.InitWebhookHandlers()

	// =========================================================================
	// PROVIDER WEBHOOK ENDPOINTS
	// =========================================================================

	// Meta Cloud API: GET is the verify handshake, POST carries events.
	// Rate limited per client IP; signature validation happens in the handler.
	wh := router.Group("/webhooks", utils.RateLimitMiddleware("webhook", d.WebhookRateLimit))
	{
		wh.GET("/meta", d.Webhooks.MetaVerify)
		wh.POST("/meta", d.Webhooks.MetaReceive)

		// WAHA pushes per-session events; the session name routes to an inbox.
		wh.POST("/waha/:session", d.Webhooks.WahaReceive)
	}

	// =========================================================================
	// CHAT API
	// =========================================================================

	api := router.Group("/api")
	{
		api.GET("/chats", d.Chats.ListChats)
		api.GET("/chats/:chatId/messages", d.Chats.ListMessages)
		api.POST("/chats/:chatId/messages", d.Chats.SendMessage)
		api.POST("/chats/:chatId/read", d.Chats.MarkRead)

		api.POST("/webhook-subscriptions", d.Subscriptions.Create)
		api.GET("/webhook-subscriptions", d.Subscriptions.List)
		api.DELETE("/webhook-subscriptions/:id", d.Subscriptions.Delete)
	}

	// Downloaded media is served from local disk under the same path the
	// message rows reference.
	router.Static("/media", d.MediaDir)

	// =========================================================================
	// REALTIME + OPERATIONS
	// =========================================================================

	router.GET("/ws", d.Hub.ServeWS)

	admin := router.Group("/admin/infra")
	{
		admin.GET("/workers", d.Infra.Workers)
		admin.GET("/queues", d.Infra.Queues)
		admin.GET("/cache", d.Infra.Cache)
	}
}
