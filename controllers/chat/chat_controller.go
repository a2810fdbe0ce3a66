package chat

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/queue"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/services"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/utils"

	"github.com/gin-gonic/gin"
)

// SendMessageRequest is the body for posting an agent reply into a chat.
type SendMessageRequest struct {
	Content   string `json:"content" binding:"required"`
	Type      string `json:"type"`
	SenderID  string `json:"sender_id"`
	IsPrivate bool   `json:"is_private"`
}

// Controller serves the chat REST surface backed by Postgres, with sends
// handed off to the outbound queue.
type Controller struct {
	Store     *services.Store
	Publisher queue.Publisher
}

func NewController(store *services.Store, publisher queue.Publisher) *Controller {
	return &Controller{Store: store, Publisher: publisher}
}

// ListChats returns recent chats for a company.
// GET /api/chats?companyId=...&limit=50
func (ct *Controller) ListChats(c *gin.Context) {
	companyID := c.Query("companyId")
	if companyID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "companyId is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	chats, err := ct.Store.ListChats(ctx, companyID, limit)
	if err != nil {
		log.Printf("[CHAT_API] Failed to list chats for company %s: %v", companyID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list chats"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// ListMessages returns a page of messages, newest first.
// GET /api/chats/:chatId/messages?limit=50
func (ct *Controller) ListMessages(c *gin.Context) {
	chatID := c.Param("chatId")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	msgs, err := ct.Store.ListMessages(ctx, chatID, limit)
	if err != nil {
		log.Printf("[CHAT_API] Failed to list messages for chat %s: %v", chatID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// MarkRead zeroes the chat's unread counter.
// POST /api/chats/:chatId/read
func (ct *Controller) MarkRead(c *gin.Context) {
	chatID := c.Param("chatId")

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := ct.Store.MarkChatRead(ctx, chatID); err != nil {
		log.Printf("[CHAT_API] Failed to mark chat %s read: %v", chatID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mark chat read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// SendMessage persists an outbound message as PENDING and enqueues the
// provider send. The message row exists before the queue publish, so a
// failed publish surfaces as a 500 while the row stays visible as PENDING.
// POST /api/chats/:chatId/messages
func (ct *Controller) SendMessage(c *gin.Context) {
	chatID := c.Param("chatId")

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msgType := strings.ToUpper(req.Type)
	if msgType == "" {
		msgType = "TEXT"
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	inboxID, companyID, provider, phone, err := ct.Store.ChatContact(ctx, chatID)
	if err != nil {
		log.Printf("[CHAT_API] Failed to load chat %s: %v", chatID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load chat"})
		return
	}
	if inboxID == "" {
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
		return
	}
	view, err := ct.Store.InsertOutboundMessage(ctx, chatID, req.Content, msgType, req.SenderID, req.IsPrivate)
	if err != nil {
		log.Printf("[CHAT_API] Failed to insert message for chat %s: %v", chatID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save message"})
		return
	}

	// Fan the saved message out to every agent in the chat room. Failures
	// here only cost realtime delivery, not the send itself.
	ct.Publisher.Publish(queue.ExchangeApp, queue.KeySocketOutbound, models.SocketEvent{
		Kind:      models.SocketKindOutbound,
		ChatID:    chatID,
		CompanyID: companyID,
		InboxID:   inboxID,
		Message:   view,
	})

	// Private notes stay internal; no provider send.
	if req.IsPrivate {
		c.JSON(http.StatusCreated, view)
		return
	}

	job := models.OutboundRequestJob{
		JobType:   models.JobTypeText,
		Provider:  provider,
		InboxID:   inboxID,
		ChatID:    chatID,
		MessageID: view.ID,
		To:        utils.NormalizeMSISDN(phone),
		Content:   req.Content,
		SenderID:  req.SenderID,
	}
	if !ct.Publisher.Publish(queue.ExchangeApp, queue.KeyOutboundRequest, job) {
		log.Printf("[CHAT_API] Failed to enqueue outbound message %s", view.ID)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue message"})
		return
	}

	c.JSON(http.StatusCreated, view)
}
