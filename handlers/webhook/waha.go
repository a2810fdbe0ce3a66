package webhook

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/queue"

	"github.com/gin-gonic/gin"
)

// wahaEnvelope is the outer shape every WAHA event shares.
type wahaEnvelope struct {
	Event   string          `json:"event"`
	Session string          `json:"session"`
	Payload json.RawMessage `json:"payload"`
}

// WahaReceive ingests WAHA webhook events. The session name in the URL
// identifies the inbox; unknown sessions are acknowledged and dropped so a
// stale WAHA server cannot force retries forever.
func (h *Handler) WahaReceive(c *gin.Context) {
	session := c.Param("session")

	if h.WahaWebhookKey != "" && c.GetHeader("X-Api-Key") != h.WahaWebhookKey {
		log.Printf("[WAHA_WEBHOOK] Rejected event for session %s: bad API key", session)
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid api key"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to read body"})
		return
	}
	LogWebhookReceived("WAHA", len(body))

	var envelope wahaEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		log.Printf("[WAHA_WEBHOOK] Malformed payload for session %s: %v", session, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}
	if envelope.Session != "" {
		session = envelope.Session
	}

	inbox, err := h.Inboxes.BySession(c.Request.Context(), session)
	if err != nil {
		log.Printf("[WAHA_WEBHOOK] Inbox lookup failed for session %s: %v", session, err)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}
	if inbox == nil {
		log.Printf("[WAHA_WEBHOOK] No inbox for session %s, dropping event %s", session, envelope.Event)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	receivedAt := time.Now().UTC()
	job := models.InboundMessageJob{
		Provider:   models.ProviderWaha,
		InboxID:    inbox.ID,
		CompanyID:  inbox.CompanyID,
		Event:      envelope.Event,
		Session:    session,
		Payload:    envelope.Payload,
		ReceivedAt: receivedAt,
	}
	if !h.Publisher.Publish(queue.ExchangeMeta, queue.KeyInboundMessage, job) {
		log.Printf("[WAHA_WEBHOOK] Failed to publish event %s for inbox %s", envelope.Event, inbox.ID)
	}

	h.Audit.Record(models.WebhookEventLog{
		EventUID:   "waha:" + envelope.Event + ":" + receivedAt.Format(time.RFC3339Nano),
		InboxID:    inbox.ID,
		CompanyID:  inbox.CompanyID,
		Provider:   models.ProviderWaha,
		Payload:    string(body),
		ReceivedAt: receivedAt,
	})

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
