package socket

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/queue"

	"github.com/streadway/amqp"
)

// Emitter is what the relay needs from the hub.
type Emitter interface {
	Emit(room, event string, payload interface{}) int
}

// Relay bridges broker-side socket events into hub rooms. One relay per
// process; all consumers publish through the broker so every API node
// replays the same stream.
type Relay struct {
	Hub Emitter
}

func NewRelay(hub Emitter) *Relay {
	return &Relay{Hub: hub}
}

func (r *Relay) Start() {
	queue.RunConsumer("SOCKET_RELAY", queue.QueueSocketLivechat, r.handle)
}

func (r *Relay) handle(d amqp.Delivery) {
	if err := r.HandleEvent(d.Body); err != nil {
		log.Printf("[SOCKET_RELAY] Dropping event: %v", err)
		d.Nack(false, false)
		return
	}
	d.Ack(false)
}

// HandleEvent routes one broker event to its rooms. Chat-level payloads go
// to the chat room; summaries go only to the owning company room so tenants
// never see each other's traffic.
func (r *Relay) HandleEvent(body []byte) error {
	var ev models.SocketEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("malformed socket event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return err
	}

	switch ev.Kind {
	case models.SocketKindInbound, models.SocketKindOutbound:
		room := "chat:" + ev.ChatID
		r.Hub.Emit(room, "message:new", ev.Message)
		if ev.Kind == models.SocketKindInbound {
			r.Hub.Emit(room, "message:inbound", ev.Message)
		} else {
			r.Hub.Emit(room, "message:outbound", ev.Message)
		}
		if ev.ChatUpdate != nil {
			if ev.CompanyID == "" {
				log.Printf("[SOCKET_RELAY] Skipping chat:updated for chat %s: no company id", ev.ChatID)
			} else {
				r.Hub.Emit("company:"+ev.CompanyID, "chat:updated", ev.ChatUpdate)
			}
		}
	case models.SocketKindStatus:
		r.Hub.Emit("chat:"+ev.ChatID, "message:status", map[string]interface{}{
			"chatId":      ev.ChatID,
			"messageId":   ev.MessageID,
			"externalId":  ev.ExternalID,
			"view_status": ev.ViewStatus,
			"raw_status":  ev.RawStatus,
		})
	case models.SocketKindNotification:
		r.Hub.Emit("user:"+ev.UserID, "notification", json.RawMessage(ev.Notification))
	default:
		return fmt.Errorf("unknown socket event kind %q", ev.Kind)
	}
	return nil
}
