package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/queue"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/services"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/utils"

	"github.com/streadway/amqp"
)

// InboundConsumer drains q.inbound.message: dedups provider events, persists
// chats and messages, fans socket events back out and schedules media
// downloads and customer webhook dispatch.
type InboundConsumer struct {
	Store     *services.Store
	Publisher queue.Publisher
}

func (c *InboundConsumer) Start() {
	queue.RunConsumer("INBOUND", queue.QueueInboundMessage, c.handle)
}

func (c *InboundConsumer) handle(d amqp.Delivery) {
	var job models.InboundMessageJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("[INBOUND] Malformed job, dead-lettering: %v", err)
		d.Nack(false, false)
		return
	}
	if err := job.Validate(); err != nil {
		log.Printf("[INBOUND] Invalid job, dead-lettering: %v", err)
		d.Nack(false, false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	switch job.Provider {
	case models.ProviderMeta:
		err = c.handleMeta(ctx, &job)
	case models.ProviderWaha:
		err = c.handleWaha(ctx, &job)
	}
	if err != nil {
		log.Printf("[INBOUND] Failed to process job for inbox %s: %v", job.InboxID, err)
		d.Nack(false, false)
		return
	}
	d.Ack(false)
}

func (c *InboundConsumer) handleMeta(ctx context.Context, job *models.InboundMessageJob) error {
	value := job.Value

	for _, status := range value.Statuses {
		if err := c.applyStatus(ctx, job, &status); err != nil {
			return err
		}
	}

	for _, message := range value.Messages {
		if err := c.applyMessage(ctx, job, value, &message); err != nil {
			return err
		}
	}
	return nil
}

// applyStatus processes one delivery receipt. The (inbox, event_uid) dedup
// row makes redeliveries a no-op.
func (c *InboundConsumer) applyStatus(ctx context.Context, job *models.InboundMessageJob, status *models.MetaStatus) error {
	eventUID := fmt.Sprintf("statuses:%s:%s", status.ID, status.Status)
	payload, _ := json.Marshal(status)

	isNew, err := c.Store.SaveWebhookEvent(ctx, job.InboxID, eventUID, job.Provider, payload)
	if err != nil {
		return err
	}
	if !isNew {
		log.Printf("[INBOUND] Duplicate status event %s, skipping", eventUID)
		return nil
	}

	viewStatus := models.ViewStatusFromMeta(status.Status)
	messageID, chatID, err := c.Store.UpdateMessageStatusByExternalID(ctx, status.ID, viewStatus)
	if err != nil {
		return err
	}
	if messageID == "" {
		// Receipt for a message we never sent; nothing to update.
		return nil
	}

	c.Publisher.Publish(queue.ExchangeApp, queue.KeySocketStatus, models.SocketEvent{
		Kind:       models.SocketKindStatus,
		ChatID:     chatID,
		CompanyID:  job.CompanyID,
		InboxID:    job.InboxID,
		MessageID:  messageID,
		ExternalID: status.ID,
		ViewStatus: viewStatus,
		RawStatus:  status.Status,
	})
	return nil
}

// applyMessage processes one inbound customer message end to end.
func (c *InboundConsumer) applyMessage(ctx context.Context, job *models.InboundMessageJob, value *models.MetaChangeValue, message *models.MetaMessage) error {
	eventUID := "messages:" + message.ID
	payload, _ := json.Marshal(message)

	isNew, err := c.Store.SaveWebhookEvent(ctx, job.InboxID, eventUID, job.Provider, payload)
	if err != nil {
		return err
	}
	if !isNew {
		log.Printf("[INBOUND] Duplicate message event %s, skipping", eventUID)
		return nil
	}

	phone := utils.NormalizeMSISDN(message.From)
	name := value.ContactName(message.From)
	chatID, customerID, err := c.Store.EnsureLeadCustomerChat(ctx, job.InboxID, job.CompanyID, phone, name)
	if err != nil {
		return err
	}

	body, msgType := metaMessageBody(message)
	view, err := c.Store.InsertInboundMessage(ctx, chatID, body, msgType, message.ID, customerID, metaTimestamp(message.Timestamp))
	if err != nil {
		return err
	}

	if media := message.Media(); media != nil {
		c.Publisher.Publish(queue.ExchangeApp, queue.KeyInboundMedia, models.MediaJob{
			Provider:  job.Provider,
			InboxID:   job.InboxID,
			ChatID:    chatID,
			MessageID: view.ID,
			MediaID:   media.ID,
			MimeType:  media.MimeType,
			Filename:  media.Filename,
		})
	}

	return c.finishInbound(ctx, job, chatID, view)
}

// finishInbound bumps the chat, emits the socket event and fans out to
// customer webhook subscriptions. Shared by both providers.
func (c *InboundConsumer) finishInbound(ctx context.Context, job *models.InboundMessageJob, chatID string, view *models.ChatMessageView) error {
	if err := c.Store.TouchChat(ctx, chatID, view.Body); err != nil {
		return err
	}
	summary, err := c.Store.ChatSummary(ctx, chatID)
	if err != nil {
		return err
	}

	c.Publisher.Publish(queue.ExchangeApp, queue.KeySocketInbound, models.SocketEvent{
		Kind:       models.SocketKindInbound,
		ChatID:     chatID,
		CompanyID:  job.CompanyID,
		InboxID:    job.InboxID,
		Message:    view,
		ChatUpdate: summary,
	})

	c.dispatchSubscriptions(ctx, job.CompanyID, "message.created", view)
	return nil
}

// dispatchSubscriptions fans an event out to every registered endpoint.
// Subscription failures never fail the inbound pipeline.
func (c *InboundConsumer) dispatchSubscriptions(ctx context.Context, companyID, event string, payload interface{}) {
	subs, err := c.Store.WebhookSubscriptions(ctx, companyID, event)
	if err != nil {
		log.Printf("[INBOUND] Failed to load subscriptions for company %s: %v", companyID, err)
		return
	}
	if len(subs) == 0 {
		return
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		return
	}
	for _, sub := range subs {
		c.Publisher.Publish(queue.ExchangeApp, queue.KeyWebhookDispatch, models.WebhookDispatchJob{
			SubscriptionID: sub.ID,
			CompanyID:      companyID,
			Event:          event,
			URL:            sub.URL,
			Secret:         sub.Secret,
			Payload:        encoded,
		})
	}
}

// wahaMessagePayload is the subset of the WAHA message event we consume.
type wahaMessagePayload struct {
	ID         string `json:"id"`
	From       string `json:"from"`
	FromMe     bool   `json:"fromMe"`
	Body       string `json:"body"`
	Timestamp  int64  `json:"timestamp"`
	HasMedia   bool   `json:"hasMedia"`
	NotifyName string `json:"notifyName"`
}

func (c *InboundConsumer) handleWaha(ctx context.Context, job *models.InboundMessageJob) error {
	if job.Event != "message" {
		// Session status and ack events are archived at ingestion; only
		// message events reach the chat pipeline today.
		log.Printf("[INBOUND] Ignoring WAHA event %q for inbox %s", job.Event, job.InboxID)
		return nil
	}

	var msg wahaMessagePayload
	if err := json.Unmarshal(job.Payload, &msg); err != nil {
		return fmt.Errorf("malformed WAHA message payload: %w", err)
	}
	if msg.FromMe {
		// Echo of our own outbound send.
		return nil
	}
	if msg.ID == "" {
		return fmt.Errorf("WAHA message without id")
	}

	eventUID := "messages:" + msg.ID
	isNew, err := c.Store.SaveWebhookEvent(ctx, job.InboxID, eventUID, job.Provider, job.Payload)
	if err != nil {
		return err
	}
	if !isNew {
		log.Printf("[INBOUND] Duplicate message event %s, skipping", eventUID)
		return nil
	}

	phone := utils.NormalizeMSISDN(msg.From)
	chatID, customerID, err := c.Store.EnsureLeadCustomerChat(ctx, job.InboxID, job.CompanyID, phone, msg.NotifyName)
	if err != nil {
		return err
	}

	sentAt := time.Now().UTC()
	if msg.Timestamp > 0 {
		sentAt = time.Unix(msg.Timestamp, 0).UTC()
	}

	msgType := "text"
	if msg.HasMedia {
		msgType = "media"
	}
	view, err := c.Store.InsertInboundMessage(ctx, chatID, msg.Body, msgType, msg.ID, customerID, sentAt)
	if err != nil {
		return err
	}

	return c.finishInbound(ctx, job, chatID, view)
}

// metaMessageBody returns the display body and message type for a Meta
// message. Media captions become the body until the download completes.
func metaMessageBody(message *models.MetaMessage) (string, string) {
	if message.Type == "text" && message.Text != nil {
		return message.Text.Body, "text"
	}
	if media := message.Media(); media != nil {
		return media.Caption, message.Type
	}
	return "[" + message.Type + "]", message.Type
}

// metaTimestamp parses Meta's epoch-seconds string, falling back to now.
func metaTimestamp(ts string) time.Time {
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil || secs <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(secs, 0).UTC()
}
