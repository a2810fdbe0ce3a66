package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/queue"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/services"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/utils"

	"github.com/streadway/amqp"
)

var errPublishFailed = errors.New("failed to publish outbound job")

// CampaignFollowupConsumer drains campaign.followup. Each job materializes a
// pending outbound message in the target conversation and hands delivery to
// the regular outbound pipeline, so followups share its retry semantics.
type CampaignFollowupConsumer struct {
	Store     *services.Store
	Publisher queue.Publisher
}

func (c *CampaignFollowupConsumer) Start() {
	queue.RunConsumer("CAMPAIGN_FOLLOWUP", queue.QueueCampaignFollowup, c.handle)
}

func (c *CampaignFollowupConsumer) handle(d amqp.Delivery) {
	var job models.CampaignFollowupJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("[CAMPAIGN_FOLLOWUP] Malformed job, dead-lettering: %v", err)
		d.Nack(false, false)
		return
	}
	if err := job.Validate(); err != nil {
		log.Printf("[CAMPAIGN_FOLLOWUP] Invalid job for campaign %s, dead-lettering: %v", job.CampaignID, err)
		d.Nack(false, false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := c.process(ctx, &job); err != nil {
		log.Printf("[CAMPAIGN_FOLLOWUP] Failed to process campaign %s: %v", job.CampaignID, err)
		d.Nack(false, false)
		return
	}
	d.Ack(false)
}

func (c *CampaignFollowupConsumer) process(ctx context.Context, job *models.CampaignFollowupJob) error {
	phone := utils.NormalizeMSISDN(job.To)

	chatID := job.ChatID
	customerID := job.CustomerID
	if chatID == "" {
		var err error
		chatID, customerID, err = c.Store.EnsureLeadCustomerChat(ctx, job.InboxID, job.CompanyID, phone, "")
		if err != nil {
			return err
		}
	}

	msg, err := c.Store.InsertOutboundMessage(ctx, chatID, job.Body, "TEXT", job.SenderID, false)
	if err != nil {
		return err
	}

	outbound := models.OutboundRequestJob{
		JobType:    models.JobTypeText,
		Provider:   models.ProviderMeta,
		InboxID:    job.InboxID,
		ChatID:     chatID,
		CustomerID: customerID,
		MessageID:  msg.ID,
		To:         phone,
		Content:    job.Body,
		SenderID:   job.SenderID,
	}
	if !c.Publisher.Publish(queue.ExchangeApp, queue.KeyOutboundRequest, outbound) {
		// The message row stays PENDING; redelivery will insert a fresh one,
		// so surface the failure instead of acking.
		return errPublishFailed
	}

	log.Printf("[CAMPAIGN_FOLLOWUP] Queued followup for campaign %s (chat %s)", job.CampaignID, chatID)
	return nil
}
