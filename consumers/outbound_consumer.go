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

	"github.com/streadway/amqp"
)

// OutboundConsumer drains q.outbound.request and delivers messages through
// the provider APIs. Transient failures bounce through the 10s retry queue
// with an attempt header; permanent failures and exhausted retries land in
// the DLQ.
type OutboundConsumer struct {
	Store       *services.Store
	Publisher   queue.Publisher
	Meta        *services.MetaClient
	Waha        *services.WahaClient
	MaxAttempts int
}

func (c *OutboundConsumer) Start() {
	queue.RunConsumer("OUTBOUND", queue.QueueOutboundRequest, c.handle)
}

func (c *OutboundConsumer) handle(d amqp.Delivery) {
	var job models.OutboundRequestJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		// Unparseable jobs go straight to the DLQ; requeueing would loop.
		log.Printf("[OUTBOUND] Malformed job, dead-lettering: %v", err)
		queue.PublishRaw(queue.ExchangeDLX, queue.KeyOutboundDLQ, d.Body)
		d.Ack(false)
		return
	}
	if err := job.Validate(); err != nil {
		log.Printf("[OUTBOUND] Invalid job %s, dead-lettering: %v", job.MessageID, err)
		queue.PublishRaw(queue.ExchangeDLX, queue.KeyOutboundDLQ, d.Body)
		d.Ack(false)
		return
	}

	// The header wins over the body: republished retries carry the header
	// even when an older producer forgot to bump the body counter.
	attempt := job.Attempt
	if h := attemptFromHeaders(d.Headers); h > attempt {
		attempt = h
	}

	ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
	defer cancel()

	externalID, err := c.deliver(ctx, &job)
	if err == nil {
		if err := c.Store.MarkMessageSent(ctx, job.MessageID, externalID); err != nil {
			log.Printf("[OUTBOUND] Sent %s but failed to record it: %v", job.MessageID, err)
		}
		c.emitStatus(&job, externalID, models.StatusSent)
		log.Printf("[OUTBOUND] Delivered message %s (attempt %d)", job.MessageID, attempt+1)
		d.Ack(false)
		return
	}

	next := attempt + 1
	if isRetryable(err) && next <= c.MaxAttempts {
		job.Attempt = next
		log.Printf("[OUTBOUND] Delivery failed for %s (attempt %d/%d), scheduling retry: %v",
			job.MessageID, next, c.MaxAttempts, err)
		if !c.Publisher.PublishWithHeaders(queue.ExchangeDLX, queue.KeyOutboundRetry, job, amqp.Table{"attempt": int32(next)}) {
			// Could not park the retry; put the delivery back instead.
			d.Nack(false, true)
			return
		}
		d.Ack(false)
		return
	}

	log.Printf("[OUTBOUND] Delivery failed permanently for %s after %d attempt(s): %v", job.MessageID, next, err)
	if err := c.Store.MarkMessageFailed(ctx, job.MessageID); err != nil {
		log.Printf("[OUTBOUND] Failed to mark message %s failed: %v", job.MessageID, err)
	}
	c.emitStatus(&job, "", models.StatusFailed)
	c.Publisher.Publish(queue.ExchangeDLX, queue.KeyOutboundDLQ, job)
	d.Ack(false)
}

func (c *OutboundConsumer) deliver(ctx context.Context, job *models.OutboundRequestJob) (string, error) {
	creds, err := c.Store.GetInboxCreds(ctx, job.InboxID)
	if err != nil {
		// Store hiccups are retryable: the broker parks the job for 10s.
		return "", &services.ProviderError{Provider: job.Provider, StatusCode: 500, Body: err.Error()}
	}
	if creds == nil {
		return "", errors.New("inbox not found: " + job.InboxID)
	}

	switch job.Provider {
	case models.ProviderWaha:
		return c.Waha.SendText(ctx, creds, job.To+"@c.us", job.Content)
	default:
		if job.JobType == models.JobTypeMedia {
			return c.Meta.SendMedia(ctx, creds, job.To, job.MediaType, job.StorageKey, job.Caption, job.Filename)
		}
		return c.Meta.SendText(ctx, creds, job.To, job.Content)
	}
}

func (c *OutboundConsumer) emitStatus(job *models.OutboundRequestJob, externalID, viewStatus string) {
	c.Publisher.Publish(queue.ExchangeApp, queue.KeySocketStatus, models.SocketEvent{
		Kind:       models.SocketKindStatus,
		ChatID:     job.ChatID,
		InboxID:    job.InboxID,
		MessageID:  job.MessageID,
		ExternalID: externalID,
		ViewStatus: viewStatus,
	})
}

// isRetryable treats provider 5xx and 429 as transient; everything else is
// permanent.
func isRetryable(err error) bool {
	var pe *services.ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	return false
}

// attemptFromHeaders reads the attempt counter the retry path stamps on
// republished jobs. AMQP clients deliver it as varying integer widths.
func attemptFromHeaders(headers amqp.Table) int {
	v, ok := headers["attempt"]
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case int:
		return n
	case int8:
		return int(n)
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
