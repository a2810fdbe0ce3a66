package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message providers.
const (
	ProviderMeta = "META"
	ProviderWaha = "WAHA"
)

// Outbound job types.
const (
	JobTypeText  = "text"
	JobTypeMedia = "media"
)

// InboundMessageJob is the envelope published for every provider webhook
// change. For META the raw change value rides along; for WAHA the event
// payload does.
type InboundMessageJob struct {
	Provider   string           `json:"provider"`
	InboxID    string           `json:"inboxId"`
	CompanyID  string           `json:"companyId"`
	Value      *MetaChangeValue `json:"value,omitempty"`
	Event      string           `json:"event,omitempty"`
	Session    string           `json:"session,omitempty"`
	Payload    json.RawMessage  `json:"payload,omitempty"`
	ReceivedAt time.Time        `json:"receivedAt"`
}

func (j *InboundMessageJob) Validate() error {
	if j.InboxID == "" {
		return fmt.Errorf("inboxId is required")
	}
	switch j.Provider {
	case ProviderMeta:
		if j.Value == nil {
			return fmt.Errorf("value is required for META jobs")
		}
	case ProviderWaha:
		if len(j.Payload) == 0 {
			return fmt.Errorf("payload is required for WAHA jobs")
		}
	default:
		return fmt.Errorf("unknown provider: %q", j.Provider)
	}
	return nil
}

// OutboundRequestJob asks a worker to deliver one message through the
// provider API. Attempt counts delivery tries; it also travels as an AMQP
// header so retries survive re-publication.
type OutboundRequestJob struct {
	JobType    string `json:"jobType"`
	Provider   string `json:"provider"`
	InboxID    string `json:"inboxId"`
	ChatID     string `json:"chatId"`
	CustomerID string `json:"customerId,omitempty"`
	MessageID  string `json:"messageId"`
	To         string `json:"to"`
	Content    string `json:"content,omitempty"`
	Caption    string `json:"caption,omitempty"`
	MediaType  string `json:"mediaType,omitempty"`
	StorageKey string `json:"storageKey,omitempty"`
	MimeType   string `json:"mimeType,omitempty"`
	Filename   string `json:"filename,omitempty"`
	SenderID   string `json:"senderId,omitempty"`
	Attempt    int    `json:"attempt,omitempty"`
}

func (j *OutboundRequestJob) Validate() error {
	if j.InboxID == "" || j.ChatID == "" || j.MessageID == "" {
		return fmt.Errorf("inboxId, chatId and messageId are required")
	}
	if j.To == "" {
		return fmt.Errorf("to is required")
	}
	switch j.JobType {
	case JobTypeText:
		if j.Content == "" {
			return fmt.Errorf("content is required for text jobs")
		}
	case JobTypeMedia:
		if j.StorageKey == "" {
			return fmt.Errorf("storageKey is required for media jobs")
		}
	default:
		return fmt.Errorf("unknown jobType: %q", j.JobType)
	}
	return nil
}

// MediaJob downloads one inbound attachment and backfills the message row.
type MediaJob struct {
	Provider  string `json:"provider"`
	InboxID   string `json:"inboxId"`
	ChatID    string `json:"chatId"`
	MessageID string `json:"messageId"`
	MediaID   string `json:"mediaId"`
	MimeType  string `json:"mimeType,omitempty"`
	Filename  string `json:"filename,omitempty"`
}

func (j *MediaJob) Validate() error {
	if j.InboxID == "" || j.MessageID == "" || j.MediaID == "" {
		return fmt.Errorf("inboxId, messageId and mediaId are required")
	}
	return nil
}

// WebhookDispatchJob forwards an application event to one customer endpoint.
type WebhookDispatchJob struct {
	SubscriptionID string          `json:"subscriptionId"`
	CompanyID      string          `json:"companyId"`
	Event          string          `json:"event"`
	URL            string          `json:"url"`
	Secret         string          `json:"secret,omitempty"`
	Payload        json.RawMessage `json:"payload"`
	Attempt        int             `json:"attempt,omitempty"`
}

func (j *WebhookDispatchJob) Validate() error {
	if j.URL == "" {
		return fmt.Errorf("url is required")
	}
	if j.Event == "" {
		return fmt.Errorf("event is required")
	}
	if len(j.Payload) == 0 {
		return fmt.Errorf("payload is required")
	}
	return nil
}

// CampaignFollowupJob sends a scheduled followup message into an existing
// conversation, reusing the outbound pipeline for the actual delivery.
type CampaignFollowupJob struct {
	CampaignID string `json:"campaignId"`
	CompanyID  string `json:"companyId"`
	InboxID    string `json:"inboxId"`
	ChatID     string `json:"chatId,omitempty"`
	CustomerID string `json:"customerId,omitempty"`
	To         string `json:"to"`
	Body       string `json:"body"`
	SenderID   string `json:"senderId,omitempty"`
}

func (j *CampaignFollowupJob) Validate() error {
	if j.CampaignID == "" || j.InboxID == "" {
		return fmt.Errorf("campaignId and inboxId are required")
	}
	if j.To == "" || j.Body == "" {
		return fmt.Errorf("to and body are required")
	}
	return nil
}
