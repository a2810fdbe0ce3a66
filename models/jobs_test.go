package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInboundMessageJobValidate(t *testing.T) {
	metaJob := InboundMessageJob{
		Provider: ProviderMeta,
		InboxID:  "ib1",
		Value:    &MetaChangeValue{},
	}
	require.NoError(t, metaJob.Validate())

	metaJob.Value = nil
	require.Error(t, metaJob.Validate())

	wahaJob := InboundMessageJob{
		Provider: ProviderWaha,
		InboxID:  "ib1",
		Payload:  json.RawMessage(`{"id":"x"}`),
	}
	require.NoError(t, wahaJob.Validate())

	wahaJob.Payload = nil
	require.Error(t, wahaJob.Validate())

	require.Error(t, (&InboundMessageJob{Provider: ProviderMeta, Value: &MetaChangeValue{}}).Validate())
	require.Error(t, (&InboundMessageJob{Provider: "SMS", InboxID: "ib1"}).Validate())
}

func TestOutboundRequestJobValidate(t *testing.T) {
	job := OutboundRequestJob{
		JobType:   JobTypeText,
		InboxID:   "ib1",
		ChatID:    "c1",
		MessageID: "m1",
		To:        "5511999990000",
		Content:   "hello",
	}
	require.NoError(t, job.Validate())

	noContent := job
	noContent.Content = ""
	require.Error(t, noContent.Validate())

	media := job
	media.JobType = JobTypeMedia
	media.Content = ""
	media.StorageKey = "https://cdn.example.com/f.jpg"
	require.NoError(t, media.Validate())

	media.StorageKey = ""
	require.Error(t, media.Validate())

	noTarget := job
	noTarget.To = ""
	require.Error(t, noTarget.Validate())

	badType := job
	badType.JobType = "carrier-pigeon"
	require.Error(t, badType.Validate())
}

func TestWebhookDispatchJobValidate(t *testing.T) {
	job := WebhookDispatchJob{
		SubscriptionID: "s1",
		CompanyID:      "co1",
		Event:          "message.created",
		URL:            "https://example.com/hook",
		Payload:        json.RawMessage(`{}`),
	}
	require.NoError(t, job.Validate())

	noURL := job
	noURL.URL = ""
	require.Error(t, noURL.Validate())
}

func TestViewStatusFromMeta(t *testing.T) {
	require.Equal(t, StatusSent, ViewStatusFromMeta("sent"))
	require.Equal(t, StatusDelivered, ViewStatusFromMeta("delivered"))
	require.Equal(t, StatusRead, ViewStatusFromMeta("read"))
	require.Equal(t, StatusFailed, ViewStatusFromMeta("failed"))

	// Unknown provider statuses degrade to SENT rather than erroring.
	require.Equal(t, StatusSent, ViewStatusFromMeta("warehouse_ack"))
}
