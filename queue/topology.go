package queue

import (
	"github.com/streadway/amqp"
)

// Exchange names. All three are durable topic exchanges.
const (
	ExchangeApp  = "livechat.app"  // application events (outbound, media, sockets, dispatch)
	ExchangeMeta = "livechat.meta" // provider webhook ingestion
	ExchangeDLX  = "livechat.dlx"  // dead letters and retry staging
)

// Queue names.
const (
	QueueInboundMessage   = "q.inbound.message"
	QueueInboundMedia     = "q.inbound.media"
	QueueOutboundRequest  = "q.outbound.request"
	QueueOutboundRetry    = "q.outbound.retry.10s"
	QueueOutboundDLQ      = "q.outbound.dlq"
	QueueSocketLivechat   = "q.socket.livechat"
	QueueCampaignFollowup = "campaign.followup"
	QueueFlowExecution    = "flow.execution"
	QueueWebhookDispatch  = "q.webhook.dispatch"
)

// Routing keys.
const (
	KeyInboundMessage   = "inbound.message"
	KeyInboundMedia     = "inbound.media"
	KeyOutboundRequest  = "outbound.request"
	KeyOutboundRetry    = "outbound.retry"
	KeyOutboundDLQ      = "outbound.dlq"
	KeySocketInbound    = "socket.livechat.inbound"
	KeySocketOutbound   = "socket.livechat.outbound"
	KeySocketStatus     = "socket.livechat.status"
	KeySocketPattern    = "socket.livechat.*"
	KeyCampaignFollowup = "campaign.followup"
	KeyFlowExecution    = "flow.execution"
	KeyWebhookDispatch  = "webhook.dispatch"
)

// Retry queue holds expired messages for this long before routing them back
// into the outbound queue through the app exchange.
const outboundRetryTTLMs = 10000

// ConsumerQueues lists every queue a worker process may consume from,
// used by the infra status endpoint to inspect depths.
var ConsumerQueues = []string{
	QueueInboundMessage,
	QueueInboundMedia,
	QueueOutboundRequest,
	QueueOutboundRetry,
	QueueOutboundDLQ,
	QueueSocketLivechat,
	QueueCampaignFollowup,
	QueueFlowExecution,
	QueueWebhookDispatch,
}

// declareTopology sets up all exchanges, queues and bindings.
// Declarations are idempotent as long as arguments never change.
func declareTopology(ch *amqp.Channel) error {
	for _, ex := range []string{ExchangeApp, ExchangeMeta, ExchangeDLX} {
		if err := ch.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			return err
		}
	}

	// Every work queue dead-letters into the DLX so poison messages are
	// never silently dropped.
	dlxArgs := amqp.Table{"x-dead-letter-exchange": ExchangeDLX}

	if _, err := ch.QueueDeclare(QueueInboundMessage, true, false, false, false, dlxArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueInboundMessage, KeyInboundMessage, ExchangeMeta, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(QueueInboundMedia, true, false, false, false, dlxArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueInboundMedia, KeyInboundMedia, ExchangeApp, false, nil); err != nil {
		return err
	}

	// Outbound queue: failed sends are dead-lettered with the retry key so
	// they land in the 10s parking queue below.
	outboundArgs := amqp.Table{
		"x-dead-letter-exchange":    ExchangeDLX,
		"x-dead-letter-routing-key": KeyOutboundRetry,
	}
	if _, err := ch.QueueDeclare(QueueOutboundRequest, true, false, false, false, outboundArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueOutboundRequest, KeyOutboundRequest, ExchangeApp, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueOutboundRequest, KeyOutboundRetry, ExchangeApp, false, nil); err != nil {
		return err
	}

	// Parking queue: no consumers. Messages expire after 10s and are routed
	// back to the app exchange where the outbound.retry binding picks them up.
	retryArgs := amqp.Table{
		"x-message-ttl":          int32(outboundRetryTTLMs),
		"x-dead-letter-exchange": ExchangeApp,
	}
	if _, err := ch.QueueDeclare(QueueOutboundRetry, true, false, false, false, retryArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueOutboundRetry, KeyOutboundRetry, ExchangeDLX, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(QueueOutboundDLQ, true, false, false, false, nil); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueOutboundDLQ, KeyOutboundDLQ, ExchangeDLX, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(QueueSocketLivechat, true, false, false, false, dlxArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueSocketLivechat, KeySocketPattern, ExchangeApp, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(QueueCampaignFollowup, true, false, false, false, dlxArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueCampaignFollowup, KeyCampaignFollowup, ExchangeApp, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(QueueFlowExecution, true, false, false, false, dlxArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueFlowExecution, KeyFlowExecution, ExchangeApp, false, nil); err != nil {
		return err
	}

	if _, err := ch.QueueDeclare(QueueWebhookDispatch, true, false, false, false, dlxArgs); err != nil {
		return err
	}
	if err := ch.QueueBind(QueueWebhookDispatch, KeyWebhookDispatch, ExchangeApp, false, nil); err != nil {
		return err
	}

	return nil
}
