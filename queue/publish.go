package queue

import (
	"encoding/json"
	"log"

	"github.com/streadway/amqp"
)

// Publisher is the narrow publishing surface handed to HTTP handlers and
// consumers so tests can capture published messages.
type Publisher interface {
	Publish(exchange, routingKey string, payload interface{}) bool
	PublishWithHeaders(exchange, routingKey string, payload interface{}, headers amqp.Table) bool
}

// Broker publishes through the shared package connection.
type Broker struct{}

func (Broker) Publish(exchange, routingKey string, payload interface{}) bool {
	return Publish(exchange, routingKey, payload)
}

func (Broker) PublishWithHeaders(exchange, routingKey string, payload interface{}, headers amqp.Table) bool {
	return PublishWithHeaders(exchange, routingKey, payload, headers)
}

// Publish marshals payload to JSON and publishes it persistently.
// Returns false on any failure; callers decide whether that is fatal.
func Publish(exchange, routingKey string, payload interface{}) bool {
	return PublishWithHeaders(exchange, routingKey, payload, nil)
}

// PublishWithHeaders is Publish with explicit AMQP headers, used by the
// outbound retry path to carry the attempt counter.
func PublishWithHeaders(exchange, routingKey string, payload interface{}, headers amqp.Table) bool {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[QUEUE_PUBLISH] Failed to marshal payload for %s/%s: %v", exchange, routingKey, err)
		return false
	}
	return publishRaw(exchange, routingKey, body, headers)
}

// PublishRaw publishes a pre-marshaled body, used when forwarding a broken
// delivery to the DLQ without re-encoding it.
func PublishRaw(exchange, routingKey string, body []byte) bool {
	return publishRaw(exchange, routingKey, body, nil)
}

func publishRaw(exchange, routingKey string, body []byte, headers amqp.Table) bool {
	c, err := getConnection()
	if err != nil {
		log.Printf("[QUEUE_PUBLISH] No connection for %s/%s: %v", exchange, routingKey, err)
		return false
	}

	ch, err := c.Channel()
	if err != nil {
		log.Printf("[QUEUE_PUBLISH] Failed to create channel for %s/%s: %v", exchange, routingKey, err)
		return false
	}
	defer ch.Close()

	err = ch.Publish(
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
			Headers:      headers,
		},
	)
	if err != nil {
		log.Printf("[QUEUE_PUBLISH] Failed to publish to %s/%s: %v", exchange, routingKey, err)
		return false
	}

	log.Printf("[QUEUE_PUBLISH] Published to %s/%s (size: %d bytes)", exchange, routingKey, len(body))
	return true
}
