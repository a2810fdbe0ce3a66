package queue

import (
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/streadway/amqp"
)

var (
	connMutex sync.RWMutex
	conn      *amqp.Connection

	brokerURL string
	prefetch  = 20

	// Topology declaration control
	topologyMutex    sync.Mutex
	topologyDeclared bool

	closedMutex sync.Mutex
	closed      bool
)

// Init dials RabbitMQ and declares the full topology. It retries until the
// broker is reachable or maxAttempts is exhausted.
func Init(url string, prefetchCount int, maxAttempts int) error {
	brokerURL = url
	if prefetchCount > 0 {
		prefetch = prefetchCount
	}

	backoff := time.Second
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := connect(); err != nil {
			log.Printf("[RABBITMQ] Connection attempt %d/%d failed: %v. Retrying in %s...", attempt, maxAttempts, err, backoff)
			time.Sleep(backoff)
			backoff *= 2
			if backoff > 10*time.Second {
				backoff = 10 * time.Second
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("could not connect to RabbitMQ after %d attempts", maxAttempts)
}

// connect establishes a new connection and declares topology once.
func connect() error {
	url := brokerURL
	if !strings.Contains(url, "heartbeat=") {
		if strings.Contains(url, "?") {
			url += "&heartbeat=30"
		} else {
			url += "?heartbeat=30"
		}
	}

	c, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := c.Channel()
	if err != nil {
		c.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	topologyMutex.Lock()
	if !topologyDeclared {
		if err := declareTopology(ch); err != nil {
			topologyMutex.Unlock()
			ch.Close()
			c.Close()
			return fmt.Errorf("failed to declare topology: %w", err)
		}
		topologyDeclared = true
		log.Println("[RABBITMQ] Topology declared successfully")
	}
	topologyMutex.Unlock()
	ch.Close()

	// Invalidate the cached connection when the broker drops us.
	closeChan := make(chan *amqp.Error, 1)
	c.NotifyClose(closeChan)
	go func() {
		err := <-closeChan
		if err != nil {
			log.Printf("[RABBITMQ] Connection closed: %v", err)
		}
		connMutex.Lock()
		if conn == c {
			conn = nil
		}
		connMutex.Unlock()
	}()

	connMutex.Lock()
	conn = c
	connMutex.Unlock()

	log.Println("[RABBITMQ] Connection established")
	return nil
}

// getConnection returns the shared connection, reconnecting if needed.
func getConnection() (*amqp.Connection, error) {
	connMutex.RLock()
	c := conn
	connMutex.RUnlock()

	if c != nil && !c.IsClosed() {
		return c, nil
	}

	if err := connect(); err != nil {
		return nil, err
	}

	connMutex.RLock()
	defer connMutex.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("RabbitMQ connection unavailable")
	}
	return conn, nil
}

// Close shuts the shared connection down. Consumers stop on their own once
// their channels close.
func Close() {
	closedMutex.Lock()
	closed = true
	closedMutex.Unlock()

	connMutex.Lock()
	defer connMutex.Unlock()
	if conn != nil {
		if err := conn.Close(); err != nil {
			log.Printf("[RABBITMQ] Error closing connection: %v", err)
		}
		conn = nil
	}

	topologyMutex.Lock()
	topologyDeclared = false
	topologyMutex.Unlock()

	log.Println("[RABBITMQ] Connection closed")
}

func isShuttingDown() bool {
	closedMutex.Lock()
	defer closedMutex.Unlock()
	return closed
}

// RunConsumer is a long-running loop that consumes queueName on a dedicated
// channel and invokes handler for each delivery. The handler owns ack/nack.
// On any channel or connection failure the loop rebuilds and resumes.
func RunConsumer(name, queueName string, handler func(amqp.Delivery)) {
	for {
		if isShuttingDown() {
			log.Printf("[%s] Shutting down consumer for %s", name, queueName)
			return
		}

		c, err := getConnection()
		if err != nil {
			log.Printf("[%s] Failed to get connection: %v. Retrying in 5s...", name, err)
			time.Sleep(5 * time.Second)
			continue
		}

		ch, err := c.Channel()
		if err != nil {
			log.Printf("[%s] Failed to create channel: %v. Retrying in 5s...", name, err)
			time.Sleep(5 * time.Second)
			continue
		}

		if err := ch.Qos(prefetch, 0, false); err != nil {
			log.Printf("[%s] Failed to set prefetch: %v. Retrying in 5s...", name, err)
			ch.Close()
			time.Sleep(5 * time.Second)
			continue
		}

		deliveries, err := ch.Consume(queueName, "", false, false, false, false, nil)
		if err != nil {
			log.Printf("[%s] Failed to start consuming %s: %v. Retrying in 5s...", name, queueName, err)
			ch.Close()
			time.Sleep(5 * time.Second)
			continue
		}

		log.Printf("[%s] Consuming from %s (prefetch: %d)", name, queueName, prefetch)

		for d := range deliveries {
			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("[%s] PANIC recovered while handling delivery: %v", name, r)
						d.Nack(false, false)
					}
				}()
				handler(d)
			}()
		}

		ch.Close()
		if isShuttingDown() {
			log.Printf("[%s] Shutting down consumer for %s", name, queueName)
			return
		}
		log.Printf("[%s] Delivery channel closed for %s. Restarting in 5s...", name, queueName)
		time.Sleep(5 * time.Second)
	}
}

// Inspect returns queue depth and consumer count for the given queue.
func Inspect(queueName string) (amqp.Queue, error) {
	c, err := getConnection()
	if err != nil {
		return amqp.Queue{}, err
	}
	ch, err := c.Channel()
	if err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to create channel: %w", err)
	}
	defer ch.Close()
	return ch.QueueInspect(queueName)
}
