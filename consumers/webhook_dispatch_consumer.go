package consumers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/queue"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/utils"

	"github.com/streadway/amqp"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	DispatchMaxAttempts           = 3
	DispatchTimeout               = 15 * time.Second
	MaxResponseBodyBytes          = 10 * 1024 // 10KB
	CircuitBreakerThreshold       = 10
	CircuitBreakerTimeout         = 5 * time.Minute
	DispatchWorkerPoolSize        = 100
	dispatchRetryDelay            = 3 * time.Second
	deliveryLogCollection         = "webhook_delivery_logs"
)

// =============================================================================
// Shared HTTP client — created once, reused across all workers.
// A new Transport per request destroys connection pooling.
// =============================================================================
var sharedHTTPClient = &http.Client{
	Timeout: DispatchTimeout,
	Transport: &http.Transport{
		MaxIdleConns:        500,
		MaxIdleConnsPerHost: 50,
		IdleConnTimeout:     90 * time.Second,
	},
}

// =============================================================================
// Circuit breaker — per endpoint URL so one bad endpoint doesn't block others.
// =============================================================================
type dispatchCircuitBreaker struct {
	mu           sync.Mutex
	failures     int
	lastFailTime time.Time
	state        int // 0=closed 1=open 2=half-open
}

func (cb *dispatchCircuitBreaker) canCall() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case 0:
		return true
	case 1:
		if time.Since(cb.lastFailTime) > CircuitBreakerTimeout {
			cb.state = 2
			return true
		}
		return false
	case 2:
		return true
	}
	return false
}

func (cb *dispatchCircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.state = 0
}

func (cb *dispatchCircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures++
	cb.lastFailTime = time.Now()
	if cb.failures >= CircuitBreakerThreshold {
		cb.state = 1
		log.Printf("[WEBHOOK_DISPATCH] Circuit breaker opened for endpoint after %d failures", cb.failures)
	}
}

var (
	circuitBreakersMu sync.RWMutex
	circuitBreakers   = make(map[string]*dispatchCircuitBreaker)
)

func getCircuitBreaker(url string) *dispatchCircuitBreaker {
	circuitBreakersMu.RLock()
	cb, ok := circuitBreakers[url]
	circuitBreakersMu.RUnlock()
	if ok {
		return cb
	}
	circuitBreakersMu.Lock()
	defer circuitBreakersMu.Unlock()
	if cb, ok = circuitBreakers[url]; ok {
		return cb
	}
	cb = &dispatchCircuitBreaker{}
	circuitBreakers[url] = cb
	return cb
}

// =============================================================================
// Async delivery log queue — batches MongoDB writes off the hot path.
// Workers push a log entry and immediately ack/nack the AMQP delivery.
// =============================================================================
var deliveryLogCh = make(chan bson.M, 10000)

func init() {
	for i := 0; i < 4; i++ {
		go deliveryLogWorker()
	}
}

func deliveryLogWorker() {
	for doc := range deliveryLogCh {
		coll := utils.GetCollection(deliveryLogCollection)
		if coll == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := coll.InsertOne(ctx, doc)
		cancel()
		if err != nil {
			log.Printf("[WEBHOOK_DISPATCH] Async delivery log write failed: %v", err)
		}
	}
}

// pushDeliveryLog enqueues a non-blocking log write. Drops if the queue is
// full to avoid blocking the delivery goroutine.
func pushDeliveryLog(doc bson.M) {
	select {
	case deliveryLogCh <- doc:
	default:
		log.Printf("[WEBHOOK_DISPATCH] Delivery log queue full, dropping entry")
	}
}

// WebhookDispatchConsumer drains q.webhook.dispatch and POSTs application
// events to customer endpoints, signed with the subscription secret.
type WebhookDispatchConsumer struct {
	Publisher queue.Publisher

	sem chan struct{}
}

func NewWebhookDispatchConsumer(publisher queue.Publisher) *WebhookDispatchConsumer {
	return &WebhookDispatchConsumer{
		Publisher: publisher,
		sem:       make(chan struct{}, DispatchWorkerPoolSize),
	}
}

func (c *WebhookDispatchConsumer) Start() {
	queue.RunConsumer("WEBHOOK_DISPATCH", queue.QueueWebhookDispatch, c.handle)
}

func (c *WebhookDispatchConsumer) handle(d amqp.Delivery) {
	// Check the circuit breaker before committing a pool slot. Peek at the
	// URL only; the full unmarshal happens in the worker.
	cb := getCircuitBreaker(peekDispatchURL(d.Body))
	if !cb.canCall() {
		d.Nack(false, true)
		time.Sleep(time.Second)
		return
	}

	// Acquire a slot from the pool (blocks if all workers are busy).
	c.sem <- struct{}{}
	go func() {
		defer func() { <-c.sem }()
		c.process(d)
	}()
}

// peekDispatchURL does a minimal JSON parse to extract only the url field,
// avoiding a full Unmarshal just for the circuit breaker check.
func peekDispatchURL(body []byte) string {
	var peek struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &peek); err == nil {
		return peek.URL
	}
	return ""
}

func (c *WebhookDispatchConsumer) process(d amqp.Delivery) {
	var job models.WebhookDispatchJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("[WEBHOOK_DISPATCH] Malformed job, dead-lettering: %v", err)
		d.Nack(false, false)
		return
	}
	if err := job.Validate(); err != nil {
		log.Printf("[WEBHOOK_DISPATCH] Invalid job for subscription %s, dead-lettering: %v", job.SubscriptionID, err)
		d.Nack(false, false)
		return
	}

	startTime := time.Now()
	success, statusCode, errorMsg := c.deliver(&job)
	duration := time.Since(startTime)

	cb := getCircuitBreaker(job.URL)

	status := "SUCCESS"
	if !success {
		status = "FAILED"
	}
	pushDeliveryLog(bson.M{
		"subscription_id": job.SubscriptionID,
		"company_id":      job.CompanyID,
		"event":           job.Event,
		"url":             job.URL,
		"status":          status,
		"status_code":     statusCode,
		"error_message":   errorMsg,
		"attempt":         job.Attempt + 1,
		"duration_ms":     duration.Milliseconds(),
		"created_at":      time.Now().UTC(),
	})

	if success {
		cb.recordSuccess()
		d.Ack(false)
		log.Printf("[WEBHOOK_DISPATCH] Delivered %s to subscription %s (status=%d, duration=%v)",
			job.Event, job.SubscriptionID, statusCode, duration)
		return
	}

	// 4xx (except 408/429) is the endpoint telling us no; retrying won't
	// change its mind.
	permanent := statusCode >= 400 && statusCode < 500 && statusCode != http.StatusRequestTimeout && statusCode != http.StatusTooManyRequests
	isRateLimit := statusCode == http.StatusTooManyRequests
	if !isRateLimit && !permanent {
		cb.recordFailure()
	}

	job.Attempt++
	if permanent || job.Attempt >= DispatchMaxAttempts {
		log.Printf("[WEBHOOK_DISPATCH] Giving up on subscription %s after %d attempt(s): %s",
			job.SubscriptionID, job.Attempt, errorMsg)
		d.Nack(false, false)
		return
	}

	// Short in-flight delay, then republish with the bumped counter. The
	// pool slot is held for the delay, which also throttles a flapping
	// endpoint.
	log.Printf("[WEBHOOK_DISPATCH] Delivery failed (attempt %d/%d), retrying in %s: %s",
		job.Attempt, DispatchMaxAttempts, dispatchRetryDelay, errorMsg)
	time.Sleep(dispatchRetryDelay)
	if !c.Publisher.Publish(queue.ExchangeApp, queue.KeyWebhookDispatch, job) {
		d.Nack(false, true)
		return
	}
	d.Ack(false)
}

// deliver POSTs the event. Returns success, HTTP status and an error string.
func (c *WebhookDispatchConsumer) deliver(job *models.WebhookDispatchJob) (bool, int, string) {
	envelope := map[string]interface{}{
		"event":     job.Event,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"data":      json.RawMessage(job.Payload),
	}
	body, err := json.Marshal(envelope)
	if err != nil {
		return false, 0, fmt.Sprintf("failed to marshal payload: %v", err)
	}

	req, err := http.NewRequest(http.MethodPost, job.URL, bytes.NewReader(body))
	if err != nil {
		return false, 0, fmt.Sprintf("failed to create request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", job.Event)
	req.Header.Set("X-Attempt-Count", fmt.Sprintf("%d", job.Attempt+1))
	if job.Secret != "" {
		req.Header.Set("X-Webhook-Signature", utils.GenerateWebhookSignature(body, job.Secret))
	}

	resp, err := sharedHTTPClient.Do(req)
	if err != nil {
		return false, 0, fmt.Sprintf("request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBodyBytes))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return true, resp.StatusCode, ""
	}
	return false, resp.StatusCode, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(respBody))
}
