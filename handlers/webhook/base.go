package webhook

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/queue"
)

// InboxLookup resolves inboxes by provider identifiers. A nil inbox with a
// nil error means the identifier is unknown.
type InboxLookup interface {
	ByPhoneNumberID(ctx context.Context, phoneNumberID string) (*models.Inbox, error)
	BySession(ctx context.Context, session string) (*models.Inbox, error)
	ByVerifyToken(ctx context.Context, token string) (*models.Inbox, error)
	Creds(ctx context.Context, inboxID string) (*models.InboxCreds, error)
}

// EventRecorder archives raw webhook payloads. Implementations must never
// block the webhook path.
type EventRecorder interface {
	Record(entry models.WebhookEventLog)
}

// noopRecorder is used when the archive is disabled.
type noopRecorder struct{}

func (noopRecorder) Record(models.WebhookEventLog) {}

// Handler carries the shared dependencies for all provider webhook handlers.
type Handler struct {
	Publisher queue.Publisher
	Inboxes   InboxLookup
	Audit     EventRecorder

	// Global Meta settings; per-inbox values take precedence.
	VerifyToken string
	AppSecret   string

	// Shared key WAHA servers send in X-Api-Key. Empty disables the check.
	WahaWebhookKey string
}

func NewHandler(publisher queue.Publisher, inboxes InboxLookup, audit EventRecorder, verifyToken, appSecret, wahaWebhookKey string) *Handler {
	if audit == nil {
		audit = noopRecorder{}
	}
	return &Handler{
		Publisher:      publisher,
		Inboxes:        inboxes,
		Audit:          audit,
		VerifyToken:    verifyToken,
		AppSecret:      appSecret,
		WahaWebhookKey: wahaWebhookKey,
	}
}

var (
	// Goroutine limiting for providers processed off the request path
	goroutineSemaphore chan struct{}

	maxConcurrentGoroutines int

	initOnce sync.Once
)

// InitWebhookHandlers initializes shared webhook handler resources.
func InitWebhookHandlers() {
	initOnce.Do(func() {
		numCPU := runtime.NumCPU()
		maxConcurrentGoroutines = numCPU * 100
		goroutineSemaphore = make(chan struct{}, maxConcurrentGoroutines)

		log.Printf("[WEBHOOK_INIT] Goroutine limit set to %d (based on %d CPU cores)",
			maxConcurrentGoroutines, numCPU)
	})
}

// ProcessWebhookAsync runs processingFunc in a background goroutine with
// semaphore control so a webhook burst cannot exhaust the process.
func ProcessWebhookAsync(provider string, processingFunc func()) {
	select {
	case goroutineSemaphore <- struct{}{}:
		go func() {
			defer func() { <-goroutineSemaphore }()
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[%s_WEBHOOK] PANIC recovered: %v", provider, r)
				}
			}()

			processingFunc()
		}()
	default:
		log.Printf("[%s_WEBHOOK] OVERLOAD - Semaphore full, dropping webhook (limit: %d)",
			provider, maxConcurrentGoroutines)
	}
}

// LogWebhookReceived logs webhook reception.
func LogWebhookReceived(provider string, payloadSize int) {
	log.Printf("[%s_WEBHOOK] Received webhook (payload size: %d bytes, timestamp: %s)",
		provider, payloadSize, time.Now().Format(time.RFC3339))
}
