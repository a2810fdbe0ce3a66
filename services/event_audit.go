package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/utils"

	"go.mongodb.org/mongo-driver/mongo"
)

// EventAudit archives raw webhook payloads to MongoDB off the hot path.
// Workers push an entry and return immediately; a small writer pool drains
// the queue. The archive is best effort: a full queue drops the entry
// rather than blocking webhook ingestion.
type EventAudit struct {
	ch      chan models.WebhookEventLog
	wg      sync.WaitGroup
	getColl func() *mongo.Collection

	closeOnce sync.Once
}

const auditCollection = "webhook_event_logs"

func NewEventAudit(workers, buffer int) *EventAudit {
	if workers <= 0 {
		workers = 4
	}
	if buffer <= 0 {
		buffer = 10000
	}
	a := &EventAudit{
		ch:      make(chan models.WebhookEventLog, buffer),
		getColl: func() *mongo.Collection { return utils.GetCollection(auditCollection) },
	}
	for i := 0; i < workers; i++ {
		a.wg.Add(1)
		go a.writeWorker()
	}
	return a
}

func (a *EventAudit) writeWorker() {
	defer a.wg.Done()
	for entry := range a.ch {
		coll := a.getColl()
		if coll == nil {
			// Archiving disabled for this deployment.
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		_, err := coll.InsertOne(ctx, entry)
		cancel()
		if err != nil {
			log.Printf("[EVENT_AUDIT] Async archive write failed: %v", err)
		}
	}
}

// Record enqueues an archive write without blocking.
func (a *EventAudit) Record(entry models.WebhookEventLog) {
	if entry.ReceivedAt.IsZero() {
		entry.ReceivedAt = time.Now().UTC()
	}
	select {
	case a.ch <- entry:
	default:
		log.Printf("[EVENT_AUDIT] Archive queue full, dropping event %s", entry.EventUID)
	}
}

// Close drains pending writes and stops the workers.
func (a *EventAudit) Close() {
	a.closeOnce.Do(func() {
		close(a.ch)
	})
	a.wg.Wait()
}
