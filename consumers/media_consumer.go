package consumers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"mime"
	"os"
	"path/filepath"
	"time"

	"github.com/Rogerio-auto/livechat-monorepo-sub010/models"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/queue"
	"github.com/Rogerio-auto/livechat-monorepo-sub010/services"

	"github.com/streadway/amqp"
)

// MediaConsumer drains q.inbound.media: downloads provider attachments,
// stores them locally and backfills the message row. The conversation is
// re-broadcast so open chat windows pick up the media URL.
type MediaConsumer struct {
	Store     *services.Store
	Publisher queue.Publisher
	Meta      *services.MetaClient
	MediaDir  string
}

func (c *MediaConsumer) Start() {
	queue.RunConsumer("MEDIA", queue.QueueInboundMedia, c.handle)
}

func (c *MediaConsumer) handle(d amqp.Delivery) {
	var job models.MediaJob
	if err := json.Unmarshal(d.Body, &job); err != nil {
		log.Printf("[MEDIA] Malformed job, dead-lettering: %v", err)
		d.Nack(false, false)
		return
	}
	if err := job.Validate(); err != nil {
		log.Printf("[MEDIA] Invalid job, dead-lettering: %v", err)
		d.Nack(false, false)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := c.process(ctx, &job); err != nil {
		log.Printf("[MEDIA] Failed to fetch media %s for message %s: %v", job.MediaID, job.MessageID, err)
		d.Nack(false, false)
		return
	}
	d.Ack(false)
}

func (c *MediaConsumer) process(ctx context.Context, job *models.MediaJob) error {
	creds, err := c.Store.GetInboxCreds(ctx, job.InboxID)
	if err != nil {
		return err
	}
	if creds == nil {
		return fmt.Errorf("inbox not found: %s", job.InboxID)
	}

	url, mimeType, err := c.Meta.MediaInfo(ctx, creds, job.MediaID)
	if err != nil {
		return err
	}
	if mimeType == "" {
		mimeType = job.MimeType
	}

	data, err := c.Meta.DownloadMedia(ctx, creds, url)
	if err != nil {
		return err
	}

	dir := filepath.Join(c.MediaDir, job.InboxID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create media dir: %w", err)
	}

	filename := job.MediaID + extensionFor(mimeType, job.Filename)
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write media file: %w", err)
	}

	mediaURL := "/media/" + job.InboxID + "/" + filename
	if err := c.Store.SetMessageMediaURL(ctx, job.MessageID, mediaURL); err != nil {
		return err
	}
	if err := c.Store.InsertAttachment(ctx, job.MessageID, mediaURL, mimeType, job.Filename); err != nil {
		return err
	}

	view, err := c.Store.MessageView(ctx, job.MessageID)
	if err != nil || view == nil {
		return err
	}
	c.Publisher.Publish(queue.ExchangeApp, queue.KeySocketInbound, models.SocketEvent{
		Kind:    models.SocketKindInbound,
		ChatID:  view.ChatID,
		InboxID: job.InboxID,
		Message: view,
	})

	log.Printf("[MEDIA] Stored media %s for message %s (%d bytes)", job.MediaID, job.MessageID, len(data))
	return nil
}

// extensionFor picks a file extension from the original filename first,
// then the mime type.
func extensionFor(mimeType, filename string) string {
	if ext := filepath.Ext(filename); ext != "" {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mimeType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
