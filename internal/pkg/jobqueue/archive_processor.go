package jobqueue

import (
	"context"
	"fmt"
	"sync"

	"github.com/gofiber/fiber/v2/log"

	"github.com/andreluizvr/textora/app/models"
	"github.com/andreluizvr/textora/internal/pkg/database"
	"github.com/andreluizvr/textora/internal/pkg/s3archive"
)

var (
	archiveClientOnce sync.Once
	archiveClient     *s3archive.Client
	archiveConfig     *s3archive.Config
	archiveInitErr    error
)

func getArchiveClient() (*s3archive.Client, *s3archive.Config, error) {
	archiveClientOnce.Do(func() {
		cfg, err := s3archive.LoadConfig()
		if err != nil {
			archiveInitErr = err
			return
		}
		archiveConfig = cfg
		if !cfg.IsEnabled() {
			return
		}
		archiveClient, archiveInitErr = s3archive.NewClient(cfg)
	})
	return archiveClient, archiveConfig, archiveInitErr
}

// processWebhookArchiveJob copies a stored webhook payload to object
// storage. The database row stays the source of truth; the archive exists
// for audit and replay beyond the row's retention.
func (q *Queue) processWebhookArchiveJob(ctx context.Context, job *Job) error {
	payload, err := WebhookArchiveJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid archive payload: %w", err)
	}

	client, cfg, err := getArchiveClient()
	if err != nil {
		return fmt.Errorf("archive client unavailable: %w", err)
	}
	if client == nil {
		log.Debugf("[JobQueue] Webhook archiving disabled, skipping job %s", job.ID)
		return nil
	}

	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	var event models.WebhookEvent
	if err := db.First(&event, payload.WebhookEventID).Error; err != nil {
		return fmt.Errorf("webhook event %d not found: %w", payload.WebhookEventID, err)
	}

	objectKey := cfg.GetObjectKey(event.Provider, event.ProviderEventID, event.CreatedAt)

	// Replay-safe: a retried job finds the object and uploads nothing.
	exists, err := client.ObjectExists(ctx, objectKey)
	if err != nil {
		return err
	}
	if exists {
		log.Debugf("[JobQueue] Webhook event %d already archived at %s", event.ID, objectKey)
		return nil
	}

	if err := client.UploadJSON(ctx, objectKey, []byte(event.PayloadJSON)); err != nil {
		return fmt.Errorf("failed to archive webhook event %d: %w", event.ID, err)
	}
	return nil
}
