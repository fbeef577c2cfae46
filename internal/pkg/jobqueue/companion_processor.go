package jobqueue

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/andreluizvr/textora/app/models"
	"github.com/andreluizvr/textora/internal/pkg/database"
	"github.com/andreluizvr/textora/internal/pkg/whatsapp"
)

// processCompanionActivationJob pushes the WhatsApp entitlement to the
// companion service. Runs out of band so a companion outage never blocks or
// reverts the plan activation that enqueued it.
func (q *Queue) processCompanionActivationJob(ctx context.Context, job *Job) error {
	payload, err := CompanionActivationJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid companion payload: %w", err)
	}
	if payload.UserID == 0 {
		log.Warnf("[JobQueue] Companion job %s has no user, skipping", job.ID)
		return nil
	}
	if !whatsapp.IsConfigured() {
		log.Warnf("[JobQueue] Companion service not configured, skipping job %s", job.ID)
		return nil
	}

	number := ""
	if db := database.GetDB(); db != nil {
		var user models.User
		if err := db.First(&user, payload.UserID).Error; err == nil {
			number = user.WhatsAppNumber
		}
	}

	if err := whatsapp.ActivateEntitlement(ctx, payload.UserID, payload.PlanType, number); err != nil {
		return fmt.Errorf("companion activation for user %d failed: %w", payload.UserID, err)
	}

	log.Infof("[JobQueue] Companion entitlement activated for user %d (plan: %s)", payload.UserID, payload.PlanType)
	return nil
}
