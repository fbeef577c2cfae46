package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/andreluizvr/textora/app/models"
	"github.com/andreluizvr/textora/internal/pkg/constants"
	"github.com/andreluizvr/textora/internal/pkg/database"
	"github.com/andreluizvr/textora/internal/pkg/env"
	"github.com/andreluizvr/textora/internal/pkg/mail"
	"github.com/andreluizvr/textora/internal/pkg/security"
)

// Claim links outlive the payment window by a wide margin so users can come
// back from the email days later.
const claimTokenTTL = 7 * 24 * time.Hour

var planDisplayNames = map[string]string{
	"pro":      "Textora Pro",
	"lifetime": "Textora Lifetime",
}

// processNotificationEmailJob sends the purchase-completed email.
func (q *Queue) processNotificationEmailJob(ctx context.Context, job *Job) error {
	_ = ctx
	payload, err := NotificationEmailJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid notification payload: %w", err)
	}
	if payload.Email == "" {
		// Nothing to send to; treat as done rather than retrying forever.
		log.Warnf("[JobQueue] Notification job %s has no recipient, skipping", job.ID)
		return nil
	}

	name := ""
	if db := database.GetDB(); db != nil && payload.UserID != 0 {
		var user models.User
		if err := db.First(&user, payload.UserID).Error; err == nil {
			name = user.Name
		}
	}

	subject, body := buildPurchaseEmail(name, payload.PlanType, buildClaimLink(payload.UserID, payload.PaymentRef))
	if err := mail.SendMail(payload.Email, subject, body); err != nil {
		return fmt.Errorf("failed to send purchase email to %s: %w", payload.Email, err)
	}

	log.Infof("[JobQueue] Purchase email sent to %s (plan: %s)", payload.Email, payload.PlanType)
	return nil
}

func buildPurchaseEmail(name, planType, claimLink string) (subject, body string) {
	plan := planDisplayNames[planType]
	if plan == "" {
		plan = "Textora"
	}
	greeting := "Hello"
	if name != "" {
		greeting = "Hello " + name
	}

	subject = fmt.Sprintf("Your %s access is active", plan)
	appURL := env.GetEnv("PUBLIC_DOMAIN", "https://textora.com.br")
	body = fmt.Sprintf(`
		<h2>%s,</h2>
		<p>Your payment was confirmed and your <strong>%s</strong> access is now active.</p>
		<p><a href="%s">Open Textora</a> and start writing.</p>
		<p>If anything looks wrong, just reply to this email.</p>
	`, greeting, plan, appURL)
	if claimLink != "" {
		body += fmt.Sprintf(`
		<p>Access not showing up? <a href="%s">Click here to activate it manually</a>.</p>
	`, claimLink)
	}
	return subject, body
}

// buildClaimLink mints the signed self-service activation link. Returns an
// empty string when the data or configuration for a link is missing; the
// email is still worth sending without it.
func buildClaimLink(userID uint, paymentRef string) string {
	if userID == 0 || paymentRef == "" {
		return ""
	}
	secret := env.GetEnv("APP_SECRET", "")
	if secret == "" {
		return ""
	}
	token, err := security.GenerateClaimToken(userID, paymentRef, claimTokenTTL, secret)
	if err != nil {
		log.Warnf("[JobQueue] Failed to generate claim token for user %d: %v", userID, err)
		return ""
	}
	appURL := env.GetEnv("PUBLIC_DOMAIN", "https://textora.com.br")
	return fmt.Sprintf("%s%s?token=%s", appURL, constants.PaymentClaimRoute, token)
}
