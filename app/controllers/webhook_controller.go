package controllers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/stripe/stripe-go/v79/webhook"

	"github.com/andreluizvr/textora/app/models"
	"github.com/andreluizvr/textora/internal/pkg/billing"
	"github.com/andreluizvr/textora/internal/pkg/database"
	"github.com/andreluizvr/textora/internal/pkg/env"
	"github.com/andreluizvr/textora/internal/pkg/jobqueue"
	"github.com/andreluizvr/textora/internal/pkg/metrics/counter"
)

const webhookHandlerTimeout = 25 * time.Second

func billingService() *billing.Service {
	notifier := jobqueue.NewNotifier(jobqueue.GetManager().GetQueue())
	return billing.NewServiceFromDB(database.GetDB(), notifier)
}

// HandlePaymentWebhook receives processor webhook deliveries. The contract
// with the processor: 2xx acknowledges the event permanently, any other
// status triggers a retry. Handlers therefore only return errors for
// failures that a retry can fix.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	payload := c.Body()
	signature := c.Get("Stripe-Signature")

	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")
	if secret == "" {
		log.Error("[Webhook] STRIPE_WEBHOOK_SECRET not configured, rejecting delivery")
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "webhook not configured")
	}

	event, err := webhook.ConstructEvent(payload, signature, secret)
	if err != nil {
		log.Warnf("[Webhook] Signature verification failed: %v", err)
		return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "signature verification failed")
	}

	ctx, cancel := context.WithTimeout(c.Context(), webhookHandlerTimeout)
	defer cancel()

	svc := billingService()

	created, record, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:        "stripe",
		ProviderEventID: event.ID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	})
	if err != nil {
		log.Errorf("[Webhook] Failed to record event %s: %v", event.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to record event")
	}
	if !created && !shouldReprocessWebhookEvent(record) {
		// Redelivery of an event we already processed successfully;
		// acknowledge and move on. A redelivery of an event whose first
		// run failed (or never finished) falls through and runs again.
		return c.JSON(fiber.Map{"received": true, "duplicate": true})
	}

	if cntErr := counter.AddWebhookEvent(string(event.Type)); cntErr != nil {
		log.Warnf("[Webhook] Failed to count event type %s: %v", event.Type, cntErr)
	}

	normalized, err := billing.NormalizeStripeEvent(event)
	if err != nil {
		log.Errorf("[Webhook] Failed to normalize event %s (%s): %v", event.ID, event.Type, err)
		_ = svc.MarkWebhookProcessed(ctx, record.ID, err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "failed to parse event")
	}

	handlerErr := dispatchWebhookEvent(ctx, svc, normalized)
	if markErr := svc.MarkWebhookProcessed(ctx, record.ID, handlerErr); markErr != nil {
		log.Errorf("[Webhook] Failed to mark event %s processed: %v", event.ID, markErr)
	}
	if handlerErr != nil {
		log.Errorf("[Webhook] Handler failed for event %s (%s): %v", event.ID, event.Type, handlerErr)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "event processing failed")
	}

	notifier := jobqueue.NewNotifier(jobqueue.GetManager().GetQueue())
	notifier.EnqueueWebhookArchive(record.ID, "stripe", event.ID, string(event.Type))

	return c.JSON(fiber.Map{"received": true})
}

// shouldReprocessWebhookEvent reports whether a stored event still needs a
// processing run: never marked processed, or marked with a handler error.
func shouldReprocessWebhookEvent(record *models.WebhookEvent) bool {
	return record.ProcessedAt == nil || record.ProcessingError != ""
}

// dispatchWebhookEvent routes a normalized event to its handler. A nil
// normalized event is an event type we deliberately ignore.
func dispatchWebhookEvent(ctx context.Context, svc *billing.Service, normalized interface{}) error {
	switch ev := normalized.(type) {
	case nil:
		return nil
	case billing.CheckoutCompletedEvent:
		return svc.HandleCheckoutCompleted(ctx, ev)
	case billing.InvoicePaidEvent:
		return svc.HandleInvoicePaid(ctx, ev)
	case billing.InvoicePaymentFailedEvent:
		return svc.HandleInvoicePaymentFailed(ctx, ev)
	case billing.SubscriptionUpdatedEvent:
		return svc.HandleSubscriptionUpdated(ctx, ev)
	case billing.SubscriptionDeletedEvent:
		return svc.HandleSubscriptionDeleted(ctx, ev)
	case billing.PixSucceededEvent:
		return svc.HandlePixSucceeded(ctx, ev)
	case billing.PixFailedEvent:
		return svc.HandlePixFailed(ctx, ev)
	case billing.LifetimeCompletedEvent:
		return svc.HandleLifetimeCompleted(ctx, ev)
	default:
		log.Warnf("[Webhook] No handler for normalized event type %T, ignoring", normalized)
		return nil
	}
}
