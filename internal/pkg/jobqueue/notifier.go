package jobqueue

import (
	"github.com/gofiber/fiber/v2/log"
)

// Notifier dispatches billing side effects as background jobs. It satisfies
// the billing package's Notifier interface. Enqueue failures are logged and
// swallowed: side effects must never fail or block an activation.
type Notifier struct {
	queue *Queue
}

// NewNotifier creates a notifier backed by the given queue.
func NewNotifier(queue *Queue) *Notifier {
	return &Notifier{queue: queue}
}

// PurchaseCompleted enqueues the purchase-completed email.
func (n *Notifier) PurchaseCompleted(userID uint, email, planType, paymentRef string) {
	payload := NotificationEmailJobPayload{
		UserID:     userID,
		Email:      email,
		PlanType:   planType,
		PaymentRef: paymentRef,
	}
	if _, err := n.queue.EnqueueJob(JobTypeNotificationEmail, payload.ToMap()); err != nil {
		log.Errorf("[JobQueue] Failed to enqueue purchase email for user %d: %v", userID, err)
	}
}

// CompanionActivation enqueues the WhatsApp companion entitlement push.
func (n *Notifier) CompanionActivation(userID uint, planType string) {
	payload := CompanionActivationJobPayload{
		UserID:   userID,
		PlanType: planType,
	}
	if _, err := n.queue.EnqueueJob(JobTypeCompanionActivation, payload.ToMap()); err != nil {
		log.Errorf("[JobQueue] Failed to enqueue companion activation for user %d: %v", userID, err)
	}
}

// EnqueueWebhookArchive schedules the raw payload copy to object storage.
func (n *Notifier) EnqueueWebhookArchive(webhookEventID uint, provider, providerEventID, eventType string) {
	payload := WebhookArchiveJobPayload{
		WebhookEventID:  webhookEventID,
		Provider:        provider,
		ProviderEventID: providerEventID,
		EventType:       eventType,
	}
	if _, err := n.queue.EnqueueJob(JobTypeWebhookArchive, payload.ToMap()); err != nil {
		log.Errorf("[JobQueue] Failed to enqueue webhook archive for event %d: %v", webhookEventID, err)
	}
}
