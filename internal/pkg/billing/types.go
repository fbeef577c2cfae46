package billing

import "time"

// Normalized event payloads. The webhook controller verifies and decodes the
// provider event (see stripe.go) and hands one of these to the matching
// handler; handlers never see raw provider JSON.

// CheckoutCompletedEvent is emitted when a recurring-plan checkout finishes.
type CheckoutCompletedEvent struct {
	UserID                 uint // 0 for guest checkout
	Email                  string
	IsGuestCheckout        bool
	ProviderSubscriptionID string
	ProviderCustomerID     string
	CheckoutSessionID      string
	PlanRef                string
	PlanType               string
	PaymentStatus          string // provider vocabulary, e.g. "paid"
	AmountCents            int64
	Currency               string
	CurrentPeriodEnd       *time.Time
	IncludesWhatsApp       bool
}

// InvoicePaidEvent is emitted for every successful recurring charge.
type InvoicePaidEvent struct {
	ProviderInvoiceID       string
	ProviderSubscriptionID  string
	ProviderCustomerID      string
	ProviderPaymentIntentID string
	ProviderChargeID        string
	AmountCents             int64
	Currency                string
	PaymentMethod           string
	PaidAt                  *time.Time
}

// InvoicePaymentFailedEvent marks a subscription as past due.
type InvoicePaymentFailedEvent struct {
	ProviderInvoiceID      string
	ProviderSubscriptionID string
}

// SubscriptionUpdatedEvent syncs provider-side subscription mutations.
type SubscriptionUpdatedEvent struct {
	ProviderSubscriptionID string
	Status                 string // provider vocabulary
	PlanRef                string
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
}

// SubscriptionDeletedEvent cancels a subscription.
type SubscriptionDeletedEvent struct {
	ProviderSubscriptionID string
}

// PixSucceededEvent confirms a PIX instant payment.
type PixSucceededEvent struct {
	ProviderPaymentIntentID string
	UserID                  uint // 0 for guest
	Email                   string
	PlanType                string
	AmountCents             int64
	Currency                string
}

// PixFailedEvent terminates a PIX attempt without payment.
type PixFailedEvent struct {
	ProviderPaymentIntentID string
}

// LifetimeCompletedEvent records a finished one-time purchase.
type LifetimeCompletedEvent struct {
	ProviderPaymentIntentID string
	CheckoutSessionID       string
	UserID                  uint // 0 for guest
	Email                   string
	AmountCents             int64
	Currency                string
	PromoCode               string
	PaymentStatus           string // provider vocabulary
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider        string
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// VerificationStatus is the read-only reconciliation snapshot the client
// poller consumes. The three booleans are deliberately independent so the
// client can tell "still waiting on payment" from "payment fine, activation
// lagging".
type VerificationStatus struct {
	PaymentApproved     bool `json:"paymentApproved"`
	ProfileActivated    bool `json:"profileActivated"`
	SubscriptionCreated bool `json:"subscriptionCreated"`
	Ready               bool `json:"ready"`
}
