package billing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

func stripeEvent(t *testing.T, eventType stripe.EventType, raw string) stripe.Event {
	t.Helper()
	return stripe.Event{
		Type: eventType,
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func TestNormalizeCheckoutSubscriptionMode(t *testing.T) {
	raw := `{
		"id": "cs_123",
		"mode": "subscription",
		"payment_status": "paid",
		"amount_total": 2990,
		"currency": "brl",
		"customer": {"id": "cus_1", "email": "alice@example.com"},
		"subscription": {
			"id": "sub_123",
			"current_period_end": 1767225600,
			"items": {"data": [{"price": {"id": "price_pro"}}]}
		},
		"metadata": {"user_id": "42", "plan_type": "pro", "includes_whatsapp": "true"}
	}`
	out, err := NormalizeStripeEvent(stripeEvent(t, stripe.EventTypeCheckoutSessionCompleted, raw))
	require.NoError(t, err)
	ev, ok := out.(*CheckoutCompletedEvent)
	require.True(t, ok)

	assert.Equal(t, uint(42), ev.UserID)
	assert.False(t, ev.IsGuestCheckout)
	assert.Equal(t, "sub_123", ev.ProviderSubscriptionID)
	assert.Equal(t, "cus_1", ev.ProviderCustomerID)
	assert.Equal(t, "cs_123", ev.CheckoutSessionID)
	assert.Equal(t, "price_pro", ev.PlanRef)
	assert.Equal(t, "pro", ev.PlanType)
	assert.Equal(t, "paid", ev.PaymentStatus)
	assert.Equal(t, int64(2990), ev.AmountCents)
	assert.Equal(t, "brl", ev.Currency)
	assert.True(t, ev.IncludesWhatsApp)
	require.NotNil(t, ev.CurrentPeriodEnd)
	assert.Equal(t, "alice@example.com", ev.Email)
}

func TestNormalizeCheckoutGuest(t *testing.T) {
	raw := `{
		"id": "cs_123",
		"mode": "subscription",
		"payment_status": "paid",
		"customer_details": {"email": "guest@example.com"},
		"subscription": {"id": "sub_123"},
		"metadata": {"guest_checkout": "true"}
	}`
	out, err := NormalizeStripeEvent(stripeEvent(t, stripe.EventTypeCheckoutSessionCompleted, raw))
	require.NoError(t, err)
	ev := out.(*CheckoutCompletedEvent)
	assert.True(t, ev.IsGuestCheckout)
	assert.Zero(t, ev.UserID)
	assert.Equal(t, "guest@example.com", ev.Email)
}

func TestNormalizeCheckoutPaymentModeIsLifetime(t *testing.T) {
	raw := `{
		"id": "cs_123",
		"mode": "payment",
		"payment_status": "paid",
		"amount_total": 19900,
		"currency": "brl",
		"payment_intent": {"id": "pi_life_1"},
		"customer_details": {"email": "alice@example.com"},
		"metadata": {"user_id": "42", "promo_code": "LAUNCH50"}
	}`
	out, err := NormalizeStripeEvent(stripeEvent(t, stripe.EventTypeCheckoutSessionCompleted, raw))
	require.NoError(t, err)
	ev, ok := out.(*LifetimeCompletedEvent)
	require.True(t, ok)
	assert.Equal(t, "pi_life_1", ev.ProviderPaymentIntentID)
	assert.Equal(t, uint(42), ev.UserID)
	assert.Equal(t, "LAUNCH50", ev.PromoCode)
	assert.Equal(t, int64(19900), ev.AmountCents)
}

func TestNormalizeInvoicePaid(t *testing.T) {
	raw := `{
		"id": "in_1",
		"amount_paid": 2990,
		"currency": "brl",
		"customer": {"id": "cus_1"},
		"payment_intent": {"id": "pi_1"},
		"charge": {"id": "ch_1"},
		"subscription": {"id": "sub_123"},
		"status_transitions": {"paid_at": 1767225600}
	}`
	out, err := NormalizeStripeEvent(stripeEvent(t, stripe.EventTypeInvoicePaid, raw))
	require.NoError(t, err)
	ev, ok := out.(*InvoicePaidEvent)
	require.True(t, ok)
	assert.Equal(t, "in_1", ev.ProviderInvoiceID)
	assert.Equal(t, "sub_123", ev.ProviderSubscriptionID)
	assert.Equal(t, "pi_1", ev.ProviderPaymentIntentID)
	assert.Equal(t, "ch_1", ev.ProviderChargeID)
	assert.Equal(t, int64(2990), ev.AmountCents)
	require.NotNil(t, ev.PaidAt)
}

func TestNormalizeInvoiceWithThinSubscriptionField(t *testing.T) {
	// Webhook payloads often carry the subscription as a bare id string.
	raw := `{"id": "in_1", "subscription": "sub_123"}`
	out, err := NormalizeStripeEvent(stripeEvent(t, stripe.EventTypeInvoicePaymentFailed, raw))
	require.NoError(t, err)
	ev := out.(*InvoicePaymentFailedEvent)
	assert.Equal(t, "sub_123", ev.ProviderSubscriptionID)
}

func TestNormalizeSubscriptionUpdated(t *testing.T) {
	raw := `{
		"id": "sub_123",
		"status": "past_due",
		"cancel_at_period_end": true,
		"current_period_end": 1767225600,
		"items": {"data": [{"price": {"id": "price_pro"}}]}
	}`
	out, err := NormalizeStripeEvent(stripeEvent(t, stripe.EventTypeCustomerSubscriptionUpdated, raw))
	require.NoError(t, err)
	ev := out.(*SubscriptionUpdatedEvent)
	assert.Equal(t, "sub_123", ev.ProviderSubscriptionID)
	assert.Equal(t, "past_due", ev.Status)
	assert.Equal(t, "price_pro", ev.PlanRef)
	assert.True(t, ev.CancelAtPeriodEnd)
	require.NotNil(t, ev.CurrentPeriodEnd)
}

func TestNormalizeSubscriptionDeleted(t *testing.T) {
	out, err := NormalizeStripeEvent(stripeEvent(t, stripe.EventTypeCustomerSubscriptionDeleted, `{"id": "sub_123"}`))
	require.NoError(t, err)
	ev := out.(*SubscriptionDeletedEvent)
	assert.Equal(t, "sub_123", ev.ProviderSubscriptionID)
}

func TestNormalizePixPaymentIntent(t *testing.T) {
	raw := `{
		"id": "pi_pix_1",
		"amount": 2990,
		"currency": "brl",
		"payment_method_types": ["pix"],
		"metadata": {"user_id": "42", "plan_type": "pro", "email": "alice@example.com"}
	}`
	out, err := NormalizeStripeEvent(stripeEvent(t, stripe.EventTypePaymentIntentSucceeded, raw))
	require.NoError(t, err)
	ev, ok := out.(*PixSucceededEvent)
	require.True(t, ok)
	assert.Equal(t, "pi_pix_1", ev.ProviderPaymentIntentID)
	assert.Equal(t, uint(42), ev.UserID)
	assert.Equal(t, "alice@example.com", ev.Email)
	assert.Equal(t, "pro", ev.PlanType)
	assert.Equal(t, int64(2990), ev.AmountCents)

	out, err = NormalizeStripeEvent(stripeEvent(t, stripe.EventTypePaymentIntentPaymentFailed, raw))
	require.NoError(t, err)
	failed, ok := out.(*PixFailedEvent)
	require.True(t, ok)
	assert.Equal(t, "pi_pix_1", failed.ProviderPaymentIntentID)
}

func TestNormalizeCardPaymentIntentIsIgnored(t *testing.T) {
	raw := `{"id": "pi_card_1", "payment_method_types": ["card"]}`
	out, err := NormalizeStripeEvent(stripeEvent(t, stripe.EventTypePaymentIntentSucceeded, raw))
	require.NoError(t, err)
	assert.Nil(t, out, "card intents are settled via their invoice events")
}

func TestNormalizeUnhandledEventType(t *testing.T) {
	out, err := NormalizeStripeEvent(stripeEvent(t, "customer.created", `{"id": "cus_1"}`))
	require.NoError(t, err)
	assert.Nil(t, out)
}
