package billing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v79"
)

// Metadata keys the checkout flow stamps onto sessions and payment intents.
const (
	metaUserID           = "user_id"
	metaPlanType         = "plan_type"
	metaGuestCheckout    = "guest_checkout"
	metaIncludesWhatsApp = "includes_whatsapp"
	metaPromoCode        = "promo_code"
	metaEmail            = "email"
)

// NormalizeStripeEvent decodes a verified Stripe event into one of the
// normalized payload structs from types.go. Event types the engine does not
// react to return (nil, nil); the controller acknowledges those with 200 so
// the provider stops redelivering them.
func NormalizeStripeEvent(event stripe.Event) (interface{}, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("decode checkout session: %w", err)
		}
		switch session.Mode {
		case stripe.CheckoutSessionModeSubscription:
			return checkoutFromSession(&session), nil
		case stripe.CheckoutSessionModePayment:
			return lifetimeFromSession(&session), nil
		default:
			return nil, nil // setup mode sessions carry no purchase
		}

	case stripe.EventTypeInvoicePaid:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		ev := &InvoicePaidEvent{
			ProviderInvoiceID:      invoice.ID,
			ProviderSubscriptionID: invoiceSubscriptionID(&invoice, event.Data.Raw),
			AmountCents:            invoice.AmountPaid,
			Currency:               string(invoice.Currency),
		}
		if invoice.Customer != nil {
			ev.ProviderCustomerID = invoice.Customer.ID
		}
		if invoice.PaymentIntent != nil {
			ev.ProviderPaymentIntentID = invoice.PaymentIntent.ID
		}
		if invoice.Charge != nil {
			ev.ProviderChargeID = invoice.Charge.ID
		}
		if invoice.StatusTransitions != nil && invoice.StatusTransitions.PaidAt > 0 {
			t := time.Unix(invoice.StatusTransitions.PaidAt, 0)
			ev.PaidAt = &t
		}
		return ev, nil

	case stripe.EventTypeInvoicePaymentFailed:
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("decode invoice: %w", err)
		}
		return &InvoicePaymentFailedEvent{
			ProviderInvoiceID:      invoice.ID,
			ProviderSubscriptionID: invoiceSubscriptionID(&invoice, event.Data.Raw),
		}, nil

	case stripe.EventTypeCustomerSubscriptionUpdated:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		ev := &SubscriptionUpdatedEvent{
			ProviderSubscriptionID: sub.ID,
			Status:                 string(sub.Status),
			PlanRef:                subscriptionPriceID(&sub),
			CancelAtPeriodEnd:      sub.CancelAtPeriodEnd,
		}
		if sub.CurrentPeriodEnd > 0 {
			t := time.Unix(sub.CurrentPeriodEnd, 0)
			ev.CurrentPeriodEnd = &t
		}
		return ev, nil

	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		return &SubscriptionDeletedEvent{ProviderSubscriptionID: sub.ID}, nil

	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		if !isPixIntent(&intent) {
			// Card intents are settled through their invoice or checkout
			// session events; reacting here would double-handle them.
			return nil, nil
		}
		return &PixSucceededEvent{
			ProviderPaymentIntentID: intent.ID,
			UserID:                  metadataUserID(intent.Metadata),
			Email:                   intentEmail(&intent),
			PlanType:                intent.Metadata[metaPlanType],
			AmountCents:             intent.Amount,
			Currency:                string(intent.Currency),
		}, nil

	case stripe.EventTypePaymentIntentPaymentFailed:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return nil, fmt.Errorf("decode payment intent: %w", err)
		}
		if !isPixIntent(&intent) {
			return nil, nil
		}
		return &PixFailedEvent{ProviderPaymentIntentID: intent.ID}, nil
	}

	return nil, nil
}

func checkoutFromSession(session *stripe.CheckoutSession) *CheckoutCompletedEvent {
	ev := &CheckoutCompletedEvent{
		UserID:            metadataUserID(session.Metadata),
		Email:             sessionEmail(session),
		IsGuestCheckout:   session.Metadata[metaGuestCheckout] == "true",
		CheckoutSessionID: session.ID,
		PlanType:          session.Metadata[metaPlanType],
		PaymentStatus:     string(session.PaymentStatus),
		AmountCents:       session.AmountTotal,
		Currency:          string(session.Currency),
		IncludesWhatsApp:  session.Metadata[metaIncludesWhatsApp] == "true",
	}
	if ev.UserID == 0 {
		ev.IsGuestCheckout = true
	}
	if session.Customer != nil {
		ev.ProviderCustomerID = session.Customer.ID
	}
	if session.Subscription != nil {
		ev.ProviderSubscriptionID = session.Subscription.ID
		if session.Subscription.CurrentPeriodEnd > 0 {
			t := time.Unix(session.Subscription.CurrentPeriodEnd, 0)
			ev.CurrentPeriodEnd = &t
		}
		ev.PlanRef = subscriptionPriceID(session.Subscription)
	}
	return ev
}

func lifetimeFromSession(session *stripe.CheckoutSession) *LifetimeCompletedEvent {
	ev := &LifetimeCompletedEvent{
		CheckoutSessionID: session.ID,
		UserID:            metadataUserID(session.Metadata),
		Email:             sessionEmail(session),
		AmountCents:       session.AmountTotal,
		Currency:          string(session.Currency),
		PromoCode:         session.Metadata[metaPromoCode],
		PaymentStatus:     string(session.PaymentStatus),
	}
	if session.PaymentIntent != nil {
		ev.ProviderPaymentIntentID = session.PaymentIntent.ID
	}
	return ev
}

// invoiceSubscriptionID prefers the expanded object but falls back to the raw
// JSON: thin webhook payloads carry the subscription as a bare id string.
func invoiceSubscriptionID(invoice *stripe.Invoice, raw json.RawMessage) string {
	if invoice.Subscription != nil && invoice.Subscription.ID != "" {
		return invoice.Subscription.ID
	}
	var thin struct {
		Subscription string `json:"subscription"`
	}
	if err := json.Unmarshal(raw, &thin); err == nil {
		return thin.Subscription
	}
	return ""
}

func subscriptionPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return ""
	}
	if price := sub.Items.Data[0].Price; price != nil {
		return price.ID
	}
	return ""
}

func isPixIntent(intent *stripe.PaymentIntent) bool {
	for _, m := range intent.PaymentMethodTypes {
		if m == "pix" {
			return true
		}
	}
	return strings.EqualFold(intent.Metadata["payment_method"], "pix")
}

func metadataUserID(metadata map[string]string) uint {
	raw := strings.TrimSpace(metadata[metaUserID])
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

func sessionEmail(session *stripe.CheckoutSession) string {
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		return session.CustomerDetails.Email
	}
	if session.CustomerEmail != "" {
		return session.CustomerEmail
	}
	if session.Customer != nil {
		return session.Customer.Email
	}
	return ""
}

func intentEmail(intent *stripe.PaymentIntent) string {
	if email := intent.Metadata[metaEmail]; email != "" {
		return email
	}
	if intent.ReceiptEmail != "" {
		return intent.ReceiptEmail
	}
	if intent.Customer != nil {
		return intent.Customer.Email
	}
	return ""
}
