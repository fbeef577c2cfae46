package billing

import (
	"context"
	"testing"
	"time"

	"github.com/andreluizvr/textora/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleCheckoutCompletedActivatesPaidUser(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	repo.addUser(1, "alice@example.com")

	ev := CheckoutCompletedEvent{
		UserID:                 1,
		Email:                  "alice@example.com",
		ProviderSubscriptionID: "sub_123",
		ProviderCustomerID:     "cus_1",
		CheckoutSessionID:      "cs_1",
		PlanRef:                "price_pro",
		PlanType:               "pro",
		PaymentStatus:          "paid",
		AmountCents:            2990,
		Currency:               "brl",
		IncludesWhatsApp:       true,
	}
	require.NoError(t, svc.HandleCheckoutCompleted(context.Background(), ev))

	sub, err := repo.FindSubscriptionByProviderID("sub_123")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	plan, status := repo.profileState(1)
	assert.Equal(t, "pro", plan)
	assert.Equal(t, models.ProfileSubscriptionActive, status)
	assert.Equal(t, 1, notifier.purchaseCount())
	assert.Equal(t, 1, notifier.companionCount())

	// Replay: no duplicate activation, no duplicate notification.
	require.NoError(t, svc.HandleCheckoutCompleted(context.Background(), ev))
	assert.Equal(t, 1, notifier.purchaseCount())
}

func TestHandleCheckoutCompletedUnpaidStaysPending(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	repo.addUser(1, "alice@example.com")

	require.NoError(t, svc.HandleCheckoutCompleted(context.Background(), CheckoutCompletedEvent{
		UserID:                 1,
		ProviderSubscriptionID: "sub_123",
		PlanRef:                "price_pro",
		PlanType:               "pro",
		PaymentStatus:          "unpaid_yet",
	}))

	sub, err := repo.FindSubscriptionByProviderID("sub_123")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPending, sub.Status)
	assert.Equal(t, 0, notifier.purchaseCount())
}

func TestHandleCheckoutCompletedRetryFinishesInterruptedActivation(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	repo.addUser(1, "alice@example.com")

	// First delivery got as far as inserting the row, then died before the
	// activation step. The processor redelivers.
	sub := seedSubscription(t, repo, 1, "sub_123", "pro")

	require.NoError(t, svc.HandleCheckoutCompleted(context.Background(), CheckoutCompletedEvent{
		UserID:                 1,
		Email:                  "alice@example.com",
		ProviderSubscriptionID: "sub_123",
		PlanRef:                "price_pro",
		PlanType:               "pro",
		PaymentStatus:          "paid",
	}))

	assert.Equal(t, models.SubscriptionStatusActive, repo.subscriptionStatus(sub.ID))
	plan, status := repo.profileState(1)
	assert.Equal(t, "pro", plan)
	assert.Equal(t, models.ProfileSubscriptionActive, status)
	assert.Equal(t, 1, notifier.purchaseCount())
}

func TestHandleCheckoutCompletedGuestCreatesPendingRow(t *testing.T) {
	svc, repo, _ := newTestService(t)

	require.NoError(t, svc.HandleCheckoutCompleted(context.Background(), CheckoutCompletedEvent{
		Email:                  "guest@example.com",
		IsGuestCheckout:        true,
		ProviderSubscriptionID: "sub_guest",
		PlanRef:                "price_pro",
		PlanType:               "pro",
		PaymentStatus:          "paid",
	}))

	_, err := repo.FindSubscriptionByProviderID("sub_guest")
	assert.Error(t, err, "no real subscription row until the guest registers")

	rows, err := repo.FindPendingGuestSubscriptionsByEmail("guest@example.com")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, models.SubscriptionStatusActive, rows[0].Status)
}

func TestHandleCheckoutCompletedGuestEmailOfExistingUser(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(7, "alice@example.com")

	// Buyer checked out logged-out but already has an account: treat as that
	// user instead of parking the purchase in the pending table.
	require.NoError(t, svc.HandleCheckoutCompleted(context.Background(), CheckoutCompletedEvent{
		Email:                  "alice@example.com",
		IsGuestCheckout:        true,
		ProviderSubscriptionID: "sub_123",
		PlanRef:                "price_pro",
		PlanType:               "pro",
		PaymentStatus:          "paid",
	}))

	sub, err := repo.FindSubscriptionByProviderID("sub_123")
	require.NoError(t, err)
	require.NotNil(t, sub.UserID)
	assert.Equal(t, uint(7), *sub.UserID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestHandleInvoicePaidRecordsTransactionOnce(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")
	sub := seedSubscription(t, repo, 1, "sub_123", "pro")

	ev := InvoicePaidEvent{
		ProviderInvoiceID:      "in_1",
		ProviderSubscriptionID: "sub_123",
		AmountCents:            2990,
		Currency:               "brl",
	}
	require.NoError(t, svc.HandleInvoicePaid(context.Background(), ev))
	assert.Equal(t, models.SubscriptionStatusActive, repo.subscriptionStatus(sub.ID))

	require.NoError(t, svc.HandleInvoicePaid(context.Background(), ev))
	repo.mu.Lock()
	assert.Len(t, repo.transactions, 1)
	repo.mu.Unlock()
}

func TestHandleInvoicePaidBeforeCheckout(t *testing.T) {
	svc, repo, _ := newTestService(t)

	// Out-of-order delivery: the invoice lands first and must not be lost.
	require.NoError(t, svc.HandleInvoicePaid(context.Background(), InvoicePaidEvent{
		ProviderInvoiceID:      "in_1",
		ProviderSubscriptionID: "sub_123",
		AmountCents:            2990,
	}))

	sub, err := repo.FindSubscriptionByProviderID("sub_123")
	require.NoError(t, err)
	assert.Nil(t, sub.UserID)
	assert.Equal(t, models.SubscriptionStatusPending, sub.Status)

	// The checkout event then fills in the buyer and activates.
	repo.addUser(1, "alice@example.com")
	require.NoError(t, svc.HandleCheckoutCompleted(context.Background(), CheckoutCompletedEvent{
		UserID:                 1,
		ProviderSubscriptionID: "sub_123",
		PlanRef:                "price_pro",
		PlanType:               "pro",
		PaymentStatus:          "paid",
	}))
	sub, err = repo.FindSubscriptionByProviderID("sub_123")
	require.NoError(t, err)
	require.NotNil(t, sub.UserID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
}

func TestHandleInvoicePaymentFailedMarksPastDue(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")
	sub := seedSubscription(t, repo, 1, "sub_123", "pro")
	_, err := svc.Activate(context.Background(), 1, sub.ID)
	require.NoError(t, err)

	require.NoError(t, svc.HandleInvoicePaymentFailed(context.Background(), InvoicePaymentFailedEvent{
		ProviderInvoiceID:      "in_2",
		ProviderSubscriptionID: "sub_123",
	}))
	assert.Equal(t, models.SubscriptionStatusPastDue, repo.subscriptionStatus(sub.ID))
	_, status := repo.profileState(1)
	assert.Equal(t, models.ProfileSubscriptionPastDue, status)
}

func TestHandleInvoicePaymentFailedUnknownSubscriptionErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.HandleInvoicePaymentFailed(context.Background(), InvoicePaymentFailedEvent{
		ProviderSubscriptionID: "sub_missing",
	})
	// Returned so the webhook request fails and the provider redelivers
	// after the checkout event has hopefully arrived.
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestHandleSubscriptionUpdatedCancellation(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")
	sub := seedSubscription(t, repo, 1, "sub_123", "pro")
	_, err := svc.Activate(context.Background(), 1, sub.ID)
	require.NoError(t, err)

	require.NoError(t, svc.HandleSubscriptionUpdated(context.Background(), SubscriptionUpdatedEvent{
		ProviderSubscriptionID: "sub_123",
		Status:                 "canceled",
	}))
	assert.Equal(t, models.SubscriptionStatusCanceled, repo.subscriptionStatus(sub.ID))
	plan, status := repo.profileState(1)
	assert.Equal(t, "free", plan)
	assert.Equal(t, models.ProfileSubscriptionCanceled, status)
}

func TestHandleSubscriptionDeletedUnknownIsAcknowledged(t *testing.T) {
	svc, _, _ := newTestService(t)
	// Unknown subscription: nothing to cancel, and retrying would not help.
	assert.NoError(t, svc.HandleSubscriptionDeleted(context.Background(), SubscriptionDeletedEvent{
		ProviderSubscriptionID: "sub_missing",
	}))
}

func TestHandlePixSucceededForUser(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	repo.addUser(1, "alice@example.com")
	_, err := svc.RegisterPixPayment(context.Background(), 1, "alice@example.com", "pi_pix_1", "pro", 2990, "brl")
	require.NoError(t, err)

	ev := PixSucceededEvent{
		ProviderPaymentIntentID: "pi_pix_1",
		UserID:                  1,
		Email:                   "alice@example.com",
		PlanType:                "pro",
		AmountCents:             2990,
		Currency:                "brl",
	}
	require.NoError(t, svc.HandlePixSucceeded(context.Background(), ev))

	pix, err := repo.FindPixPaymentByIntent("pi_pix_1")
	require.NoError(t, err)
	assert.Equal(t, models.PixStatusPaid, pix.Status)
	require.NotNil(t, pix.PaidAt)

	sub, err := repo.FindSubscriptionByProviderID("pix:pi_pix_1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	plan, _ := repo.profileState(1)
	assert.Equal(t, "pro", plan)
	assert.Equal(t, 1, notifier.purchaseCount())

	// Replay is a no-op.
	require.NoError(t, svc.HandlePixSucceeded(context.Background(), ev))
	assert.Equal(t, 1, notifier.purchaseCount())
}

func TestHandlePixSucceededUnregisteredIntent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")

	// The QR registration never reached us; the handler reconstructs the row.
	require.NoError(t, svc.HandlePixSucceeded(context.Background(), PixSucceededEvent{
		ProviderPaymentIntentID: "pi_pix_2",
		UserID:                  1,
		PlanType:                "pro",
		AmountCents:             2990,
		Currency:                "brl",
	}))
	pix, err := repo.FindPixPaymentByIntent("pi_pix_2")
	require.NoError(t, err)
	assert.Equal(t, models.PixStatusPaid, pix.Status)
	assert.True(t, pix.ExpiresAt.After(time.Now()), "reconstructed row carries the normal expiry window")
}

func TestHandlePixSucceededGuest(t *testing.T) {
	svc, repo, _ := newTestService(t)

	require.NoError(t, svc.HandlePixSucceeded(context.Background(), PixSucceededEvent{
		ProviderPaymentIntentID: "pi_pix_3",
		Email:                   "guest@example.com",
		PlanType:                "pro",
		AmountCents:             2990,
		Currency:                "brl",
	}))

	rows, err := repo.FindPendingGuestSubscriptionsByEmail("guest@example.com")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "pix:pi_pix_3", rows[0].ProviderSubscriptionID)
	assert.Equal(t, models.SubscriptionStatusActive, rows[0].Status)
}

func TestHandlePixFailedOnlyFlipsPending(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")
	_, err := svc.RegisterPixPayment(context.Background(), 1, "alice@example.com", "pi_pix_1", "pro", 2990, "brl")
	require.NoError(t, err)

	require.NoError(t, svc.HandlePixFailed(context.Background(), PixFailedEvent{ProviderPaymentIntentID: "pi_pix_1"}))
	pix, err := repo.FindPixPaymentByIntent("pi_pix_1")
	require.NoError(t, err)
	assert.Equal(t, models.PixStatusFailed, pix.Status)

	// A late success delivery must not revive the failed attempt.
	require.NoError(t, svc.HandlePixSucceeded(context.Background(), PixSucceededEvent{ProviderPaymentIntentID: "pi_pix_1", UserID: 1}))
	pix, err = repo.FindPixPaymentByIntent("pi_pix_1")
	require.NoError(t, err)
	assert.Equal(t, models.PixStatusFailed, pix.Status)
}

func TestHandleLifetimeCompletedForUser(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	repo.addUser(1, "alice@example.com")

	ev := LifetimeCompletedEvent{
		ProviderPaymentIntentID: "pi_life_1",
		CheckoutSessionID:       "cs_life",
		UserID:                  1,
		Email:                   "alice@example.com",
		AmountCents:             19900,
		Currency:                "brl",
		PaymentStatus:           "paid",
	}
	require.NoError(t, svc.HandleLifetimeCompleted(context.Background(), ev))

	plan, status := repo.profileState(1)
	assert.Equal(t, "lifetime", plan)
	assert.Equal(t, models.ProfileSubscriptionActive, status)
	assert.Equal(t, 1, notifier.purchaseCount())
	assert.Equal(t, 1, notifier.companionCount())

	require.NoError(t, svc.HandleLifetimeCompleted(context.Background(), ev))
	assert.Equal(t, 1, notifier.purchaseCount())
}

func TestHandleLifetimeCompletedRetryFinishesInterruptedGrant(t *testing.T) {
	svc, repo, notifier := newTestService(t)
	repo.addUser(1, "alice@example.com")

	// First delivery inserted the purchase, then died before completing it.
	userID := uint(1)
	_, err := repo.CreateLifetimePurchaseIfNotExists(&models.LifetimePurchase{
		UserID:                  &userID,
		Email:                   "alice@example.com",
		Provider:                models.PaymentProviderStripe,
		ProviderPaymentIntentID: "pi_life_1",
		Status:                  models.LifetimeStatusPending,
	})
	require.NoError(t, err)

	require.NoError(t, svc.HandleLifetimeCompleted(context.Background(), LifetimeCompletedEvent{
		ProviderPaymentIntentID: "pi_life_1",
		UserID:                  1,
		Email:                   "alice@example.com",
		AmountCents:             19900,
		PaymentStatus:           "paid",
	}))

	lp, err := repo.FindLifetimePurchaseByPaymentIntent("pi_life_1")
	require.NoError(t, err)
	assert.Equal(t, models.LifetimeStatusCompleted, lp.Status)
	plan, _ := repo.profileState(1)
	assert.Equal(t, "lifetime", plan)
	assert.Equal(t, 1, notifier.purchaseCount())
}

func TestHandleLifetimeCompletedGuestParksPurchase(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	require.NoError(t, svc.HandleLifetimeCompleted(context.Background(), LifetimeCompletedEvent{
		ProviderPaymentIntentID: "pi_life_2",
		Email:                   "guest@example.com",
		AmountCents:             19900,
		PaymentStatus:           "paid",
	}))

	lp, err := repo.FindLifetimePurchaseByPaymentIntent("pi_life_2")
	require.NoError(t, err)
	assert.Nil(t, lp.UserID)
	assert.Equal(t, models.LifetimeStatusCompleted, lp.Status)
	assert.Equal(t, 0, notifier.purchaseCount(), "no one to notify until the account exists")
}
