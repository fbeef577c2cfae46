package billing

import (
	"context"
	"testing"

	"github.com/andreluizvr/textora/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManualActivateSubscriptionByProviderID(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")
	sub := seedSubscription(t, repo, 1, "sub_123", "pro")
	seedPaidTransaction(t, repo, sub, "pi_1")

	profile, err := svc.ManualActivate(context.Background(), 1, "sub_123")
	require.NoError(t, err)
	assert.Equal(t, "pro", profile.PlanType)
	assert.Equal(t, models.ProfileSubscriptionActive, profile.SubscriptionStatus)
}

func TestManualActivateByCheckoutSession(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")
	userID := uint(1)
	sub := &models.Subscription{
		UserID:                 &userID,
		Provider:               models.PaymentProviderStripe,
		ProviderSubscriptionID: "sub_123",
		CheckoutSessionID:      "cs_abc",
		PlanRef:                "price_pro",
		PlanType:               "pro",
		Status:                 models.SubscriptionStatusPending,
	}
	require.NoError(t, repo.UpsertSubscription(sub))
	seedPaidTransaction(t, repo, sub, "pi_1")

	profile, err := svc.ManualActivate(context.Background(), 1, "cs_abc")
	require.NoError(t, err)
	assert.Equal(t, "pro", profile.PlanType)
}

func TestManualActivateIsIdempotent(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")
	sub := seedSubscription(t, repo, 1, "sub_123", "pro")
	seedPaidTransaction(t, repo, sub, "pi_1")

	_, err := svc.ManualActivate(context.Background(), 1, "sub_123")
	require.NoError(t, err)
	profile, err := svc.ManualActivate(context.Background(), 1, "sub_123")
	require.NoError(t, err)
	assert.Equal(t, models.ProfileSubscriptionActive, profile.SubscriptionStatus)
}

func TestManualActivatePixNotPaid(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")
	_, err := svc.RegisterPixPayment(context.Background(), 1, "alice@example.com", "pi_pix_1", "pro", 2990, "brl")
	require.NoError(t, err)

	_, err = svc.ManualActivate(context.Background(), 1, "pi_pix_1")
	assert.ErrorIs(t, err, ErrPaymentNotApproved)
}

func TestManualActivatePixPaid(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")
	_, err := svc.RegisterPixPayment(context.Background(), 1, "alice@example.com", "pi_pix_1", "pro", 2990, "brl")
	require.NoError(t, err)
	require.NoError(t, svc.HandlePixSucceeded(context.Background(), PixSucceededEvent{
		ProviderPaymentIntentID: "pi_pix_1",
		UserID:                  1,
		PlanType:                "pro",
		AmountCents:             2990,
	}))

	profile, err := svc.ManualActivate(context.Background(), 1, "pi_pix_1")
	require.NoError(t, err)
	assert.Equal(t, "pro", profile.PlanType)
	assert.Equal(t, models.ProfileSubscriptionActive, profile.SubscriptionStatus)
}

func TestManualActivateLinksGuestRowsFirst(t *testing.T) {
	svc, repo, _ := newTestService(t)

	require.NoError(t, svc.HandleCheckoutCompleted(context.Background(), CheckoutCompletedEvent{
		Email:                  "guest@example.com",
		IsGuestCheckout:        true,
		ProviderSubscriptionID: "sub_guest",
		PlanRef:                "price_pro",
		PlanType:               "pro",
		PaymentStatus:          "paid",
	}))
	repo.addUser(5, "guest@example.com")

	// The click on "activate now" arrives before the login-time linking ran.
	profile, err := svc.ManualActivate(context.Background(), 5, "sub_guest")
	require.NoError(t, err)
	assert.Equal(t, "pro", profile.PlanType)
	assert.Equal(t, models.ProfileSubscriptionActive, profile.SubscriptionStatus)
}

func TestManualActivateSomeoneElsesPurchase(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")
	repo.addUser(2, "bob@example.com")
	seedSubscription(t, repo, 1, "sub_123", "pro")

	_, err := svc.ManualActivate(context.Background(), 2, "sub_123")
	assert.ErrorIs(t, err, ErrNoLinkedUser)
}

func TestManualActivateUnknownPayment(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")
	_, err := svc.ManualActivate(context.Background(), 1, "pi_unknown")
	assert.ErrorIs(t, err, ErrPurchaseNotFound)
}

func TestManualActivateLifetime(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")
	userID := uint(1)
	lp := &models.LifetimePurchase{
		UserID:                  &userID,
		Email:                   "alice@example.com",
		Provider:                models.PaymentProviderStripe,
		ProviderPaymentIntentID: "pi_life_1",
		Status:                  models.LifetimeStatusCompleted,
	}
	_, err := repo.CreateLifetimePurchaseIfNotExists(lp)
	require.NoError(t, err)

	profile, err := svc.ManualActivate(context.Background(), 1, "pi_life_1")
	require.NoError(t, err)
	assert.Equal(t, "lifetime", profile.PlanType)
}

func TestManualActivateUnpaidSubscription(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")
	sub := seedSubscription(t, repo, 1, "sub_123", "pro")

	// No paid transaction on record, so the owner cannot self-grant the plan.
	_, err := svc.ManualActivate(context.Background(), 1, "sub_123")
	assert.ErrorIs(t, err, ErrPaymentNotApproved)
	assert.Equal(t, models.SubscriptionStatusPending, repo.subscriptionStatus(sub.ID))
}

func TestManualActivateUnpaidLifetime(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(1, "alice@example.com")
	userID := uint(1)
	lp := &models.LifetimePurchase{
		UserID:                  &userID,
		Email:                   "alice@example.com",
		Provider:                models.PaymentProviderStripe,
		ProviderPaymentIntentID: "pi_life_1",
		Status:                  models.LifetimeStatusPending,
	}
	_, err := repo.CreateLifetimePurchaseIfNotExists(lp)
	require.NoError(t, err)

	_, err = svc.ManualActivate(context.Background(), 1, "pi_life_1")
	assert.ErrorIs(t, err, ErrPaymentNotApproved)

	stored, err := repo.FindLifetimePurchaseByPaymentIntent("pi_life_1")
	require.NoError(t, err)
	assert.Equal(t, models.LifetimeStatusPending, stored.Status)
}
