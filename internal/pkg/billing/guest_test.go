package billing

import (
	"context"
	"testing"

	"github.com/andreluizvr/textora/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkGuestPurchasesActivatesPaidSubscription(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	require.NoError(t, svc.HandleCheckoutCompleted(context.Background(), CheckoutCompletedEvent{
		Email:                  "guest@example.com",
		IsGuestCheckout:        true,
		ProviderSubscriptionID: "sub_guest",
		PlanRef:                "price_pro",
		PlanType:               "pro",
		PaymentStatus:          "paid",
		IncludesWhatsApp:       true,
	}))

	repo.addUser(5, "guest@example.com")
	require.NoError(t, svc.LinkGuestPurchases(context.Background(), 5, "guest@example.com"))

	sub, err := repo.FindSubscriptionByProviderID("sub_guest")
	require.NoError(t, err)
	require.NotNil(t, sub.UserID)
	assert.Equal(t, uint(5), *sub.UserID)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)

	plan, status := repo.profileState(5)
	assert.Equal(t, "pro", plan)
	assert.Equal(t, models.ProfileSubscriptionActive, status)
	assert.Equal(t, 1, notifier.purchaseCount())
	assert.Equal(t, 1, notifier.companionCount())
}

func TestLinkGuestPurchasesIsExactlyOnce(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	require.NoError(t, svc.HandleCheckoutCompleted(context.Background(), CheckoutCompletedEvent{
		Email:                  "guest@example.com",
		IsGuestCheckout:        true,
		ProviderSubscriptionID: "sub_guest",
		PlanRef:                "price_pro",
		PlanType:               "pro",
		PaymentStatus:          "paid",
	}))
	repo.addUser(5, "guest@example.com")

	// Registration, then a login shortly after: the second pass finds the
	// row already claimed and does nothing.
	require.NoError(t, svc.LinkGuestPurchases(context.Background(), 5, "guest@example.com"))
	require.NoError(t, svc.LinkGuestPurchases(context.Background(), 5, "guest@example.com"))

	assert.Equal(t, 1, notifier.purchaseCount())
	rows, err := repo.FindPendingGuestSubscriptionsByEmail("guest@example.com")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestLinkGuestPurchasesUnpaidStaysPending(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	require.NoError(t, svc.HandleCheckoutCompleted(context.Background(), CheckoutCompletedEvent{
		Email:                  "guest@example.com",
		IsGuestCheckout:        true,
		ProviderSubscriptionID: "sub_guest",
		PlanRef:                "price_pro",
		PlanType:               "pro",
		PaymentStatus:          "requires_payment",
	}))
	repo.addUser(5, "guest@example.com")
	require.NoError(t, svc.LinkGuestPurchases(context.Background(), 5, "guest@example.com"))

	// Linked but not activated: the invoice webhook finishes the job.
	sub, err := repo.FindSubscriptionByProviderID("sub_guest")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusPending, sub.Status)
	plan, _ := repo.profileState(5)
	assert.Equal(t, "free", plan)
	assert.Equal(t, 0, notifier.purchaseCount())
}

func TestLinkGuestPurchasesLifetime(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	require.NoError(t, svc.HandleLifetimeCompleted(context.Background(), LifetimeCompletedEvent{
		ProviderPaymentIntentID: "pi_life_9",
		Email:                   "guest@example.com",
		AmountCents:             19900,
		PaymentStatus:           "paid",
	}))

	repo.addUser(5, "guest@example.com")
	require.NoError(t, svc.LinkGuestPurchases(context.Background(), 5, "guest@example.com"))

	lp, err := repo.FindLifetimePurchaseByPaymentIntent("pi_life_9")
	require.NoError(t, err)
	require.NotNil(t, lp.UserID)
	assert.Equal(t, uint(5), *lp.UserID)

	plan, status := repo.profileState(5)
	assert.Equal(t, "lifetime", plan)
	assert.Equal(t, models.ProfileSubscriptionActive, status)
	assert.Equal(t, 1, notifier.purchaseCount())
}

func TestLinkGuestPurchasesUnpaidLifetimeStaysPending(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	require.NoError(t, svc.HandleLifetimeCompleted(context.Background(), LifetimeCompletedEvent{
		ProviderPaymentIntentID: "pi_life_9",
		Email:                   "guest@example.com",
		AmountCents:             19900,
		PaymentStatus:           "unpaid",
	}))

	repo.addUser(5, "guest@example.com")
	require.NoError(t, svc.LinkGuestPurchases(context.Background(), 5, "guest@example.com"))

	// Claimed for the account but not granted: the payment webhook
	// finishes the job once the provider confirms.
	lp, err := repo.FindLifetimePurchaseByPaymentIntent("pi_life_9")
	require.NoError(t, err)
	require.NotNil(t, lp.UserID)
	assert.Equal(t, uint(5), *lp.UserID)
	assert.Equal(t, models.LifetimeStatusPending, lp.Status)

	plan, _ := repo.profileState(5)
	assert.NotEqual(t, "lifetime", plan)
	assert.Equal(t, 0, notifier.purchaseCount())
}

func TestLinkGuestPurchasesLosingClaimIsSilent(t *testing.T) {
	svc, repo, notifier := newTestService(t)

	require.NoError(t, svc.HandleCheckoutCompleted(context.Background(), CheckoutCompletedEvent{
		Email:                  "guest@example.com",
		IsGuestCheckout:        true,
		ProviderSubscriptionID: "sub_guest",
		PlanRef:                "price_pro",
		PlanType:               "pro",
		PaymentStatus:          "paid",
	}))
	repo.addUser(5, "guest@example.com")
	repo.addUser(6, "guest@example.com")

	require.NoError(t, svc.LinkGuestPurchases(context.Background(), 5, "guest@example.com"))
	require.NoError(t, svc.LinkGuestPurchases(context.Background(), 6, "guest@example.com"))

	// Exactly one account got the purchase.
	sub, err := repo.FindSubscriptionByProviderID("sub_guest")
	require.NoError(t, err)
	require.NotNil(t, sub.UserID)
	assert.Equal(t, uint(5), *sub.UserID)
	assert.Equal(t, 1, notifier.purchaseCount())
}

func TestLinkGuestPurchasesNoRowsIsNoop(t *testing.T) {
	svc, repo, _ := newTestService(t)
	repo.addUser(5, "nobody@example.com")
	assert.NoError(t, svc.LinkGuestPurchases(context.Background(), 5, "nobody@example.com"))
}
