package billing

import (
	"context"
	"testing"
	"time"

	"github.com/andreluizvr/textora/app/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterPixPayment(t *testing.T) {
	svc, _, _ := newTestService(t)

	p, err := svc.RegisterPixPayment(context.Background(), 1, "Alice@Example.com", "pi_pix_1", "pro", 2990, "BRL")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.Equal(t, "brl", p.Currency)
	assert.Equal(t, models.PixStatusPending, p.Status)
	assert.WithinDuration(t, time.Now().Add(PixExpiry), p.ExpiresAt, 5*time.Second)

	// Re-registration returns the stored row instead of failing.
	again, err := svc.RegisterPixPayment(context.Background(), 1, "alice@example.com", "pi_pix_1", "pro", 2990, "brl")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
}

func TestRegisterPixPaymentValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.RegisterPixPayment(context.Background(), 1, "a@b.com", "", "pro", 2990, "brl")
	assert.Error(t, err)
	_, err = svc.RegisterPixPayment(context.Background(), 1, "a@b.com", "pi_x", "pro", 0, "brl")
	assert.Error(t, err)
}

func TestExpirePixPayments(t *testing.T) {
	svc, repo, _ := newTestService(t)
	_, err := svc.RegisterPixPayment(context.Background(), 1, "a@b.com", "pi_old", "pro", 2990, "brl")
	require.NoError(t, err)
	_, err = svc.RegisterPixPayment(context.Background(), 1, "a@b.com", "pi_fresh", "pro", 2990, "brl")
	require.NoError(t, err)

	repo.mu.Lock()
	for _, p := range repo.pixPayments {
		if p.ProviderPaymentIntentID == "pi_old" {
			p.ExpiresAt = time.Now().Add(-time.Minute)
		}
	}
	repo.mu.Unlock()

	n, err := repo.ExpirePixPaymentsBefore(time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	old, err := repo.FindPixPaymentByIntent("pi_old")
	require.NoError(t, err)
	assert.Equal(t, models.PixStatusExpired, old.Status)
	fresh, err := repo.FindPixPaymentByIntent("pi_fresh")
	require.NoError(t, err)
	assert.Equal(t, models.PixStatusPending, fresh.Status)

	// A success delivery after expiry is ignored.
	require.NoError(t, svc.HandlePixSucceeded(context.Background(), PixSucceededEvent{ProviderPaymentIntentID: "pi_old", UserID: 1}))
	old, err = repo.FindPixPaymentByIntent("pi_old")
	require.NoError(t, err)
	assert.Equal(t, models.PixStatusExpired, old.Status)
}

func TestPixExpirySweeperStartStop(t *testing.T) {
	svc, repo, _ := newTestService(t)
	_, err := svc.RegisterPixPayment(context.Background(), 1, "a@b.com", "pi_old", "pro", 2990, "brl")
	require.NoError(t, err)
	repo.mu.Lock()
	for _, p := range repo.pixPayments {
		p.ExpiresAt = time.Now().Add(-time.Minute)
	}
	repo.mu.Unlock()

	sweeper := NewPixExpirySweeper(svc, 10*time.Millisecond)
	sweeper.Start()
	defer sweeper.Stop()

	require.Eventually(t, func() bool {
		p, err := repo.FindPixPaymentByIntent("pi_old")
		return err == nil && p.Status == models.PixStatusExpired
	}, time.Second, 10*time.Millisecond)
}
