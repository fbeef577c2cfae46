package repository

import (
	"time"

	"github.com/andreluizvr/textora/app/models"
	"gorm.io/gorm"
)

// billingRepository implements the BillingRepository interface
type billingRepository struct {
	db *gorm.DB
}

// NewBillingRepository creates a new billing repository instance
func NewBillingRepository(db *gorm.DB) BillingRepository {
	return &billingRepository{db: db}
}

// ListSubscriptions retrieves a paginated list of subscriptions with their owners
func (r *billingRepository) ListSubscriptions(offset, limit int) ([]SubscriptionWithUser, error) {
	var subs []models.Subscription
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&subs).Error
	if err != nil {
		return nil, err
	}

	result := make([]SubscriptionWithUser, 0, len(subs))
	for _, sub := range subs {
		entry := SubscriptionWithUser{Subscription: sub}
		if sub.UserID != nil {
			var user models.User
			if err := r.db.First(&user, *sub.UserID).Error; err == nil {
				entry.User = &user
			}
		}
		result = append(result, entry)
	}
	return result, nil
}

// CountSubscriptionsByStatus returns subscription counts grouped by status
func (r *billingRepository) CountSubscriptionsByStatus() (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.Model(&models.Subscription{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// ListRecentTransactions returns the most recent payment transactions
func (r *billingRepository) ListRecentTransactions(limit int) ([]models.PaymentTransaction, error) {
	var txs []models.PaymentTransaction
	err := r.db.Order("created_at DESC").Limit(limit).Find(&txs).Error
	return txs, err
}

// ListRecentWebhookEvents returns the most recent webhook events
func (r *billingRepository) ListRecentWebhookEvents(limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.Order("created_at DESC").Limit(limit).Find(&events).Error
	return events, err
}

// ListUnprocessedWebhookEvents returns events received before the given time
// that never finished processing. These indicate handler failures that
// exhausted provider retries and need operator attention.
func (r *billingRepository) ListUnprocessedWebhookEvents(olderThan time.Time, limit int) ([]models.WebhookEvent, error) {
	var events []models.WebhookEvent
	err := r.db.Where("processed_at IS NULL AND created_at < ?", olderThan).
		Order("created_at ASC").Limit(limit).Find(&events).Error
	return events, err
}

// ListPendingGuestSubscriptions returns guest purchases still waiting for an account
func (r *billingRepository) ListPendingGuestSubscriptions(limit int) ([]models.PendingGuestSubscription, error) {
	var rows []models.PendingGuestSubscription
	err := r.db.Where("linked_user_id IS NULL").
		Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// ListLifetimePurchases retrieves a paginated list of lifetime purchases
func (r *billingRepository) ListLifetimePurchases(offset, limit int) ([]models.LifetimePurchase, error) {
	var rows []models.LifetimePurchase
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&rows).Error
	return rows, err
}

// ListExpiringPixPayments returns pending PIX payments whose window closes
// within the given duration
func (r *billingRepository) ListExpiringPixPayments(within time.Duration, limit int) ([]models.PixPayment, error) {
	deadline := time.Now().Add(within)
	var rows []models.PixPayment
	err := r.db.Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", models.PixStatusPending, deadline).
		Order("expires_at ASC").Limit(limit).Find(&rows).Error
	return rows, err
}
