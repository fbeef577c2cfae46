package repository

import (
	"time"

	"github.com/andreluizvr/textora/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.Profile, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
	Search(query string) ([]models.User, error)
	GetWithBilling(offset, limit int) ([]UserWithBilling, error)
}

// BillingRepository defines read access for billing admin views. Writes go
// through the billing service exclusively.
type BillingRepository interface {
	ListSubscriptions(offset, limit int) ([]SubscriptionWithUser, error)
	CountSubscriptionsByStatus() (map[string]int64, error)
	ListRecentTransactions(limit int) ([]models.PaymentTransaction, error)
	ListRecentWebhookEvents(limit int) ([]models.WebhookEvent, error)
	ListUnprocessedWebhookEvents(olderThan time.Time, limit int) ([]models.WebhookEvent, error)
	ListPendingGuestSubscriptions(limit int) ([]models.PendingGuestSubscription, error)
	ListLifetimePurchases(offset, limit int) ([]models.LifetimePurchase, error)
	ListExpiringPixPayments(within time.Duration, limit int) ([]models.PixPayment, error)
}

// QueueRepository defines the interface for cache/queue operations
type QueueRepository interface {
	GetAllKeys() ([]string, error)
	GetValue(key string) (string, error)
	GetTTL(key string) (time.Duration, error)
	DeleteKey(key string) (int64, error)
	GetListLength(key string) (int64, error)
	FindKeysByPatterns(patterns []string) ([]string, error)
	DeleteKeys(keys []string) (int64, error)
}

// UserWithBilling pairs a user with their current plan state
type UserWithBilling struct {
	User    models.User
	Profile models.Profile
}

// SubscriptionWithUser pairs a subscription with its owning user (nil for guests)
type SubscriptionWithUser struct {
	Subscription models.Subscription
	User         *models.User
}

// Repositories struct holds all repository instances
type Repositories struct {
	User    UserRepository
	Billing BillingRepository
	Queue   QueueRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepository(db),
		Billing: NewBillingRepository(db),
		Queue:   NewQueueRepository(),
	}
}
