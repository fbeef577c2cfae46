package billing

import (
	"time"

	"github.com/andreluizvr/textora/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides the ledger operations used by the billing service. All
// cross-row consistency rests on the unique indexes (dedup) and the
// conditional updates (compare-and-set) implemented here.
type Repository interface {
	// Dedup lookups by external id
	FindSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error)
	FindSubscriptionByCheckoutSession(checkoutSessionID string) (*models.Subscription, error)
	FindSubscriptionByID(id uint) (*models.Subscription, error)
	FindTransactionByInvoiceID(providerInvoiceID string) (*models.PaymentTransaction, error)
	FindTransactionByPaymentIntent(providerPaymentIntentID string) (*models.PaymentTransaction, error)
	FindLifetimePurchaseByPaymentIntent(providerPaymentIntentID string) (*models.LifetimePurchase, error)
	FindPixPaymentByIntent(providerPaymentIntentID string) (*models.PixPayment, error)
	HasPaidTransactionForSubscription(subscriptionID uint) (bool, error)

	// Ledger inserts
	UpsertSubscription(sub *models.Subscription) error
	CreateTransactionIfNotExists(tx *models.PaymentTransaction) (bool, error)
	CreatePendingGuestSubscription(p *models.PendingGuestSubscription) error
	CreateLifetimePurchaseIfNotExists(lp *models.LifetimePurchase) (bool, error)
	CreatePixPayment(p *models.PixPayment) error

	// Compare-and-set state transitions
	UpdateSubscriptionStatusCAS(id uint, target string, allowedFrom []string) (bool, error)
	UpdatePixStatusCAS(providerPaymentIntentID, target string, allowedFrom []string) (bool, error)
	CompleteLifetimePurchaseCAS(id uint) (bool, error)
	ExpirePixPaymentsBefore(cutoff time.Time) (int64, error)

	// Profile plan state (only written through the activation functions)
	GetOrCreateProfile(userID uint) (*models.Profile, error)
	UpdateProfileStateCAS(userID uint, planType, subscriptionStatus string) (bool, error)
	ListSubscriptionsByUser(userID uint) ([]models.Subscription, error)
	ListLifetimePurchasesByUser(userID uint) ([]models.LifetimePurchase, error)

	// Guest linking
	FindPendingGuestSubscriptionsByEmail(email string) ([]models.PendingGuestSubscription, error)
	ClaimPendingGuestSubscription(id, userID uint) (bool, error)
	FindUnlinkedLifetimePurchasesByEmail(email string) ([]models.LifetimePurchase, error)
	ClaimLifetimePurchase(id, userID uint) (bool, error)
	FindUserByEmail(email string) (*models.User, error)
	FindUserByID(id uint) (*models.User, error)

	// Webhook event dedup
	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindSubscriptionByProviderID(providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("provider = ? AND provider_subscription_id = ?", models.PaymentProviderStripe, providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) FindSubscriptionByCheckoutSession(checkoutSessionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("checkout_session_id = ?", checkoutSessionID).First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) FindSubscriptionByID(id uint) (*models.Subscription, error) {
	var sub models.Subscription
	if err := r.db.First(&sub, id).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) FindTransactionByInvoiceID(providerInvoiceID string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.Where("provider = ? AND provider_invoice_id = ?", models.PaymentProviderStripe, providerInvoiceID).
		First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *gormRepository) FindTransactionByPaymentIntent(providerPaymentIntentID string) (*models.PaymentTransaction, error) {
	var tx models.PaymentTransaction
	err := r.db.Where("provider_payment_intent_id = ?", providerPaymentIntentID).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *gormRepository) HasPaidTransactionForSubscription(subscriptionID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.PaymentTransaction{}).
		Where("subscription_id = ? AND status = ?", subscriptionID, models.TransactionStatusPaid).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *gormRepository) FindLifetimePurchaseByPaymentIntent(providerPaymentIntentID string) (*models.LifetimePurchase, error) {
	var lp models.LifetimePurchase
	err := r.db.Where("provider = ? AND provider_payment_intent_id = ?", models.PaymentProviderStripe, providerPaymentIntentID).
		First(&lp).Error
	if err != nil {
		return nil, err
	}
	return &lp, nil
}

func (r *gormRepository) FindPixPaymentByIntent(providerPaymentIntentID string) (*models.PixPayment, error) {
	var p models.PixPayment
	err := r.db.Where("provider = ? AND provider_payment_intent_id = ?", models.PaymentProviderStripe, providerPaymentIntentID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// UpsertSubscription inserts or refreshes a subscription row keyed by the
// provider subscription id. Status is intentionally NOT part of the update
// column list: status only moves through the CAS transitions.
func (r *gormRepository) UpsertSubscription(sub *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_subscription_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"provider_customer_id",
			"checkout_session_id",
			"plan_ref",
			"plan_type",
			"current_period_end",
			"cancel_at_period_end",
			"amount_cents",
			"currency",
			"includes_whatsapp",
			"updated_at",
		}),
	}).Create(sub).Error; err != nil {
		return err
	}

	// Ensure ID and status reflect the stored row after upsert.
	return r.db.Where("provider = ? AND provider_subscription_id = ?", sub.Provider, sub.ProviderSubscriptionID).
		First(sub).Error
}

func (r *gormRepository) CreateTransactionIfNotExists(tx *models.PaymentTransaction) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_invoice_id"},
		},
		DoNothing: true,
	}).Create(tx)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) CreatePendingGuestSubscription(p *models.PendingGuestSubscription) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_subscription_id"},
		},
		DoNothing: true,
	}).Create(p).Error
}

func (r *gormRepository) CreateLifetimePurchaseIfNotExists(lp *models.LifetimePurchase) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_payment_intent_id"},
		},
		DoNothing: true,
	}).Create(lp)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) CreatePixPayment(p *models.PixPayment) error {
	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_payment_intent_id"},
		},
		DoNothing: true,
	}).Create(p).Error
}

// UpdateSubscriptionStatusCAS flips the status in a single conditional
// UPDATE. It reports false when no allowed source state matched, which the
// caller disambiguates into "already there" vs "superseded by cancel".
func (r *gormRepository) UpdateSubscriptionStatusCAS(id uint, target string, allowedFrom []string) (bool, error) {
	res := r.db.Model(&models.Subscription{}).
		Where("id = ? AND status IN ?", id, allowedFrom).
		Update("status", target)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) UpdatePixStatusCAS(providerPaymentIntentID, target string, allowedFrom []string) (bool, error) {
	updates := map[string]interface{}{"status": target}
	if target == models.PixStatusPaid {
		now := time.Now()
		updates["paid_at"] = &now
	}
	res := r.db.Model(&models.PixPayment{}).
		Where("provider = ? AND provider_payment_intent_id = ? AND status IN ?",
			models.PaymentProviderStripe, providerPaymentIntentID, allowedFrom).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) CompleteLifetimePurchaseCAS(id uint) (bool, error) {
	res := r.db.Model(&models.LifetimePurchase{}).
		Where("id = ? AND status = ?", id, models.LifetimeStatusPending).
		Update("status", models.LifetimeStatusCompleted)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) ExpirePixPaymentsBefore(cutoff time.Time) (int64, error) {
	res := r.db.Model(&models.PixPayment{}).
		Where("status = ? AND expires_at < ?", models.PixStatusPending, cutoff).
		Update("status", models.PixStatusExpired)
	return res.RowsAffected, res.Error
}

func (r *gormRepository) GetOrCreateProfile(userID uint) (*models.Profile, error) {
	return models.GetOrCreateProfile(r.db, userID)
}

// UpdateProfileStateCAS writes the derived plan state in a single
// conditional UPDATE. Admin profiles are never touched, and an update that
// finds the row already in the target state affects no rows (success-as-no-op).
func (r *gormRepository) UpdateProfileStateCAS(userID uint, planType, subscriptionStatus string) (bool, error) {
	res := r.db.Model(&models.Profile{}).
		Where("user_id = ? AND plan_type <> ? AND (plan_type <> ? OR subscription_status <> ?)",
			userID, "admin", planType, subscriptionStatus).
		Updates(map[string]interface{}{
			"plan_type":           planType,
			"subscription_status": subscriptionStatus,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Find(&subs).Error
	return subs, err
}

func (r *gormRepository) ListLifetimePurchasesByUser(userID uint) ([]models.LifetimePurchase, error) {
	var lps []models.LifetimePurchase
	err := r.db.Where("user_id = ?", userID).Find(&lps).Error
	return lps, err
}

func (r *gormRepository) FindPendingGuestSubscriptionsByEmail(email string) ([]models.PendingGuestSubscription, error) {
	var rows []models.PendingGuestSubscription
	err := r.db.Where("email = ? AND linked_user_id IS NULL", email).Find(&rows).Error
	return rows, err
}

// ClaimPendingGuestSubscription consumes a pending row exactly once. The
// linked_user_id IS NULL guard makes a second registration with the same
// email find nothing left to claim.
func (r *gormRepository) ClaimPendingGuestSubscription(id, userID uint) (bool, error) {
	now := time.Now()
	res := r.db.Model(&models.PendingGuestSubscription{}).
		Where("id = ? AND linked_user_id IS NULL", id).
		Updates(map[string]interface{}{
			"linked_user_id": userID,
			"linked_at":      &now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) FindUnlinkedLifetimePurchasesByEmail(email string) ([]models.LifetimePurchase, error) {
	var rows []models.LifetimePurchase
	err := r.db.Where("email = ? AND user_id IS NULL", email).Find(&rows).Error
	return rows, err
}

func (r *gormRepository) ClaimLifetimePurchase(id, userID uint) (bool, error) {
	res := r.db.Model(&models.LifetimePurchase{}).
		Where("id = ? AND user_id IS NULL", id).
		Update("user_id", userID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormRepository) FindUserByEmail(email string) (*models.User, error) {
	var u models.User
	if err := r.db.Where("email = ?", email).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) FindUserByID(id uint) (*models.User, error) {
	var u models.User
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
