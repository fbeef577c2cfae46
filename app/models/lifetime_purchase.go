package models

import "time"

const (
	LifetimeStatusPending   = "pending"
	LifetimeStatusCompleted = "completed"
)

// LifetimePurchase records a one-time (non-recurring) purchase. The unique
// provider payment intent id is the webhook-replay dedup key. UserID is
// nullable for guest purchases until the linking resolver binds the row.
type LifetimePurchase struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	UserID                  *uint     `gorm:"index" json:"user_id,omitempty"`
	Email                   string    `gorm:"type:varchar(200);index" json:"email"`
	Provider                string    `gorm:"type:varchar(20);not null;default:'stripe';index:ux_lifetime_purchases_provider_intent,unique,priority:1" json:"provider"`
	ProviderPaymentIntentID string    `gorm:"type:varchar(191);not null;index:ux_lifetime_purchases_provider_intent,unique,priority:2" json:"provider_payment_intent_id"`
	CheckoutSessionID       string    `gorm:"type:varchar(191);index" json:"checkout_session_id"`
	AmountCents             int64     `gorm:"not null;default:0" json:"amount_cents"`
	Currency                string    `gorm:"type:varchar(3);not null;default:'brl'" json:"currency"`
	Status                  string    `gorm:"type:varchar(32);not null;default:'pending'" json:"status"`
	PromoCode               string    `gorm:"type:varchar(100)" json:"promo_code"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
