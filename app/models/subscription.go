package models

import "time"

const (
	SubscriptionStatusPending  = "pending"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// Payment provider constants used across billing-related models.
const (
	PaymentProviderStripe = "stripe"
)

// Subscription mirrors a provider subscription and maps it to an internal
// plan used by entitlements. UserID is nullable: guest checkouts produce a
// PendingGuestSubscription first and the real row is only bound to a user
// once the guest linking resolver has run.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 *uint      `gorm:"index" json:"user_id,omitempty"`
	Provider               string     `gorm:"type:varchar(20);not null;default:'stripe';index:ux_subscriptions_provider_subid,unique,priority:1" json:"provider"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;index:ux_subscriptions_provider_subid,unique,priority:2" json:"provider_subscription_id"`
	ProviderCustomerID     string     `gorm:"type:varchar(191);index" json:"provider_customer_id"`
	CheckoutSessionID      string     `gorm:"type:varchar(191);index" json:"checkout_session_id"`
	PlanRef                string     `gorm:"type:varchar(191);not null" json:"plan_ref"`
	PlanType               string     `gorm:"type:varchar(50);not null;default:'pro'" json:"plan_type"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `gorm:"default:false" json:"cancel_at_period_end"`
	AmountCents            int64      `gorm:"not null;default:0" json:"amount_cents"`
	Currency               string     `gorm:"type:varchar(3);not null;default:'brl'" json:"currency"`
	IncludesWhatsApp       bool       `gorm:"default:false" json:"includes_whatsapp"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the subscription reached its final state.
func (s *Subscription) IsTerminal() bool {
	return s.Status == SubscriptionStatusCanceled
}
