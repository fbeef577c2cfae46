package models

import "time"

// PendingGuestSubscription is a subscription-shaped row created when the
// buyer had no account at checkout time. The buyer email is the linking key.
// LinkedUserID/LinkedAt are written exactly once by the guest linking
// resolver; a linked row is inert and never considered again.
type PendingGuestSubscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	Email                  string     `gorm:"type:varchar(200);not null;index" json:"email"`
	Provider               string     `gorm:"type:varchar(20);not null;default:'stripe';index:ux_pending_guest_subs_provider_subid,unique,priority:1" json:"provider"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;index:ux_pending_guest_subs_provider_subid,unique,priority:2" json:"provider_subscription_id"`
	ProviderCustomerID     string     `gorm:"type:varchar(191)" json:"provider_customer_id"`
	CheckoutSessionID      string     `gorm:"type:varchar(191);index" json:"checkout_session_id"`
	PlanRef                string     `gorm:"type:varchar(191);not null" json:"plan_ref"`
	PlanType               string     `gorm:"type:varchar(50);not null;default:'pro'" json:"plan_type"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'pending'" json:"status"`
	AmountCents            int64      `gorm:"not null;default:0" json:"amount_cents"`
	Currency               string     `gorm:"type:varchar(3);not null;default:'brl'" json:"currency"`
	IncludesWhatsApp       bool       `gorm:"default:false" json:"includes_whatsapp"`
	LinkedUserID           *uint      `gorm:"index" json:"linked_user_id,omitempty"`
	LinkedAt               *time.Time `gorm:"type:timestamp;default:null" json:"linked_at,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsLinked reports whether the row was already consumed by the resolver.
func (p *PendingGuestSubscription) IsLinked() bool {
	return p.LinkedUserID != nil
}
