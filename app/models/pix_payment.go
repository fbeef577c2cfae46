package models

import "time"

const (
	PixStatusPending = "pending"
	PixStatusPaid    = "paid"
	PixStatusFailed  = "failed"
	PixStatusExpired = "expired"
)

// PixPayment tracks a single PIX (instant payment) attempt. A row is created
// when the QR code is issued and is terminated by payment confirmation,
// failure or expiry - whichever comes first. Terminal states are never
// revisited.
type PixPayment struct {
	ID                      uint       `gorm:"primaryKey" json:"id"`
	UserID                  *uint      `gorm:"index" json:"user_id,omitempty"`
	Email                   string     `gorm:"type:varchar(200)" json:"email"`
	Provider                string     `gorm:"type:varchar(20);not null;default:'stripe';index:ux_pix_payments_provider_intent,unique,priority:1" json:"provider"`
	ProviderPaymentIntentID string     `gorm:"type:varchar(191);not null;index:ux_pix_payments_provider_intent,unique,priority:2" json:"provider_payment_intent_id"`
	PlanType                string     `gorm:"type:varchar(50);not null;default:'pro'" json:"plan_type"`
	AmountCents             int64      `gorm:"not null;default:0" json:"amount_cents"`
	Currency                string     `gorm:"type:varchar(3);not null;default:'brl'" json:"currency"`
	Status                  string     `gorm:"type:varchar(32);not null;default:'pending';index" json:"status"`
	ExpiresAt               time.Time  `gorm:"type:timestamp;not null;index" json:"expires_at"`
	PaidAt                  *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt               time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsTerminal reports whether the payment reached a final state.
func (p *PixPayment) IsTerminal() bool {
	switch p.Status {
	case PixStatusPaid, PixStatusFailed, PixStatusExpired:
		return true
	default:
		return false
	}
}
