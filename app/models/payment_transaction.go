package models

import "time"

const (
	TransactionStatusPaid   = "paid"
	TransactionStatusFailed = "failed"
)

// PaymentTransaction records one successful invoice/charge. Rows are
// append-only; the unique provider invoice id makes replayed invoice
// webhooks a no-op insert.
type PaymentTransaction struct {
	ID                      uint       `gorm:"primaryKey" json:"id"`
	SubscriptionID          *uint      `gorm:"index" json:"subscription_id,omitempty"`
	UserID                  *uint      `gorm:"index" json:"user_id,omitempty"`
	Provider                string     `gorm:"type:varchar(20);not null;default:'stripe';index:ux_payment_transactions_provider_invoice,unique,priority:1" json:"provider"`
	ProviderInvoiceID       string     `gorm:"type:varchar(191);not null;index:ux_payment_transactions_provider_invoice,unique,priority:2" json:"provider_invoice_id"`
	ProviderPaymentIntentID string     `gorm:"type:varchar(191);index" json:"provider_payment_intent_id"`
	ProviderChargeID        string     `gorm:"type:varchar(191)" json:"provider_charge_id"`
	Status                  string     `gorm:"type:varchar(32);not null;default:'paid'" json:"status"`
	AmountCents             int64      `gorm:"not null;default:0" json:"amount_cents"`
	Currency                string     `gorm:"type:varchar(3);not null;default:'brl'" json:"currency"`
	PaymentMethod           string     `gorm:"type:varchar(32)" json:"payment_method"`
	PaidAt                  *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	CreatedAt               time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
