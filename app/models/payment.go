package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentStatusSucceeded         = "succeeded"
	PaymentStatusPartiallyRefunded = "partially_refunded"
	PaymentStatusRefunded          = "refunded"
)

// Payment records one successful provider payment. The unique index on
// ExternalPaymentID is the sole idempotency key for credit grants: a repeated
// webhook delivery for the same provider order must never insert a second row.
type Payment struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	UserID            uint            `gorm:"not null;index" json:"user_id"`
	ExternalPaymentID string          `gorm:"type:varchar(191);not null;uniqueIndex:ux_payments_external_payment_id" json:"external_payment_id"`
	OriginalAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"original_amount"`
	Currency          string          `gorm:"type:varchar(8);not null;default:'USD'" json:"currency"`
	CreditsGranted    int64           `gorm:"not null" json:"credits_granted"`
	RefundedAmount    decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"refunded_amount"`
	Status            string          `gorm:"type:varchar(32);not null;default:'succeeded';index" json:"status"`
	CheckoutID        string          `gorm:"type:varchar(191);default:null;index" json:"checkout_id,omitempty"`
	CreatedAt         time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsFullyRefunded reports whether the cumulative refunded amount covers the
// original payment.
func (p *Payment) IsFullyRefunded() bool {
	return p.RefundedAmount.GreaterThanOrEqual(p.OriginalAmount)
}
