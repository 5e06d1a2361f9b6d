package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	CheckoutStatusPending   = "pending"
	CheckoutStatusCompleted = "completed"
)

// CheckoutSession tracks one purchase attempt (manual or auto-topup) from
// checkout creation until the matching payment webhook arrives. Redundant
// pending sessions are harmless; only completed checkouts cost the user money.
type CheckoutSession struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	UserID             uint            `gorm:"not null;index" json:"user_id"`
	ExternalCheckoutID string          `gorm:"type:varchar(191);not null;uniqueIndex:ux_checkout_sessions_external_id" json:"external_checkout_id"`
	ProductID          string          `gorm:"type:varchar(191);not null" json:"product_id"`
	CheckoutURL        string          `gorm:"type:varchar(512);not null" json:"checkout_url"`
	Amount             decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status             string          `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	AutoTopup          bool            `gorm:"not null;default:false" json:"auto_topup"`
	CreatedAt          time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt          time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}
