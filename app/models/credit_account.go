package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreditAccount is the per-user credit balance. Created lazily on the first
// grant, settings update or checkout. Balance may legally go negative when a
// payment is refunded after the credits were already spent.
type CreditAccount struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	UserID             uint             `gorm:"not null;uniqueIndex:ux_credit_accounts_user_id" json:"user_id"`
	Balance            int64            `gorm:"not null;default:0" json:"balance"`
	TotalPurchased     int64            `gorm:"not null;default:0" json:"total_purchased"`
	TotalUsed          int64            `gorm:"not null;default:0" json:"total_used"`
	AutoTopupEnabled   bool             `gorm:"not null;default:false" json:"auto_topup_enabled"`
	AutoTopupThreshold *int64           `gorm:"default:null" json:"auto_topup_threshold,omitempty"`
	AutoTopupAmount    *decimal.Decimal `gorm:"type:decimal(12,2);default:null" json:"auto_topup_amount,omitempty"`
	ExternalCustomerID string           `gorm:"type:varchar(191);default:null;index" json:"external_customer_id,omitempty"`
	CreatedAt          time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// AutoTopupConfigured reports whether auto-topup is switched on and both
// threshold and amount are set.
func (a *CreditAccount) AutoTopupConfigured() bool {
	return a.AutoTopupEnabled && a.AutoTopupThreshold != nil && a.AutoTopupAmount != nil
}

// GetOrCreateCreditAccount loads the account for a user, creating an empty one
// when none exists yet.
func GetOrCreateCreditAccount(db *gorm.DB, userID uint) (*CreditAccount, error) {
	var account CreditAccount
	err := db.Where("user_id = ?", userID).First(&account).Error
	if err == nil {
		return &account, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	account = CreditAccount{UserID: userID}
	if err := db.Create(&account).Error; err != nil {
		// Concurrent creation can race on the unique user index; re-read.
		if rerr := db.Where("user_id = ?", userID).First(&account).Error; rerr == nil {
			return &account, nil
		}
		return nil, err
	}
	return &account, nil
}
