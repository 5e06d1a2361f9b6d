package models

import "time"

const (
	LedgerTypePurchase = "purchase"
	LedgerTypeUsage    = "usage"
	LedgerTypeRefund   = "refund"
)

// LedgerTransaction is an append-only audit entry for a single signed balance
// change. Rows are never updated or deleted; the sum of all entries for a user
// reconciles with CreditAccount.Balance via offline audit tooling.
type LedgerTransaction struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index:idx_ledger_transactions_user_created,priority:1" json:"user_id"`
	Amount      int64     `gorm:"not null" json:"amount"`
	Type        string    `gorm:"type:varchar(16);not null;index" json:"type"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
	CreatedAt   time.Time `gorm:"autoCreateTime;index:idx_ledger_transactions_user_created,priority:2" json:"created_at"`
}
