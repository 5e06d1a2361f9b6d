package credits

import (
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// OrderPaidInput is the validated, strongly-typed form of an order.paid event.
// Only data that passed boundary parsing reaches the grant engine.
type OrderPaidInput struct {
	ExternalPaymentID  string `validate:"required"`
	UserID             uint   `validate:"required"`
	Amount             decimal.Decimal
	Currency           string `validate:"required,len=3"`
	ProductID          string
	CreditsGranted     int64 `validate:"required,gt=0"`
	ExternalCustomerID string
	CheckoutID         string
}

// Validate checks the structural fields plus the decimal amount, which the
// validator library cannot introspect.
func (in *OrderPaidInput) Validate() error {
	if err := validator.New().Struct(in); err != nil {
		return err
	}
	if !in.Amount.IsPositive() {
		return ErrInvalidOrderMetadata
	}
	return nil
}

// GrantResult reports the outcome of a grant.
type GrantResult struct {
	AlreadyProcessed bool  `json:"already_processed"`
	CreditsGranted   int64 `json:"credits_granted"`
	NewBalance       int64 `json:"new_balance"`
}

// OrderRefundedInput is the validated form of an order.refunded event.
// ReportedRefundTotal is the cumulative refunded amount as currently known to
// the provider, not a delta.
type OrderRefundedInput struct {
	ExternalPaymentID   string `validate:"required"`
	ReportedRefundTotal decimal.Decimal
}

// RefundResult reports the outcome of a refund.
type RefundResult struct {
	AlreadyProcessed bool  `json:"already_processed"`
	CreditsRefunded  int64 `json:"credits_refunded"`
	IsPartialRefund  bool  `json:"is_partial_refund"`
}

// AutoTopupInput identifies the user a low-balance check ran for. Email and
// display name are only needed when a provider customer must be created.
type AutoTopupInput struct {
	UserID      uint
	UserEmail   string
	DisplayName string
}

// TopupResult reports whether an automatic top-up checkout was started.
type TopupResult struct {
	Triggered   bool   `json:"triggered"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

// TopupSettings carries a user's auto-topup configuration update.
type TopupSettings struct {
	Enabled   bool
	Threshold *int64
	Amount    *decimal.Decimal
}

// ConsumeResult reports a usage deduction together with any auto-topup that
// the new balance triggered.
type ConsumeResult struct {
	NewBalance int64       `json:"new_balance"`
	Topup      TopupResult `json:"topup"`
}
