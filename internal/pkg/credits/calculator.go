package credits

import (
	"github.com/shopspring/decimal"
)

// CreditsPerCurrencyUnit is the fixed conversion ratio: 10 credits per major
// currency unit (1.00 USD buys 10 credits).
const CreditsPerCurrencyUnit = 10

var (
	// MinTopupAmount and MaxTopupAmount bound a single purchase.
	MinTopupAmount = decimal.NewFromInt(1)
	MaxTopupAmount = decimal.NewFromInt(1000)

	creditRatio = decimal.NewFromInt(CreditsPerCurrencyUnit)
)

// CreditsFromAmount converts a currency amount into a credit count,
// flooring so a buyer is never granted more than they paid for.
func CreditsFromAmount(amount decimal.Decimal) int64 {
	return amount.Mul(creditRatio).Floor().IntPart()
}

// ValidateTopupAmount checks that a purchase amount is inside the allowed
// bounds and has at most two fractional digits. Used before checkout creation
// and again defensively inside the engine.
func ValidateTopupAmount(amount decimal.Decimal) error {
	if amount.LessThan(MinTopupAmount) || amount.GreaterThan(MaxTopupAmount) {
		return ErrAmountOutOfRange
	}
	if !amount.Equal(amount.Round(2)) {
		return ErrAmountPrecision
	}
	return nil
}
