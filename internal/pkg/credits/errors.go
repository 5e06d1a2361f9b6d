package credits

import "errors"

var (
	// ErrAmountOutOfRange marks a top-up amount outside [MinTopupAmount, MaxTopupAmount].
	ErrAmountOutOfRange = errors.New("credits: amount out of allowed range")

	// ErrAmountPrecision marks a top-up amount with more than two fractional digits.
	ErrAmountPrecision = errors.New("credits: amount has more than two decimal places")

	// ErrInvalidOrderMetadata marks a paid-order event whose metadata cannot be
	// mapped to a user or amount. Terminal: the event is not retried.
	ErrInvalidOrderMetadata = errors.New("credits: invalid order metadata")

	// ErrPaymentNotFound marks a refund event for an unknown external payment id.
	ErrPaymentNotFound = errors.New("credits: payment not found")

	// ErrRefundExceedsPayment marks a reported refund total above the original
	// payment amount. The event is rejected without mutation and left for
	// manual operator reconciliation.
	ErrRefundExceedsPayment = errors.New("credits: refund exceeds original payment amount")

	// ErrInsufficientBalance marks a usage deduction larger than the current balance.
	ErrInsufficientBalance = errors.New("credits: insufficient balance")
)
