package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditFox/app/models"
)

// Service applies paid and refunded provider orders to the per-user credit
// ledger. All balance-affecting work runs inside a single DB transaction;
// idempotency is anchored on the unique payments.external_payment_id index.
type Service struct {
	repo     Repository
	provider ProviderClient
	cfg      TopupConfig
}

// TopupConfig carries the provider references needed to open checkouts.
type TopupConfig struct {
	ProductID  string
	SuccessURL string
}

// NewService creates a credit service from an injected repository and
// provider client.
func NewService(repo Repository, provider ProviderClient, cfg TopupConfig) *Service {
	return &Service{repo: repo, provider: provider, cfg: cfg}
}

// NewServiceFromDB creates a credit service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, provider ProviderClient, cfg TopupConfig) *Service {
	return NewService(NewRepository(db), provider, cfg)
}

// HandleOrderPaid grants credits for a paid provider order. Safe to call
// concurrently and repeatedly for the same external payment id: only the
// first delivery mutates the ledger, later ones report AlreadyProcessed.
func (s *Service) HandleOrderPaid(ctx context.Context, in OrderPaidInput) (*GrantResult, error) {
	_ = ctx
	if err := in.Validate(); err != nil {
		log.Error("[Credits] Rejecting paid order with invalid metadata",
			" order_id=", in.ExternalPaymentID, " user_id=", in.UserID, " err=", err)
		return nil, ErrInvalidOrderMetadata
	}

	var result GrantResult
	err := s.repo.Transaction(func(tx Repository) error {
		existing, err := tx.GetPaymentByExternalID(in.ExternalPaymentID)
		if err == nil && existing != nil {
			result.AlreadyProcessed = true
			return nil
		}
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		payment := &models.Payment{
			UserID:            in.UserID,
			ExternalPaymentID: in.ExternalPaymentID,
			OriginalAmount:    in.Amount,
			Currency:          in.Currency,
			CreditsGranted:    in.CreditsGranted,
			RefundedAmount:    decimal.Zero,
			Status:            models.PaymentStatusSucceeded,
			CheckoutID:        in.CheckoutID,
		}
		if err := tx.CreatePayment(payment); err != nil {
			// A concurrent delivery may have won the insert race on the
			// unique external_payment_id index.
			if dup, derr := tx.GetPaymentByExternalID(in.ExternalPaymentID); derr == nil && dup != nil {
				result.AlreadyProcessed = true
				return nil
			}
			return err
		}

		account, err := tx.GetOrCreateCreditAccount(in.UserID)
		if err != nil {
			return err
		}
		account.Balance += in.CreditsGranted
		account.TotalPurchased += in.CreditsGranted
		if in.ExternalCustomerID != "" && account.ExternalCustomerID == "" {
			account.ExternalCustomerID = in.ExternalCustomerID
		}
		if err := tx.SaveCreditAccount(account); err != nil {
			return err
		}

		if err := tx.AppendLedgerTransaction(&models.LedgerTransaction{
			UserID:      in.UserID,
			Amount:      in.CreditsGranted,
			Type:        models.LedgerTypePurchase,
			Description: fmt.Sprintf("Purchase of %d credits (payment %s)", in.CreditsGranted, in.ExternalPaymentID),
		}); err != nil {
			return err
		}

		if in.CheckoutID != "" {
			if err := tx.CompleteCheckoutSession(in.CheckoutID); err != nil {
				return err
			}
		}

		result.CreditsGranted = in.CreditsGranted
		result.NewBalance = account.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.AlreadyProcessed {
		log.Info("[Credits] Paid order already processed",
			" order_id=", in.ExternalPaymentID, " user_id=", in.UserID)
	} else {
		log.Info("[Credits] Granted credits for paid order",
			" order_id=", in.ExternalPaymentID, " user_id=", in.UserID,
			" credits=", result.CreditsGranted, " checkout_id=", in.CheckoutID)
	}
	return &result, nil
}

// HandleOrderRefunded applies a (possibly partial, possibly repeated) refund.
// The provider reports the cumulative refunded amount; credits are deducted
// proportionally to the incremental delta, floored. The balance may go
// negative when refunded credits were already spent.
func (s *Service) HandleOrderRefunded(ctx context.Context, in OrderRefundedInput) (*RefundResult, error) {
	_ = ctx
	if in.ExternalPaymentID == "" {
		log.Error("[Credits] Refund event without external payment id")
		return nil, ErrPaymentNotFound
	}

	var result RefundResult
	err := s.repo.Transaction(func(tx Repository) error {
		payment, err := tx.GetPaymentByExternalID(in.ExternalPaymentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				log.Error("[Credits] Refund for unknown payment",
					" order_id=", in.ExternalPaymentID)
				return ErrPaymentNotFound
			}
			return err
		}

		if payment.Status == models.PaymentStatusRefunded {
			result.AlreadyProcessed = true
			return nil
		}

		delta := in.ReportedRefundTotal.Sub(payment.RefundedAmount)
		if delta.LessThanOrEqual(decimal.Zero) {
			// Duplicate or out-of-order delivery of an already applied total.
			result.AlreadyProcessed = true
			return nil
		}

		newRefunded := payment.RefundedAmount.Add(delta)
		if newRefunded.GreaterThan(payment.OriginalAmount) {
			log.Error("[Credits] Reported refund total exceeds original payment",
				" order_id=", payment.ExternalPaymentID, " user_id=", payment.UserID,
				" reported=", in.ReportedRefundTotal.StringFixed(2),
				" original=", payment.OriginalAmount.StringFixed(2))
			return ErrRefundExceedsPayment
		}

		fullyRefunded := newRefunded.GreaterThanOrEqual(payment.OriginalAmount)
		refundRatio := delta.Div(payment.OriginalAmount)
		creditsToDeduct := decimal.NewFromInt(payment.CreditsGranted).Mul(refundRatio).Floor().IntPart()

		payment.RefundedAmount = newRefunded
		if fullyRefunded {
			payment.Status = models.PaymentStatusRefunded
		} else {
			payment.Status = models.PaymentStatusPartiallyRefunded
		}
		if err := tx.UpdatePaymentRefund(payment); err != nil {
			return err
		}

		if creditsToDeduct > 0 {
			account, err := tx.GetOrCreateCreditAccount(payment.UserID)
			if err != nil {
				return err
			}
			account.Balance -= creditsToDeduct
			if err := tx.SaveCreditAccount(account); err != nil {
				return err
			}
			if err := tx.AppendLedgerTransaction(&models.LedgerTransaction{
				UserID:      payment.UserID,
				Amount:      -creditsToDeduct,
				Type:        models.LedgerTypeRefund,
				Description: fmt.Sprintf("Refund of %s %s (payment %s)", delta.StringFixed(2), payment.Currency, payment.ExternalPaymentID),
			}); err != nil {
				return err
			}
		} else {
			log.Warn("[Credits] Refund delta floors to zero credits",
				" order_id=", payment.ExternalPaymentID, " user_id=", payment.UserID,
				" delta=", delta.StringFixed(2))
		}

		result.CreditsRefunded = creditsToDeduct
		result.IsPartialRefund = !fullyRefunded
		return nil
	})
	if err != nil {
		// ErrPaymentNotFound and ErrRefundExceedsPayment are terminal and
		// already logged with correlation ids for manual reconciliation.
		return nil, err
	}

	if result.AlreadyProcessed {
		log.Info("[Credits] Refund already processed", " order_id=", in.ExternalPaymentID)
	} else {
		log.Info("[Credits] Applied refund",
			" order_id=", in.ExternalPaymentID,
			" credits_refunded=", result.CreditsRefunded,
			" partial=", result.IsPartialRefund)
	}
	return &result, nil
}

// GetBalance returns the current account state for a user, creating the
// account lazily like every other entry path.
func (s *Service) GetBalance(ctx context.Context, userID uint) (*models.CreditAccount, error) {
	_ = ctx
	var account *models.CreditAccount
	err := s.repo.Transaction(func(tx Repository) error {
		var err error
		account, err = tx.GetOrCreateCreditAccount(userID)
		return err
	})
	return account, err
}

// Consume deducts credits for usage, appends the usage ledger entry and, when
// the new balance crossed the configured threshold, fires the best-effort
// auto-topup trigger.
func (s *Service) Consume(ctx context.Context, userID uint, amount int64, description, userEmail string) (*ConsumeResult, error) {
	if amount <= 0 {
		return nil, errors.New("credits: consume amount must be positive")
	}

	var result ConsumeResult
	err := s.repo.Transaction(func(tx Repository) error {
		account, err := tx.GetOrCreateCreditAccount(userID)
		if err != nil {
			return err
		}
		if account.Balance < amount {
			return ErrInsufficientBalance
		}
		account.Balance -= amount
		account.TotalUsed += amount
		if err := tx.SaveCreditAccount(account); err != nil {
			return err
		}
		if err := tx.AppendLedgerTransaction(&models.LedgerTransaction{
			UserID:      userID,
			Amount:      -amount,
			Type:        models.LedgerTypeUsage,
			Description: description,
		}); err != nil {
			return err
		}
		result.NewBalance = account.Balance
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Runs after and independently from the deduction transaction; a race
	// between two low-balance checks at worst leaves a redundant pending
	// checkout session.
	result.Topup = s.MaybeAutoTopup(ctx, AutoTopupInput{UserID: userID, UserEmail: userEmail})
	return &result, nil
}

// UpdateTopupSettings stores a user's auto-topup configuration after
// validating the configured amount.
func (s *Service) UpdateTopupSettings(ctx context.Context, userID uint, settings TopupSettings) (*models.CreditAccount, error) {
	_ = ctx
	if settings.Enabled {
		if settings.Threshold == nil || settings.Amount == nil {
			return nil, errors.New("credits: enabling auto-topup requires threshold and amount")
		}
		if err := ValidateTopupAmount(*settings.Amount); err != nil {
			return nil, err
		}
	}

	var account *models.CreditAccount
	err := s.repo.Transaction(func(tx Repository) error {
		var err error
		account, err = tx.GetOrCreateCreditAccount(userID)
		if err != nil {
			return err
		}
		account.AutoTopupEnabled = settings.Enabled
		account.AutoTopupThreshold = settings.Threshold
		account.AutoTopupAmount = settings.Amount
		return tx.SaveCreditAccount(account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}
