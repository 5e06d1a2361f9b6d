package credits

import (
	"context"
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/payprovider"
)

// ProviderClient is the slice of the payment provider API the credit service
// needs. *payprovider.Client satisfies it.
type ProviderClient interface {
	CreateCustomer(ctx context.Context, email, externalID string) (string, error)
	CreateCheckout(ctx context.Context, params payprovider.CheckoutParams) (*payprovider.Checkout, error)
}

// MaybeAutoTopup starts a top-up checkout when the user's balance fell below
// the configured threshold. Best effort: it runs alongside an unrelated
// user-facing request, so every failure is logged and swallowed into
// Triggered=false.
func (s *Service) MaybeAutoTopup(ctx context.Context, in AutoTopupInput) TopupResult {
	account, err := s.repo.GetCreditAccount(in.UserID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.Error("[Credits] Auto-topup account lookup failed",
				" user_id=", in.UserID, " err=", err)
		}
		return TopupResult{}
	}
	if !account.AutoTopupConfigured() {
		return TopupResult{}
	}
	if account.Balance >= *account.AutoTopupThreshold {
		return TopupResult{}
	}

	amount := *account.AutoTopupAmount
	if err := ValidateTopupAmount(amount); err != nil {
		log.Error("[Credits] Auto-topup configured with invalid amount",
			" user_id=", in.UserID, " amount=", amount.StringFixed(2), " err=", err)
		return TopupResult{}
	}

	customerID, err := s.ensureProviderCustomer(ctx, account, in.UserEmail)
	if err != nil {
		log.Error("[Credits] Auto-topup customer creation failed",
			" user_id=", in.UserID, " err=", err)
		return TopupResult{}
	}

	checkout, err := s.openCheckout(ctx, in.UserID, amount, customerID, true)
	if err != nil {
		log.Error("[Credits] Auto-topup checkout creation failed",
			" user_id=", in.UserID, " err=", err)
		return TopupResult{}
	}

	log.Info("[Credits] Auto-topup triggered",
		" user_id=", in.UserID, " amount=", amount.StringFixed(2),
		" checkout_id=", checkout.ID)
	return TopupResult{Triggered: true, CheckoutURL: checkout.URL}
}

// CreateCheckout opens a manual purchase checkout for a user after validating
// the amount.
func (s *Service) CreateCheckout(ctx context.Context, userID uint, userEmail string, amount decimal.Decimal) (*payprovider.Checkout, error) {
	if err := ValidateTopupAmount(amount); err != nil {
		return nil, err
	}

	var account *models.CreditAccount
	err := s.repo.Transaction(func(tx Repository) error {
		var err error
		account, err = tx.GetOrCreateCreditAccount(userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	customerID, err := s.ensureProviderCustomer(ctx, account, userEmail)
	if err != nil {
		return nil, err
	}
	return s.openCheckout(ctx, userID, amount, customerID, false)
}

// ensureProviderCustomer resolves the provider customer id for an account,
// creating and persisting one on first use. Stored once, so repeated calls
// are idempotent.
func (s *Service) ensureProviderCustomer(ctx context.Context, account *models.CreditAccount, email string) (string, error) {
	if account.ExternalCustomerID != "" {
		return account.ExternalCustomerID, nil
	}
	if email == "" {
		// Checkout still works without a provider customer reference.
		return "", nil
	}

	customerID, err := s.provider.CreateCustomer(ctx, email, strconv.FormatUint(uint64(account.UserID), 10))
	if err != nil {
		return "", err
	}

	account.ExternalCustomerID = customerID
	if err := s.repo.SaveCreditAccount(account); err != nil {
		return "", err
	}
	return customerID, nil
}

// openCheckout creates the provider checkout and records the pending session.
// The metadata makes the resulting order.paid webhook self-describing: user
// id and amount travel with the provider order instead of server-side state.
func (s *Service) openCheckout(ctx context.Context, userID uint, amount decimal.Decimal, customerID string, autoTopup bool) (*payprovider.Checkout, error) {
	metadata := map[string]string{
		"user_id": strconv.FormatUint(uint64(userID), 10),
		"amount":  amount.StringFixed(2),
	}
	if autoTopup {
		metadata["auto_topup"] = "true"
	}

	checkout, err := s.provider.CreateCheckout(ctx, payprovider.CheckoutParams{
		ProductID:  s.cfg.ProductID,
		Amount:     amount,
		SuccessURL: s.cfg.SuccessURL,
		CustomerID: customerID,
		Metadata:   metadata,
	})
	if err != nil {
		return nil, err
	}

	if err := s.repo.CreateCheckoutSession(&models.CheckoutSession{
		UserID:             userID,
		ExternalCheckoutID: checkout.ID,
		ProductID:          s.cfg.ProductID,
		CheckoutURL:        checkout.URL,
		Amount:             amount,
		Status:             models.CheckoutStatusPending,
		AutoTopup:          autoTopup,
	}); err != nil {
		return nil, err
	}
	return checkout, nil
}
