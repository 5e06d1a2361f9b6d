package credits

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/payprovider"
)

func seedAccount(t *testing.T, db *gorm.DB, account *models.CreditAccount) {
	t.Helper()
	require.NoError(t, db.Create(account).Error)
}

func configuredAccount(userID uint, balance, threshold int64, amount string) *models.CreditAccount {
	a := decimal.RequireFromString(amount)
	return &models.CreditAccount{
		UserID:             userID,
		Balance:            balance,
		AutoTopupEnabled:   true,
		AutoTopupThreshold: &threshold,
		AutoTopupAmount:    &a,
	}
}

func TestMaybeAutoTopupTriggersBelowThreshold(t *testing.T) {
	svc, provider, db := newTestService(t)
	seedAccount(t, db, configuredAccount(21, 40, 100, "10.00"))

	res := svc.MaybeAutoTopup(context.Background(), AutoTopupInput{UserID: 21, UserEmail: "user@example.com"})
	assert.True(t, res.Triggered)
	assert.Equal(t, "https://pay.example/chk_test", res.CheckoutURL)

	// The checkout metadata makes the later webhook self-describing.
	assert.Equal(t, "21", provider.lastParams.Metadata["user_id"])
	assert.Equal(t, "10.00", provider.lastParams.Metadata["amount"])
	assert.Equal(t, "true", provider.lastParams.Metadata["auto_topup"])

	var session models.CheckoutSession
	require.NoError(t, db.Where("user_id = ?", 21).First(&session).Error)
	assert.Equal(t, models.CheckoutStatusPending, session.Status)
	assert.True(t, session.AutoTopup)
}

func TestMaybeAutoTopupGating(t *testing.T) {
	tests := []struct {
		name    string
		account *models.CreditAccount
	}{
		{name: "balance above threshold", account: configuredAccount(22, 200, 100, "10.00")},
		{name: "balance equals threshold", account: configuredAccount(23, 100, 100, "10.00")},
		{name: "disabled", account: func() *models.CreditAccount {
			a := configuredAccount(24, 40, 100, "10.00")
			a.AutoTopupEnabled = false
			return a
		}()},
		{name: "threshold unset", account: func() *models.CreditAccount {
			a := configuredAccount(25, 40, 100, "10.00")
			a.AutoTopupThreshold = nil
			return a
		}()},
		{name: "amount unset", account: func() *models.CreditAccount {
			a := configuredAccount(26, 40, 100, "10.00")
			a.AutoTopupAmount = nil
			return a
		}()},
	}

	svc, _, db := newTestService(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seedAccount(t, db, tt.account)
			res := svc.MaybeAutoTopup(context.Background(), AutoTopupInput{UserID: tt.account.UserID, UserEmail: "user@example.com"})
			assert.False(t, res.Triggered)
			assert.Empty(t, res.CheckoutURL)
		})
	}
}

func TestMaybeAutoTopupNoAccount(t *testing.T) {
	svc, _, _ := newTestService(t)
	res := svc.MaybeAutoTopup(context.Background(), AutoTopupInput{UserID: 99})
	assert.False(t, res.Triggered)
}

func TestMaybeAutoTopupSwallowsProviderFailure(t *testing.T) {
	svc, provider, db := newTestService(t)
	provider.checkoutErr = errors.New("provider down")
	seedAccount(t, db, configuredAccount(27, 40, 100, "10.00"))

	res := svc.MaybeAutoTopup(context.Background(), AutoTopupInput{UserID: 27, UserEmail: "user@example.com"})
	assert.False(t, res.Triggered)

	var sessions int64
	require.NoError(t, db.Model(&models.CheckoutSession{}).Where("user_id = ?", 27).Count(&sessions).Error)
	assert.Zero(t, sessions)
}

func TestMaybeAutoTopupPersistsCustomerIDOnce(t *testing.T) {
	svc, provider, db := newTestService(t)
	seedAccount(t, db, configuredAccount(28, 40, 100, "10.00"))

	res := svc.MaybeAutoTopup(context.Background(), AutoTopupInput{UserID: 28, UserEmail: "user@example.com"})
	require.True(t, res.Triggered)
	assert.Equal(t, 1, provider.customersCreated)

	var account models.CreditAccount
	require.NoError(t, db.Where("user_id = ?", 28).First(&account).Error)
	assert.Equal(t, "cus_test", account.ExternalCustomerID)

	// Second trigger reuses the stored provider customer.
	provider.checkout = &payprovider.Checkout{ID: "chk_test_2", URL: "https://pay.example/chk_test_2"}
	res = svc.MaybeAutoTopup(context.Background(), AutoTopupInput{UserID: 28, UserEmail: "user@example.com"})
	require.True(t, res.Triggered)
	assert.Equal(t, 1, provider.customersCreated)
}

func TestConsumeFiresAutoTopup(t *testing.T) {
	svc, _, db := newTestService(t)
	seedAccount(t, db, configuredAccount(29, 120, 100, "10.00"))

	res, err := svc.Consume(context.Background(), 29, 50, "tool run", "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, int64(70), res.NewBalance)
	assert.True(t, res.Topup.Triggered)
	assert.NotEmpty(t, res.Topup.CheckoutURL)
}

func TestCreateCheckoutValidatesAmount(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateCheckout(context.Background(), 30, "user@example.com", decimal.RequireFromString("5.555"))
	assert.ErrorIs(t, err, ErrAmountPrecision)

	checkout, err := svc.CreateCheckout(context.Background(), 30, "user@example.com", decimal.RequireFromString("25.00"))
	require.NoError(t, err)
	assert.Equal(t, "chk_test", checkout.ID)
	assert.NotEmpty(t, checkout.URL)
}
