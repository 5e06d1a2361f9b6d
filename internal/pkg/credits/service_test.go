package credits

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ManuelReschke/CreditFox/app/models"
	"github.com/ManuelReschke/CreditFox/internal/pkg/payprovider"
)

type fakeProvider struct {
	customerID  string
	checkout    *payprovider.Checkout
	customerErr error
	checkoutErr error

	customersCreated int
	lastParams       payprovider.CheckoutParams
}

func (f *fakeProvider) CreateCustomer(ctx context.Context, email, externalID string) (string, error) {
	f.customersCreated++
	if f.customerErr != nil {
		return "", f.customerErr
	}
	return f.customerID, nil
}

func (f *fakeProvider) CreateCheckout(ctx context.Context, params payprovider.CheckoutParams) (*payprovider.Checkout, error) {
	f.lastParams = params
	if f.checkoutErr != nil {
		return nil, f.checkoutErr
	}
	return f.checkout, nil
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Payment{},
		&models.CreditAccount{},
		&models.LedgerTransaction{},
		&models.CheckoutSession{},
		&models.WebhookEventLog{},
	))
	return db
}

func newTestService(t *testing.T) (*Service, *fakeProvider, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	provider := &fakeProvider{
		customerID: "cus_test",
		checkout:   &payprovider.Checkout{ID: "chk_test", URL: "https://pay.example/chk_test"},
	}
	svc := NewServiceFromDB(db, provider, TopupConfig{
		ProductID:  "prod_credits",
		SuccessURL: "https://app.example/credits/success",
	})
	return svc, provider, db
}

func paidInput(orderID string, userID uint, amount string) OrderPaidInput {
	a := decimal.RequireFromString(amount)
	return OrderPaidInput{
		ExternalPaymentID: orderID,
		UserID:            userID,
		Amount:            a,
		Currency:          "USD",
		ProductID:         "prod_credits",
		CreditsGranted:    CreditsFromAmount(a),
	}
}

func TestHandleOrderPaidGrantsExactlyOnce(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	in := paidInput("pay_a1", 7, "20.00")

	res, err := svc.HandleOrderPaid(ctx, in)
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, int64(200), res.CreditsGranted)
	assert.Equal(t, int64(200), res.NewBalance)

	// Redelivery of the identical event must be a no-op.
	for i := 0; i < 3; i++ {
		res, err = svc.HandleOrderPaid(ctx, in)
		require.NoError(t, err)
		assert.True(t, res.AlreadyProcessed)
	}

	var account models.CreditAccount
	require.NoError(t, db.Where("user_id = ?", 7).First(&account).Error)
	assert.Equal(t, int64(200), account.Balance)
	assert.Equal(t, int64(200), account.TotalPurchased)

	var payments int64
	require.NoError(t, db.Model(&models.Payment{}).Where("external_payment_id = ?", "pay_a1").Count(&payments).Error)
	assert.Equal(t, int64(1), payments)

	var entries []models.LedgerTransaction
	require.NoError(t, db.Where("user_id = ?", 7).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.Equal(t, models.LedgerTypePurchase, entries[0].Type)
	assert.Equal(t, int64(200), entries[0].Amount)
}

// lostRaceRepository reports the payment as missing on the first lookups so
// the insert collides with a row a concurrent delivery already committed.
type lostRaceRepository struct {
	Repository
	misses *int
}

func (r *lostRaceRepository) Transaction(fn func(Repository) error) error {
	return r.Repository.Transaction(func(tx Repository) error {
		return fn(&lostRaceRepository{Repository: tx, misses: r.misses})
	})
}

func (r *lostRaceRepository) GetPaymentByExternalID(externalPaymentID string) (*models.Payment, error) {
	if *r.misses > 0 {
		*r.misses--
		return nil, gorm.ErrRecordNotFound
	}
	return r.Repository.GetPaymentByExternalID(externalPaymentID)
}

func TestHandleOrderPaidLosesInsertRace(t *testing.T) {
	svc, provider, db := newTestService(t)
	ctx := context.Background()

	in := paidInput("pay_race", 13, "20.00")
	_, err := svc.HandleOrderPaid(ctx, in)
	require.NoError(t, err)

	// A concurrent delivery finds no row on its lookup, loses the insert on
	// the unique external payment id and must resolve via the re-read.
	misses := 1
	raced := NewService(&lostRaceRepository{Repository: NewRepository(db), misses: &misses}, provider, TopupConfig{})
	res, err := raced.HandleOrderPaid(ctx, in)
	require.NoError(t, err)
	assert.True(t, res.AlreadyProcessed)
	assert.Zero(t, misses)

	var payments int64
	require.NoError(t, db.Model(&models.Payment{}).Where("external_payment_id = ?", "pay_race").Count(&payments).Error)
	assert.Equal(t, int64(1), payments)

	var account models.CreditAccount
	require.NoError(t, db.Where("user_id = ?", 13).First(&account).Error)
	assert.Equal(t, int64(200), account.Balance)
	assert.Equal(t, int64(200), account.TotalPurchased)
}

func TestHandleOrderPaidCompletesCheckoutSession(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&models.CheckoutSession{
		UserID:             7,
		ExternalCheckoutID: "chk_777",
		ProductID:          "prod_credits",
		CheckoutURL:        "https://pay.example/chk_777",
		Amount:             decimal.RequireFromString("20.00"),
		Status:             models.CheckoutStatusPending,
	}).Error)

	in := paidInput("pay_chk", 7, "20.00")
	in.CheckoutID = "chk_777"
	_, err := svc.HandleOrderPaid(ctx, in)
	require.NoError(t, err)

	var session models.CheckoutSession
	require.NoError(t, db.Where("external_checkout_id = ?", "chk_777").First(&session).Error)
	assert.Equal(t, models.CheckoutStatusCompleted, session.Status)
}

func TestHandleOrderPaidRejectsInvalidMetadata(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	in := paidInput("pay_bad", 0, "20.00") // no user id
	_, err := svc.HandleOrderPaid(ctx, in)
	assert.ErrorIs(t, err, ErrInvalidOrderMetadata)

	var payments int64
	require.NoError(t, db.Model(&models.Payment{}).Count(&payments).Error)
	assert.Zero(t, payments)
}

func TestHandleOrderRefundedPartialThenFull(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.HandleOrderPaid(ctx, paidInput("pay_b1", 9, "100.00"))
	require.NoError(t, err)

	// First delivery reports a cumulative refund of $40.
	res, err := svc.HandleOrderRefunded(ctx, OrderRefundedInput{
		ExternalPaymentID:   "pay_b1",
		ReportedRefundTotal: decimal.RequireFromString("40.00"),
	})
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, int64(400), res.CreditsRefunded)
	assert.True(t, res.IsPartialRefund)

	var payment models.Payment
	require.NoError(t, db.Where("external_payment_id = ?", "pay_b1").First(&payment).Error)
	assert.Equal(t, models.PaymentStatusPartiallyRefunded, payment.Status)
	assert.True(t, payment.RefundedAmount.Equal(decimal.RequireFromString("40.00")))

	var account models.CreditAccount
	require.NoError(t, db.Where("user_id = ?", 9).First(&account).Error)
	assert.Equal(t, int64(600), account.Balance)

	// Second delivery reports the full cumulative total of $100.
	res, err = svc.HandleOrderRefunded(ctx, OrderRefundedInput{
		ExternalPaymentID:   "pay_b1",
		ReportedRefundTotal: decimal.RequireFromString("100.00"),
	})
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Equal(t, int64(600), res.CreditsRefunded)
	assert.False(t, res.IsPartialRefund)

	require.NoError(t, db.Where("external_payment_id = ?", "pay_b1").First(&payment).Error)
	assert.Equal(t, models.PaymentStatusRefunded, payment.Status)

	require.NoError(t, db.Where("user_id = ?", 9).First(&account).Error)
	assert.Equal(t, int64(0), account.Balance)

	// Across both events every originally granted credit was deducted once.
	var deducted int64
	require.NoError(t, db.Model(&models.LedgerTransaction{}).
		Where("user_id = ? AND type = ?", 9, models.LedgerTypeRefund).
		Select("COALESCE(SUM(amount), 0)").Scan(&deducted).Error)
	assert.Equal(t, int64(-1000), deducted)
}

func TestHandleOrderRefundedDuplicateDelivery(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.HandleOrderPaid(ctx, paidInput("pay_dup", 3, "100.00"))
	require.NoError(t, err)

	first, err := svc.HandleOrderRefunded(ctx, OrderRefundedInput{
		ExternalPaymentID:   "pay_dup",
		ReportedRefundTotal: decimal.RequireFromString("40.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(400), first.CreditsRefunded)

	// Same cumulative total again: delta is zero, nothing to do.
	again, err := svc.HandleOrderRefunded(ctx, OrderRefundedInput{
		ExternalPaymentID:   "pay_dup",
		ReportedRefundTotal: decimal.RequireFromString("40.00"),
	})
	require.NoError(t, err)
	assert.True(t, again.AlreadyProcessed)
	assert.Zero(t, again.CreditsRefunded)
}

func TestHandleOrderRefundedRejectsExcessTotal(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.HandleOrderPaid(ctx, paidInput("pay_over", 4, "100.00"))
	require.NoError(t, err)

	_, err = svc.HandleOrderRefunded(ctx, OrderRefundedInput{
		ExternalPaymentID:   "pay_over",
		ReportedRefundTotal: decimal.RequireFromString("150.00"),
	})
	assert.ErrorIs(t, err, ErrRefundExceedsPayment)

	var payment models.Payment
	require.NoError(t, db.Where("external_payment_id = ?", "pay_over").First(&payment).Error)
	assert.Equal(t, models.PaymentStatusSucceeded, payment.Status)
	assert.True(t, payment.RefundedAmount.IsZero())

	var account models.CreditAccount
	require.NoError(t, db.Where("user_id = ?", 4).First(&account).Error)
	assert.Equal(t, int64(1000), account.Balance)
}

func TestHandleOrderRefundedUnknownPayment(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.HandleOrderRefunded(context.Background(), OrderRefundedInput{
		ExternalPaymentID:   "pay_ghost",
		ReportedRefundTotal: decimal.RequireFromString("10.00"),
	})
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestHandleOrderRefundedZeroCreditFloor(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	// 3 credits on a $100 payment: a $1 refund floors to zero credits but
	// still advances the refunded amount and status.
	in := paidInput("pay_floor", 5, "100.00")
	in.CreditsGranted = 3
	_, err := svc.HandleOrderPaid(ctx, in)
	require.NoError(t, err)

	res, err := svc.HandleOrderRefunded(ctx, OrderRefundedInput{
		ExternalPaymentID:   "pay_floor",
		ReportedRefundTotal: decimal.RequireFromString("1.00"),
	})
	require.NoError(t, err)
	assert.False(t, res.AlreadyProcessed)
	assert.Zero(t, res.CreditsRefunded)

	var payment models.Payment
	require.NoError(t, db.Where("external_payment_id = ?", "pay_floor").First(&payment).Error)
	assert.Equal(t, models.PaymentStatusPartiallyRefunded, payment.Status)
	assert.True(t, payment.RefundedAmount.Equal(decimal.RequireFromString("1.00")))
}

func TestRefundAfterSpendDrivesBalanceNegative(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.HandleOrderPaid(ctx, paidInput("pay_neg", 6, "10.00"))
	require.NoError(t, err)

	_, err = svc.Consume(ctx, 6, 90, "tool run", "")
	require.NoError(t, err)

	_, err = svc.HandleOrderRefunded(ctx, OrderRefundedInput{
		ExternalPaymentID:   "pay_neg",
		ReportedRefundTotal: decimal.RequireFromString("10.00"),
	})
	require.NoError(t, err)

	var account models.CreditAccount
	require.NoError(t, db.Where("user_id = ?", 6).First(&account).Error)
	assert.Equal(t, int64(-90), account.Balance)
}

func TestConsumeInsufficientBalance(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.HandleOrderPaid(ctx, paidInput("pay_small", 8, "1.00"))
	require.NoError(t, err)

	_, err = svc.Consume(ctx, 8, 50, "tool run", "")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestConsumeAppendsUsageLedger(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	_, err := svc.HandleOrderPaid(ctx, paidInput("pay_use", 11, "10.00"))
	require.NoError(t, err)

	res, err := svc.Consume(ctx, 11, 30, "image generation", "")
	require.NoError(t, err)
	assert.Equal(t, int64(70), res.NewBalance)

	var entry models.LedgerTransaction
	require.NoError(t, db.Where("user_id = ? AND type = ?", 11, models.LedgerTypeUsage).First(&entry).Error)
	assert.Equal(t, int64(-30), entry.Amount)
	assert.Equal(t, "image generation", entry.Description)
}

func TestUpdateTopupSettingsValidatesAmount(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	threshold := int64(50)
	bad := decimal.RequireFromString("0.50")
	_, err := svc.UpdateTopupSettings(ctx, 12, TopupSettings{
		Enabled:   true,
		Threshold: &threshold,
		Amount:    &bad,
	})
	assert.ErrorIs(t, err, ErrAmountOutOfRange)

	good := decimal.RequireFromString("10.00")
	account, err := svc.UpdateTopupSettings(ctx, 12, TopupSettings{
		Enabled:   true,
		Threshold: &threshold,
		Amount:    &good,
	})
	require.NoError(t, err)
	assert.True(t, account.AutoTopupEnabled)
	require.NotNil(t, account.AutoTopupThreshold)
	assert.Equal(t, int64(50), *account.AutoTopupThreshold)
}

func TestGetBalanceCreatesAccountLazily(t *testing.T) {
	svc, _, _ := newTestService(t)

	account, err := svc.GetBalance(context.Background(), 31)
	require.NoError(t, err)
	assert.Equal(t, uint(31), account.UserID)
	assert.Zero(t, account.Balance)
}
