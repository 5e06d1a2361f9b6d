package credits

import (
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/CreditFox/app/models"
)

// Repository provides DB operations used by the credit engines. Transaction
// hands a repository bound to one DB transaction to the given function; all
// balance-affecting writes run through it.
type Repository interface {
	Transaction(fn func(Repository) error) error

	GetPaymentByExternalID(externalPaymentID string) (*models.Payment, error)
	CreatePayment(p *models.Payment) error
	UpdatePaymentRefund(p *models.Payment) error

	GetCreditAccount(userID uint) (*models.CreditAccount, error)
	GetOrCreateCreditAccount(userID uint) (*models.CreditAccount, error)
	SaveCreditAccount(a *models.CreditAccount) error

	AppendLedgerTransaction(lt *models.LedgerTransaction) error

	CreateCheckoutSession(cs *models.CheckoutSession) error
	CompleteCheckoutSession(externalCheckoutID string) error

	CreateWebhookEventLog(e *models.WebhookEventLog) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a credit repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Transaction(fn func(Repository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(&gormRepository{db: tx})
	})
}

func (r *gormRepository) GetPaymentByExternalID(externalPaymentID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("external_payment_id = ?", externalPaymentID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) CreatePayment(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) UpdatePaymentRefund(p *models.Payment) error {
	return r.db.Model(&models.Payment{}).Where("id = ?", p.ID).Updates(map[string]interface{}{
		"refunded_amount": p.RefundedAmount,
		"status":          p.Status,
		"updated_at":      time.Now(),
	}).Error
}

func (r *gormRepository) GetCreditAccount(userID uint) (*models.CreditAccount, error) {
	var account models.CreditAccount
	err := r.db.Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *gormRepository) GetOrCreateCreditAccount(userID uint) (*models.CreditAccount, error) {
	return models.GetOrCreateCreditAccount(r.db, userID)
}

func (r *gormRepository) SaveCreditAccount(a *models.CreditAccount) error {
	return r.db.Save(a).Error
}

func (r *gormRepository) AppendLedgerTransaction(lt *models.LedgerTransaction) error {
	return r.db.Create(lt).Error
}

func (r *gormRepository) CreateCheckoutSession(cs *models.CheckoutSession) error {
	return r.db.Create(cs).Error
}

func (r *gormRepository) CompleteCheckoutSession(externalCheckoutID string) error {
	return r.db.Model(&models.CheckoutSession{}).
		Where("external_checkout_id = ? AND status = ?", externalCheckoutID, models.CheckoutStatusPending).
		Updates(map[string]interface{}{
			"status":     models.CheckoutStatusCompleted,
			"updated_at": time.Now(),
		}).Error
}

func (r *gormRepository) CreateWebhookEventLog(e *models.WebhookEventLog) error {
	return r.db.Create(e).Error
}
