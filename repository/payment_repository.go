package repository

import (
	"context"
	"time"

	"plan-delivery-service/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository interface {
	// CreateIfAbsent inserts the payment unless a row with the same
	// transaction_id already exists. created is false on conflict.
	CreateIfAbsent(ctx context.Context, payment *models.Payment) (created bool, err error)
	GetByTransactionID(ctx context.Context, txnID string) (*models.Payment, error)
	// UpdateStatus applies the status plus any extra column updates.
	UpdateStatus(ctx context.Context, txnID, status string, extra map[string]interface{}) error
	LinkOrder(ctx context.Context, txnID string, orderID uuid.UUID) error
}

type gormPaymentRepo struct {
	db *gorm.DB
}

func NewGormPaymentRepo(db *gorm.DB) PaymentRepository {
	return &gormPaymentRepo{db: db}
}

func (r *gormPaymentRepo) CreateIfAbsent(ctx context.Context, payment *models.Payment) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}},
			DoNothing: true,
		}).
		Create(payment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *gormPaymentRepo) GetByTransactionID(ctx context.Context, txnID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).Where("transaction_id = ?", txnID).First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *gormPaymentRepo) UpdateStatus(ctx context.Context, txnID, status string, extra map[string]interface{}) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("transaction_id = ?", txnID).
		Updates(updates).Error
}

func (r *gormPaymentRepo) LinkOrder(ctx context.Context, txnID string, orderID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("transaction_id = ?", txnID).
		Update("order_id", orderID).Error
}
