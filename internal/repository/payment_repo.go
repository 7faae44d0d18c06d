package repository

import (
	"context"
	"time"

	"email-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentRepository struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Expose DB if needed
func (r *PaymentRepository) DB() *gorm.DB {
	return r.db
}

func (r *PaymentRepository) Create(ctx context.Context, p *models.PendingPayment) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PaymentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.PendingPayment, error) {
	var p models.PendingPayment
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) GetByTransactionID(ctx context.Context, txID string) (*models.PendingPayment, error) {
	var p models.PendingPayment
	if err := r.db.WithContext(ctx).First(&p, "transaction_id = ?", txID).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPending returns payments still eligible for matching: pending and
// either never expiring or expiring after now. Queries the
// (status, expires_at) index.
func (r *PaymentRepository) ListPending(ctx context.Context, now time.Time) ([]models.PendingPayment, error) {
	var payments []models.PendingPayment
	err := r.db.WithContext(ctx).
		Where("status = ?", models.PaymentStatusPending).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Order("created_at ASC").
		Find(&payments).Error
	return payments, err
}

// GetForUpdate re-reads a payment under a row lock inside tx. The final
// accept always re-validates through this.
func (r *PaymentRepository) GetForUpdate(tx *gorm.DB, id uuid.UUID) (*models.PendingPayment, error) {
	var p models.PendingPayment
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) Save(tx *gorm.DB, p *models.PendingPayment) error {
	return tx.Save(p).Error
}

func (r *PaymentRepository) IncrementAttempts(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.PendingPayment{}).
		Where("id = ?", id).
		UpdateColumn("match_attempts_count", gorm.Expr("match_attempts_count + 1")).
		Error
}

// ExpireDue transitions past-due pending payments to expired.
func (r *PaymentRepository) ExpireDue(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.PendingPayment{}).
		Where("status = ?", models.PaymentStatusPending).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now).
		Updates(map[string]interface{}{
			"status":     models.PaymentStatusExpired,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}

// ListNeedsReview returns pending payments that accumulated enough
// failed attempts to warrant human inspection.
func (r *PaymentRepository) ListNeedsReview(ctx context.Context, minAttempts int) ([]models.PendingPayment, error) {
	var payments []models.PendingPayment
	err := r.db.WithContext(ctx).
		Where("status = ?", models.PaymentStatusPending).
		Where("match_attempts_count >= ?", minAttempts).
		Order("match_attempts_count DESC").
		Find(&payments).Error
	return payments, err
}
