package repository

import (
	"context"

	"email-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AttemptRepository struct {
	db *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Create appends one audit row. Attempts are append-only and never
// updated afterwards.
func (r *AttemptRepository) Create(ctx context.Context, attempt *models.MatchAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// CreateInTx appends the success attempt inside the approval
// transaction so the audit row commits with the state transition.
func (r *AttemptRepository) CreateInTx(tx *gorm.DB, attempt *models.MatchAttempt) error {
	return tx.Create(attempt).Error
}

func (r *AttemptRepository) ListByPayment(ctx context.Context, paymentID uuid.UUID) ([]models.MatchAttempt, error) {
	var attempts []models.MatchAttempt
	err := r.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("created_at ASC").
		Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) ListByEmail(ctx context.Context, emailID uuid.UUID) ([]models.MatchAttempt, error) {
	var attempts []models.MatchAttempt
	err := r.db.WithContext(ctx).
		Where("processed_email_id = ?", emailID).
		Order("created_at ASC").
		Find(&attempts).Error
	return attempts, err
}
