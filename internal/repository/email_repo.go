package repository

import (
	"context"

	"email-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type EmailRepository struct {
	db *gorm.DB
}

func NewEmailRepository(db *gorm.DB) *EmailRepository {
	return &EmailRepository{db: db}
}

func (r *EmailRepository) DB() *gorm.DB {
	return r.db
}

// InsertIdempotent inserts the email unless its message id was already
// ingested, then returns the durable row either way. Re-delivery of the
// same message is a no-op.
func (r *EmailRepository) InsertIdempotent(ctx context.Context, email *models.ProcessedEmail) (*models.ProcessedEmail, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "message_id"}}, DoNothing: true}).
		Create(email)
	if result.Error != nil {
		return nil, false, result.Error
	}

	var stored models.ProcessedEmail
	if err := r.db.WithContext(ctx).First(&stored, "message_id = ?", email.MessageID).Error; err != nil {
		return nil, false, err
	}
	return &stored, result.RowsAffected > 0, nil
}

func (r *EmailRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ProcessedEmail, error) {
	var email models.ProcessedEmail
	if err := r.db.WithContext(ctx).First(&email, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &email, nil
}

// ListUnmatched returns emails still awaiting a payment, oldest first.
func (r *EmailRepository) ListUnmatched(ctx context.Context) ([]models.ProcessedEmail, error) {
	var emails []models.ProcessedEmail
	err := r.db.WithContext(ctx).
		Where("is_matched = ?", false).
		Order("email_date ASC").
		Find(&emails).Error
	return emails, err
}

// ListMissingFields returns unmatched emails the extractor has not
// fully resolved yet, for the sweep's backfill pass.
func (r *EmailRepository) ListMissingFields(ctx context.Context) ([]models.ProcessedEmail, error) {
	var emails []models.ProcessedEmail
	err := r.db.WithContext(ctx).
		Where("is_matched = ?", false).
		Where("amount IS NULL OR sender_name = '' OR description_field = ''").
		Find(&emails).Error
	return emails, err
}

func (r *EmailRepository) GetForUpdate(tx *gorm.DB, id uuid.UUID) (*models.ProcessedEmail, error) {
	var email models.ProcessedEmail
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&email, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &email, nil
}

func (r *EmailRepository) Save(tx *gorm.DB, email *models.ProcessedEmail) error {
	return tx.Save(email).Error
}

func (r *EmailRepository) UpdateExtractedFields(ctx context.Context, email *models.ProcessedEmail) error {
	return r.db.WithContext(ctx).Model(email).
		Select("amount", "account_number", "payer_account_number",
			"sender_name", "description_field", "extracted_date", "extraction_method").
		Updates(email).Error
}

func (r *EmailRepository) RecordAttemptOutcome(ctx context.Context, id uuid.UUID, reason string) error {
	return r.db.WithContext(ctx).Model(&models.ProcessedEmail{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"match_attempts_count": gorm.Expr("match_attempts_count + 1"),
			"last_match_reason":    reason,
		}).Error
}
