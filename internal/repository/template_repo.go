package repository

import (
	"context"

	"email-reconciliation-backend/internal/models"

	"gorm.io/gorm"
)

type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

// ListActive returns active templates in selection order. Lower
// priority is tried first, so selection is deterministic per sender.
func (r *TemplateRepository) ListActive(ctx context.Context) ([]models.BankTemplate, error) {
	var templates []models.BankTemplate
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("priority ASC, bank_name ASC").
		Find(&templates).Error
	return templates, err
}
