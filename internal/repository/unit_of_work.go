package repository

import (
	"context"

	"email-reconciliation-backend/internal/models"
	"email-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UnitOfWork adapts a gorm transaction to the engine's Store/Tx
// contract. Every accept runs its read-check-write sequence inside one
// of these.
type UnitOfWork struct {
	db       *gorm.DB
	payments *PaymentRepository
	emails   *EmailRepository
	attempts *AttemptRepository
}

func NewUnitOfWork(db *gorm.DB) *UnitOfWork {
	return &UnitOfWork{
		db:       db,
		payments: NewPaymentRepository(db),
		emails:   NewEmailRepository(db),
		attempts: NewAttemptRepository(db),
	}
}

func (u *UnitOfWork) InTransaction(ctx context.Context, fn func(tx matching.Tx) error) error {
	return u.db.WithContext(ctx).Transaction(func(gtx *gorm.DB) error {
		return fn(&gormTx{tx: gtx, uow: u})
	})
}

type gormTx struct {
	tx  *gorm.DB
	uow *UnitOfWork
}

func (t *gormTx) PaymentForUpdate(id uuid.UUID) (*models.PendingPayment, error) {
	return t.uow.payments.GetForUpdate(t.tx, id)
}

func (t *gormTx) EmailForUpdate(id uuid.UUID) (*models.ProcessedEmail, error) {
	return t.uow.emails.GetForUpdate(t.tx, id)
}

func (t *gormTx) SavePayment(p *models.PendingPayment) error {
	return t.uow.payments.Save(t.tx, p)
}

func (t *gormTx) SaveEmail(e *models.ProcessedEmail) error {
	return t.uow.emails.Save(t.tx, e)
}

func (t *gormTx) AppendAttempt(a *models.MatchAttempt) error {
	return t.uow.attempts.CreateInTx(t.tx, a)
}
