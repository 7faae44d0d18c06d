package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Payment status values. Transitions are monotonic: a payment leaves
// "pending" exactly once and never returns.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusRejected = "rejected"
	PaymentStatusExpired  = "expired"
)

// PendingPayment is an outstanding expected bank transfer awaiting a
// matching notification email.
type PendingPayment struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey"`
	TransactionID string     `gorm:"uniqueIndex"`
	BusinessID    *uuid.UUID `gorm:"index"`

	Amount        decimal.Decimal `gorm:"type:decimal(20,2)"`
	PayerName     string
	AccountNumber string

	Status    string     `gorm:"index:idx_payments_status_expires"`
	ExpiresAt *time.Time `gorm:"index:idx_payments_status_expires"`

	MatchedAt  *time.Time
	ApprovedAt *time.Time

	MatchAttemptsCount int

	// Set when the match was approved despite a soft-signal mismatch.
	IsMismatch     bool
	ReceivedAmount *decimal.Decimal `gorm:"type:decimal(20,2)"`
	MismatchReason string

	EmailData datatypes.JSON

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (p *PendingPayment) IsPending() bool {
	return p.Status == PaymentStatusPending
}

func (p *PendingPayment) IsExpired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}
