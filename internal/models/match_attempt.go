package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Match attempt results.
const (
	MatchResultMatched   = "matched"
	MatchResultUnmatched = "unmatched"
	MatchResultRejected  = "rejected"
)

// MatchAttempt is an append-only audit row for one engine comparison,
// successful or not. Never mutated after insert.
type MatchAttempt struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	PaymentID        *uuid.UUID `gorm:"index:idx_attempts_payment_result,priority:1"`
	ProcessedEmailID *uuid.UUID `gorm:"index"`
	TransactionID    string     `gorm:"index"`

	MatchResult string `gorm:"index:idx_attempts_payment_result,priority:2"`
	Reason      string `gorm:"type:text"`

	PaymentAmount        *decimal.Decimal `gorm:"type:decimal(20,2)"`
	PaymentName          string
	PaymentAccountNumber string
	PaymentCreatedAt     *time.Time

	ExtractedAmount        *decimal.Decimal `gorm:"type:decimal(20,2)"`
	ExtractedName          string
	ExtractedAccountNumber string
	EmailSubject           string
	EmailFrom              string
	EmailDate              *time.Time

	AmountDiff            *decimal.Decimal `gorm:"type:decimal(20,2)"`
	TimeDiffMinutes       *int
	NameSimilarityPercent *int

	ExtractionMethod string
	Details          datatypes.JSON

	CreatedAt time.Time
}
