package models

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProcessedEmail is one ingested bank-notification message. Rows are
// inserted once per message identity and never deleted.
type ProcessedEmail struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"`
	MessageID string    `gorm:"uniqueIndex"`

	FromEmail string
	Subject   string
	TextBody  string     `gorm:"type:text"`
	HTMLBody  string     `gorm:"type:text;column:html_body"`
	EmailDate *time.Time `gorm:"index:idx_emails_match_lookup,priority:3"`

	// Extracted payment fields. All best-effort, any may be empty.
	Amount             *decimal.Decimal `gorm:"type:decimal(20,2);index:idx_emails_match_lookup,priority:2"`
	AccountNumber      string
	PayerAccountNumber string
	SenderName         string
	DescriptionField   string
	ExtractedDate      string
	ExtractionMethod   string

	IsMatched        bool       `gorm:"index:idx_emails_match_lookup,priority:1"`
	MatchedPaymentID *uuid.UUID `gorm:"index"`
	MatchedAt        *time.Time

	MatchAttemptsCount int
	LastMatchReason    string `gorm:"type:text"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ComposeMessageID derives a stable dedupe key for providers that do not
// assign one: a hash over (from, subject, date).
func ComposeMessageID(from, subject string, date *time.Time) string {
	ts := ""
	if date != nil {
		ts = date.UTC().Format(time.RFC3339)
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%s", from, subject, ts)))
	return "composite-" + hex.EncodeToString(sum[:16])
}
