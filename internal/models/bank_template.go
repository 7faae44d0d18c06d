package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// BankTemplate holds per-bank extraction rules. Admin-managed; the
// matching engine only ever reads these.
type BankTemplate struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey"`
	BankName string    `gorm:"index"`

	// Sender matching: either an exact alert address or a domain suffix.
	SenderEmail  string `gorm:"index"`
	SenderDomain string `gorm:"index"`

	// Custom regex patterns; first capture group wins.
	AmountPattern        string `gorm:"type:text"`
	SenderNamePattern    string `gorm:"type:text"`
	AccountNumberPattern string `gorm:"type:text"`

	// Field labels for HTML-table / "Label : Value" extraction.
	AmountFieldLabel        string
	SenderNameFieldLabel    string
	AccountNumberFieldLabel string

	ExtractionNotes string `gorm:"type:text"`
	Priority        int    `gorm:"index"` // lower tried first
	IsActive        bool   `gorm:"index"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MatchesSender reports whether an email from-address belongs to this
// template's bank.
func (t *BankTemplate) MatchesSender(fromEmail string) bool {
	from := strings.ToLower(strings.TrimSpace(fromEmail))
	if t.SenderEmail != "" && strings.Contains(from, strings.ToLower(t.SenderEmail)) {
		return true
	}
	if t.SenderDomain != "" && strings.Contains(from, strings.ToLower(t.SenderDomain)) {
		return true
	}
	return false
}
