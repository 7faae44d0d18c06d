package extraction

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawEmail is the payload handed over by an ingestion source.
type RawEmail struct {
	From     string
	Subject  string
	TextBody string
	HTMLBody string
	Date     *time.Time
}

// Extraction methods recorded on attempts and emails for audit.
const (
	MethodTemplate     = "template"
	MethodHTMLTable    = "html_table"
	MethodHTMLText     = "html_text"
	MethodTextBody     = "text_body"
	MethodRenderedText = "html_rendered_text"
	MethodBackfill     = "backfill"
)

// Fields is the best-effort extraction result. Any field may be empty;
// extraction never fails for malformed input.
type Fields struct {
	Amount             *decimal.Decimal
	AccountNumber      string
	PayerAccountNumber string
	SenderName         string
	DescriptionField   string
	ExtractedDate      string
	Method             string
	TemplateBank       string
}

// FillMissing copies fields from other into f where f has none.
// Already-extracted values are never overwritten, so a backfill pass
// preserves earlier partial successes.
func (f *Fields) FillMissing(other Fields) {
	if f.Amount == nil {
		f.Amount = other.Amount
	}
	if f.AccountNumber == "" {
		f.AccountNumber = other.AccountNumber
	}
	if f.PayerAccountNumber == "" {
		f.PayerAccountNumber = other.PayerAccountNumber
	}
	if f.SenderName == "" {
		f.SenderName = other.SenderName
	}
	if f.DescriptionField == "" {
		f.DescriptionField = other.DescriptionField
	}
	if f.ExtractedDate == "" {
		f.ExtractedDate = other.ExtractedDate
	}
	if f.Method == "" {
		f.Method = other.Method
	}
}

// Empty reports whether nothing at all was extracted.
func (f Fields) Empty() bool {
	return f.Amount == nil && f.AccountNumber == "" && f.PayerAccountNumber == "" &&
		f.SenderName == "" && f.DescriptionField == "" && f.ExtractedDate == ""
}
