package extraction

import (
	"regexp"

	"github.com/shopspring/decimal"
)

// Some banks pack account number, payer account, amount and date into
// one opaque digit string on the "Description" line. Format is
// positional with no delimiters, so decoding goes by exact length.

var (
	descDigitsPattern   = regexp.MustCompile(`(?i)description\s*:\s*(\d{20,})(?:\s|FROM|-|$)`)
	descLinePattern     = regexp.MustCompile(`(?i)description\s*:\s*([^\n\r]+)`)
	longDigitRunPattern = regexp.MustCompile(`(\d{20,})`)
)

// ExtractDescriptionField pulls the packed digit string off a
// "Description : ..." line, if present.
func ExtractDescriptionField(text string) string {
	if m := descDigitsPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	if m := descLinePattern.FindStringSubmatch(text); m != nil {
		if d := longDigitRunPattern.FindStringSubmatch(m[1]); d != nil {
			return d[1]
		}
	}
	return ""
}

// DecodedDescription is the structured content of a packed description.
type DecodedDescription struct {
	AccountNumber      string
	PayerAccountNumber string
	Amount             *decimal.Decimal
	Date               string // YYYY-MM-DD
}

// DecodeDescriptionField slices a packed digit string by length:
//
//	>= 43: account(10) + payer account(10) + amount in kobo(6) + date YYYYMMDD(8), rest ignored
//	== 42: the 43 layout with one trailing zero appended first
//	30–41: account(10) + payer account(10) only; amount from this range is unreliable
//
// Any other length yields nothing.
func DecodeDescriptionField(desc string) DecodedDescription {
	var out DecodedDescription
	if !allDigits(desc) {
		return out
	}

	if len(desc) == 42 {
		desc = desc + "0"
	}

	switch {
	case len(desc) >= 43:
		out.AccountNumber = desc[0:10]
		out.PayerAccountNumber = desc[10:20]
		kobo, err := decimal.NewFromString(desc[20:26])
		if err == nil {
			amount := kobo.Div(decimal.NewFromInt(100))
			out.Amount = &amount
		}
		out.Date = formatCompactDate(desc[26:34])
	case len(desc) >= 30:
		out.AccountNumber = desc[0:10]
		out.PayerAccountNumber = desc[10:20]
	}
	return out
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// formatCompactDate turns YYYYMMDD into YYYY-MM-DD.
func formatCompactDate(d string) string {
	if len(d) != 8 {
		return ""
	}
	return d[0:4] + "-" + d[4:6] + "-" + d[6:8]
}
