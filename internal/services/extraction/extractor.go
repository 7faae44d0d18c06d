package extraction

import (
	"log"
	"regexp"
	"strings"

	"email-reconciliation-backend/internal/models"

	"github.com/shopspring/decimal"
)

// Amounts below this are treated as noise (reference numbers, column
// indexes) rather than a transfer value.
var minPlausibleAmount = decimal.NewFromInt(10)

var (
	// HTML table formats: label cell followed by a value cell, or label
	// and value in one cell. Handles NGN/naira markers and &nbsp;.
	htmlAmountCellPattern = regexp.MustCompile(`(?is)<td[^>]*>\s*(?:amount|sum|value|total|paid|payment)\s*:?\s*</td>\s*<td[^>]*>\s*(?:ngn|naira|₦)?(?:&nbsp;|\s)*([\d,]+\.?\d*)\s*</td>`)
	htmlAmountSameCell    = regexp.MustCompile(`(?is)<td[^>]*>\s*(?:amount|sum|value|total|paid|payment)\s*:\s*(?:ngn|naira|₦)?(?:&nbsp;|\s)*([\d,]+\.?\d*)\s*</td>`)
	htmlCurrencyCell      = regexp.MustCompile(`(?is)<td[^>]*>\s*(?:ngn|naira|₦)\s*([\d,]+\.?\d*)\s*</td>`)

	// Plain-text "Label : Value" formats.
	textAmountLabeled  = regexp.MustCompile(`(?i)(?:amount|sum|value|total|paid|payment|deposit|transfer|credit)\s*:?\s+(?:ngn|naira|₦)\s*([\d,]+\.?\d*)`)
	textCurrencyAmount = regexp.MustCompile(`(?i)(?:ngn|naira|₦)\s*([\d,]+\.?\d*)`)
	textAmountSuffixed = regexp.MustCompile(`(?i)([\d,]+\.\d{2})\s*(?:naira|ngn)`)

	htmlAccountCellPattern = regexp.MustCompile(`(?is)<td[^>]*>\s*account\s*(?:number|no\.?)?\s*:?\s*</td>\s*<td[^>]*>\s*(\d{10})\s*</td>`)
	textAccountPattern     = regexp.MustCompile(`(?i)account\s*(?:number|no\.?)?\s*:\s*(\d{10})\b`)

	scriptPattern  = regexp.MustCompile(`(?is)<script\b.*?</script>`)
	stylePattern   = regexp.MustCompile(`(?is)<style\b.*?</style>`)
	rowBreakTags   = regexp.MustCompile(`(?i)<br\s*/?>|</p>|</div>|</tr>|</li>`)
	cellBreakTags  = regexp.MustCompile(`(?i)</td>|</th>`)
	anyTagPattern  = regexp.MustCompile(`<[^>]+>`)
	blankRunInLine = regexp.MustCompile(`[ \t]+`)
)

// Extractor turns raw bank emails into structured payment fields using
// per-bank templates with a generic fallback. Stateless and safe for
// concurrent use.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract runs the full pipeline: template selection, HTML-first field
// extraction with plain-text fallback, packed-description decoding and
// sender-name heuristics. Output is best-effort; malformed input yields
// empty fields, never an error.
func (e *Extractor) Extract(raw RawEmail, templates []models.BankTemplate) Fields {
	var fields Fields

	if tpl := SelectTemplate(raw.From, templates); tpl != nil {
		fields = e.extractWithTemplate(raw, tpl)
		fields.TemplateBank = tpl.BankName
	}

	fields.FillMissing(e.extractGeneric(raw))

	// Packed description decoding runs regardless of how the labeled
	// fields were found; its account numbers are often the only ones.
	if fields.DescriptionField == "" {
		fields.DescriptionField = findDescriptionField(raw)
	}
	if fields.DescriptionField != "" {
		decoded := DecodeDescriptionField(fields.DescriptionField)
		fields.FillMissing(Fields{
			Amount:             decoded.Amount,
			AccountNumber:      decoded.AccountNumber,
			PayerAccountNumber: decoded.PayerAccountNumber,
			ExtractedDate:      decoded.Date,
		})
	}

	if fields.SenderName == "" {
		fields.SenderName = senderNameFromEmail(raw)
	}
	return fields
}

// Backfill re-scans an email for fields an earlier pass left empty.
// Existing values are preserved untouched.
func (e *Extractor) Backfill(raw RawEmail, existing Fields, templates []models.BankTemplate) Fields {
	fresh := e.Extract(raw, templates)
	if fresh.Method != "" {
		fresh.Method = MethodBackfill
	}
	existing.FillMissing(fresh)
	return existing
}

// SelectTemplate picks the first active template, in priority order,
// whose sender rule matches the from-address. Deterministic for a given
// sender and template set.
func SelectTemplate(fromEmail string, templates []models.BankTemplate) *models.BankTemplate {
	for i := range templates {
		if !templates[i].IsActive {
			continue
		}
		if templates[i].MatchesSender(fromEmail) {
			return &templates[i]
		}
	}
	return nil
}

func (e *Extractor) extractWithTemplate(raw RawEmail, tpl *models.BankTemplate) Fields {
	var fields Fields
	body := raw.HTMLBody
	if strings.TrimSpace(body) == "" {
		body = raw.TextBody
	}

	if tpl.AmountPattern != "" {
		fields.Amount = amountFromPattern(tpl.AmountPattern, body)
	}
	if fields.Amount == nil && tpl.AmountFieldLabel != "" {
		fields.Amount = amountFromLabel(tpl.AmountFieldLabel, raw)
	}

	if tpl.SenderNamePattern != "" {
		fields.SenderName = nameFromPattern(tpl.SenderNamePattern, body)
	}
	if fields.SenderName == "" && tpl.SenderNameFieldLabel != "" {
		fields.SenderName = nameFromLabel(tpl.SenderNameFieldLabel, raw)
	}

	if tpl.AccountNumberPattern != "" {
		fields.AccountNumber = accountFromPattern(tpl.AccountNumberPattern, body)
	}
	if fields.AccountNumber == "" && tpl.AccountNumberFieldLabel != "" {
		fields.AccountNumber = accountFromLabel(tpl.AccountNumberFieldLabel, raw)
	}

	if !fields.Empty() {
		fields.Method = MethodTemplate
	}
	return fields
}

// extractGeneric is the fallback parser: structured HTML table formats
// first, then plain-text label lines, then text rendered from HTML.
func (e *Extractor) extractGeneric(raw RawEmail) Fields {
	var fields Fields

	if strings.TrimSpace(raw.HTMLBody) != "" {
		fields.Amount = firstAmount(raw.HTMLBody, htmlAmountCellPattern, htmlAmountSameCell, htmlCurrencyCell)
		if fields.Amount != nil {
			fields.Method = MethodHTMLTable
		}
		if m := htmlAccountCellPattern.FindStringSubmatch(raw.HTMLBody); m != nil {
			fields.AccountNumber = m[1]
		}
		fields.SenderName = ExtractSenderName(HTMLToText(raw.HTMLBody))
	}

	if fields.Amount == nil && strings.TrimSpace(raw.TextBody) != "" {
		full := raw.Subject + "\n" + raw.TextBody
		fields.Amount = firstAmount(full, textAmountLabeled, textCurrencyAmount, textAmountSuffixed)
		if fields.Amount != nil {
			fields.Method = MethodTextBody
		}
	}

	if fields.Amount == nil && strings.TrimSpace(raw.HTMLBody) != "" {
		rendered := HTMLToText(raw.HTMLBody)
		fields.Amount = firstAmount(rendered, textAmountLabeled, textCurrencyAmount, textAmountSuffixed)
		if fields.Amount != nil {
			fields.Method = MethodRenderedText
		}
	}

	if fields.AccountNumber == "" {
		if m := textAccountPattern.FindStringSubmatch(raw.TextBody); m != nil {
			fields.AccountNumber = m[1]
		}
	}
	if fields.SenderName == "" {
		fields.SenderName = ExtractSenderName(raw.TextBody)
	}
	return fields
}

// findDescriptionField looks for the packed digit string in the plain
// text first, then in text rendered from the HTML body.
func findDescriptionField(raw RawEmail) string {
	if d := ExtractDescriptionField(raw.TextBody); d != "" {
		return d
	}
	if strings.TrimSpace(raw.HTMLBody) != "" {
		return ExtractDescriptionField(HTMLToText(raw.HTMLBody))
	}
	return ""
}

// HTMLToText flattens bank HTML into label/value text lines, keeping
// table structure readable for the line-based patterns.
func HTMLToText(html string) string {
	html = scriptPattern.ReplaceAllString(html, "")
	html = stylePattern.ReplaceAllString(html, "")
	html = cellBreakTags.ReplaceAllString(html, " ")
	html = rowBreakTags.ReplaceAllString(html, "\n")
	text := anyTagPattern.ReplaceAllString(html, "")
	text = strings.ReplaceAll(text, "&nbsp;", " ")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(blankRunInLine.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func firstAmount(body string, patterns ...*regexp.Regexp) *decimal.Decimal {
	for _, p := range patterns {
		for _, m := range p.FindAllStringSubmatch(body, 8) {
			if amount := parseAmount(m[1]); amount != nil {
				return amount
			}
		}
	}
	return nil
}

func parseAmount(s string) *decimal.Decimal {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil
	}
	amount, err := decimal.NewFromString(s)
	if err != nil || amount.LessThan(minPlausibleAmount) {
		return nil
	}
	return &amount
}

func amountFromPattern(pattern, body string) *decimal.Decimal {
	re, err := regexp.Compile(pattern)
	if err != nil {
		log.Printf("extraction: invalid template amount pattern %q: %v", pattern, err)
		return nil
	}
	if m := re.FindStringSubmatch(body); m != nil && len(m) > 1 {
		return parseAmount(m[1])
	}
	return nil
}

func nameFromPattern(pattern, body string) string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		log.Printf("extraction: invalid template name pattern %q: %v", pattern, err)
		return ""
	}
	if m := re.FindStringSubmatch(body); m != nil && len(m) > 1 {
		return cleanSenderName(m[1])
	}
	return ""
}

func accountFromPattern(pattern, body string) string {
	re, err := regexp.Compile(pattern)
	if err != nil {
		log.Printf("extraction: invalid template account pattern %q: %v", pattern, err)
		return ""
	}
	if m := re.FindStringSubmatch(body); m != nil && len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func amountFromLabel(label string, raw RawEmail) *decimal.Decimal {
	q := regexp.QuoteMeta(label)
	cell := regexp.MustCompile(`(?is)<td[^>]*>\s*` + q + `\s*:?\s*</td>\s*<td[^>]*>\s*(?:ngn|naira|₦)?(?:&nbsp;|\s)*([\d,]+\.?\d*)\s*</td>`)
	line := regexp.MustCompile(`(?i)` + q + `\s*:\s*(?:ngn|naira|₦)?\s*([\d,]+\.?\d*)`)
	if m := cell.FindStringSubmatch(raw.HTMLBody); m != nil {
		return parseAmount(m[1])
	}
	if m := line.FindStringSubmatch(raw.TextBody); m != nil {
		return parseAmount(m[1])
	}
	return nil
}

func nameFromLabel(label string, raw RawEmail) string {
	q := regexp.QuoteMeta(label)
	fromTo := regexp.MustCompile(`(?is)<td[^>]*>\s*` + q + `\s*:?\s*</td>\s*<td[^>]*>\s*from\s+([A-Z][A-Z\s]+?)\s+to`)
	cell := regexp.MustCompile(`(?is)<td[^>]*>\s*` + q + `\s*:?\s*</td>\s*<td[^>]*>\s*([A-Z][A-Z\s]+?)\s*</td>`)
	line := regexp.MustCompile(`(?im)` + q + `\s*:\s*([A-Z][A-Z\s]+?)\s*$`)
	if m := fromTo.FindStringSubmatch(raw.HTMLBody); m != nil {
		return cleanSenderName(m[1])
	}
	if m := cell.FindStringSubmatch(raw.HTMLBody); m != nil {
		return cleanSenderName(m[1])
	}
	if m := line.FindStringSubmatch(raw.TextBody); m != nil {
		return cleanSenderName(m[1])
	}
	return ""
}

func accountFromLabel(label string, raw RawEmail) string {
	q := regexp.QuoteMeta(label)
	cell := regexp.MustCompile(`(?is)<td[^>]*>\s*` + q + `\s*:?\s*</td>\s*<td[^>]*>\s*(\d+)\s*</td>`)
	line := regexp.MustCompile(`(?i)` + q + `\s*:\s*(\d+)\b`)
	if m := cell.FindStringSubmatch(raw.HTMLBody); m != nil {
		return m[1]
	}
	if m := line.FindStringSubmatch(raw.TextBody); m != nil {
		return m[1]
	}
	return ""
}

// senderNameFromEmail falls back to the display part of the
// from-address. Rejected when it looks like a bare address.
func senderNameFromEmail(raw RawEmail) string {
	from := raw.From
	if i := strings.Index(from, "<"); i > 0 {
		return cleanSenderName(from[:i])
	}
	return ""
}
