package matching

import (
	"fmt"
	"math"
	"time"

	"email-reconciliation-backend/internal/config"
	"email-reconciliation-backend/internal/models"

	"github.com/shopspring/decimal"
)

// Rejection and outcome reasons written to match attempts. Operators
// filter on these, so "expired entirely" stays distinguishable from
// "missed an active window".
const (
	ReasonMatched         = "amount and time match within window"
	ReasonAmountMismatch  = "amount mismatch"
	ReasonOutsideWindow   = "outside time window"
	ReasonExpired         = "payment expired"
	ReasonNoAmount        = "no amount extracted from email"
	ReasonNoCandidate     = "no candidate"
	ReasonAmbiguous       = "ambiguous match"
	ReasonAlreadyResolved = "already resolved"
	ReasonManualOverride  = "manual override"
)

// Evaluation is the outcome of comparing one payment against one email.
type Evaluation struct {
	Passed bool
	Reason string

	AmountDiff            *decimal.Decimal
	TimeDiffMinutes       *int
	NameSimilarityPercent *int

	// Soft signals: logged and surfaced, never blocking by themselves.
	NameMismatch    bool
	AccountMismatch bool
}

// Evaluate applies the candidate filter to one (payment, email) pair.
// Pure: all inputs, including now and the settings snapshot, arrive as
// arguments.
func Evaluate(payment *models.PendingPayment, email *models.ProcessedEmail, now time.Time, cfg config.Snapshot) Evaluation {
	var eval Evaluation

	if payment.IsExpired(now) || payment.Status == models.PaymentStatusExpired {
		eval.Reason = ReasonExpired
		return eval
	}
	if !payment.IsPending() {
		eval.Reason = ReasonAlreadyResolved
		return eval
	}
	if email.IsMatched {
		eval.Reason = ReasonAlreadyResolved
		return eval
	}
	if email.Amount == nil {
		eval.Reason = ReasonNoAmount
		return eval
	}

	if email.EmailDate != nil {
		diff := email.EmailDate.Sub(payment.CreatedAt)
		minutes := int(math.Round(diff.Minutes()))
		eval.TimeDiffMinutes = &minutes

		if diff < -config.ClockSkewSlack || diff > cfg.TimeWindow() {
			eval.Reason = fmt.Sprintf("%s: email %d minutes from payment creation (window -5 to +%d)",
				ReasonOutsideWindow, minutes, cfg.TimeWindowMinutes)
			return eval
		}
	}

	// Amount is the single most reliable signal: exact equality at
	// minor-unit precision, no tolerance band.
	if !email.Amount.Equal(payment.Amount) {
		diff := payment.Amount.Sub(*email.Amount)
		eval.AmountDiff = &diff
		eval.Reason = fmt.Sprintf("%s: expected %s, extracted %s",
			ReasonAmountMismatch, payment.Amount.StringFixed(2), email.Amount.StringFixed(2))
		return eval
	}

	if payment.AccountNumber != "" && email.AccountNumber != "" &&
		payment.AccountNumber != email.AccountNumber {
		eval.AccountMismatch = true
	}

	if payment.PayerName != "" {
		similarity := 0
		if email.SenderName != "" {
			similarity = NameSimilarity(payment.PayerName, email.SenderName)
		}
		eval.NameSimilarityPercent = &similarity
		if similarity < cfg.NameSimilarityPercent {
			eval.NameMismatch = true
		}
	}

	eval.Passed = true
	eval.Reason = ReasonMatched
	return eval
}

// absTimeDiff is the tie-break key; candidates without an email date
// sort last.
func absTimeDiff(eval Evaluation) int {
	if eval.TimeDiffMinutes == nil {
		return math.MaxInt32
	}
	d := *eval.TimeDiffMinutes
	if d < 0 {
		return -d
	}
	return d
}

func accountMatches(payment *models.PendingPayment, email *models.ProcessedEmail) bool {
	return payment.AccountNumber != "" && payment.AccountNumber == email.AccountNumber
}

func similarityOf(eval Evaluation) int {
	if eval.NameSimilarityPercent == nil {
		return 0
	}
	return *eval.NameSimilarityPercent
}

// pairing is one candidate that passed the hard filter.
type pairing struct {
	payment *models.PendingPayment
	email   *models.ProcessedEmail
	eval    Evaluation
}

// pickBest applies the tie-break order: smallest absolute time
// difference, then exact account-number match, then highest name
// similarity. A full tie is ambiguous and yields nil rather than a
// guess, so two customers paying the same amount near-simultaneously
// never get each other's credit.
func pickBest(candidates []pairing) (best *pairing, ambiguous bool) {
	if len(candidates) == 0 {
		return nil, false
	}
	winner := 0
	for i := 1; i < len(candidates); i++ {
		if betterCandidate(candidates[i], candidates[winner]) {
			winner = i
		}
	}
	for i := range candidates {
		if i != winner && !betterCandidate(candidates[winner], candidates[i]) {
			return nil, true
		}
	}
	return &candidates[winner], false
}

func betterCandidate(a, b pairing) bool {
	at, bt := absTimeDiff(a.eval), absTimeDiff(b.eval)
	if at != bt {
		return at < bt
	}
	aAcct, bAcct := accountMatches(a.payment, a.email), accountMatches(b.payment, b.email)
	if aAcct != bAcct {
		return aAcct
	}
	return similarityOf(a.eval) > similarityOf(b.eval)
}
