package matching

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"email-reconciliation-backend/internal/config"
	"email-reconciliation-backend/internal/events"
	"email-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ErrDoubleCredit is the one invariant violation the engine refuses
// loudly: a request to approve a payment that is already approved.
// Everything else (lost races, expiries, mismatches) resolves quietly.
var ErrDoubleCredit = errors.New("payment already approved: refusing double credit")

// ErrNotPending rejects a forced approval of a payment that has left
// PENDING for any terminal state. Status transitions are monotonic.
var ErrNotPending = errors.New("payment is not pending")

// MatchResult is what a driver gets back from one engine invocation.
type MatchResult struct {
	Matched  bool
	Reason   string
	Payment  *models.PendingPayment
	Email    *models.ProcessedEmail
	Attempts []models.MatchAttempt
}

// Engine owns every write to payment.status and email match fields.
// Candidate search reads a snapshot lock-free; the final accept
// re-validates everything under a per-payment lock plus a row-locked
// transaction.
type Engine struct {
	payments PaymentSource
	emails   EmailSource
	attempts AttemptSink
	settings SettingsSource
	store    Store
	events   *events.Dispatcher

	locks sync.Map // payment uuid -> *sync.Mutex
}

func NewEngine(
	payments PaymentSource,
	emails EmailSource,
	attempts AttemptSink,
	settings SettingsSource,
	store Store,
	dispatcher *events.Dispatcher,
) *Engine {
	return &Engine{
		payments: payments,
		emails:   emails,
		attempts: attempts,
		settings: settings,
		store:    store,
		events:   dispatcher,
	}
}

// MatchEmail searches pending payments for the email's counterpart.
func (e *Engine) MatchEmail(ctx context.Context, emailID uuid.UUID) (MatchResult, error) {
	email, err := e.emails.GetByID(ctx, emailID)
	if err != nil {
		return MatchResult{}, fmt.Errorf("load email: %w", err)
	}
	if email.IsMatched {
		return MatchResult{Reason: ReasonAlreadyResolved, Email: email}, nil
	}

	cfg := e.settings.Snapshot(ctx)
	now := time.Now()

	if email.Amount == nil {
		attempt := buildAttempt(nil, email, Evaluation{Reason: ReasonNoAmount}, models.MatchResultUnmatched, "")
		e.logAttempt(ctx, attempt, nil, email)
		return MatchResult{Reason: ReasonNoAmount, Email: email, Attempts: []models.MatchAttempt{*attempt}}, nil
	}

	payments, err := e.payments.ListPending(ctx, now)
	if err != nil {
		return MatchResult{}, fmt.Errorf("list pending payments: %w", err)
	}

	var pairs []pairing
	for i := range payments {
		pairs = append(pairs, pairing{payment: &payments[i], email: email})
	}
	return e.resolve(ctx, pairs, nil, email, now, cfg)
}

// MatchPayment searches unmatched emails for the payment's counterpart.
func (e *Engine) MatchPayment(ctx context.Context, paymentID uuid.UUID) (MatchResult, error) {
	payment, err := e.payments.GetByID(ctx, paymentID)
	if err != nil {
		return MatchResult{}, fmt.Errorf("load payment: %w", err)
	}

	cfg := e.settings.Snapshot(ctx)
	now := time.Now()

	if !payment.IsPending() || payment.IsExpired(now) {
		reason := ReasonAlreadyResolved
		if payment.Status == models.PaymentStatusExpired || payment.IsExpired(now) {
			reason = ReasonExpired
		}
		return MatchResult{Reason: reason, Payment: payment}, nil
	}

	emails, err := e.emails.ListUnmatched(ctx)
	if err != nil {
		return MatchResult{}, fmt.Errorf("list unmatched emails: %w", err)
	}

	var pairs []pairing
	for i := range emails {
		pairs = append(pairs, pairing{payment: payment, email: &emails[i]})
	}
	return e.resolve(ctx, pairs, payment, nil, now, cfg)
}

// resolve evaluates every candidate pair, logs one attempt per
// comparison, applies the tie-break and finalizes a single winner.
// anchorPayment/anchorEmail name the entity the driver asked about, for
// the no-candidate audit row.
func (e *Engine) resolve(ctx context.Context, pairs []pairing, anchorPayment *models.PendingPayment, anchorEmail *models.ProcessedEmail, now time.Time, cfg config.Snapshot) (MatchResult, error) {
	result := MatchResult{Payment: anchorPayment, Email: anchorEmail}

	if len(pairs) == 0 {
		attempt := buildAttempt(anchorPayment, anchorEmail, Evaluation{Reason: ReasonNoCandidate}, models.MatchResultUnmatched, "")
		e.logAttempt(ctx, attempt, anchorPayment, anchorEmail)
		result.Reason = ReasonNoCandidate
		result.Attempts = append(result.Attempts, *attempt)
		return result, nil
	}

	var passed []pairing
	for _, pair := range pairs {
		eval := Evaluate(pair.payment, pair.email, now, cfg)
		if eval.Passed {
			pair.eval = eval
			passed = append(passed, pair)
			continue
		}
		attempt := buildAttempt(pair.payment, pair.email, eval, models.MatchResultUnmatched, pair.email.ExtractionMethod)
		e.logAttempt(ctx, attempt, pair.payment, pair.email)
		result.Attempts = append(result.Attempts, *attempt)
		result.Reason = eval.Reason
	}

	if len(passed) == 0 {
		if result.Reason == "" {
			result.Reason = ReasonNoCandidate
		}
		return result, nil
	}

	best, ambiguous := pickBest(passed)
	if ambiguous {
		// Two candidates indistinguishable after every tie-break:
		// refuse to guess, leave both for manual review.
		for _, pair := range passed {
			attempt := buildAttempt(pair.payment, pair.email, pair.eval, models.MatchResultRejected, pair.email.ExtractionMethod)
			attempt.Reason = fmt.Sprintf("%s: %d candidates passed amount and time filters", ReasonAmbiguous, len(passed))
			e.logAttempt(ctx, attempt, pair.payment, pair.email)
			result.Attempts = append(result.Attempts, *attempt)
		}
		result.Reason = ReasonAmbiguous
		return result, nil
	}

	return e.finalize(ctx, *best)
}

// finalize performs the atomic transition for a winning pair. Losers of
// the per-payment lock observe a no-longer-PENDING payment (or an
// already-matched email) on re-read and abort with no side effects.
func (e *Engine) finalize(ctx context.Context, pair pairing) (MatchResult, error) {
	mu := e.lockFor(pair.payment.ID)
	mu.Lock()
	defer mu.Unlock()

	var (
		outcome   = ReasonMatched
		approved  *models.PendingPayment
		matched   *models.ProcessedEmail
		successAt *models.MatchAttempt
	)

	err := e.store.InTransaction(ctx, func(tx Tx) error {
		payment, err := tx.PaymentForUpdate(pair.payment.ID)
		if err != nil {
			return err
		}
		email, err := tx.EmailForUpdate(pair.email.ID)
		if err != nil {
			return err
		}

		now := time.Now()
		switch {
		case payment.Status == models.PaymentStatusExpired || (payment.IsPending() && payment.IsExpired(now)):
			outcome = ReasonExpired
			return nil
		case !payment.IsPending():
			outcome = ReasonAlreadyResolved
			return nil
		case email.IsMatched:
			outcome = ReasonAlreadyResolved
			return nil
		}

		applyApproval(payment, email, pair.eval, now)

		attempt := buildAttempt(payment, email, pair.eval, models.MatchResultMatched, email.ExtractionMethod)
		if err := tx.AppendAttempt(attempt); err != nil {
			return err
		}
		if err := tx.SavePayment(payment); err != nil {
			return err
		}
		if err := tx.SaveEmail(email); err != nil {
			return err
		}

		approved, matched, successAt = payment, email, attempt
		return nil
	})
	if err != nil {
		return MatchResult{}, fmt.Errorf("finalize match: %w", err)
	}

	if outcome != ReasonMatched {
		// Lost the race (or the payment timed out under the lock):
		// a normal outcome, recorded but never surfaced as an error.
		attempt := buildAttempt(pair.payment, pair.email, Evaluation{Reason: outcome}, resultFor(outcome), pair.email.ExtractionMethod)
		e.logAttempt(ctx, attempt, nil, pair.email)
		return MatchResult{
			Reason:   outcome,
			Payment:  pair.payment,
			Email:    pair.email,
			Attempts: []models.MatchAttempt{*attempt},
		}, nil
	}

	log.Printf("matching: payment %s approved against email %s", approved.TransactionID, matched.MessageID)
	e.events.Dispatch(approvalEvent(approved, matched, pair.eval, false))

	return MatchResult{
		Matched:  true,
		Reason:   ReasonMatched,
		Payment:  approved,
		Email:    matched,
		Attempts: []models.MatchAttempt{*successAt},
	}, nil
}

// ForceApprove is the manual override surface. It bypasses the
// candidate rules but not the locked transition or the audit trail, and
// it is the loud edge of the double-credit boundary.
func (e *Engine) ForceApprove(ctx context.Context, paymentID uuid.UUID, receivedAmount decimal.Decimal, notes, approvedBy string) (MatchResult, error) {
	mu := e.lockFor(paymentID)
	mu.Lock()
	defer mu.Unlock()

	var (
		approved *models.PendingPayment
		attempt  *models.MatchAttempt
	)

	err := e.store.InTransaction(ctx, func(tx Tx) error {
		payment, err := tx.PaymentForUpdate(paymentID)
		if err != nil {
			return err
		}
		if payment.Status == models.PaymentStatusApproved {
			return ErrDoubleCredit
		}
		if !payment.IsPending() {
			return fmt.Errorf("%w: status %s", ErrNotPending, payment.Status)
		}

		now := time.Now()
		payment.Status = models.PaymentStatusApproved
		payment.MatchedAt = &now
		payment.ApprovedAt = &now
		if !receivedAmount.Equal(payment.Amount) {
			payment.IsMismatch = true
			payment.ReceivedAmount = &receivedAmount
			payment.MismatchReason = fmt.Sprintf("manual override: expected %s, received %s",
				payment.Amount.StringFixed(2), receivedAmount.StringFixed(2))
		}

		attempt = buildAttempt(payment, nil, Evaluation{Reason: ReasonManualOverride}, models.MatchResultMatched, "")
		attempt.Reason = fmt.Sprintf("%s by %s: %s", ReasonManualOverride, approvedBy, notes)
		attempt.Details = mustDetails(map[string]interface{}{
			"manual_override": true,
			"approved_by":     approvedBy,
			"notes":           notes,
			"received_amount": receivedAmount.StringFixed(2),
		})
		if err := tx.AppendAttempt(attempt); err != nil {
			return err
		}
		if err := tx.SavePayment(payment); err != nil {
			return err
		}
		approved = payment
		return nil
	})
	if err != nil {
		return MatchResult{}, err
	}

	event := approvalEvent(approved, nil, Evaluation{}, true)
	event.ReceivedAmount = &receivedAmount
	e.events.Dispatch(event)

	return MatchResult{
		Matched:  true,
		Reason:   ReasonManualOverride,
		Payment:  approved,
		Attempts: []models.MatchAttempt{*attempt},
	}, nil
}

func (e *Engine) lockFor(paymentID uuid.UUID) *sync.Mutex {
	mu, _ := e.locks.LoadOrStore(paymentID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// logAttempt appends the audit row and bumps both sides' attempt
// counters. Audit failures are logged, never propagated: a comparison
// that cannot be recorded must not break matching.
func (e *Engine) logAttempt(ctx context.Context, attempt *models.MatchAttempt, payment *models.PendingPayment, email *models.ProcessedEmail) {
	if err := e.attempts.Create(ctx, attempt); err != nil {
		log.Printf("matching: failed to log attempt: %v", err)
	}
	if payment != nil && attempt.MatchResult != models.MatchResultMatched {
		if err := e.payments.IncrementAttempts(ctx, payment.ID); err != nil {
			log.Printf("matching: failed to bump payment attempts: %v", err)
		}
	}
	if email != nil && attempt.MatchResult != models.MatchResultMatched {
		if err := e.emails.RecordAttemptOutcome(ctx, email.ID, attempt.Reason); err != nil {
			log.Printf("matching: failed to record email outcome: %v", err)
		}
	}
}

// applyApproval mutates both entities for the success transition.
// Callers hold the payment lock and the row locks.
func applyApproval(payment *models.PendingPayment, email *models.ProcessedEmail, eval Evaluation, now time.Time) {
	payment.Status = models.PaymentStatusApproved
	payment.MatchedAt = &now
	payment.ApprovedAt = &now
	payment.ReceivedAmount = email.Amount

	if eval.NameMismatch || eval.AccountMismatch {
		payment.IsMismatch = true
		payment.MismatchReason = mismatchSummary(eval)
	}
	if payment.PayerName == "" && email.SenderName != "" {
		payment.PayerName = email.SenderName
	}

	payment.EmailData = mustDetails(map[string]interface{}{
		"name":     email.SenderName,
		"amount":   amountString(email.Amount),
		"time":     timeString(email.EmailDate),
		"subject":  email.Subject,
		"from":     email.FromEmail,
		"email_id": email.ID.String(),
	})

	email.IsMatched = true
	email.MatchedPaymentID = &payment.ID
	email.MatchedAt = &now
	email.LastMatchReason = ReasonMatched
}

func mismatchSummary(eval Evaluation) string {
	switch {
	case eval.NameMismatch && eval.AccountMismatch:
		return "payer name and account number differ from expected"
	case eval.NameMismatch:
		return fmt.Sprintf("payer name differs from expected (similarity %d%%)", similarityOf(eval))
	default:
		return "account number differs from expected"
	}
}

func approvalEvent(payment *models.PendingPayment, email *models.ProcessedEmail, eval Evaluation, manual bool) events.PaymentApproved {
	event := events.PaymentApproved{
		PaymentID:             payment.ID,
		TransactionID:         payment.TransactionID,
		Amount:                payment.Amount,
		ReceivedAmount:        payment.ReceivedAmount,
		PayerName:             payment.PayerName,
		AccountNumber:         payment.AccountNumber,
		NameSimilarityPercent: eval.NameSimilarityPercent,
		IsMismatch:            payment.IsMismatch,
		IsNameMismatch:        eval.NameMismatch,
		IsAccountMismatch:     eval.AccountMismatch,
		ManualOverride:        manual,
	}
	if payment.MatchedAt != nil {
		event.MatchedAt = *payment.MatchedAt
	}
	if payment.ApprovedAt != nil {
		event.ApprovedAt = *payment.ApprovedAt
	}
	if email != nil {
		id := email.ID
		event.EmailID = &id
	}
	return event
}

// buildAttempt captures both sides of one comparison for the audit
// trail. Either entity may be absent (no-candidate rows).
func buildAttempt(payment *models.PendingPayment, email *models.ProcessedEmail, eval Evaluation, result, method string) *models.MatchAttempt {
	attempt := &models.MatchAttempt{
		ID:                    uuid.New(),
		MatchResult:           result,
		Reason:                eval.Reason,
		AmountDiff:            eval.AmountDiff,
		TimeDiffMinutes:       eval.TimeDiffMinutes,
		NameSimilarityPercent: eval.NameSimilarityPercent,
		ExtractionMethod:      method,
		CreatedAt:             time.Now(),
	}
	if payment != nil {
		id := payment.ID
		created := payment.CreatedAt
		amount := payment.Amount
		attempt.PaymentID = &id
		attempt.TransactionID = payment.TransactionID
		attempt.PaymentAmount = &amount
		attempt.PaymentName = payment.PayerName
		attempt.PaymentAccountNumber = payment.AccountNumber
		attempt.PaymentCreatedAt = &created
	}
	if email != nil {
		id := email.ID
		attempt.ProcessedEmailID = &id
		attempt.ExtractedAmount = email.Amount
		attempt.ExtractedName = email.SenderName
		attempt.ExtractedAccountNumber = email.AccountNumber
		attempt.EmailSubject = email.Subject
		attempt.EmailFrom = email.FromEmail
		attempt.EmailDate = email.EmailDate
	}
	return attempt
}

func resultFor(reason string) string {
	if reason == ReasonExpired {
		return models.MatchResultRejected
	}
	return models.MatchResultUnmatched
}

func mustDetails(m map[string]interface{}) datatypes.JSON {
	b, err := json.Marshal(m)
	if err != nil {
		return nil
	}
	return b
}

func amountString(d *decimal.Decimal) string {
	if d == nil {
		return ""
	}
	return d.StringFixed(2)
}

func timeString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
