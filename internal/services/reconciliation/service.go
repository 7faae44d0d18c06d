package reconciliation

import (
	"context"
	"fmt"
	"log"
	"time"

	"email-reconciliation-backend/internal/models"
	"email-reconciliation-backend/internal/repository"
	"email-reconciliation-backend/internal/services/extraction"
	"email-reconciliation-backend/internal/services/matching"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// A payment with this many failed attempts surfaces in the manual
// review queue.
const NeedsReviewThreshold = 3

// Service is the thin driver layer: it owns ingestion, sweeps and
// expiry, and delegates every matching decision to the engine.
type Service struct {
	payments  *repository.PaymentRepository
	emails    *repository.EmailRepository
	templates *repository.TemplateRepository
	extractor *extraction.Extractor
	engine    *matching.Engine
}

func NewService(
	payments *repository.PaymentRepository,
	emails *repository.EmailRepository,
	templates *repository.TemplateRepository,
	extractor *extraction.Extractor,
	engine *matching.Engine,
) *Service {
	return &Service{
		payments:  payments,
		emails:    emails,
		templates: templates,
		extractor: extractor,
		engine:    engine,
	}
}

// IngestEmail stores one raw message idempotently, extracts its fields
// and immediately tries to match it. Re-delivery of a known message id
// changes nothing and triggers no second match.
func (s *Service) IngestEmail(ctx context.Context, raw extraction.RawEmail, messageID string) (*models.ProcessedEmail, *matching.MatchResult, error) {
	if messageID == "" {
		messageID = models.ComposeMessageID(raw.From, raw.Subject, raw.Date)
	}

	templates, err := s.templates.ListActive(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load templates: %w", err)
	}
	fields := s.extractor.Extract(raw, templates)

	email := &models.ProcessedEmail{
		ID:                 uuid.New(),
		MessageID:          messageID,
		FromEmail:          raw.From,
		Subject:            raw.Subject,
		TextBody:           raw.TextBody,
		HTMLBody:           raw.HTMLBody,
		EmailDate:          raw.Date,
		Amount:             fields.Amount,
		AccountNumber:      fields.AccountNumber,
		PayerAccountNumber: fields.PayerAccountNumber,
		SenderName:         fields.SenderName,
		DescriptionField:   fields.DescriptionField,
		ExtractedDate:      fields.ExtractedDate,
		ExtractionMethod:   fields.Method,
	}

	stored, inserted, err := s.emails.InsertIdempotent(ctx, email)
	if err != nil {
		return nil, nil, fmt.Errorf("store email: %w", err)
	}
	if !inserted {
		log.Printf("reconciliation: duplicate delivery of message %s ignored", messageID)
		return stored, nil, nil
	}

	result, err := s.engine.MatchEmail(ctx, stored.ID)
	if err != nil {
		// Matching failure is recoverable; the sweep retries. The
		// email itself is safely stored.
		log.Printf("reconciliation: match after ingest failed for %s: %v", messageID, err)
		return stored, nil, nil
	}
	return stored, &result, nil
}

// CreatePayment registers a pending payment and immediately checks the
// already-stored emails for its counterpart.
func (s *Service) CreatePayment(ctx context.Context, amount decimal.Decimal, businessID *uuid.UUID, payerName, accountNumber string, expiresIn *time.Duration) (*models.PendingPayment, *matching.MatchResult, error) {
	payment := &models.PendingPayment{
		ID:            uuid.New(),
		TransactionID: uuid.NewString(),
		BusinessID:    businessID,
		Amount:        amount,
		PayerName:     payerName,
		AccountNumber: accountNumber,
		Status:        models.PaymentStatusPending,
	}
	if expiresIn != nil {
		at := time.Now().Add(*expiresIn)
		payment.ExpiresAt = &at
	}

	if err := s.payments.Create(ctx, payment); err != nil {
		return nil, nil, fmt.Errorf("create payment: %w", err)
	}

	result, err := s.engine.MatchPayment(ctx, payment.ID)
	if err != nil {
		log.Printf("reconciliation: match after create failed for %s: %v", payment.TransactionID, err)
		return payment, nil, nil
	}
	return payment, &result, nil
}

// RecheckPayment is the manual "check match" driver.
func (s *Service) RecheckPayment(ctx context.Context, paymentID uuid.UUID) (matching.MatchResult, error) {
	return s.engine.MatchPayment(ctx, paymentID)
}

// RecheckEmail re-runs extraction backfill for one email, then matches.
func (s *Service) RecheckEmail(ctx context.Context, emailID uuid.UUID) (matching.MatchResult, error) {
	email, err := s.emails.GetByID(ctx, emailID)
	if err != nil {
		return matching.MatchResult{}, fmt.Errorf("load email: %w", err)
	}
	if err := s.backfillEmail(ctx, email); err != nil {
		log.Printf("reconciliation: backfill failed for email %s: %v", email.MessageID, err)
	}
	return s.engine.MatchEmail(ctx, emailID)
}

// SweepOutcome is one item's result inside a sweep; individual
// failures never abort the batch.
type SweepOutcome struct {
	ID      uuid.UUID `json:"id"`
	Kind    string    `json:"kind"` // "email" or "payment"
	Matched bool      `json:"matched"`
	Outcome string    `json:"outcome"`
	Error   string    `json:"error,omitempty"`
}

// SweepReport summarizes one global sweep run.
type SweepReport struct {
	StartedAt        time.Time      `json:"started_at"`
	CompletedAt      time.Time      `json:"completed_at"`
	BackfilledEmails int            `json:"backfilled_emails"`
	ExpiredPayments  int64          `json:"expired_payments"`
	MatchedCount     int            `json:"matched_count"`
	Results          []SweepOutcome `json:"results"`
}

// RunSweep is the periodic global driver: expire due payments, backfill
// extraction over emails still missing fields, then retry every
// unmatched email and every pending payment. Catches matches the
// per-item drivers missed because extraction resolved late.
func (s *Service) RunSweep(ctx context.Context) SweepReport {
	report := SweepReport{StartedAt: time.Now(), Results: []SweepOutcome{}}

	expired, err := s.payments.ExpireDue(ctx, report.StartedAt)
	if err != nil {
		log.Printf("reconciliation: expiry pass failed: %v", err)
	}
	report.ExpiredPayments = expired

	report.BackfilledEmails = s.backfillPass(ctx)

	emails, err := s.emails.ListUnmatched(ctx)
	if err != nil {
		log.Printf("reconciliation: sweep could not list emails: %v", err)
	}
	for i := range emails {
		outcome := SweepOutcome{ID: emails[i].ID, Kind: "email"}
		result, err := s.engine.MatchEmail(ctx, emails[i].ID)
		if err != nil {
			outcome.Error = err.Error()
		} else {
			outcome.Matched = result.Matched
			outcome.Outcome = result.Reason
			if result.Matched {
				report.MatchedCount++
			}
		}
		report.Results = append(report.Results, outcome)
	}

	payments, err := s.payments.ListPending(ctx, time.Now())
	if err != nil {
		log.Printf("reconciliation: sweep could not list payments: %v", err)
	}
	for i := range payments {
		outcome := SweepOutcome{ID: payments[i].ID, Kind: "payment"}
		result, err := s.engine.MatchPayment(ctx, payments[i].ID)
		if err != nil {
			outcome.Error = err.Error()
		} else {
			outcome.Matched = result.Matched
			outcome.Outcome = result.Reason
			if result.Matched {
				report.MatchedCount++
			}
		}
		report.Results = append(report.Results, outcome)
	}

	report.CompletedAt = time.Now()
	log.Printf("reconciliation: sweep done, %d items, %d matched, %d expired, %d backfilled",
		len(report.Results), report.MatchedCount, report.ExpiredPayments, report.BackfilledEmails)
	return report
}

// ExpirePayments transitions past-due pending payments to expired.
func (s *Service) ExpirePayments(ctx context.Context) (int64, error) {
	return s.payments.ExpireDue(ctx, time.Now())
}

// NeedsReview lists pending payments with enough failed attempts to
// warrant a human look.
func (s *Service) NeedsReview(ctx context.Context) ([]models.PendingPayment, error) {
	return s.payments.ListNeedsReview(ctx, NeedsReviewThreshold)
}

// backfillPass re-extracts fields for unmatched emails an earlier pass
// left incomplete. Returns how many rows gained at least one field.
func (s *Service) backfillPass(ctx context.Context) int {
	emails, err := s.emails.ListMissingFields(ctx)
	if err != nil {
		log.Printf("reconciliation: backfill listing failed: %v", err)
		return 0
	}

	updated := 0
	for i := range emails {
		before := emails[i]
		if err := s.backfillEmail(ctx, &emails[i]); err != nil {
			log.Printf("reconciliation: backfill failed for email %s: %v", emails[i].MessageID, err)
			continue
		}
		if changedFields(&before, &emails[i]) {
			updated++
		}
	}
	return updated
}

func (s *Service) backfillEmail(ctx context.Context, email *models.ProcessedEmail) error {
	templates, err := s.templates.ListActive(ctx)
	if err != nil {
		return err
	}

	raw := extraction.RawEmail{
		From:     email.FromEmail,
		Subject:  email.Subject,
		TextBody: email.TextBody,
		HTMLBody: email.HTMLBody,
		Date:     email.EmailDate,
	}
	existing := extraction.Fields{
		Amount:             email.Amount,
		AccountNumber:      email.AccountNumber,
		PayerAccountNumber: email.PayerAccountNumber,
		SenderName:         email.SenderName,
		DescriptionField:   email.DescriptionField,
		ExtractedDate:      email.ExtractedDate,
		Method:             email.ExtractionMethod,
	}

	merged := s.extractor.Backfill(raw, existing, templates)

	email.Amount = merged.Amount
	email.AccountNumber = merged.AccountNumber
	email.PayerAccountNumber = merged.PayerAccountNumber
	email.SenderName = merged.SenderName
	email.DescriptionField = merged.DescriptionField
	email.ExtractedDate = merged.ExtractedDate
	email.ExtractionMethod = merged.Method

	return s.emails.UpdateExtractedFields(ctx, email)
}

func changedFields(before, after *models.ProcessedEmail) bool {
	if (before.Amount == nil) != (after.Amount == nil) {
		return true
	}
	return before.AccountNumber != after.AccountNumber ||
		before.PayerAccountNumber != after.PayerAccountNumber ||
		before.SenderName != after.SenderName ||
		before.DescriptionField != after.DescriptionField ||
		before.ExtractedDate != after.ExtractedDate
}
