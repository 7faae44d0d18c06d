package matching

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"email-reconciliation-backend/internal/config"
	"email-reconciliation-backend/internal/events"
	"email-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore backs the engine interfaces with in-memory maps. A single
// mutex held across InTransaction stands in for row locks.
type fakeStore struct {
	mu       sync.Mutex
	payments map[uuid.UUID]*models.PendingPayment
	emails   map[uuid.UUID]*models.ProcessedEmail
	attempts []models.MatchAttempt
	cfg      config.Snapshot
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments: make(map[uuid.UUID]*models.PendingPayment),
		emails:   make(map[uuid.UUID]*models.ProcessedEmail),
		cfg:      config.DefaultSnapshot(),
	}
}

func (f *fakeStore) addPayment(p *models.PendingPayment) { f.payments[p.ID] = p }
func (f *fakeStore) addEmail(e *models.ProcessedEmail) { f.emails[e.ID] = e }

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*models.PendingPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := *f.payments[id]
	return &p, nil
}

func (f *fakeStore) ListPending(_ context.Context, now time.Time) ([]models.PendingPayment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PendingPayment
	for _, p := range f.payments {
		if p.IsPending() && !p.IsExpired(now) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) IncrementAttempts(_ context.Context, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payments[id].MatchAttemptsCount++
	return nil
}

type fakeEmails struct{ *fakeStore }

func (f fakeEmails) GetByID(_ context.Context, id uuid.UUID) (*models.ProcessedEmail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e := *f.emails[id]
	return &e, nil
}

func (f fakeEmails) ListUnmatched(_ context.Context) ([]models.ProcessedEmail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ProcessedEmail
	for _, e := range f.emails {
		if !e.IsMatched {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f fakeEmails) RecordAttemptOutcome(_ context.Context, id uuid.UUID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails[id].MatchAttemptsCount++
	f.emails[id].LastMatchReason = reason
	return nil
}

func (f *fakeStore) Create(_ context.Context, attempt *models.MatchAttempt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *attempt)
	return nil
}

func (f *fakeStore) Snapshot(_ context.Context) config.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cfg
}

func (f *fakeStore) InTransaction(_ context.Context, fn func(tx Tx) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(fakeTx{f})
}

// fakeTx hands out the stored pointers directly; the store mutex is
// held for the whole transaction.
type fakeTx struct{ s *fakeStore }

func (t fakeTx) PaymentForUpdate(id uuid.UUID) (*models.PendingPayment, error) {
	return t.s.payments[id], nil
}

func (t fakeTx) EmailForUpdate(id uuid.UUID) (*models.ProcessedEmail, error) {
	return t.s.emails[id], nil
}

func (t fakeTx) SavePayment(p *models.PendingPayment) error { t.s.payments[p.ID] = p; return nil }
func (t fakeTx) SaveEmail(e *models.ProcessedEmail) error { t.s.emails[e.ID] = e; return nil }

func (t fakeTx) AppendAttempt(a *models.MatchAttempt) error {
	t.s.attempts = append(t.s.attempts, *a)
	return nil
}

func newTestEngine(f *fakeStore) *Engine {
	return NewEngine(f, fakeEmails{f}, f, f, f, events.NewDispatcher())
}

func (f *fakeStore) attemptsWithResult(result string) []models.MatchAttempt {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MatchAttempt
	for _, a := range f.attempts {
		if a.MatchResult == result {
			out = append(out, a)
		}
	}
	return out
}

func TestMatchEmailApprovesExactCandidate(t *testing.T) {
	f := newFakeStore()
	now := time.Now()

	payment := testPayment("5000.00", now.Add(-2*time.Minute))
	payment.PayerName = "john doe"
	f.addPayment(payment)
	f.addPayment(testPayment("9000.00", now.Add(-2*time.Minute)))

	email := testEmail("5000.00", now)
	email.SenderName = "JOHN DOE"
	f.addEmail(email)

	result, err := newTestEngine(f).MatchEmail(context.Background(), email.ID)
	require.NoError(t, err)

	assert.True(t, result.Matched)
	assert.Equal(t, ReasonMatched, result.Reason)

	stored := f.payments[payment.ID]
	assert.Equal(t, models.PaymentStatusApproved, stored.Status)
	require.NotNil(t, stored.ApprovedAt)
	require.NotNil(t, stored.ReceivedAmount)
	assert.Equal(t, "5000.00", stored.ReceivedAmount.StringFixed(2))
	assert.NotEmpty(t, stored.EmailData)

	assert.True(t, f.emails[email.ID].IsMatched)
	assert.Equal(t, payment.ID, *f.emails[email.ID].MatchedPaymentID)

	matched := f.attemptsWithResult(models.MatchResultMatched)
	require.Len(t, matched, 1)
	assert.Equal(t, payment.ID, *matched[0].PaymentID)
	assert.Equal(t, email.ID, *matched[0].ProcessedEmailID)

	// The non-matching payment got its own reasoned audit row.
	unmatched := f.attemptsWithResult(models.MatchResultUnmatched)
	require.Len(t, unmatched, 1)
	assert.Contains(t, unmatched[0].Reason, ReasonAmountMismatch)
}

func TestMatchPaymentApprovesExactCandidate(t *testing.T) {
	f := newFakeStore()
	now := time.Now()

	payment := testPayment("750.50", now.Add(-time.Minute))
	f.addPayment(payment)

	email := testEmail("750.50", now)
	f.addEmail(email)
	f.addEmail(testEmail("120.00", now))

	result, err := newTestEngine(f).MatchPayment(context.Background(), payment.ID)
	require.NoError(t, err)

	assert.True(t, result.Matched)
	assert.Equal(t, models.PaymentStatusApproved, f.payments[payment.ID].Status)
	assert.True(t, f.emails[email.ID].IsMatched)
}

func TestMatchEmailWithoutAmountLogsAttempt(t *testing.T) {
	f := newFakeStore()
	email := &models.ProcessedEmail{ID: uuid.New(), MessageID: uuid.NewString()}
	f.addEmail(email)

	result, err := newTestEngine(f).MatchEmail(context.Background(), email.ID)
	require.NoError(t, err)

	assert.False(t, result.Matched)
	assert.Equal(t, ReasonNoAmount, result.Reason)
	require.Len(t, f.attempts, 1)
	assert.Equal(t, ReasonNoAmount, f.attempts[0].Reason)
	assert.Equal(t, 1, f.emails[email.ID].MatchAttemptsCount)
	assert.Equal(t, ReasonNoAmount, f.emails[email.ID].LastMatchReason)
}

func TestMatchEmailAmbiguousCandidatesRejected(t *testing.T) {
	f := newFakeStore()
	now := time.Now()
	created := now.Add(-5 * time.Minute)

	first := testPayment("5000.00", created)
	second := testPayment("5000.00", created)
	f.addPayment(first)
	f.addPayment(second)

	email := testEmail("5000.00", now)
	f.addEmail(email)

	result, err := newTestEngine(f).MatchEmail(context.Background(), email.ID)
	require.NoError(t, err)

	assert.False(t, result.Matched)
	assert.Equal(t, ReasonAmbiguous, result.Reason)

	// Neither payment is touched; both rejections are on record.
	assert.Equal(t, models.PaymentStatusPending, f.payments[first.ID].Status)
	assert.Equal(t, models.PaymentStatusPending, f.payments[second.ID].Status)
	rejected := f.attemptsWithResult(models.MatchResultRejected)
	require.Len(t, rejected, 2)
	assert.Contains(t, rejected[0].Reason, ReasonAmbiguous)
	assert.False(t, f.emails[email.ID].IsMatched)
}

func TestConcurrentMatchesCreditOnce(t *testing.T) {
	f := newFakeStore()
	now := time.Now()

	payment := testPayment("5000.00", now.Add(-time.Minute))
	f.addPayment(payment)

	emailA := testEmail("5000.00", now)
	emailB := testEmail("5000.00", now.Add(time.Minute))
	f.addEmail(emailA)
	f.addEmail(emailB)

	engine := newTestEngine(f)
	results := make([]MatchResult, 2)
	errs := make([]error, 2)

	var wg sync.WaitGroup
	for i, id := range []uuid.UUID{emailA.ID, emailB.ID} {
		wg.Add(1)
		go func(slot int, emailID uuid.UUID) {
			defer wg.Done()
			results[slot], errs[slot] = engine.MatchEmail(context.Background(), emailID)
		}(i, id)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	wins := 0
	for _, r := range results {
		if r.Matched {
			wins++
		} else {
			// Depending on interleaving the loser either re-reads an
			// approved payment or never sees it as a candidate.
			assert.Contains(t, []string{ReasonAlreadyResolved, ReasonNoCandidate}, r.Reason)
		}
	}
	assert.Equal(t, 1, wins, "exactly one email settles the payment")

	assert.Equal(t, models.PaymentStatusApproved, f.payments[payment.ID].Status)
	matchedEmails := 0
	for _, e := range f.emails {
		if e.IsMatched {
			matchedEmails++
		}
	}
	assert.Equal(t, 1, matchedEmails)
	require.Len(t, f.attemptsWithResult(models.MatchResultMatched), 1)
}

func TestConcurrentDriversCreditOnce(t *testing.T) {
	f := newFakeStore()
	now := time.Now()

	payment := testPayment("5000.00", now.Add(-time.Minute))
	f.addPayment(payment)
	email := testEmail("5000.00", now)
	f.addEmail(email)

	engine := newTestEngine(f)
	var (
		wg      sync.WaitGroup
		results = make([]MatchResult, 2)
		errs    = make([]error, 2)
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		results[0], errs[0] = engine.MatchPayment(context.Background(), payment.ID)
	}()
	go func() {
		defer wg.Done()
		results[1], errs[1] = engine.MatchEmail(context.Background(), email.ID)
	}()
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	wins := 0
	for _, r := range results {
		if r.Matched {
			wins++
		}
	}
	assert.Equal(t, 1, wins, "both drivers aim at the same pair, one transition commits")
	assert.Equal(t, models.PaymentStatusApproved, f.payments[payment.ID].Status)
	assert.True(t, f.emails[email.ID].IsMatched)
	require.Len(t, f.attemptsWithResult(models.MatchResultMatched), 1)
}

func TestApprovedPaymentLeavesCandidatePool(t *testing.T) {
	f := newFakeStore()
	now := time.Now()

	payment := testPayment("5000.00", now.Add(-time.Minute))
	f.addPayment(payment)
	f.addEmail(testEmail("5000.00", now))

	engine := newTestEngine(f)
	first, err := engine.MatchEmail(context.Background(), firstEmailID(f))
	require.NoError(t, err)
	require.True(t, first.Matched)

	late := testEmail("5000.00", now.Add(2*time.Minute))
	f.addEmail(late)

	second, err := engine.MatchEmail(context.Background(), late.ID)
	require.NoError(t, err)

	assert.False(t, second.Matched)
	assert.Equal(t, ReasonNoCandidate, second.Reason)
	assert.Equal(t, models.PaymentStatusApproved, f.payments[payment.ID].Status)
}

func firstEmailID(f *fakeStore) uuid.UUID {
	for id := range f.emails {
		return id
	}
	return uuid.Nil
}

func TestMatchRecordsSoftMismatch(t *testing.T) {
	f := newFakeStore()
	now := time.Now()

	payment := testPayment("5000.00", now.Add(-time.Minute))
	payment.PayerName = "john doe"
	f.addPayment(payment)

	email := testEmail("5000.00", now)
	email.SenderName = "funke ade"
	f.addEmail(email)

	result, err := newTestEngine(f).MatchEmail(context.Background(), email.ID)
	require.NoError(t, err)

	assert.True(t, result.Matched, "a lone exact-amount candidate is accepted despite the name")
	stored := f.payments[payment.ID]
	assert.True(t, stored.IsMismatch)
	assert.Contains(t, stored.MismatchReason, "payer name differs")
}

func TestForceApprove(t *testing.T) {
	f := newFakeStore()
	payment := testPayment("5000.00", time.Now())
	f.addPayment(payment)

	engine := newTestEngine(f)
	result, err := engine.ForceApprove(context.Background(), payment.ID, decimal.RequireFromString("4800.00"), "partial payment accepted", "ops@example.com")
	require.NoError(t, err)

	assert.True(t, result.Matched)
	stored := f.payments[payment.ID]
	assert.Equal(t, models.PaymentStatusApproved, stored.Status)
	assert.True(t, stored.IsMismatch)
	require.NotNil(t, stored.ReceivedAmount)
	assert.Equal(t, "4800.00", stored.ReceivedAmount.StringFixed(2))

	require.Len(t, f.attempts, 1)
	assert.True(t, strings.HasPrefix(f.attempts[0].Reason, ReasonManualOverride))
	assert.Contains(t, f.attempts[0].Reason, "ops@example.com")
}

func TestForceApproveRefusesDoubleCredit(t *testing.T) {
	f := newFakeStore()
	payment := testPayment("5000.00", time.Now())
	payment.Status = models.PaymentStatusApproved
	f.addPayment(payment)

	_, err := newTestEngine(f).ForceApprove(context.Background(), payment.ID, payment.Amount, "", "ops@example.com")
	assert.ErrorIs(t, err, ErrDoubleCredit)
}

func TestForceApproveRefusesTerminalStates(t *testing.T) {
	f := newFakeStore()
	payment := testPayment("5000.00", time.Now())
	payment.Status = models.PaymentStatusExpired
	f.addPayment(payment)

	_, err := newTestEngine(f).ForceApprove(context.Background(), payment.ID, payment.Amount, "", "ops@example.com")
	assert.ErrorIs(t, err, ErrNotPending)
}

func TestMatchPaymentExpired(t *testing.T) {
	f := newFakeStore()
	now := time.Now()
	payment := testPayment("5000.00", now.Add(-time.Hour))
	expiry := now.Add(-time.Minute)
	payment.ExpiresAt = &expiry
	f.addPayment(payment)
	f.addEmail(testEmail("5000.00", now))

	result, err := newTestEngine(f).MatchPayment(context.Background(), payment.ID)
	require.NoError(t, err)

	assert.False(t, result.Matched)
	assert.Equal(t, ReasonExpired, result.Reason)
	assert.False(t, firstEmailMatched(f))
}

func firstEmailMatched(f *fakeStore) bool {
	for _, e := range f.emails {
		if e.IsMatched {
			return true
		}
	}
	return false
}
