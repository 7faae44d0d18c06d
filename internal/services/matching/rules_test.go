package matching

import (
	"testing"
	"time"

	"email-reconciliation-backend/internal/config"
	"email-reconciliation-backend/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPayment(amount string, createdAt time.Time) *models.PendingPayment {
	return &models.PendingPayment{
		ID:            uuid.New(),
		TransactionID: uuid.NewString(),
		Amount:        decimal.RequireFromString(amount),
		Status:        models.PaymentStatusPending,
		CreatedAt:     createdAt,
	}
}

func testEmail(amount string, date time.Time) *models.ProcessedEmail {
	a := decimal.RequireFromString(amount)
	return &models.ProcessedEmail{
		ID:        uuid.New(),
		MessageID: uuid.NewString(),
		Amount:    &a,
		EmailDate: &date,
	}
}

func TestEvaluateExactMatch(t *testing.T) {
	now := time.Now()
	payment := testPayment("5000.00", now.Add(-2*time.Minute))
	email := testEmail("5000.00", now)

	eval := Evaluate(payment, email, now, config.DefaultSnapshot())

	assert.True(t, eval.Passed)
	assert.Equal(t, ReasonMatched, eval.Reason)
	require.NotNil(t, eval.TimeDiffMinutes)
	assert.Equal(t, 2, *eval.TimeDiffMinutes)
}

func TestEvaluateAmountMismatch(t *testing.T) {
	now := time.Now()
	payment := testPayment("5000.00", now)
	email := testEmail("4999.99", now)

	eval := Evaluate(payment, email, now, config.DefaultSnapshot())

	assert.False(t, eval.Passed)
	assert.Contains(t, eval.Reason, ReasonAmountMismatch)
	require.NotNil(t, eval.AmountDiff)
	assert.Equal(t, "0.01", eval.AmountDiff.StringFixed(2))
}

func TestEvaluateNearMissAmountStillFails(t *testing.T) {
	// One minor unit off is a mismatch; there is no tolerance band.
	now := time.Now()
	payment := testPayment("100.00", now)
	email := testEmail("100.01", now)

	eval := Evaluate(payment, email, now, config.DefaultSnapshot())
	assert.False(t, eval.Passed)
	assert.Contains(t, eval.Reason, ReasonAmountMismatch)
}

func TestEvaluateOutsideWindow(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	payment := testPayment("5000.00", created)
	email := testEmail("5000.00", created.Add(20*time.Minute))

	eval := Evaluate(payment, email, time.Now(), config.DefaultSnapshot())

	assert.False(t, eval.Passed)
	assert.Contains(t, eval.Reason, ReasonOutsideWindow)
	require.NotNil(t, eval.TimeDiffMinutes)
	assert.Equal(t, 20, *eval.TimeDiffMinutes)
}

func TestEvaluateClockSkewSlack(t *testing.T) {
	created := time.Now()
	payment := testPayment("5000.00", created)

	// An email stamped slightly before payment creation is clock skew.
	early := testEmail("5000.00", created.Add(-3*time.Minute))
	eval := Evaluate(payment, early, time.Now(), config.DefaultSnapshot())
	assert.True(t, eval.Passed)

	tooEarly := testEmail("5000.00", created.Add(-10*time.Minute))
	eval = Evaluate(payment, tooEarly, time.Now(), config.DefaultSnapshot())
	assert.False(t, eval.Passed)
	assert.Contains(t, eval.Reason, ReasonOutsideWindow)
}

func TestEvaluateWindowIsLiveConfigurable(t *testing.T) {
	created := time.Now().Add(-time.Hour)
	payment := testPayment("5000.00", created)
	email := testEmail("5000.00", created.Add(25*time.Minute))

	eval := Evaluate(payment, email, time.Now(), config.Snapshot{TimeWindowMinutes: 30, NameSimilarityPercent: 65})
	assert.True(t, eval.Passed)

	eval = Evaluate(payment, email, time.Now(), config.Snapshot{TimeWindowMinutes: 15, NameSimilarityPercent: 65})
	assert.False(t, eval.Passed)
}

func TestEvaluateExpiredPayment(t *testing.T) {
	now := time.Now()
	payment := testPayment("5000.00", now.Add(-time.Hour))
	expiry := now.Add(-time.Minute)
	payment.ExpiresAt = &expiry
	email := testEmail("5000.00", now)

	eval := Evaluate(payment, email, now, config.DefaultSnapshot())

	assert.False(t, eval.Passed)
	assert.Equal(t, ReasonExpired, eval.Reason, "expiry is reported distinctly from a missed window")
}

func TestEvaluateResolvedEntities(t *testing.T) {
	now := time.Now()

	payment := testPayment("5000.00", now)
	payment.Status = models.PaymentStatusApproved
	eval := Evaluate(payment, testEmail("5000.00", now), now, config.DefaultSnapshot())
	assert.Equal(t, ReasonAlreadyResolved, eval.Reason)

	email := testEmail("5000.00", now)
	email.IsMatched = true
	eval = Evaluate(testPayment("5000.00", now), email, now, config.DefaultSnapshot())
	assert.Equal(t, ReasonAlreadyResolved, eval.Reason)
}

func TestEvaluateMissingAmount(t *testing.T) {
	now := time.Now()
	email := &models.ProcessedEmail{ID: uuid.New(), EmailDate: &now}

	eval := Evaluate(testPayment("5000.00", now), email, now, config.DefaultSnapshot())

	assert.False(t, eval.Passed)
	assert.Equal(t, ReasonNoAmount, eval.Reason)
}

func TestEvaluateSoftSignals(t *testing.T) {
	now := time.Now()

	payment := testPayment("5000.00", now)
	payment.PayerName = "john doe"
	payment.AccountNumber = "0123456789"

	email := testEmail("5000.00", now)
	email.SenderName = "funke ade"
	email.AccountNumber = "9999999999"

	eval := Evaluate(payment, email, now, config.DefaultSnapshot())

	assert.True(t, eval.Passed, "name and account are soft signals, never blocking")
	assert.True(t, eval.NameMismatch)
	assert.True(t, eval.AccountMismatch)
	require.NotNil(t, eval.NameSimilarityPercent)
	assert.Equal(t, 0, *eval.NameSimilarityPercent)
}

func TestEvaluateNameAboveThreshold(t *testing.T) {
	now := time.Now()
	payment := testPayment("5000.00", now)
	payment.PayerName = "john doe"
	email := testEmail("5000.00", now)
	email.SenderName = "JOHN DOE"

	eval := Evaluate(payment, email, now, config.DefaultSnapshot())

	assert.True(t, eval.Passed)
	assert.False(t, eval.NameMismatch)
	require.NotNil(t, eval.NameSimilarityPercent)
	assert.Equal(t, 100, *eval.NameSimilarityPercent)
}

func TestPickBestPrefersSmallerTimeDiff(t *testing.T) {
	now := time.Now()
	email := testEmail("5000.00", now)

	near := testPayment("5000.00", now.Add(-2*time.Minute))
	far := testPayment("5000.00", now.Add(-12*time.Minute))

	cfg := config.DefaultSnapshot()
	candidates := []pairing{
		{payment: far, email: email, eval: Evaluate(far, email, now, cfg)},
		{payment: near, email: email, eval: Evaluate(near, email, now, cfg)},
	}

	best, ambiguous := pickBest(candidates)
	require.False(t, ambiguous)
	require.NotNil(t, best)
	assert.Equal(t, near.ID, best.payment.ID)
}

func TestPickBestPrefersAccountMatchOnTimeTie(t *testing.T) {
	now := time.Now()
	email := testEmail("5000.00", now)
	email.AccountNumber = "0123456789"

	created := now.Add(-5 * time.Minute)
	withAccount := testPayment("5000.00", created)
	withAccount.AccountNumber = "0123456789"
	withoutAccount := testPayment("5000.00", created)

	cfg := config.DefaultSnapshot()
	candidates := []pairing{
		{payment: withoutAccount, email: email, eval: Evaluate(withoutAccount, email, now, cfg)},
		{payment: withAccount, email: email, eval: Evaluate(withAccount, email, now, cfg)},
	}

	best, ambiguous := pickBest(candidates)
	require.False(t, ambiguous)
	require.NotNil(t, best)
	assert.Equal(t, withAccount.ID, best.payment.ID)
}

func TestPickBestPrefersHigherSimilarity(t *testing.T) {
	now := time.Now()
	email := testEmail("5000.00", now)
	email.SenderName = "john doe"

	created := now.Add(-5 * time.Minute)
	closeName := testPayment("5000.00", created)
	closeName.PayerName = "john doe"
	otherName := testPayment("5000.00", created)
	otherName.PayerName = "funke ade"

	cfg := config.DefaultSnapshot()
	candidates := []pairing{
		{payment: otherName, email: email, eval: Evaluate(otherName, email, now, cfg)},
		{payment: closeName, email: email, eval: Evaluate(closeName, email, now, cfg)},
	}

	best, ambiguous := pickBest(candidates)
	require.False(t, ambiguous)
	require.NotNil(t, best)
	assert.Equal(t, closeName.ID, best.payment.ID)
}

func TestPickBestFullTieIsAmbiguous(t *testing.T) {
	now := time.Now()
	email := testEmail("5000.00", now)

	created := now.Add(-5 * time.Minute)
	first := testPayment("5000.00", created)
	second := testPayment("5000.00", created)

	cfg := config.DefaultSnapshot()
	candidates := []pairing{
		{payment: first, email: email, eval: Evaluate(first, email, now, cfg)},
		{payment: second, email: email, eval: Evaluate(second, email, now, cfg)},
	}

	best, ambiguous := pickBest(candidates)
	assert.True(t, ambiguous)
	assert.Nil(t, best)
}
