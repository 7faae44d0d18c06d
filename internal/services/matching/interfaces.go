package matching

import (
	"context"
	"time"

	"email-reconciliation-backend/internal/config"
	"email-reconciliation-backend/internal/models"

	"github.com/google/uuid"
)

// The engine depends on these narrow interfaces rather than concrete
// repositories so the locked transition can be tested without a
// database.

// PaymentSource reads payment candidates.
type PaymentSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.PendingPayment, error)
	ListPending(ctx context.Context, now time.Time) ([]models.PendingPayment, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID) error
}

// EmailSource reads email candidates.
type EmailSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.ProcessedEmail, error)
	ListUnmatched(ctx context.Context) ([]models.ProcessedEmail, error)
	RecordAttemptOutcome(ctx context.Context, id uuid.UUID, reason string) error
}

// AttemptSink appends audit rows for comparisons outside the approval
// transaction.
type AttemptSink interface {
	Create(ctx context.Context, attempt *models.MatchAttempt) error
}

// SettingsSource supplies the live configuration snapshot, fetched
// fresh on every engine invocation.
type SettingsSource interface {
	Snapshot(ctx context.Context) config.Snapshot
}

// Tx is the serializable unit of work the final accept runs in. All
// reads inside it are under row locks; no other code path writes
// payment status or email match fields.
type Tx interface {
	PaymentForUpdate(id uuid.UUID) (*models.PendingPayment, error)
	EmailForUpdate(id uuid.UUID) (*models.ProcessedEmail, error)
	SavePayment(p *models.PendingPayment) error
	SaveEmail(e *models.ProcessedEmail) error
	AppendAttempt(a *models.MatchAttempt) error
}

// Store opens units of work.
type Store interface {
	InTransaction(ctx context.Context, fn func(tx Tx) error) error
}
