package events

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentApproved is emitted after a match transition commits. Balance
// crediting and webhook delivery subscribe to this; the core never
// performs either itself.
type PaymentApproved struct {
	PaymentID      uuid.UUID        `json:"payment_id"`
	TransactionID  string           `json:"transaction_id"`
	EmailID        *uuid.UUID       `json:"email_id,omitempty"`
	Amount         decimal.Decimal  `json:"amount"`
	ReceivedAmount *decimal.Decimal `json:"received_amount,omitempty"`

	PayerName     string `json:"payer_name,omitempty"`
	AccountNumber string `json:"account_number,omitempty"`

	MatchedAt  time.Time `json:"matched_at"`
	ApprovedAt time.Time `json:"approved_at"`

	NameSimilarityPercent *int `json:"name_similarity_percent,omitempty"`
	IsMismatch            bool `json:"is_mismatch"`
	IsNameMismatch        bool `json:"is_name_mismatch"`
	IsAccountMismatch     bool `json:"is_account_mismatch"`
	ManualOverride        bool `json:"manual_override"`
}

// Listener consumes approval events.
type Listener interface {
	HandlePaymentApproved(event PaymentApproved)
}

// Dispatcher fans approval events out to registered listeners.
// Dispatch runs after the database transaction commits; a listener
// panicking or blocking is the listener's problem, not the engine's,
// so each runs in its own goroutine.
type Dispatcher struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

func (d *Dispatcher) Register(l Listener) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.listeners = append(d.listeners, l)
}

func (d *Dispatcher) Dispatch(event PaymentApproved) {
	d.mu.RLock()
	listeners := make([]Listener, len(d.listeners))
	copy(listeners, d.listeners)
	d.mu.RUnlock()

	for _, l := range listeners {
		go l.HandlePaymentApproved(event)
	}
}

// LogListener is the default subscriber; external webhook and balance
// listeners register alongside it.
type LogListener struct{}

func (LogListener) HandlePaymentApproved(event PaymentApproved) {
	log.Printf("payment approved: transaction=%s amount=%s name_similarity=%v mismatch=%v manual=%v",
		event.TransactionID, event.Amount.StringFixed(2),
		event.NameSimilarityPercent, event.IsMismatch, event.ManualOverride)
}
