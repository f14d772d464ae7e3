// Package paymentrequest holds the payment request lifecycle: issuing
// single-use bearer links, validating them, and the conditional status
// transitions that make each link consumable exactly once.
package paymentrequest

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/linehub/billing/pkg/statemachine"
)

type Type string

const (
	TypeCardPayment Type = "card_payment"
	TypeDDSetup     Type = "dd_setup"
)

type Status string

const (
	StatusSent      Status = "sent"
	StatusOpened    Status = "opened"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"

	// StatusExpired is never stored; it is derived from ExpiresAt at read time.
	StatusExpired Status = "expired"
)

// Transitions lists every status change a request may go through. Only
// sent and opened requests are live.
var Transitions = statemachine.New(
	statemachine.Allow(StatusSent, StatusOpened, StatusCompleted, StatusFailed, StatusCancelled),
	statemachine.Allow(StatusOpened, StatusCompleted, StatusFailed, StatusCancelled),
)

// ActiveStatuses are the stored statuses from which a request may still be used.
var ActiveStatuses = []Status{StatusSent, StatusOpened}

// Customer is a snapshot of the payer taken when the request is created, so
// later profile edits do not change what the link shows.
type Customer struct {
	UserID        uuid.UUID `json:"user_id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	AccountNumber string    `json:"account_number,omitempty"`
}

type PaymentRequest struct {
	ID                uuid.UUID       `json:"id"`
	Type              Type            `json:"type"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Description       string          `json:"description,omitempty"`
	Customer          Customer        `json:"customer"`
	InvoiceID         *uuid.UUID      `json:"invoice_id,omitempty"`
	DueDate           *time.Time      `json:"due_date,omitempty"`
	Status            Status          `json:"status"`
	TokenHash         string          `json:"-"`
	ExpiresAt         time.Time       `json:"expires_at"`
	ProviderReference string          `json:"provider_reference,omitempty"`
	OpenedAt          *time.Time      `json:"opened_at,omitempty"`
	CompletedAt       *time.Time      `json:"completed_at,omitempty"`
	CancelledAt       *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// IsExpired reports whether now is past ExpiresAt.
func (r *PaymentRequest) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// EffectiveStatus returns StatusExpired for a live request past its expiry,
// otherwise the stored status.
func (r *PaymentRequest) EffectiveStatus(now time.Time) Status {
	if r.IsActive() && r.IsExpired(now) {
		return StatusExpired
	}
	return r.Status
}

// IsActive reports whether the stored status still allows use of the link.
func (r *PaymentRequest) IsActive() bool {
	return r.Status == StatusSent || r.Status == StatusOpened
}

// Issued is a freshly created request together with its raw token and the
// customer-facing link. The token is not recoverable after this value is
// dropped.
type Issued struct {
	Request *PaymentRequest
	Token   string
	Link    string
}
